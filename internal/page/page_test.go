package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cat", "Cat"},
		{"  New York City ", "New_York_City"},
		{"Main_Page", "Main_Page"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestForbiddenAllows(t *testing.T) {
	f := NewForbidden([]string{"Main Page", "Whale"}, []string{"Talk", "User_talk", "שיחה"})

	tests := []struct {
		name string
		want bool
	}{
		{"Cat", true},
		{"Main_Page", false},
		{"Whale", false},
		{"Whales", true},
		{"Talk:Cat", false},
		{"User_talk:Someone", false},
		{"Talkative", true},
		{"שיחה:חתול", false},
		{"חתול", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Allows(tt.name), tt.name)
	}
}

func TestForbiddenZeroValueAllowsAll(t *testing.T) {
	var f Forbidden
	assert.True(t, f.Allows("Anything"))
	assert.True(t, f.Allows("Talk:Anything"))
}

func TestForbiddenWithCopies(t *testing.T) {
	base := NewForbidden([]string{"A"}, []string{"Talk"})
	more := base.With("B", " C D ")

	assert.True(t, base.Allows("B"))
	assert.False(t, more.Allows("A"))
	assert.False(t, more.Allows("B"))
	assert.False(t, more.Allows("C_D"))
	assert.False(t, more.Allows("Talk:X"))
	assert.Equal(t, []string{"A", "B", "C_D"}, more.Names())
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "outgoing", Outgoing.String())
	assert.Equal(t, "incoming", Incoming.String())
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "A -> B -> C", PathString([]string{"A", "B", "C"}))
	assert.Equal(t, "A", PathString([]string{"A"}))
}
