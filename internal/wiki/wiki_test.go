package wiki

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvalRubins/WikiExplorer/internal/ratelimit"
)

const catHTML = `<!DOCTYPE html>
<html><body>
<div id="content">
  <p><a href="/wiki/Dog">dog</a> and <a href="/wiki/Dog#Behavior">behavior</a></p>
  <p><a href="/wiki/Category:Cats">cats</a> <a href="/wiki/Main_Page">home</a></p>
  <p><a href="/w/index.php?title=Cat&action=edit">edit</a> <a href="/wiki/Cat?oldid=1">old</a></p>
  <p><a href="https://example.org/wiki/Foreign">elsewhere</a></p>
  <p><a href="/wiki/%D7%97%D7%AA%D7%95%D7%9C">hebrew</a> <a href="Whiskers">relative</a></p>
  <p><a href="/wiki/AC/DC">band</a> <a>no href</a></p>
  <table class="wikitable sortable"><tr><td><a href="/wiki/Lion">lion</a></td></tr></table>
  <table class="infobox biota"><tr><td><a href="/wiki/Felidae">felidae</a></td></tr></table>
  <div role="navigation"><a href="/wiki/Tiger">tiger</a></div>
  <div role="note"><a href="/wiki/Cat_(disambiguation)">other uses</a></div>
  <figure><figcaption><a href="/wiki/Kitten">kitten</a></figcaption></figure>
</div>
<footer><a href="/wiki/Privacy_policy">privacy</a></footer>
</body></html>`

const whatLinksHereHTML = `<html><body>
<div id="sidebar"><a href="/wiki/Sidebar_Item">sidebar</a></div>
<ul id="mw-whatlinkshere-list">
  <li><a href="/wiki/Cat">Cat</a></li>
  <li><a href="/wiki/Wolf">Wolf</a> (redirect page)</li>
  <li><a href="/wiki/Talk:Dog">Talk:Dog</a></li>
</ul>
</body></html>`

type fakeWiki struct {
	*httptest.Server
	flaky    atomic.Int32
	requests atomic.Int32
	agent    atomic.Value
}

func newFakeWiki(t *testing.T) *fakeWiki {
	t.Helper()
	fw := &fakeWiki{}
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/", func(w http.ResponseWriter, r *http.Request) {
		fw.requests.Add(1)
		fw.agent.Store(r.Header.Get("User-Agent"))
		name := strings.TrimPrefix(r.URL.Path, "/wiki/")
		switch name {
		case "Cat":
			_, _ = w.Write([]byte(catHTML))
		case "Special:WhatLinksHere/Dog":
			_, _ = w.Write([]byte(whatLinksHereHTML))
		case "Special:Random":
			http.Redirect(w, r, "/wiki/Random_Article", http.StatusFound)
		case "Random_Article":
			_, _ = w.Write([]byte(`<html><body></body></html>`))
		case "Flaky":
			if fw.flaky.Add(1) == 1 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`<a href="/wiki/Stable">ok</a>`))
		case "Down":
			http.Error(w, "down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	})
	fw.Server = httptest.NewServer(mux)
	t.Cleanup(fw.Close)
	return fw
}

func newTestClient(t *testing.T, fw *fakeWiki, noNav bool) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: fw.URL, NoNavBoxes: noNav, HTTPClient: fw.Client()})
	require.NoError(t, err)
	return c
}

func TestOutgoing(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	got, err := c.Outgoing(context.Background(), "Cat")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Dog", "חתול", "Whiskers", "AC/DC",
		"Lion", "Felidae", "Tiger", "Cat_(disambiguation)", "Kitten",
	}, got)
	assert.Contains(t, fw.agent.Load(), "wikiexplorer")
}

func TestOutgoingWithoutNavBoxes(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, true)

	got, err := c.Outgoing(context.Background(), "Cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog", "חתול", "Whiskers", "AC/DC"}, got)
}

func TestIncomingReadsResultList(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	got, err := c.Incoming(context.Background(), "Dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Wolf"}, got)
}

func TestRandomName(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	name, err := c.RandomName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Random_Article", name)
}

func TestRetriesTransientStatus(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	got, err := c.Outgoing(context.Background(), "Flaky")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stable"}, got)
	assert.Equal(t, int32(2), fw.flaky.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	_, err := c.Outgoing(context.Background(), "Down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), fw.requests.Load())
}

func TestNotFoundIsNotRetried(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)

	_, err := c.Outgoing(context.Background(), "No_Such_Page")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), fw.requests.Load())
}

func TestCanceledContext(t *testing.T) {
	fw := newFakeWiki(t)
	c := newTestClient(t, fw, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Outgoing(ctx, "Cat")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterPacesRequests(t *testing.T) {
	fw := newFakeWiki(t)
	lim := ratelimit.New(0.001, 1)
	defer lim.Stop()
	c, err := NewClient(Options{BaseURL: fw.URL, HTTPClient: fw.Client(), Limiter: lim})
	require.NoError(t, err)

	_, err = c.Outgoing(context.Background(), "Cat")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Outgoing(ctx, "Cat")
	require.Error(t, err)
	assert.Equal(t, int32(1), fw.requests.Load())
}

func TestURLForAndNameFromURL(t *testing.T) {
	c, err := NewClient(Options{Language: Hebrew})
	require.NoError(t, err)

	assert.Equal(t, "https://he.wikipedia.org/wiki/%D7%97%D7%AA%D7%95%D7%9C", c.URLFor("חתול"))
	assert.Equal(t, "https://he.wikipedia.org/wiki/New_York", c.URLFor("New York"))
	assert.Equal(t, "https://he.wikipedia.org/wiki/AC/DC", c.URLFor("AC/DC"))

	tests := []struct {
		url  string
		name string
		ok   bool
	}{
		{"https://he.wikipedia.org/wiki/%D7%97%D7%AA%D7%95%D7%9C", "חתול", true},
		{"https://he.wikipedia.org/wiki/Cat#History", "Cat", true},
		{"https://he.wikipedia.org/wiki/עמוד_ראשי", "", false},
		{"https://he.wikipedia.org/wiki/Main_Page", "", false},
		{"https://he.wikipedia.org/wiki/קטגוריה:חתולים", "", false},
		{"https://he.wikipedia.org/wiki/Special:Random", "", false},
		{"https://he.wikipedia.org/wiki/Cat?action=edit", "", false},
		{"https://en.wikipedia.org/wiki/Cat", "", false},
		{"https://he.wikipedia.org/w/index.php", "", false},
		{"https://he.wikipedia.org/wiki/", "", false},
		{"://bad", "", false},
	}
	for _, tt := range tests {
		name, ok := c.NameFromURL(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.name, name, tt.url)
	}
}

func TestLanguageFor(t *testing.T) {
	l, err := LanguageFor("")
	require.NoError(t, err)
	assert.Equal(t, English, l)

	l, err = LanguageFor("HE")
	require.NoError(t, err)
	assert.Equal(t, "עמוד_ראשי", l.MainPage)

	_, err = LanguageFor("fr")
	assert.Error(t, err)
}

func TestVariant(t *testing.T) {
	c, err := NewClient(Options{Language: Hebrew, NoNavBoxes: true})
	require.NoError(t, err)
	assert.Equal(t, "he-nonav", c.Variant())

	c, err = NewClient(Options{})
	require.NoError(t, err)
	assert.Equal(t, "en", c.Variant())
}

func TestForbidden(t *testing.T) {
	f := Forbidden("Cat")
	assert.False(t, f.Allows("Cat"))
	assert.False(t, f.Allows("Main_Page"))
	assert.False(t, f.Allows("Template_talk:X"))
	assert.False(t, f.Allows("שיחה:חתול"))
	assert.True(t, f.Allows("Dog"))
	assert.True(t, f.Allows("Talkative"))
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}
