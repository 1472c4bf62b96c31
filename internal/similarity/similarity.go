// Package similarity scores how closely two page labels are related.
//
// Scores are symmetric and bounded; a label without a usable representation
// scores 0 against everything, which ranks it neither first nor last.
package similarity

import (
	"context"
	"math"
	"strings"
)

// Oracle scores the similarity of two labels.
type Oracle interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Warmer is implemented by oracles that can prepare many labels in one batch
// before they are scored.
type Warmer interface {
	Warm(ctx context.Context, texts []string) error
}

var separators = strings.NewReplacer("_", " ", ",", " ", ".", " ")

// Normalize lower-cases text and turns underscores, commas and periods into
// spaces.
func Normalize(text string) string {
	return separators.Replace(strings.ToLower(text))
}

// TokenOracle scores labels by the cosine similarity of their word counts.
// It needs no model, which makes it the offline default.
type TokenOracle struct{}

func (TokenOracle) Similarity(_ context.Context, a, b string) (float64, error) {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}
	var dot, na, nb float64
	for w, ca := range ta {
		dot += float64(ca * tb[w])
		na += float64(ca * ca)
	}
	for _, cb := range tb {
		nb += float64(cb * cb)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func tokens(text string) map[string]int {
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	return counts
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, all zeros, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
