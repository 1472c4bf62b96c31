package similarity

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorOracle scores labels by the cosine similarity of their embeddings.
// It keeps one vector per distinct normalized text, so scoring a node against
// many counterparts embeds it once. Safe for concurrent use.
type VectorOracle struct {
	embedder Embedder

	mu      sync.Mutex
	vectors map[string][]float32
}

// NewVectorOracle creates an oracle backed by embedder.
func NewVectorOracle(embedder Embedder) *VectorOracle {
	return &VectorOracle{
		embedder: embedder,
		vectors:  make(map[string][]float32),
	}
}

func (o *VectorOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	if err := o.Warm(ctx, []string{a, b}); err != nil {
		return 0, err
	}
	o.mu.Lock()
	va, vb := o.vectors[key(a)], o.vectors[key(b)]
	o.mu.Unlock()
	return Cosine(va, vb), nil
}

// Warm embeds every text not yet cached in a single batch.
func (o *VectorOracle) Warm(ctx context.Context, texts []string) error {
	o.mu.Lock()
	var missing []string
	queued := make(map[string]bool)
	for _, t := range texts {
		k := key(t)
		if _, ok := o.vectors[k]; ok || queued[k] {
			continue
		}
		if k == "" {
			// Nothing to embed; a nil vector scores 0.
			o.vectors[k] = nil
			continue
		}
		queued[k] = true
		missing = append(missing, k)
	}
	o.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}
	vecs, err := o.embedder.Embed(ctx, missing)
	if err != nil {
		return fmt.Errorf("embed %d texts: %w", len(missing), err)
	}
	if len(vecs) != len(missing) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, k := range missing {
		o.vectors[k] = vecs[i]
	}
	return nil
}

// Len returns the number of cached vectors.
func (o *VectorOracle) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.vectors)
}

func key(text string) string {
	return strings.Join(strings.Fields(Normalize(text)), " ")
}
