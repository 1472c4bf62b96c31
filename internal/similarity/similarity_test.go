package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "new york city", Normalize("New_York_City"))
	assert.Equal(t, "washington  d c ", Normalize("Washington,_D.C."))
	assert.Equal(t, "חתול", Normalize("חתול"))
}

func TestTokenOracle(t *testing.T) {
	ctx := context.Background()
	var o TokenOracle

	same, err := o.Similarity(ctx, "House_cat", "house cat")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-9)

	partial, err := o.Similarity(ctx, "House_cat", "Cat")
	require.NoError(t, err)
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)

	none, err := o.Similarity(ctx, "Dog", "Cat")
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)

	empty, err := o.Similarity(ctx, "___", "Cat")
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestTokenOracleSymmetric(t *testing.T) {
	ctx := context.Background()
	var o TokenOracle
	pairs := [][2]string{
		{"United_States", "United_Kingdom"},
		{"Cat", "Cat_food"},
		{"A,_B", "B.C"},
	}
	for _, p := range pairs {
		ab, err := o.Similarity(ctx, p[0], p[1])
		require.NoError(t, err)
		ba, err := o.Similarity(ctx, p[1], p[0])
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-12, "%v", p)
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}

// fakeEmbedder maps each text to a fixed vector and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	texts   []string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestVectorOracleCachesPerText(t *testing.T) {
	f := &fakeEmbedder{vectors: map[string][]float32{
		"cat":   {1, 0},
		"dog":   {0.8, 0.6},
		"house": {0, 1},
	}}
	o := NewVectorOracle(f)
	ctx := context.Background()

	s1, err := o.Similarity(ctx, "Cat", "Dog")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s1, 1e-6)

	s2, err := o.Similarity(ctx, "Cat", "House")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s2, 1e-6)

	_, err = o.Similarity(ctx, "DOG", "cat")
	require.NoError(t, err)

	assert.Equal(t, 2, f.calls)
	assert.ElementsMatch(t, []string{"cat", "dog", "house"}, f.texts)
	assert.Equal(t, 3, o.Len())
}

func TestVectorOracleWarmBatches(t *testing.T) {
	f := &fakeEmbedder{vectors: map[string][]float32{}}
	o := NewVectorOracle(f)

	require.NoError(t, o.Warm(context.Background(), []string{"A", "B", "a", "C", "", "B"}))
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, []string{"a", "b", "c"}, f.texts)

	require.NoError(t, o.Warm(context.Background(), []string{"A", "C"}))
	assert.Equal(t, 1, f.calls)
}

func TestVectorOracleMissingRepresentationScoresZero(t *testing.T) {
	f := &fakeEmbedder{vectors: map[string][]float32{"cat": {1, 1}}}
	o := NewVectorOracle(f)

	s, err := o.Similarity(context.Background(), "Cat", "Unknown_word")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	s, err = o.Similarity(context.Background(), "Cat", "..")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestVectorOracleError(t *testing.T) {
	boom := errors.New("model offline")
	o := NewVectorOracle(&fakeEmbedder{err: boom})

	_, err := o.Similarity(context.Background(), "A", "B")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Reply out of order to check that Index is honored.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(j), 1}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "")
	vecs, err := e.Embed(context.Background(), []string{"cat", "dog", "bird"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i), 1}, v)
	}
}

func TestServiceEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch_embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req batchEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vecs := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			vecs[i] = []float32{1, float32(len(req.Texts[i]))}
		}
		_ = json.NewEncoder(w).Encode(batchEmbedResponse{Model: "heBERT", Vectors: vecs, Dim: 2})
	}))
	defer srv.Close()

	e := NewServiceEmbedder(srv.URL + "/")
	vecs, err := e.Embed(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {1, 4}}, vecs)
}

func TestServiceEmbedderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewServiceEmbedder(srv.URL).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model loading")
}
