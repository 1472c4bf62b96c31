package explorer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/page/pagetest"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
	"github.com/YuvalRubins/WikiExplorer/internal/similarity"
)

func stubExplorer(p *pagetest.Provider, forbidden ...string) *Explorer {
	return NewWithProvider(p, similarity.TokenOracle{}, page.NewForbidden(forbidden, []string{"Category"}), Options{})
}

func TestSearchFindsPath(t *testing.T) {
	p := pagetest.New("Cat->Dog", "Dog->Wolf", "Cat->Lion")
	x := stubExplorer(p)

	var steps int
	res, err := x.Search(context.Background(), Request{Start: "Cat", End: "Wolf"}, func(search.Progress) { steps++ })
	require.NoError(t, err)
	assert.Equal(t, search.Found, res.State)
	assert.Equal(t, []string{"Cat", "Dog", "Wolf"}, res.Path)
	assert.Equal(t, "Cat", res.Start)
	assert.Equal(t, "Wolf", res.End)
	assert.Equal(t, res.Steps, steps)
	assert.Positive(t, res.Elapsed)
}

func TestSearchRequestForbidden(t *testing.T) {
	p := pagetest.New("A->B", "B->D", "A->C", "C->E", "E->D")
	x := stubExplorer(p)

	res, err := x.Search(context.Background(), Request{Start: "A", End: "D", Forbidden: []string{"B"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "E", "D"}, res.Path)

	// The request list does not stick to the explorer.
	res, err = x.Search(context.Background(), Request{Start: "A", End: "D"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, res.Path)
}

func TestSearchMaxPathLengthOverride(t *testing.T) {
	p := pagetest.New("A->B", "B->C", "C->D")
	x := NewWithProvider(p, similarity.TokenOracle{}, page.Forbidden{}, Options{MaxPathLength: 2})

	res, err := x.Search(context.Background(), Request{Start: "A", End: "D"}, nil)
	require.NoError(t, err)
	assert.Equal(t, search.Exhausted, res.State)

	res, err = x.Search(context.Background(), Request{Start: "A", End: "D", MaxPathLength: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, search.Found, res.State)
}

func TestSearchRandomEndpoints(t *testing.T) {
	p := pagetest.New("Cat->Dog")
	p.SetRandom("Category:Cats", "Cat", "Dog")
	x := stubExplorer(p)

	res, err := x.Search(context.Background(), Request{Start: RandomPage, End: RandomPage}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cat", res.Start, "forbidden draws are skipped")
	assert.Equal(t, "Dog", res.End)
	assert.Equal(t, []string{"Cat", "Dog"}, res.Path)
}

func TestSearchEmptyName(t *testing.T) {
	x := stubExplorer(pagetest.New())
	_, err := x.Search(context.Background(), Request{Start: "  ", End: "B"}, nil)
	assert.Error(t, err)
}

func TestSearchProviderError(t *testing.T) {
	p := pagetest.New("A->B")
	p.Fail("A", errors.New("503"))
	x := stubExplorer(p)

	_, err := x.Search(context.Background(), Request{Start: "A", End: "B"}, nil)
	assert.ErrorIs(t, err, search.ErrProviderUnavailable)
}

func TestRandomWithoutSupport(t *testing.T) {
	type linksOnly struct{ page.LinkProvider }
	x := NewWithProvider(linksOnly{pagetest.New()}, similarity.TokenOracle{}, page.Forbidden{}, Options{})

	_, err := x.Random(context.Background())
	assert.ErrorIs(t, err, ErrNoRandom)
}

func TestRandomOnlyForbidden(t *testing.T) {
	p := pagetest.New()
	p.SetRandom("Category:Cats")
	_, err := stubExplorer(p).Random(context.Background())
	assert.ErrorIs(t, err, ErrNoRandom)
}

func TestLinks(t *testing.T) {
	p := pagetest.New("Cat->Dog", "Cat->Category:Cats", "Cat->Lion", "Lion->Cat")
	x := stubExplorer(p, "Lion")

	out, err := x.Links(context.Background(), "Cat", page.Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog"}, out)

	in, err := x.Links(context.Background(), "Cat", page.Incoming)
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestVerify(t *testing.T) {
	reg := page.NewRegistry(pagetest.New("A->B", "B->C"), page.Forbidden{})
	ctx := context.Background()

	assert.NoError(t, Verify(ctx, reg, []string{"A", "B", "C"}))
	assert.NoError(t, Verify(ctx, reg, []string{"A"}))
	assert.ErrorIs(t, Verify(ctx, reg, []string{"A", "C"}), search.ErrBrokenPath)
}

func TestNewMarkdownBackendWithCache(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cat.md"), []byte("[dog](Dog.md)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Dog.md"), []byte("[wolf](Wolf.md)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Wolf.md"), []byte("Howls.\n"), 0o644))

	cfg := &config.Config{
		Backend:      config.BackendMarkdown,
		MarkdownRoot: root,
		Oracle:       config.OracleTokens,
		Cache:        config.CacheFile,
		CacheDir:     t.TempDir(),
	}
	x, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer x.Close()

	res, err := x.Search(context.Background(), Request{Start: "Cat", End: "Wolf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cat", "Dog", "Wolf"}, res.Path)
	assert.Empty(t, x.URLFor("Cat"))

	entries, err := os.ReadDir(filepath.Join(cfg.CacheDir, "links"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	name, err := x.Random(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []string{"Cat", "Dog", "Wolf"}, name)
}

func TestNewWikiBackend(t *testing.T) {
	cfg := &config.Config{
		Backend:           config.BackendWiki,
		Language:          "he",
		Oracle:            config.OracleService,
		EmbeddingURL:      "http://localhost:8000",
		Cache:             config.CacheBadger,
		CacheDir:          t.TempDir(),
		RequestsPerSecond: 5,
		Burst:             1,
	}
	x, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://he.wikipedia.org/wiki/Cat", x.URLFor("Cat"))
	assert.IsType(t, &similarity.VectorOracle{}, x.oracle)
	require.NoError(t, x.Close())
	require.NoError(t, x.Close())
}

func TestNewErrors(t *testing.T) {
	_, err := New(context.Background(), &config.Config{Backend: "gopher"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(context.Background(), &config.Config{Backend: config.BackendWiki, Language: "fr"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), &config.Config{Backend: config.BackendMarkdown, MarkdownRoot: filepath.Join(t.TempDir(), "none")}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), &config.Config{Backend: config.BackendWiki, Oracle: "magic"}, nil)
	assert.Error(t, err)
}
