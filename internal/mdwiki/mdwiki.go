// Package mdwiki serves the link graph of a directory of markdown files. Each
// file is a page named by its path relative to the root, without the .md
// extension. A page may start with YAML front matter; pages marked
// draft: true are left out of the graph.
package mdwiki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
)

// ErrNotFound is returned for names with no published page.
var ErrNotFound = errors.New("page not found")

// FrontMatter is the optional YAML header of a page.
type FrontMatter struct {
	Title string `yaml:"title"`
	Draft bool   `yaml:"draft"`
}

// Wiki is a page.LinkProvider over a markdown directory. The directory is
// indexed when the Wiki is opened; later changes to the set of files are
// not seen.
type Wiki struct {
	root  string
	files map[string]string // page name -> file path
	names []string          // published names, sorted
	log   *slog.Logger

	backlinksOnce sync.Once
	backlinks     map[string][]string
	backlinksErr  error
}

// Open indexes the markdown files under root.
func Open(root string, log *slog.Logger) (*Wiki, error) {
	w := &Wiki{root: root, files: make(map[string]string), log: logging.OrDiscard(log)}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := nameFor(filepath.ToSlash(rel))
		fm, _, err := readPage(p)
		if err != nil {
			return err
		}
		if fm.Draft {
			w.log.Debug("skipping draft", slog.String("page", name))
			return nil
		}
		w.files[name] = p
		w.names = append(w.names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	slices.Sort(w.names)
	w.log.Info("indexed markdown wiki", slog.String("root", root), slog.Int("pages", len(w.names)))
	return w, nil
}

func nameFor(rel string) string {
	if ext := path.Ext(rel); strings.EqualFold(ext, ".md") {
		rel = strings.TrimSuffix(rel, ext)
	}
	return page.Normalize(rel)
}

// Names returns every published page name, sorted.
func (w *Wiki) Names() []string { return slices.Clone(w.names) }

// Outgoing returns the published pages that name links to.
func (w *Wiki) Outgoing(_ context.Context, name string) ([]string, error) {
	return w.outgoing(page.Normalize(name))
}

func (w *Wiki) outgoing(name string) ([]string, error) {
	file, ok := w.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	_, body, err := readPage(file)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, dest := range extract(body) {
		target, ok := w.resolve(name, dest)
		if ok && !slices.Contains(out, target) {
			out = append(out, target)
		}
	}
	return out, nil
}

// Incoming returns the published pages that link to name. The backlink
// index is built on first use.
func (w *Wiki) Incoming(_ context.Context, name string) ([]string, error) {
	name = page.Normalize(name)
	if _, ok := w.files[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	w.backlinksOnce.Do(w.buildBacklinks)
	if w.backlinksErr != nil {
		return nil, w.backlinksErr
	}
	return slices.Clone(w.backlinks[name]), nil
}

func (w *Wiki) buildBacklinks() {
	w.backlinks = make(map[string][]string)
	for _, from := range w.names {
		targets, err := w.outgoing(from)
		if err != nil {
			w.backlinksErr = fmt.Errorf("build backlinks: %w", err)
			return
		}
		for _, to := range targets {
			w.backlinks[to] = append(w.backlinks[to], from)
		}
	}
}

// RandomName returns a random published page.
func (w *Wiki) RandomName(context.Context) (string, error) {
	if len(w.names) == 0 {
		return "", fmt.Errorf("%w: wiki at %s is empty", ErrNotFound, w.root)
	}
	return w.names[rand.IntN(len(w.names))], nil
}

// resolve maps a link destination found on page from to a published page.
// External links, fragments and unknown targets are rejected.
func (w *Wiki) resolve(from, dest string) (string, bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := u.Path
	if !strings.HasPrefix(p, "/") {
		p = path.Join(path.Dir(from), p)
	}
	p = strings.TrimPrefix(path.Clean(p), "/")
	name := nameFor(p)
	if _, ok := w.files[name]; !ok {
		return "", false
	}
	return name, true
}

// extract returns the destinations of all links in a markdown body.
func extract(body []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(body))

	var dests []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := n.(type) {
		case *ast.Link:
			if d := string(l.Destination); d != "" && !strings.HasPrefix(d, "#") {
				dests = append(dests, d)
			}
		case *ast.AutoLink:
			dests = append(dests, string(l.URL(body)))
		}
		return ast.WalkContinue, nil
	})
	return dests
}

var fmDelim = []byte("---")

// readPage reads a page file and splits off its front matter.
func readPage(file string) (FrontMatter, []byte, error) {
	var fm FrontMatter
	data, err := os.ReadFile(file)
	if err != nil {
		return fm, nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	first, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok || !bytes.Equal(bytes.TrimSpace(first), fmDelim) {
		return fm, data, nil
	}
	header, body, ok := cutDelimiter(rest)
	if !ok {
		return fm, data, nil
	}
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return fm, nil, fmt.Errorf("front matter of %s: %w", file, err)
	}
	return fm, body, nil
}

// cutDelimiter splits data at the first line consisting of "---".
func cutDelimiter(data []byte) (before, after []byte, ok bool) {
	offset := 0
	for offset <= len(data) {
		line, _, _ := bytes.Cut(data[offset:], []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), fmDelim) {
			end := offset + len(line)
			if end < len(data) {
				end++
			}
			return data[:offset], data[end:], true
		}
		next := bytes.IndexByte(data[offset:], '\n')
		if next < 0 {
			break
		}
		offset += next + 1
	}
	return nil, nil, false
}
