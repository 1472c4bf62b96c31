// Package wiki reads the link graph of a live MediaWiki site: outgoing links
// from rendered article HTML and claimed incoming links from
// Special:WhatLinksHere.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/ratelimit"
)

// Language is a Wikipedia language edition.
type Language struct {
	Code     string
	MainPage string
}

var (
	English = Language{Code: "en", MainPage: "Main_Page"}
	Hebrew  = Language{Code: "he", MainPage: "עמוד_ראשי"}
)

// LanguageFor returns the edition for a language code.
func LanguageFor(code string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "en":
		return English, nil
	case "he":
		return Hebrew, nil
	default:
		return Language{}, fmt.Errorf("unsupported language %q", code)
	}
}

// MainPages are the main pages of every supported edition. They link to
// almost everything and are never entered.
var MainPages = []string{English.MainPage, Hebrew.MainPage}

// NamespacePrefixes are the non-article namespaces of every supported
// edition. A name "<prefix>:..." is not a content page.
var NamespacePrefixes = []string{
	"Talk", "Category", "Help", "File", "Wikipedia", "Special",
	"User", "User_talk", "Template", "Template_talk", "Portal",
	"Wikipedia_talk", "Draft", "Category_talk",
	"שיחה", "מיוחד", "קטגוריה", "קובץ", "ויקיפדיה", "משתמש",
	"שיחת_משתמש", "עזרה", "פורטל", "טיוטה", "משתמשת", "תבנית",
	"שיחת_תבנית", "שיחת_קטגוריה", "שיחת_ויקיפדיה", "שיחת_טיוטה",
}

// Forbidden returns the filter for names that are never entered: the main
// pages, the namespaces and any extra names.
func Forbidden(extra ...string) page.Forbidden {
	names := append(append([]string(nil), MainPages...), extra...)
	return page.NewForbidden(names, NamespacePrefixes)
}

// ErrNotFound is returned when the wiki has no page by the requested name.
var ErrNotFound = errors.New("page not found")

// Options configures a Client.
type Options struct {
	Language Language
	// BaseURL overrides https://<code>.wikipedia.org.
	BaseURL string
	// NoNavBoxes ignores links inside navigation boxes, infoboxes, figure
	// captions and tables.
	NoNavBoxes bool
	HTTPClient *http.Client
	// Limiter paces requests per host. Nil means unlimited.
	Limiter    *ratelimit.Limiter
	UserAgent  string
	MaxRetries int
	Logger     *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Language.Code == "" {
		o.Language = English
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.UserAgent == "" {
		o.UserAgent = "wikiexplorer/1.0 (https://github.com/YuvalRubins/WikiExplorer)"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	o.Logger = logging.OrDiscard(o.Logger)
}

// Client is a page.LinkProvider backed by a MediaWiki site. It is safe for
// concurrent use and holds no per-search state.
type Client struct {
	opts      Options
	base      *url.URL
	forbidden page.Forbidden
}

// NewClient creates a client for the configured edition.
func NewClient(opts Options) (*Client, error) {
	opts.applyDefaults()
	raw := opts.BaseURL
	if raw == "" {
		raw = "https://" + opts.Language.Code + ".wikipedia.org"
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", raw)
	}
	return &Client{opts: opts, base: base, forbidden: Forbidden()}, nil
}

// Language returns the edition the client reads.
func (c *Client) Language() Language { return c.opts.Language }

// Variant identifies the link extraction settings. Cached link sets are only
// interchangeable between clients with the same variant.
func (c *Client) Variant() string {
	v := c.opts.Language.Code
	if c.opts.NoNavBoxes {
		v += "-nonav"
	}
	return v
}

// URLFor returns the article URL of name.
func (c *Client) URLFor(name string) string {
	escaped := strings.ReplaceAll(url.PathEscape(page.Normalize(name)), "%2F", "/")
	return c.base.String() + "/wiki/" + escaped
}

// NameFromURL returns the page name an absolute URL points at, and whether
// that page is traversable: same site, under /wiki/, no query string, not a
// main page and not in a non-article namespace. Fragments are dropped.
func (c *Client) NameFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return c.nameFromURL(u)
}

func (c *Client) nameFromURL(u *url.URL) (string, bool) {
	if u.Scheme != c.base.Scheme || u.Host != c.base.Host || u.RawQuery != "" {
		return "", false
	}
	name, ok := strings.CutPrefix(u.Path, "/wiki/")
	if !ok {
		return "", false
	}
	name = page.Normalize(name)
	if name == "" || !c.forbidden.Allows(name) {
		return "", false
	}
	return name, true
}

// Outgoing returns the content pages linked from the article name.
func (c *Client) Outgoing(ctx context.Context, name string) ([]string, error) {
	return c.links(ctx, c.URLFor(name), "")
}

// Incoming returns the content pages that Special:WhatLinksHere lists for
// name. The list may hold pages without a direct link, such as those that
// reach name through a redirect.
func (c *Client) Incoming(ctx context.Context, name string) ([]string, error) {
	return c.links(ctx, c.URLFor("Special:WhatLinksHere/"+page.Normalize(name)), whatLinksHereList)
}

func (c *Client) links(ctx context.Context, pageURL, scope string) ([]string, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	hrefs, err := extractLinks(resp.Body, extractOptions{scopeID: scope, noNavBoxes: c.opts.NoNavBoxes})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	seen := make(map[string]struct{}, len(hrefs))
	var names []string
	for _, h := range hrefs {
		ref, err := url.Parse(h)
		if err != nil {
			continue
		}
		name, ok := c.nameFromURL(resp.Request.URL.ResolveReference(ref))
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// RandomName follows Special:Random and returns the article it lands on.
func (c *Client) RandomName(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, c.URLFor("Special:Random"))
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	name, ok := c.nameFromURL(resp.Request.URL)
	if !ok {
		return "", fmt.Errorf("random page redirected to %s", resp.Request.URL)
	}
	return name, nil
}
