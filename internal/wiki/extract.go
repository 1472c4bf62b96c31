package wiki

import (
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// whatLinksHereList is the id of the result list on Special:WhatLinksHere.
const whatLinksHereList = "mw-whatlinkshere-list"

type extractOptions struct {
	// scopeID limits extraction to the element with this id when the page
	// has one.
	scopeID    string
	noNavBoxes bool
}

// navTableClasses mark tables skipped when nav boxes are ignored.
var navTableClasses = []string{"infobox", "navbox", "wikitable", "sortable"}

// extractLinks returns the href of every anchor in the document, in order,
// leaving out the footer and, if requested, navigation boxes.
func extractLinks(r io.Reader, opts extractOptions) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	root := doc
	if opts.scopeID != "" {
		if n := findByID(doc, opts.scopeID); n != nil {
			root = n
		}
	}

	var hrefs []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skip(n, opts.noNavBoxes) {
				return
			}
			if n.Data == "a" {
				if href, ok := attr(n, "href"); ok && href != "" {
					hrefs = append(hrefs, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(root)
	return hrefs, nil
}

func skip(n *html.Node, noNavBoxes bool) bool {
	if n.Data == "footer" {
		return true
	}
	if !noNavBoxes {
		return false
	}
	switch n.Data {
	case "figcaption":
		return true
	case "div":
		role, _ := attr(n, "role")
		return role == "navigation" || role == "note"
	case "table":
		class, _ := attr(n, "class")
		return slices.ContainsFunc(strings.Fields(class), func(c string) bool {
			return slices.Contains(navTableClasses, c)
		})
	}
	return false
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
