package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxAnchorClimb = 2

var nextLabelPattern = regexp.MustCompile(`(?i)next|→|>|›|»`)

// ParseListingPage extracts item links and the next-page signal from the
// listing page numbered page.
func (p *FabricParser) ParseListingPage(html string, pageURL string, page int) (*ListingPage, error) {
	d, err := newDocument(html, pageURL)
	if err != nil {
		return nil, err
	}

	return &ListingPage{
		Links:   p.ExtractItemLinks(d.doc, d.page),
		HasNext: p.HasNextPage(d.doc, page),
	}, nil
}

// ExtractItemLinks returns the absolute item URLs on a listing page in
// first-seen order without duplicates. When no selector yields a link, text
// nodes carrying a product code are followed to their nearest anchor.
func (p *FabricParser) ExtractItemLinks(doc *goquery.Document, page *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	add := func(link string) {
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}

	for _, selector := range p.profile.ItemLinkSelectors {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			link, ok := ResolveURL(href, page)
			if !ok || !p.isItemLink(link) {
				return
			}
			add(link)
		})
	}

	if len(links) == 0 && p.profile.ProductCodePattern != nil {
		for _, n := range doc.Nodes {
			walkText(n, func(t *html.Node) {
				if !p.profile.ProductCodePattern.MatchString(t.Data) {
					return
				}
				href, ok := anchorForText(t)
				if !ok {
					return
				}
				if link, ok := ResolveURL(href, page); ok {
					add(link)
				}
			})
		}
	}

	return links
}

func (p *FabricParser) isItemLink(link string) bool {
	if p.isPageLink(link) {
		return false
	}
	if len(p.profile.ItemLinkMarkers) == 0 {
		return true
	}
	for _, marker := range p.profile.ItemLinkMarkers {
		if strings.Contains(link, marker) {
			return true
		}
	}
	return false
}

func (p *FabricParser) isPageLink(link string) bool {
	if p.profile.PageParam == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Query().Has(p.profile.PageParam)
}

// anchorForText finds the link for a product-code text node: the nearest
// enclosing anchor, else the first anchor inside the parent or grandparent.
func anchorForText(t *html.Node) (string, bool) {
	for n := t.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href, ok := attr(n, "href"); ok {
				return href, true
			}
		}
	}

	n := t.Parent
	for depth := 0; n != nil && depth < maxAnchorClimb; depth++ {
		if a := goquery.NewDocumentFromNode(n).Find("a[href]").First(); a.Length() > 0 {
			return a.AttrOr("href", ""), true
		}
		n = n.Parent
	}
	return "", false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasNextPage reports whether the listing advertises a page after current.
// An anchor labelled "next" by text, class or aria-label is a strong signal;
// a link carrying a page index above current is the fallback.
func (p *FabricParser) HasNextPage(doc *goquery.Document, current int) bool {
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.AttrOr("href", "")) == "" {
			return true
		}
		text := cleanText(a.Text())
		class := a.AttrOr("class", "")
		label := a.AttrOr("aria-label", "")
		if (text != "" && nextLabelPattern.MatchString(text)) ||
			strings.Contains(strings.ToLower(class), "next") ||
			strings.Contains(strings.ToLower(label), "next") {
			found = true
			return false
		}
		return true
	})
	if found || p.profile.PageParam == "" {
		return found
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		u, err := url.Parse(strings.TrimSpace(a.AttrOr("href", "")))
		if err != nil {
			return true
		}
		if n, err := strconv.Atoi(u.Query().Get(p.profile.PageParam)); err == nil && n > current {
			found = true
			return false
		}
		return true
	})
	return found
}
