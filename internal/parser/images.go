package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minImageSide     = 100
	unsizedImageArea = 10000
)

var (
	imageSourceAttrs  = []string{"src", "data-src", "data-lazy-src", "data-original"}
	imageURLBlocklist = []string{"icon", "logo", "avatar", "badge", "button"}
)

// ResolveURL turns a reference found on pageURL into an absolute http(s) URL.
// Protocol-relative references get https, root-relative ones get the page's
// scheme and host, anything else is resolved against the page.
func ResolveURL(ref string, page *url.URL) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}

	var resolved string
	switch {
	case strings.HasPrefix(ref, "//"):
		resolved = "https:" + ref
	case strings.HasPrefix(ref, "/"):
		if page == nil {
			return "", false
		}
		resolved = page.Scheme + "://" + page.Host + ref
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		resolved = ref
	default:
		if page == nil {
			return "", false
		}
		rel, err := url.Parse(ref)
		if err != nil {
			return "", false
		}
		resolved = page.ResolveReference(rel).String()
	}

	u, err := url.Parse(resolved)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return resolved, true
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range imageSourceAttrs {
		if v, ok := img.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
	}
	return ""
}

func isBlockedImage(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	for _, word := range imageURLBlocklist {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func dimension(img *goquery.Selection, attr string) (int, bool) {
	v, ok := img.Attr(attr)
	if !ok {
		return 0, false
	}
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// imageCandidate returns the absolute URL of img if it passes the content
// filters: not blocklisted and, when both dimensions are declared, at least
// minImageSide pixels on each side.
func imageCandidate(img *goquery.Selection, page *url.URL) (string, bool) {
	src, ok := ResolveURL(imageSource(img), page)
	if !ok {
		return "", false
	}
	if isBlockedImage(src) {
		return "", false
	}

	w, hasW := dimension(img, "width")
	h, hasH := dimension(img, "height")
	if hasW && hasH && (w < minImageSide || h < minImageSide) {
		return "", false
	}
	return src, true
}

func (p *FabricParser) extractImageURL(doc *goquery.Document, page *url.URL) (string, bool) {
	for _, selector := range p.profile.ImageSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			if !img.Is("img") {
				return true
			}
			if src, ok := imageCandidate(img, page); ok {
				found = src
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}

	return largestImage(doc, page)
}

// largestImage picks the image with the biggest declared area. Images without
// both dimensions count as unsizedImageArea; ties keep the first seen.
func largestImage(doc *goquery.Document, page *url.URL) (string, bool) {
	var best string
	bestArea := -1

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := ResolveURL(imageSource(img), page)
		if !ok || isBlockedImage(src) {
			return
		}

		area := unsizedImageArea
		w, hasW := dimension(img, "width")
		h, hasH := dimension(img, "height")
		if hasW && hasH {
			area = w * h
		}

		if area > bestArea {
			best = src
			bestArea = area
		}
	})

	return best, best != ""
}
