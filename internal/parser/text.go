package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// rawText concatenates the text nodes under the selection, keeping the source
// line breaks. Content of script, style, noscript and template is skipped.
func rawText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(n, func(t *html.Node) {
			b.WriteString(t.Data)
		})
	}
	return b.String()
}

func walkText(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode && isHiddenElement(n) {
		return
	}
	if n.Type == html.TextNode {
		visit(n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, visit)
	}
}

func isHiddenElement(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textLines splits raw text into trimmed, non-empty lines.
func textLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
