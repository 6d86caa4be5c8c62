package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/fabric-catalog/internal/models"
)

const maxCompositionLength = 100

var capsNameLine = regexp.MustCompile(`^[A-Z][A-Z\s,&\-.()]+$`)

// FabricParser extracts catalog records with the heuristics of one Profile.
type FabricParser struct {
	profile *Profile
}

func NewFabricParser(profile *Profile) *FabricParser {
	if profile == nil {
		profile = GenericProfile()
	}
	return &FabricParser{profile: profile}
}

// document is one parsed page plus the text views the extractors share.
type document struct {
	doc  *goquery.Document
	page *url.URL
	raw  string
}

func newDocument(html, pageURL string) (*document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		page = nil
	}
	return &document{doc: doc, page: page, raw: rawText(doc.Selection)}, nil
}

// ParseProductPage extracts every field it can. A field whose heuristics
// find nothing, or fail, is left nil; the others are unaffected.
func (p *FabricParser) ParseProductPage(html string, pageURL string) (*models.Record, error) {
	d, err := newDocument(html, pageURL)
	if err != nil {
		return nil, err
	}

	record := &models.Record{}

	guard(func() {
		record.Name = models.StringPtr(p.extractName(d))
	})

	guard(func() {
		if price, currency, ok := p.extractPrice(d); ok {
			record.Price = models.FloatPtr(price)
			if currency != "" {
				record.Currency = models.StringPtr(currency)
			}
		}
	})

	guard(func() {
		if composition, ok := p.extractComposition(d); ok {
			record.Composition = models.StringPtr(composition)
		}
	})

	guard(func() {
		if imageURL, ok := p.extractImageURL(d.doc, d.page); ok {
			record.ImageURL = models.StringPtr(imageURL)
		}
	})

	guard(func() {
		if description, ok := p.extractDescription(d); ok {
			record.Description = models.StringPtr(description)
		}
	})

	guard(func() {
		if width, ok := firstGroup(p.profile.WidthPattern, d.raw); ok {
			record.Width = models.StringPtr(width)
		}
	})

	guard(func() {
		if weight, ok := firstGroup(p.profile.WeightPattern, d.raw); ok {
			record.Weight = models.StringPtr(weight)
		}
	})

	if record.Currency == nil && p.profile.DefaultCurrency != "" {
		record.Currency = models.StringPtr(p.profile.DefaultCurrency)
	}

	return record, nil
}

// guard isolates one extractor so a panic only loses that field.
func guard(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}

func (p *FabricParser) extractName(d *document) string {
	var name string
	d.doc.Find("h1").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		text := cleanText(rawText(h))
		if text != "" && text != models.UnknownName {
			name = text
			return false
		}
		return true
	})
	if name != "" {
		return name
	}

	if title := cleanText(rawText(d.doc.Find("title").First())); title != "" {
		if first := strings.TrimSpace(strings.Split(title, "|")[0]); first != "" {
			return first
		}
	}

	for _, selector := range p.profile.NameSelectors {
		if text := cleanText(rawText(d.doc.Find(selector).First())); text != "" {
			return text
		}
	}

	for _, line := range textLines(d.raw) {
		if len(line) > 15 && !strings.ContainsAny(line, "%€$£") && capsNameLine.MatchString(line) {
			return line
		}
	}

	return models.UnknownName
}

// extractPrice tries the profile's patterns over the page text, then the
// generic amount pattern over price-styled elements and finally the whole page.
func (p *FabricParser) extractPrice(d *document) (float64, string, bool) {
	for _, pattern := range p.profile.PricePatterns {
		m := pattern.FindStringSubmatch(d.raw)
		if m == nil {
			continue
		}
		if amount, err := parseAmount(m[1]); err == nil {
			return amount, p.profile.DefaultCurrency, true
		}
	}

	for _, selector := range p.profile.PriceSelectors {
		text := cleanText(rawText(d.doc.Find(selector).First()))
		if amount, currency, ok := ExtractPrice(text); ok {
			return amount, currency, true
		}
	}

	if amount, currency, ok := ExtractPrice(cleanText(d.raw)); ok {
		if len(p.profile.PricePatterns) > 0 {
			currency = p.profile.DefaultCurrency
		}
		return amount, currency, true
	}

	return 0, "", false
}

// ExtractComposition applies the composition patterns of the profile to text.
func (p *FabricParser) ExtractComposition(text string) (string, bool) {
	for _, pattern := range p.profile.CompositionPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		composition := cleanText(m[1])
		composition = strings.TrimRight(composition, " ,;/")
		if composition != "" && len(composition) <= maxCompositionLength {
			return composition, true
		}
	}
	return "", false
}

func (p *FabricParser) extractComposition(d *document) (string, bool) {
	return p.ExtractComposition(d.raw)
}

func (p *FabricParser) extractDescription(d *document) (string, bool) {
	for _, selector := range p.profile.DescriptionSelectors {
		if text := cleanText(rawText(d.doc.Find(selector).First())); text != "" {
			return text, true
		}
	}
	return "", false
}

func firstGroup(pattern *regexp.Regexp, text string) (string, bool) {
	if pattern == nil {
		return "", false
	}
	m := pattern.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
