package parser

import (
	"regexp"
)

// Profile holds the site-specific heuristics the FabricParser applies.
type Profile struct {
	Name string

	NameSelectors        []string
	PricePatterns        []*regexp.Regexp
	PriceSelectors       []string
	CompositionPatterns  []*regexp.Regexp
	ImageSelectors       []string
	DescriptionSelectors []string
	WidthPattern         *regexp.Regexp
	WeightPattern        *regexp.Regexp

	ItemLinkSelectors  []string
	ItemLinkMarkers    []string
	PageParam          string
	ProductCodePattern *regexp.Regexp

	DefaultCurrency string
}

var (
	fabricCompositionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(100%\s+(?:Virgin\s+)?(?:Wool|Cotton|Silk|Linen|Cashmere|Bamboo|Modal|Tencel|Viscose)[^€\n]*)`),
		regexp.MustCompile(`(?i)(\d+%\s+(?:Virgin\s+)?(?:Wool|Cotton|Silk|Linen|Cashmere)[^€\n]*)`),
	}

	genericCompositionPattern = regexp.MustCompile(`(?i)((?:\d+%\s*(?:Wool|Cotton|Linen|Silk)[\s/]*)+)`)

	defaultImageSelectors = []string{
		`img[src*="product"]`,
		`.product-image img`,
		`.product-photo img`,
		`main img[src*="product"]`,
		`img[class*="product"]`,
		`[class*="product"] img`,
		`img[itemprop="image"]`,
		`.gallery img`,
		`img[data-src*="product"]`,
	}

	defaultPriceSelectors = []string{
		`[class*="price"]`,
		`[id*="price"]`,
		`.product-price`,
		`.price`,
	}
)

// GenericProfile is used for any site without dedicated heuristics. It has no
// listing support and infers currency from the price symbol.
func GenericProfile() *Profile {
	return &Profile{
		Name:                "generic",
		PriceSelectors:      defaultPriceSelectors,
		CompositionPatterns: append(append([]*regexp.Regexp{}, fabricCompositionPatterns...), genericCompositionPattern),
		ImageSelectors:      defaultImageSelectors,
		DescriptionSelectors: []string{
			`[class*="description"]`,
		},
		WidthPattern:    regexp.MustCompile(`(?i)Width[:\s]+(\d+\s*cm)`),
		WeightPattern:   regexp.MustCompile(`(?i)Weight[:\s]+(\d+\s*g/m)`),
		DefaultCurrency: "USD",
	}
}

// FabricHouseProfile covers fabrichouse.com item and listing pages.
func FabricHouseProfile() *Profile {
	return &Profile{
		Name: "fabrichouse",
		NameSelectors: []string{
			`.product-name`,
			`.product-title`,
			`[class*="product-name"]`,
			`[class*="product-title"]`,
		},
		PricePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)€(\d+[.,]\d+)/m[^€]*?1m\s*to\s*5m`),
			regexp.MustCompile(`(?is)1m\s*to\s*5m[^€]*?€(\d+[.,]\d+)`),
			regexp.MustCompile(`(?is)€(\d+[.,]\d+)[^€]*?\|[^€]*?1m\s*to\s*5m`),
		},
		CompositionPatterns: fabricCompositionPatterns,
		ImageSelectors:      append(append([]string{}, defaultImageSelectors...), `img[alt*="F"]`),
		DescriptionSelectors: []string{
			`.product-description`,
			`.description`,
			`[class*="description"]`,
		},
		WidthPattern:  regexp.MustCompile(`(?i)Width[:\s]+(\d+\s*cm)`),
		WeightPattern: regexp.MustCompile(`(?i)Weight[:\s]+(\d+\s*g/m)`),
		ItemLinkSelectors: []string{
			`a[href*="/product/"]`,
			`a[href*="/fabric/"]`,
			`a[href*="/int/all-fabrics/"]`,
			`.product-card a`,
			`.product-item a`,
			`[class*="product"] a[href]`,
		},
		ItemLinkMarkers:    []string{"/product/", "/fabric/"},
		PageParam:          "p",
		ProductCodePattern: regexp.MustCompile(`F\d{6,10}`),
		DefaultCurrency:    "EUR",
	}
}
