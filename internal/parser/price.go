package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	symbolPricePattern = regexp.MustCompile(`([$£€])?\s*(\d+(?:[.,]\d{3})*[.,]\d{2})\b`)
	codePricePattern   = regexp.MustCompile(`(\d+(?:[.,]\d{3})*[.,]\d{2})\s*(USD|EUR|GBP)\b`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
}

// ExtractPrice finds the first currency amount in text. The currency is
// returned when a symbol or an ISO code accompanies the amount.
func ExtractPrice(text string) (float64, string, bool) {
	if text == "" {
		return 0, "", false
	}

	if m := symbolPricePattern.FindStringSubmatch(text); m != nil {
		if amount, err := parseAmount(m[2]); err == nil {
			currency := currencySymbols[m[1]]
			if currency == "" {
				currency = currencyFromText(text)
			}
			return amount, currency, true
		}
	}

	if m := codePricePattern.FindStringSubmatch(text); m != nil {
		if amount, err := parseAmount(m[1]); err == nil {
			return amount, m[2], true
		}
	}

	return 0, "", false
}

// parseAmount reads a decimal amount written with either separator. A
// separator followed by exactly two trailing digits is the decimal point;
// any other separators are grouping and dropped.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndexAny(s, ".,")
	if idx >= 0 && len(s)-idx-1 == 2 {
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:idx])
		s = intPart + "." + s[idx+1:]
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func currencyFromText(text string) string {
	switch {
	case strings.Contains(text, "$"):
		return "USD"
	case strings.Contains(text, "£"):
		return "GBP"
	case strings.Contains(text, "€"):
		return "EUR"
	}
	for _, code := range []string{"USD", "EUR", "GBP"} {
		if strings.Contains(text, code) {
			return code
		}
	}
	return ""
}
