package parser

import (
	"github.com/maltedev/fabric-catalog/internal/models"
)

// Parser turns fetched markup into normalized records and listing links.
type Parser interface {
	ParseProductPage(html string, pageURL string) (*models.Record, error)
	ParseListingPage(html string, pageURL string, page int) (*ListingPage, error)
}

// ListingPage is what one listing page yields: the item links in discovery
// order, already deduplicated, and whether a following page is advertised.
type ListingPage struct {
	Links   []string
	HasNext bool
}
