package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/parser"
)

// SiteScraper routes a URL to the item scraper or the listing crawler
// according to its Site rules.
type SiteScraper struct {
	name     string
	site     Site
	items    *ItemScraper
	listings *ListingCrawler
	logger   *slog.Logger
}

// NewSiteScraper builds a scraper for one source. A Site without a page
// parameter has no listing support and treats every URL as an item page.
func NewSiteScraper(name string, site Site, profile *parser.Profile, opts Options) *SiteScraper {
	opts = opts.withDefaults()
	p := parser.NewFabricParser(profile)
	items := NewItemScraper(opts.Fetcher, p, opts.Logger)

	s := &SiteScraper{
		name:   name,
		site:   site,
		items:  items,
		logger: opts.Logger.With("component", "scraper", "scraper", name),
	}
	if site.PageParam != "" {
		s.listings = NewListingCrawler(p, items, site.PageParam, opts)
	}
	return s
}

// NewGeneric returns the fallback scraper: item pages only.
func NewGeneric(opts Options) *SiteScraper {
	return NewSiteScraper("generic", Site{}, parser.GenericProfile(), opts)
}

// NewFabricHouse returns the scraper for fabrichouse.com.
func NewFabricHouse(opts Options) *SiteScraper {
	site := Site{
		ListingSegments: []string{"/all-fabrics/", "/search"},
		PageParam:       "p",
	}
	return NewSiteScraper("fabrichouse", site, parser.FabricHouseProfile(), opts)
}

func (s *SiteScraper) Name() string {
	return s.name
}

func (s *SiteScraper) Classify(url string) PageKind {
	if s.listings == nil {
		return PageItem
	}
	return s.site.Classify(url)
}

func (s *SiteScraper) Scrape(ctx context.Context, url string) (*models.ScrapeResult, error) {
	if _, err := ValidateURL(url); err != nil {
		return nil, err
	}

	result := &models.ScrapeResult{URL: url, ScrapedAt: time.Now()}

	kind := s.Classify(url)
	s.logger.Debug("scraping", "url", url, "kind", kind.String())

	if kind == PageListing {
		result.Listing = s.listings.Crawl(ctx, url)
		return result, nil
	}

	result.Item = s.items.ScrapeItem(ctx, url)
	return result, nil
}
