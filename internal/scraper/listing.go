package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/metrics"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/parser"
	"github.com/maltedev/fabric-catalog/internal/ratelimit"
)

// ListingCrawler walks a paginated listing one page at a time and scrapes
// every discovered item in order. It issues one request at a time.
type ListingCrawler struct {
	fetcher   fetcher.Fetcher
	parser    parser.Parser
	items     *ItemScraper
	pacer     ratelimit.Pacer
	pageParam string
	itemDelay time.Duration
	pageDelay time.Duration
	maxPages  int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewListingCrawler(p parser.Parser, items *ItemScraper, pageParam string, opts Options) *ListingCrawler {
	opts = opts.withDefaults()
	return &ListingCrawler{
		fetcher:   opts.Fetcher,
		parser:    p,
		items:     items,
		pacer:     opts.Pacer,
		pageParam: pageParam,
		itemDelay: opts.ItemDelay,
		pageDelay: opts.PageDelay,
		maxPages:  opts.MaxPages,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "listing_crawler"),
	}
}

// crawl is the state of one listing walk.
type crawl struct {
	result *models.ListingResult
	seen   map[string]bool
}

// Crawl returns whatever it gathered. Fetch failures, an empty first page,
// the page cap and cancellation all end the walk with a partial result.
func (c *ListingCrawler) Crawl(ctx context.Context, listingURL string) *models.ListingResult {
	state := &crawl{
		result: &models.ListingResult{Items: []models.ListingItem{}, IsListing: true},
		seen:   make(map[string]bool),
	}

	c.logger.Info("starting listing crawl", "url", listingURL, "max_pages", c.maxPages)
	state.result.StopReason = c.walk(ctx, listingURL, state)
	state.result.TotalCount = len(state.result.Items)

	c.logger.Info("listing crawl finished",
		"url", listingURL,
		"pages", state.result.Pages,
		"items", state.result.TotalCount,
		"stop_reason", state.result.StopReason)

	return state.result
}

func (c *ListingCrawler) walk(ctx context.Context, listingURL string, state *crawl) models.StopReason {
	for page := 1; page <= c.maxPages; page++ {
		pageURL, err := BuildPageURL(listingURL, c.pageParam, page)
		if err != nil {
			c.logger.Warn("failed to build page URL", "url", listingURL, "page", page, "error", err)
			return models.StopFetchFailed
		}

		html, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return models.StopCanceled
			}
			c.logger.Warn("failed to fetch listing page",
				"url", pageURL,
				"page", page,
				"error_type", fetcher.ErrorType(err),
				"error", err)
			return models.StopFetchFailed
		}
		state.result.Pages++
		c.metrics.IncPage()

		listing, err := c.parser.ParseListingPage(html, pageURL, page)
		if err != nil || len(listing.Links) == 0 {
			c.logger.Info("no item links on listing page", "url", pageURL, "page", page)
			if page == 1 {
				return models.StopEmpty
			}
			return models.StopExhausted
		}

		c.logger.Info("processing listing page", "page", page, "links", len(listing.Links))

		fresh := 0
		for _, link := range listing.Links {
			if state.seen[link] {
				continue
			}
			state.seen[link] = true
			fresh++

			record := c.items.ScrapeItem(ctx, link)
			if record.HasName() {
				state.result.Items = append(state.result.Items, models.ListingItem{URL: link, Record: *record})
				c.metrics.IncItemKept()
			}

			if err := c.pacer.Pause(ctx, c.itemDelay); err != nil {
				return models.StopCanceled
			}
		}

		if fresh == 0 {
			c.logger.Info("listing page repeated known links", "url", pageURL, "page", page)
			return models.StopExhausted
		}
		if !listing.HasNext {
			return models.StopExhausted
		}
		if page == c.maxPages {
			break
		}

		if err := c.pacer.Pause(ctx, c.pageDelay); err != nil {
			return models.StopCanceled
		}
	}

	c.logger.Warn("listing crawl reached page limit", "url", listingURL, "max_pages", c.maxPages)
	return models.StopCapped
}
