package scraper

import (
	"context"
	"log/slog"

	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/parser"
)

// ItemScraper fetches one item page and runs the field extractors over it.
type ItemScraper struct {
	fetcher fetcher.Fetcher
	parser  parser.Parser
	logger  *slog.Logger
}

func NewItemScraper(f fetcher.Fetcher, p parser.Parser, logger *slog.Logger) *ItemScraper {
	return &ItemScraper{
		fetcher: f,
		parser:  p,
		logger:  logger.With("component", "item_scraper"),
	}
}

// ScrapeItem never fails: an unreachable page yields an empty record, which
// callers tell apart from a fetched page by Record.IsEmpty.
func (s *ItemScraper) ScrapeItem(ctx context.Context, url string) *models.Record {
	html, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("failed to fetch item page",
			"url", url,
			"error_type", fetcher.ErrorType(err),
			"error", err)
		return &models.Record{}
	}

	record, err := s.parser.ParseProductPage(html, url)
	if err != nil {
		s.logger.Warn("failed to parse item page", "url", url, "error", err)
		return &models.Record{}
	}

	s.logger.Debug("scraped item", "url", url, "name", record.NameOr(""))
	return record
}
