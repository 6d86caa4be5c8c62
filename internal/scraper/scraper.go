package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/metrics"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/ratelimit"
)

var (
	ErrInvalidURL = errors.New("invalid URL")
	ErrNoScraper  = errors.New("no scraper available for URL")
)

const (
	DefaultItemDelay = 1 * time.Second
	DefaultPageDelay = 2 * time.Second
	MaxPages         = 100
)

// Scraper scrapes one URL into either an item record or a listing result.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context, url string) (*models.ScrapeResult, error)
}

// Options carries the collaborators and politeness settings shared by all scrapers.
type Options struct {
	Fetcher   fetcher.Fetcher
	Pacer     ratelimit.Pacer
	ItemDelay time.Duration
	PageDelay time.Duration
	MaxPages  int
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Fetcher == nil {
		o.Fetcher = fetcher.New(fetcher.Options{Metrics: o.Metrics, Logger: o.Logger})
	}
	if o.Pacer == nil {
		o.Pacer = ratelimit.SleepPacer{}
	}
	if o.MaxPages <= 0 || o.MaxPages > MaxPages {
		o.MaxPages = MaxPages
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type PageKind int

const (
	PageItem PageKind = iota
	PageListing
)

func (k PageKind) String() string {
	if k == PageListing {
		return "listing"
	}
	return "item"
}

// Site describes how a source lays out its listing URLs.
type Site struct {
	ListingSegments []string
	PageParam       string
}

// Classify decides from the URL alone whether it is a listing page. Anything
// that cannot be parsed or matched is an item page.
func (s Site) Classify(rawURL string) PageKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageItem
	}
	for _, segment := range s.ListingSegments {
		if strings.Contains(u.Path, segment) {
			return PageListing
		}
	}
	if s.PageParam != "" && u.Query().Has(s.PageParam) {
		return PageListing
	}
	return PageItem
}

// BuildPageURL sets the page parameter of listingURL to page, replacing any
// existing value, and drops the fragment.
func BuildPageURL(listingURL, param string, page int) (string, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}
