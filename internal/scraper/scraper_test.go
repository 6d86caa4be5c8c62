package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/models"
)

// fakeFetcher serves pages from a function and records every requested URL.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	serve func(url string) (string, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.serve(url)
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingPacer records requested pauses without sleeping.
type recordingPacer struct {
	mu     sync.Mutex
	pauses []time.Duration
	failAt int
}

func (p *recordingPacer) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, d)
	if p.failAt > 0 && len(p.pauses) >= p.failAt {
		return context.Canceled
	}
	return ctx.Err()
}

func testOptions(f fetcher.Fetcher) Options {
	return Options{
		Fetcher: f,
		Pacer:   &recordingPacer{},
		Logger:  slog.Default(),
	}
}

func itemPage(name string) string {
	return fmt.Sprintf(`<html><head><title>%s | Fabric House</title></head><body>
<h1>%s</h1><div>€21.90/m excl. VAT | 1m to 5m</div><p>100%% Wool</p></body></html>`, name, name)
}

func listingPage(next bool, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"products\">")
	for _, l := range links {
		fmt.Fprintf(&b, `<div class="product-card"><a href="%s">Fabric</a></div>`, l)
	}
	b.WriteString("</div>")
	if next {
		b.WriteString(`<a class="next" href="?p=99">Next</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestClassify(t *testing.T) {
	site := Site{ListingSegments: []string{"/all-fabrics/", "/search"}, PageParam: "p"}

	tests := []struct {
		url      string
		expected PageKind
	}{
		{"https://fabrichouse.com/int/all-fabrics/wool", PageListing},
		{"https://fabrichouse.com/int/search?q=tweed", PageListing},
		{"https://fabrichouse.com/int/wool?p=3", PageListing},
		{"https://fabrichouse.com/int/product/tweed", PageItem},
		{"https://fabrichouse.com/int/wool?p=abc", PageListing},
		{"https://fabrichouse.com/int/wool?p=", PageListing},
		{"https://fabrichouse.com/int/wool?page=2", PageItem},
		{"::not a url", PageItem},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, site.Classify(tt.url))
		})
	}

	generic := NewGeneric(testOptions(&fakeFetcher{}))
	assert.Equal(t, PageItem, generic.Classify("https://shop.example/all-fabrics/?p=2"))
}

func TestBuildPageURL(t *testing.T) {
	got, err := BuildPageURL("https://fabrichouse.com/int/all-fabrics/wool?color=grey&p=7#top", "p", 2)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "2", u.Query().Get("p"))
	assert.Equal(t, "grey", u.Query().Get("color"))
	assert.Equal(t, "/int/all-fabrics/wool", u.Path)
	assert.Empty(t, u.Fragment)
}

func TestItemScrape_FetchFailureYieldsEmptyRecord(t *testing.T) {
	f := &fakeFetcher{serve: func(string) (string, error) {
		return "", fetcher.ErrNotFound{Err: fetcher.ErrStatus{StatusCode: 404}}
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/product/gone")
	require.NoError(t, err)
	require.NotNil(t, result.Item)
	assert.Nil(t, result.Listing)
	assert.True(t, result.Item.IsEmpty())
}

func TestItemScrape_UnknownNameKeptForDirectScrape(t *testing.T) {
	f := &fakeFetcher{serve: func(string) (string, error) {
		return `<html><body><p>no name here</p></body></html>`, nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/product/anon")
	require.NoError(t, err)
	require.NotNil(t, result.Item.Name)
	assert.Equal(t, models.UnknownName, *result.Item.Name)
}

func TestScrapeRejectsInvalidURL(t *testing.T) {
	s := NewGeneric(testOptions(&fakeFetcher{}))
	_, err := s.Scrape(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestListingCrawl_EndToEnd(t *testing.T) {
	var mu sync.Mutex
	var order []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.RequestURI())
		mu.Unlock()

		switch r.URL.Path {
		case "/int/all-fabrics/wool":
			switch r.URL.Query().Get("p") {
			case "1":
				fmt.Fprint(w, `<html><body>
<div class="product-card"><a href="/int/product/a">Wool A</a></div>
<div class="product-card"><a href="/int/product/b">Wool B</a></div>
<a class="next" href="/int/all-fabrics/wool?p=2">Next</a>
</body></html>`)
			case "2":
				fmt.Fprint(w, `<html><body>
<div class="product-card"><a href="/int/product/c">Wool C</a></div>
</body></html>`)
			default:
				http.NotFound(w, r)
			}
		case "/int/product/a", "/int/product/b", "/int/product/c":
			fmt.Fprint(w, itemPage("Wool "+strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/int/product/"))))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	pacer := &recordingPacer{}
	s := NewFabricHouse(Options{
		Fetcher:   fetcher.New(fetcher.Options{Timeout: 5 * time.Second}),
		Pacer:     pacer,
		ItemDelay: time.Second,
		PageDelay: 2 * time.Second,
		Logger:    slog.Default(),
	})

	result, err := s.Scrape(context.Background(), server.URL+"/int/all-fabrics/wool")
	require.NoError(t, err)
	require.True(t, result.IsListing())

	listing := result.Listing
	assert.True(t, listing.IsListing)
	assert.Equal(t, 3, listing.TotalCount)
	require.Len(t, listing.Items, 3)
	assert.Equal(t, 2, listing.Pages)
	assert.Equal(t, models.StopExhausted, listing.StopReason)

	assert.Equal(t, server.URL+"/int/product/a", listing.Items[0].URL)
	assert.Equal(t, "Wool A", *listing.Items[0].Name)
	assert.Equal(t, "Wool C", *listing.Items[2].Name)
	assert.InDelta(t, 21.90, *listing.Items[1].Price, 0.001)

	assert.Equal(t, []string{
		"/int/all-fabrics/wool?p=1",
		"/int/product/a",
		"/int/product/b",
		"/int/all-fabrics/wool?p=2",
		"/int/product/c",
	}, order)

	assert.Equal(t, []time.Duration{time.Second, time.Second, 2 * time.Second, time.Second}, pacer.pauses)
}

func TestListingCrawl_EmptyFirstPage(t *testing.T) {
	f := &fakeFetcher{serve: func(string) (string, error) {
		return `<html><body><p>No fabrics match</p><a class="next" href="?p=2">Next</a></body></html>`, nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/none")
	require.NoError(t, err)

	assert.Empty(t, result.Listing.Items)
	assert.Equal(t, 0, result.Listing.TotalCount)
	assert.Equal(t, models.StopEmpty, result.Listing.StopReason)
	assert.Len(t, f.Calls(), 1)
}

func TestListingCrawl_UnknownItemsExcluded(t *testing.T) {
	f := &fakeFetcher{serve: func(u string) (string, error) {
		switch {
		case strings.Contains(u, "/all-fabrics/"):
			return listingPage(false, "/int/product/named", "/int/product/anon", "/int/product/down"), nil
		case strings.HasSuffix(u, "/named"):
			return itemPage("Named Fabric"), nil
		case strings.HasSuffix(u, "/anon"):
			return `<html><body><p>nothing</p></body></html>`, nil
		}
		return "", fetcher.ErrConnection{Err: errors.New("reset")}
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/mixed")
	require.NoError(t, err)

	require.Len(t, result.Listing.Items, 1)
	assert.Equal(t, "https://fabrichouse.com/int/product/named", result.Listing.Items[0].URL)
	assert.Equal(t, 1, result.Listing.TotalCount)
}

func TestListingCrawl_PageCap(t *testing.T) {
	var pages []int
	f := &fakeFetcher{serve: func(raw string) (string, error) {
		u, _ := url.Parse(raw)
		if strings.Contains(u.Path, "/all-fabrics/") {
			var n int
			fmt.Sscanf(u.Query().Get("p"), "%d", &n)
			pages = append(pages, n)
			return listingPage(true, fmt.Sprintf("/int/product/item-%d", n)), nil
		}
		return itemPage("Endless " + u.Path), nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/endless")
	require.NoError(t, err)

	assert.Equal(t, models.StopCapped, result.Listing.StopReason)
	assert.Equal(t, MaxPages, result.Listing.Pages)
	assert.Equal(t, MaxPages, result.Listing.TotalCount)
	require.Len(t, pages, MaxPages)
	for i, p := range pages {
		assert.Equal(t, i+1, p)
	}
}

func TestListingCrawl_ConfiguredCapCannotExceedMax(t *testing.T) {
	opts := testOptions(&fakeFetcher{})
	opts.MaxPages = 500
	assert.Equal(t, MaxPages, opts.withDefaults().MaxPages)

	opts.MaxPages = 3
	assert.Equal(t, 3, opts.withDefaults().MaxPages)
}

func TestListingCrawl_FetchFailureKeepsPartialResult(t *testing.T) {
	f := &fakeFetcher{serve: func(raw string) (string, error) {
		switch {
		case strings.HasSuffix(raw, "p=1"):
			return listingPage(true, "/int/product/a"), nil
		case strings.HasSuffix(raw, "p=2"):
			return "", fetcher.ErrStatus{StatusCode: 503}
		}
		return itemPage("Fabric A"), nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/flaky")
	require.NoError(t, err)

	assert.Equal(t, models.StopFetchFailed, result.Listing.StopReason)
	assert.Equal(t, 1, result.Listing.TotalCount)
	assert.Equal(t, 1, result.Listing.Pages)
}

func TestListingCrawl_DeduplicatesAcrossPages(t *testing.T) {
	f := &fakeFetcher{serve: func(raw string) (string, error) {
		switch {
		case strings.HasSuffix(raw, "p=1"):
			return listingPage(true, "/int/product/a", "/int/product/b", "/int/product/a"), nil
		case strings.HasSuffix(raw, "p=2"):
			return listingPage(false, "/int/product/b", "/int/product/c"), nil
		}
		return itemPage("Fabric " + raw[strings.LastIndex(raw, "/")+1:]), nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/dupes")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Listing.TotalCount)

	itemCalls := 0
	for _, c := range f.Calls() {
		if strings.Contains(c, "/int/product/") {
			itemCalls++
		}
	}
	assert.Equal(t, 3, itemCalls)
}

func TestListingCrawl_StopsWhenPageAddsNothingNew(t *testing.T) {
	f := &fakeFetcher{serve: func(raw string) (string, error) {
		if strings.Contains(raw, "/all-fabrics/") {
			return listingPage(true, "/int/product/a", "/int/product/b"), nil
		}
		return itemPage("Fabric " + raw[strings.LastIndex(raw, "/")+1:]), nil
	}}
	s := NewFabricHouse(testOptions(f))

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/sticky")
	require.NoError(t, err)

	assert.Equal(t, models.StopExhausted, result.Listing.StopReason)
	assert.Equal(t, 2, result.Listing.Pages)
	assert.Equal(t, 2, result.Listing.TotalCount)
	assert.Len(t, f.Calls(), 4)
}

func TestListingCrawl_Canceled(t *testing.T) {
	f := &fakeFetcher{serve: func(raw string) (string, error) {
		if strings.Contains(raw, "/all-fabrics/") {
			return listingPage(true, "/int/product/a", "/int/product/b"), nil
		}
		return itemPage("Fabric"), nil
	}}
	opts := testOptions(f)
	opts.Pacer = &recordingPacer{failAt: 1}
	s := NewFabricHouse(opts)

	result, err := s.Scrape(context.Background(), "https://fabrichouse.com/int/all-fabrics/stop")
	require.NoError(t, err)

	assert.Equal(t, models.StopCanceled, result.Listing.StopReason)
	assert.Equal(t, 1, result.Listing.TotalCount)
}
