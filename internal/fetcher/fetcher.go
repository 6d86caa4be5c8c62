package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/maltedev/fabric-catalog/internal/metrics"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 5 * 1024 * 1024
)

// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Fetcher retrieves documents for the scrapers.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	MaxBodyBytes      int64
	RequestsPerSecond float64
	// Client replaces the default client; its Timeout is overridden.
	Client  *http.Client
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// HTTPFetcher issues a single GET per call with a fixed identity header. It never retries.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	limiter      *rate.Limiter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func New(opts Options) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.Timeout = opts.Timeout

	f := &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "fetcher"),
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Fetch returns the decoded body of url as text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, _, err := f.get(ctx, url, "page")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchBytes returns the raw body of url and its declared content type.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string) ([]byte, string, error) {
	return f.get(ctx, url, "image")
}

func (f *HTTPFetcher) get(ctx context.Context, url, kind string) ([]byte, string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	f.metrics.IncFetch(kind)
	start := time.Now()
	body, contentType, err := f.do(req)
	f.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		f.metrics.IncFetchError(ErrorType(err))
		f.logger.Debug("fetch failed", "url", url, "kind", kind, "error", err)
		return nil, "", err
	}
	return body, contentType, nil
}

func (f *HTTPFetcher) do(req *http.Request) ([]byte, string, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", classifyStatus(resp.StatusCode)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
