package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/maltedev/fabric-catalog/internal/database"
	"github.com/maltedev/fabric-catalog/internal/metrics"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/ratelimit"
	"github.com/maltedev/fabric-catalog/internal/scraper"
)

var (
	// ErrExtractionFailed is returned when an item page yielded no fields at all.
	ErrExtractionFailed = errors.New("failed to extract fabric data")
	// ErrNoItems is returned when a listing produced no named items.
	ErrNoItems = errors.New("no fabrics found on listing")
)

type Selector interface {
	Select(rawURL string) (scraper.Scraper, error)
}

type Store interface {
	GetByURL(ctx context.Context, url string) (*models.Fabric, error)
	Create(ctx context.Context, url, origin string, rec *models.Record, imagePath *string) (*models.Fabric, error)
	UpdateFromRecord(ctx context.Context, id int64, rec *models.Record, imagePath *string) (*models.Fabric, error)
}

type ImageResolver interface {
	Resolve(ctx context.Context, imageURL, name string) (string, error)
}

// RunRecorder persists sync pass bookkeeping.
type RunRecorder interface {
	Start(ctx context.Context, seeds int) (*database.SyncRun, error)
	Finish(ctx context.Context, run *database.SyncRun) error
}

type Options struct {
	Images  ImageResolver
	Runs    RunRecorder
	Limiter ratelimit.RateLimiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service turns scrape results into stored fabrics.
type Service struct {
	selector Selector
	store    Store
	images   ImageResolver
	runs     RunRecorder
	limiter  ratelimit.RateLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(selector Selector, store Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewFixedRateLimiter(0)
	}
	return &Service{
		selector: selector,
		store:    store,
		images:   opts.Images,
		runs:     opts.Runs,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "catalog"),
	}
}

// Outcome describes what a single URL produced.
type Outcome struct {
	URL        string            `json:"url"`
	IsListing  bool              `json:"is_listing"`
	StopReason models.StopReason `json:"stop_reason,omitempty"`
	Fabrics    []*models.Fabric  `json:"fabrics"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Existing   bool              `json:"existing,omitempty"`
}

// First returns the first stored fabric, or nil.
func (o *Outcome) First() *models.Fabric {
	if o == nil || len(o.Fabrics) == 0 {
		return nil
	}
	return o.Fabrics[0]
}

// Import stores the fabric behind rawURL unless it is already in the
// catalog, in which case the stored row is returned unchanged.
func (s *Service) Import(ctx context.Context, rawURL string) (*Outcome, error) {
	existing, err := s.store.GetByURL(ctx, rawURL)
	if err == nil {
		return &Outcome{URL: rawURL, Fabrics: []*models.Fabric{existing}, Existing: true}, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	return s.ProcessURL(ctx, rawURL)
}

// ProcessURL scrapes rawURL and creates or refreshes every fabric it yields.
func (s *Service) ProcessURL(ctx context.Context, rawURL string) (*Outcome, error) {
	sc, err := s.selector.Select(rawURL)
	if err != nil {
		return nil, err
	}

	result, err := sc.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{URL: rawURL, Fabrics: []*models.Fabric{}}

	if result.IsListing() {
		outcome.IsListing = true
		outcome.StopReason = result.Listing.StopReason

		// a crawl cut short by cancellation still keeps what it gathered
		storeCtx := ctx
		if ctx.Err() != nil && len(result.Listing.Items) > 0 {
			s.logger.Warn("listing crawl interrupted, storing partial result",
				"url", rawURL,
				"items", len(result.Listing.Items),
				"stop_reason", result.Listing.StopReason)
			storeCtx = context.WithoutCancel(ctx)
		}

		for i := range result.Listing.Items {
			item := &result.Listing.Items[i]
			if err := s.save(storeCtx, outcome, item.URL, &item.Record); err != nil {
				s.logger.Error("failed to store listing item", "url", item.URL, "error", err)
			}
		}
		if len(outcome.Fabrics) == 0 {
			return outcome, ErrNoItems
		}
		return outcome, nil
	}

	if result.Item.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, rawURL)
	}
	if err := s.save(ctx, outcome, rawURL, result.Item); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Service) save(ctx context.Context, outcome *Outcome, itemURL string, rec *models.Record) error {
	existing, err := s.store.GetByURL(ctx, itemURL)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	var imagePath *string
	if existing == nil || existing.ImagePath == nil {
		imagePath = s.resolveImage(ctx, rec)
	}

	if existing != nil {
		fabric, err := s.store.UpdateFromRecord(ctx, existing.ID, rec, imagePath)
		if err != nil {
			return err
		}
		outcome.Fabrics = append(outcome.Fabrics, fabric)
		outcome.Updated++
		return nil
	}

	fabric, err := s.store.Create(ctx, itemURL, Origin(itemURL), rec, imagePath)
	if err != nil {
		return err
	}
	outcome.Fabrics = append(outcome.Fabrics, fabric)
	outcome.Created++
	return nil
}

func (s *Service) resolveImage(ctx context.Context, rec *models.Record) *string {
	if s.images == nil || rec.ImageURL == nil {
		return nil
	}
	path, err := s.images.Resolve(ctx, *rec.ImageURL, rec.NameOr(models.UnknownName))
	if err != nil {
		s.logger.Warn("image not stored", "image_url", *rec.ImageURL, "error", err)
		return nil
	}
	return &path
}

// Origin is the URL's host without a leading www.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return scraper.NormalizeHost(u.Hostname())
}

// PassReport summarizes one sync pass.
type PassReport struct {
	Seeds    int           `json:"seeds"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Canceled bool          `json:"canceled,omitempty"`
}

// RunPass processes seeds one after another. A failing seed is logged and
// counted, and the pass moves on.
func (s *Service) RunPass(ctx context.Context, seeds []string) PassReport {
	start := time.Now()
	report := PassReport{Seeds: len(seeds)}

	run := s.startRun(ctx, len(seeds))
	s.logger.Info("sync pass started", "seeds", len(seeds))

	for _, seed := range seeds {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			report.Canceled = true
			break
		}

		outcome, err := s.ProcessURL(ctx, seed)
		if outcome != nil {
			report.Created += outcome.Created
			report.Updated += outcome.Updated
		}
		if err != nil {
			report.Failed++
			s.logger.Error("sync failed for url", "url", seed, "error", err)
			continue
		}
		s.logger.Info("synced url",
			"url", seed,
			"created", outcome.Created,
			"updated", outcome.Updated,
			"listing", outcome.IsListing)
	}

	report.Duration = time.Since(start)
	status := database.SyncStatusCompleted
	if report.Canceled {
		status = database.SyncStatusFailed
	}
	s.finishRun(run, report, status)
	s.metrics.ObserveSync(status, report.Duration)

	s.logger.Info("sync pass finished",
		"seeds", report.Seeds,
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
		"duration", report.Duration)

	return report
}

func (s *Service) startRun(ctx context.Context, seeds int) *database.SyncRun {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.Start(ctx, seeds)
	if err != nil {
		s.logger.Error("failed to record sync start", "error", err)
		return nil
	}
	return run
}

func (s *Service) finishRun(run *database.SyncRun, report PassReport, status string) {
	if run == nil {
		return
	}
	run.Created = report.Created
	run.Updated = report.Updated
	run.Failed = report.Failed
	run.Status = status

	// the pass context may already be canceled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Finish(ctx, run); err != nil {
		s.logger.Error("failed to record sync finish", "error", err)
	}
}
