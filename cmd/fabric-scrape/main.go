package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/fabric-catalog/internal/config"
	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/images"
	"github.com/maltedev/fabric-catalog/internal/models"
	"github.com/maltedev/fabric-catalog/internal/queue"
	"github.com/maltedev/fabric-catalog/internal/scraper"
	"github.com/maltedev/fabric-catalog/internal/storage"
)

type result struct {
	*models.ScrapeResult
	Error  string            `json:"error,omitempty"`
	Images map[string]string `json:"images,omitempty"`
}

func main() {
	var (
		urls     = flag.String("urls", "", "Comma-separated list of product or listing URLs")
		file     = flag.String("file", "", "Seed file ({\"urls\": [...]}) or plain list with one URL per line")
		output   = flag.String("output", "", "Write JSON to this file instead of stdout")
		download = flag.Bool("download", false, "Download item images into IMAGES_DIR")
		retries  = flag.Int("retries", 1, "Retries for URLs that produced no data")
		maxPages = flag.Int("max-pages", 0, "Override SCRAPER_MAX_PAGES")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *maxPages > 0 {
		cfg.Scraper.MaxPages = *maxPages
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tasks := queue.NewInMemoryQueue()
	if err := loadTasks(tasks, *urls, *file); err != nil {
		logger.Error("failed to load urls", "error", err)
		os.Exit(1)
	}
	if tasks.Size() == 0 {
		fmt.Fprintln(os.Stderr, "No URLs to scrape. Use -urls or -file.")
		flag.Usage()
		os.Exit(1)
	}

	httpFetcher := fetcher.New(fetcher.Options{
		UserAgent:         cfg.Scraper.UserAgent,
		Timeout:           cfg.Scraper.Timeout,
		MaxBodyBytes:      cfg.Scraper.MaxBodyBytes,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Logger:            logger,
	})
	registry := scraper.DefaultRegistry(scraper.Options{
		Fetcher:   httpFetcher,
		ItemDelay: cfg.Scraper.ItemDelay,
		PageDelay: cfg.Scraper.PageDelay,
		MaxPages:  cfg.Scraper.MaxPages,
		Logger:    logger,
	})

	var resolver *images.Resolver
	if *download {
		store, err := storage.NewFileStore(cfg.Images.Dir)
		if err != nil {
			logger.Error("failed to prepare image directory", "error", err)
			os.Exit(1)
		}
		resolver, err = images.NewResolver(store, httpFetcher, images.Options{
			WebPrefix: cfg.Images.WebPrefix,
			CacheSize: cfg.Images.CacheSize,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("failed to create image resolver", "error", err)
			os.Exit(1)
		}
	}

	results := []result{}
	for {
		task, err := tasks.Pop(ctx)
		if err != nil {
			break
		}

		res := scrapeOne(ctx, registry, task.URL)
		if res.failed() && ctx.Err() == nil && retry(tasks, task, *retries, logger) {
			continue
		}

		if resolver != nil && res.ScrapeResult != nil {
			res.Images = downloadImages(ctx, resolver, res.ScrapeResult)
		}
		results = append(results, res)
	}

	if err := writeResults(results, *output); err != nil {
		logger.Error("failed to write results", "error", err)
		os.Exit(1)
	}
}

func scrapeOne(ctx context.Context, registry *scraper.Registry, rawURL string) result {
	sc, err := registry.Select(rawURL)
	if err != nil {
		return result{ScrapeResult: &models.ScrapeResult{URL: rawURL}, Error: err.Error()}
	}
	res, err := sc.Scrape(ctx, rawURL)
	if err != nil {
		return result{ScrapeResult: &models.ScrapeResult{URL: rawURL}, Error: err.Error()}
	}
	return result{ScrapeResult: res}
}

func (r result) failed() bool {
	if r.Error != "" {
		return false
	}
	return !r.IsListing() && r.Item.IsEmpty()
}

// retry puts a failed task back behind the fresh ones. It reports false when
// the task is out of retries or the queue refuses it.
func retry(q queue.Queue, task *queue.Task, maxRetries int, logger *slog.Logger) bool {
	if task.Retries >= maxRetries {
		return false
	}
	task.Retries++
	task.Priority = -task.Retries
	if err := q.Push(task); err != nil {
		logger.Warn("failed to requeue url", "url", task.URL, "error", err)
		return false
	}
	logger.Info("retrying url", "url", task.URL, "retry", task.Retries)
	return true
}

func downloadImages(ctx context.Context, resolver *images.Resolver, res *models.ScrapeResult) map[string]string {
	paths := map[string]string{}
	add := func(itemURL string, rec *models.Record) {
		if rec == nil || rec.ImageURL == nil {
			return
		}
		if path, err := resolver.Resolve(ctx, *rec.ImageURL, rec.NameOr(models.UnknownName)); err == nil {
			paths[itemURL] = path
		}
	}

	if res.IsListing() {
		for i := range res.Listing.Items {
			add(res.Listing.Items[i].URL, &res.Listing.Items[i].Record)
		}
	} else {
		add(res.URL, res.Item)
	}
	return paths
}

func loadTasks(q queue.Queue, urls, file string) error {
	var list []string
	if urls != "" {
		list = append(list, strings.Split(urls, ",")...)
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		if seeds, err := config.ParseSeeds(data); err == nil && len(seeds.URLs) > 0 {
			list = append(list, seeds.URLs...)
		} else {
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if line != "" && !strings.HasPrefix(line, "#") {
					list = append(list, line)
				}
			}
		}
	}

	seen := make(map[string]bool)
	for i, u := range list {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		if err := q.Push(&queue.Task{ID: fmt.Sprintf("task-%d", i), URL: u}); err != nil {
			return err
		}
	}
	return nil
}

func writeResults(results []result, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func logLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
