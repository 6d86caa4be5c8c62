package images

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/maltedev/fabric-catalog/internal/metrics"
	"github.com/maltedev/fabric-catalog/internal/storage"
)

// ErrNoImage is returned whenever an image could not be resolved to a stored file.
var ErrNoImage = errors.New("no image")

const (
	maxNameRunes     = 50
	defaultExtension = ".jpg"
	defaultCacheSize = 1024
)

// Downloader fetches raw image bytes and their declared content type.
type Downloader interface {
	FetchBytes(ctx context.Context, url string) ([]byte, string, error)
}

type Options struct {
	// WebPrefix is prepended to cache keys to form the returned path.
	WebPrefix string
	CacheSize int
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Resolver downloads product images once per cache key and serves repeat
// requests from the file store.
type Resolver struct {
	store      *storage.FileStore
	downloader Downloader
	known      *lru.Cache[string, struct{}]
	group      singleflight.Group
	webPrefix  string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewResolver(store *storage.FileStore, downloader Downloader, opts Options) (*Resolver, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	known, err := lru.New[string, struct{}](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	return &Resolver{
		store:      store,
		downloader: downloader,
		known:      known,
		webPrefix:  strings.TrimRight(opts.WebPrefix, "/"),
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "image_resolver"),
	}, nil
}

// CacheKey derives the file name for an image: the sanitized display name,
// the first 8 hex digits of the URL's MD5 and the URL's extension.
func CacheKey(imageURL, name string) string {
	sum := md5.Sum([]byte(imageURL))
	hash := hex.EncodeToString(sum[:])[:8]
	return sanitizeName(name) + "_" + hash + extension(imageURL)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	safe := []rune(strings.TrimSpace(b.String()))
	if len(safe) > maxNameRunes {
		safe = safe[:maxNameRunes]
	}

	out := strings.ReplaceAll(string(safe), " ", "_")
	if out == "" {
		return "image"
	}
	return out
}

func extension(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return defaultExtension
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return defaultExtension
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return defaultExtension
		}
	}
	return ext
}

// Resolve returns the web path of the stored image for imageURL, downloading
// it only when no file exists for its cache key.
func (r *Resolver) Resolve(ctx context.Context, imageURL, name string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", ErrNoImage
	}

	key := CacheKey(imageURL, name)

	if ok, err := r.exists(key); err == nil && ok {
		r.metrics.IncImageCacheHit()
		return r.webPath(key), nil
	}

	_, err, _ := r.group.Do(key, func() (interface{}, error) {
		if ok, err := r.exists(key); err == nil && ok {
			r.metrics.IncImageCacheHit()
			return nil, nil
		}
		return nil, r.download(ctx, imageURL, key)
	})
	if err != nil {
		r.logger.Warn("failed to download image", "url", imageURL, "error", err)
		return "", fmt.Errorf("%w: %v", ErrNoImage, err)
	}

	return r.webPath(key), nil
}

func (r *Resolver) exists(key string) (bool, error) {
	if r.known.Contains(key) {
		return true, nil
	}
	ok, err := r.store.Exists(key)
	if err != nil {
		return false, err
	}
	if ok {
		r.known.Add(key, struct{}{})
	}
	return ok, nil
}

func (r *Resolver) download(ctx context.Context, imageURL, key string) error {
	data, contentType, err := r.downloader.FetchBytes(ctx, imageURL)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty image body")
	}

	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		r.logger.Warn("image response is not an image type",
			"url", imageURL,
			"content_type", contentType)
	}

	if err := r.store.Write(key, data); err != nil {
		return err
	}

	r.known.Add(key, struct{}{})
	r.metrics.IncImageDownload()
	r.logger.Info("downloaded image", "url", imageURL, "key", key, "bytes", len(data))
	return nil
}

func (r *Resolver) webPath(key string) string {
	return r.webPrefix + "/" + key
}

// Remove deletes the stored image behind a path previously returned by Resolve.
func (r *Resolver) Remove(webPath string) error {
	key := path.Base(webPath)
	if key == "" || key == "." || key == "/" {
		return nil
	}
	r.known.Remove(key)
	return r.store.Remove(key)
}
