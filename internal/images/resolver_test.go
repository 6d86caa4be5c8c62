package images

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/fabric-catalog/internal/fetcher"
	"github.com/maltedev/fabric-catalog/internal/storage"
)

const imageURL = "https://cdn.fabrichouse.com/media/catalog/product/tweed.JPG"

func newTestResolver(t *testing.T, dir string) (*Resolver, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	f := fetcher.New(fetcher.Options{Client: &http.Client{Transport: transport}})

	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	r, err := NewResolver(store, f, Options{WebPrefix: "/static/images/"})
	require.NoError(t, err)
	return r, transport
}

func pngResponder(delay time.Duration) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		time.Sleep(delay)
		resp := httpmock.NewBytesResponse(200, []byte("\x89PNG fake"))
		resp.Header.Set("Content-Type", "image/png")
		return resp, nil
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		display string
		prefix  string
		ext     string
	}{
		{"plain", "https://x.example/a/b.png", "Harris Tweed", "Harris_Tweed_", ".png"},
		{"punctuation dropped", "https://x.example/b.webp?w=200", "Wool/Silk (Blend) #3!", "WoolSilk_Blend_3_", ".webp"},
		{"no extension", "https://x.example/image", "Linen", "Linen_", ".jpg"},
		{"long extension", "https://x.example/a.download", "Linen", "Linen_", ".jpg"},
		{"empty name", "https://x.example/a.gif", "  ", "image_", ".gif"},
		{"unicode kept", "https://x.example/a.jpg", "Bouclé Wolle", "Bouclé_Wolle_", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := CacheKey(tt.url, tt.display)
			assert.True(t, strings.HasPrefix(key, tt.prefix), key)
			assert.True(t, strings.HasSuffix(key, tt.ext), key)
			hash := strings.TrimSuffix(strings.TrimPrefix(key, tt.prefix), tt.ext)
			assert.Len(t, hash, 8)
		})
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey(imageURL, "Harris Tweed")
	assert.Equal(t, a, CacheKey(imageURL, "Harris Tweed"))
	assert.NotEqual(t, a, CacheKey(imageURL+"?v=2", "Harris Tweed"))
	assert.NotEqual(t, a, CacheKey(imageURL, "Harris Tweed 2"))
}

func TestCacheKeyTruncatesName(t *testing.T) {
	key := CacheKey(imageURL, strings.Repeat("ab ", 40))
	name := key[:strings.LastIndex(key, "_")]
	assert.LessOrEqual(t, len([]rune(name)), maxNameRunes)
}

func TestResolveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	r, transport := newTestResolver(t, dir)
	transport.RegisterResponder(http.MethodGet, imageURL, pngResponder(0))

	ctx := context.Background()
	first, err := r.Resolve(ctx, imageURL, "Harris Tweed")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, imageURL, "Harris Tweed")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "/static/images/"+CacheKey(imageURL, "Harris Tweed"), first)
	assert.Equal(t, 1, transport.GetTotalCallCount())

	data, err := os.ReadFile(filepath.Join(dir, CacheKey(imageURL, "Harris Tweed")))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))
}

func TestResolveUsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	key := CacheKey(imageURL, "Harris Tweed")
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), []byte("cached"), 0o644))

	r, transport := newTestResolver(t, dir)
	path, err := r.Resolve(context.Background(), imageURL, "Harris Tweed")
	require.NoError(t, err)
	assert.Equal(t, "/static/images/"+key, path)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}

func TestResolveConcurrentCallersShareDownload(t *testing.T) {
	r, transport := newTestResolver(t, t.TempDir())
	transport.RegisterResponder(http.MethodGet, imageURL, pngResponder(20*time.Millisecond))

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve(context.Background(), imageURL, "Harris Tweed")
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, transport.GetTotalCallCount())
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestResolveFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	r, transport := newTestResolver(t, dir)
	transport.RegisterResponder(http.MethodGet, imageURL, httpmock.NewStringResponder(404, "missing"))

	_, err := r.Resolve(context.Background(), imageURL, "Harris Tweed")
	assert.ErrorIs(t, err, ErrNoImage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	transport.RegisterResponder(http.MethodGet, imageURL, httpmock.NewErrorResponder(errors.New("reset by peer")))
	_, err = r.Resolve(context.Background(), imageURL, "Harris Tweed")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestResolveNonImageContentTypeStillStored(t *testing.T) {
	dir := t.TempDir()
	r, transport := newTestResolver(t, dir)
	transport.RegisterResponder(http.MethodGet, imageURL, httpmock.NewStringResponder(200, "<html>not really</html>"))

	path, err := r.Resolve(context.Background(), imageURL, "Odd")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, filepath.Base(path)))
	assert.NoError(t, err)
}

func TestResolveEmptyURL(t *testing.T) {
	r, transport := newTestResolver(t, t.TempDir())
	_, err := r.Resolve(context.Background(), " ", "x")
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	r, transport := newTestResolver(t, dir)
	transport.RegisterResponder(http.MethodGet, imageURL, pngResponder(0))

	path, err := r.Resolve(context.Background(), imageURL, "Harris Tweed")
	require.NoError(t, err)

	require.NoError(t, r.Remove(path))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(path)))
	assert.True(t, os.IsNotExist(err))

	_, err = r.Resolve(context.Background(), imageURL, "Harris Tweed")
	require.NoError(t, err)
	assert.Equal(t, 2, transport.GetTotalCallCount(), "removed images are downloaded again")
}
