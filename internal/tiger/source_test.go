package tiger

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-series/internal/tract"
)

type memCache struct {
	data    map[string][]Tract
	getErr  error
	putCall int
}

func cacheKey(v Vintage, st string) string { return fmt.Sprintf("%d/%s", v, st) }

func (m *memCache) GetTracts(_ context.Context, v Vintage, st string) ([]Tract, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	ts, ok := m.data[cacheKey(v, st)]
	return ts, ok, nil
}

func (m *memCache) PutTracts(_ context.Context, v Vintage, st string, ts []Tract) error {
	m.putCall++
	if m.data == nil {
		m.data = map[string][]Tract{}
	}
	m.data[cacheKey(v, st)] = ts
	return nil
}

func tractServer(t *testing.T, product Product, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	writeTractShapefile(t, dir, product, []testTract{
		{geoid: "01001020100", parts: [][]shp.Point{cwSquare(0, 0, 1)}},
	})
	archive := zipDir(t, dir)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/TIGER2020/TRACT/tl_2020_01_tract.zip", r.URL.Path)
		_, _ = w.Write(archive)
	}))
}

func TestSource_FetchDownloadsAndCaches(t *testing.T) {
	product, err := TractProduct(V2020)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := tractServer(t, product, &calls)
	defer srv.Close()

	cache := &memCache{}
	src := NewSource(testFetcher(), cache, t.TempDir(), srv.URL)

	got, err := src.Fetch(context.Background(), V2020, "01")
	require.NoError(t, err)
	require.Contains(t, got, tract.ID("01001020100"))
	assert.Equal(t, 1, cache.putCall)
	assert.Equal(t, int32(1), calls.Load())

	// Second fetch is served from the cache.
	got, err = src.Fetch(context.Background(), V2020, "01")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.putCall)
}

func TestSource_CacheErrorFallsBackToDownload(t *testing.T) {
	product, err := TractProduct(V2020)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := tractServer(t, product, &calls)
	defer srv.Close()

	src := NewSource(testFetcher(), &memCache{getErr: eris.New("locked")}, t.TempDir(), srv.URL)
	got, err := src.Fetch(context.Background(), V2020, "01")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSource_NilCache(t *testing.T) {
	product, err := TractProduct(V2020)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := tractServer(t, product, &calls)
	defer srv.Close()

	src := NewSource(testFetcher(), nil, t.TempDir(), srv.URL)
	got, err := src.Fetch(context.Background(), V2020, "01")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSource_UnsupportedVintage(t *testing.T) {
	src := NewSource(testFetcher(), nil, t.TempDir(), "")
	_, err := src.Fetch(context.Background(), Vintage(1990), "01")
	require.Error(t, err)
}
