package tiger

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/fetcher"
	"github.com/sells-group/tract-series/internal/tract"
)

// Cache persists parsed tracts per (vintage, state).
type Cache interface {
	GetTracts(ctx context.Context, vintage Vintage, stateFIPS string) ([]Tract, bool, error)
	PutTracts(ctx context.Context, vintage Vintage, stateFIPS string, tracts []Tract) error
}

// Source is the geometry source: it returns tract polygons keyed by
// TractID for one vintage and state.
type Source struct {
	fetcher fetcher.Fetcher
	cache   Cache
	dir     string
	baseURL string
}

// NewSource creates a Source that downloads into dir. cache may be nil.
func NewSource(f fetcher.Fetcher, cache Cache, dir, baseURL string) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{fetcher: f, cache: cache, dir: dir, baseURL: baseURL}
}

// Fetch returns the tracts of a state for a vintage.
func (s *Source) Fetch(ctx context.Context, vintage Vintage, stateFIPS string) (map[tract.ID]Tract, error) {
	log := zap.L().With(
		zap.String("component", "tiger.source"),
		zap.Int("vintage", int(vintage)),
		zap.String("state", stateFIPS),
	)

	product, err := TractProduct(vintage)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetTracts(ctx, vintage, stateFIPS)
		if err != nil {
			log.Warn("tract cache read failed, downloading", zap.Error(err))
		} else if ok {
			log.Debug("tracts loaded from cache", zap.Int("count", len(cached)))
			return index(cached), nil
		}
	}

	destDir := filepath.Join(s.dir, strconv.Itoa(int(vintage)))
	shpPath, err := Download(ctx, s.fetcher, product.URL(s.baseURL, stateFIPS), destDir)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: state %s vintage %d", stateFIPS, vintage)
	}

	tracts, err := ReadTracts(shpPath, product)
	if err != nil {
		return nil, err
	}
	log.Info("tracts parsed", zap.Int("count", len(tracts)))

	if s.cache != nil {
		if err := s.cache.PutTracts(ctx, vintage, stateFIPS, tracts); err != nil {
			log.Warn("tract cache write failed", zap.Error(err))
		}
	}
	return index(tracts), nil
}

func index(tracts []Tract) map[tract.ID]Tract {
	m := make(map[tract.ID]Tract, len(tracts))
	for _, t := range tracts {
		m[t.ID] = t
	}
	return m
}
