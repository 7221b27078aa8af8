// Package relationship loads the Census 2020-to-2010 tract relationship
// files, which list every (2010 tract, 2020 tract) pair whose areas overlap.
package relationship

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/tract-series/internal/fetcher"
	"github.com/sells-group/tract-series/internal/tract"
)

// DefaultBaseURL hosts the per-state relationship files.
const DefaultBaseURL = "https://www2.census.gov/geo/docs/maps-data/data/rel2020/tract"

// Column names used from the relationship file header.
const (
	ColTract20   = "GEOID_TRACT_20"
	ColTract10   = "GEOID_TRACT_10"
	ColLandPart  = "AREALAND_PART"
	ColWaterPart = "AREAWATER_PART"
)

// mojibakeBOM is a UTF-8 BOM that was decoded as Latin-1 and re-encoded.
var mojibakeBOM = []byte("ï»¿")

// Pair is one candidate overlap between a 2010 and a 2020 tract.
type Pair struct {
	StateName     string
	Tract10       tract.ID
	Tract20       tract.ID
	AreaLandPart  int64
	AreaWaterPart int64
}

// Loader downloads and parses relationship files, keeping the raw text
// under dir so repeated runs do not download again.
type Loader struct {
	fetcher fetcher.Fetcher
	dir     string
	baseURL string
}

// NewLoader creates a Loader. An empty baseURL uses DefaultBaseURL.
func NewLoader(f fetcher.Fetcher, dir, baseURL string) *Loader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Loader{fetcher: f, dir: dir, baseURL: baseURL}
}

// FileName is the relationship file name for a state.
func FileName(stateFIPS string) string {
	return fmt.Sprintf("tab20_tract20_tract10_st%s.txt", stateFIPS)
}

// Fetch returns the tract pairs of a state, tagged with the state name.
func (l *Loader) Fetch(ctx context.Context, state tract.State) ([]Pair, error) {
	log := zap.L().With(zap.String("component", "relationship"), zap.String("state", state.USPS))

	path := filepath.Join(l.dir, FileName(state.FIPS))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		log.Debug("relationship file cached", zap.String("path", path))
	} else {
		url := l.baseURL + "/" + FileName(state.FIPS)
		log.Info("downloading relationship file", zap.String("url", url))
		if _, err := l.fetcher.DownloadToFile(ctx, url, path); err != nil {
			return nil, eris.Wrapf(err, "relationship: download %s", state.USPS)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "relationship: open file")
	}
	defer f.Close() //nolint:errcheck

	pairs, err := Parse(ctx, f, state.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "relationship: parse %s", path)
	}
	log.Info("relationship pairs loaded", zap.Int("pairs", len(pairs)))
	return pairs, nil
}

// Parse reads a pipe-delimited relationship file. Columns are located by
// header name; a leading byte-order mark, raw or mis-decoded, is ignored.
// Rows whose tract ids are blank or malformed are skipped.
func Parse(ctx context.Context, r io.Reader, stateName string) ([]Pair, error) {
	r = transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	var (
		idx     fetcher.HeaderIndex
		pairs   []Pair
		skipped int
	)
	err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  '|',
		HasHeader:  true,
		LazyQuotes: true,
		OnHeader: func(header []string) error {
			if len(header) > 0 {
				header[0] = string(bytes.TrimPrefix([]byte(header[0]), mojibakeBOM))
			}
			idx = fetcher.NewHeaderIndex(header)
			return idx.Require(ColTract20, ColTract10)
		},
	}, func(row []string) error {
		t10, err10 := tract.ParseID(idx.Get(row, ColTract10))
		t20, err20 := tract.ParseID(idx.Get(row, ColTract20))
		if err10 != nil || err20 != nil {
			skipped++
			return nil
		}
		pairs = append(pairs, Pair{
			StateName:     stateName,
			Tract10:       t10,
			Tract20:       t20,
			AreaLandPart:  parseArea(idx.Get(row, ColLandPart)),
			AreaWaterPart: parseArea(idx.Get(row, ColWaterPart)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, eris.New("relationship: file has no header")
	}
	if skipped > 0 {
		zap.L().Debug("relationship: skipped rows without tract ids", zap.Int("skipped", skipped))
	}
	return pairs, nil
}

func parseArea(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
