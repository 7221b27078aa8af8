// Package census provides a client for the Census Bureau ACS 5-year API at
// tract resolution.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-series/internal/fetcher"
)

const defaultBaseURL = "https://api.census.gov/data"

// Client fetches raw tract statistics.
type Client interface {
	// FetchTracts returns one row per tract in the state for the given year.
	FetchTracts(ctx context.Context, q Query) ([]RawRow, error)
}

// Query identifies one (variables, state, year) unit of work.
type Query struct {
	Variables []string
	StateFIPS string
	Year      int
}

// RawRow is one tract row as returned by the API. A nil value means the
// API returned null or a non-numeric cell.
type RawRow struct {
	Name   string              `json:"name"`
	State  string              `json:"state"`
	County string              `json:"county"`
	Tract  string              `json:"tract"`
	Values map[string]*float64 `json:"values"`
}

// Option configures the Census client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDataset overrides the dataset path. Default "acs/acs5".
func WithDataset(ds string) Option {
	return func(c *httpClient) {
		c.dataset = strings.Trim(ds, "/")
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	dataset string
	f       fetcher.Fetcher
}

// NewClient creates a Census API client that downloads through f.
func NewClient(apiKey string, f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		dataset: "acs/acs5",
		f:       f,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) queryURL(q Query) string {
	params := url.Values{}
	params.Set("get", strings.Join(append([]string{"NAME"}, q.Variables...), ","))
	params.Set("for", "tract:*")
	params["in"] = []string{"state:" + q.StateFIPS, "county:*"}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	return fmt.Sprintf("%s/%d/%s?%s", c.baseURL, q.Year, c.dataset, params.Encode())
}

// FetchTracts implements Client.
func (c *httpClient) FetchTracts(ctx context.Context, q Query) ([]RawRow, error) {
	if len(q.Variables) == 0 {
		return nil, eris.New("census: no variables requested")
	}

	body, err := c.f.Download(ctx, c.queryURL(q))
	if err != nil {
		return nil, eris.Wrapf(err, "census: fetch state %s year %d", q.StateFIPS, q.Year)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "census: read response")
	}

	rows, err := ParseResponse(data, q.Variables)
	if err != nil {
		return nil, eris.Wrapf(err, "census: state %s year %d", q.StateFIPS, q.Year)
	}
	return rows, nil
}

// ParseResponse decodes the API's array-of-arrays body: a header row
// followed by data rows. Cells may be strings, numbers or null.
func ParseResponse(data []byte, variables []string) ([]RawRow, error) {
	var table [][]any
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "census: parse response")
	}
	if len(table) == 0 {
		return nil, eris.New("census: empty response")
	}

	cols := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		if s, ok := h.(string); ok {
			cols[s] = i
		}
	}
	for _, req := range append([]string{"NAME", "state", "county", "tract"}, variables...) {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("census: response missing column %q", req)
		}
	}

	rows := make([]RawRow, 0, len(table)-1)
	for _, rec := range table[1:] {
		if len(rec) < len(table[0]) {
			continue
		}
		row := RawRow{
			Name:   cellString(rec[cols["NAME"]]),
			State:  cellString(rec[cols["state"]]),
			County: cellString(rec[cols["county"]]),
			Tract:  cellString(rec[cols["tract"]]),
			Values: make(map[string]*float64, len(variables)),
		}
		for _, v := range variables {
			row.Values[v] = cellFloat(rec[cols[v]])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func cellFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
