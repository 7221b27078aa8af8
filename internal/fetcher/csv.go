package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the delimited-text reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	HasHeader  bool // if true, the first row is passed to OnHeader instead of the row callback
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	OnHeader   func(header []string) error
}

// ReadCSV reads delimited records from r, calling fn for every data row.
// Reading stops at the first error returned by fn or the context.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions, fn func(row []string) error) error {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.ReuseRecord = false

	first := true
	for {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: read row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		if first && opts.HasHeader {
			first = false
			if opts.OnHeader != nil {
				if err := opts.OnHeader(record); err != nil {
					return err
				}
			}
			continue
		}
		first = false

		if err := fn(record); err != nil {
			return err
		}
	}
}

// HeaderIndex maps header names to column positions, case-insensitively.
type HeaderIndex map[string]int

// NewHeaderIndex builds a HeaderIndex from a header row.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return idx
}

// Get returns the trimmed value of the named column, or "" when absent.
func (h HeaderIndex) Get(row []string, name string) string {
	i, ok := h[strings.ToUpper(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Require returns an error naming every column missing from the header.
func (h HeaderIndex) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h[strings.ToUpper(n)]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("csv: missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}
