package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, input string, opts CSVOptions) ([][]string, error) {
	t.Helper()
	var rows [][]string
	err := ReadCSV(context.Background(), strings.NewReader(input), opts, func(row []string) error {
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func TestReadCSV_Basic(t *testing.T) {
	rows, err := readAll(t, "a,b,c\n1,2,3\n4,5,6\n", CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestReadCSV_PipeDelimitedWithHeader(t *testing.T) {
	var header []string
	rows, err := readAll(t, "A|B\n 1 | 2 \n", CSVOptions{
		Delimiter: '|',
		HasHeader: true,
		TrimSpace: true,
		OnHeader: func(h []string) error {
			header = h
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, header)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestReadCSV_CallbackErrorStops(t *testing.T) {
	stop := eris.New("stop")
	calls := 0
	err := ReadCSV(context.Background(), strings.NewReader("1\n2\n3\n"), CSVOptions{}, func([]string) error {
		calls++
		return stop
	})
	assert.True(t, eris.Is(err, stop))
	assert.Equal(t, 1, calls)
}

func TestReadCSV_HeaderErrorStops(t *testing.T) {
	_, err := readAll(t, "x\n1\n", CSVOptions{
		HasHeader: true,
		OnHeader:  func([]string) error { return eris.New("bad header") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad header")
}

func TestReadCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadCSV(ctx, strings.NewReader("1\n"), CSVOptions{}, func([]string) error { return nil })
	assert.True(t, eris.Is(err, context.Canceled))
}

func TestHeaderIndex(t *testing.T) {
	idx := NewHeaderIndex([]string{"GEOID_TRACT_20", " geoid_tract_10 ", "AREALAND_PART"})

	row := []string{"01001020100", "01001020200 ", "5"}
	assert.Equal(t, "01001020100", idx.Get(row, "geoid_tract_20"))
	assert.Equal(t, "01001020200", idx.Get(row, "GEOID_TRACT_10"))
	assert.Equal(t, "", idx.Get(row, "MISSING"))
	assert.Equal(t, "", idx.Get([]string{"only"}, "AREALAND_PART"))

	require.NoError(t, idx.Require("GEOID_TRACT_20", "AREALAND_PART"))
	err := idx.Require("GEOID_TRACT_20", "FOO", "BAR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOO, BAR")
}
