package tract

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdFIPS(t *testing.T) {
	tests := []struct {
		code  string
		level Level
		want  string
	}{
		{"6", LevelState, "06"},
		{"06", LevelState, "06"},
		{"1", LevelCounty, "001"},
		{"201", LevelTract, "000201"},
		{"20100", LevelTract, "020100"},
		{" 7 ", LevelBlock, "0007"},
		{"6.0", LevelState, "06"},
		{"13.", LevelCounty, "013"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level)+"_"+tt.code, func(t *testing.T) {
			got, err := StdFIPS(tt.code, tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStdFIPS_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		level Level
	}{
		{"too wide state", "123", LevelState},
		{"too wide county", "0001", LevelCounty},
		{"too wide tract", "1234567", LevelTract},
		{"non numeric", "A1", LevelState},
		{"non zero decimal", "6.5", LevelState},
		{"empty", "  ", LevelCounty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := StdFIPS(tt.code, tt.level)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidFIPS))
		})
	}
}

func TestStdFIPS_UnknownLevel(t *testing.T) {
	_, err := StdFIPS("1", Level("zip"))
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrInvalidFIPS))
}

func TestNewID(t *testing.T) {
	id, err := NewID("1", "1", "20100")
	require.NoError(t, err)
	assert.Equal(t, ID("01001020100"), id)
	assert.Equal(t, "01", id.State())
	assert.Equal(t, "001", id.County())
	assert.Equal(t, "020100", id.Tract())

	_, err = NewID("1", "1001", "20100")
	assert.True(t, eris.Is(err, ErrInvalidFIPS))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("01001020200")
	require.NoError(t, err)
	assert.Equal(t, "01001020200", id.String())

	for _, bad := range []string{"1001020200", "010010202001", "0100102020A", ""} {
		_, err := ParseID(bad)
		assert.True(t, eris.Is(err, ErrInvalidFIPS), bad)
	}
}
