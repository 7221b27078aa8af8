package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-series/internal/cache"
	"github.com/sells-group/tract-series/internal/config"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 3, 2, 14, 5, 0, 0, time.Local)
	finished := started.Add(90 * time.Second)
	runs := []cache.Run{
		{ID: "a1b2c3d4-0000-0000-0000-000000000000", Command: "series", Status: cache.RunPartial,
			Failures: []string{"AL 2015", "GA 2016"}, StartedAt: started, FinishedAt: &finished},
		{ID: "short", Command: "crosswalk", Status: cache.RunRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "COMMAND")
	assert.Contains(t, lines[2], "a1b2c3d4")
	assert.NotContains(t, lines[2], "a1b2c3d4-")
	assert.Contains(t, lines[2], "partial")
	assert.Contains(t, lines[2], "2026-03-02 14:05")
	assert.Contains(t, lines[2], "1m30s")
	assert.Contains(t, lines[2], "AL 2015, GA 2016")
	assert.Contains(t, lines[3], "running")
	assert.Regexp(t, `14:05\s+-`, lines[3])
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("1234567890"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestInitCache_CreatesAndMigrates(t *testing.T) {
	cfg = &config.Config{DataDir: t.TempDir()}

	db, err := initCache(context.Background())
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))
	runs, err := db.LastRuns(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
