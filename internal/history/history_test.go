package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{"drafted", "failed", "published"} {
		require.NoError(t, s.Add(ctx, Record{
			ID:             string(rune('a' + i)),
			AccountKey:     "main",
			SourceURL:      "https://example.com/r",
			Mode:           "publish",
			Kind:           kind,
			ScreenshotPath: "/tmp/x.png",
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
			FinishedAt:     base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "published", recent[0].Kind)
	assert.Equal(t, "failed", recent[1].Kind)
	assert.True(t, recent[0].FinishedAt.Equal(base.Add(2*time.Minute+30*time.Second)))
}

func TestDuplicateIDRejected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	r := Record{ID: "x", AccountKey: "a", Mode: "draft", Kind: "drafted", ScreenshotPath: "p"}
	require.NoError(t, s.Add(context.Background(), r))
	assert.Error(t, s.Add(context.Background(), r))
}

func TestEveryConnectionIsConfigured(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	// hold both at once so the pool has to open two connections
	first, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)

		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)
	}
}
