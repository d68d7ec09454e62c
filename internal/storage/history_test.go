package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

func newStorage(t *testing.T) *HistoryStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	s, err := NewHistoryStorage(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestSaveAndRecent(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, models.RequestRecord{
		Route:     "analyze",
		Action:    "stories",
		Status:    200,
		CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, s.SaveRecord(ctx, models.RequestRecord{
		Route:   "create-tasks",
		Org:     "org",
		Project: "proj",
		Status:  500,
		Detail:  "created 1 of 2",
	}))

	records, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Свежие записи первыми.
	assert.Equal(t, "create-tasks", records[0].Route)
	assert.Equal(t, 500, records[0].Status)
	assert.Equal(t, "analyze", records[1].Route)
}

func TestRecentLimit(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveRecord(ctx, models.RequestRecord{Route: "analyze", Status: 200}))
	}

	records, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestPurgeOlderThan(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, models.RequestRecord{
		Route:     "analyze",
		Status:    200,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, s.SaveRecord(ctx, models.RequestRecord{Route: "analyze", Status: 200}))

	purged, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	records, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
