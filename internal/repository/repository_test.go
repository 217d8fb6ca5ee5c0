package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/database"
	"github.com/iliyamo/recruiting-portal/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}

func createSlot(t *testing.T, repo *SlotRepo, ownerID uint64, start time.Time, capacity int) *model.MeetingSlot {
	t.Helper()
	s := &model.MeetingSlot{OwnerID: ownerID, Location: "Room A", StartTime: start, Capacity: capacity}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}
