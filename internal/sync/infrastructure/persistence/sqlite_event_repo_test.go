package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

func testEventFields() domain.EventFields {
	end := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	extUpdated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.EventFields{
		Title:          "Dinner",
		Description:    "Team dinner",
		StartUTC:       time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		EndUTC:         &end,
		Location:       "Gangnam",
		RecurrenceRule: "RRULE:FREQ=WEEKLY",
		Attendees: []domain.Attendee{
			{Email: "a@example.com", Name: "A", Status: "accepted"},
			{Email: "b@example.com", Status: "needsAction"},
		},
		ExternalUpdatedAt: &extUpdated,
		ExternalVersion:   "etag-1",
	}
}

func TestSQLiteEventRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	fields := testEventFields()
	event := domain.NewStoredEvent(userID, domain.PlatformGoogle, "cal-1", "evt-1", fields)
	require.NoError(t, repo.Save(ctx, event))

	found, err := repo.FindBySyncIdentity(ctx, userID, domain.PlatformGoogle, "cal-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", found.Title())
	assert.Equal(t, "Team dinner", found.Description())
	assert.Equal(t, fields.StartUTC, found.StartUTC())
	require.NotNil(t, found.EndUTC())
	assert.Equal(t, *fields.EndUTC, *found.EndUTC())
	assert.False(t, found.AllDay())
	assert.Equal(t, "Gangnam", found.Location())
	assert.Equal(t, "RRULE:FREQ=WEEKLY", found.RecurrenceRule())
	assert.Equal(t, fields.Attendees, found.Attendees())
	require.NotNil(t, found.ExternalUpdatedAt())
	assert.Equal(t, *fields.ExternalUpdatedAt, *found.ExternalUpdatedAt())
	assert.Equal(t, "etag-1", found.ExternalVersion())
	assert.False(t, found.Deleted())
}

func TestSQLiteEventRepository_FindBySyncIdentity_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEventRepository(db)

	_, err := repo.FindBySyncIdentity(context.Background(), uuid.New(), domain.PlatformGoogle, "cal-1", "missing")
	assert.True(t, database.IsNoRows(err))
}

func TestSQLiteEventRepository_UpsertOnSyncIdentity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	first := domain.NewStoredEvent(userID, domain.PlatformGoogle, "cal-1", "evt-1", testEventFields())
	require.NoError(t, repo.Save(ctx, first))

	// A different entity with the same sync identity replaces the row.
	fields := testEventFields()
	fields.Title = "Dinner (moved)"
	second := domain.NewStoredEvent(userID, domain.PlatformGoogle, "cal-1", "evt-1", fields)
	require.NoError(t, repo.Save(ctx, second))

	events, err := repo.FindByCalendar(ctx, userID, domain.PlatformGoogle, "cal-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Dinner (moved)", events[0].Title())
}

func TestSQLiteEventRepository_Tombstone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	event := domain.NewStoredEvent(userID, domain.PlatformGoogle, "cal-1", "evt-1", testEventFields())
	event.MarkDeleted()
	require.NoError(t, repo.Save(ctx, event))

	// Tombstones stay findable by identity but are excluded from
	// calendar listings.
	found, err := repo.FindBySyncIdentity(ctx, userID, domain.PlatformGoogle, "cal-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, found.Deleted())

	events, err := repo.FindByCalendar(ctx, userID, domain.PlatformGoogle, "cal-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteEventRepository_AllDayEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteEventRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	end := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	event := domain.NewStoredEvent(userID, domain.PlatformNaver, "cal-1", "evt-1", domain.EventFields{
		Title:    "Holiday",
		StartUTC: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndUTC:   &end,
		AllDay:   true,
	})
	require.NoError(t, repo.Save(ctx, event))

	found, err := repo.FindBySyncIdentity(ctx, userID, domain.PlatformNaver, "cal-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, found.AllDay())
	assert.Nil(t, found.ExternalUpdatedAt())
	assert.Nil(t, found.Attendees())
}
