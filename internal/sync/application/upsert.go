package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mokkoji/syncd/internal/shared/infrastructure/database"
	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

// UpsertCounts summarizes one batch of the upsert pipeline.
type UpsertCounts struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

func (c *UpsertCounts) add(other UpsertCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Deleted += other.Deleted
	c.Skipped += other.Skipped
}

// Upserter reconciles fetched remote events into the event store with
// Last-Write-Wins conflict resolution on external_updated_at.
type Upserter struct {
	events domain.EventRepository
	logger *slog.Logger
}

// NewUpserter creates the upsert pipeline.
func NewUpserter(events domain.EventRepository, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upserter{events: events, logger: logger}
}

// Apply reconciles one batch. The caller wraps the call in a
// transaction so the batch fully commits or fully reverts. Per-event
// transformation failures are logged and counted as skipped; storage
// failures abort the batch.
func (u *Upserter) Apply(
	ctx context.Context,
	userID uuid.UUID,
	platform domain.PlatformType,
	externalCalendarID string,
	batch []provider.Event,
) (UpsertCounts, error) {
	var counts UpsertCounts

	for _, incoming := range batch {
		calendarID := incoming.ExternalCalendarID
		if calendarID == "" {
			calendarID = externalCalendarID
		}

		if err := validateIncoming(incoming); err != nil {
			u.logger.Warn("skipping malformed event",
				"platform", platform,
				"external_event_id", incoming.ExternalEventID,
				"error", err,
			)
			counts.Skipped++
			continue
		}

		existing, err := u.events.FindBySyncIdentity(ctx, userID, platform, calendarID, incoming.ExternalEventID)
		if err != nil && !database.IsNoRows(err) {
			return counts, fmt.Errorf("lookup event %s: %w", incoming.ExternalEventID, err)
		}

		if incoming.Deleted {
			// Tombstone; absent rows need no marker.
			if existing == nil {
				continue
			}
			existing.MarkDeleted()
			if err := u.events.Save(ctx, existing); err != nil {
				return counts, fmt.Errorf("tombstone event %s: %w", incoming.ExternalEventID, err)
			}
			counts.Deleted++
			continue
		}

		if existing != nil && !existing.SupersededBy(incoming.ExternalUpdatedAt) {
			// Stale remote copy; the stored row wins.
			counts.Skipped++
			continue
		}

		fields := toEventFields(incoming)
		if existing != nil {
			existing.ApplyRemote(fields)
			if err := u.events.Save(ctx, existing); err != nil {
				return counts, fmt.Errorf("update event %s: %w", incoming.ExternalEventID, err)
			}
			counts.Updated++
			continue
		}

		event := domain.NewStoredEvent(userID, platform, calendarID, incoming.ExternalEventID, fields)
		if err := u.events.Save(ctx, event); err != nil {
			return counts, fmt.Errorf("create event %s: %w", incoming.ExternalEventID, err)
		}
		counts.Created++
	}

	return counts, nil
}

func validateIncoming(event provider.Event) error {
	if event.ExternalEventID == "" {
		return fmt.Errorf("missing external event ID")
	}
	if event.Deleted {
		return nil
	}
	if event.StartUTC.IsZero() {
		return fmt.Errorf("missing start time")
	}
	if event.EndUTC != nil && event.EndUTC.Before(event.StartUTC) {
		return fmt.Errorf("end %s before start %s", event.EndUTC, event.StartUTC)
	}
	return nil
}

func toEventFields(event provider.Event) domain.EventFields {
	fields := domain.EventFields{
		Title:             event.Title,
		Description:       event.Description,
		StartUTC:          event.StartUTC.UTC(),
		AllDay:            event.AllDay,
		Location:          event.Location,
		RecurrenceRule:    event.RecurrenceRule,
		Attendees:         event.Attendees,
		ExternalVersion:   event.ExternalVersion,
		ExternalUpdatedAt: utcPtr(event.ExternalUpdatedAt),
	}
	if event.EndUTC != nil {
		end := event.EndUTC.UTC()
		fields.EndUTC = &end
	}
	return fields
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
