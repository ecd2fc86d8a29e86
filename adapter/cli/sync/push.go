package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mokkoji/syncd/adapter/cli"
	"github.com/mokkoji/syncd/internal/sync/application"
)

var (
	pushConnection string
	pushCalendar   string
	pushAction     string
	pushEventID    string
	pushLocalID    string
	pushTitle      string
	pushStart      string
	pushEnd        string
	pushAllDay     bool
	pushLocation   string
	pushFile       string
)

// pushFileEvent is the JSON shape accepted by --file.
type pushFileEvent struct {
	LocalID            string     `json:"local_id"`
	ExternalEventID    string     `json:"external_event_id,omitempty"`
	ExternalCalendarID string     `json:"external_calendar_id,omitempty"`
	Title              string     `json:"title,omitempty"`
	Description        string     `json:"description,omitempty"`
	StartUTC           time.Time  `json:"start_utc,omitempty"`
	EndUTC             *time.Time `json:"end_utc,omitempty"`
	AllDay             bool       `json:"all_day,omitempty"`
	Location           string     `json:"location,omitempty"`
	RecurrenceRule     string     `json:"recurrence_rule,omitempty"`
	Action             string     `json:"action"`
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push local events to an external platform",
	Long: `Push local events upstream. Results are reported per event;
one failure never aborts the batch.

A single event is described with flags, or a batch with --file
pointing at a JSON array.

Examples:
  syncctl sync push -c 7b4e... --action create --title "Dinner" --start 2026-03-02T18:00:00Z
  syncctl sync push -c 7b4e... --action delete --event-id evt-123
  syncctl sync push -c 7b4e... --file events.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			fmt.Println("Sync requires a configured database.")
			return nil
		}

		connectionID, err := uuid.Parse(pushConnection)
		if err != nil {
			return fmt.Errorf("invalid connection ID: %w", err)
		}

		events, err := collectPushEvents()
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("nothing to push; use --action or --file")
		}

		results, err := app.Dispatcher.Push(cmd.Context(), app.CurrentUserID, connectionID, events)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		failures := 0
		for _, res := range results {
			if res.Success {
				fmt.Printf("ok    %-8s %s", res.Action, res.LocalID)
				if res.ExternalEventID != "" {
					fmt.Printf(" -> %s", res.ExternalEventID)
				}
				fmt.Println()
			} else {
				failures++
				fmt.Printf("fail  %-8s %s: %s\n", res.Action, res.LocalID, res.Error)
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d events failed", failures, len(results))
		}
		return nil
	},
}

func collectPushEvents() ([]application.PushEventInput, error) {
	if pushFile != "" {
		data, err := os.ReadFile(pushFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read events file: %w", err)
		}
		var raw []pushFileEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse events file: %w", err)
		}
		events := make([]application.PushEventInput, 0, len(raw))
		for _, e := range raw {
			events = append(events, application.PushEventInput{
				LocalID:            e.LocalID,
				ExternalEventID:    e.ExternalEventID,
				ExternalCalendarID: e.ExternalCalendarID,
				Title:              e.Title,
				Description:        e.Description,
				StartUTC:           e.StartUTC,
				EndUTC:             e.EndUTC,
				AllDay:             e.AllDay,
				Location:           e.Location,
				RecurrenceRule:     e.RecurrenceRule,
				Action:             application.PushAction(e.Action),
			})
		}
		return events, nil
	}

	if pushAction == "" {
		return nil, nil
	}

	event := application.PushEventInput{
		LocalID:            pushLocalID,
		ExternalEventID:    pushEventID,
		ExternalCalendarID: pushCalendar,
		Title:              pushTitle,
		AllDay:             pushAllDay,
		Location:           pushLocation,
		Action:             application.PushAction(pushAction),
	}
	if event.LocalID == "" {
		event.LocalID = uuid.NewString()
	}
	if pushStart != "" {
		start, err := time.Parse(time.RFC3339, pushStart)
		if err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
		event.StartUTC = start.UTC()
	}
	if pushEnd != "" {
		end, err := time.Parse(time.RFC3339, pushEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
		endUTC := end.UTC()
		event.EndUTC = &endUTC
	}
	return []application.PushEventInput{event}, nil
}

func init() {
	pushCmd.Flags().StringVarP(&pushConnection, "connection", "c", "", "connection ID")
	pushCmd.Flags().StringVar(&pushCalendar, "calendar", "", "external calendar ID")
	pushCmd.Flags().StringVar(&pushAction, "action", "", "create, update, or delete")
	pushCmd.Flags().StringVar(&pushEventID, "event-id", "", "external event ID (update/delete)")
	pushCmd.Flags().StringVar(&pushLocalID, "local-id", "", "local event ID echoed in the result")
	pushCmd.Flags().StringVar(&pushTitle, "title", "", "event title")
	pushCmd.Flags().StringVar(&pushStart, "start", "", "start time, RFC 3339")
	pushCmd.Flags().StringVar(&pushEnd, "end", "", "end time, RFC 3339")
	pushCmd.Flags().BoolVar(&pushAllDay, "all-day", false, "all-day event")
	pushCmd.Flags().StringVar(&pushLocation, "location", "", "event location")
	pushCmd.Flags().StringVar(&pushFile, "file", "", "JSON file with an array of events")
	_ = pushCmd.MarkFlagRequired("connection")
}
