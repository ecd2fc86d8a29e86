package naver

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
)

const (
	prodID        = "-//Mokkoji//Calendar//KR"
	dateLayout    = "20060102"
	instantLayout = "20060102T150405Z"
)

// GenerateICS serializes a single event as a VCALENDAR envelope with
// CRLF line separators, ready for Naver's createSchedule API. The UID
// is the event's external ID, or a deterministic synthesis from the
// title and start time so re-submitting the same event updates it.
func GenerateICS(event provider.Event, now time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"CALSCALE:GREGORIAN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + EventUID(event),
		"SUMMARY:" + EscapeText(event.Title),
	}

	if event.Description != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeText(event.Description))
	}
	if event.Location != "" {
		lines = append(lines, "LOCATION:"+EscapeText(event.Location))
	}

	end := event.StartUTC
	if event.EndUTC != nil {
		end = *event.EndUTC
	}
	if event.AllDay {
		lines = append(lines,
			"DTSTART;VALUE=DATE:"+event.StartUTC.UTC().Format(dateLayout),
			"DTEND;VALUE=DATE:"+end.UTC().Format(dateLayout),
		)
	} else {
		lines = append(lines,
			"DTSTART:"+event.StartUTC.UTC().Format(instantLayout),
			"DTEND:"+end.UTC().Format(instantLayout),
		)
	}

	if event.RecurrenceRule != "" {
		// RRULE lines are carried verbatim, never re-parsed.
		lines = append(lines, event.RecurrenceRule)
	}

	for _, att := range event.Attendees {
		if att.Email == "" {
			continue
		}
		status := strings.ToUpper(att.Status)
		if status == "" {
			status = "NEEDS-ACTION"
		}
		lines = append(lines, fmt.Sprintf("ATTENDEE;CN=%s;PARTSTAT=%s:MAILTO:%s", att.Name, status, att.Email))
	}

	lines = append(lines,
		"DTSTAMP:"+now.UTC().Format(instantLayout),
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	return strings.Join(lines, "\r\n")
}

// EventUID returns the event's wire UID.
func EventUID(event provider.Event) string {
	if event.ExternalEventID != "" {
		return event.ExternalEventID
	}
	h := fnv.New64a()
	h.Write([]byte(event.Title))
	h.Write([]byte(event.StartUTC.UTC().Format(time.RFC3339)))
	return fmt.Sprintf("mokkoji-%x", h.Sum64())
}

// EscapeText escapes backslash, comma, semicolon and newline per
// RFC 5545 §3.3.11.
func EscapeText(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		",", `\,`,
		";", `\;`,
		"\n", `\n`,
	)
	return r.Replace(text)
}

// UnescapeText reverses EscapeText.
func UnescapeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '\\' && i+1 < len(text) {
			switch text[i+1] {
			case 'n', 'N':
				b.WriteByte('\n')
			default:
				b.WriteByte(text[i+1])
			}
			i++
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

// ParseICS decodes an ICS feed into neutral events. Events that fail
// to parse are skipped; a malformed envelope is an error.
func ParseICS(content, calendarID string) ([]provider.Event, error) {
	cal, err := ical.NewDecoder(strings.NewReader(content)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode ICS: %w", err)
	}

	var events []provider.Event
	for _, raw := range cal.Events() {
		event, err := parseVEvent(raw, calendarID)
		if err != nil {
			continue
		}
		events = append(events, *event)
	}
	return events, nil
}

func parseVEvent(raw ical.Event, calendarID string) (*provider.Event, error) {
	startProp := raw.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, fmt.Errorf("event has no DTSTART")
	}
	allDay := startProp.ValueType() == ical.ValueDate

	start, err := raw.DateTimeStart(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}
	start = start.UTC()

	event := &provider.Event{
		ExternalCalendarID: calendarID,
		StartUTC:           start,
		AllDay:             allDay,
	}

	if uid, err := raw.Props.Text(ical.PropUID); err == nil {
		event.ExternalEventID = uid
	}
	if summary, err := raw.Props.Text(ical.PropSummary); err == nil && summary != "" {
		event.Title = summary
	} else {
		event.Title = "No Title"
	}
	if desc, err := raw.Props.Text(ical.PropDescription); err == nil {
		event.Description = desc
	}
	if loc, err := raw.Props.Text(ical.PropLocation); err == nil {
		event.Location = loc
	}

	if end, err := raw.DateTimeEnd(time.UTC); err == nil && !end.IsZero() {
		e := end.UTC()
		event.EndUTC = &e
	} else {
		e := start
		event.EndUTC = &e
	}

	if rrule := raw.Props.Get(ical.PropRecurrenceRule); rrule != nil && rrule.Value != "" {
		event.RecurrenceRule = "RRULE:" + rrule.Value
	}

	if stamp, err := raw.Props.DateTime(ical.PropDateTimeStamp, time.UTC); err == nil && !stamp.IsZero() {
		s := stamp.UTC()
		event.ExternalUpdatedAt = &s
	}

	for _, attProp := range raw.Props.Values(ical.PropAttendee) {
		email := strings.TrimPrefix(strings.TrimPrefix(attProp.Value, "MAILTO:"), "mailto:")
		if email == "" {
			continue
		}
		event.Attendees = append(event.Attendees, domain.Attendee{
			Email:  email,
			Name:   attProp.Params.Get(ical.ParamCommonName),
			Status: attProp.Params.Get(ical.ParamParticipationStatus),
		})
	}

	return event, nil
}
