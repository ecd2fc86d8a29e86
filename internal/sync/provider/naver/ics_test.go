package naver_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mokkoji/syncd/internal/sync/domain"
	"github.com/mokkoji/syncd/internal/sync/provider"
	"github.com/mokkoji/syncd/internal/sync/provider/naver"
)

var fixedNow = time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

func TestGenerateICS_Envelope(t *testing.T) {
	end := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	ics := naver.GenerateICS(provider.Event{
		ExternalEventID: "evt-1",
		Title:           "Dinner",
		Description:     "Team dinner",
		Location:        "Gangnam",
		StartUTC:        time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		EndUTC:          &end,
	}, fixedNow)

	lines := strings.Split(ics, "\r\n")
	assert.Equal(t, "BEGIN:VCALENDAR", lines[0])
	assert.Contains(t, lines, "VERSION:2.0")
	assert.Contains(t, lines, "PRODID:-//Mokkoji//Calendar//KR")
	assert.Contains(t, lines, "UID:evt-1")
	assert.Contains(t, lines, "SUMMARY:Dinner")
	assert.Contains(t, lines, "DESCRIPTION:Team dinner")
	assert.Contains(t, lines, "LOCATION:Gangnam")
	assert.Contains(t, lines, "DTSTART:20260302T180000Z")
	assert.Contains(t, lines, "DTEND:20260302T200000Z")
	assert.Contains(t, lines, "DTSTAMP:20260301T123045Z")
	assert.Equal(t, "END:VCALENDAR", lines[len(lines)-1])
}

func TestGenerateICS_AllDay(t *testing.T) {
	end := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	ics := naver.GenerateICS(provider.Event{
		ExternalEventID: "evt-1",
		Title:           "Holiday",
		StartUTC:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndUTC:          &end,
		AllDay:          true,
	}, fixedNow)

	assert.Contains(t, ics, "DTSTART;VALUE=DATE:20260302")
	assert.Contains(t, ics, "DTEND;VALUE=DATE:20260303")
	assert.NotContains(t, ics, "DTSTART:2026")
}

func TestGenerateICS_Escaping(t *testing.T) {
	ics := naver.GenerateICS(provider.Event{
		ExternalEventID: "evt-1",
		Title:           `a\b,c;d`,
		Description:     "line1\nline2",
		StartUTC:        fixedNow,
	}, fixedNow)

	assert.Contains(t, ics, `SUMMARY:a\\b\,c\;d`)
	assert.Contains(t, ics, `DESCRIPTION:line1\nline2`)
}

func TestEscapeText_RoundTrip(t *testing.T) {
	original := `back\slash, comma; semi` + "\nnewline"
	assert.Equal(t, original, naver.UnescapeText(naver.EscapeText(original)))
}

func TestEventUID_Deterministic(t *testing.T) {
	event := provider.Event{
		Title:    "Dinner",
		StartUTC: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
	}

	uid1 := naver.EventUID(event)
	uid2 := naver.EventUID(event)

	assert.Equal(t, uid1, uid2)
	assert.True(t, strings.HasPrefix(uid1, "mokkoji-"))

	event.Title = "Lunch"
	assert.NotEqual(t, uid1, naver.EventUID(event))

	event.ExternalEventID = "evt-9"
	assert.Equal(t, "evt-9", naver.EventUID(event))
}

func TestGenerateICS_RecurrenceVerbatim(t *testing.T) {
	ics := naver.GenerateICS(provider.Event{
		ExternalEventID: "evt-1",
		Title:           "Standup",
		StartUTC:        fixedNow,
		RecurrenceRule:  "RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR",
	}, fixedNow)

	assert.Contains(t, ics, "\r\nRRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR\r\n")
}

func TestGenerateParseRoundTrip(t *testing.T) {
	end := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	original := provider.Event{
		ExternalEventID: "evt-1",
		Title:           "Dinner, at; Gangnam",
		Description:     "bring\nwine",
		Location:        "Seoul",
		StartUTC:        time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		EndUTC:          &end,
		RecurrenceRule:  "RRULE:FREQ=WEEKLY",
		Attendees: []domain.Attendee{
			{Email: "a@example.com", Name: "A", Status: "accepted"},
		},
	}

	ics := naver.GenerateICS(original, fixedNow)
	events, err := naver.ParseICS(ics, "naver-default")
	require.NoError(t, err)
	require.Len(t, events, 1)

	parsed := events[0]
	assert.Equal(t, original.ExternalEventID, parsed.ExternalEventID)
	assert.Equal(t, original.Title, parsed.Title)
	assert.Equal(t, original.Description, parsed.Description)
	assert.Equal(t, original.Location, parsed.Location)
	assert.Equal(t, original.StartUTC, parsed.StartUTC)
	require.NotNil(t, parsed.EndUTC)
	assert.Equal(t, *original.EndUTC, *parsed.EndUTC)
	assert.False(t, parsed.AllDay)
	assert.Equal(t, original.RecurrenceRule, parsed.RecurrenceRule)
	require.NotNil(t, parsed.ExternalUpdatedAt)
	assert.Equal(t, fixedNow, *parsed.ExternalUpdatedAt)
	require.Len(t, parsed.Attendees, 1)
	assert.Equal(t, "a@example.com", parsed.Attendees[0].Email)

	// Generating again from the parsed event is stable.
	assert.Equal(t, ics, naver.GenerateICS(parsed, fixedNow))
}

func TestGenerateParseRoundTrip_AllDay(t *testing.T) {
	end := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	original := provider.Event{
		ExternalEventID: "evt-1",
		Title:           "Holiday",
		StartUTC:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndUTC:          &end,
		AllDay:          true,
	}

	ics := naver.GenerateICS(original, fixedNow)
	events, err := naver.ParseICS(ics, "naver-default")
	require.NoError(t, err)
	require.Len(t, events, 1)

	parsed := events[0]
	assert.True(t, parsed.AllDay)
	assert.Equal(t, original.StartUTC, parsed.StartUTC)
	assert.Equal(t, ics, naver.GenerateICS(parsed, fixedNow))
}
