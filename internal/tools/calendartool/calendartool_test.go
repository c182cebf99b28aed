package calendartool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

func TestFormatEventTimedEvent(t *testing.T) {
	event := &calendar.Event{
		Id:          "ev1",
		Summary:     "Zahnarzt",
		Location:    "Praxis Dr. Weber",
		Description: "Kontrolle",
		Start:       &calendar.EventDateTime{DateTime: "2026-09-01T10:00:00+02:00"},
		End:         &calendar.EventDateTime{DateTime: "2026-09-01T10:30:00+02:00"},
		Organizer:   &calendar.EventOrganizer{DisplayName: "Familie"},
	}

	got := formatEvent(event)
	want := formattedEvent{
		ID:          "ev1",
		Title:       "Zahnarzt",
		Start:       "2026-09-01T10:00:00+02:00",
		End:         "2026-09-01T10:30:00+02:00",
		Location:    "Praxis Dr. Weber",
		Description: "Kontrolle",
		Calendar:    "Familie",
	}
	if got != want {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFormatEventAllDayAndDefaults(t *testing.T) {
	event := &calendar.Event{
		Id:    "ev2",
		Start: &calendar.EventDateTime{Date: "2026-09-02"},
		End:   &calendar.EventDateTime{Date: "2026-09-03"},
	}

	got := formatEvent(event)
	if got.Title != "Ohne Titel" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Start != "2026-09-02" || got.End != "2026-09-03" {
		t.Errorf("all-day boundaries = %q / %q", got.Start, got.End)
	}
	if got.Calendar != "Mein Kalender" {
		t.Errorf("calendar = %q", got.Calendar)
	}
}

func TestSortByStartOrdersMixedDayAndTimedEvents(t *testing.T) {
	events := []formattedEvent{
		{Title: "spät", Start: "2026-09-02T18:00:00+02:00"},
		{Title: "ganztags", Start: "2026-09-01"},
		{Title: "früh", Start: "2026-09-01T08:00:00+02:00"},
	}

	sortByStart(events)
	order := []string{"ganztags", "früh", "spät"}
	for i, want := range order {
		if events[i].Title != want {
			t.Errorf("position %d = %q, want %q", i, events[i].Title, want)
		}
	}
}

func TestParseDateTimeAcceptsLocalAndZonedTimestamps(t *testing.T) {
	local, err := parseDateTime("2026-09-01T14:30:00")
	if err != nil {
		t.Fatalf("local timestamp: %v", err)
	}
	if local.Hour() != 14 || local.Minute() != 30 {
		t.Errorf("local = %v", local)
	}

	zoned, err := parseDateTime("2026-09-01T14:30:00+02:00")
	if err != nil {
		t.Fatalf("zoned timestamp: %v", err)
	}
	if _, offset := zoned.Zone(); offset != 2*60*60 {
		t.Errorf("offset = %d", offset)
	}

	if _, err := parseDateTime("morgen um drei"); err == nil {
		t.Error("expected error for free-form input")
	}
}

func TestErrorResultShape(t *testing.T) {
	out, err := errorResult("Ungültiges Datumsformat: 32.13.2026")
	if err != nil {
		t.Fatalf("errorResult: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v", resp["success"])
	}
	if resp["error"] != "Ungültiges Datumsformat: 32.13.2026" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestGetEventsOnDateRejectsBadDate(t *testing.T) {
	s := New("credentials.json", "token.json")

	out, err := s.getEventsOnDate(context.Background(), `{"date": "01.09.2026"}`)
	if err != nil {
		t.Fatalf("get_events_on_date: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v", resp["success"])
	}
}

func TestCreateEventRejectsBadTimestamps(t *testing.T) {
	s := New("credentials.json", "token.json")

	out, err := s.createEvent(context.Background(), `{"title": "Test", "start_datetime": "irgendwann"}`)
	if err != nil {
		t.Fatalf("create_event: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v", resp["success"])
	}
}

func TestSearchEventsRequiresQuery(t *testing.T) {
	s := New("credentials.json", "token.json")

	out, err := s.searchEvents(context.Background(), `{"query": "  "}`)
	if err != nil {
		t.Fatalf("search_events: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v", resp["success"])
	}
}

func TestInitFailsWithoutCredentialsFile(t *testing.T) {
	s := New("/nonexistent/credentials.json", "/nonexistent/token.json")
	if err := s.Init(context.Background()); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestDefaultEndIsOneHourAfterStart(t *testing.T) {
	start, err := parseDateTime("2026-09-01T09:00:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	end := start.Add(time.Hour)
	if end.Format("2006-01-02T15:04:05") != "2026-09-01T10:00:00" {
		t.Errorf("end = %v", end)
	}
}

func TestToolsExposeAllCalendarOperations(t *testing.T) {
	s := New("credentials.json", "token.json")

	got := make(map[string]bool)
	for _, tool := range s.Tools() {
		got[tool.Definition.Name] = true
	}
	for _, name := range []string{
		"get_upcoming_events", "get_events_on_date", "create_event",
		"update_event", "delete_event", "search_events",
	} {
		if !got[name] {
			t.Errorf("tool %q missing", name)
		}
	}
}
