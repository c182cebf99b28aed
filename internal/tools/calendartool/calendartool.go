// Package calendartool integrates Google Calendar. It operates on every
// calendar the account can write to (personal plus shared) and exposes the
// usual event lifecycle: list, search, create, update, delete.
//
// Authentication follows the installed-app OAuth flow: a credentials.json
// from the Google Cloud Console plus a stored token.json. Without a token
// Init fails and logs the authorization URL to visit.
package calendartool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	defaultUpcomingDays = 7
	defaultMaxResults   = 10
	defaultSearchDays   = 30

	eventTimeZone = "Europe/Berlin"
)

// Source is the Google Calendar tool source.
type Source struct {
	credentialsFile string
	tokenFile       string

	service     *calendar.Service
	calendarIDs []string
	now         func() time.Time
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)

// New constructs the calendar source from the OAuth file locations.
func New(credentialsFile, tokenFile string) *Source {
	return &Source{
		credentialsFile: credentialsFile,
		tokenFile:       tokenFile,
		calendarIDs:     []string{"primary"},
		now:             time.Now,
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "calendar" }

// Init implements [tools.Initializer].
func (s *Source) Init(ctx context.Context) error {
	creds, err := os.ReadFile(s.credentialsFile)
	if err != nil {
		return fmt.Errorf("calendar: read credentials %s: %w (download credentials.json from the Google Cloud Console)", s.credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(creds, calendar.CalendarScope)
	if err != nil {
		return fmt.Errorf("calendar: parse credentials: %w", err)
	}

	token, err := loadToken(s.tokenFile)
	if err != nil {
		authURL := cfg.AuthCodeURL("state", oauth2.AccessTypeOffline)
		slog.Info("Google Calendar authorization required", "url", authURL)
		return fmt.Errorf("calendar: load token %s: %w (visit the logged URL and store the resulting token)", s.tokenFile, err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, token)))
	if err != nil {
		return fmt.Errorf("calendar: create service: %w", err)
	}
	s.service = svc

	s.loadCalendarIDs(ctx)
	slog.Info("Calendar tool initialized", "calendars", len(s.calendarIDs))
	return nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

// loadCalendarIDs collects every calendar the account may write to. On
// failure the primary calendar remains the only target.
func (s *Source) loadCalendarIDs(ctx context.Context) {
	list, err := s.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		slog.Error("Failed to list calendars", "error", err)
		return
	}

	var ids []string
	for _, cal := range list.Items {
		if cal.AccessRole == "owner" || cal.AccessRole == "writer" {
			ids = append(ids, cal.Id)
		}
		slog.Debug("Calendar found", "summary", cal.Summary, "role", cal.AccessRole)
	}
	if len(ids) > 0 {
		s.calendarIDs = ids
	}
}

// ── event formatting ─────────────────────────────────────────────────────────

// formattedEvent is the JSON shape handed back to the model.
type formattedEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Calendar    string `json:"calendar"`
}

// eventTime returns the timed or all-day boundary of an event.
func eventTime(edt *calendar.EventDateTime) string {
	if edt == nil {
		return ""
	}
	if edt.DateTime != "" {
		return edt.DateTime
	}
	return edt.Date
}

func formatEvent(event *calendar.Event) formattedEvent {
	title := event.Summary
	if title == "" {
		title = "Ohne Titel"
	}
	calName := "Mein Kalender"
	if event.Organizer != nil && event.Organizer.DisplayName != "" {
		calName = event.Organizer.DisplayName
	}
	return formattedEvent{
		ID:          event.Id,
		Title:       title,
		Start:       eventTime(event.Start),
		End:         eventTime(event.End),
		Location:    event.Location,
		Description: event.Description,
		Calendar:    calName,
	}
}

func sortByStart(events []formattedEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start < events[j].Start })
}

// parseDateTime accepts local timestamps with or without a zone offset.
func parseDateTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("calendar: encode result: %w", err)
	}
	return string(data), nil
}

func errorResult(msg string) (string, error) {
	return jsonResult(map[string]any{"success": false, "error": msg})
}

// listWindow queries one time window across all writable calendars. A failing
// calendar is logged and skipped so shared calendars cannot break the lookup.
func (s *Source) listWindow(ctx context.Context, timeMin, timeMax time.Time, query string, maxResults int) []formattedEvent {
	var all []formattedEvent
	for _, calendarID := range s.calendarIDs {
		call := s.service.Events.List(calendarID).
			TimeMin(timeMin.UTC().Format(time.RFC3339)).
			TimeMax(timeMax.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if maxResults > 0 {
			call = call.MaxResults(int64(maxResults))
		}

		result, err := call.Do()
		if err != nil {
			slog.Warn("Calendar query failed", "calendar", calendarID, "error", err)
			continue
		}
		for _, event := range result.Items {
			all = append(all, formatEvent(event))
		}
	}
	sortByStart(all)
	return all
}

// findEvent locates an event by ID across all writable calendars.
func (s *Source) findEvent(ctx context.Context, eventID string) (*calendar.Event, string, error) {
	for _, calendarID := range s.calendarIDs {
		event, err := s.service.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code != 404 {
				return nil, "", err
			}
			continue
		}
		return event, calendarID, nil
	}
	return nil, "", fmt.Errorf("calendar: event %s not found", eventID)
}

// ── tool handlers ────────────────────────────────────────────────────────────

type upcomingArgs struct {
	Days       int `json:"days,omitempty"`
	MaxResults int `json:"max_results,omitempty"`
}

func (s *Source) getUpcomingEvents(ctx context.Context, args string) (string, error) {
	var a upcomingArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: get_upcoming_events: failed to parse arguments: %w", err)
	}
	if a.Days <= 0 {
		a.Days = defaultUpcomingDays
	}
	if a.MaxResults <= 0 {
		a.MaxResults = defaultMaxResults
	}

	now := s.now()
	events := s.listWindow(ctx, now, now.AddDate(0, 0, a.Days), "", a.MaxResults)
	if len(events) > a.MaxResults {
		events = events[:a.MaxResults]
	}
	return jsonResult(map[string]any{
		"success": true,
		"count":   len(events),
		"events":  events,
	})
}

type onDateArgs struct {
	Date string `json:"date"`
}

func (s *Source) getEventsOnDate(ctx context.Context, args string) (string, error) {
	var a onDateArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: get_events_on_date: failed to parse arguments: %w", err)
	}

	day, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return errorResult(fmt.Sprintf("Ungültiges Datumsformat: %s", a.Date))
	}

	events := s.listWindow(ctx, day, day.AddDate(0, 0, 1), "", 0)
	return jsonResult(map[string]any{
		"success": true,
		"date":    a.Date,
		"count":   len(events),
		"events":  events,
	})
}

type createArgs struct {
	Title         string `json:"title"`
	StartDateTime string `json:"start_datetime"`
	EndDateTime   string `json:"end_datetime,omitempty"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
}

func (s *Source) createEvent(ctx context.Context, args string) (string, error) {
	var a createArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: create_event: failed to parse arguments: %w", err)
	}

	start, err := parseDateTime(a.StartDateTime)
	if err != nil {
		return errorResult(fmt.Sprintf("Ungültiges Datum/Zeit-Format: %s", a.StartDateTime))
	}
	end := start.Add(time.Hour)
	if a.EndDateTime != "" {
		end, err = parseDateTime(a.EndDateTime)
		if err != nil {
			return errorResult(fmt.Sprintf("Ungültiges Datum/Zeit-Format: %s", a.EndDateTime))
		}
	}

	body := &calendar.Event{
		Summary:     a.Title,
		Description: a.Description,
		Location:    a.Location,
		Start:       &calendar.EventDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: eventTimeZone},
		End:         &calendar.EventDateTime{DateTime: end.Format("2006-01-02T15:04:05"), TimeZone: eventTimeZone},
	}

	event, err := s.service.Events.Insert("primary", body).Context(ctx).Do()
	if err != nil {
		slog.Error("Failed to create event", "title", a.Title, "error", err)
		return errorResult("Der Termin konnte nicht erstellt werden.")
	}

	slog.Info("Event created", "title", a.Title, "start", a.StartDateTime)
	return jsonResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("Termin '%s' wurde erstellt", a.Title),
		"event":   formatEvent(event),
	})
}

type updateArgs struct {
	EventID       string  `json:"event_id"`
	Title         string  `json:"title,omitempty"`
	StartDateTime string  `json:"start_datetime,omitempty"`
	EndDateTime   string  `json:"end_datetime,omitempty"`
	Description   *string `json:"description,omitempty"`
	Location      *string `json:"location,omitempty"`
}

func (s *Source) updateEvent(ctx context.Context, args string) (string, error) {
	var a updateArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: update_event: failed to parse arguments: %w", err)
	}

	event, calendarID, err := s.findEvent(ctx, a.EventID)
	if err != nil {
		return errorResult(fmt.Sprintf("Termin mit ID %s nicht gefunden", a.EventID))
	}

	if a.Title != "" {
		event.Summary = a.Title
	}
	if a.StartDateTime != "" {
		start, err := parseDateTime(a.StartDateTime)
		if err != nil {
			return errorResult(fmt.Sprintf("Ungültiges Datum/Zeit-Format: %s", a.StartDateTime))
		}
		event.Start = &calendar.EventDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: eventTimeZone}
	}
	if a.EndDateTime != "" {
		end, err := parseDateTime(a.EndDateTime)
		if err != nil {
			return errorResult(fmt.Sprintf("Ungültiges Datum/Zeit-Format: %s", a.EndDateTime))
		}
		event.End = &calendar.EventDateTime{DateTime: end.Format("2006-01-02T15:04:05"), TimeZone: eventTimeZone}
	}
	if a.Description != nil {
		event.Description = *a.Description
	}
	if a.Location != nil {
		event.Location = *a.Location
	}

	updated, err := s.service.Events.Update(calendarID, a.EventID, event).Context(ctx).Do()
	if err != nil {
		slog.Error("Failed to update event", "id", a.EventID, "error", err)
		return errorResult("Der Termin konnte nicht aktualisiert werden.")
	}

	slog.Info("Event updated", "id", a.EventID)
	return jsonResult(map[string]any{
		"success": true,
		"message": "Termin wurde aktualisiert",
		"event":   formatEvent(updated),
	})
}

type deleteArgs struct {
	EventID string `json:"event_id"`
}

func (s *Source) deleteEvent(ctx context.Context, args string) (string, error) {
	var a deleteArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: delete_event: failed to parse arguments: %w", err)
	}

	event, calendarID, err := s.findEvent(ctx, a.EventID)
	if err != nil {
		return errorResult(fmt.Sprintf("Termin mit ID %s nicht gefunden", a.EventID))
	}

	title := event.Summary
	if title == "" {
		title = "Ohne Titel"
	}
	if err := s.service.Events.Delete(calendarID, a.EventID).Context(ctx).Do(); err != nil {
		slog.Error("Failed to delete event", "id", a.EventID, "error", err)
		return errorResult("Der Termin konnte nicht gelöscht werden.")
	}

	slog.Info("Event deleted", "id", a.EventID)
	return jsonResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("Termin '%s' wurde gelöscht", title),
	})
}

type searchArgs struct {
	Query string `json:"query"`
	Days  int    `json:"days,omitempty"`
}

func (s *Source) searchEvents(ctx context.Context, args string) (string, error) {
	var a searchArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("calendar: search_events: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return errorResult("Bitte gib einen Suchbegriff an.")
	}
	if a.Days <= 0 {
		a.Days = defaultSearchDays
	}

	now := s.now()
	events := s.listWindow(ctx, now, now.AddDate(0, 0, a.Days), a.Query, 0)
	return jsonResult(map[string]any{
		"success": true,
		"query":   a.Query,
		"count":   len(events),
		"events":  events,
	})
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "get_upcoming_events",
				Description: "Holt die nächsten Termine aus dem Kalender. Nutze dies wenn der Benutzer nach seinen Terminen fragt.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"days": map[string]any{
							"type":        "integer",
							"description": "Anzahl der Tage in die Zukunft (Standard: 7)",
						},
						"max_results": map[string]any{
							"type":        "integer",
							"description": "Maximale Anzahl der Termine (Standard: 10)",
						},
					},
				},
			},
			Handler: s.getUpcomingEvents,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "get_events_on_date",
				Description: "Holt alle Termine für ein bestimmtes Datum. Nutze dies wenn der Benutzer nach Terminen an einem bestimmten Tag fragt.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"date": map[string]any{
							"type":        "string",
							"description": "Das Datum im Format YYYY-MM-DD",
						},
					},
					"required": []string{"date"},
				},
			},
			Handler: s.getEventsOnDate,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "create_event",
				Description: "Erstellt einen neuen Termin im Kalender. Nutze dies wenn der Benutzer einen Termin anlegen möchte.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{
							"type":        "string",
							"description": "Titel des Termins",
						},
						"start_datetime": map[string]any{
							"type":        "string",
							"description": "Startzeit im Format YYYY-MM-DDTHH:MM:SS",
						},
						"end_datetime": map[string]any{
							"type":        "string",
							"description": "Endzeit im Format YYYY-MM-DDTHH:MM:SS (optional, Standard: 1 Stunde nach Start)",
						},
						"description": map[string]any{
							"type":        "string",
							"description": "Beschreibung des Termins (optional)",
						},
						"location": map[string]any{
							"type":        "string",
							"description": "Ort des Termins (optional)",
						},
					},
					"required": []string{"title", "start_datetime"},
				},
			},
			Handler: s.createEvent,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "update_event",
				Description: "Aktualisiert einen bestehenden Termin. Nutze dies wenn der Benutzer einen Termin ändern möchte.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"event_id": map[string]any{
							"type":        "string",
							"description": "Die ID des zu ändernden Termins",
						},
						"title": map[string]any{
							"type":        "string",
							"description": "Neuer Titel (optional)",
						},
						"start_datetime": map[string]any{
							"type":        "string",
							"description": "Neue Startzeit im Format YYYY-MM-DDTHH:MM:SS (optional)",
						},
						"end_datetime": map[string]any{
							"type":        "string",
							"description": "Neue Endzeit im Format YYYY-MM-DDTHH:MM:SS (optional)",
						},
						"description": map[string]any{
							"type":        "string",
							"description": "Neue Beschreibung (optional)",
						},
						"location": map[string]any{
							"type":        "string",
							"description": "Neuer Ort (optional)",
						},
					},
					"required": []string{"event_id"},
				},
			},
			Handler: s.updateEvent,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "delete_event",
				Description: "Löscht einen Termin aus dem Kalender. Nutze dies wenn der Benutzer einen Termin absagen oder löschen möchte.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"event_id": map[string]any{
							"type":        "string",
							"description": "Die ID des zu löschenden Termins",
						},
					},
					"required": []string{"event_id"},
				},
			},
			Handler: s.deleteEvent,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "search_events",
				Description: "Sucht nach Terminen mit einem bestimmten Suchbegriff. Nutze dies wenn der Benutzer nach einem bestimmten Termin sucht.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Suchbegriff",
						},
						"days": map[string]any{
							"type":        "integer",
							"description": "Anzahl der Tage zu durchsuchen (Standard: 30)",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.searchEvents,
		},
	}
}
