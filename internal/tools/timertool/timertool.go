// Package timertool provides named countdown timers with an audible alarm.
//
// Multiple timers run concurrently, keyed by name. Each timer counts down in
// a background goroutine; on expiry the alarm callback fires once and the
// timer is removed. Timers can be paused, resumed, and extended while
// running.
package timertool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	// maxDuration caps a single timer at 24 hours.
	maxDuration = 24 * time.Hour

	// tickInterval is how often each timer goroutine re-checks expiry.
	tickInterval = 100 * time.Millisecond

	// alarmRepeats and alarmGap shape the expiry alarm: the sound plays
	// three times with a short pause in between.
	alarmRepeats = 3
	alarmGap     = 500 * time.Millisecond
)

// AlarmFunc plays the alarm sound once. Implementations may block for the
// duration of the sound.
type AlarmFunc func()

// timer is one countdown instance. All fields are guarded by Source.mu.
type timer struct {
	name      string
	duration  time.Duration
	remaining time.Duration
	startTime time.Time
	paused    bool
}

// Source manages the timer set and exposes the timer tools.
type Source struct {
	mu     sync.Mutex
	timers map[string]*timer

	alarm AlarmFunc
	now   func() time.Time
	tick  time.Duration
	sleep func(time.Duration)
}

var _ tools.Source = (*Source)(nil)
var _ tools.Closer = (*Source)(nil)

// New constructs the timer source. alarm plays the expiry sound once per
// call; pass nil to disable audible alarms (expiry is still logged).
func New(alarm AlarmFunc) *Source {
	return &Source{
		timers: make(map[string]*timer),
		alarm:  alarm,
		now:    time.Now,
		tick:   tickInterval,
		sleep:  time.Sleep,
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "timer" }

// Close stops all running timers without firing their alarms.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.timers)
	return nil
}

// ── countdown ────────────────────────────────────────────────────────────────

// runTimer polls the timer until it expires or is removed, then fires the
// alarm for expired timers. Runs in its own goroutine per timer.
func (s *Source) runTimer(name string) {
	for {
		s.sleep(s.tick)
		expired, gone := s.checkExpired(name)
		if gone {
			return
		}
		if expired {
			break
		}
	}

	slog.Info("Timer expired", "timer", name)
	if s.alarm != nil {
		for i := 0; i < alarmRepeats; i++ {
			s.alarm()
			s.sleep(alarmGap)
		}
	}
}

// checkExpired updates the timer's remaining time and removes it when it
// reaches zero. Returns expired=true when the timer just ran out, gone=true
// when the timer no longer exists (stopped externally).
func (s *Source) checkExpired(name string) (expired, gone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[name]
	if !ok {
		return false, true
	}
	if t.paused {
		return false, false
	}

	t.remaining = t.duration - s.now().Sub(t.startTime)
	if t.remaining <= 0 {
		delete(s.timers, name)
		return true, false
	}
	return false, false
}

// generateName returns the first free "Timer N" name. Caller holds s.mu.
func (s *Source) generateName() string {
	n := len(s.timers) + 1
	for {
		name := fmt.Sprintf("Timer %d", n)
		if _, exists := s.timers[name]; !exists {
			return name
		}
		n++
	}
}

// activeNames returns all timer names sorted for stable output. Caller
// holds s.mu.
func (s *Source) activeNames() []string {
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveName picks the timer to operate on: an explicit name, or the only
// running timer when exactly one exists. Caller holds s.mu.
func (s *Source) resolveName(name string) string {
	if name != "" {
		return name
	}
	if len(s.timers) == 1 {
		return s.activeNames()[0]
	}
	return ""
}

// formatDuration renders a duration as spoken German, e.g.
// "1 Stunden, 5 Minuten und 30 Sekunden".
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}

	switch {
	case secs >= 3600:
		h, m, sec := secs/3600, (secs%3600)/60, secs%60
		if sec > 0 {
			return fmt.Sprintf("%d Stunden, %d Minuten und %d Sekunden", h, m, sec)
		}
		if m > 0 {
			return fmt.Sprintf("%d Stunden und %d Minuten", h, m)
		}
		return fmt.Sprintf("%d Stunden", h)
	case secs >= 60:
		m, sec := secs/60, secs%60
		if sec > 0 {
			return fmt.Sprintf("%d Minuten und %d Sekunden", m, sec)
		}
		return fmt.Sprintf("%d Minuten", m)
	default:
		return fmt.Sprintf("%d Sekunden", secs)
	}
}

// ── tool handlers ────────────────────────────────────────────────────────────

type setTimerArgs struct {
	Hours   int    `json:"hours,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (s *Source) setTimer(_ context.Context, args string) (string, error) {
	var a setTimerArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: set_timer: failed to parse arguments: %w", err)
	}

	total := time.Duration(a.Hours)*time.Hour +
		time.Duration(a.Minutes)*time.Minute +
		time.Duration(a.Seconds)*time.Second
	if total <= 0 {
		return "Bitte gib eine gültige Zeit an (z.B. 5 Minuten).", nil
	}
	if total > maxDuration {
		return "Timer kann maximal 24 Stunden lang sein.", nil
	}

	s.mu.Lock()
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = s.generateName()
	}
	if _, exists := s.timers[name]; exists {
		s.mu.Unlock()
		return fmt.Sprintf("Ein Timer mit dem Namen '%s' läuft bereits. Stoppe ihn zuerst oder wähle einen anderen Namen.", name), nil
	}
	s.timers[name] = &timer{
		name:      name,
		duration:  total,
		remaining: total,
		startTime: s.now(),
	}
	s.mu.Unlock()

	go s.runTimer(name)

	durationStr := formatDuration(total)
	slog.Info("Timer started", "timer", name, "duration", durationStr)
	return fmt.Sprintf("Timer '%s' auf %s gestellt.", name, durationStr), nil
}

type nameArg struct {
	Name string `json:"name,omitempty"`
}

func (s *Source) stopTimer(_ context.Context, args string) (string, error) {
	var a nameArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: stop_timer: failed to parse arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return "Es läuft kein Timer.", nil
	}

	if a.Name != "" {
		if _, ok := s.timers[a.Name]; !ok {
			available := strings.Join(s.activeNames(), ", ")
			return fmt.Sprintf("Timer '%s' nicht gefunden. Aktive Timer: %s", a.Name, available), nil
		}
		delete(s.timers, a.Name)
		slog.Info("Timer stopped", "timer", a.Name)
		return fmt.Sprintf("Timer '%s' gestoppt.", a.Name), nil
	}

	if len(s.timers) == 1 {
		name := s.activeNames()[0]
		delete(s.timers, name)
		slog.Info("Timer stopped", "timer", name)
		return fmt.Sprintf("Timer '%s' gestoppt.", name), nil
	}

	count := len(s.timers)
	clear(s.timers)
	slog.Info("All timers stopped", "count", count)
	return fmt.Sprintf("Alle %d Timer gestoppt.", count), nil
}

func (s *Source) timerStatus(_ context.Context, args string) (string, error) {
	var a nameArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: timer_status: failed to parse arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return "Es läuft kein Timer.", nil
	}

	if a.Name != "" {
		t, ok := s.timers[a.Name]
		if !ok {
			return fmt.Sprintf("Timer '%s' nicht gefunden.", a.Name), nil
		}
		return fmt.Sprintf("Timer '%s': %s verbleibend (%s)",
			t.name, formatDuration(s.currentRemaining(t)), runState(t)), nil
	}

	var parts []string
	for _, name := range s.activeNames() {
		t := s.timers[name]
		parts = append(parts, fmt.Sprintf("'%s': %s (%s)",
			t.name, formatDuration(s.currentRemaining(t)), runState(t)))
	}
	return "Aktive Timer: " + strings.Join(parts, ", "), nil
}

// currentRemaining computes a timer's remaining time at this instant.
// Caller holds s.mu.
func (s *Source) currentRemaining(t *timer) time.Duration {
	if t.paused {
		return t.remaining
	}
	return t.duration - s.now().Sub(t.startTime)
}

func runState(t *timer) string {
	if t.paused {
		return "pausiert"
	}
	return "läuft"
}

func (s *Source) pauseTimer(_ context.Context, args string) (string, error) {
	var a nameArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: pause_timer: failed to parse arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return "Es läuft kein Timer.", nil
	}

	name := s.resolveName(a.Name)
	if name == "" {
		return "Bitte gib an, welchen Timer du pausieren möchtest.", nil
	}
	t, ok := s.timers[name]
	if !ok {
		return fmt.Sprintf("Timer '%s' nicht gefunden.", name), nil
	}
	if t.paused {
		return fmt.Sprintf("Timer '%s' ist bereits pausiert.", name), nil
	}

	// Snapshot the remaining time so the countdown freezes.
	t.remaining = t.duration - s.now().Sub(t.startTime)
	t.paused = true

	slog.Info("Timer paused", "timer", name)
	return fmt.Sprintf("Timer '%s' pausiert. Verbleibend: %s", name, formatDuration(t.remaining)), nil
}

func (s *Source) resumeTimer(_ context.Context, args string) (string, error) {
	var a nameArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: resume_timer: failed to parse arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return "Es läuft kein Timer.", nil
	}

	name := s.resolveName(a.Name)
	if name == "" {
		return "Bitte gib an, welchen Timer du fortsetzen möchtest.", nil
	}
	t, ok := s.timers[name]
	if !ok {
		return fmt.Sprintf("Timer '%s' nicht gefunden.", name), nil
	}
	if !t.paused {
		return fmt.Sprintf("Timer '%s' läuft bereits.", name), nil
	}

	// Re-base the countdown on the frozen remaining time.
	t.startTime = s.now()
	t.duration = t.remaining
	t.paused = false

	slog.Info("Timer resumed", "timer", name)
	return fmt.Sprintf("Timer '%s' fortgesetzt. Verbleibend: %s", name, formatDuration(t.remaining)), nil
}

type addTimeArgs struct {
	Minutes int    `json:"minutes,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (s *Source) addTime(_ context.Context, args string) (string, error) {
	var a addTimeArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("timer tool: add_timer_time: failed to parse arguments: %w", err)
	}

	additional := time.Duration(a.Minutes)*time.Minute + time.Duration(a.Seconds)*time.Second
	if additional <= 0 {
		return "Bitte gib an, wie viel Zeit hinzugefügt werden soll.", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.timers) == 0 {
		return "Es läuft kein Timer.", nil
	}

	name := s.resolveName(a.Name)
	if name == "" {
		return "Bitte gib an, zu welchem Timer Zeit hinzugefügt werden soll.", nil
	}
	t, ok := s.timers[name]
	if !ok {
		return fmt.Sprintf("Timer '%s' nicht gefunden.", name), nil
	}

	t.duration += additional
	if t.paused {
		t.remaining += additional
	}

	addedStr := formatDuration(additional)
	newRemaining := formatDuration(s.currentRemaining(t))
	slog.Info("Timer extended", "timer", name, "added", addedStr)
	return fmt.Sprintf("%s zu Timer '%s' hinzugefügt. Neue verbleibende Zeit: %s", addedStr, name, newRemaining), nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	nameProp := map[string]any{
		"type":        "string",
		"description": "Name des Timers",
	}

	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "set_timer",
				Description: "Setzt einen Countdown-Timer. Nach Ablauf ertönt ein Alarm. Beispiel: 'Timer auf 5 Minuten' oder 'Stelle einen Eier-Timer auf 7 Minuten'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"minutes": map[string]any{
							"type":        "integer",
							"description": "Minuten für den Timer",
						},
						"seconds": map[string]any{
							"type":        "integer",
							"description": "Sekunden für den Timer",
						},
						"hours": map[string]any{
							"type":        "integer",
							"description": "Stunden für den Timer",
						},
						"name": map[string]any{
							"type":        "string",
							"description": "Optionaler Name für den Timer (z.B. 'Nudeln', 'Eier')",
						},
					},
				},
			},
			Handler: s.setTimer,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "stop_timer",
				Description: "Stoppt einen laufenden Timer. Beispiel: 'Stoppe den Timer' oder 'Timer abbrechen'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Name des Timers (leer = alle Timer stoppen)",
						},
					},
				},
			},
			Handler: s.stopTimer,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "timer_status",
				Description: "Zeigt die verbleibende Zeit des Timers. Beispiel: 'Wie lange läuft der Timer noch?'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Name des Timers (leer = alle Timer)",
						},
					},
				},
			},
			Handler: s.timerStatus,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "pause_timer",
				Description: "Pausiert einen laufenden Timer. Beispiel: 'Pausiere den Timer'",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"name": nameProp},
				},
			},
			Handler: s.pauseTimer,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "resume_timer",
				Description: "Setzt einen pausierten Timer fort. Beispiel: 'Timer fortsetzen'",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"name": nameProp},
				},
			},
			Handler: s.resumeTimer,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "add_timer_time",
				Description: "Fügt Zeit zu einem laufenden Timer hinzu. Beispiel: 'Füge 2 Minuten zum Timer hinzu'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"minutes": map[string]any{
							"type":        "integer",
							"description": "Minuten hinzufügen",
						},
						"seconds": map[string]any{
							"type":        "integer",
							"description": "Sekunden hinzufügen",
						},
						"name": nameProp,
					},
				},
			},
			Handler: s.addTime,
		},
	}
}
