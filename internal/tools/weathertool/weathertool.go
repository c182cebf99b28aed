// Package weathertool provides current-weather and forecast tools backed by
// the OpenWeatherMap API.
package weathertool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5"
	requestTimeout = 10 * time.Second

	maxForecastDays = 5
)

// Source is the OpenWeatherMap-backed weather tool source.
type Source struct {
	apiKey      string
	defaultCity string
	baseURL     string
	client      *http.Client
	now         func() time.Time
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)

// New constructs the weather source. defaultCity is used when a query names
// no city.
func New(apiKey, defaultCity string) *Source {
	if defaultCity == "" {
		defaultCity = "Berlin"
	}
	return &Source{
		apiKey:      apiKey,
		defaultCity: defaultCity,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: requestTimeout},
		now:         time.Now,
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "weather" }

// Init checks that an API key is configured.
func (s *Source) Init(context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("weather: api key not set, get a free key from https://openweathermap.org/api")
	}
	slog.Info("Weather tool initialized", "default_city", s.defaultCity)
	return nil
}

// ── API types ────────────────────────────────────────────────────────────────

type weatherEntry struct {
	Description string `json:"description"`
}

type mainData struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  int     `json:"humidity"`
}

type currentWeather struct {
	Name    string         `json:"name"`
	Weather []weatherEntry `json:"weather"`
	Main    mainData       `json:"main"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type forecastItem struct {
	Dt      int64          `json:"dt"`
	Weather []weatherEntry `json:"weather"`
	Main    mainData       `json:"main"`
}

type forecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []forecastItem `json:"list"`
}

func (s *Source) request(ctx context.Context, endpoint, city string, out any) error {
	params := url.Values{
		"q":     {city},
		"appid": {s.apiKey},
		"units": {"metric"},
		"lang":  {"de"},
	}
	reqURL := fmt.Sprintf("%s/%s?%s", s.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("weather: city %q not found", city)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ── formatting ───────────────────────────────────────────────────────────────

func formatCurrent(data currentWeather) string {
	description := "unbekannt"
	if len(data.Weather) > 0 && data.Weather[0].Description != "" {
		description = data.Weather[0].Description
	}
	description = capitalize(description)

	var b strings.Builder
	fmt.Fprintf(&b, "In %s: %s, %.1f°C", data.Name, description, data.Main.Temp)

	if diff := data.Main.FeelsLike - data.Main.Temp; diff > 2 || diff < -2 {
		fmt.Fprintf(&b, " (gefühlt %.1f°C)", data.Main.FeelsLike)
	}
	fmt.Fprintf(&b, ". Luftfeuchtigkeit %d%%", data.Main.Humidity)
	if data.Wind.Speed > 0 {
		fmt.Fprintf(&b, ", Wind %.1f m/s", data.Wind.Speed)
	}
	return b.String()
}

var dayNames = []string{"Heute", "Morgen", "Übermorgen"}

// formatForecast reduces the 3-hourly forecast list to one entry per day,
// preferring the slot closest to noon, and renders the first days entries.
func formatForecast(data forecastResponse, days int, now time.Time) string {
	if len(data.List) == 0 {
		return "Keine Vorhersagedaten verfügbar."
	}

	type daySlot struct {
		hour int
		item forecastItem
		date time.Time
	}
	daily := make(map[string]daySlot)
	for _, item := range data.List {
		ts := time.Unix(item.Dt, 0).In(now.Location())
		key := ts.Format("2006-01-02")
		slot, exists := daily[key]
		if !exists || absInt(ts.Hour()-12) < absInt(slot.hour-12) {
			daily[key] = daySlot{hour: ts.Hour(), item: item, date: ts}
		}
	}

	dates := make([]string, 0, len(daily))
	for key := range daily {
		dates = append(dates, key)
	}
	sort.Strings(dates)

	// Late in the evening today's forecast is no longer interesting.
	if len(dates) > 0 && now.Hour() > 18 {
		dates = dates[1:]
	}
	if len(dates) > days {
		dates = dates[:days]
	}

	parts := make([]string, 0, len(dates))
	for i, key := range dates {
		slot := daily[key]
		description := "unbekannt"
		if len(slot.item.Weather) > 0 && slot.item.Weather[0].Description != "" {
			description = slot.item.Weather[0].Description
		}
		dayName := slot.date.Weekday().String()
		if i < len(dayNames) {
			dayName = dayNames[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %s, %.0f°C", dayName, description, slot.item.Main.Temp))
	}
	return fmt.Sprintf("Wettervorhersage für %s: %s", data.City.Name, strings.Join(parts, ". "))
}

// capitalize upper-cases the first rune; descriptions may start with
// umlauts.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ── tool handlers ────────────────────────────────────────────────────────────

type weatherArgs struct {
	City string `json:"city,omitempty"`
	Days int    `json:"days,omitempty"`
}

func (s *Source) cityOrDefault(city string) string {
	if city = strings.TrimSpace(city); city != "" {
		return city
	}
	return s.defaultCity
}

func (s *Source) getWeather(ctx context.Context, args string) (string, error) {
	var a weatherArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("weather: get_weather: failed to parse arguments: %w", err)
	}

	city := s.cityOrDefault(a.City)
	slog.Info("Weather lookup", "city", city)

	var data currentWeather
	if err := s.request(ctx, "weather", city, &data); err != nil {
		slog.Warn("Weather lookup failed", "city", city, "error", err)
		return fmt.Sprintf("Konnte das Wetter für '%s' nicht abrufen. Ist der Stadtname korrekt?", city), nil
	}
	return formatCurrent(data), nil
}

func (s *Source) getForecast(ctx context.Context, args string) (string, error) {
	var a weatherArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("weather: get_weather_forecast: failed to parse arguments: %w", err)
	}

	city := s.cityOrDefault(a.City)
	days := a.Days
	if days == 0 {
		days = 3
	}
	days = min(max(days, 1), maxForecastDays)
	slog.Info("Forecast lookup", "city", city, "days", days)

	var data forecastResponse
	if err := s.request(ctx, "forecast", city, &data); err != nil {
		slog.Warn("Forecast lookup failed", "city", city, "error", err)
		return fmt.Sprintf("Konnte die Vorhersage für '%s' nicht abrufen.", city), nil
	}
	return formatForecast(data, days, s.now()), nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "get_weather",
				Description: fmt.Sprintf("Ruft das aktuelle Wetter ab. Ohne Stadtangabe wird %s verwendet. Beispiel: 'Wie ist das Wetter?' oder 'Wetter in München'", s.defaultCity),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"city": map[string]any{
							"type":        "string",
							"description": "Stadt für die Wetterabfrage (optional)",
						},
					},
				},
			},
			Handler: s.getWeather,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "get_weather_forecast",
				Description: "Ruft die Wettervorhersage für die nächsten Tage ab. Beispiel: 'Wie wird das Wetter morgen?' oder 'Wettervorhersage für Hamburg'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"city": map[string]any{
							"type":        "string",
							"description": "Stadt für die Vorhersage (optional)",
						},
						"days": map[string]any{
							"type":        "integer",
							"description": "Anzahl der Tage (1-5, Standard: 3)",
						},
					},
				},
			},
			Handler: s.getForecast,
		},
	}
}
