package weathertool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := New("test-key", "Berlin")
	s.baseURL = srv.URL
	return s
}

func TestFormatCurrentWeather(t *testing.T) {
	data := currentWeather{Name: "München"}
	data.Weather = []weatherEntry{{Description: "überwiegend bewölkt"}}
	data.Main = mainData{Temp: 18.34, FeelsLike: 17.2, Humidity: 65}
	data.Wind.Speed = 3.6

	got := formatCurrent(data)
	want := "In München: Überwiegend bewölkt, 18.3°C. Luftfeuchtigkeit 65%, Wind 3.6 m/s"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestFormatCurrentWeatherFeelsLikeOnlyWhenNotable(t *testing.T) {
	data := currentWeather{Name: "Berlin"}
	data.Weather = []weatherEntry{{Description: "klarer himmel"}}
	data.Main = mainData{Temp: 2.0, FeelsLike: -3.5, Humidity: 80}

	got := formatCurrent(data)
	if !strings.Contains(got, "(gefühlt -3.5°C)") {
		t.Errorf("feels-like missing at 5.5 degree difference: %q", got)
	}

	// Within 2 degrees the feels-like value is noise.
	data.Main.FeelsLike = 1.0
	got = formatCurrent(data)
	if strings.Contains(got, "gefühlt") {
		t.Errorf("feels-like shown at 1 degree difference: %q", got)
	}
}

func TestFormatCurrentWeatherOmitsCalmWind(t *testing.T) {
	data := currentWeather{Name: "Berlin"}
	data.Main = mainData{Temp: 10, FeelsLike: 10, Humidity: 50}

	if got := formatCurrent(data); strings.Contains(got, "Wind") {
		t.Errorf("wind shown at 0 m/s: %q", got)
	}
}

func forecastFixture(t *testing.T, loc *time.Location) forecastResponse {
	t.Helper()
	var data forecastResponse
	data.City.Name = "Hamburg"

	// Three-hourly slots across two days; noon slots carry distinct temps.
	day1 := time.Date(2026, 8, 28, 0, 0, 0, 0, loc)
	for _, spec := range []struct {
		day  time.Time
		hour int
		temp float64
		desc string
	}{
		{day1, 9, 14, "bedeckt"},
		{day1, 12, 17, "leichter regen"},
		{day1, 15, 16, "bedeckt"},
		{day1.AddDate(0, 0, 1), 12, 21, "sonnig"},
		{day1.AddDate(0, 0, 1), 18, 18, "klar"},
	} {
		item := forecastItem{Dt: spec.day.Add(time.Duration(spec.hour) * time.Hour).Unix()}
		item.Weather = []weatherEntry{{Description: spec.desc}}
		item.Main = mainData{Temp: spec.temp}
		data.List = append(data.List, item)
	}
	return data
}

func TestFormatForecastPicksNoonSlotPerDay(t *testing.T) {
	loc := time.Local
	data := forecastFixture(t, loc)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, loc)

	got := formatForecast(data, 3, now)
	want := "Wettervorhersage für Hamburg: Heute: leichter regen, 17°C. Morgen: sonnig, 21°C"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestFormatForecastSkipsTodayInTheEvening(t *testing.T) {
	loc := time.Local
	data := forecastFixture(t, loc)
	now := time.Date(2026, 8, 28, 21, 0, 0, 0, loc)

	got := formatForecast(data, 3, now)
	if strings.Contains(got, "leichter regen") {
		t.Errorf("today's forecast still present after 18:00: %q", got)
	}
	if !strings.Contains(got, "Heute: sonnig") {
		t.Errorf("next day not promoted to first slot: %q", got)
	}
}

func TestFormatForecastEmptyList(t *testing.T) {
	var data forecastResponse
	if got := formatForecast(data, 3, time.Now()); got != "Keine Vorhersagedaten verfügbar." {
		t.Errorf("got %q", got)
	}
}

func TestGetWeatherUsesDefaultCity(t *testing.T) {
	var gotQuery string
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "Berlin",
			"weather": []map[string]any{{"description": "klarer himmel"}},
			"main":    map[string]any{"temp": 22.0, "feels_like": 22.0, "humidity": 40},
		})
	})

	out, err := s.getWeather(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("get_weather: %v", err)
	}
	if gotQuery != "Berlin" {
		t.Errorf("queried city = %q, want default Berlin", gotQuery)
	}
	if !strings.HasPrefix(out, "In Berlin: Klarer himmel, 22.0°C") {
		t.Errorf("got %q", out)
	}
}

func TestGetWeatherUnknownCity(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	out, err := s.getWeather(context.Background(), `{"city": "Atlantis"}`)
	if err != nil {
		t.Fatalf("get_weather: %v", err)
	}
	if !strings.Contains(out, "Konnte das Wetter für 'Atlantis' nicht abrufen") {
		t.Errorf("got %q", out)
	}
}

func TestGetForecastSendsMetricGermanParams(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("units") != "metric" || q.Get("lang") != "de" || q.Get("appid") != "test-key" {
			t.Errorf("unexpected query params: %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{"city": map[string]any{"name": "Berlin"}, "list": []any{}})
	})

	out, err := s.getForecast(context.Background(), `{"days": 99}`)
	if err != nil {
		t.Fatalf("get_weather_forecast: %v", err)
	}
	if out != "Keine Vorhersagedaten verfügbar." {
		t.Errorf("got %q", out)
	}
}

func TestInitRequiresAPIKey(t *testing.T) {
	s := New("", "Berlin")
	if err := s.Init(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
	if err := New("key", "").Init(context.Background()); err != nil {
		t.Fatalf("Init with key: %v", err)
	}
}
