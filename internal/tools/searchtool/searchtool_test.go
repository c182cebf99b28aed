package searchtool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := New("test-key")
	s.baseURL = srv.URL
	return s
}

func decodeRequest(t *testing.T, r *http.Request) searchRequest {
	t.Helper()
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func TestWebSearchRequestShape(t *testing.T) {
	var got searchRequest
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		json.NewEncoder(w).Encode(searchResponse{Answer: "Die Antwort."})
	})

	out, err := s.webSearch(context.Background(), `{"query": "quantencomputer", "search_depth": "advanced"}`)
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	if got.Query != "quantencomputer" || got.SearchDepth != "advanced" {
		t.Errorf("request = %+v", got)
	}
	if !got.IncludeAnswer || got.IncludeRawContent || got.MaxResults != 5 || got.APIKey != "test-key" {
		t.Errorf("request options = %+v", got)
	}
	if out != "Zusammenfassung: Die Antwort." {
		t.Errorf("got %q", out)
	}
}

func TestWebSearchNewsSetsTopic(t *testing.T) {
	var got searchRequest
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeRequest(t, r)
		json.NewEncoder(w).Encode(searchResponse{Answer: "Neuigkeiten."})
	})

	if _, err := s.webSearchNews(context.Background(), `{"query": "tesla"}`); err != nil {
		t.Fatalf("web_search_news: %v", err)
	}
	if got.Topic != "news" || got.SearchDepth != "basic" {
		t.Errorf("request = %+v", got)
	}
}

func TestFormatResultsIncludesSources(t *testing.T) {
	data := &searchResponse{
		Answer: "Kurzfassung.",
		Results: []searchResult{
			{Title: "Erste Quelle", Content: "Etwas Inhalt."},
			{Title: "", Content: ""},
			{Title: "Dritte Quelle", Content: strings.Repeat("lang ", 60)},
			{Title: "Vierte Quelle", Content: "Wird nicht mehr gezeigt."},
		},
	}

	got := formatResults(data)
	if !strings.HasPrefix(got, "Zusammenfassung: Kurzfassung.") {
		t.Errorf("answer missing: %q", got)
	}
	if !strings.Contains(got, "Quellen:") {
		t.Errorf("sources header missing: %q", got)
	}
	if !strings.Contains(got, "1. Erste Quelle: Etwas Inhalt.") {
		t.Errorf("first source missing: %q", got)
	}
	if !strings.Contains(got, "2. Ohne Titel") {
		t.Errorf("untitled fallback missing: %q", got)
	}
	if strings.Contains(got, "Vierte Quelle") {
		t.Errorf("more than three sources rendered: %q", got)
	}
	// Long content is trimmed at a word boundary.
	if !strings.Contains(got, "...") {
		t.Errorf("long content not truncated: %q", got)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := formatResults(&searchResponse{}); got != "Keine relevanten Ergebnisse gefunden." {
		t.Errorf("got %q", got)
	}
}

func TestQuickAnswerPrefersAnswer(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{
			Answer:  "330 Meter.",
			Results: []searchResult{{Content: "Der Eiffelturm..."}},
		})
	})

	out, err := s.quickAnswer(context.Background(), `{"question": "Wie hoch ist der Eiffelturm?"}`)
	if err != nil {
		t.Fatalf("quick_answer: %v", err)
	}
	if out != "330 Meter." {
		t.Errorf("got %q", out)
	}
}

func TestQuickAnswerFallsBackToFirstResult(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{
			Results: []searchResult{{Content: "Inhalt der ersten Quelle."}},
		})
	})

	out, err := s.quickAnswer(context.Background(), `{"question": "frage"}`)
	if err != nil {
		t.Fatalf("quick_answer: %v", err)
	}
	if out != "Inhalt der ersten Quelle." {
		t.Errorf("got %q", out)
	}
}

func TestEmptyQueriesRejectedWithoutRequest(t *testing.T) {
	s := newTestSource(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request sent for empty query")
	})
	ctx := context.Background()

	if out, _ := s.webSearch(ctx, `{"query": "  "}`); out != "Bitte gib eine Suchanfrage an." {
		t.Errorf("web_search: got %q", out)
	}
	if out, _ := s.webSearchNews(ctx, `{"query": ""}`); out != "Bitte gib ein Thema für die Nachrichtensuche an." {
		t.Errorf("web_search_news: got %q", out)
	}
	if out, _ := s.quickAnswer(ctx, `{"question": ""}`); out != "Bitte stelle eine Frage." {
		t.Errorf("quick_answer: got %q", out)
	}
}

func TestSearchFailureMessage(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	out, err := s.webSearch(context.Background(), `{"query": "irgendwas"}`)
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	if !strings.Contains(out, "ist fehlgeschlagen") {
		t.Errorf("got %q", out)
	}
}

func TestInitRequiresAPIKey(t *testing.T) {
	if err := New("").Init(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
	if err := New("key").Init(context.Background()); err != nil {
		t.Fatalf("Init with key: %v", err)
	}
}
