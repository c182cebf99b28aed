package newstool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func rssFeed(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title>`)
	for _, title := range titles {
		fmt.Fprintf(&b, "<item><title>%s</title><description>Beschreibung zu %s mit etwas mehr Text dahinter</description></item>", title, title)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

// newTestSource rewires the tagesschau source to a local httptest feed.
func newTestSource(t *testing.T, feedXML string) (*Source, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	t.Cleanup(srv.Close)

	s := New("tagesschau")
	src := s.sources["tagesschau"]
	src.URL = srv.URL
	s.sources["tagesschau"] = src
	return s, &fetches
}

func TestResolveSourceAliasesAndPartialMatches(t *testing.T) {
	s := New("")

	cases := map[string]string{
		"":            "tagesschau",
		"sport":       "sportschau",
		"tech":        "heise",
		"wirtschaft":  "tagesschau_wirtschaft",
		"spiegel":     "spiegel",
		"Zeit Online": "zeit",
		"unbekannt":   "tagesschau",
	}
	for input, want := range cases {
		if got := s.resolveSource(input); got != want {
			t.Errorf("resolveSource(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGetNewsNumbersHeadlines(t *testing.T) {
	s, _ := newTestSource(t, rssFeed("Erste Meldung", "Zweite Meldung", "Dritte Meldung"))

	out, err := s.getNews(context.Background(), `{"count": 2}`)
	if err != nil {
		t.Fatalf("get_news: %v", err)
	}
	want := "Aktuelle Nachrichten von Tagesschau: 1. Erste Meldung 2. Zweite Meldung"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
}

func TestGetNewsCountClamped(t *testing.T) {
	titles := make([]string, 15)
	for i := range titles {
		titles[i] = fmt.Sprintf("Meldung %d", i+1)
	}
	s, _ := newTestSource(t, rssFeed(titles...))

	out, err := s.getNews(context.Background(), `{"count": 50}`)
	if err != nil {
		t.Fatalf("get_news: %v", err)
	}
	if strings.Contains(out, "11. ") {
		t.Errorf("more than 10 headlines returned: %q", out)
	}
	if !strings.Contains(out, "10. Meldung 10") {
		t.Errorf("clamp to 10 missing: %q", out)
	}
}

func TestGetNewsFeedCached(t *testing.T) {
	s, fetches := newTestSource(t, rssFeed("Meldung"))
	ctx := context.Background()

	s.getNews(ctx, `{}`)
	s.getNews(ctx, `{}`)
	if n := fetches.Load(); n != 1 {
		t.Errorf("feed fetched %d times within cache window, want 1", n)
	}
}

func TestGetNewsTopicFiltersAndDescribes(t *testing.T) {
	s, _ := newTestSource(t, rssFeed("Bundesliga Topspiel heute", "Wetterbericht", "Bundesliga Transfers"))

	out, err := s.getNewsTopic(context.Background(), `{"topic": "bundesliga"}`)
	if err != nil {
		t.Fatalf("get_news_topic: %v", err)
	}
	if !strings.HasPrefix(out, "Aktuelle Nachrichten: ") {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "Wetterbericht") {
		t.Errorf("unrelated headline included: %q", out)
	}
	if !strings.Contains(out, "Bundesliga Topspiel heute: Beschreibung zu") {
		t.Errorf("description missing: %q", out)
	}
}

func TestGetNewsTopicNoMatches(t *testing.T) {
	s, _ := newTestSource(t, rssFeed("Wetterbericht"))

	out, err := s.getNewsTopic(context.Background(), `{"topic": "raumfahrt"}`)
	if err != nil {
		t.Fatalf("get_news_topic: %v", err)
	}
	if out != "Keine aktuellen Nachrichten zu 'raumfahrt' gefunden." {
		t.Errorf("got %q", out)
	}
}

func TestCleanTextStripsMarkupAndEntities(t *testing.T) {
	got := cleanText("  <p>Kanzler &amp; Kabinett</p>\n  einigen   sich ")
	if got != "Kanzler & Kabinett einigen sich" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateAtWord(t *testing.T) {
	text := strings.Repeat("wort ", 50)
	got := truncateAtWord(text, 150)
	if len(got) > 154 {
		t.Errorf("truncated text too long: %d chars", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("no ellipsis: %q", got)
	}
	if got := truncateAtWord("kurz", 150); got != "kurz" {
		t.Errorf("short text modified: %q", got)
	}
}

func TestListSources(t *testing.T) {
	s := New("")
	out, err := s.listSources(context.Background(), "{}")
	if err != nil {
		t.Fatalf("list_news_sources: %v", err)
	}
	for _, want := range []string{"Tagesschau (allgemein)", "Heise (technik)", "Sportschau (sport)"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
