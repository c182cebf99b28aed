// Package newstool provides news-headline tools fed by German RSS/Atom
// feeds. Feeds are fetched with gofeed and cached per source for a few
// minutes so repeated questions do not hammer the publishers.
package newstool

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	cacheDuration = 5 * time.Minute
	fetchTimeout  = 10 * time.Second
	userAgent     = "VoiceAssistant/1.0"

	maxHeadlines    = 10
	topicResults    = 3
	topicDescLength = 150
)

// feedSource is one configured news feed.
type feedSource struct {
	Name     string
	URL      string
	Category string
}

func defaultSources() map[string]feedSource {
	return map[string]feedSource{
		"tagesschau": {
			Name:     "Tagesschau",
			URL:      "https://www.tagesschau.de/index~rss2.xml",
			Category: "allgemein",
		},
		"spiegel": {
			Name:     "Spiegel",
			URL:      "https://www.spiegel.de/schlagzeilen/tops/index.rss",
			Category: "allgemein",
		},
		"zeit": {
			Name:     "Zeit Online",
			URL:      "https://newsfeed.zeit.de/index",
			Category: "allgemein",
		},
		"heise": {
			Name:     "Heise",
			URL:      "https://www.heise.de/rss/heise-atom.xml",
			Category: "technik",
		},
		"sportschau": {
			Name:     "Sportschau",
			URL:      "https://www.sportschau.de/index~rss2.xml",
			Category: "sport",
		},
		"tagesschau_wirtschaft": {
			Name:     "Tagesschau Wirtschaft",
			URL:      "https://www.tagesschau.de/wirtschaft/index~rss2.xml",
			Category: "wirtschaft",
		},
	}
}

// Category shorthands spoken by users, mapped to source keys.
var categoryAliases = map[string]string{
	"sport":      "sportschau",
	"sports":     "sportschau",
	"technik":    "heise",
	"tech":       "heise",
	"technology": "heise",
	"wirtschaft": "tagesschau_wirtschaft",
	"economy":    "tagesschau_wirtschaft",
	"business":   "tagesschau_wirtschaft",
}

// headline is one cleaned feed item.
type headline struct {
	Title       string
	Description string
}

type cacheEntry struct {
	fetchedAt time.Time
	items     []headline
}

// Source is the RSS-backed news tool source.
type Source struct {
	defaultSource string
	sources       map[string]feedSource
	parser        *gofeed.Parser

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)

// New constructs the news source. defaultSource selects the feed used when
// the user names none; empty means tagesschau.
func New(defaultSource string) *Source {
	if defaultSource == "" {
		defaultSource = "tagesschau"
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Source{
		defaultSource: defaultSource,
		sources:       defaultSources(),
		parser:        parser,
		cache:         make(map[string]cacheEntry),
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "news" }

// Init implements [tools.Initializer].
func (s *Source) Init(context.Context) error {
	if _, ok := s.sources[s.defaultSource]; !ok {
		return fmt.Errorf("news: unknown default source %q", s.defaultSource)
	}
	slog.Info("News tool initialized", "sources", len(s.sources))
	return nil
}

// ── feed fetching ────────────────────────────────────────────────────────────

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// cleanText strips HTML tags and entities and collapses whitespace.
func cleanText(text string) string {
	text = html.UnescapeString(text)
	text = tagPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// resolveSource maps a spoken source or category name to a source key,
// falling back to the default source.
func (s *Source) resolveSource(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return s.defaultSource
	}
	if alias, ok := categoryAliases[key]; ok {
		return alias
	}
	if _, ok := s.sources[key]; ok {
		return key
	}
	// Partial match against keys and display names, in stable order.
	keys := make([]string, 0, len(s.sources))
	for k := range s.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, key) || strings.Contains(strings.ToLower(s.sources[k].Name), key) {
			return k
		}
	}
	return s.defaultSource
}

// fetchFeed returns the cleaned items of one source, served from cache when
// fresh.
func (s *Source) fetchFeed(ctx context.Context, sourceKey string) []headline {
	source, ok := s.sources[sourceKey]
	if !ok {
		return nil
	}

	s.mu.Lock()
	if entry, ok := s.cache[sourceKey]; ok && time.Since(entry.fetchedAt) < cacheDuration {
		s.mu.Unlock()
		return entry.items
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		slog.Error("Failed to fetch news feed", "source", source.Name, "error", err)
		return nil
	}

	items := make([]headline, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := cleanText(item.Title)
		if title == "" {
			continue
		}
		items = append(items, headline{
			Title:       title,
			Description: cleanText(item.Description),
		})
	}

	s.mu.Lock()
	s.cache[sourceKey] = cacheEntry{fetchedAt: time.Now(), items: items}
	s.mu.Unlock()
	return items
}

// ── tool handlers ────────────────────────────────────────────────────────────

type getNewsArgs struct {
	Source string `json:"source,omitempty"`
	Count  int    `json:"count,omitempty"`
}

func (s *Source) getNews(ctx context.Context, args string) (string, error) {
	var a getNewsArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("news: get_news: failed to parse arguments: %w", err)
	}

	count := a.Count
	if count == 0 {
		count = 5
	}
	count = min(max(count, 1), maxHeadlines)

	sourceKey := s.resolveSource(a.Source)
	source := s.sources[sourceKey]
	slog.Info("News lookup", "source", source.Name, "count", count)

	items := s.fetchFeed(ctx, sourceKey)
	if len(items) == 0 {
		return fmt.Sprintf("Keine Nachrichten von %s verfügbar.", source.Name), nil
	}
	if len(items) > count {
		items = items[:count]
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%d. %s", i+1, item.Title)
	}
	return fmt.Sprintf("Aktuelle Nachrichten von %s: %s", source.Name, strings.Join(parts, " ")), nil
}

type topicArgs struct {
	Topic string `json:"topic"`
}

func (s *Source) getNewsTopic(ctx context.Context, args string) (string, error) {
	var a topicArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("news: get_news_topic: failed to parse arguments: %w", err)
	}

	slog.Info("News topic lookup", "topic", a.Topic)
	items := s.fetchFeed(ctx, s.defaultSource)

	topic := strings.ToLower(a.Topic)
	if topic != "" {
		var filtered []headline
		for _, item := range items {
			if strings.Contains(strings.ToLower(item.Title), topic) ||
				strings.Contains(strings.ToLower(item.Description), topic) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if len(items) == 0 {
		if a.Topic != "" {
			return fmt.Sprintf("Keine aktuellen Nachrichten zu '%s' gefunden.", a.Topic), nil
		}
		return "Keine Nachrichten verfügbar.", nil
	}
	if len(items) > topicResults {
		items = items[:topicResults]
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		text := item.Title
		if len(item.Description) > 20 {
			text += ": " + truncateAtWord(item.Description, topicDescLength)
		}
		parts = append(parts, text)
	}
	return "Aktuelle Nachrichten: " + strings.Join(parts, " | "), nil
}

// truncateAtWord shortens text to at most limit characters, cutting at the
// last full word and appending an ellipsis.
func truncateAtWord(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func (s *Source) listSources(_ context.Context, _ string) (string, error) {
	keys := make([]string, 0, len(s.sources))
	for k := range s.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%s)", s.sources[k].Name, s.sources[k].Category)
	}
	return "Verfügbare Nachrichtenquellen: " + strings.Join(parts, ", "), nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "get_news",
				Description: "Ruft aktuelle Nachrichten-Schlagzeilen ab. Quellen: Tagesschau, Spiegel, Zeit, Heise (Technik), Sportschau. Beispiel: 'Was sind die Nachrichten heute?' oder 'Sportnachrichten'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{
							"type":        "string",
							"description": "Nachrichtenquelle: tagesschau, spiegel, zeit, heise, sportschau, wirtschaft (optional)",
						},
						"count": map[string]any{
							"type":        "integer",
							"description": "Anzahl der Schlagzeilen (1-10, Standard: 5)",
						},
					},
				},
			},
			Handler: s.getNews,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "get_news_topic",
				Description: "Sucht Nachrichten zu einem bestimmten Thema. Beispiel: 'Gibt es Nachrichten über die Bundesliga?' oder 'News zu Elektroautos'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"topic": map[string]any{
							"type":        "string",
							"description": "Thema für die Nachrichtensuche",
						},
					},
					"required": []string{"topic"},
				},
			},
			Handler: s.getNewsTopic,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "list_news_sources",
				Description: "Listet die verfügbaren Nachrichtenquellen auf. Beispiel: 'Welche Nachrichtenquellen gibt es?'",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Handler: s.listSources,
		},
	}
}
