// Package searchtool provides web-search tools backed by the Tavily API,
// which returns AI-summarized results well suited for spoken answers.
package searchtool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	defaultBaseURL = "https://api.tavily.com"
	requestTimeout = 15 * time.Second

	maxResults      = 5
	quickMaxResults = 3
	sourceResults   = 3

	// sourceContentLength bounds per-source snippets for voice output.
	sourceContentLength = 200
	quickContentLength  = 500
)

// Source is the Tavily-backed web-search tool source.
type Source struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)

// New constructs the web-search source.
func New(apiKey string) *Source {
	return &Source{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "websearch" }

// Init checks that an API key is configured.
func (s *Source) Init(context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("websearch: api key not set, get a free key from https://tavily.com")
	}
	slog.Info("Web search tool initialized")
	return nil
}

// ── API ──────────────────────────────────────────────────────────────────────

type searchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	MaxResults        int    `json:"max_results"`
	Topic             string `json:"topic,omitempty"`
	APIKey            string `json:"api_key"`
}

type searchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searchResponse struct {
	Answer  string         `json:"answer"`
	Results []searchResult `json:"results"`
}

func (s *Source) search(ctx context.Context, req searchRequest) (*searchResponse, error) {
	req.APIKey = s.apiKey
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("websearch: api status %d: %s", resp.StatusCode, detail)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}
	return &result, nil
}

// formatResults renders the answer plus up to three source snippets.
func formatResults(data *searchResponse) string {
	var parts []string
	if data.Answer != "" {
		parts = append(parts, "Zusammenfassung: "+data.Answer)
	}

	results := data.Results
	if len(results) > sourceResults {
		results = results[:sourceResults]
	}
	if len(results) > 0 {
		parts = append(parts, "\nQuellen:")
		for i, r := range results {
			title := r.Title
			if title == "" {
				title = "Ohne Titel"
			}
			content := truncateAtWord(r.Content, sourceContentLength)
			if content != "" {
				parts = append(parts, fmt.Sprintf("%d. %s: %s", i+1, title, content))
			} else {
				parts = append(parts, fmt.Sprintf("%d. %s", i+1, title))
			}
		}
	}

	if len(parts) == 0 {
		return "Keine relevanten Ergebnisse gefunden."
	}
	return strings.Join(parts, " ")
}

// truncateAtWord shortens text to at most limit characters, cutting at the
// last full word.
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

// ── tool handlers ────────────────────────────────────────────────────────────

type webSearchArgs struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
}

func (s *Source) webSearch(ctx context.Context, args string) (string, error) {
	var a webSearchArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("websearch: web_search: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "Bitte gib eine Suchanfrage an.", nil
	}

	depth := a.SearchDepth
	if depth == "" {
		depth = "basic"
	}
	slog.Info("Web search", "query", a.Query, "depth", depth)

	result, err := s.search(ctx, searchRequest{
		Query:         a.Query,
		SearchDepth:   depth,
		IncludeAnswer: true,
		MaxResults:    maxResults,
	})
	if err != nil {
		slog.Error("Web search failed", "error", err)
		return fmt.Sprintf("Die Suche nach '%s' ist fehlgeschlagen. Bitte versuche es später erneut.", a.Query), nil
	}
	return formatResults(result), nil
}

func (s *Source) webSearchNews(ctx context.Context, args string) (string, error) {
	var a webSearchArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("websearch: web_search_news: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "Bitte gib ein Thema für die Nachrichtensuche an.", nil
	}

	slog.Info("Web news search", "query", a.Query)
	result, err := s.search(ctx, searchRequest{
		Query:         a.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    maxResults,
		Topic:         "news",
	})
	if err != nil {
		slog.Error("Web news search failed", "error", err)
		return fmt.Sprintf("Die Nachrichtensuche zu '%s' ist fehlgeschlagen.", a.Query), nil
	}
	return formatResults(result), nil
}

type quickAnswerArgs struct {
	Question string `json:"question"`
}

func (s *Source) quickAnswer(ctx context.Context, args string) (string, error) {
	var a quickAnswerArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("websearch: quick_answer: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Question) == "" {
		return "Bitte stelle eine Frage.", nil
	}

	slog.Info("Quick answer lookup", "question", a.Question)
	result, err := s.search(ctx, searchRequest{
		Query:         a.Question,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    quickMaxResults,
	})
	if err != nil {
		slog.Error("Quick answer lookup failed", "error", err)
		return "Die Suche ist fehlgeschlagen.", nil
	}

	if result.Answer != "" {
		return result.Answer, nil
	}
	if len(result.Results) > 0 && result.Results[0].Content != "" {
		content := result.Results[0].Content
		if len(content) > quickContentLength {
			content = content[:quickContentLength]
		}
		return content, nil
	}
	return "Keine Antwort gefunden.", nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "web_search",
				Description: "Durchsucht das Internet nach aktuellen Informationen. Nutze dies für Fragen zu aktuellen Ereignissen, Fakten die du nicht weißt, oder wenn der Benutzer explizit nach einer Web-Suche fragt. Beispiele: 'Suche nach den neuesten iPhone Gerüchten', 'Wer hat gestern das Fußballspiel gewonnen?', 'Recherchiere über Quantencomputer'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Die Suchanfrage",
						},
						"search_depth": map[string]any{
							"type":        "string",
							"enum":        []string{"basic", "advanced"},
							"description": "Suchtiefe: 'basic' für schnelle Suche, 'advanced' für gründlichere Recherche",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.webSearch,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "web_search_news",
				Description: "Sucht nach aktuellen Nachrichten zu einem Thema im Internet. Beispiele: 'Aktuelle Nachrichten zu Tesla', 'News über die Bundestagswahl'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Das Nachrichtenthema",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.webSearchNews,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "quick_answer",
				Description: "Beantwortet eine faktische Frage durch Web-Suche. Nutze dies für einfache Faktenfragen. Beispiele: 'Wie hoch ist der Eiffelturm?', 'Wann wurde Einstein geboren?', 'Was ist die Hauptstadt von Australien?'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "Die zu beantwortende Frage",
						},
					},
					"required": []string{"question"},
				},
			},
			Handler: s.quickAnswer,
		},
	}
}
