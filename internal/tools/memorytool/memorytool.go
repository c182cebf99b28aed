// Package memorytool gives the assistant a persistent semantic memory. It
// embeds free-text entries and stores them in a [memory.Store]; recall is a
// nearest-neighbour search over the embeddings, so "Wann stehe ich auf?"
// finds "Der Benutzer steht um 7 Uhr auf" without keyword overlap.
package memorytool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
	"github.com/voxhaus/voxhaus/pkg/embeddings"
	"github.com/voxhaus/voxhaus/pkg/memory"
)

const (
	recallResults    = 3
	defaultListLimit = 10
)

// Source is the memory tool source. It owns the store and closes it on
// shutdown.
type Source struct {
	store memory.Store
	embed embeddings.Provider
	now   func() time.Time
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)
var _ tools.Closer = (*Source)(nil)

// New constructs the memory source. Ownership of store passes to the source.
func New(store memory.Store, embed embeddings.Provider) *Source {
	return &Source{
		store: store,
		embed: embed,
		now:   time.Now,
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "memory" }

// Init implements [tools.Initializer].
func (s *Source) Init(ctx context.Context) error {
	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("memory: init: %w", err)
	}
	slog.Info("Memory tool initialized", "memories", count, "model", s.embed.ModelID())
	return nil
}

// Close implements [tools.Closer].
func (s *Source) Close() error {
	s.store.Close()
	return nil
}

// memoryID derives a unique entry ID from the creation time.
func (s *Source) memoryID(t time.Time) string {
	return fmt.Sprintf("mem_%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// ── tool handlers ────────────────────────────────────────────────────────────

type saveArgs struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

func (s *Source) saveMemory(ctx context.Context, args string) (string, error) {
	var a saveArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("memory: save_memory: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Content) == "" {
		return "Es gibt nichts zu merken.", nil
	}

	category := memory.Category(a.Category)
	if !category.IsValid() {
		category = memory.CategoryGeneral
	}

	embedding, err := s.embed.Embed(ctx, a.Content)
	if err != nil {
		slog.Error("Failed to embed memory", "error", err)
		return "Konnte mir das nicht merken.", nil
	}

	created := s.now()
	err = s.store.Save(ctx, memory.Memory{
		ID:        s.memoryID(created),
		Content:   a.Content,
		Category:  category,
		Embedding: embedding,
		CreatedAt: created,
	})
	if err != nil {
		slog.Error("Failed to save memory", "error", err)
		return "Konnte mir das nicht merken.", nil
	}

	slog.Info("Memory saved", "category", category)
	return fmt.Sprintf("Ich habe mir gemerkt: %s", a.Content), nil
}

type recallArgs struct {
	Query string `json:"query"`
}

func (s *Source) recallMemory(ctx context.Context, args string) (string, error) {
	var a recallArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("memory: recall_memory: failed to parse arguments: %w", err)
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		slog.Error("Failed to count memories", "error", err)
		return "Fehler beim Erinnern.", nil
	}
	if count == 0 {
		return "Ich habe noch keine Erinnerungen gespeichert.", nil
	}

	embedding, err := s.embed.Embed(ctx, a.Query)
	if err != nil {
		slog.Error("Failed to embed recall query", "error", err)
		return "Fehler beim Erinnern.", nil
	}

	results, err := s.store.Search(ctx, embedding, recallResults)
	if err != nil {
		slog.Error("Memory search failed", "error", err)
		return "Fehler beim Erinnern.", nil
	}
	if len(results) == 0 {
		return "Dazu habe ich keine Erinnerung.", nil
	}

	if len(results) == 1 {
		return fmt.Sprintf("Ich erinnere mich: %s", results[0].Content), nil
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = "- " + r.Content
	}
	return "Ich erinnere mich an folgendes:\n" + strings.Join(lines, "\n"), nil
}

type listArgs struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Source) listMemories(ctx context.Context, args string) (string, error) {
	var a listArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("memory: list_memories: failed to parse arguments: %w", err)
	}

	limit := a.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		slog.Error("Failed to count memories", "error", err)
		return "Fehler beim Auflisten der Erinnerungen.", nil
	}
	if count == 0 {
		return "Ich habe noch keine Erinnerungen gespeichert.", nil
	}

	entries, err := s.store.List(ctx, limit)
	if err != nil {
		slog.Error("Failed to list memories", "error", err)
		return "Fehler beim Auflisten der Erinnerungen.", nil
	}
	if len(entries) == 0 {
		return "Keine Erinnerungen gefunden.", nil
	}

	lines := make([]string, len(entries))
	for i, m := range entries {
		lines[i] = fmt.Sprintf("- [%s] %s", m.Category, m.Content)
	}

	header := fmt.Sprintf("Meine %d Erinnerungen", len(entries))
	if count > limit {
		header += fmt.Sprintf(" (von %d insgesamt)", count)
	}
	return header + ":\n" + strings.Join(lines, "\n"), nil
}

func (s *Source) forgetMemory(ctx context.Context, args string) (string, error) {
	var a recallArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("memory: forget_memory: failed to parse arguments: %w", err)
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		slog.Error("Failed to count memories", "error", err)
		return "Konnte nicht vergessen.", nil
	}
	if count == 0 {
		return "Ich habe keine Erinnerungen zum Vergessen.", nil
	}

	embedding, err := s.embed.Embed(ctx, a.Query)
	if err != nil {
		slog.Error("Failed to embed forget query", "error", err)
		return "Konnte nicht vergessen.", nil
	}

	results, err := s.store.Search(ctx, embedding, 1)
	if err != nil {
		slog.Error("Memory search failed", "error", err)
		return "Konnte nicht vergessen.", nil
	}
	if len(results) == 0 {
		return "Dazu habe ich keine Erinnerung die ich vergessen könnte.", nil
	}

	if err := s.store.Delete(ctx, results[0].ID); err != nil {
		slog.Error("Failed to delete memory", "error", err)
		return "Konnte nicht vergessen.", nil
	}

	slog.Info("Memory deleted", "id", results[0].ID)
	return fmt.Sprintf("Ich habe vergessen: %s", results[0].Content), nil
}

func (s *Source) clearMemories(ctx context.Context, _ string) (string, error) {
	deleted, err := s.store.DeleteAll(ctx)
	if err != nil {
		slog.Error("Failed to clear memories", "error", err)
		return "Fehler beim Löschen der Erinnerungen.", nil
	}
	if deleted == 0 {
		return "Es gibt keine Erinnerungen zum Löschen.", nil
	}

	slog.Info("All memories deleted", "count", deleted)
	return fmt.Sprintf("Ich habe alle %d Erinnerungen gelöscht.", deleted), nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "save_memory",
				Description: "Speichert eine Information dauerhaft im Gedächtnis. Nutze dies wenn der Benutzer sagt 'Merk dir...', 'Erinnere dich...' oder wichtige persönliche Informationen teilt (Name, Präferenzen, Routinen, etc.)",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content": map[string]any{
							"type":        "string",
							"description": "Die zu merkende Information, z.B. 'Der Benutzer steht um 7 Uhr auf' oder 'Die Schwester heißt Anna'",
						},
						"category": map[string]any{
							"type":        "string",
							"description": "Kategorie: 'preference' (Vorlieben), 'fact' (Fakten über den Benutzer), 'routine' (Routinen/Gewohnheiten), 'person' (Personen), 'general' (Sonstiges)",
							"enum":        []string{"preference", "fact", "routine", "person", "general"},
						},
					},
					"required": []string{"content"},
				},
			},
			Handler: s.saveMemory,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "recall_memory",
				Description: "Sucht im Gedächtnis nach relevanten Erinnerungen. Nutze dies bei Fragen wie 'Weißt du noch...', 'Wann...', 'Wie heißt...' oder wenn Kontext aus früheren Gesprächen benötigt wird.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Wonach gesucht werden soll, z.B. 'Aufstehzeit' oder 'Name der Schwester'",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.recallMemory,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "list_memories",
				Description: "Listet alle gespeicherten Erinnerungen auf. Nutze dies wenn der Benutzer fragt 'Was weißt du über mich?' oder 'Was hast du dir gemerkt?'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximale Anzahl der aufzulistenden Erinnerungen (Standard: 10)",
						},
					},
				},
			},
			Handler: s.listMemories,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "forget_memory",
				Description: "Löscht eine bestimmte Erinnerung. Nutze dies wenn der Benutzer sagt 'Vergiss...' oder eine Information nicht mehr gespeichert sein soll.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Beschreibung der zu vergessenden Erinnerung",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.forgetMemory,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "clear_all_memories",
				Description: "Löscht ALLE gespeicherten Erinnerungen unwiderruflich. Nutze dies nur wenn der Benutzer ausdrücklich darum bittet, z.B. 'Lösche alles was du über mich weißt'.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Handler: s.clearMemories,
		},
	}
}
