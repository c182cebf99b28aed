package memorytool

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/voxhaus/voxhaus/pkg/memory"
)

// fakeStore is an in-memory [memory.Store] whose search order follows the
// first vector component, ascending.
type fakeStore struct {
	entries map[string]memory.Memory
	closed  bool

	saveErr   error
	searchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]memory.Memory)}
}

func (f *fakeStore) Save(_ context.Context, m memory.Memory) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.entries[m.ID] = m
	return nil
}

func (f *fakeStore) Search(_ context.Context, embedding []float32, topK int) ([]memory.Result, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	results := make([]memory.Result, 0, len(f.entries))
	for _, m := range f.entries {
		dist := float64(m.Embedding[0] - embedding[0])
		if dist < 0 {
			dist = -dist
		}
		results = append(results, memory.Result{Memory: m, Distance: dist})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (f *fakeStore) List(_ context.Context, limit int) ([]memory.Memory, error) {
	entries := make([]memory.Memory, 0, len(f.entries))
	for _, m := range f.entries {
		entries = append(entries, m)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeStore) Count(context.Context) (int, error) { return len(f.entries), nil }

func (f *fakeStore) Delete(_ context.Context, id string) error {
	delete(f.entries, id)
	return nil
}

func (f *fakeStore) DeleteAll(context.Context) (int64, error) {
	n := int64(len(f.entries))
	f.entries = make(map[string]memory.Memory)
	return n, nil
}

func (f *fakeStore) Close() { f.closed = true }

// fakeProvider embeds text as a single component derived from its length, so
// equal texts land on the same point.
type fakeProvider struct{}

func (fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (fakeProvider) Dimensions() int { return 1 }
func (fakeProvider) ModelID() string { return "fake-embedder" }

func newTestSource() (*Source, *fakeStore) {
	store := newFakeStore()
	s := New(store, fakeProvider{})
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return s, store
}

func TestSaveMemoryStoresEntry(t *testing.T) {
	s, store := newTestSource()

	out, err := s.saveMemory(context.Background(), `{"content": "Der Benutzer steht um 7 Uhr auf", "category": "routine"}`)
	if err != nil {
		t.Fatalf("save_memory: %v", err)
	}
	if out != "Ich habe mir gemerkt: Der Benutzer steht um 7 Uhr auf" {
		t.Errorf("got %q", out)
	}
	if len(store.entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(store.entries))
	}
	for id, m := range store.entries {
		if !strings.HasPrefix(id, "mem_20260828_") {
			t.Errorf("id = %q", id)
		}
		if m.Category != memory.CategoryRoutine {
			t.Errorf("category = %q", m.Category)
		}
		if len(m.Embedding) != 1 {
			t.Errorf("embedding not stored: %v", m.Embedding)
		}
	}
}

func TestSaveMemoryInvalidCategoryFallsBackToGeneral(t *testing.T) {
	s, store := newTestSource()

	if _, err := s.saveMemory(context.Background(), `{"content": "x", "category": "quatsch"}`); err != nil {
		t.Fatalf("save_memory: %v", err)
	}
	for _, m := range store.entries {
		if m.Category != memory.CategoryGeneral {
			t.Errorf("category = %q, want general", m.Category)
		}
	}
}

func TestSaveMemoryEmptyContent(t *testing.T) {
	s, store := newTestSource()

	out, err := s.saveMemory(context.Background(), `{"content": "  "}`)
	if err != nil {
		t.Fatalf("save_memory: %v", err)
	}
	if out != "Es gibt nichts zu merken." {
		t.Errorf("got %q", out)
	}
	if len(store.entries) != 0 {
		t.Errorf("empty content was stored")
	}
}

func TestRecallMemorySingleResult(t *testing.T) {
	s, _ := newTestSource()
	ctx := context.Background()
	s.saveMemory(ctx, `{"content": "Die Schwester heißt Anna"}`)

	// Same text embeds to the same point, so it is the nearest hit.
	out, err := s.recallMemory(ctx, `{"query": "Die Schwester heißt Anna"}`)
	if err != nil {
		t.Fatalf("recall_memory: %v", err)
	}
	if out != "Ich erinnere mich: Die Schwester heißt Anna" {
		t.Errorf("got %q", out)
	}
}

func TestRecallMemoryMultipleResults(t *testing.T) {
	s, _ := newTestSource()
	ctx := context.Background()
	s.saveMemory(ctx, `{"content": "Fakt eins"}`)
	s.saveMemory(ctx, `{"content": "Fakt zwei"}`)

	out, err := s.recallMemory(ctx, `{"query": "Fakt"}`)
	if err != nil {
		t.Fatalf("recall_memory: %v", err)
	}
	if !strings.HasPrefix(out, "Ich erinnere mich an folgendes:\n") {
		t.Errorf("got %q", out)
	}
	if !strings.Contains(out, "- Fakt eins") || !strings.Contains(out, "- Fakt zwei") {
		t.Errorf("results missing: %q", out)
	}
}

func TestRecallMemoryEmptyStore(t *testing.T) {
	s, _ := newTestSource()

	out, err := s.recallMemory(context.Background(), `{"query": "irgendwas"}`)
	if err != nil {
		t.Fatalf("recall_memory: %v", err)
	}
	if out != "Ich habe noch keine Erinnerungen gespeichert." {
		t.Errorf("got %q", out)
	}
}

func TestListMemoriesHeaderCountsTotal(t *testing.T) {
	s, _ := newTestSource()
	ctx := context.Background()
	for _, content := range []string{"eins", "zwei", "drei"} {
		s.saveMemory(ctx, `{"content": "`+content+`", "category": "fact"}`)
	}

	out, err := s.listMemories(ctx, `{"limit": 2}`)
	if err != nil {
		t.Fatalf("list_memories: %v", err)
	}
	if !strings.HasPrefix(out, "Meine 2 Erinnerungen (von 3 insgesamt):\n") {
		t.Errorf("got %q", out)
	}
	if !strings.Contains(out, "- [fact] drei") {
		t.Errorf("newest entry missing: %q", out)
	}
}

func TestListMemoriesDefaultLimit(t *testing.T) {
	s, _ := newTestSource()
	ctx := context.Background()
	s.saveMemory(ctx, `{"content": "einzig"}`)

	out, err := s.listMemories(ctx, `{}`)
	if err != nil {
		t.Fatalf("list_memories: %v", err)
	}
	if !strings.HasPrefix(out, "Meine 1 Erinnerungen:") {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "insgesamt") {
		t.Errorf("total suffix shown although everything fit: %q", out)
	}
}

func TestForgetMemoryDeletesNearestMatch(t *testing.T) {
	s, store := newTestSource()
	ctx := context.Background()
	s.saveMemory(ctx, `{"content": "Der Benutzer mag Kaffee"}`)

	out, err := s.forgetMemory(ctx, `{"query": "Der Benutzer mag Kaffee"}`)
	if err != nil {
		t.Fatalf("forget_memory: %v", err)
	}
	if out != "Ich habe vergessen: Der Benutzer mag Kaffee" {
		t.Errorf("got %q", out)
	}
	if len(store.entries) != 0 {
		t.Errorf("entry not deleted")
	}
}

func TestForgetMemoryEmptyStore(t *testing.T) {
	s, _ := newTestSource()

	out, err := s.forgetMemory(context.Background(), `{"query": "x"}`)
	if err != nil {
		t.Fatalf("forget_memory: %v", err)
	}
	if out != "Ich habe keine Erinnerungen zum Vergessen." {
		t.Errorf("got %q", out)
	}
}

func TestClearAllMemories(t *testing.T) {
	s, store := newTestSource()
	ctx := context.Background()
	s.saveMemory(ctx, `{"content": "eins"}`)
	s.saveMemory(ctx, `{"content": "zwei"}`)

	out, err := s.clearMemories(ctx, "{}")
	if err != nil {
		t.Fatalf("clear_all_memories: %v", err)
	}
	if out != "Ich habe alle 2 Erinnerungen gelöscht." {
		t.Errorf("got %q", out)
	}
	if len(store.entries) != 0 {
		t.Errorf("entries remain after clear")
	}

	out, _ = s.clearMemories(ctx, "{}")
	if out != "Es gibt keine Erinnerungen zum Löschen." {
		t.Errorf("got %q", out)
	}
}

func TestCloseReleasesStore(t *testing.T) {
	s, store := newTestSource()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !store.closed {
		t.Errorf("store not closed")
	}
}

func TestToolsExposeAllMemoryOperations(t *testing.T) {
	s, _ := newTestSource()

	got := make(map[string]bool)
	for _, tool := range s.Tools() {
		got[tool.Definition.Name] = true
	}
	for _, name := range []string{"save_memory", "recall_memory", "list_memories", "forget_memory", "clear_all_memories"} {
		if !got[name] {
			t.Errorf("tool %q missing", name)
		}
	}
}
