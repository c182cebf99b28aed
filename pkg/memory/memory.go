// Package memory defines the assistant's long-term semantic memory: free-text
// entries with a category label, recalled by vector nearest-neighbour search
// rather than exact match. The PostgreSQL/pgvector implementation lives in
// the postgres subpackage.
package memory

import "time"

// Category labels a memory entry for filtering and display.
type Category string

const (
	CategoryPreference Category = "preference"
	CategoryFact       Category = "fact"
	CategoryRoutine    Category = "routine"
	CategoryPerson     Category = "person"
	CategoryGeneral    Category = "general"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPreference, CategoryFact, CategoryRoutine, CategoryPerson, CategoryGeneral:
		return true
	}
	return false
}

// Memory is one stored entry.
type Memory struct {
	ID        string
	Content   string
	Category  Category
	Embedding []float32
	CreatedAt time.Time
}

// Result is a search hit with its cosine distance to the query vector
// (smaller is more similar).
type Result struct {
	Memory
	Distance float64
}
