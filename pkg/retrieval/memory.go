package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/arbor/pkg/domain"
)

// Memory is a keyword-overlap backend. Scores are the fraction of query
// terms found in the passage; ties keep insertion order.
// Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	passages []domain.Passage
	terms    []map[string]bool
}

// NewMemory creates a backend holding passages.
func NewMemory(passages ...domain.Passage) *Memory {
	m := &Memory{}
	m.Add(passages...)
	return m
}

// Add indexes more passages.
func (m *Memory) Add(passages ...domain.Passage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range passages {
		m.passages = append(m.passages, p)
		m.terms = append(m.terms, termSet(p.Text))
	}
}

// Query implements Backend.
func (m *Memory) Query(ctx context.Context, text string, k int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := termSet(text)
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []domain.Passage
	for i, p := range m.passages {
		matched := 0
		for term := range query {
			if m.terms[i][term] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		p.Score = float64(matched) / float64(len(query))
		hits = append(hits, p)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func termSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			set[f] = true
		}
	}
	return set
}
