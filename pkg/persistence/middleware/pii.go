package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces the values of matching keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks state values whose keys
// match any of the patterns, at any depth of nested mappings.
// Masking is one-way: loaded checkpoints carry the mask, not the value.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	// Never touch the checkpoint the engine keeps in memory.
	masked := cp.Clone()
	masked.State = domain.State(m.mask(map[string]any(cp.State)))
	for i, entry := range masked.Trace {
		if entry.Diff == nil || len(entry.Diff.Fields) == 0 {
			continue
		}
		diff := *entry.Diff
		diff.Fields = m.mask(diff.Fields)
		masked.Trace[i].Diff = &diff
	}
	return m.next.Save(ctx, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// mask returns a copy of in with sensitive keys replaced.
func (m *piiMiddleware) mask(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m.sensitive(k) {
			out[k] = Mask
			continue
		}
		switch sub := v.(type) {
		case map[string]any:
			out[k] = m.mask(sub)
		case domain.State:
			out[k] = m.mask(map[string]any(sub))
		default:
			out[k] = v
		}
	}
	return out
}

func (m *piiMiddleware) sensitive(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
