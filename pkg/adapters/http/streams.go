package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// streamBuffer is the per-subscriber backlog before events are dropped.
const streamBuffer = 64

// StreamMessage is one event delivered to subscribers of a run.
type StreamMessage struct {
	Type domain.EventType
	Data []byte
}

// StreamManager fans lifecycle events out to SSE subscribers, keyed by run ID.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan StreamMessage]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates a manager with no subscribers.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan StreamMessage]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a listener for runID. The returned function
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(runID string) (<-chan StreamMessage, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan StreamMessage, streamBuffer)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan StreamMessage]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
		})
	}
}

// Broadcast delivers an event to every subscriber of runID.
// Slow subscribers lose the event instead of blocking the run.
func (sm *StreamManager) Broadcast(runID string, typ domain.EventType, event any) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[runID]
	if !ok {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		sm.logger.Warn("stream: failed to encode event", "run_id", runID, "err", err)
		return
	}
	for ch := range subs {
		select {
		case ch <- StreamMessage{Type: typ, Data: data}:
		default:
			sm.logger.Warn("stream: client buffer full, dropping event", "run_id", runID, "type", typ)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every engine event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			sm.Broadcast(e.RunID, e.Type, e)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			sm.Broadcast(e.RunID, e.Type, nodeLeave{NodeEvent: e, Error: errString(e.Err)})
		},
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			sm.Broadcast(e.RunID, e.Type, e)
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			sm.Broadcast(e.RunID, e.Type, e)
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			sm.Broadcast(e.RunID, e.Type, runEnd{RunEvent: e, Error: errString(e.Err)})
		},
	}
}

type nodeLeave struct {
	*domain.NodeEvent
	Error string `json:"error,omitempty"`
}

type runEnd struct {
	*domain.RunEvent
	Error string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SubscribeEvents handles GET /runs/{runID}/events (SSE).
// The types query parameter is a comma-separated filter of event types.
// The stream ends after the run_end event of the run.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	var filter map[domain.EventType]bool
	if types := r.URL.Query().Get("types"); types != "" {
		filter = make(map[domain.EventType]bool)
		for _, t := range strings.Split(types, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter == nil || filter[msg.Type] {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data)
				flusher.Flush()
			}
			if msg.Type == domain.EventRunEnd {
				return
			}
		}
	}
}
