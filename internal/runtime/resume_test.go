package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalGraph(resumed *atomic.Bool) *graph.Builder {
	return graph.NewBuilder("approval").
		AddFunc("draft", appendMessage(domain.AssistantMessage("draft"))).
		AddFunc("approve", func(ctx context.Context, s domain.State) (domain.Update, error) {
			if !graph.Resuming(ctx) {
				return nil, graph.Interrupt("approve draft?")
			}
			resumed.Store(true)
			if approved, _ := s["approved"].(bool); approved {
				return domain.Update{"decision": "published"}, nil
			}
			return domain.Update{"decision": "rejected"}, nil
		}).
		AddEdge("draft", "approve").
		SetTerminal("approve").
		SetEntry("draft")
}

func TestEngine_InterruptAndResume(t *testing.T) {
	var resumed atomic.Bool
	engine := newEngine(t, approvalGraph(&resumed))
	ctx := context.Background()

	res, err := engine.Run(ctx, "run-approval", nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())

	cp := res.Checkpoint
	assert.Equal(t, []string{"approve"}, cp.Frontier)
	assert.Equal(t, []string{"approve"}, cp.Interrupted)
	assert.Equal(t, "approve draft?", cp.Payloads["approve"])
	assert.False(t, resumed.Load())

	final, err := engine.Resume(ctx, cp, domain.Update{"approved": true})
	require.NoError(t, err)
	assert.True(t, resumed.Load())
	assert.Equal(t, domain.StatusTerminated, final.Status)
	assert.Equal(t, "published", final.State.String("decision"))
	assert.Len(t, final.State.Messages(), 1, "draft must not run twice")
}

func TestEngine_ResumeIdempotence(t *testing.T) {
	build := func(interrupt bool) *graph.Builder {
		b := graph.NewBuilder("chat").
			AddFunc("start", appendMessage(domain.UserMessage("hi"))).
			AddFunc("respond", func(_ context.Context, s domain.State) (domain.Update, error) {
				return domain.Update{
					domain.FieldMessages: []domain.Message{domain.AssistantMessage("hello after " + s.String("tone"))},
					"turns":              s.Int("turns") + 1,
				}, nil
			}).
			AddEdge("start", "respond").
			SetTerminal("respond").
			SetEntry("start")
		if interrupt {
			b.InterruptBefore("respond")
		}
		return b
	}
	ctx := context.Background()
	input := domain.State{"tone": "calm", "turns": 0}

	straight, err := newEngine(t, build(false)).Run(ctx, "straight", input)
	require.NoError(t, err)

	engine := newEngine(t, build(true))
	suspended, err := engine.Run(ctx, "paused", input)
	require.NoError(t, err)
	require.True(t, suspended.Suspended())
	assert.Equal(t, []string{"respond"}, suspended.Checkpoint.Interrupted)

	// Persist and reload the snapshot like a store would.
	raw, err := json.Marshal(suspended.Checkpoint)
	require.NoError(t, err)
	var restored domain.Checkpoint
	require.NoError(t, json.Unmarshal(raw, &restored))

	first, err := engine.Resume(ctx, &restored, nil)
	require.NoError(t, err)
	second, err := engine.Resume(ctx, suspended.Checkpoint, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first.State, second.State); diff != "" {
		t.Errorf("resuming twice diverged (-first +second):\n%s", diff)
	}

	if diff := cmp.Diff(straight.State, first.State); diff != "" {
		t.Errorf("resumed run differs from uninterrupted run (-want +got):\n%s", diff)
	}
}

func TestEngine_ResumeKeepsUndeclaredNumberTypes(t *testing.T) {
	build := func(interrupt bool) *graph.Builder {
		b := graph.NewBuilder("counter").
			AddFunc("a", func(context.Context, domain.State) (domain.Update, error) {
				return domain.Update{"count": 2, "ratio": 1.0, "nested": map[string]any{"n": 7}}, nil
			}).
			AddFunc("b", func(_ context.Context, s domain.State) (domain.Update, error) {
				count, ok := s["count"].(int)
				if !ok {
					return nil, fmt.Errorf("count restored as %T", s["count"])
				}
				ratio, ok := s["ratio"].(float64)
				if !ok {
					return nil, fmt.Errorf("ratio restored as %T", s["ratio"])
				}
				return domain.Update{"count": count + 1, "ratio": ratio * 2}, nil
			}).
			AddEdge("a", "b").
			SetTerminal("b").
			SetEntry("a")
		if interrupt {
			b.InterruptBefore("b")
		}
		return b
	}
	ctx := context.Background()

	straight, err := newEngine(t, build(false)).Run(ctx, "straight", nil)
	require.NoError(t, err)

	engine := newEngine(t, build(true))
	paused, err := engine.Run(ctx, "paused", nil)
	require.NoError(t, err)
	require.True(t, paused.Suspended())

	raw, err := json.Marshal(paused.Checkpoint)
	require.NoError(t, err)
	var restored domain.Checkpoint
	require.NoError(t, json.Unmarshal(raw, &restored))

	res, err := engine.Resume(ctx, &restored, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, 3, res.State["count"])
	assert.Equal(t, 2.0, res.State["ratio"])
	if diff := cmp.Diff(straight.State, res.State); diff != "" {
		t.Errorf("resumed run differs from uninterrupted run (-want +got):\n%s", diff)
	}
}

func TestEngine_ResumeSkipsCompletedNodes(t *testing.T) {
	var sideEffects atomic.Int32
	engine := newEngine(t, graph.NewBuilder("fan").
		AddFunc("split", func(context.Context, domain.State) (domain.Update, error) { return nil, nil }).
		AddFunc("charge", func(context.Context, domain.State) (domain.Update, error) {
			sideEffects.Add(1)
			return domain.Update{"charged": true}, nil
		}).
		AddFunc("confirm", func(ctx context.Context, s domain.State) (domain.Update, error) {
			if !graph.Resuming(ctx) {
				return nil, graph.Interrupt("confirm shipping")
			}
			return domain.Update{"confirmed": s["answer"]}, nil
		}).
		AddConditionalEdges("split", graph.RouterFunc(func(context.Context, domain.State) ([]string, error) {
			return []string{"charge", "confirm"}, nil
		}), "charge", "confirm").
		SetTerminal("charge").
		SetTerminal("confirm").
		SetEntry("split"))
	ctx := context.Background()

	res, err := engine.Run(ctx, "run", nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())
	assert.Equal(t, []string{"charge"}, res.Checkpoint.Completed)
	assert.EqualValues(t, 1, sideEffects.Load())

	for i := 0; i < 2; i++ {
		final, err := engine.Resume(ctx, res.Checkpoint, domain.Update{"answer": "yes"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTerminated, final.Status)
		assert.Equal(t, true, final.State["charged"])
		assert.Equal(t, "yes", final.State["confirmed"])
	}
	assert.EqualValues(t, 1, sideEffects.Load(), "completed nodes never run again")
}

func TestEngine_ResumeFinishedRuns(t *testing.T) {
	var calls atomic.Int32
	engine := newEngine(t, graph.NewBuilder("g").
		AddFunc("a", func(context.Context, domain.State) (domain.Update, error) {
			calls.Add(1)
			return domain.Update{"done": true}, nil
		}).
		SetTerminal("a").
		SetEntry("a"))
	ctx := context.Background()

	res, err := engine.Run(ctx, "run", nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTerminated, res.Status)

	again, err := engine.Resume(ctx, res.Checkpoint, domain.Update{"ignored": 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, again.Status)
	assert.Equal(t, res.State, again.State)
	assert.EqualValues(t, 1, calls.Load())

	failed := res.Checkpoint.Clone()
	failed.Status = domain.StatusFailed
	failed.Error = "boom"
	_, err = engine.Resume(ctx, failed, nil)
	assert.ErrorIs(t, err, domain.ErrRunFailed)

	odd := res.Checkpoint.Clone()
	odd.Status = "archived"
	_, err = engine.Resume(ctx, odd, nil)
	assert.ErrorIs(t, err, domain.ErrNotSuspended)

	foreign := res.Checkpoint.Clone()
	foreign.GraphID = "other"
	_, err = engine.Resume(ctx, foreign, nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotSuspended))
}

func TestEngine_StartCheckpoint(t *testing.T) {
	engine := newEngine(t, graph.NewBuilder("g").
		AddFunc("a", func(context.Context, domain.State) (domain.Update, error) { return nil, nil }).
		SetTerminal("a").
		SetEntry("a"),
		runtime.WithRecursionLimit(3))

	input := domain.State{"k": "v"}
	cp := engine.Start("run", input)
	assert.Equal(t, domain.StatusReady, cp.Status)
	assert.Equal(t, []string{"a"}, cp.Frontier)
	assert.Equal(t, "g", cp.GraphID)
	cp.State["k"] = "mutated"
	assert.Equal(t, "v", input["k"], "the caller's state is never mutated")

	res, err := engine.Resume(context.Background(), cp, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
}

func TestEngine_GatedNodeIsNotResuming(t *testing.T) {
	var entries []bool
	engine := newEngine(t, graph.NewBuilder("gate").
		AddFunc("review", func(ctx context.Context, s domain.State) (domain.Update, error) {
			entries = append(entries, graph.Resuming(ctx))
			if !graph.Resuming(ctx) {
				return nil, graph.Interrupt("looks good?")
			}
			return domain.Update{"verdict": s["answer"]}, nil
		}).
		SetTerminal("review").
		SetEntry("review").
		InterruptBefore("review"))
	ctx := context.Background()

	res, err := engine.Run(ctx, "gated", nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())
	assert.Equal(t, []string{"review"}, res.Checkpoint.Held)
	assert.Empty(t, entries, "the gate suspends before the node runs")

	res, err = engine.Resume(ctx, res.Checkpoint, nil)
	require.NoError(t, err)
	require.True(t, res.Suspended(), "the node interrupts on its first real entry")
	assert.Empty(t, res.Checkpoint.Held)
	assert.Equal(t, "looks good?", res.Checkpoint.Payloads["review"])

	res, err = engine.Resume(ctx, res.Checkpoint, domain.Update{"answer": "yes"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, res.Status)
	assert.Equal(t, "yes", res.State["verdict"])
	assert.Equal(t, []bool{false, true}, entries)
}

func TestEngine_TraceAccumulatesAcrossResumes(t *testing.T) {
	engine := newEngine(t, graph.NewBuilder("gated-loop").
		AddFunc("work", func(_ context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{"n": s.Int("n") + 1}, nil
		}).
		AddEdge("work", "work").
		SetEntry("work").
		InterruptBefore("work"),
		runtime.WithRecursionLimit(4))
	ctx := context.Background()

	res, err := engine.Run(ctx, "gated-loop", nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())

	for i := 0; i < 10 && res.Suspended(); i++ {
		// Each pass goes through JSON as a store would.
		raw, jsonErr := json.Marshal(res.Checkpoint)
		require.NoError(t, jsonErr)
		var restored domain.Checkpoint
		require.NoError(t, json.Unmarshal(raw, &restored))

		res, err = engine.Resume(ctx, &restored, nil)
	}

	var limitErr *domain.RecursionLimitError
	require.True(t, errors.As(err, &limitErr), "got %v", err)
	assert.Equal(t, []string{"work", "work", "work", "work"}, limitErr.Trace.Path())
	assert.Equal(t, []int{0, 1, 2, 3}, []int{limitErr.Trace[0].Step, limitErr.Trace[1].Step, limitErr.Trace[2].Step, limitErr.Trace[3].Step})

	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Len(t, res.Trace, 4)
	assert.Equal(t, 4, res.State["n"])
}
