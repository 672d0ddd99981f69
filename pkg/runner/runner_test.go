package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// newEngine builds ask -> confirm -> done, where ask and confirm wait for input.
func newEngine(t *testing.T, store *memory.Store) *arbor.Engine {
	t.Helper()
	wait := func(prompt string) graph.NodeFunc {
		return func(ctx context.Context, s domain.State) (domain.Update, error) {
			if !graph.Resuming(ctx) {
				return nil, graph.Interrupt(prompt)
			}
			return nil, nil
		}
	}
	g, err := graph.NewBuilder("form").
		AddFunc("ask", wait("name?")).
		AddFunc("confirm", wait("sure?")).
		AddFunc("done", func(_ context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{domain.FieldMessages: []domain.Message{
				domain.AssistantMessage("bye " + s.Messages()[0].Content),
			}}, nil
		}).
		AddEdge("ask", "confirm").
		AddEdge("confirm", "done").
		SetTerminal("done").
		SetEntry("ask").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	eng, err := arbor.New(g, arbor.WithCheckpointStore(store))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func TestRunner_Run_BasicFlow(t *testing.T) {
	out := &bytes.Buffer{}
	r := New(newEngine(t, memory.NewStore()),
		WithHandler(NewTextHandler(strings.NewReader("ana\nyes\n"), out)))

	res, err := r.Run(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != domain.StatusTerminated {
		t.Fatalf("expected terminated, got %s", res.Status)
	}
	if got := res.State.String(DefaultAnswerField); got != "yes" {
		t.Errorf("expected answer 'yes', got %q", got)
	}

	output := out.String()
	for _, want := range []string{"[ask] name?", "[confirm] sure?", "bye ana", ">>> Run s1 terminated"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunner_Run_PausesAndContinues(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	// Input ends after the first answer: the run stays suspended.
	r := New(newEngine(t, store), WithHandler(NewTextHandler(strings.NewReader("ana\n"), &bytes.Buffer{})))
	res, err := r.Run(ctx, "s2", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Suspended() {
		t.Fatalf("expected suspended, got %s", res.Status)
	}

	// A new session under the same ID picks up at confirm.
	out := &bytes.Buffer{}
	r = New(newEngine(t, store), WithHandler(NewTextHandler(strings.NewReader("yes\n"), out)))
	res, err = r.Run(ctx, "s2", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != domain.StatusTerminated {
		t.Fatalf("expected terminated, got %s", res.Status)
	}
	if !strings.Contains(out.String(), "[confirm] sure?") {
		t.Errorf("expected the stored suspension to be shown, got:\n%s", out.String())
	}

	_, err = r.Run(ctx, "s2", nil)
	if !errors.Is(err, ErrRunFinished) {
		t.Errorf("expected ErrRunFinished, got %v", err)
	}
}

func TestRunner_Run_Quit(t *testing.T) {
	r := New(newEngine(t, memory.NewStore()),
		WithHandler(NewTextHandler(strings.NewReader("quit\n"), &bytes.Buffer{})))

	res, err := r.Run(context.Background(), "s3", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Suspended() {
		t.Errorf("expected suspended, got %s", res.Status)
	}
}

func TestRunner_Run_Headless(t *testing.T) {
	out := &bytes.Buffer{}
	r := New(newEngine(t, memory.NewStore()),
		WithHeadless(true),
		WithHandler(NewJSONHandler(strings.NewReader(""), out)))

	res, err := r.Run(context.Background(), "s4", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Suspended() {
		t.Fatalf("expected suspended, got %s", res.Status)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 1 {
		t.Errorf("expected one event line, got %d:\n%s", lines, out.String())
	}
}

func TestRunner_Run_RejectedInputIsAskedAgain(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "5")
	r := New(newEngine(t, memory.NewStore()),
		WithHandler(NewTextHandler(strings.NewReader("far too long\nana\nyes\n"), &bytes.Buffer{})))

	res, err := r.Run(context.Background(), "s5", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := res.State.Messages()[0].Content; got != "ana" {
		t.Errorf("expected first message 'ana', got %q", got)
	}
}
