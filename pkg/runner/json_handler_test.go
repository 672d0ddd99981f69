package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
)

func TestJSONHandler_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(strings.NewReader(""), buf)

	err := handler.Output(context.Background(), &domain.Result{
		RunID:      "r1",
		Status:     domain.StatusSuspended,
		Steps:      1,
		State:      domain.State{"topic": "x"},
		Checkpoint: &domain.Checkpoint{Payloads: map[string]any{"ask": "name?"}},
	})
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("Invalid JSON line: %v", err)
	}
	if ev.RunID != "r1" || ev.Status != domain.StatusSuspended || ev.Payloads["ask"] != "name?" {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

func TestJSONHandler_Input(t *testing.T) {
	in := "{\"approved\": true}\n\n\"plain reply\"\n[1, 2]\n"
	handler := NewJSONHandler(strings.NewReader(in), &bytes.Buffer{})
	ctx := context.Background()

	update, err := handler.Input(ctx)
	if err != nil {
		t.Fatalf("Input failed: %v", err)
	}
	if update["approved"] != true {
		t.Errorf("Expected approved=true, got %v", update)
	}

	update, err = handler.Input(ctx)
	if err != nil {
		t.Fatalf("Input failed: %v", err)
	}
	if update[DefaultAnswerField] != "plain reply" {
		t.Errorf("Expected answer 'plain reply', got %v", update)
	}

	if _, err := handler.Input(ctx); err == nil {
		t.Error("Expected an error for a JSON array")
	}
	if _, err := handler.Input(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
