package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := middleware.NewPIIMiddleware([]string{"password", "ssn"})(underlyingStore)

	ctx := context.Background()
	cp := &domain.Checkpoint{
		RunID:  "pii-run",
		Status: domain.StatusSuspended,
		State: domain.State{
			"username":      "jdoe",
			"user_password": "secret123",
			"details": map[string]any{
				"address":    "123 St",
				"ssn_number": "999-99-9999",
			},
			"safe_data": "public",
		},
	}

	if err := secureStore.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if cp.State["user_password"] != "secret123" {
		t.Error("Middleware modified original state in memory!")
	}
	if cp.State["details"].(map[string]any)["ssn_number"] != "999-99-9999" {
		t.Error("Middleware modified nested original state in memory!")
	}

	stored, err := underlyingStore.Load(ctx, "pii-run")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}

	if stored.State["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.State["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.State["user_password"])
	}
	details := stored.State["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}
}

func TestChain_Order(t *testing.T) {
	underlyingStore := memory.NewStore()
	key := make([]byte, 32)
	// PII masking runs before encryption seals the checkpoint.
	store := middleware.Chain(underlyingStore,
		middleware.NewPIIMiddleware([]string{"token"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)

	ctx := context.Background()
	if err := store.Save(ctx, &domain.Checkpoint{RunID: "r", State: domain.State{"api_token": "abc"}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx, "r")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.State["api_token"] != middleware.Mask {
		t.Errorf("Expected masked token, got %v", loaded.State["api_token"])
	}
}

func TestPIIMiddleware_MasksTraceDiffs(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := middleware.NewPIIMiddleware([]string{"password"})(underlyingStore)
	ctx := context.Background()

	diff := &domain.StateDiff{Fields: map[string]any{"password": "hunter2", "user": "jdoe"}}
	cp := &domain.Checkpoint{
		RunID: "trace-run",
		State: domain.State{"password": "hunter2"},
		Trace: domain.Trace{{Step: 0, NodeID: "login", Diff: diff}},
	}
	if err := secureStore.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if diff.Fields["password"] != "hunter2" {
		t.Error("Middleware modified the trace kept in memory!")
	}

	stored, err := underlyingStore.Load(ctx, "trace-run")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	fields := stored.Trace[0].Diff.Fields
	if fields["password"] != middleware.Mask {
		t.Errorf("Trace diff should be masked, got: %v", fields["password"])
	}
	if fields["user"] != "jdoe" {
		t.Errorf("User shouldn't be masked, got: %v", fields["user"])
	}
}
