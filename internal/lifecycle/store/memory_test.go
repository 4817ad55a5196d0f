package store

import (
	"context"
	"testing"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &v1.CommandRecord{
		CorrelationID: "corr-1",
		AppID:         "app",
		ChatID:        "chat",
		Command:       "fix the tests",
		State:         v1.CommandStatePlanRequested,
	}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Command != "fix the tests" || got.State != v1.CommandStatePlanRequested {
		t.Errorf("Get() = %+v", got)
	}

	byCorr, err := s.GetByCorrelation(ctx, "corr-1")
	if err != nil {
		t.Fatalf("GetByCorrelation() error = %v", err)
	}
	if byCorr.ID != rec.ID {
		t.Errorf("GetByCorrelation().ID = %q, want %q", byCorr.ID, rec.ID)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &v1.CommandRecord{AppID: "app", ChatID: "chat", Command: "x", State: v1.CommandStatePlanRequested}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	exit := 0
	rec.State = v1.CommandStateCompleted
	rec.Output = "done"
	rec.ExitCode = &exit
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != v1.CommandStateCompleted || got.Output != "done" {
		t.Errorf("Get() after Update = %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", got.ExitCode)
	}

	if err := s.Update(ctx, &v1.CommandRecord{ID: "missing"}); !apperrors.IsNotFound(err) {
		t.Errorf("Update(missing) error = %v, want not found", err)
	}
}

func TestMemoryStoreListByChat(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, chat := range []string{"chat-a", "chat-a", "chat-b"} {
		if err := s.Create(ctx, &v1.CommandRecord{
			AppID: "app", ChatID: chat, Command: "x", State: v1.CommandStatePlanRequested,
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	recs, err := s.ListByChat(ctx, "app", "chat-a", 10)
	if err != nil {
		t.Fatalf("ListByChat() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(ListByChat()) = %d, want 2", len(recs))
	}

	all, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(ListRecent(2)) = %d, want 2", len(all))
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.Get(context.Background(), "nope"); !apperrors.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want not found", err)
	}
	if _, err := s.GetByCorrelation(context.Background(), "nope"); !apperrors.IsNotFound(err) {
		t.Errorf("GetByCorrelation(missing) error = %v, want not found", err)
	}
}
