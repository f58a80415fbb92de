package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	sessions := []Session{
		{VaultPath: "/vault/a", StartedAt: base, FinishedAt: base.Add(time.Minute), Outcome: "success", Phase: "done", Pushed: true},
		{VaultPath: "/vault/a", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(61 * time.Minute), Outcome: "aborted", Phase: "aborted", Conflicts: 2, Decision: "none"},
		{VaultPath: "/vault/b", StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(121 * time.Minute), Outcome: "success-offline-degraded", Phase: "done"},
	}
	for _, s := range sessions {
		if err := store.RecordSession(ctx, s); err != nil {
			t.Fatalf("RecordSession() failed: %v", err)
		}
	}

	got, err := store.Recent(ctx, "/vault/a", 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d sessions, want 2", len(got))
	}
	// Newest first.
	if got[0].Outcome != "aborted" || got[1].Outcome != "success" {
		t.Errorf("Recent() order = %s, %s; want aborted, success", got[0].Outcome, got[1].Outcome)
	}
	if got[0].Conflicts != 2 {
		t.Errorf("Conflicts = %d, want 2", got[0].Conflicts)
	}
	if !got[1].Pushed {
		t.Error("Pushed flag lost")
	}
	if !got[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got[1].StartedAt, base)
	}
}

func TestRecentAllVaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, vault := range []string{"/vault/a", "/vault/b"} {
		err := store.RecordSession(ctx, Session{
			VaultPath: vault, StartedAt: now, FinishedAt: now, Outcome: "success", Phase: "done",
		})
		if err != nil {
			t.Fatalf("RecordSession() failed: %v", err)
		}
	}

	got, err := store.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recent(\"\") returned %d sessions, want 2", len(got))
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := store.RecordSession(ctx, Session{
			VaultPath: "/vault/a",
			StartedAt: now.Add(time.Duration(i) * time.Minute),
			FinishedAt: now.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Outcome:   "success", Phase: "done",
		})
		if err != nil {
			t.Fatalf("RecordSession() failed: %v", err)
		}
	}

	got, err := store.Recent(ctx, "/vault/a", 3)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Recent() returned %d sessions, want 3", len(got))
	}
}
