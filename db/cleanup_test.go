package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedSession(t *testing.T, repo *Repository, id, status string, started time.Time) {
	t.Helper()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, Session{ID: id, Source: "sine", StartedAt: started}); err != nil {
		t.Fatalf("CreateSession(%s) error = %v", id, err)
	}
	if err := repo.InsertSnapshot(ctx, testSnapshot(id, started)); err != nil {
		t.Fatalf("InsertSnapshot(%s) error = %v", id, err)
	}
	if err := repo.InsertSampleBlock(ctx, SampleBlock{SessionID: id, Samples: []float32{1, 2}}); err != nil {
		t.Fatalf("InsertSampleBlock(%s) error = %v", id, err)
	}
	if status != SessionRunning {
		if err := repo.FinishSession(ctx, id, status, testSnapshot(id, started)); err != nil {
			t.Fatalf("FinishSession(%s) error = %v", id, err)
		}
	}
}

func TestCleanup_RemovesOldFinishedSessions(t *testing.T) {
	ctx := context.Background()
	d := newTestDatabase(t)
	repo := NewRepository(d, nil)

	old := time.Now().AddDate(0, 0, -40)
	seedSession(t, repo, "old-finished", SessionFinished, old)
	seedSession(t, repo, "old-failed", SessionFailed, old)
	seedSession(t, repo, "old-running", SessionRunning, old)
	seedSession(t, repo, "recent", SessionFinished, time.Now().Add(-time.Hour))

	result, err := d.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.SessionsDeleted != 2 {
		t.Errorf("SessionsDeleted = %d, want 2", result.SessionsDeleted)
	}
	if result.SnapshotsDeleted != 4 {
		t.Errorf("SnapshotsDeleted = %d, want 4", result.SnapshotsDeleted)
	}
	if result.BlocksDeleted != 2 {
		t.Errorf("BlocksDeleted = %d, want 2", result.BlocksDeleted)
	}
	if result.TotalDeleted() != 8 {
		t.Errorf("TotalDeleted() = %d, want 8", result.TotalDeleted())
	}

	for _, id := range []string{"old-finished", "old-failed"} {
		if _, err := repo.GetSession(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSession(%s) error = %v, want ErrNotFound", id, err)
		}
	}
	for _, id := range []string{"old-running", "recent"} {
		if _, err := repo.GetSession(ctx, id); err != nil {
			t.Errorf("GetSession(%s) error = %v, want kept", id, err)
		}
	}
}

func TestCleanup_NegativeRetention(t *testing.T) {
	d := newTestDatabase(t)
	if _, err := d.Cleanup(context.Background(), -1); err == nil {
		t.Error("Cleanup(-1) expected error")
	}
}

func TestCleanup_CancelledContext(t *testing.T) {
	d := newTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Cleanup(ctx, 30); !errors.Is(err, context.Canceled) {
		t.Errorf("Cleanup() error = %v, want context.Canceled", err)
	}
}

func TestStartCleanupScheduler(t *testing.T) {
	d := newTestDatabase(t)
	repo := NewRepository(d, nil)
	seedSession(t, repo, "old", SessionFinished, time.Now().AddDate(0, 0, -10))

	var (
		mu    sync.Mutex
		runs  int
		total int64
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := d.StartCleanupScheduler(ctx, CleanupSchedulerConfig{
		RetentionDays: 7,
		Interval:      10 * time.Millisecond,
		OnCleanup: func(result CleanupResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				runs++
				total += result.SessionsDeleted
			}
		},
	})

	time.Sleep(80 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if runs < 2 {
		t.Errorf("runs = %d, want at least 2", runs)
	}
	if total != 1 {
		t.Errorf("sessions deleted = %d, want 1", total)
	}
}

func TestDefaultCleanupSchedulerConfig(t *testing.T) {
	c := DefaultCleanupSchedulerConfig()
	if c.RetentionDays != 30 || c.Interval != 24*time.Hour || c.OnCleanup != nil {
		t.Errorf("DefaultCleanupSchedulerConfig() = %+v", c)
	}
}
