package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/guojianbin/TinyCron/internal/notify"
)

func openStore(t *testing.T, limit int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), limit)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openStore(t, 0)
	start := time.Date(2024, 3, 1, 2, 0, 0, 500, time.UTC)

	for i, job := range []string{"a", "b", "a"} {
		r := &Run{JobID: job, Status: StatusCompleted, StartedAt: start.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(r); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if r.ID != uint64(i+1) {
			t.Errorf("run %d got ID %d", i, r.ID)
		}
	}

	runs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != 3 || runs[1].ID != 2 {
		t.Fatalf("Recent(2) = %+v", runs)
	}
	if !runs[0].StartedAt.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("StartedAt = %s", runs[0].StartedAt)
	}

	all, _ := s.Recent(0)
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d runs", len(all))
	}

	forA, err := s.ForJob("a", 10)
	if err != nil {
		t.Fatalf("ForJob: %v", err)
	}
	if len(forA) != 2 || forA[0].ID != 3 || forA[1].ID != 1 {
		t.Errorf("ForJob(a) = %+v", forA)
	}
}

func TestStore_Prune(t *testing.T) {
	s := openStore(t, 0)
	for i := 0; i < 5; i++ {
		if err := s.Record(&Run{JobID: "x", Status: StatusFailed}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	removed, err := s.Prune(2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	runs, _ := s.Recent(0)
	if len(runs) != 2 || runs[0].ID != 5 || runs[1].ID != 4 {
		t.Errorf("remaining = %+v", runs)
	}

	if removed, _ := s.Prune(10); removed != 0 {
		t.Errorf("Prune above count removed %d", removed)
	}
}

func TestStore_PublishRecordsTerminalEvents(t *testing.T) {
	s := openStore(t, 2)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	code := 7

	events := []notify.Event{
		{Type: notify.SchedulerStarted, Time: at},
		{Type: notify.JobInitiated, JobID: "a", Time: at},
		{Type: notify.JobCompleted, JobID: "a", Schedule: "0 8 * * *", Time: at, StartedAt: at, DurationMs: 12},
		{Type: notify.JobFailed, JobID: "b", Time: at, ExitCode: &code, Error: "exit status 7"},
		{Type: notify.JobSkipped, JobID: "c", Time: at, Error: "load too high"},
	}
	for _, ev := range events {
		if err := s.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish(%s): %v", ev.Type, err)
		}
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count() = %d, want 2 after pruning", count)
	}

	runs, _ := s.Recent(0)
	if runs[0].JobID != "c" || runs[0].Status != StatusSkipped {
		t.Errorf("newest = %+v", runs[0])
	}
	failed := runs[1]
	if failed.Status != StatusFailed || failed.ExitCode == nil || *failed.ExitCode != 7 || failed.Error != "exit status 7" {
		t.Errorf("failed run = %+v", failed)
	}
	if !failed.StartedAt.Equal(at) {
		t.Errorf("StartedAt fallback = %s, want event time", failed.StartedAt)
	}
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Record(&Run{JobID: "a", Status: StatusCompleted}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	runs, err := ro.Recent(10)
	if err != nil || len(runs) != 1 {
		t.Errorf("Recent = %v, %v", runs, err)
	}
}
