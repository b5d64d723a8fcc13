package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/events"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestJobPersistenceRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, nil, arbor.NewLogger())
	ctx := context.Background()

	job := &models.AnalysisJob{
		ID:        "job_round",
		ClientID:  "client_1",
		Title:     "Family drawing",
		AssetRef:  "drawings/family.png",
		CreatedAt: time.Now(),
	}
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	loaded, err := storage.GetJob(ctx, "job_round")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if loaded == nil {
		t.Fatal("Saved job not found")
	}
	if loaded.Title != job.Title || loaded.ClientID != job.ClientID || loaded.AssetRef != job.AssetRef {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}
	if loaded.BackendComplete {
		t.Error("New job should not be complete")
	}

	missing, err := storage.GetJob(ctx, "job_missing")
	if err != nil {
		t.Fatalf("Unexpected error for missing job: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing job")
	}
}

func TestMarkJobCompleteIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, nil, arbor.NewLogger())
	ctx := context.Background()

	job := &models.AnalysisJob{
		ID: "job_idem", ClientID: "client_1", AssetRef: "a.png", CreatedAt: time.Now(),
	}
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	first := &models.Interpretation{Narrative: "first result"}
	completed, err := storage.MarkJobComplete(ctx, "job_idem", first)
	if err != nil {
		t.Fatalf("Failed to mark complete: %v", err)
	}
	if !completed.BackendComplete || completed.Result == nil {
		t.Fatal("Completion not applied")
	}
	firstCompletedAt := completed.CompletedAt

	// A repeated completion must not replace the payload or timestamp
	again, err := storage.MarkJobComplete(ctx, "job_idem", &models.Interpretation{Narrative: "second result"})
	if err != nil {
		t.Fatalf("Repeated completion failed: %v", err)
	}
	if again.Result.Narrative != "first result" {
		t.Errorf("Payload replaced on repeat: %q", again.Result.Narrative)
	}
	if !again.CompletedAt.Equal(*firstCompletedAt) {
		t.Error("CompletedAt changed on repeat")
	}
}

func TestMarkJobCompleteEmitsUpdateEvent(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	storage := NewJobStorage(db, eventService, logger)
	ctx := context.Background()

	var mu sync.Mutex
	var got []*models.JobUpdateEvent
	err := eventService.Subscribe(interfaces.EventJobUpdated, func(ctx context.Context, event interfaces.Event) error {
		if update, ok := event.Payload.(*models.JobUpdateEvent); ok {
			mu.Lock()
			got = append(got, update)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	job := &models.AnalysisJob{ID: "job_evt", ClientID: "client_9", AssetRef: "b.png", CreatedAt: time.Now()}
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	if _, err := storage.MarkJobComplete(ctx, "job_evt", &models.Interpretation{Narrative: "done"}); err != nil {
		t.Fatal(err)
	}
	// Second call is a no-op and must not emit again
	if _, err := storage.MarkJobComplete(ctx, "job_evt", nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("update events = %d, want 1", len(got))
	}
	if got[0].EventType != "UPDATE" || got[0].Table != "jobs" {
		t.Errorf("unexpected event shape: %+v", got[0])
	}
	if !got[0].Record.BackendComplete {
		t.Error("event record not marked complete")
	}
}

func TestListJobsFiltersByClient(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, nil, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, clientID := range []string{"client_a", "client_a", "client_b"} {
		job := &models.AnalysisJob{
			ID:        "job_list_" + string(rune('a'+i)),
			ClientID:  clientID,
			AssetRef:  "x.png",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := storage.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := storage.ListJobs(ctx, &interfaces.JobListOptions{ClientID: "client_a"})
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("filtered count = %d, want 2", len(jobs))
	}
	// Newest first
	if jobs[0].CreatedAt.Before(jobs[1].CreatedAt) {
		t.Error("jobs not sorted newest first")
	}

	all, err := storage.ListJobs(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("unfiltered count = %d, want 3", len(all))
	}
}

func TestGetIncompleteJobs(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, nil, arbor.NewLogger())
	ctx := context.Background()

	for _, id := range []string{"job_p1", "job_p2", "job_c1"} {
		job := &models.AnalysisJob{ID: id, ClientID: "client_1", AssetRef: "x.png", CreatedAt: time.Now()}
		if err := storage.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := storage.MarkJobComplete(ctx, "job_c1", &models.Interpretation{Narrative: "n"}); err != nil {
		t.Fatal(err)
	}

	incomplete, err := storage.GetIncompleteJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("incomplete count = %d, want 2", len(incomplete))
	}

	count, err := storage.CountJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("total count = %d, want 3", count)
	}
}

func TestDeleteJob(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, nil, arbor.NewLogger())
	ctx := context.Background()

	job := &models.AnalysisJob{ID: "job_del", ClientID: "client_1", AssetRef: "x.png", CreatedAt: time.Now()}
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := storage.DeleteJob(ctx, "job_del"); err != nil {
		t.Fatal(err)
	}

	loaded, err := storage.GetJob(ctx, "job_del")
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Error("job still present after delete")
	}

	// Deleting a missing job is not an error
	if err := storage.DeleteJob(ctx, "job_del"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}
