package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/events"
	"github.com/ternarybob/atelier/internal/services/status"
)

// mockJobStorage implements interfaces.JobStorage with an in-memory map
type mockJobStorage struct {
	jobs map[string]*models.AnalysisJob
}

func newMockJobStorage() *mockJobStorage {
	return &mockJobStorage{jobs: make(map[string]*models.AnalysisJob)}
}

func (m *mockJobStorage) SaveJob(ctx context.Context, job *models.AnalysisJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobStorage) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return m.jobs[jobID], nil
}

func (m *mockJobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.AnalysisJob, error) {
	var result []*models.AnalysisJob
	for _, job := range m.jobs {
		if opts != nil && opts.ClientID != "" && job.ClientID != opts.ClientID {
			continue
		}
		result = append(result, job)
	}
	return result, nil
}

func (m *mockJobStorage) MarkJobComplete(ctx context.Context, jobID string, result *models.Interpretation) (*models.AnalysisJob, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	job.MarkComplete(result)
	return job, nil
}

func (m *mockJobStorage) GetIncompleteJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	var result []*models.AnalysisJob
	for _, job := range m.jobs {
		if !job.BackendComplete {
			result = append(result, job)
		}
	}
	return result, nil
}

func (m *mockJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	delete(m.jobs, jobID)
	return nil
}

func (m *mockJobStorage) CountJobs(ctx context.Context) (int, error) {
	return len(m.jobs), nil
}

// mockClientStorage implements interfaces.ClientStorage
type mockClientStorage struct {
	clients map[string]*models.ClientRecord
}

func newMockClientStorage() *mockClientStorage {
	return &mockClientStorage{clients: make(map[string]*models.ClientRecord)}
}

func (m *mockClientStorage) SaveClient(ctx context.Context, client *models.ClientRecord) error {
	m.clients[client.ID] = client
	return nil
}

func (m *mockClientStorage) GetClient(ctx context.Context, clientID string) (*models.ClientRecord, error) {
	client, ok := m.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}
	return client, nil
}

func (m *mockClientStorage) ListClients(ctx context.Context) ([]*models.ClientRecord, error) {
	var result []*models.ClientRecord
	for _, client := range m.clients {
		result = append(result, client)
	}
	return result, nil
}

func (m *mockClientStorage) DeleteClient(ctx context.Context, clientID string) error {
	delete(m.clients, clientID)
	return nil
}

func newTestJobHandler(t *testing.T) (*JobHandler, *mockJobStorage, *mockClientStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	engine := status.NewEngine(status.Schedule{
		AnalyzingDelay:  time.Hour, // no transitions during handler tests
		GeneratingDelay: time.Hour,
		FinalizingDelay: time.Hour,
	}, eventService, logger, 0)
	engine.Start()
	t.Cleanup(func() {
		engine.Stop()
		eventService.Close()
	})

	jobStorage := newMockJobStorage()
	clientStorage := newMockClientStorage()
	clientStorage.clients["client_1"] = &models.ClientRecord{ID: "client_1", DisplayName: "Jamie Rivers"}

	return NewJobHandler(jobStorage, clientStorage, engine, logger), jobStorage, clientStorage
}

func TestCreateJobHandler(t *testing.T) {
	handler, jobStorage, _ := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]string{
		"client_id": "client_1",
		"title":     "House drawing",
		"asset_ref": "drawings/house.png",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateJobHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var view struct {
		ID    string             `json:"id"`
		Stage models.VisualStage `json:"stage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.ID == "" {
		t.Error("response missing job id")
	}
	if view.Stage != models.StageAnalyzing {
		t.Errorf("new job stage = %s, want %s", view.Stage, models.StageAnalyzing)
	}
	if _, ok := jobStorage.jobs[view.ID]; !ok {
		t.Error("job was not persisted")
	}
}

func TestCreateJobHandlerUnknownClient(t *testing.T) {
	handler, _, _ := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]string{
		"client_id": "client_missing",
		"asset_ref": "drawings/house.png",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateJobHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateJobHandlerMissingAssetRef(t *testing.T) {
	handler, _, _ := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]string{"client_id": "client_1"})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateJobHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetJobHandlerNotFound(t *testing.T) {
	handler, _, _ := newTestJobHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req, "job_missing")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetJobHandlerCompletedJobShowsComplete(t *testing.T) {
	handler, jobStorage, _ := newTestJobHandler(t)

	completedAt := time.Now()
	jobStorage.jobs["job_done"] = &models.AnalysisJob{
		ID:              "job_done",
		ClientID:        "client_1",
		AssetRef:        "drawings/house.png",
		BackendComplete: true,
		Result:          &models.Interpretation{Narrative: "A calm scene"},
		CreatedAt:       time.Now().Add(-time.Minute),
		CompletedAt:     &completedAt,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job_done", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req, "job_done")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		Stage models.VisualStage `json:"stage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Stage != models.StageComplete {
		t.Errorf("stage = %s, want %s", view.Stage, models.StageComplete)
	}
}

func TestListJobsHandlerFiltersByClient(t *testing.T) {
	handler, jobStorage, clientStorage := newTestJobHandler(t)
	clientStorage.clients["client_2"] = &models.ClientRecord{ID: "client_2", DisplayName: "Other"}

	jobStorage.jobs["job_a"] = &models.AnalysisJob{ID: "job_a", ClientID: "client_1", AssetRef: "a.png", CreatedAt: time.Now()}
	jobStorage.jobs["job_b"] = &models.AnalysisJob{ID: "job_b", ClientID: "client_2", AssetRef: "b.png", CreatedAt: time.Now()}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?client_id=client_1", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var response struct {
		Count int `json:"count"`
		Jobs  []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response.Count != 1 || len(response.Jobs) != 1 || response.Jobs[0].ID != "job_a" {
		t.Errorf("unexpected listing: %s", rec.Body.String())
	}
}

func TestCompleteJobHandlerWebhook(t *testing.T) {
	handler, jobStorage, _ := newTestJobHandler(t)
	jobStorage.jobs["job_w"] = &models.AnalysisJob{
		ID: "job_w", ClientID: "client_1", AssetRef: "w.png", CreatedAt: time.Now(),
	}

	body, _ := json.Marshal(map[string]interface{}{
		"result": map[string]string{"narrative": "Bright colors throughout"},
	})

	// Deliver the webhook twice; retries must not disturb the record
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_w/complete", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.CompleteJobHandler(rec, req, "job_w")
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	job := jobStorage.jobs["job_w"]
	if !job.BackendComplete {
		t.Error("webhook did not set the completion flag")
	}
	if job.Result == nil || job.Result.Narrative != "Bright colors throughout" {
		t.Errorf("result payload not attached: %+v", job.Result)
	}
}

func TestCompleteJobHandlerUnknownJob(t *testing.T) {
	handler, _, _ := newTestJobHandler(t)

	body, _ := json.Marshal(map[string]interface{}{"result": nil})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job_missing/complete", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CompleteJobHandler(rec, req, "job_missing")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteJobHandler(t *testing.T) {
	handler, jobStorage, _ := newTestJobHandler(t)
	jobStorage.jobs["job_d"] = &models.AnalysisJob{ID: "job_d", ClientID: "client_1", AssetRef: "d.png", CreatedAt: time.Now()}

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/job_d", nil)
	rec := httptest.NewRecorder()

	handler.DeleteJobHandler(rec, req, "job_d")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := jobStorage.jobs["job_d"]; ok {
		t.Error("job still present after delete")
	}
}
