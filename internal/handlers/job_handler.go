// -----------------------------------------------------------------------
// Job Handler - Analysis job lifecycle and the backend completion webhook
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/status"
)

type JobHandler struct {
	jobStorage    interfaces.JobStorage
	clientStorage interfaces.ClientStorage
	engine        *status.Engine
	logger        arbor.ILogger
}

func NewJobHandler(jobStorage interfaces.JobStorage, clientStorage interfaces.ClientStorage, engine *status.Engine, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobStorage:    jobStorage,
		clientStorage: clientStorage,
		engine:        engine,
		logger:        logger,
	}
}

// jobView is the API shape of a job: the stored record plus the in-memory
// visual stage from the reconciliation engine.
type jobView struct {
	*models.AnalysisJob
	Stage models.VisualStage `json:"stage"`
}

func (h *JobHandler) view(job *models.AnalysisJob) *jobView {
	stage, ok := h.engine.StageOf(job.ID)
	if !ok {
		// Listing a job makes it visible, so the engine starts tracking it
		h.engine.Observe(job)
		if job.BackendComplete {
			stage = models.StageComplete
		} else {
			stage = models.StageAnalyzing
		}
	}
	return &jobView{AnalysisJob: job, Stage: stage}
}

type createJobRequest struct {
	ClientID string `json:"client_id"`
	Title    string `json:"title"`
	AssetRef string `json:"asset_ref"`
}

// CreateJobHandler starts a new analysis job
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.clientStorage.GetClient(r.Context(), req.ClientID); err != nil {
		WriteError(w, http.StatusBadRequest, "Unknown client: "+req.ClientID)
		return
	}

	job := &models.AnalysisJob{
		ID:        common.NewJobID(),
		ClientID:  req.ClientID,
		Title:     req.Title,
		AssetRef:  req.AssetRef,
		CreatedAt: time.Now(),
	}
	if err := job.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.jobStorage.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.engine.Observe(job)

	h.logger.Info().
		Str("job_id", job.ID).
		Str("client_id", job.ClientID).
		Msg("Analysis job created")

	WriteJSON(w, http.StatusCreated, h.view(job))
}

// ListJobsHandler lists jobs, optionally filtered by client
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := GetListParams(r)
	opts := &interfaces.JobListOptions{
		ClientID: r.URL.Query().Get("client_id"),
		Limit:    limit,
		Offset:   offset,
	}

	jobs, err := h.jobStorage.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	views := make([]*jobView, len(jobs))
	for i, job := range jobs {
		views[i] = h.view(job)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"count": len(views),
	})
}

// GetJobHandler returns one job with its current visual stage
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobStorage.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}

	WriteJSON(w, http.StatusOK, h.view(job))
}

// DeleteJobHandler removes a job and cancels its tracking
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := h.jobStorage.DeleteJob(r.Context(), jobID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.engine.Forget(jobID)
	WriteSuccess(w, "Job deleted")
}

type completeJobRequest struct {
	Result *models.Interpretation `json:"result"`
}

// CompleteJobHandler is the backend webhook that marks a job complete.
// MarkJobComplete is idempotent, so webhook retries are harmless; the
// resulting update event is what unlocks the withheld visual transition.
func (h *JobHandler) CompleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	var req completeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.jobStorage.MarkJobComplete(r.Context(), jobID, req.Result)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Completion webhook failed")
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}

	WriteJSON(w, http.StatusOK, h.view(job))
}
