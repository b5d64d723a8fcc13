// -----------------------------------------------------------------------
// Analysis Job - Authoritative job record for drawing interpretations
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisJob represents one unit of backend work tied to one submitted
// drawing. The record is the source of truth for completion: BackendComplete
// is mutated only by the job store (via the completion webhook) and is
// monotonic false -> true, never reverting.
//
// The user-facing progress label (VisualStage) is deliberately NOT part of
// this record. It is in-memory state owned by the status reconciliation
// engine and reconstructed on every observation.
type AnalysisJob struct {
	ID       string `json:"id" badgerhold:"key"`
	ClientID string `json:"client_id" badgerhold:"index"`
	Title    string `json:"title"`

	// AssetRef is the opaque storage path of the source drawing, resolved
	// lazily to a time-limited URL at export time.
	AssetRef string `json:"asset_ref"`

	// BackendComplete is the authoritative completion flag.
	BackendComplete bool `json:"backend_complete"`

	// Result is present only once BackendComplete is true.
	Result *Interpretation `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Interpretation is the structured result payload produced by the backend
// analysis. Field order here mirrors the fixed section order of the rendered
// report: narrative, tone, the list fields, then the long-text fields.
type Interpretation struct {
	Narrative           string   `json:"narrative,omitempty"`
	Tone                string   `json:"tone,omitempty"`
	KeyElements         []string `json:"key_elements,omitempty"`
	EmotionalIndicators []string `json:"emotional_indicators,omitempty"`
	Recommendations     []string `json:"recommendations,omitempty"`
	DetailedAnalysis    string   `json:"detailed_analysis,omitempty"`
	DevelopmentNotes    string   `json:"development_notes,omitempty"`

	// Disclaimer is carried in the payload but intentionally never rendered
	// into the exported document.
	Disclaimer string `json:"disclaimer,omitempty"`

	AnalystID string `json:"analyst_id,omitempty"`
}

// IsEmpty reports whether the payload carries no renderable content
func (p *Interpretation) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Narrative == "" && p.Tone == "" &&
		len(p.KeyElements) == 0 && len(p.EmotionalIndicators) == 0 &&
		len(p.Recommendations) == 0 &&
		p.DetailedAnalysis == "" && p.DevelopmentNotes == ""
}

// MarkComplete sets the authoritative flag and attaches the result payload.
// Calling it again is a no-op; the flag never resets and the first payload
// wins.
func (j *AnalysisJob) MarkComplete(result *Interpretation) {
	if j.BackendComplete {
		return
	}
	j.BackendComplete = true
	j.Result = result
	now := time.Now()
	j.CompletedAt = &now
}

// Validate validates the job record
func (j *AnalysisJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.ClientID == "" {
		return fmt.Errorf("job client ID is required")
	}
	if j.AssetRef == "" {
		return fmt.Errorf("job asset reference is required")
	}
	return nil
}

// ToJSON serializes the job for push-channel payloads
func (j *AnalysisJob) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis job: %w", err)
	}
	return data, nil
}

// JobUpdateEvent is the push notification payload emitted when a job record
// changes. Shape matches what the UI subscribes to: an UPDATE on the jobs
// table scoped to the owning client.
type JobUpdateEvent struct {
	EventType string       `json:"event_type"` // always "UPDATE"
	Table     string       `json:"table"`      // always "jobs"
	Record    *AnalysisJob `json:"record"`
}

// NewJobUpdateEvent builds the standard UPDATE notification for a job
func NewJobUpdateEvent(job *AnalysisJob) *JobUpdateEvent {
	return &JobUpdateEvent{
		EventType: "UPDATE",
		Table:     "jobs",
		Record:    job,
	}
}

// StageChangeEvent announces a visual-stage transition to the UI. It is
// advisory; the authoritative signal is always the job update.
type StageChangeEvent struct {
	JobID    string      `json:"job_id"`
	ClientID string      `json:"client_id"`
	Stage    VisualStage `json:"stage"`
}
