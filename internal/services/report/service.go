// -----------------------------------------------------------------------
// Export Service - Full report pipeline for completed analysis jobs
// -----------------------------------------------------------------------

package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// ErrExportUnavailable indicates the job has no result payload yet, so an
// export cannot be attempted. Callers map this to a client error rather
// than a pipeline failure.
var ErrExportUnavailable = errors.New("export unavailable: job has no result payload")

// Service implements interfaces.ExportService
type Service struct {
	jobStorage    interfaces.JobStorage
	clientStorage interfaces.ClientStorage
	assets        interfaces.AssetResolver
	rasterizer    interfaces.Rasterizer
	summary       *SummaryRenderer
	layout        PageLayout
	sandboxWidth  int64
	tempDir       string
	logger        arbor.ILogger
}

var _ interfaces.ExportService = (*Service)(nil)

// NewService creates the export service
func NewService(
	jobStorage interfaces.JobStorage,
	clientStorage interfaces.ClientStorage,
	assets interfaces.AssetResolver,
	rasterizer interfaces.Rasterizer,
	layout PageLayout,
	sandboxWidth int64,
	logger arbor.ILogger,
) *Service {
	if sandboxWidth <= 0 {
		sandboxWidth = 794
	}
	return &Service{
		jobStorage:    jobStorage,
		clientStorage: clientStorage,
		assets:        assets,
		rasterizer:    rasterizer,
		summary:       NewSummaryRenderer(logger),
		layout:        layout,
		sandboxWidth:  sandboxWidth,
		tempDir:       os.TempDir(),
		logger:        logger,
	}
}

// Export runs the full pipeline for one completed job. Preconditions fail
// before any sandbox work starts, and a failure at any later step returns
// an error with no partial artifact.
func (s *Service) Export(ctx context.Context, jobID string) (*interfaces.ExportArtifact, error) {
	job, client, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	// The image URL is best-effort: an unresolvable asset degrades to a
	// text-only report as long as the payload is present.
	imageURL := ""
	if job.AssetRef != "" {
		resolved, err := s.assets.Resolve(ctx, job.AssetRef)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("job_id", jobID).
				Str("asset_ref", job.AssetRef).
				Msg("Drawing asset unresolvable, exporting without image")
		} else {
			imageURL = resolved.URL
		}
	}

	markup, err := RenderDocument(job, client, imageURL)
	if err != nil {
		return nil, err
	}

	capture, err := s.rasterizer.RenderToRaster(ctx, markup, s.sandboxWidth)
	if err != nil {
		return nil, fmt.Errorf("report capture failed for job %s: %w", jobID, err)
	}

	data, pages, err := BuildPDF(capture, s.layout)
	if err != nil {
		return nil, fmt.Errorf("report pagination failed for job %s: %w", jobID, err)
	}

	if err := s.validatePDF(data); err != nil {
		return nil, fmt.Errorf("exported document failed validation for job %s: %w", jobID, err)
	}

	artifact := &interfaces.ExportArtifact{
		Filename:    exportFilename(client, job, ""),
		ContentType: "application/pdf",
		Data:        data,
		PageCount:   pages,
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("filename", artifact.Filename).
		Int("pages", pages).
		Int("bytes", len(data)).
		Dur("duration", time.Since(started)).
		Msg("Report exported")

	return artifact, nil
}

// ExportSummary produces the text-only rendition. Same preconditions as
// Export, but no asset resolution and no sandbox.
func (s *Service) ExportSummary(ctx context.Context, jobID string) (*interfaces.ExportArtifact, error) {
	job, client, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	markup, err := RenderDocument(job, client, "")
	if err != nil {
		return nil, err
	}

	markdown, err := s.summary.MarkupToMarkdown(markup)
	if err != nil {
		return nil, fmt.Errorf("summary conversion failed for job %s: %w", jobID, err)
	}

	data, err := s.summary.RenderPDF(markdown)
	if err != nil {
		return nil, fmt.Errorf("summary rendering failed for job %s: %w", jobID, err)
	}

	if err := s.validatePDF(data); err != nil {
		return nil, fmt.Errorf("summary document failed validation for job %s: %w", jobID, err)
	}

	return &interfaces.ExportArtifact{
		Filename:    exportFilename(client, job, "Summary"),
		ContentType: "application/pdf",
		Data:        data,
		PageCount:   1,
	}, nil
}

// loadJob fetches the job and its client and enforces the export
// precondition: no result payload means no export of any kind.
func (s *Service) loadJob(ctx context.Context, jobID string) (*models.AnalysisJob, *models.ClientRecord, error) {
	job, err := s.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, nil, fmt.Errorf("job not found: %s", jobID)
	}
	if !job.BackendComplete || job.Result.IsEmpty() {
		return nil, nil, fmt.Errorf("job %s: %w", jobID, ErrExportUnavailable)
	}

	client, err := s.clientStorage.GetClient(ctx, job.ClientID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("client_id", job.ClientID).
			Msg("Client record unavailable for export header")
		client = nil
	}
	return job, client, nil
}

// validatePDF round-trips the document through pdfcpu before release
func (s *Service) validatePDF(data []byte) error {
	tempFile := filepath.Join(s.tempDir, fmt.Sprintf("export_%d_%d.pdf", os.Getpid(), time.Now().UnixNano()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to stage document for validation: %w", err)
	}
	defer os.Remove(tempFile)

	if err := api.ValidateFile(tempFile, nil); err != nil {
		return err
	}
	return nil
}

var filenameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// exportFilename builds the deterministic download name:
// Report-<DisplayName underscored>-<YYYY-MM-DD>.pdf
func exportFilename(client *models.ClientRecord, job *models.AnalysisJob, variant string) string {
	name := "Client"
	if client != nil && client.DisplayName != "" {
		name = client.DisplayName
	}
	name = filenameUnsafe.ReplaceAllString(name, "_")

	prefix := "Report"
	if variant != "" {
		prefix = prefix + "-" + variant
	}

	date := job.CreatedAt
	if job.CompletedAt != nil {
		date = *job.CompletedAt
	}
	return fmt.Sprintf("%s-%s-%s.pdf", prefix, name, date.Format("2006-01-02"))
}
