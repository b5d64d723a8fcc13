package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/services/report"
)

type ExportHandler struct {
	exportService interfaces.ExportService
	logger        arbor.ILogger
}

func NewExportHandler(exportService interfaces.ExportService, logger arbor.ILogger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// ExportJobHandler streams the full report PDF for a completed job
func (h *ExportHandler) ExportJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	artifact, err := h.exportService.Export(r.Context(), jobID)
	if err != nil {
		h.writeExportError(w, jobID, err)
		return
	}
	h.writeArtifact(w, artifact)
}

// ExportSummaryHandler streams the text-only summary PDF
func (h *ExportHandler) ExportSummaryHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	artifact, err := h.exportService.ExportSummary(r.Context(), jobID)
	if err != nil {
		h.writeExportError(w, jobID, err)
		return
	}
	h.writeArtifact(w, artifact)
}

func (h *ExportHandler) writeExportError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, report.ErrExportUnavailable) {
		WriteError(w, http.StatusConflict, "Report not available yet: analysis has not completed")
		return
	}
	h.logger.Error().Err(err).Str("job_id", jobID).Msg("Export failed")
	WriteError(w, http.StatusInternalServerError, "Export failed")
}

func (h *ExportHandler) writeArtifact(w http.ResponseWriter, artifact *interfaces.ExportArtifact) {
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.logger.Warn().Err(err).Str("filename", artifact.Filename).Msg("Failed to stream export")
	}
}
