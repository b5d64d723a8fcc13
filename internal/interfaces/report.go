package interfaces

import "context"

// Rasterizer converts composed markup into a single bitmap at a fixed
// logical width. Implementations own their rendering surface and must tear
// it down on every exit path; callers never share one across concurrent
// exports.
type Rasterizer interface {
	RenderToRaster(ctx context.Context, markup string, width int64) ([]byte, error)
}

// ExportArtifact is the finished multi-page document handed to the user.
// Nothing is persisted; the bytes are discarded after download.
type ExportArtifact struct {
	Filename    string
	ContentType string
	Data        []byte
	PageCount   int
}

// ExportService produces downloadable report artifacts for completed jobs
type ExportService interface {
	// Export runs the full pipeline: template -> sandbox -> rasterizer ->
	// paginator, for one already-completed job.
	Export(ctx context.Context, jobID string) (*ExportArtifact, error)

	// ExportSummary produces the text-only summary document (no sandbox).
	ExportSummary(ctx context.Context, jobID string) (*ExportArtifact, error)
}
