// -----------------------------------------------------------------------
// Report Template - Deterministic HTML document for the export sandbox
// -----------------------------------------------------------------------

package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ternarybob/atelier/internal/models"
)

// section pairs a fixed heading with the payload accessor that fills it.
// Order here is the render order; it never varies between exports.
type section struct {
	heading string
	text    func(*models.Interpretation) string
	list    func(*models.Interpretation) []string
}

var reportSections = []section{
	{heading: "Narrative", text: func(p *models.Interpretation) string { return p.Narrative }},
	{heading: "Overall Tone", text: func(p *models.Interpretation) string { return p.Tone }},
	{heading: "Key Elements", list: func(p *models.Interpretation) []string { return p.KeyElements }},
	{heading: "Emotional Indicators", list: func(p *models.Interpretation) []string { return p.EmotionalIndicators }},
	{heading: "Recommendations", list: func(p *models.Interpretation) []string { return p.Recommendations }},
	{heading: "Detailed Analysis", text: func(p *models.Interpretation) string { return p.DetailedAnalysis }},
	{heading: "Development Notes", text: func(p *models.Interpretation) string { return p.DevelopmentNotes }},
}

const reportStylesheet = `
body { font-family: Georgia, 'Times New Roman', serif; color: #1a1a2e; margin: 0; padding: 32px; background: #ffffff; }
.report-header { border-bottom: 2px solid #1a1a2e; padding-bottom: 16px; margin-bottom: 24px; }
.report-header h1 { font-size: 24px; margin: 0 0 8px 0; }
.report-meta { font-size: 12px; color: #555; }
.report-meta span { margin-right: 16px; }
.drawing-block { text-align: center; margin: 24px 0; }
.drawing-block img { max-width: 100%; border: 1px solid #ccc; }
.report-section { margin-bottom: 20px; page-break-inside: avoid; }
.report-section h2 { font-size: 16px; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
.report-section p { font-size: 13px; line-height: 1.6; white-space: pre-wrap; }
.report-section ul { font-size: 13px; line-height: 1.6; padding-left: 20px; }
.report-footer { margin-top: 32px; padding-top: 12px; border-top: 1px solid #ddd; font-size: 10px; color: #888; }
`

// RenderDocument builds the complete HTML document handed to the offscreen
// sandbox. Every interpolated value is entity-escaped; markup arriving
// inside payload fields renders as text, never as elements. The disclaimer
// field is carried in the payload but has no section here.
//
// A document with neither payload content nor a drawing image has nothing
// to render and fails instead of producing an empty report.
func RenderDocument(job *models.AnalysisJob, client *models.ClientRecord, imageURL string) (string, error) {
	if job == nil {
		return "", fmt.Errorf("cannot render report: job is nil")
	}
	if job.Result.IsEmpty() && imageURL == "" {
		return "", fmt.Errorf("cannot render report for job %s: no result payload and no drawing image", job.ID)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<style>")
	b.WriteString(reportStylesheet)
	b.WriteString("</style>\n</head>\n<body>\n")

	writeHeader(&b, job, client)

	if imageURL != "" {
		b.WriteString("<div class=\"drawing-block\">")
		// crossorigin keeps the canvas untainted so the screenshot
		// capture is permitted to include the image
		b.WriteString(fmt.Sprintf("<img src=\"%s\" crossorigin=\"anonymous\" alt=\"Submitted drawing\">",
			html.EscapeString(imageURL)))
		b.WriteString("</div>\n")
	}

	if !job.Result.IsEmpty() {
		for _, s := range reportSections {
			writeSection(&b, s, job.Result)
		}
	}

	writeFooter(&b, job)

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func writeHeader(b *strings.Builder, job *models.AnalysisJob, client *models.ClientRecord) {
	b.WriteString("<div class=\"report-header\">\n")

	title := job.Title
	if title == "" {
		title = "Drawing Analysis Report"
	}
	b.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(title)))

	b.WriteString("<div class=\"report-meta\">\n")
	if client != nil && client.DisplayName != "" {
		b.WriteString(fmt.Sprintf("<span>Client: %s</span>", html.EscapeString(client.DisplayName)))
	}
	if client != nil && client.Category != "" {
		b.WriteString(fmt.Sprintf("<span>Category: %s</span>", html.EscapeString(client.Category)))
	}
	if job.Result != nil && job.Result.AnalystID != "" {
		b.WriteString(fmt.Sprintf("<span>Analyst: %s</span>", html.EscapeString(job.Result.AnalystID)))
	}
	b.WriteString(fmt.Sprintf("<span>Date: %s</span>", job.CreatedAt.Format("2 January 2006")))
	b.WriteString("\n</div>\n</div>\n")
}

func writeSection(b *strings.Builder, s section, payload *models.Interpretation) {
	if s.text != nil {
		value := s.text(payload)
		if value == "" {
			return
		}
		b.WriteString("<div class=\"report-section\">")
		b.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(s.heading)))
		b.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(value)))
		b.WriteString("</div>\n")
		return
	}

	items := s.list(payload)
	if len(items) == 0 {
		return
	}
	b.WriteString("<div class=\"report-section\">")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(s.heading)))
	b.WriteString("<ul>")
	for _, item := range items {
		b.WriteString(fmt.Sprintf("<li>%s</li>", html.EscapeString(item)))
	}
	b.WriteString("</ul>")
	b.WriteString("</div>\n")
}

func writeFooter(b *strings.Builder, job *models.AnalysisJob) {
	b.WriteString("<div class=\"report-footer\">")
	b.WriteString(fmt.Sprintf("Generated %s &middot; Reference %s",
		time.Now().Format("2 January 2006 15:04"), html.EscapeString(job.ID)))
	b.WriteString("</div>\n")
}
