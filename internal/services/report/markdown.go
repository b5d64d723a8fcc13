// -----------------------------------------------------------------------
// Summary Renderer - Text-only markdown and PDF rendition of a report
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SummaryRenderer produces the text-only summary export. The report markup
// is converted to markdown, then laid out with a small goldmark walker; no
// browser is involved, so the summary stays available when the drawing
// image cannot be fetched.
type SummaryRenderer struct {
	logger arbor.ILogger
}

// NewSummaryRenderer creates a summary renderer
func NewSummaryRenderer(logger arbor.ILogger) *SummaryRenderer {
	return &SummaryRenderer{logger: logger}
}

// MarkupToMarkdown converts report HTML to markdown, dropping images and
// styling. The converter leaves entity-escaped payload text intact.
func (r *SummaryRenderer) MarkupToMarkdown(markup string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Remove("img")

	out, err := converter.ConvertString(markup)
	if err != nil {
		return "", fmt.Errorf("failed to convert report markup: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("report markup produced no summary text")
	}
	return out, nil
}

// RenderPDF lays out summary markdown into a single-column PDF
func (r *SummaryRenderer) RenderPDF(markdown string) ([]byte, error) {
	if markdown == "" {
		return nil, fmt.Errorf("cannot render empty summary")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Times", "", 10)

	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	walker := &summaryWalker{pdf: pdf, source: source}
	if err := ast.Walk(doc, walker.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out summary: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write summary pdf: %w", err)
	}

	r.logger.Debug().Int("pdf_size", buf.Len()).Msg("Summary PDF generated")
	return buf.Bytes(), nil
}

// summaryWalker maps the markdown AST onto fpdf calls. Only the node kinds
// the report template can produce are handled; anything else falls through
// as plain text.
type summaryWalker struct {
	pdf       *fpdf.Fpdf
	source    []byte
	bold      bool
	italic    bool
	listDepth int
}

func (w *summaryWalker) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		w.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(6)
		}
	case *ast.Text:
		if entering {
			w.pdf.Write(5, string(node.Text(w.source)))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont(10)
	case *ast.List:
		if entering {
			w.listDepth++
		} else {
			w.listDepth--
			if w.listDepth == 0 {
				w.pdf.Ln(3)
			}
		}
	case *ast.ListItem:
		if entering {
			w.pdf.Ln(5)
			w.pdf.SetX(15 + float64(w.listDepth)*5)
			w.pdf.Write(5, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(3)
			w.pdf.Line(15, w.pdf.GetY(), 195, w.pdf.GetY())
			w.pdf.Ln(3)
		}
	}
	return ast.WalkContinue, nil
}

func (w *summaryWalker) heading(n *ast.Heading, entering bool) {
	if entering {
		w.pdf.Ln(5)
		size := 13.0
		if n.Level > 1 {
			size = 11.5
		}
		w.pdf.SetFont("Times", "B", size)
		return
	}
	w.pdf.Ln(6)
	w.applyFont(10)
}

func (w *summaryWalker) applyFont(size float64) {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont("Times", style, size)
}
