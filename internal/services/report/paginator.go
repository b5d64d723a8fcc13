// -----------------------------------------------------------------------
// Paginator - Slices a full-page capture across fixed-size PDF pages
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"math"

	"github.com/go-pdf/fpdf"
)

// ErrEmptyCapture indicates the sandbox produced a bitmap with no height,
// meaning there is nothing to paginate.
var ErrEmptyCapture = errors.New("capture bitmap has zero height")

// PageLayout describes the output page geometry in points
type PageLayout struct {
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	Margin     float64 `json:"margin"`
}

// DefaultPageLayout returns A4 geometry in points with the standard margin
func DefaultPageLayout() PageLayout {
	return PageLayout{PageWidth: 595, PageHeight: 842, Margin: 40}
}

// PagePlan is the computed placement of one capture across output pages.
// The same full image is drawn on every page, shifted up by one page height
// per page, so each page's viewport exposes the next slice.
type PagePlan struct {
	ContentWidth float64
	ScaledHeight float64
	NumPages     int
}

// PlanPages computes the pagination for a bitmap of the given pixel size.
//
// The image is scaled to the content width (page width minus both margins)
// and the page count divides the scaled height by the FULL page height, not
// the content height. Successive pages therefore bite into the top and
// bottom margins rather than leaving a gap; changing this would reflow every
// previously exported document.
func PlanPages(bmpWidth, bmpHeight int, layout PageLayout) (*PagePlan, error) {
	if bmpHeight <= 0 {
		return nil, ErrEmptyCapture
	}
	if bmpWidth <= 0 {
		return nil, fmt.Errorf("capture bitmap has invalid width %d", bmpWidth)
	}
	if layout.PageWidth <= 2*layout.Margin {
		return nil, fmt.Errorf("margin %.0f leaves no content width on a %.0f-point page", layout.Margin, layout.PageWidth)
	}

	contentWidth := layout.PageWidth - 2*layout.Margin
	scaledHeight := float64(bmpHeight) * contentWidth / float64(bmpWidth)
	numPages := int(math.Ceil(scaledHeight / layout.PageHeight))
	if numPages < 1 {
		numPages = 1
	}

	return &PagePlan{
		ContentWidth: contentWidth,
		ScaledHeight: scaledHeight,
		NumPages:     numPages,
	}, nil
}

// BuildPDF paginates a PNG capture into a PDF document and returns the
// document bytes and page count.
func BuildPDF(capture []byte, layout PageLayout) ([]byte, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(capture))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode capture: %w", err)
	}
	if format != "png" {
		return nil, 0, fmt.Errorf("unsupported capture format: %s", format)
	}

	plan, err := PlanPages(cfg.Width, cfg.Height, layout)
	if err != nil {
		return nil, 0, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: layout.PageWidth, Ht: layout.PageHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("capture", opts, bytes.NewReader(capture))
	if pdf.Err() {
		return nil, 0, fmt.Errorf("failed to register capture image: %v", pdf.Error())
	}

	for page := 0; page < plan.NumPages; page++ {
		pdf.AddPage()
		// Full image on every page, shifted up one page height per page
		y := layout.Margin - float64(page)*layout.PageHeight
		pdf.ImageOptions("capture", layout.Margin, y, plan.ContentWidth, 0, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), plan.NumPages, nil
}
