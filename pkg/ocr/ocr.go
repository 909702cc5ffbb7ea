// Package ocr extracts text from images and PDFs. Two providers are
// available: a local tesseract binary (free) and Google Cloud Vision
// (premium). A confidence-based router picks between them.
package ocr

import "context"

// Block is a detected text fragment with its confidence and position.
type Block struct {
	Text       string
	Confidence float64
	// BBox is (left, top, width, height) in pixels when known.
	BBox *[4]int
	Page int
}

// Result is a single OCR pass over one image or PDF page.
type Result struct {
	Text       string
	Confidence float64
	Blocks     []Block
	Language   string
	Provider   string
	Page       int
}

// Provider extracts text from raster images and PDFs.
type Provider interface {
	// Name identifies the provider in logs and result metadata.
	Name() string
	// Extract runs OCR over a single image.
	Extract(ctx context.Context, imageBytes []byte) (*Result, error)
	// ExtractPDF rasterizes the PDF and runs OCR page by page. Block and
	// result page indexes start at 1.
	ExtractPDF(ctx context.Context, pdfBytes []byte) ([]*Result, error)
}

// IsPDF sniffs the PDF magic header.
func IsPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}

// CombinePages folds per-page results into one, joining text and
// averaging confidence.
func CombinePages(pages []*Result) *Result {
	if len(pages) == 0 {
		return &Result{}
	}
	combined := &Result{
		Provider: pages[0].Provider,
		Language: pages[0].Language,
	}
	total := 0.0
	for i, p := range pages {
		if i > 0 {
			combined.Text += "\n\n"
		}
		combined.Text += p.Text
		combined.Blocks = append(combined.Blocks, p.Blocks...)
		total += p.Confidence
	}
	combined.Confidence = total / float64(len(pages))
	return combined
}
