package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/eventhint/eventhint/pkg/logging"
)

// Tesseract shells out to the tesseract binary. Free and local; decent
// on printed text, weak on handwriting and dense layouts.
type Tesseract struct {
	binPath string
	// languages passed to -l, e.g. "eng+hun".
	languages string
	log       logging.Logger
}

// NewTesseract builds the local OCR provider. An empty binPath falls
// back to whatever "tesseract" resolves to on PATH.
func NewTesseract(binPath string, log logging.Logger) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Tesseract{binPath: binPath, languages: "eng+hun", log: log}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Extract OCRs one image. Runs tesseract twice: once for plain text and
// once in TSV mode for per-word confidences.
func (t *Tesseract) Extract(ctx context.Context, imageBytes []byte) (*Result, error) {
	text, err := t.run(ctx, imageBytes, "txt")
	if err != nil {
		return nil, fmt.Errorf("tesseract text pass failed: %w", err)
	}

	tsv, err := t.run(ctx, imageBytes, "tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract tsv pass failed: %w", err)
	}

	blocks, confidence := parseTSV(tsv)
	t.log.Debug("tesseract extraction complete",
		logging.F("chars", len(text)),
		logging.F("confidence", confidence))

	return &Result{
		Text:       text,
		Confidence: confidence,
		Blocks:     blocks,
		Provider:   t.Name(),
	}, nil
}

// ExtractPDF rasterizes pages with pdftoppm, then OCRs each page.
func (t *Tesseract) ExtractPDF(ctx context.Context, pdfBytes []byte) ([]*Result, error) {
	pages, err := rasterizePDF(ctx, pdfBytes)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for i, img := range pages {
		res, err := t.Extract(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("ocr failed on page %d: %w", i+1, err)
		}
		res.Page = i + 1
		for j := range res.Blocks {
			res.Blocks[j].Page = i + 1
		}
		results = append(results, res)
	}
	return results, nil
}

// rasterizePDF converts each PDF page to a PNG via pdftoppm and returns
// the page images in order.
func rasterizePDF(ctx context.Context, pdfBytes []byte) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "eventhint-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "300", "-", filepath.Join(dir, "page"))
	cmd.Stdin = bytes.NewReader(pdfBytes)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("failed to list rasterized pages: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("pdf produced no pages")
	}

	pages := make([][]byte, 0, len(files))
	for i, f := range files {
		img, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func (t *Tesseract) run(ctx context.Context, imageBytes []byte, format string) (string, error) {
	args := []string{"stdin", "stdout", "-l", t.languages}
	if format == "tsv" {
		args = append(args, "tsv")
	}
	cmd := exec.CommandContext(ctx, t.binPath, args...)
	cmd.Stdin = bytes.NewReader(imageBytes)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseTSV reads tesseract's TSV output. Columns:
// level page block par line word left top width height conf text.
// Confidence -1 marks structural rows without text.
func parseTSV(tsv string) ([]Block, float64) {
	var blocks []Block
	var sum float64
	var count int

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}

		sum += conf
		count++

		left, _ := strconv.Atoi(fields[6])
		top, _ := strconv.Atoi(fields[7])
		width, _ := strconv.Atoi(fields[8])
		height, _ := strconv.Atoi(fields[9])
		bbox := [4]int{left, top, width, height}
		blocks = append(blocks, Block{
			Text:       text,
			Confidence: conf / 100.0,
			BBox:       &bbox,
		})
	}

	if count == 0 {
		// No confident words at all; report the neutral midpoint so the
		// router can still decide whether to escalate.
		return blocks, 0.5
	}
	return blocks, sum / float64(count) / 100.0
}
