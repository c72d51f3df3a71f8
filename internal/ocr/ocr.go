// Package ocr wraps the poppler and tesseract command line tools.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
	TessdataDir   string

	PSM int // e.g., 6 is good for uniform block of text
}

// ErrNoPages is returned when rasterisation produced no page images.
var ErrNoPages = errors.New("no pages rendered")

type Engine struct {
	cfg    Config
	runner Runner
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return NewWithRunner(cfg, execRunner{log: log}, log)
}

// NewWithRunner is New with a custom command runner.
func NewWithRunner(cfg Config, r Runner, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Engine{cfg: cfg, runner: r, log: log}
}

// PDFText reads the embedded text layer of a PDF.
func (e *Engine) PDFText(ctx context.Context, path string) (text string, pages int, err error) {
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, append(args, path, "-")...)
	if err != nil {
		return "", 0, commandError(e.cfg.Pdftotext, err, errb)
	}
	raw := strings.TrimRight(string(out), "\f")
	// form feed separates pages
	pages = 1 + strings.Count(raw, "\f")
	return Normalize(raw), pages, nil
}

// RecognizePDF rasterises every page and returns the recognised text of
// each page in page order.
func (e *Engine) RecognizePDF(ctx context.Context, path string) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "docflow-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.log.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, append(args, path, prefix)...)
	if err != nil {
		return nil, commandError(e.cfg.Pdftoppm, err, errb)
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, ErrNoPages
	}

	pages := make([]string, 0, len(matches))
	for _, img := range matches {
		txt, err := e.RecognizeImage(ctx, img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, txt)
	}
	return pages, nil
}

// RecognizeImage runs tesseract on a single image.
func (e *Engine) RecognizeImage(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", commandError(e.cfg.Tesseract, err, errb)
	}
	return Normalize(string(out)), nil
}

// PageCount parses the PDF structure and returns its page count.
func PageCount(path string) (int, error) {
	n, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// PageCountReader is PageCount for an in-memory document.
func PageCountReader(rs io.ReadSeeker) (int, error) {
	n, err := pdfapi.PageCount(rs, nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}
