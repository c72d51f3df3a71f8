// Package extract turns a stored document into text using a native text
// layer reader and an OCR fallback, each scored with a confidence.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/docflow/constants"
)

const (
	MethodNative = "native"
	MethodOCR    = "ocr"
)

// ErrImageNotNative is reported by the native strategy for image inputs.
const ErrImageNotNative = "native text extraction not supported for images"

// Result is the outcome of one strategy. Failures are reported through
// Error with a zero confidence, never as a Go error.
type Result struct {
	Text       string  `json:"-"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Pages      int     `json:"page_count"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Failed reports whether the strategy hit an error.
func (r Result) Failed() bool { return r.Error != "" }

// Strategy extracts text from the document at path.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, path string) Result
}

// TextLayerReader reads embedded PDF text; satisfied by *ocr.Engine.
type TextLayerReader interface {
	PDFText(ctx context.Context, path string) (string, int, error)
}

// PageRecognizer runs OCR; satisfied by *ocr.Engine.
type PageRecognizer interface {
	RecognizePDF(ctx context.Context, path string) ([]string, error)
	RecognizeImage(ctx context.Context, path string) (string, error)
}

type NativeStrategy struct {
	reader TextLayerReader
	log    *slog.Logger
}

func NewNativeStrategy(reader TextLayerReader, log *slog.Logger) *NativeStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &NativeStrategy{reader: reader, log: log}
}

func (s *NativeStrategy) Name() string { return MethodNative }

func (s *NativeStrategy) Extract(ctx context.Context, path string) (res Result) {
	start := time.Now()
	res = Result{Method: MethodNative}
	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
		s.log.Debug("extract.native", "path", path, "confidence", res.Confidence, "pages", res.Pages, "error", res.Error)
	}()

	switch constants.MapExtToFormat(filepath.Ext(path)) {
	case constants.PDF:
	case constants.IMAGE:
		res.Error = ErrImageNotNative
		return res
	default:
		res.Error = fmt.Sprintf("unsupported file type %q", filepath.Ext(path))
		return res
	}

	text, pages, err := s.reader.PDFText(ctx, path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Text = text
	res.Pages = pages
	res.Confidence = nativeConfidence(text)
	return res
}

// nativeConfidence treats a document with more than 100 characters of text
// as born-digital.
func nativeConfidence(text string) float64 {
	if utf8.RuneCountInString(strings.TrimSpace(text)) > 100 {
		return 1.0
	}
	return 0.4
}

type OCRStrategy struct {
	recognizer PageRecognizer
	log        *slog.Logger
}

func NewOCRStrategy(recognizer PageRecognizer, log *slog.Logger) *OCRStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &OCRStrategy{recognizer: recognizer, log: log}
}

func (s *OCRStrategy) Name() string { return MethodOCR }

func (s *OCRStrategy) Extract(ctx context.Context, path string) (res Result) {
	start := time.Now()
	res = Result{Method: MethodOCR}
	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
		s.log.Debug("extract.ocr", "path", path, "confidence", res.Confidence, "pages", res.Pages, "error", res.Error)
	}()

	var (
		pages []string
		err   error
	)
	switch constants.MapExtToFormat(filepath.Ext(path)) {
	case constants.PDF:
		pages, err = s.recognizer.RecognizePDF(ctx, path)
	case constants.IMAGE:
		var txt string
		txt, err = s.recognizer.RecognizeImage(ctx, path)
		pages = []string{txt}
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Text = strings.Join(pages, "\n\n")
	res.Pages = len(pages)
	res.Confidence = ocrConfidence(pages)
	return res
}

// ocrConfidence averages per-page scores: 0.7 for a page with more than 50
// characters, 0.4 otherwise. No pages scores 0.5.
func ocrConfidence(pages []string) float64 {
	if len(pages) == 0 {
		return 0.5
	}
	var sum float64
	for _, p := range pages {
		if utf8.RuneCountInString(strings.TrimSpace(p)) > 50 {
			sum += 0.7
		} else {
			sum += 0.4
		}
	}
	return sum / float64(len(pages))
}
