package extract

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultOCRThreshold is the native confidence below which OCR also runs.
const DefaultOCRThreshold = 0.8

// Outcome records every strategy that ran and the winner.
type Outcome struct {
	Best   Result
	Native Result
	OCR    *Result
}

// Confidences maps strategy names to their confidence, plus
// "text_extraction" for the winner.
func (o Outcome) Confidences() map[string]float64 {
	m := map[string]float64{
		MethodNative:      o.Native.Confidence,
		"text_extraction": o.Best.Confidence,
	}
	if o.OCR != nil {
		m[MethodOCR] = o.OCR.Confidence
	}
	return m
}

// Errors lists strategy errors keyed by method.
func (o Outcome) Errors() map[string]string {
	m := map[string]string{}
	if o.Native.Failed() {
		m[MethodNative] = o.Native.Error
	}
	if o.OCR != nil && o.OCR.Failed() {
		m[MethodOCR] = o.OCR.Error
	}
	return m
}

type Merger struct {
	primary   Strategy
	fallback  Strategy
	threshold float64
	log       *slog.Logger
}

// NewMerger runs primary first and fallback only when the primary
// confidence is below threshold. A threshold <= 0 uses DefaultOCRThreshold.
func NewMerger(primary, fallback Strategy, threshold float64, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultOCRThreshold
	}
	return &Merger{primary: primary, fallback: fallback, threshold: threshold, log: log}
}

func (m *Merger) Run(ctx context.Context, path string) Outcome {
	native := safeExtract(ctx, m.primary, path)
	out := Outcome{Best: native, Native: native}
	if native.Confidence >= m.threshold {
		m.log.Info("extract.merge", "path", path, "method", native.Method, "confidence", native.Confidence, "fallback", false)
		return out
	}

	ocr := safeExtract(ctx, m.fallback, path)
	out.OCR = &ocr
	out.Best = Merge(native, ocr)
	m.log.Info("extract.merge", "path", path, "method", out.Best.Method, "confidence", out.Best.Confidence,
		"native_confidence", native.Confidence, "ocr_confidence", ocr.Confidence, "fallback", true)
	return out
}

// Merge returns a when its confidence is at least b's, otherwise b.
func Merge(a, b Result) Result {
	if a.Confidence >= b.Confidence {
		return a
	}
	return b
}

func safeExtract(ctx context.Context, s Strategy, path string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Method: s.Name(), Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return s.Extract(ctx, path)
}
