package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers by binary name and records every call.
type fakeRunner struct {
	calls    []call
	stdout   map[string]string
	fail     map[string]bool
	ppmPages int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.fail[name] {
		return nil, []byte("boom"), errors.New("exit status 1")
	}
	if name == "pdftoppm" {
		prefix := args[len(args)-1]
		for i := 1; i <= f.ppmPages; i++ {
			p := prefix + "-" + string(rune('0'+i)) + ".png"
			if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	if name == "tesseract" {
		return []byte(f.stdout["tesseract:"+filepath.Base(args[0])]), nil, nil
	}
	return []byte(f.stdout[name]), nil, nil
}

func TestPDFTextCountsPages(t *testing.T) {
	r := &fakeRunner{stdout: map[string]string{"pdftotext": "Invoice Number:   INV-1\r\n\fPage two\t\ttext\f"}}
	e := NewWithRunner(Config{}, r, nil)

	text, pages, err := e.PDFText(context.Background(), "in.pdf")
	if err != nil {
		t.Fatalf("pdftotext: %v", err)
	}
	if pages != 2 {
		t.Errorf("expected 2 pages, got %d", pages)
	}
	if !strings.Contains(text, "Invoice Number: INV-1") || !strings.Contains(text, "Page two text") {
		t.Errorf("unexpected text %q", text)
	}
	if got := r.calls[0].args[len(r.calls[0].args)-1]; got != "-" {
		t.Errorf("expected stdout output, got %q", got)
	}
}

func TestPDFTextError(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"pdftotext": true}}
	e := NewWithRunner(Config{}, r, nil)
	if _, _, err := e.PDFText(context.Background(), "in.pdf"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected pdftotext error with stderr, got %v", err)
	}
	_, _, err := e.PDFText(context.Background(), "in.pdf")
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if ce.Tool != "pdftotext" || ce.ExitCode != -1 || ce.Stderr != "boom" {
		t.Errorf("unexpected command error %+v", ce)
	}
}

func TestCommandErrorKeepsStderrTail(t *testing.T) {
	stderr := strings.Repeat("x", 600) + "real cause"
	err := commandError("/usr/bin/tesseract", errors.New("exit status 1"), []byte(stderr))
	msg := err.Error()
	if !strings.HasPrefix(msg, "tesseract: exit status 1: ...") {
		t.Errorf("unexpected prefix %q", msg[:40])
	}
	if !strings.HasSuffix(msg, "real cause") {
		t.Errorf("expected stderr tail in message, got suffix %q", msg[len(msg)-20:])
	}
}

func TestCappedBuffer(t *testing.T) {
	c := &cappedBuffer{limit: 4}
	for _, chunk := range []string{"ab", "cdef", "gh"} {
		n, err := c.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("write %q: n=%d err=%v", chunk, n, err)
		}
	}
	if got := c.buf.String(); got != "abcd" {
		t.Errorf("expected abcd, got %q", got)
	}
	if c.lost != 4 {
		t.Errorf("expected 4 dropped bytes, got %d", c.lost)
	}
}

func TestRecognizePDFPerPage(t *testing.T) {
	r := &fakeRunner{
		ppmPages: 2,
		stdout: map[string]string{
			"tesseract:page-1.png": "first page",
			"tesseract:page-2.png": "second page",
		},
	}
	e := NewWithRunner(Config{DPI: 150, MaxPages: 5, TesseractLang: "nld"}, r, nil)

	pages, err := e.RecognizePDF(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(pages) != 2 || pages[0] != "first page" || pages[1] != "second page" {
		t.Fatalf("unexpected pages %q", pages)
	}
	ppm := strings.Join(r.calls[0].args, " ")
	if !strings.Contains(ppm, "-r 150") || !strings.Contains(ppm, "-l 5") {
		t.Errorf("unexpected pdftoppm args %q", ppm)
	}
	tess := strings.Join(r.calls[1].args, " ")
	if !strings.Contains(tess, "-l nld") {
		t.Errorf("unexpected tesseract args %q", tess)
	}
}

func TestRecognizePDFNoPages(t *testing.T) {
	e := NewWithRunner(Config{}, &fakeRunner{}, nil)
	if _, err := e.RecognizePDF(context.Background(), "scan.pdf"); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	in := "Total:\t€10.00  \r\n-----\n\n\n\nDate: 05-03-2024\n"
	want := "Total: €10.00\n\nDate: 05-03-2024"
	if got := Normalize(in); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
