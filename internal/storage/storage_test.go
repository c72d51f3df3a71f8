package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/internal/common"
)

func TestDocumentKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	tests := []struct {
		filename string
		expected string
	}{
		{"invoice.pdf", "documents/11111111-2222-3333-4444-555555555555/invoice.pdf"},
		{"../../etc/passwd", "documents/11111111-2222-3333-4444-555555555555/passwd"},
		{`C:\scans\bill.png`, "documents/11111111-2222-3333-4444-555555555555/bill.png"},
		{"", "documents/11111111-2222-3333-4444-555555555555/document"},
	}
	for _, tt := range tests {
		if got := DocumentKey(id, tt.filename); got != tt.expected {
			t.Errorf("DocumentKey(%q): expected %s, got %s", tt.filename, tt.expected, got)
		}
	}
	if !strings.HasPrefix(DocumentKey(id, "a.pdf"), UploadPrefix(id)) {
		t.Error("document key must live under the upload prefix")
	}
}

func newFS(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	return s
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newFS(t)
	key := "documents/abc/invoice.pdf"

	if err := s.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "%PDF-1.4" {
		t.Errorf("expected stored content, got %q", b)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(ctx, key); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing key should be a no-op, got %v", err)
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s := newFS(t)
	for _, key := range []string{"../outside.txt", "documents/../../x", ""} {
		err := s.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		if !errors.Is(err, common.ErrInvalidInput) {
			t.Errorf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestFSStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := newFS(t)
	id := uuid.New()
	other := uuid.New()
	for _, key := range []string{DocumentKey(id, "a.pdf"), DocumentKey(id, "b.png"), DocumentKey(other, "c.pdf")} {
		if err := s.Put(ctx, key, strings.NewReader("data"), 4, ""); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := s.DeletePrefix(ctx, UploadPrefix(id)); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, err := s.Open(ctx, DocumentKey(id, "a.pdf")); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected a.pdf removed, got %v", err)
	}
	rc, err := s.Open(ctx, DocumentKey(other, "c.pdf"))
	if err != nil {
		t.Fatalf("other upload must survive: %v", err)
	}
	rc.Close()
}

func TestMaterializeKeepsExtension(t *testing.T) {
	ctx := context.Background()
	s := newFS(t)
	key := DocumentKey(uuid.New(), "scan.PNG")
	if err := s.Put(ctx, key, strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	p, cleanup, err := Materialize(ctx, s, key)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if filepath.Ext(p) != ".PNG" {
		t.Errorf("expected .PNG extension, got %s", p)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "png-bytes" {
		t.Errorf("expected copied content, got %q (%v)", b, err)
	}
	cleanup()
	cleanup()
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("expected temp file removed, got %v", err)
	}
}

func TestMaterializeMissing(t *testing.T) {
	_, cleanup, err := Materialize(context.Background(), newFS(t), "documents/x/missing.pdf")
	cleanup()
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewMinioStore(t *testing.T) {
	cfg := common.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "docs",
	}
	s, err := NewMinioStore(cfg, nil)
	if err != nil {
		t.Fatalf("client creation should not dial: %v", err)
	}
	if s.bucket != "docs" {
		t.Errorf("expected bucket docs, got %s", s.bucket)
	}

	cfg.Bucket = ""
	if _, err := NewMinioStore(cfg, nil); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty bucket, got %v", err)
	}
}

func TestDetectDocument(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpg := []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

	tests := []struct {
		name     string
		head     []byte
		filename string
		expected string
		wantErr  bool
	}{
		{"pdf", pdf, "invoice.pdf", "application/pdf", false},
		{"png", png, "scan.PNG", "image/png", false},
		{"jpeg", jpg, "photo.jpg", "image/jpeg", false},
		{"pdf named as image", pdf, "scan.png", "", true},
		{"text named as pdf", []byte("hello world"), "invoice.pdf", "", true},
		{"unsupported ext", pdf, "invoice.docx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectDocument(tt.head, tt.filename)
			if tt.wantErr {
				if !errors.Is(err, common.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
