package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBucketRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()

	url, err := s.Put(ctx, "invoices/ACME/C1/240301/1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF")))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "invoices/ACME/C1/240301/1.pdf" {
		t.Fatalf("unexpected url %q", url)
	}
	got, err := ReadAll(ctx, s, url)
	if err != nil || string(got) != "%PDF" {
		t.Fatalf("ReadAll: %q %v", got, err)
	}

	if _, err := s.Put(ctx, url, "application/pdf", bytes.NewReader([]byte("v2"))); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = ReadAll(ctx, s, url)
	if string(got) != "v2" {
		t.Fatalf("overwrite not visible: %q", got)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, url); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, url); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBucketKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, _ := NewFS(filepath.Join(root, "blobs"))
	if _, err := s.Put(context.Background(), "../../escape.txt", "", bytes.NewReader(nil)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "blobs", "escape.txt")); err != nil {
		t.Fatalf("expected file to be confined to root: %v", err)
	}
	if _, err := s.Put(context.Background(), "", "", bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestOpenFileURL(t *testing.T) {
	root := t.TempDir()
	s, err := Open(context.Background(), "file://"+filepath.ToSlash(root)+"?create_dir=true")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.Put(context.Background(), "work-orders/wo-1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "work-orders", "wo-1.pdf")); err != nil {
		t.Fatalf("expected file under root: %v", err)
	}
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestUploadExt(t *testing.T) {
	if ext := (Upload{Filename: "Contract.PDF"}).Ext(); ext != ".pdf" {
		t.Fatalf("unexpected ext %q", ext)
	}
	if ext := (Upload{Filename: "noext"}).Ext(); ext != "" {
		t.Fatalf("unexpected ext %q", ext)
	}
}
