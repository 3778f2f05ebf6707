package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *localStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}

func TestSaveAndOpen(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	content := []byte("MZ binary bytes")
	written, err := s.Save(ctx, bytes.NewReader(content), "uploads/task-1.exe")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if written != int64(len(content)) {
		t.Fatalf("written=%d want=%d", written, len(content))
	}

	f, size, err := s.Open(ctx, "uploads/task-1.exe")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if size != int64(len(content)) {
		t.Fatalf("size=%d want=%d", size, len(content))
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch: %q", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, strings.NewReader("old"), "reports/r.json"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save(ctx, strings.NewReader("new"), "reports/r.json"); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	f, _, err := s.Open(ctx, "reports/r.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if string(got) != "new" {
		t.Fatalf("overwrite lost: %q", got)
	}
}

func TestOpenMissing(t *testing.T) {
	s := newTestLocal(t)

	if _, _, err := s.Open(context.Background(), "uploads/nope.exe"); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, strings.NewReader("x"), "uploads/a.bin"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "uploads/a.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "uploads/a.bin"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, _, err := s.Open(ctx, "uploads/a.bin"); err == nil {
		t.Fatal("file still present after delete")
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, strings.NewReader("x"), "../outside.txt"); err == nil {
		t.Fatal("traversal must be rejected on save")
	}
	if _, _, err := s.Open(ctx, "../../etc/passwd"); err == nil {
		t.Fatal("traversal must be rejected on open")
	}
	if _, err := s.Save(ctx, strings.NewReader("x"), "   "); err == nil {
		t.Fatal("blank filename must be rejected")
	}
}

func TestCancelledContext(t *testing.T) {
	s := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, strings.NewReader("x"), "uploads/a.bin"); err == nil {
		t.Fatal("want context error")
	}
}
