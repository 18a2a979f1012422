package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nntparchive/nntpd/lib/model"
)

func TestFilesystemBlobStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "nntpd-blob-test")
	defer os.RemoveAll(dir)

	fs, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemBlobStore: %v", err)
	}

	id := model.MessageID("<a@x>")
	if fs.Has(id) {
		t.Fatal("blob should not exist yet")
	}

	w, err := fs.Create(id)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !fs.Has(id) {
		t.Fatal("blob should exist after Create")
	}

	r, err := fs.Open(id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}

func TestFilesystemBlobStoreCaseDistinct(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "nntpd-blob-test-case")
	defer os.RemoveAll(dir)
	fs, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemBlobStore: %v", err)
	}
	a := model.MessageID("<abc@x>")
	b := model.MessageID("<ABC@x>")
	if fs.Path(a) == fs.Path(b) {
		t.Fatalf("distinct message-ids collided on a single path: %s", fs.Path(a))
	}
}

func TestFilesystemBlobStoreMissing(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "nntpd-blob-test-missing")
	defer os.RemoveAll(dir)
	fs, err := NewFilesystemBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemBlobStore: %v", err)
	}
	if _, err := fs.Open(model.MessageID("<gone@x>")); err != ErrNoSuchArticle {
		t.Fatalf("expected ErrNoSuchArticle, got %v", err)
	}
}
