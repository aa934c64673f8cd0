package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	disk, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	return map[string]BlobStore{
		"memory": NewInMemoryBlobStore(),
		"disk":   disk,
	}
}

func TestBlobStore_UploadDownload(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			content := pngHeader + "result-body"

			meta, err := store.Upload(ctx, BlobMetadata{
				FileName:  "cbc.png",
				PatientID: "patient-1",
				CreatedBy: "user-1",
			}, strings.NewReader(content))
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if meta.ID == "" || meta.CreatedAt.IsZero() {
				t.Fatalf("expected id and timestamp, got %+v", meta)
			}
			if meta.ContentType != "image/png" {
				t.Errorf("expected sniffed image/png, got %s", meta.ContentType)
			}
			if meta.Size != int64(len(content)) {
				t.Errorf("expected size %d, got %d", len(content), meta.Size)
			}
			if want := fmt.Sprintf("%x", sha256.Sum256([]byte(content))); meta.Hash != want {
				t.Errorf("hash mismatch")
			}

			rc, got, err := store.Download(ctx, meta.ID)
			if err != nil {
				t.Fatalf("download: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if string(body) != content {
				t.Errorf("content mismatch")
			}
			if got.FileName != "cbc.png" || got.PatientID != "patient-1" {
				t.Errorf("unexpected metadata %+v", got)
			}
		})
	}
}

func TestBlobStore_RejectsUnsupportedTypes(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Upload(context.Background(), BlobMetadata{FileName: "notes.txt", ContentType: "text/plain"}, strings.NewReader("plain text"))
			if !errors.Is(err, ErrInvalidContentType) {
				t.Fatalf("expected ErrInvalidContentType, got %v", err)
			}
		})
	}
}

func TestBlobStore_MissingFileName(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Upload(context.Background(), BlobMetadata{}, strings.NewReader("%PDF-1.4"))
			if !errors.Is(err, ErrMissingFileName) {
				t.Fatalf("expected ErrMissingFileName, got %v", err)
			}
		})
	}
}

func TestBlobStore_TooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := strings.NewReader("%PDF-" + strings.Repeat("x", MaxFileSize))
	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "big.pdf"}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestBlobStore_DeleteAndNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			meta, err := store.Upload(ctx, BlobMetadata{FileName: "r.pdf"}, strings.NewReader("%PDF-1.7 body"))
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if meta.ContentType != "application/pdf" {
				t.Errorf("expected application/pdf, got %s", meta.ContentType)
			}

			if err := store.Delete(ctx, meta.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.GetMetadata(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
			}
			if _, _, err := store.Download(ctx, "../../etc/passwd"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound for bad id, got %v", err)
			}
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		declared string
		data     string
		want     string
	}{
		{"", pngHeader, "image/png"},
		{"application/pdf", "%PDF-1.4", "application/pdf"},
		{"image/jpeg", "\xff\xd8\xff\xe0", "image/jpeg"},
		{"image/png", "\x00\x01\x02", "image/png"},
	}
	for _, tt := range tests {
		if got := DetectContentType(tt.declared, []byte(tt.data)); got != tt.want {
			t.Errorf("DetectContentType(%q) = %q, want %q", tt.declared, got, tt.want)
		}
	}
}

func TestInMemoryBlobStore_ConcurrentUploads(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := store.Upload(context.Background(), BlobMetadata{FileName: fmt.Sprintf("f%d.pdf", i)}, strings.NewReader("%PDF-1.4"))
			if err != nil {
				t.Errorf("upload %d: %v", i, err)
				return
			}
			ids <- meta.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 distinct ids, got %d", len(seen))
	}
}
