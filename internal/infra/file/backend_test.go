package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestBackendPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	first := NewBackend(path)
	if err := first.Set(ctx, "quiz-storage", `{"value":"x","expiry":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Set(ctx, "other", "y"); err != nil {
		t.Fatalf("set other: %v", err)
	}

	second := NewBackend(path)
	value, ok, err := second.Get(ctx, "quiz-storage")
	if err != nil || !ok || value != `{"value":"x","expiry":1}` {
		t.Fatalf("expected value from disk, got %q ok=%v err=%v", value, ok, err)
	}

	if err := second.Delete(ctx, "quiz-storage"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := first.Get(ctx, "quiz-storage"); ok {
		t.Fatalf("expected key removed")
	}
	if value, ok, _ := first.Get(ctx, "other"); !ok || value != "y" {
		t.Fatalf("expected unrelated key to survive, got %q ok=%v", value, ok)
	}
}

func TestBackendMissingFileIsEmpty(t *testing.T) {
	backend := NewBackend(filepath.Join(t.TempDir(), "storage.json"))
	if _, ok, err := backend.Get(context.Background(), "quiz-storage"); ok || err != nil {
		t.Fatalf("expected empty result, ok=%v err=%v", ok, err)
	}
	if err := backend.Delete(context.Background(), "quiz-storage"); err != nil {
		t.Fatalf("delete on missing file: %v", err)
	}
}

func TestBackendCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	backend := NewBackend(path)

	if _, _, err := backend.Get(ctx, "quiz-storage"); err == nil {
		t.Fatalf("expected decode error for corrupt file")
	}
	if err := backend.Set(ctx, "quiz-storage", "fresh"); err != nil {
		t.Fatalf("expected set to replace corrupt file: %v", err)
	}
	if value, ok, err := backend.Get(ctx, "quiz-storage"); err != nil || !ok || value != "fresh" {
		t.Fatalf("expected fresh value, got %q ok=%v err=%v", value, ok, err)
	}
}
