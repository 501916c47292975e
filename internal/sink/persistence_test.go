package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

func TestFileStore_LoadMissingFileReturnsEmptyBlob(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.json"))

	blob, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(blob.Topics) != 0 || len(blob.Messages) != 0 {
		t.Errorf("expected empty blob, got %+v", blob)
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "blob.json"))
	ctx := context.Background()

	want := models.NewBlob()
	want.Topics["My Guild"] = 7
	want.LastUpdated = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Topics["My Guild"] != 7 {
		t.Errorf("Topics[My Guild] = %d, want 7", got.Topics["My Guild"])
	}
	if !got.LastUpdated.Equal(want.LastUpdated) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, want.LastUpdated)
	}
}

func TestFileStore_SaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.json")
	store := NewFileStore(path)
	ctx := context.Background()

	first := models.NewBlob()
	first.Topics["a"] = 1
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	second := models.NewBlob()
	second.Topics["b"] = 2
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got.Topics["a"]; ok {
		t.Error("expected first save's data to be fully replaced")
	}
	if got.Topics["b"] != 2 {
		t.Errorf("Topics[b] = %d, want 2", got.Topics["b"])
	}
}
