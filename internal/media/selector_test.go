package media

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(5, 6))
}

func TestSelectorEmptyRoot(t *testing.T) {
	s := NewSelector(filepath.Join(t.TempDir(), "missing"))
	if got := s.RandomSticker("funny", newRand()); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
	if got := s.RandomMedia(newRand()); got != nil {
		t.Errorf("expected nil media item, got %+v", got)
	}
}

func TestRandomStickerByCategory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "stickers", "funny", "laugh.webp"))
	writeFile(t, filepath.Join(root, "stickers", "funny", "grin.webp"))
	writeFile(t, filepath.Join(root, "stickers", "love", "heart.webp"))
	writeFile(t, filepath.Join(root, "stickers", "funny", "notes.txt")) // ignored

	s := NewSelector(root)
	r := newRand()

	for i := 0; i < 20; i++ {
		got := s.RandomSticker("funny", r)
		if filepath.Dir(got) != filepath.Join(root, "stickers", "funny") {
			t.Fatalf("sticker from wrong category: %q", got)
		}
	}
	if got := s.RandomSticker("sad", r); got != "" {
		t.Errorf("empty category must return empty string, got %q", got)
	}
}

func TestRandomMediaAndDescriptions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "media", "sunset_over-sea.jpg"))
	writeFile(t, filepath.Join(root, "media", "ignore.txt"))

	s := NewSelector(root)
	item := s.RandomMedia(newRand())
	if item == nil {
		t.Fatal("expected a media item")
	}
	if item.Mime != "image/jpeg" {
		t.Errorf("mime = %q", item.Mime)
	}
	if item.Description != "sunset over sea" {
		t.Errorf("description = %q", item.Description)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	root := t.TempDir()
	s := NewSelector(root)
	if s.RandomMedia(newRand()) != nil {
		t.Fatal("catalogue should start empty")
	}

	writeFile(t, filepath.Join(root, "media", "dog.png"))
	if s.RandomMedia(newRand()) != nil {
		t.Fatal("new files must not appear before Reload")
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.RandomMedia(newRand()) == nil {
		t.Fatal("expected item after reload")
	}
}

func TestMissingFileTreatedAsEmpty(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "stickers", "funny", "laugh.webp")
	writeFile(t, path)

	s := NewSelector(root)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := s.RandomSticker("funny", newRand()); got != "" {
		t.Errorf("deleted sticker must not be returned, got %q", got)
	}
}
