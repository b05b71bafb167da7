// Package media maintains the catalogue of sendable stickers and media items
// and performs random selection over an in-memory snapshot.
//
// The catalogue is refreshed by an explicit Reload call after uploads or
// deletes; there is no polling.
package media

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Directory layout under the catalogue root.
const (
	stickerDirName = "stickers"
	mediaDirName   = "media"
)

var mediaExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Item is one sendable media file.
type Item struct {
	Path string
	Mime string
	// Description is derived from the file name and grounds caption
	// generation (e.g. "sunset_over_sea.jpg" -> "sunset over sea").
	Description string
}

// Selector owns the catalogue snapshot. Selection reads the snapshot under a
// read lock; Reload swaps it wholesale.
type Selector struct {
	root string

	mu       sync.RWMutex
	stickers map[string][]string // emotion category -> webp paths
	items    []Item
}

// NewSelector creates a selector rooted at dir and loads the initial
// snapshot. A missing root is not an error; the catalogue is just empty.
func NewSelector(root string) *Selector {
	s := &Selector{root: root, stickers: make(map[string][]string)}
	if err := s.Reload(); err != nil {
		slog.Warn("initial media catalogue load failed", "root", root, "error", err)
	}
	return s
}

// Reload rebuilds the catalogue snapshot from disk. Callers must invoke it
// after any upload or delete.
func (s *Selector) Reload() error {
	stickers := make(map[string][]string)
	stickerRoot := filepath.Join(s.root, stickerDirName)
	categories, err := os.ReadDir(stickerRoot)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read sticker directory: %w", err)
	}
	for _, cat := range categories {
		if !cat.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(stickerRoot, cat.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".webp") {
				continue
			}
			stickers[cat.Name()] = append(stickers[cat.Name()], filepath.Join(stickerRoot, cat.Name(), f.Name()))
		}
	}

	var items []Item
	mediaRoot := filepath.Join(s.root, mediaDirName)
	files, err := os.ReadDir(mediaRoot)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read media directory: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		mime, ok := mediaExtensions[strings.ToLower(filepath.Ext(f.Name()))]
		if !ok {
			continue
		}
		items = append(items, Item{
			Path:        filepath.Join(mediaRoot, f.Name()),
			Mime:        mime,
			Description: describeFileName(f.Name()),
		})
	}

	s.mu.Lock()
	s.stickers = stickers
	s.items = items
	s.mu.Unlock()
	slog.Debug("media catalogue reloaded", "sticker_categories", len(stickers), "media_items", len(items))
	return nil
}

// RandomSticker returns a uniformly random sticker path for the category, or
// "" when the category is empty. A path whose file has disappeared since the
// last reload is treated as empty.
func (s *Selector) RandomSticker(category string, r *rand.Rand) string {
	s.mu.RLock()
	paths := s.stickers[category]
	s.mu.RUnlock()
	if len(paths) == 0 {
		return ""
	}
	path := paths[r.IntN(len(paths))]
	if _, err := os.Stat(path); err != nil {
		slog.Warn("selected sticker missing on disk, reload needed", "path", path)
		return ""
	}
	return path
}

// RandomMedia returns a uniformly random media item, or nil when the
// catalogue is empty or the selected file has disappeared.
func (s *Selector) RandomMedia(r *rand.Rand) *Item {
	s.mu.RLock()
	items := s.items
	s.mu.RUnlock()
	if len(items) == 0 {
		return nil
	}
	item := items[r.IntN(len(items))]
	if _, err := os.Stat(item.Path); err != nil {
		slog.Warn("selected media missing on disk, reload needed", "path", item.Path)
		return nil
	}
	return &item
}

// Categories returns the sticker categories present in the snapshot.
func (s *Selector) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.stickers))
	for cat := range s.stickers {
		out = append(out, cat)
	}
	return out
}

// describeFileName turns "sunset_over-sea.jpg" into "sunset over sea".
func describeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
