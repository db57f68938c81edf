// Package prompthub implements the prompt source port as a directory of
// markdown files, one per named prompt. Prompts are seeded on first boot
// and can then be edited on disk without touching code.
package prompthub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// Hub resolves named prompts from a directory. Lookups are cached; call
// Reload to pick up on-disk edits.
type Hub struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

func New(dir string) *Hub {
	return &Hub{dir: dir, cache: make(map[string]string)}
}

// Seed writes the default prompt files that do not exist yet. Existing
// files are never overwritten, so local edits survive restarts.
func (h *Hub) Seed() error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create prompt dir: %w", err)
	}
	for name, text := range defaultPrompts {
		path := h.path(name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("seed prompt %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the prompt text for a logical name. A missing prompt is an
// error; phases must not run with silently empty instructions.
func (h *Hub) Get(name string) (string, error) {
	h.mu.RLock()
	cached, ok := h.cache[name]
	h.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(h.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrPromptNotFound, name)
		}
		return "", fmt.Errorf("read prompt %s: %w", name, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrPromptNotFound, name)
	}

	h.mu.Lock()
	h.cache[name] = text
	h.mu.Unlock()
	return text, nil
}

// Reload drops the cache so edited files are re-read on next Get.
func (h *Hub) Reload() {
	h.mu.Lock()
	h.cache = make(map[string]string)
	h.mu.Unlock()
}

// Names lists the prompts this hub seeds by default.
func (h *Hub) Names() []string {
	names := make([]string, 0, len(defaultPrompts))
	for name := range defaultPrompts {
		names = append(names, name)
	}
	return names
}

func (h *Hub) path(name string) string {
	return filepath.Join(h.dir, name+".md")
}
