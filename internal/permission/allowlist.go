package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Oracle answers whether tracking is enabled for an origin. Implementations
// must be read-through: no cached boolean that can drift from the
// authoritative grant set.
type Oracle interface {
	Enabled(origin string) bool
}

// Allowlist is the persisted per-origin grant set. The in-memory set is the
// single source of truth at runtime; the file is read once at startup and
// rewritten wholesale on every toggle.
type Allowlist struct {
	path string

	mu      sync.RWMutex
	origins map[string]bool
}

// Load reads the allow-list file. A missing file yields an empty list.
func Load(path string) (*Allowlist, error) {
	a := &Allowlist{path: path, origins: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, nil
		}
		return nil, fmt.Errorf("allowlist: read %s: %w", path, err)
	}

	var stored map[string]bool
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("allowlist: unmarshal %s: %w", path, err)
	}
	for origin, on := range stored {
		if on {
			a.origins[origin] = true
		}
	}
	return a, nil
}

// Enabled reports whether tracking is granted for an origin.
func (a *Allowlist) Enabled(origin string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.origins[origin]
}

// Set grants or revokes tracking for an origin and persists the full list.
// If enabling fails to persist, the grant is reverted so that a failure never
// leaves tracking on without the user's toggle surviving a restart. A revoke
// sticks in memory even when persistence fails: the conservative state is
// always tracking-disabled.
func (a *Allowlist) Set(origin string, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if enabled {
		a.origins[origin] = true
	} else {
		delete(a.origins, origin)
	}

	if err := a.persistLocked(); err != nil {
		if enabled {
			delete(a.origins, origin)
		} else {
			slog.Warn("allowlist revoke not persisted; revoked in memory only", "origin", origin, "error", err)
		}
		return err
	}
	return nil
}

// Origins returns the granted origins, sorted.
func (a *Allowlist) Origins() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.origins))
	for origin := range a.origins {
		out = append(out, origin)
	}
	sort.Strings(out)
	return out
}

func (a *Allowlist) persistLocked() error {
	data, err := json.MarshalIndent(a.origins, "", "  ")
	if err != nil {
		return fmt.Errorf("allowlist: marshal: %w", err)
	}
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("allowlist: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return fmt.Errorf("allowlist: write %s: %w", a.path, err)
	}
	return nil
}
