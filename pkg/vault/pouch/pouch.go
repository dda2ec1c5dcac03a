// Package pouch implements the persistent, typed, keyed collections the
// vault owns (spec.md §3 "Pouch", §4.2). Each pouch is a JSON document
// under a base directory, guarded by its own reader/writer lock; the vault
// composes six of these behind its reservation protocol. Grounded on
// lazydocker's own load-then-mutate-then-flush pattern for its in-memory
// container/service caches (pkg/commands/docker.go), adapted here from an
// in-memory cache refreshed from polling into a durable, lock-guarded store.
package pouch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Pouch is a generic keyed collection of T, persisted as one JSON document.
// Safe for concurrent use; callers typically hold it through a vault
// reservation rather than locking it directly, but the exported methods are
// self-locking so tests can exercise a pouch standalone. fs abstracts the
// filesystem so tests can swap in an in-memory afero.Fs instead of touching
// disk.
type Pouch[T any] struct {
	mu      sync.RWMutex
	path    string
	log     *logrus.Entry
	fs      afero.Fs
	entries map[string]T
}

// New creates an empty pouch backed by path on the OS filesystem. It does
// not load — callers call Load explicitly so the vault can sequence loads
// in dependency order (spec.md §4.2 "Object rehydration").
func New[T any](path string, log *logrus.Entry) *Pouch[T] {
	return &Pouch[T]{path: path, log: log, fs: afero.NewOsFs(), entries: make(map[string]T)}
}

// Load reads the pouch's JSON document from disk. A missing file yields an
// empty pouch; a malformed file logs and yields an empty pouch too — load
// failures never prevent the vault from starting (spec.md §4.2).
func (p *Pouch[T]) Load() {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.log.WithError(err).WithField("path", p.path).Warn("failed to read pouch, starting empty")
		}
		return
	}

	var entries map[string]T
	if err := json.Unmarshal(data, &entries); err != nil {
		p.log.WithError(err).WithField("path", p.path).Warn("failed to parse pouch, starting empty")
		return
	}
	p.entries = entries
}

// Flush atomically writes the pouch's contents to disk: write to a sibling
// temp file, fsync, rename over the target (spec.md §4.2, §6 "write is
// atomic").
func (p *Pouch[T]) Flush() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.entries, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal pouch %s: %w", p.path, err)
	}

	dir := filepath.Dir(p.path)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory for pouch %s: %w", p.path, err)
	}

	tmp, err := afero.Afero{Fs: p.fs}.TempFile(dir, ".pouch-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for pouch %s: %w", p.path, err)
	}
	defer p.fs.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write pouch %s: %w", p.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync pouch %s: %w", p.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pouch %s: %w", p.path, err)
	}
	if err := p.fs.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("rename pouch %s into place: %w", p.path, err)
	}
	return nil
}

// Get returns the entry for key and whether it was present.
func (p *Pouch[T]) Get(key string) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.entries[key]
	return v, ok
}

// Put inserts or replaces the entry for key.
func (p *Pouch[T]) Put(key string, value T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = value
}

// Delete removes the entry for key and reports whether it was present,
// supporting delete-idempotence (spec.md §8 Testable Property 8).
func (p *Pouch[T]) Delete(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[key]; !ok {
		return false
	}
	delete(p.entries, key)
	return true
}

// All returns a snapshot copy of every entry, keyed as stored.
func (p *Pouch[T]) All() map[string]T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]T, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

// Len reports the number of entries.
func (p *Pouch[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
