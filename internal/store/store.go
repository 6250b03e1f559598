// Package store persists LP swap state as a single JSON snapshot file,
// written with a write-temp + fsync + rename sequence so a crash never
// leaves a half-written file behind. There is no SQL database: the
// whole working set for an LP node is small enough that one snapshot
// document, guarded by one mutex, is the simplest correct design.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/pkg/logging"
)

// Config holds store configuration.
type Config struct {
	DataDir string
	LPID    string
}

// snapshot is the on-disk document shape.
type snapshot struct {
	LPID    string                  `json:"lp_id"`
	Version int                     `json:"version"`
	Swaps   map[string]*model.Swap  `json:"swaps"`
}

const currentVersion = 1

// Store is the LP node's durable swap record. All reads and writes
// happen under a single mutex; the lock ordering callers must respect
// is store -> chain -> swap, so callers must never call back into
// store methods while still holding a per-swap or per-chain lock
// acquired after taking the store's.
type Store struct {
	path string
	mu   sync.Mutex
	snap snapshot
	log  *logging.Logger
}

// New opens (or initializes) the store at cfg.DataDir/flowswap.json.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "flowswap.json")
	s := &Store{
		path: path,
		snap: snapshot{LPID: cfg.LPID, Version: currentVersion, Swaps: make(map[string]*model.Swap)},
		log:  logging.GetDefault().Component("store"),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the snapshot file if it exists, leaving an empty snapshot
// in place otherwise (first run).
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("store: parse snapshot: %w", err)
	}
	if snap.Swaps == nil {
		snap.Swaps = make(map[string]*model.Swap)
	}
	s.snap = snap
	s.log.Info("loaded snapshot", "swaps", len(snap.Swaps))
	return nil
}

// flush writes the current in-memory snapshot to disk via
// write-temp + fsync + rename, so a crash mid-write never corrupts the
// previous good snapshot.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".flowswap-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// Close flushes the snapshot one last time.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// PutSwap inserts or updates a swap record and flushes immediately.
// The caller must already hold the swap's per-swap lock; this method
// only takes the store-wide mutex, nested last since it never blocks
// on chain I/O.
func (s *Store) PutSwap(swap *model.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Swaps[swap.SwapID] = swap
	return s.flush()
}

// GetSwap returns a deep copy of the named swap, or nil if not found.
// A copy, not the map's own pointer, is what callers get: the engine
// mutates its working copy under the swap's own lock and only hands it
// back via PutSwap, while the read-only API surface reads concurrently
// with no lock of its own — sharing the live pointer would race both.
func (s *Store) GetSwap(swapID string) (*model.Swap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swap, ok := s.snap.Swaps[swapID]
	if !ok {
		return nil, false
	}
	return cloneSwap(swap), true
}

// ListSwaps returns a deep copy of every swap, optionally filtered by
// state. Pass model.State("") to list all.
func (s *Store) ListSwaps(filter model.State) []*model.Swap {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Swap, 0, len(s.snap.Swaps))
	for _, swap := range s.snap.Swaps {
		if filter == "" || swap.State == filter {
			out = append(out, cloneSwap(swap))
		}
	}
	return out
}

// cloneSwap deep-copies a swap via a JSON round-trip. Every field in
// model.Swap already marshals cleanly for the snapshot file, so this
// is cheaper to keep correct than a hand-written field-by-field copy
// that has to track the struct's shape.
func cloneSwap(swap *model.Swap) *model.Swap {
	data, err := json.Marshal(swap)
	if err != nil {
		return swap
	}
	var out model.Swap
	if err := json.Unmarshal(data, &out); err != nil {
		return swap
	}
	return &out
}

// DeleteSwap removes a swap record entirely. Nothing in this tree calls
// it; admin cleanup goes through ArchiveTerminal.
func (s *Store) DeleteSwap(swapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Swaps, swapID)
	return s.flush()
}

// ArchiveTerminal deletes every terminal swap whose TerminalAt is
// older than gracePeriod, returning the ids removed. Removed swaps are
// not written to any archive file. It runs only when the admin cleanup
// endpoint calls Engine.CleanupTerminal; nothing calls it on a schedule.
func (s *Store) ArchiveTerminal(now time.Time, gracePeriod time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-gracePeriod).Unix()
	var removed []string
	for id, swap := range s.snap.Swaps {
		if !swap.State.IsTerminal() || swap.TerminalAt == nil {
			continue
		}
		if *swap.TerminalAt <= cutoff {
			delete(s.snap.Swaps, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		if err := s.flush(); err != nil {
			return nil, err
		}
		s.log.Info("archived terminal swaps", "count", len(removed))
	}
	return removed, nil
}

// ResumeScan returns every non-terminal swap, for the engine to
// re-register with the watchers and timeout scheduler on startup.
func (s *Store) ResumeScan() []*model.Swap {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Swap
	for _, swap := range s.snap.Swaps {
		if !swap.State.IsTerminal() {
			out = append(out, swap)
		}
	}
	return out
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
