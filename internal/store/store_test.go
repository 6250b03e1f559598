package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/flowswap/lp-node/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{DataDir: t.TempDir(), LPID: "lp-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGetSwap(t *testing.T) {
	s := newTestStore(t)

	swapID, err := model.NewSwapID()
	if err != nil {
		t.Fatal(err)
	}
	swap := &model.Swap{SwapID: swapID, State: model.StateInit}

	if err := s.PutSwap(swap); err != nil {
		t.Fatalf("PutSwap: %v", err)
	}

	got, ok := s.GetSwap(swapID)
	if !ok {
		t.Fatal("expected swap to be found")
	}
	if got.SwapID != swapID {
		t.Errorf("SwapID = %q, want %q", got.SwapID, swapID)
	}
}

func TestSnapshotSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(&Config{DataDir: dir, LPID: "lp-test"})
	if err != nil {
		t.Fatal(err)
	}
	swapID, _ := model.NewSwapID()
	if err := s1.PutSwap(&model.Swap{SwapID: swapID, State: model.StateAwaitingBTC}); err != nil {
		t.Fatal(err)
	}

	s2, err := New(&Config{DataDir: dir, LPID: "lp-test"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := s2.GetSwap(swapID)
	if !ok {
		t.Fatal("expected swap to survive reload")
	}
	if got.State != model.StateAwaitingBTC {
		t.Errorf("state = %q, want %q", got.State, model.StateAwaitingBTC)
	}
}

func TestListSwapsFilter(t *testing.T) {
	s := newTestStore(t)
	id1, _ := model.NewSwapID()
	id2, _ := model.NewSwapID()
	s.PutSwap(&model.Swap{SwapID: id1, State: model.StateCompleted})
	s.PutSwap(&model.Swap{SwapID: id2, State: model.StateInit})

	completed := s.ListSwaps(model.StateCompleted)
	if len(completed) != 1 || completed[0].SwapID != id1 {
		t.Errorf("unexpected filtered list: %+v", completed)
	}

	all := s.ListSwaps(model.State(""))
	if len(all) != 2 {
		t.Errorf("expected 2 swaps total, got %d", len(all))
	}
}

func TestArchiveTerminalRespectsGracePeriod(t *testing.T) {
	s := newTestStore(t)
	id, _ := model.NewSwapID()

	old := time.Now().Add(-48 * time.Hour).Unix()
	swap := &model.Swap{SwapID: id, State: model.StateCompleted, TerminalAt: &old}
	if err := s.PutSwap(swap); err != nil {
		t.Fatal(err)
	}

	removed, err := s.ArchiveTerminal(time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatalf("ArchiveTerminal: %v", err)
	}
	if len(removed) != 1 || removed[0] != id {
		t.Errorf("expected %q to be archived, got %+v", id, removed)
	}
	if _, ok := s.GetSwap(id); ok {
		t.Error("expected archived swap to be gone")
	}
}

func TestArchiveTerminalKeepsRecentAndNonTerminal(t *testing.T) {
	s := newTestStore(t)
	recentID, _ := model.NewSwapID()
	recent := time.Now().Unix()
	s.PutSwap(&model.Swap{SwapID: recentID, State: model.StateCompleted, TerminalAt: &recent})

	activeID, _ := model.NewSwapID()
	s.PutSwap(&model.Swap{SwapID: activeID, State: model.StateAwaitingBTC})

	removed, err := s.ArchiveTerminal(time.Now(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing archived, got %+v", removed)
	}
}

func TestResumeScanExcludesTerminal(t *testing.T) {
	s := newTestStore(t)
	activeID, _ := model.NewSwapID()
	s.PutSwap(&model.Swap{SwapID: activeID, State: model.StateM1Locked})

	doneID, _ := model.NewSwapID()
	terminalAt := time.Now().Unix()
	s.PutSwap(&model.Swap{SwapID: doneID, State: model.StateCompleted, TerminalAt: &terminalAt})

	resumable := s.ResumeScan()
	if len(resumable) != 1 || resumable[0].SwapID != activeID {
		t.Errorf("unexpected resume set: %+v", resumable)
	}
}

func TestStorePathUsesExpectedFilename(t *testing.T) {
	dir := t.TempDir()
	s, err := New(&Config{DataDir: dir, LPID: "lp-test"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(s.path) != "flowswap.json" {
		t.Errorf("unexpected snapshot filename: %q", s.path)
	}
}
