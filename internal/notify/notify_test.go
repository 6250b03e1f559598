package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowswap/lp-node/internal/engine"
)

func fastConfig() *Config {
	return &Config{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, MaxAttempts: 3, RequestTimeout: time.Second}
}

func TestNotifyM1LockedSucceedsFirstTry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/peer/m1-locked" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(fastConfig(), nil)
	err := n.NotifyM1Locked(context.Background(), srv.URL, engine.M1LockedPayload{SwapID: "fs_1"})
	if err != nil {
		t.Fatalf("NotifyM1Locked: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(fastConfig(), nil)
	err := n.NotifyBTCClaimed(context.Background(), srv.URL, engine.BTCClaimedPayload{SwapID: "fs_1"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected two attempts, got %d", calls)
	}
}

func TestNotifyExhaustsBudgetAndCallsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var unreachableSwap string
	n := New(fastConfig(), func(swapID string) { unreachableSwap = swapID })

	err := n.NotifyM1Locked(context.Background(), srv.URL, engine.M1LockedPayload{SwapID: "fs_unreachable"})
	if err == nil {
		t.Fatal("expected error once retry budget is exhausted")
	}
	if unreachableSwap != "fs_unreachable" {
		t.Errorf("expected unreachable handler to fire for fs_unreachable, got %q", unreachableSwap)
	}
}
