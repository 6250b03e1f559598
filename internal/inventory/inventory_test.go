package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/flowswap/lp-node/internal/model"
)

func TestReserveWithinBalance(t *testing.T) {
	inv := New(nil, time.Minute)
	inv.SetBalance(model.AssetBTC, 100_000)

	if err := inv.Reserve(context.Background(), model.AssetBTC, 60_000, "swap-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := inv.Available(model.AssetBTC); got != 40_000 {
		t.Errorf("Available = %d, want 40000", got)
	}
}

func TestReserveRejectsOverdraw(t *testing.T) {
	inv := New(nil, time.Minute)
	inv.SetBalance(model.AssetBTC, 100_000)

	if err := inv.Reserve(context.Background(), model.AssetBTC, 60_000, "swap-1"); err != nil {
		t.Fatal(err)
	}
	if err := inv.Reserve(context.Background(), model.AssetBTC, 50_000, "swap-2"); err == nil {
		t.Fatal("expected insufficient balance error")
	}
}

func TestReleaseFreesReservations(t *testing.T) {
	inv := New(nil, time.Minute)
	inv.SetBalance(model.AssetBTC, 100_000)

	if err := inv.Reserve(context.Background(), model.AssetBTC, 60_000, "swap-1"); err != nil {
		t.Fatal(err)
	}
	inv.Release("swap-1")

	if got := inv.Available(model.AssetBTC); got != 100_000 {
		t.Errorf("Available after release = %d, want 100000", got)
	}
}

func TestReleaseOnlyAffectsNamedSwap(t *testing.T) {
	inv := New(nil, time.Minute)
	inv.SetBalance(model.AssetUSDC, 1_000_000)

	inv.Reserve(context.Background(), model.AssetUSDC, 300_000, "swap-a")
	inv.Reserve(context.Background(), model.AssetUSDC, 200_000, "swap-b")
	inv.Release("swap-a")

	if got := inv.Reserved(model.AssetUSDC); got != 200_000 {
		t.Errorf("Reserved = %d, want 200000 (swap-b only)", got)
	}
}

func TestRefreshIfStaleRespectsInterval(t *testing.T) {
	calls := 0
	source := func(ctx context.Context, asset model.Asset) (uint64, error) {
		calls++
		return 500_000, nil
	}
	inv := New(source, time.Hour)

	if err := inv.RefreshIfStale(context.Background(), model.AssetBTC); err != nil {
		t.Fatal(err)
	}
	if err := inv.RefreshIfStale(context.Background(), model.AssetBTC); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one refresh within the interval, got %d", calls)
	}
	if inv.Balance(model.AssetBTC) != 500_000 {
		t.Errorf("balance not updated by refresh")
	}
}

func TestRefreshDetectsExternalDrawdown(t *testing.T) {
	inv := New(nil, 0)
	inv.SetBalance(model.AssetM1, 100_000)
	inv.Reserve(context.Background(), model.AssetM1, 90_000, "swap-1")

	source := func(ctx context.Context, asset model.Asset) (uint64, error) {
		return 50_000, nil // external spend dropped the wallet below reserved
	}
	inv.refreshSource = source
	inv.lastRefresh[model.AssetM1] = time.Time{}

	if err := inv.RefreshIfStale(context.Background(), model.AssetM1); err != nil {
		t.Fatal(err)
	}
	if inv.Available(model.AssetM1) >= 0 {
		t.Error("expected negative availability after external drawdown")
	}
	if err := inv.Reserve(context.Background(), model.AssetM1, 1, "swap-2"); err == nil {
		t.Error("expected new reservations to be refused while available < reserved")
	}
}
