package engine

import (
	"context"
	"testing"

	"github.com/flowswap/lp-node/internal/config"
	"github.com/flowswap/lp-node/internal/inventory"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/internal/store"
)

type fakeNotifier struct {
	m1Locked   []M1LockedPayload
	btcClaimed []BTCClaimedPayload
}

func (f *fakeNotifier) NotifyM1Locked(ctx context.Context, peerURL string, payload M1LockedPayload) error {
	f.m1Locked = append(f.m1Locked, payload)
	return nil
}

func (f *fakeNotifier) NotifyBTCClaimed(ctx context.Context, peerURL string, payload BTCClaimedPayload) error {
	f.btcClaimed = append(f.btcClaimed, payload)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeNotifier) {
	t.Helper()
	st, err := store.New(&store.Config{DataDir: t.TempDir(), LPID: "lp-test"})
	if err != nil {
		t.Fatal(err)
	}
	inv := inventory.New(nil, 0)
	inv.SetBalance(model.AssetUSDC, 10_000_000)
	inv.SetBalance(model.AssetBTC, 10_000_000)

	notifier := &fakeNotifier{}
	e := New(st, inv, config.Default(), nil, notifier)
	return e, notifier
}

func initForwardSwap(t *testing.T, e *Engine) *InitResult {
	t.Helper()
	var hUser [32]byte
	hUser[0] = 0xAA

	res, err := e.Init(context.Background(), InitRequest{
		Direction:   model.DirectionForward,
		RoutingMode: model.RoutingSingleLP,
		FromAsset:   model.AssetBTC,
		ToAsset:     model.AssetUSDC,
		FromAmount:  1_000_000,
		ToAmount:    900_000,
		HUser:       hUser,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return res
}

func TestInitReservesInventoryAndMintsHashlocks(t *testing.T) {
	e, _ := newTestEngine(t)
	res := initForwardSwap(t, e)

	if e.inv.Available(model.AssetUSDC) != 10_000_000-900_000 {
		t.Errorf("expected reservation to reduce available balance")
	}
	swap, ok := e.store.GetSwap(res.SwapID)
	if !ok {
		t.Fatal("expected swap to be persisted")
	}
	if swap.State != model.StateAwaitingBTC {
		t.Errorf("state = %s, want awaiting_btc", swap.State)
	}
	if !swap.Hashlocks.Distinct() {
		t.Error("expected distinct hashlock triple")
	}
}

func TestInitRejectsZeroAmount(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Init(context.Background(), InitRequest{
		Direction: model.DirectionForward, FromAsset: model.AssetBTC, ToAsset: model.AssetUSDC,
	})
	if err == nil {
		t.Fatal("expected error for zero amounts")
	}
}

func TestBTCFundedRequiresAwaitingBTCState(t *testing.T) {
	e, _ := newTestEngine(t)
	res := initForwardSwap(t, e)

	if err := e.BTCFunded(context.Background(), res.SwapID, &model.HTLCDescriptor{Address: "bc1q...", Amount: 1_000_000, Timelock: 800_000}); err != nil {
		t.Fatalf("BTCFunded: %v", err)
	}

	// Calling it again from btc_funding_seen should be rejected.
	if err := e.BTCFunded(context.Background(), res.SwapID, &model.HTLCDescriptor{}); err == nil {
		t.Fatal("expected second btc_funded call to be rejected")
	}
}

func TestForceFailRefusedOnceFunded(t *testing.T) {
	e, _ := newTestEngine(t)
	res := initForwardSwap(t, e)

	if err := e.ForceFail(context.Background(), res.SwapID, "user abandoned"); err != nil {
		t.Fatalf("ForceFail before funding: %v", err)
	}
	swap, _ := e.store.GetSwap(res.SwapID)
	if swap.State != model.StateFailed {
		t.Errorf("state = %s, want failed", swap.State)
	}

	res2 := initForwardSwap(t, e)
	e.BTCFunded(context.Background(), res2.SwapID, &model.HTLCDescriptor{Address: "bc1q...", Amount: 1_000_000, Timelock: 800_000, Funded: true})
	if err := e.ForceFail(context.Background(), res2.SwapID, "too late"); err == nil {
		t.Fatal("expected force_fail to be refused once a leg is funded")
	}
}

func TestM1LockedNotifiesPeerForLPIn(t *testing.T) {
	e, notifier := newTestEngine(t)
	res := initForwardSwap(t, e)

	swap, _ := e.store.GetSwap(res.SwapID)
	swap.RoutingMode = model.RoutingPerLeg
	swap.LegRole = model.LegRoleLPIn
	swap.PeerURL = "https://peer.example/api/flowswap"
	swap.State = model.StateBTCFunded
	e.store.PutSwap(swap)

	err := e.M1Locked(context.Background(), res.SwapID, &model.HTLCDescriptor{
		Address: "m1q...", Amount: 900_000, Timelock: 700_000, FundTxID: "txid123", Funded: true,
	})
	if err != nil {
		t.Fatalf("M1Locked: %v", err)
	}
	if len(notifier.m1Locked) != 1 {
		t.Fatalf("expected exactly one m1-locked notification, got %d", len(notifier.m1Locked))
	}
	if notifier.m1Locked[0].M1HTLCOutpoint != "txid123" {
		t.Errorf("unexpected notification payload: %+v", notifier.m1Locked[0])
	}
}
