// Package inventory tracks the LP's wallet balances per asset and the
// reservations swaps hold against them. There is no persistent store
// of its own: reservations are mirrored onto each swap's own record by
// the caller (the engine), so a crash loses nothing that a store
// resume-scan can't rebuild.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/pkg/logging"
)

// ErrInsufficientBalance is returned by Reserve when the asset's
// available balance (wallet balance minus already-reserved amount)
// cannot cover the request.
var ErrInsufficientBalance = errors.New("inventory: insufficient available balance")

// BalanceSource reads a wallet balance for an asset from its chain
// client. Implementations live alongside internal/chain; kept as an
// interface here so inventory never imports chain directly.
type BalanceSource func(ctx context.Context, asset model.Asset) (uint64, error)

// reservation is one outstanding claim against an asset's balance.
type reservation struct {
	swapID string
	amount uint64
}

// Inventory is the mutex-protected reservation ledger, modeled on the
// same keyed-map-plus-mutex idiom the engine's swap table uses: one
// lock, plain maps, no sharding.
type Inventory struct {
	mu             sync.Mutex
	balances       map[model.Asset]uint64
	reservations   map[model.Asset][]reservation
	refreshSource  BalanceSource
	refreshEvery   time.Duration
	lastRefresh    map[model.Asset]time.Time
	log            *logging.Logger
}

// New creates an Inventory. refreshEvery is how stale a cached balance
// may get before RefreshIfStale re-reads the chain (default 60s).
func New(source BalanceSource, refreshEvery time.Duration) *Inventory {
	if refreshEvery <= 0 {
		refreshEvery = 60 * time.Second
	}
	return &Inventory{
		balances:      make(map[model.Asset]uint64),
		reservations:  make(map[model.Asset][]reservation),
		refreshSource: source,
		refreshEvery:  refreshEvery,
		lastRefresh:   make(map[model.Asset]time.Time),
		log:           logging.GetDefault().Component("inventory"),
	}
}

// SetBalance seeds or overrides the cached balance for an asset
// directly, bypassing BalanceSource. Used at startup before the first
// chain read, and by tests.
func (inv *Inventory) SetBalance(asset model.Asset, amount uint64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.balances[asset] = amount
}

// RefreshIfStale re-reads an asset's wallet balance from the chain if
// the cached value is older than refreshEvery. If the freshly read
// balance is lower than the sum of outstanding reservations — an
// external spend drained the wallet — new reservations are refused
// until the operator intervenes, the more conservative of the two
// ways to handle a negative available balance.
func (inv *Inventory) RefreshIfStale(ctx context.Context, asset model.Asset) error {
	inv.mu.Lock()
	last := inv.lastRefresh[asset]
	stale := time.Since(last) >= inv.refreshEvery
	source := inv.refreshSource
	inv.mu.Unlock()

	if !stale || source == nil {
		return nil
	}

	balance, err := source(ctx, asset)
	if err != nil {
		return fmt.Errorf("inventory: refresh balance for %s: %w", asset, err)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.balances[asset] = balance
	inv.lastRefresh[asset] = time.Now()

	reserved := inv.sumReservedLocked(asset)
	if balance < reserved {
		inv.log.Warn("wallet balance dropped below reserved total",
			"asset", asset, "balance", balance, "reserved", reserved)
	}
	return nil
}

// Reserve atomically claims amount of asset for swapID. Fails if doing
// so would push total reservations past the cached wallet balance.
// Every call first tries RefreshIfStale, so a reservation decision is
// never made against a balance older than refreshEvery even if no
// periodic refresh ticker is running.
func (inv *Inventory) Reserve(ctx context.Context, asset model.Asset, amount uint64, swapID string) error {
	if err := inv.RefreshIfStale(ctx, asset); err != nil {
		inv.log.Warn("balance refresh failed, reserving against cached balance", "asset", asset, "error", err)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	balance := inv.balances[asset]
	reserved := inv.sumReservedLocked(asset)
	available := int64(balance) - int64(reserved)
	if available < 0 || uint64(available) < amount {
		return fmt.Errorf("%w: asset=%s available=%d requested=%d", ErrInsufficientBalance, asset, available, amount)
	}

	inv.reservations[asset] = append(inv.reservations[asset], reservation{swapID: swapID, amount: amount})
	return nil
}

// Release frees every reservation owned by swapID, across all assets.
// Called on every terminal transition.
func (inv *Inventory) Release(swapID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for asset, list := range inv.reservations {
		kept := list[:0]
		for _, r := range list {
			if r.swapID != swapID {
				kept = append(kept, r)
			}
		}
		inv.reservations[asset] = kept
	}
}

// Available returns balance minus total reservations for an asset.
// May be negative if RefreshIfStale observed an external draw-down;
// callers should treat a negative value as "reserve nothing more".
func (inv *Inventory) Available(asset model.Asset) int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return int64(inv.balances[asset]) - int64(inv.sumReservedLocked(asset))
}

// Reserved returns the current sum of reservations for an asset.
func (inv *Inventory) Reserved(asset model.Asset) uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.sumReservedLocked(asset)
}

// Balance returns the last cached wallet balance for an asset.
func (inv *Inventory) Balance(asset model.Asset) uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.balances[asset]
}

func (inv *Inventory) sumReservedLocked(asset model.Asset) uint64 {
	var total uint64
	for _, r := range inv.reservations[asset] {
		total += r.amount
	}
	return total
}
