// Package engine is the swap state machine: it owns every Swap record's
// transitions, holds the per-swap locks that keep concurrent
// command/event delivery safe (there is no per-chain lock; broadcasts
// on one chain are not serialized across swaps), and is the only package that
// calls into both store and inventory in the same operation.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/config"
	"github.com/flowswap/lp-node/internal/inventory"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/internal/store"
	"github.com/flowswap/lp-node/pkg/logging"
)

// M1LockedPayload is the body sent to a peer LP once this node has
// locked the M1 leg on its half of a per-leg route.
type M1LockedPayload struct {
	SwapID         string `json:"swap_id"`
	M1HTLCOutpoint string `json:"m1_htlc_outpoint"`
	M1Amount       uint64 `json:"m1_amount"`
	M1Expiry       uint64 `json:"m1_expiry"`
}

// BTCClaimedPayload is the body sent to a peer LP once this node has
// revealed all three secrets by claiming the BTC leg, so the peer can
// claim its own M1 leg without waiting on a watcher to see the reveal.
type BTCClaimedPayload struct {
	SwapID    string    `json:"swap_id"`
	SUser     [32]byte  `json:"s_user"`
	SLP1      [32]byte  `json:"s_lp1"`
	SLP2      [32]byte  `json:"s_lp2"`
	ClaimTxID string    `json:"claim_txid"`
}

// Notifier delivers the two outbound per-leg calls a per-leg swap
// needs. Implementations retry with backoff and report PeerUnreachable
// once their budget is exhausted; the engine never retries on its own.
type Notifier interface {
	NotifyM1Locked(ctx context.Context, peerURL string, payload M1LockedPayload) error
	NotifyBTCClaimed(ctx context.Context, peerURL string, payload BTCClaimedPayload) error
}

// lockTable hands out one *sync.Mutex per key, created lazily and kept
// forever (the only keys are swap ids; entries are never evicted, even
// for swaps that have reached a terminal state).
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// Engine wires the store, inventory, chain clients, and outbound
// notifier into the swap state machine. The only engine-level locks are
// the per-swap ones; there is no per-chain lock. The store's mutex is
// taken only inside store methods (GetSwap, PutSwap), briefly, while a
// swap lock is held, and never the other way round.
type Engine struct {
	store       *store.Store
	inv         *inventory.Inventory
	cfg         *config.LPConfig
	chains      map[model.Chain]chain.Client
	notifier    Notifier
	claimDriver ClaimDriver
	log         *logging.Logger

	swapLocks *lockTable

	interestsMu sync.Mutex
	interests   map[model.Chain]map[string]string // watch key -> swap id
}

// New constructs an Engine. chains is kept on the Engine but no engine
// code reads it, so it may be nil or hold only some chains.
func New(st *store.Store, inv *inventory.Inventory, cfg *config.LPConfig, chains map[model.Chain]chain.Client, notifier Notifier) *Engine {
	return &Engine{
		store:     st,
		inv:       inv,
		cfg:       cfg,
		chains:    chains,
		notifier:  notifier,
		log:       logging.GetDefault().Component("engine"),
		swapLocks: newLockTable(),
		interests: map[model.Chain]map[string]string{
			model.ChainBTC: {},
			model.ChainM1:  {},
			model.ChainEVM: {},
		},
	}
}

// SetClaimDriver wires the driver onLegClaimed uses to self-claim any
// other funded leg once a swap's secrets become fully known. It is
// separate from New because the driver needs the LP's private keys,
// which load from an encrypted keystore after the engine itself is
// constructed; nil disables auto-claim entirely (an operator running
// claim-only-by-watcher, or with no keystore configured at all).
func (e *Engine) SetClaimDriver(d ClaimDriver) {
	e.claimDriver = d
}

// SetNotifier wires the outbound per-leg notifier. Separate from New for
// the same reason as SetClaimDriver: the notifier's UnreachableHandler
// closure needs to call back into this Engine, so it can only be built
// once the Engine already exists.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// withSwap loads a swap, locks it for the duration of fn, persists any
// mutation fn made, and releases the lock. fn returning an error aborts
// the persist (the in-memory copy and the stored copy both still
// reflect the pre-fn state once fn's caller backs off and reloads).
func (e *Engine) withSwap(swapID string, fn func(swap *model.Swap) error) error {
	lock := e.swapLocks.get(swapID)
	lock.Lock()
	defer lock.Unlock()

	swap, ok := e.store.GetSwap(swapID)
	if !ok {
		return Classifyf(InvariantViolation, "swap %s not found", swapID)
	}

	if err := fn(swap); err != nil {
		return err
	}

	if err := e.store.PutSwap(swap); err != nil {
		return fmt.Errorf("engine: persist swap %s: %w", swapID, err)
	}
	return nil
}

// registerInterest records that a watcher for chain c should notify
// this engine about activity at key (an address, outpoint, or contract
// id), attributing it to swapID.
func (e *Engine) registerInterest(c model.Chain, key, swapID string) {
	e.interestsMu.Lock()
	defer e.interestsMu.Unlock()
	e.interests[c][key] = swapID
}

// unregisterInterestsFor drops every watch key belonging to swapID
// across all chains, called once a swap reaches a terminal state.
func (e *Engine) unregisterInterestsFor(swapID string) {
	e.interestsMu.Lock()
	defer e.interestsMu.Unlock()
	for c, keys := range e.interests {
		for k, sid := range keys {
			if sid == swapID {
				delete(e.interests[c], k)
			}
		}
	}
}

// Interests returns a snapshot of the watch keys registered for a
// chain, for a watcher's poll loop to scan each tick.
func (e *Engine) Interests(c model.Chain) map[string]string {
	e.interestsMu.Lock()
	defer e.interestsMu.Unlock()
	out := make(map[string]string, len(e.interests[c]))
	for k, v := range e.interests[c] {
		out[k] = v
	}
	return out
}

// appendAudit is a small helper every command/event handler calls
// after mutating swap.State, so the timeline always explains why a
// transition happened.
func appendAudit(swap *model.Swap, note string) {
	swap.Append(newAuditID(), time.Now(), note)
}

// newAuditID mints an opaque audit-entry id, same shape as
// model.NewSwapID but without the "fs_" swap prefix.
func newAuditID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "ev_unknown"
	}
	return "ev_" + hex.EncodeToString(buf)
}

// Resume re-registers watcher interest for every non-terminal swap the
// store has on disk, and is called once at startup before the watchers
// start polling.
func (e *Engine) Resume() {
	swaps := e.store.ResumeScan()
	for _, swap := range swaps {
		e.registerInterestsForState(swap)
	}
	e.log.Info("resumed swaps", "count", len(swaps))
}

// registerInterestsForState (re-)registers the on-chain watch keys a
// swap's current state implies interest in. Called both by Resume and
// by every transition that newly expects on-chain activity.
func (e *Engine) registerInterestsForState(swap *model.Swap) {
	if swap.BTCLeg != nil && !swap.BTCLeg.Claimed && !swap.BTCLeg.Refunded {
		key := swap.BTCLeg.Address
		if swap.BTCLeg.FundTxID != "" {
			key = swap.BTCLeg.FundTxID
		}
		if key != "" {
			e.registerInterest(model.ChainBTC, key, swap.SwapID)
		}
	}
	if swap.M1Leg != nil && !swap.M1Leg.Claimed && !swap.M1Leg.Refunded {
		key := swap.M1Leg.Address
		if swap.M1Leg.FundTxID != "" {
			key = swap.M1Leg.FundTxID
		}
		if key != "" {
			e.registerInterest(model.ChainM1, key, swap.SwapID)
		}
	}
	if swap.EVMLeg != nil && !swap.EVMLeg.Claimed && !swap.EVMLeg.Refunded {
		if swap.EVMLeg.ContractID != "" {
			e.registerInterest(model.ChainEVM, swap.EVMLeg.ContractID, swap.SwapID)
		}
	}
}

// finalize moves a swap into a terminal state, releases its
// inventory reservations, stamps TerminalAt, and drops watcher
// interest (invariant: exactly one terminal state, reservations
// released on arrival).
func (e *Engine) finalize(swap *model.Swap, final model.State, note string) {
	swap.State = final
	now := time.Now().Unix()
	swap.TerminalAt = &now
	appendAudit(swap, note)
	e.inv.Release(swap.SwapID)
	e.unregisterInterestsFor(swap.SwapID)
}

// GetSwap returns a single swap record for the read-only API surface.
func (e *Engine) GetSwap(swapID string) (*model.Swap, bool) {
	return e.store.GetSwap(swapID)
}

// ListSwaps returns every swap matching filter (or every swap, if
// filter is the empty state), for the API's list endpoint.
func (e *Engine) ListSwaps(filter model.State) []*model.Swap {
	return e.store.ListSwaps(filter)
}

// CleanupTerminal deletes terminal swaps older than maxAge, returning
// the ids removed. Exposed for the operator-only admin endpoint.
func (e *Engine) CleanupTerminal(maxAge time.Duration) ([]string, error) {
	return e.store.ArchiveTerminal(time.Now(), maxAge)
}
