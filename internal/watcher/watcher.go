// Package watcher runs one independent poll loop per chain, turning
// raw chain-client reads into the tx_confirmed / event_log callbacks
// the engine's state machine consumes. The loops do not detect reorgs:
// nothing in this package invokes Callbacks.OnReorg. Each loop tracks
// its own last-scanned height and rescans from a reorg-safe floor on
// restart.
package watcher

import (
	"context"
	"time"

	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/pkg/logging"
)

// FundConfirmedFunc, ClaimOrRefundFunc, EventLogFunc and ReorgFunc are
// the callbacks a per-chain watcher invokes as it finds activity at one of
// the engine's registered watch keys. main.go supplies closures that
// call straight into engine.Engine — watcher never imports engine, so
// there is no import cycle with notify (which does import engine).
type FundConfirmedFunc func(ctx context.Context, swapID string, c model.Chain, txID string, confirmations int64) error
type ClaimOrRefundFunc func(ctx context.Context, swapID string, c model.Chain, kind model.LegTxKind, txID string, witness [][]byte) error
type EventLogFunc func(ctx context.Context, swapID string, kind model.LegTxKind, txHash string, secrets *model.SecretTriple) error
type ReorgFunc func(ctx context.Context, swapID string, c model.Chain, kind model.LegTxKind) error

// InterestSource exposes the engine's registered watch keys for a
// chain: key (address/outpoint/contract id) -> owning swap id.
type InterestSource func(c model.Chain) map[string]string

// Callbacks bundles everything a Loop needs to report back to the
// engine without importing it.
type Callbacks struct {
	OnFundConfirmed FundConfirmedFunc
	OnClaimOrRefund ClaimOrRefundFunc
	OnEventLog      EventLogFunc
	OnReorg         ReorgFunc
	Interests       InterestSource
}

// Loop is the shared skeleton every chain-specific watcher embeds: a
// ticker, a last-scanned height, and a rescan floor computed from the
// configured reorg depth.
type Loop struct {
	Chain        model.Chain
	Client       chain.Client
	Callbacks    Callbacks
	TickInterval time.Duration
	ReorgDepth   int64

	lastScanned int64
	log         *logging.Logger
}

// NewLoop constructs a Loop. The first tick always scans from
// max(0, tip-ReorgDepth), since lastScanned starts at zero.
func NewLoop(c model.Chain, client chain.Client, cb Callbacks, tick time.Duration, reorgDepth int64) *Loop {
	return &Loop{
		Chain:        c,
		Client:       client,
		Callbacks:    cb,
		TickInterval: tick,
		ReorgDepth:   reorgDepth,
		log:          logging.GetDefault().Component("watcher." + string(c)),
	}
}

// Run blocks, ticking every TickInterval until ctx is canceled. scan
// performs the actual chain-specific read/dispatch and is supplied by
// the per-chain watcher file (btc.go / m1.go / evm.go).
func (l *Loop) Run(ctx context.Context, scan func(ctx context.Context, fromHeight, tip int64) error) {
	ticker := time.NewTicker(l.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, scan)
		}
	}
}

// tick computes the rescan floor, invokes scan, and advances
// lastScanned only on success — a transient read failure leaves the
// floor where it was so the next tick covers the same ground again.
func (l *Loop) tick(ctx context.Context, scan func(ctx context.Context, fromHeight, tip int64) error) {
	tip, err := l.Client.GetBlockHeight(ctx)
	if err != nil {
		l.log.Warn("failed to read chain tip", "error", err)
		return
	}

	floor := l.lastScanned - l.ReorgDepth
	if l.lastScanned == 0 {
		floor = tip - l.ReorgDepth
	}
	if floor < 0 {
		floor = 0
	}

	if err := scan(ctx, floor, tip); err != nil {
		l.log.Warn("scan failed", "from", floor, "tip", tip, "error", err)
		return
	}
	l.lastScanned = tip
}
