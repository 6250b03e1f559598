package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flowswap/lp-node/internal/model"
)

// RefundDriver broadcasts a refund transaction for a leg once its
// timelock has expired. The engine decides *when* to refund; it never
// builds or signs the transaction itself (that needs the LP's private
// keys, which live outside this package).
type RefundDriver interface {
	BroadcastRefund(ctx context.Context, swap *model.Swap, c model.Chain) (txID string, err error)
}

// ClaimDriver broadcasts a claim transaction for a leg once all three
// secrets are known, mirroring RefundDriver's split between deciding
// when to act (the engine) and signing the transaction (outside this
// package, where the LP's private keys live).
type ClaimDriver interface {
	BroadcastClaim(ctx context.Context, swap *model.Swap, c model.Chain, secrets model.SecretTriple) (txID string, err error)
}

// CheckTimeouts is called periodically (the engine's own tick, not a
// watcher) to scan every non-terminal swap for a leg whose timelock
// has passed without a claim. It applies the claim-over-refund
// preference: if this swap's secrets are already fully known (e.g.
// from an earlier leg's claim), it skips the refund on every tick for
// as long as the leg stays unclaimed, leaving the watcher to report
// the claim transaction; it never falls back to a refund while the
// secrets are known.
func (e *Engine) CheckTimeouts(ctx context.Context, driver RefundDriver, now time.Time, currentHeight map[model.Chain]int64, currentUnix int64) {
	for _, swap := range e.store.ResumeScan() {
		e.checkSwapTimeouts(ctx, driver, swap.SwapID, currentHeight, currentUnix)
	}
}

// checkSwapTimeouts is the per-swap body of CheckTimeouts, run under
// the swap's own lock so it never races a concurrent command/event.
func (e *Engine) checkSwapTimeouts(ctx context.Context, driver RefundDriver, swapID string, currentHeight map[model.Chain]int64, currentUnix int64) {
	err := e.withSwap(swapID, func(swap *model.Swap) error {
		for _, c := range []model.Chain{model.ChainBTC, model.ChainM1, model.ChainEVM} {
			leg := swap.Leg(c)
			if leg == nil || !leg.Funded || leg.Claimed || leg.Refunded {
				continue
			}
			if !legExpired(c, leg, currentHeight, currentUnix) {
				continue
			}
			if swap.Secrets.Complete() && !leg.Claimed {
				// Prefer letting an in-flight claim land; don't race
				// it with a refund on this or any later tick while the
				// secrets are known (spec's claim-over-refund preference).
				appendAudit(swap, fmt.Sprintf("%s leg timelock expired but secrets are known, deferring refund", c))
				continue
			}

			txID, err := driver.BroadcastRefund(ctx, swap, c)
			if err != nil {
				appendAudit(swap, fmt.Sprintf("%s leg refund broadcast failed: %v", c, err))
				if c == model.ChainBTC {
					swap.State = model.StateBTCRefundUnrecov
				}
				// Return nil so withSwap persists the audit entry and
				// the unrecoverable marker instead of discarding them.
				e.log.Warn("timeout check failed", "swap_id", swap.SwapID, "error", Classify(UnrecoverableRefund, err))
				return nil
			}
			leg.Refunded = true
			leg.RefundTxID = txID
			appendAudit(swap, fmt.Sprintf("%s leg refund broadcast", c))
		}

		if allLegsResolved(swap) {
			e.finalize(swap, model.StateRefunded, "all legs refunded or otherwise resolved (timeout path)")
		}
		return nil
	})
	if err != nil {
		e.log.Warn("timeout check failed", "swap_id", swapID, "error", err)
	}
}

// legExpired reports whether a leg's timelock has passed: a block
// height comparison for BTC/M1, a unix-seconds comparison for EVM.
func legExpired(c model.Chain, leg *model.HTLCDescriptor, currentHeight map[model.Chain]int64, currentUnix int64) bool {
	switch c {
	case model.ChainBTC, model.ChainM1:
		return currentHeight[c] >= int64(leg.Timelock)
	case model.ChainEVM:
		return currentUnix >= int64(leg.Timelock)
	default:
		return false
	}
}
