package engine

import (
	"context"
	"fmt"

	"github.com/flowswap/lp-node/internal/model"
)

// TxConfirmedEvent is raised by a UTXO watcher when a funding, claim,
// or refund transaction for a leg reaches its required confirmation
// depth.
type TxConfirmedEvent struct {
	SwapID        string
	Chain         model.Chain
	Kind          model.LegTxKind
	TxID          string
	Confirmations int64
	Witness       [][]byte // claim/refund witness stack, for secret extraction
}

// EventLogEvent is raised by the EVM watcher for a decoded contract
// log (HTLCCreated/Claimed/Refunded).
type EventLogEvent struct {
	SwapID string
	Kind   model.LegTxKind
	TxHash string
	// Secrets is populated for a claim log; the EVM contract's
	// HTLCClaimed event carries all three preimages directly, unlike
	// the UTXO legs where they must be parsed out of a witness.
	Secrets *model.SecretTriple
}

// ReorgEvent is raised when a watcher's rescan finds a previously
// confirmed txid/log no longer canonical.
type ReorgEvent struct {
	SwapID string
	Chain  model.Chain
	Kind   model.LegTxKind
}

// TimelockExpiredEvent is raised by the periodic timeout checker, not
// a watcher; see timeout.go.
type TimelockExpiredEvent struct {
	SwapID string
	Chain  model.Chain
}

// HandleTxConfirmed advances a UTXO leg's state once its watcher has
// seen the required confirmation depth, applying the tie-break rule
// that a confirmed claim dominates an unconfirmed refund (and a deeper
// confirmation dominates a shallower one — callers only deliver this
// once the configured depth is reached, so depth comparison here is
// limited to refusing to downgrade an already-claimed leg).
func (e *Engine) HandleTxConfirmed(ctx context.Context, ev TxConfirmedEvent) error {
	return e.withSwap(ev.SwapID, func(swap *model.Swap) error {
		leg := swap.Leg(ev.Chain)
		if leg == nil {
			return Classifyf(InvariantViolation, "tx_confirmed for unknown leg %s on swap %s", ev.Chain, ev.SwapID)
		}

		switch ev.Kind {
		case model.LegTxFund:
			leg.FundConfirmations = ev.Confirmations
			leg.FundTxID = ev.TxID
			return e.onLegFundingConfirmed(swap, ev.Chain)

		case model.LegTxClaim:
			if leg.Refunded {
				// Claim evidence arriving after a refund was already
				// recorded means the refund view was stale; a
				// confirmed claim always wins.
				leg.Refunded = false
			}
			leg.Claimed = true
			leg.ClaimTxID = ev.TxID
			secrets, err := extractSecretsFromWitness(ev.Chain, ev.Witness)
			if err != nil {
				return Classify(InvariantViolation, err)
			}
			return e.onLegClaimed(ctx, swap, ev.Chain, secrets, ev.TxID)

		case model.LegTxRefund:
			if leg.Claimed {
				// A claim was already confirmed; ignore a late,
				// now-moot refund broadcast instead of overwriting it.
				return nil
			}
			leg.Refunded = true
			leg.RefundTxID = ev.TxID
			return e.onLegRefunded(swap, ev.Chain)

		default:
			return Classifyf(InvariantViolation, "unknown leg tx kind %d", ev.Kind)
		}
	})
}

// HandleEventLog is the EVM-leg counterpart of HandleTxConfirmed.
func (e *Engine) HandleEventLog(ctx context.Context, ev EventLogEvent) error {
	return e.withSwap(ev.SwapID, func(swap *model.Swap) error {
		leg := swap.Leg(model.ChainEVM)
		if leg == nil {
			return Classifyf(InvariantViolation, "event_log for swap %s with no evm leg", ev.SwapID)
		}

		switch ev.Kind {
		case model.LegTxFund:
			leg.FundTxID = ev.TxHash
			leg.FundConfirmations = 1
			return e.onLegFundingConfirmed(swap, model.ChainEVM)

		case model.LegTxClaim:
			if ev.Secrets == nil || !ev.Secrets.Complete() {
				return Classifyf(InvariantViolation, "evm claim log missing secrets")
			}
			leg.Claimed = true
			leg.ClaimTxID = ev.TxHash
			return e.onLegClaimed(ctx, swap, model.ChainEVM, *ev.Secrets, ev.TxHash)

		case model.LegTxRefund:
			if leg.Claimed {
				return nil
			}
			leg.Refunded = true
			leg.RefundTxID = ev.TxHash
			return e.onLegRefunded(swap, model.ChainEVM)

		default:
			return Classifyf(InvariantViolation, "unknown leg tx kind %d", ev.Kind)
		}
	})
}

// HandleReorg rolls a leg's recorded evidence back to unconfirmed so
// the watcher's next pass re-extracts it, per the reorg-rollback
// classification: this is expected chain behavior, not an invariant
// violation, and the swap stays in its current state while the
// watcher resumes scanning from its rescan floor.
func (e *Engine) HandleReorg(ctx context.Context, ev ReorgEvent) error {
	return e.withSwap(ev.SwapID, func(swap *model.Swap) error {
		leg := swap.Leg(ev.Chain)
		if leg == nil {
			return nil
		}
		switch ev.Kind {
		case model.LegTxFund:
			leg.FundConfirmations = 0
		case model.LegTxClaim:
			leg.Claimed = false
			leg.ClaimTxID = ""
		case model.LegTxRefund:
			leg.Refunded = false
			leg.RefundTxID = ""
		}
		appendAudit(swap, fmt.Sprintf("reorg observed on %s leg, evidence rolled back for re-extraction", ev.Chain))
		return nil
	})
}

// onLegFundingConfirmed advances the state machine once a leg's
// funding reaches its confirmation threshold. The specific next state
// depends on which leg just confirmed and the swap's direction/role.
func (e *Engine) onLegFundingConfirmed(swap *model.Swap, c model.Chain) error {
	switch {
	case c == model.ChainBTC && swap.State == model.StateBTCFundingSeen:
		swap.State = model.StateBTCFunded
		appendAudit(swap, "btc funding confirmed")
	case c == model.ChainM1 && swap.State == model.StateM1Locked:
		swap.State = model.StateM1LockedSeen
		appendAudit(swap, "m1 htlc confirmed")
	case c == model.ChainEVM && swap.State == model.StateUSDCLocked:
		appendAudit(swap, "usdc htlc confirmed, awaiting claim")
	default:
		// A confirmation for a leg that already moved on (e.g. a
		// delayed duplicate delivery) is a no-op, not an error — event
		// delivery is at-least-once.
	}
	return nil
}

// onLegClaimed is shared by both UTXO witness extraction and the EVM
// log path: once the secrets are in hand, the rest of the reaction
// (auto-claim the next leg, notify a peer, or finish the swap) is
// identical regardless of which chain revealed them.
func (e *Engine) onLegClaimed(ctx context.Context, swap *model.Swap, c model.Chain, secrets model.SecretTriple, txID string) error {
	if err := verifyAgainstHashlocks(swap.Hashlocks, secrets); err != nil {
		return Classify(InvariantViolation, err)
	}
	swap.Secrets = secrets

	switch c {
	case model.ChainEVM:
		swap.State = model.StateUSDCClaimedByUser
		appendAudit(swap, "usdc leg claimed by user, secrets now known")
	case model.ChainM1:
		if swap.LegRole == model.LegRoleLPIn {
			swap.State = model.StateM1ClaimedFromLPIn
		} else {
			swap.State = model.StateM1SelfClaimed
		}
		appendAudit(swap, "m1 leg claimed")
	case model.ChainBTC:
		swap.State = model.StateBTCClaimed
		appendAudit(swap, "btc leg claimed")
	}

	e.selfClaimRemainingLegs(ctx, swap, c)

	if allLegsResolved(swap) {
		e.finalize(swap, model.StateCompleted, "all legs resolved, swap complete")
	}
	return nil
}

// selfClaimRemainingLegs broadcasts a claim for every other funded leg
// that isn't yet claimed or refunded, now that secrets are known: the
// LP sweeping its own upstream legs forward (the M1 self-claim, the
// BTC sweep, or — in the reverse direction — the USDC claim) once a
// claim on some other leg has revealed the preimages. A broadcast
// failure here is logged, not propagated: the periodic timeout
// checker's refund path is the fallback if a self-claim never lands.
func (e *Engine) selfClaimRemainingLegs(ctx context.Context, swap *model.Swap, justClaimed model.Chain) {
	if e.claimDriver == nil || !e.cfg.AutoClaimEnabled {
		return
	}
	for _, c := range []model.Chain{model.ChainBTC, model.ChainM1, model.ChainEVM} {
		if c == justClaimed {
			continue
		}
		leg := swap.Leg(c)
		if leg == nil || !leg.Funded || leg.Claimed || leg.Refunded {
			continue
		}

		txID, err := e.claimDriver.BroadcastClaim(ctx, swap, c, swap.Secrets)
		if err != nil {
			appendAudit(swap, fmt.Sprintf("%s leg self-claim broadcast failed: %v", c, err))
			e.log.Warn("self-claim broadcast failed", "swap_id", swap.SwapID, "chain", c, "error", err)
			continue
		}
		leg.Claimed = true
		leg.ClaimTxID = txID
		appendAudit(swap, fmt.Sprintf("%s leg self-claimed", c))
	}
}

// onLegRefunded records a leg's refund and completes the swap once
// every funded leg has reached a terminal on-chain outcome.
func (e *Engine) onLegRefunded(swap *model.Swap, c model.Chain) error {
	appendAudit(swap, fmt.Sprintf("%s leg refunded", c))
	if allLegsResolved(swap) {
		e.finalize(swap, model.StateRefunded, "all legs refunded or otherwise resolved")
	}
	return nil
}

// allLegsResolved reports whether every leg that was ever funded has
// now either been claimed or refunded.
func allLegsResolved(swap *model.Swap) bool {
	legs := []*model.HTLCDescriptor{swap.BTCLeg, swap.M1Leg, swap.EVMLeg}
	any := false
	for _, leg := range legs {
		if leg == nil || !leg.Funded {
			continue
		}
		any = true
		if !leg.Claimed && !leg.Refunded {
			return false
		}
	}
	return any
}

// extractSecretsFromWitness parses the three preimages out of a claim
// witness stack for a UTXO leg. The witness layout is
// [sig, S_lp2, S_lp1, S_user, {0x01}, script] (see internal/htlc), so
// the secrets sit at fixed offsets from the end.
func extractSecretsFromWitness(c model.Chain, witness [][]byte) (model.SecretTriple, error) {
	if len(witness) < 6 {
		return model.SecretTriple{}, fmt.Errorf("claim witness for %s has %d items, want at least 6", c, len(witness))
	}
	var out model.SecretTriple
	n := len(witness)
	// witness[n-1] = script, witness[n-2] = selector byte, then
	// S_user, S_lp1, S_lp2 reading backward from there.
	copy(out.SUser[:], witness[n-3])
	copy(out.SLP1[:], witness[n-4])
	copy(out.SLP2[:], witness[n-5])
	out.HasUser, out.HasLP1, out.HasLP2 = true, true, true
	return out, nil
}
