package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flowswap/lp-node/internal/htlc"
	"github.com/flowswap/lp-node/internal/model"
)

// InitRequest is the caller-supplied shape for starting a new swap.
// Exactly one of HUser (user-supplied hashlock) must be set; the LP
// mints its own two hashlocks internally and never sees the user's
// secret.
type InitRequest struct {
	Direction         model.Direction
	RoutingMode       model.RoutingMode
	LegRole           model.LegRole
	PeerURL           string
	FromAsset         model.Asset
	ToAsset           model.Asset
	FromAmount        uint64
	ToAmount          uint64
	HUser             [32]byte
	UserRefundAddress string
	UserPayoutAddress string
}

// InitResult is returned to the caller after Init: the swap id and the
// two LP-minted secrets' hashes (never the secrets themselves — those
// stay inside the swap record until a claim reveals them on-chain).
type InitResult struct {
	SwapID string
	HLP1   [32]byte
	HLP2   [32]byte
}

// secretMinter is overridden by tests to avoid depending on real
// randomness for deterministic assertions.
var secretMinter = func() (s1, h1, s2, h2 [32]byte, err error) {
	s1, h1, err = htlc.GenerateSecret()
	if err != nil {
		return
	}
	s2, h2, err = htlc.GenerateSecret()
	return
}

// Init creates a new swap in StateAwaitingBTC (forward direction) or
// StateAwaitingUSDC (reverse direction), reserves the
// LP-side inventory up front, and mints the LP's two hashlocks.
func (e *Engine) Init(ctx context.Context, req InitRequest) (*InitResult, error) {
	if req.FromAmount == 0 || req.ToAmount == 0 {
		return nil, Classifyf(InvariantViolation, "from/to amount must be nonzero")
	}

	sLP1, hLP1, sLP2, hLP2, err := secretMinter()
	if err != nil {
		return nil, Classify(PermanentChain, err)
	}

	triple := model.HashlockTriple{HUser: req.HUser, HLP1: hLP1, HLP2: hLP2}
	if !triple.Distinct() {
		return nil, Classifyf(InvariantViolation, "hashlock triple is not pairwise distinct")
	}

	swapID, err := model.NewSwapID()
	if err != nil {
		return nil, Classify(PermanentChain, err)
	}

	// Reserve against the asset the LP will be funding out of, i.e.
	// ToAsset for a forward swap (the LP sends USDC) and FromAsset's
	// counterpart for reverse; the caller always names what the LP
	// must be willing to pay out, which is ToAmount of ToAsset.
	if err := e.inv.Reserve(ctx, req.ToAsset, req.ToAmount, swapID); err != nil {
		return nil, Classify(PermanentChain, err)
	}

	now := time.Now()
	swap := &model.Swap{
		SwapID:            swapID,
		Direction:         req.Direction,
		RoutingMode:       req.RoutingMode,
		LegRole:           req.LegRole,
		PeerURL:           req.PeerURL,
		FromAsset:         req.FromAsset,
		ToAsset:           req.ToAsset,
		FromAmount:        req.FromAmount,
		ToAmount:          req.ToAmount,
		Hashlocks:         triple,
		Secrets:           model.SecretTriple{SLP1: sLP1, SLP2: sLP2, HasLP1: true, HasLP2: true},
		State:             model.StateInit,
		UserRefundAddress: req.UserRefundAddress,
		UserPayoutAddress: req.UserPayoutAddress,
		Reservations: []model.Reservation{
			{Asset: req.ToAsset, Amount: req.ToAmount, SwapID: swapID},
		},
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}

	if req.Direction == model.DirectionForward {
		swap.State = model.StateAwaitingBTC
	} else {
		swap.State = model.StateAwaitingUSDC
	}
	appendAudit(swap, fmt.Sprintf("swap initialized, direction=%s routing=%s", req.Direction, req.RoutingMode))

	if err := e.store.PutSwap(swap); err != nil {
		e.inv.Release(swapID)
		return nil, fmt.Errorf("engine: persist new swap: %w", err)
	}

	return &InitResult{SwapID: swapID, HLP1: hLP1, HLP2: hLP2}, nil
}

// BTCFunded records that the user's BTC (or, in reverse direction, the
// LP's BTC refund-equivalent) leg has been broadcast and attaches the
// leg descriptor. The watcher takes it from here to confirmation.
func (e *Engine) BTCFunded(ctx context.Context, swapID string, leg *model.HTLCDescriptor) error {
	return e.withSwap(swapID, func(swap *model.Swap) error {
		if swap.State != model.StateAwaitingBTC {
			return Classifyf(InvariantViolation, "btc_funded received in state %s", swap.State)
		}
		leg.Chain = model.ChainBTC
		leg.Funded = true
		swap.BTCLeg = leg
		swap.State = model.StateBTCFundingSeen
		appendAudit(swap, "btc funding transaction observed, awaiting confirmations")
		e.registerInterestsForState(swap)
		return nil
	})
}

// M1Locked records that this LP (or its per-leg peer) has broadcast
// the M1 HTLC, and — for a per-leg LP_IN — fires the outbound
// m1-locked notification to the LP_OUT peer.
func (e *Engine) M1Locked(ctx context.Context, swapID string, leg *model.HTLCDescriptor) error {
	var notifyPayload *M1LockedPayload
	var peerURL string

	err := e.withSwap(swapID, func(swap *model.Swap) error {
		if swap.State != model.StateBTCFunded {
			return Classifyf(InvariantViolation, "m1_locked received in state %s", swap.State)
		}
		leg.Chain = model.ChainM1
		leg.Funded = true
		swap.M1Leg = leg
		swap.State = model.StateM1Locked
		appendAudit(swap, "m1 htlc broadcast")
		e.registerInterestsForState(swap)

		if swap.RoutingMode == model.RoutingPerLeg && swap.LegRole == model.LegRoleLPIn && swap.PeerURL != "" {
			notifyPayload = &M1LockedPayload{
				SwapID:         swap.SwapID,
				M1HTLCOutpoint: leg.FundTxID,
				M1Amount:       leg.Amount,
				M1Expiry:       leg.Timelock,
			}
			peerURL = swap.PeerURL
		}
		return nil
	})
	if err != nil {
		return err
	}

	if notifyPayload != nil && e.notifier != nil {
		if nerr := e.notifier.NotifyM1Locked(ctx, peerURL, *notifyPayload); nerr != nil {
			e.log.Warn("m1-locked notification failed, on-chain state is unaffected", "swap_id", swapID, "error", nerr)
		}
	}
	return nil
}

// BTCClaimed records that the BTC leg was claimed (all three secrets
// revealed in its witness), stores the secrets, and notifies a
// per-leg peer so it can claim its own M1 leg immediately.
func (e *Engine) BTCClaimed(ctx context.Context, swapID string, secrets model.SecretTriple, claimTxID string) error {
	var notifyPayload *BTCClaimedPayload
	var peerURL string

	err := e.withSwap(swapID, func(swap *model.Swap) error {
		if !secrets.Complete() {
			return Classifyf(InvariantViolation, "btc_claimed without all three secrets")
		}
		if err := verifyAgainstHashlocks(swap.Hashlocks, secrets); err != nil {
			return Classify(InvariantViolation, err)
		}
		swap.Secrets = secrets
		if swap.BTCLeg != nil {
			swap.BTCLeg.Claimed = true
			swap.BTCLeg.ClaimTxID = claimTxID
		}
		swap.State = model.StateBTCClaimed
		appendAudit(swap, "btc leg claimed, secrets extracted")

		if swap.RoutingMode == model.RoutingPerLeg && swap.LegRole == model.LegRoleLPOut && swap.PeerURL != "" {
			notifyPayload = &BTCClaimedPayload{
				SwapID:    swap.SwapID,
				SUser:     secrets.SUser,
				SLP1:      secrets.SLP1,
				SLP2:      secrets.SLP2,
				ClaimTxID: claimTxID,
			}
			peerURL = swap.PeerURL
		}
		return nil
	})
	if err != nil {
		return err
	}

	if notifyPayload != nil && e.notifier != nil {
		if nerr := e.notifier.NotifyBTCClaimed(ctx, peerURL, *notifyPayload); nerr != nil {
			e.log.Warn("btc-claimed notification failed, on-chain state is unaffected", "swap_id", swapID, "error", nerr)
		}
	}
	return nil
}

// USDCFunded records that the EVM leg's create() call landed and was
// confirmed, completing the forward path's funding chain.
func (e *Engine) USDCFunded(ctx context.Context, swapID string, leg *model.HTLCDescriptor) error {
	return e.withSwap(swapID, func(swap *model.Swap) error {
		if swap.State != model.StateM1LockedSeen && swap.State != model.StateM1Locked {
			return Classifyf(InvariantViolation, "usdc_funded received in state %s", swap.State)
		}
		leg.Chain = model.ChainEVM
		leg.Funded = true
		swap.EVMLeg = leg
		swap.State = model.StateUSDCLocked
		appendAudit(swap, "usdc htlc created on-chain")
		e.registerInterestsForState(swap)
		return nil
	})
}

// ForceFail aborts a swap that has not yet received any on-chain
// funding, per the rule that a force_fail is refused once a leg has
// funds at risk.
func (e *Engine) ForceFail(ctx context.Context, swapID, reason string) error {
	return e.withSwap(swapID, func(swap *model.Swap) error {
		if swap.State.IsTerminal() {
			return Classifyf(InvariantViolation, "swap %s already terminal (%s)", swapID, swap.State)
		}
		if legFunded(swap.BTCLeg) || legFunded(swap.M1Leg) || legFunded(swap.EVMLeg) {
			return Classifyf(InvariantViolation, "force_fail refused: a leg already has on-chain funding")
		}
		e.finalize(swap, model.StateFailed, "force-failed: "+reason)
		return nil
	})
}

// MarkPeerUnreachable parks a swap in StatePeerUnreachable once its
// notifier has exhausted its retry budget delivering a per-leg webhook
// (m1-locked or btc-claimed). It is wired as notify.Notifier's
// UnreachableHandler, under the swap lock like every other mutation,
// so it never races the command/event that triggered the notification.
// On-chain state is unaffected either way: this only flags the swap
// for operator attention, since each LP's own watcher still reaches
// the correct terminal state without the webhook.
func (e *Engine) MarkPeerUnreachable(swapID string) {
	err := e.withSwap(swapID, func(swap *model.Swap) error {
		if swap.State.IsTerminal() || swap.State == model.StatePeerUnreachable {
			return nil
		}
		swap.State = model.StatePeerUnreachable
		appendAudit(swap, "peer notification exhausted retry budget, parked for operator attention")
		return nil
	})
	if err != nil {
		e.log.Warn("failed to mark swap peer-unreachable", "swap_id", swapID, "error", err)
	}
}

func legFunded(leg *model.HTLCDescriptor) bool {
	return leg != nil && leg.Funded
}

func verifyAgainstHashlocks(h model.HashlockTriple, s model.SecretTriple) error {
	if !htlc.VerifySecret(s.SUser, h.HUser) {
		return fmt.Errorf("s_user does not hash to h_user")
	}
	if !htlc.VerifySecret(s.SLP1, h.HLP1) {
		return fmt.Errorf("s_lp1 does not hash to h_lp1")
	}
	if !htlc.VerifySecret(s.SLP2, h.HLP2) {
		return fmt.Errorf("s_lp2 does not hash to h_lp2")
	}
	return nil
}
