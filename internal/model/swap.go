// Package model defines the shared data types for a FlowSwap swap: the
// three-secret hashlock triple, per-chain HTLC descriptors, the swap
// record itself, and the inventory reservations it holds.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Asset identifies one of the three assets FlowSwap moves between.
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetM1   Asset = "M1"
	AssetUSDC Asset = "USDC"
)

// Direction is the outer-chain leg pairing of a swap.
type Direction string

const (
	DirectionForward Direction = "forward" // BTC -> USDC
	DirectionReverse Direction = "reverse" // USDC -> BTC
)

// RoutingMode distinguishes a single-LP swap from a per-leg (two
// cooperating LPs) swap.
type RoutingMode string

const (
	RoutingSingleLP RoutingMode = "single_lp"
	RoutingPerLeg   RoutingMode = "per_leg"
)

// LegRole identifies which half of a per-leg route this node plays.
type LegRole string

const (
	LegRoleNone  LegRole = ""
	LegRoleLPIn  LegRole = "lp_in"
	LegRoleLPOut LegRole = "lp_out"
)

// State is a node in the swap state machine. internal/engine/state.go
// documents the full transition table.
type State string

const (
	StateInit                State = "init"
	StateAwaitingBTC         State = "awaiting_btc"
	StateBTCFundingSeen      State = "btc_funding_seen"
	StateBTCFunded           State = "btc_funded"
	StateM1Locked            State = "m1_locked"
	StateM1LockedSeen        State = "m1_locked_seen"
	StateUSDCLocked          State = "usdc_locked"
	StateUSDCClaimedByUser   State = "usdc_claimed_by_user"
	StateM1SelfClaimed       State = "m1_self_claimed"
	StateM1ClaimedFromLPIn   State = "m1_claimed_from_lp_in"
	StateBTCClaimed          State = "btc_claimed"
	StateAwaitingUSDC        State = "awaiting_usdc" // reverse direction mirror of awaiting_btc
	StatePeerUnreachable     State = "peer_unreachable"
	StateBTCRefundUnrecov    State = "btc_refund_unrecoverable"
	StateCompleted           State = "completed"
	StateRefunded            State = "refunded"
	StateFailed              State = "failed"
)

// IsTerminal reports whether a state is one of the three terminal states.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateRefunded, StateFailed:
		return true
	default:
		return false
	}
}

// IsWarning reports whether a state is a non-terminal operator warning
// state the swap can still progress out of on-chain.
func (s State) IsWarning() bool {
	return s == StatePeerUnreachable || s == StateBTCRefundUnrecov
}

// Chain identifies one of the three rails an HTLC descriptor lives on.
type Chain string

const (
	ChainBTC Chain = "btc"
	ChainM1  Chain = "m1"
	ChainEVM Chain = "evm"
)

// LegTxKind distinguishes which half of a leg's lifecycle a watcher
// observation belongs to. Shared between internal/watcher (which
// raises events) and internal/engine (which consumes them) so neither
// package needs to import the other's event types.
type LegTxKind int

const (
	LegTxFund LegTxKind = iota
	LegTxClaim
	LegTxRefund
)

// HashlockTriple is the (H_user, H_lp1, H_lp2) set that guards a swap's
// claim path. All three must be distinct 32-byte SHA-256 digests.
type HashlockTriple struct {
	HUser [32]byte `json:"h_user"`
	HLP1  [32]byte `json:"h_lp1"`
	HLP2  [32]byte `json:"h_lp2"`
}

// Distinct reports whether all three hashlocks differ pairwise.
func (h HashlockTriple) Distinct() bool {
	return h.HUser != h.HLP1 && h.HUser != h.HLP2 && h.HLP1 != h.HLP2
}

// SecretTriple holds the preimages as they are revealed. Zero value
// means "not yet known" for a given slot; callers must not treat an
// all-zero secret as valid (GenerateSecret never returns one in
// practice, but a freshly zeroed struct must still read as "unknown").
type SecretTriple struct {
	SUser    [32]byte `json:"s_user,omitempty"`
	SLP1     [32]byte `json:"s_lp1,omitempty"`
	SLP2     [32]byte `json:"s_lp2,omitempty"`
	HasUser  bool     `json:"has_user"`
	HasLP1   bool     `json:"has_lp1"`
	HasLP2   bool     `json:"has_lp2"`
}

// Complete reports whether all three preimages are known.
func (s SecretTriple) Complete() bool {
	return s.HasUser && s.HasLP1 && s.HasLP2
}

// HTLCDescriptor is the per-chain leg of a swap: funding address or
// contract id, amount, timelock, and the evidence (txids / receipts)
// collected as the leg progresses.
type HTLCDescriptor struct {
	Chain Chain `json:"chain"`

	// Address (BTC/M1 P2WSH) or contract id (EVM), whichever applies.
	Address    string `json:"address,omitempty"`
	ContractID string `json:"contract_id,omitempty"`

	// ScriptHex is the raw BTC3S witness script for a BTC/M1 leg,
	// hex-encoded; nil for EVM. Whoever builds or receives the leg
	// already has this script (it is what the funding address pays
	// into), so it is attached here rather than re-derived, letting a
	// refund driver recover the timelock and refund pubkey without a
	// second round trip.
	ScriptHex string `json:"script_hex,omitempty"`

	Amount    uint64 `json:"amount"`
	Timelock  uint64 `json:"timelock"` // block height (BTC/M1) or unix seconds (EVM)
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`

	Funded   bool `json:"funded"`
	Claimed  bool `json:"claimed"`
	Refunded bool `json:"refunded"`

	FundTxID   string `json:"fund_txid,omitempty"`
	FundVout   uint32 `json:"fund_vout"`
	ClaimTxID  string `json:"claim_txid,omitempty"`
	RefundTxID string `json:"refund_txid,omitempty"`

	FundConfirmations int64 `json:"fund_confirmations"`
}

// AuditEvent is one entry in a swap's append-only timeline.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
	Note      string    `json:"note"`
}

// Reservation is an inventory claim a swap holds against a wallet
// balance for one asset.
type Reservation struct {
	Asset  Asset  `json:"asset"`
	Amount uint64 `json:"amount"`
	SwapID string `json:"swap_id"`
}

// Swap is the canonical unit of the FlowSwap engine.
type Swap struct {
	SwapID      string      `json:"swap_id"`
	Direction   Direction   `json:"direction"`
	RoutingMode RoutingMode `json:"routing_mode"`
	LegRole     LegRole     `json:"leg_role,omitempty"`
	PeerURL     string      `json:"peer_url,omitempty"`

	FromAsset  Asset  `json:"from_asset"`
	ToAsset    Asset  `json:"to_asset"`
	FromAmount uint64 `json:"from_amount"`
	ToAmount   uint64 `json:"to_amount"`

	Hashlocks HashlockTriple `json:"hashlocks"`
	Secrets   SecretTriple   `json:"secrets"`

	BTCLeg *HTLCDescriptor `json:"btc_leg,omitempty"`
	M1Leg  *HTLCDescriptor `json:"m1_leg,omitempty"`
	EVMLeg *HTLCDescriptor `json:"evm_leg,omitempty"`

	State    State        `json:"state"`
	Timeline []AuditEvent `json:"timeline"`

	UserRefundAddress string `json:"user_refund_address,omitempty"`
	UserPayoutAddress string `json:"user_payout_address,omitempty"`

	Reservations []Reservation `json:"reservations,omitempty"`

	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
	TerminalAt *int64 `json:"terminal_at,omitempty"`
}

// NewSwapID mints an opaque swap identifier: "fs_" followed by 32 hex
// characters of CSPRNG entropy (128 bits), per the hashlock-containment
// invariant that LP-minted secrets are never derived from a predictable
// source.
func NewSwapID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("model: generate swap id: %w", err)
	}
	return "fs_" + hex.EncodeToString(buf), nil
}

// Leg returns the descriptor for the given chain, or nil if that leg
// hasn't been created yet.
func (s *Swap) Leg(c Chain) *HTLCDescriptor {
	switch c {
	case ChainBTC:
		return s.BTCLeg
	case ChainM1:
		return s.M1Leg
	case ChainEVM:
		return s.EVMLeg
	default:
		return nil
	}
}

// SetLeg installs a descriptor for the given chain.
func (s *Swap) SetLeg(c Chain, d *HTLCDescriptor) {
	switch c {
	case ChainBTC:
		s.BTCLeg = d
	case ChainM1:
		s.M1Leg = d
	case ChainEVM:
		s.EVMLeg = d
	}
}

// Append adds an audit entry to the swap's timeline and bumps
// UpdatedAt. Callers must hold the swap's per-swap lock.
func (s *Swap) Append(id string, now time.Time, note string) {
	s.Timeline = append(s.Timeline, AuditEvent{
		ID:        id,
		Timestamp: now,
		State:     s.State,
		Note:      note,
	})
	s.UpdatedAt = now.Unix()
}
