package htlc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// evmHTLCABIJSON is the ABI of the external three-hashlock EVM HTLC
// contract. The contract itself is deployed and maintained outside
// this repo; this codec only needs to know its shape to build calldata
// and decode its events.
const evmHTLCABIJSON = `[
  {"type":"function","name":"create","stateMutability":"nonpayable","inputs":[
    {"name":"recipient","type":"address"},
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"hUser","type":"bytes32"},
    {"name":"hLp1","type":"bytes32"},
    {"name":"hLp2","type":"bytes32"},
    {"name":"timelock","type":"uint256"}
  ],"outputs":[{"name":"id","type":"bytes32"}]},
  {"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[
    {"name":"id","type":"bytes32"},
    {"name":"sUser","type":"bytes32"},
    {"name":"sLp1","type":"bytes32"},
    {"name":"sLp2","type":"bytes32"}
  ],"outputs":[]},
  {"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[
    {"name":"id","type":"bytes32"}
  ],"outputs":[]},
  {"type":"event","name":"HTLCCreated","anonymous":false,"inputs":[
    {"name":"id","type":"bytes32","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":false},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"hUser","type":"bytes32","indexed":false},
    {"name":"hLp1","type":"bytes32","indexed":false},
    {"name":"hLp2","type":"bytes32","indexed":false},
    {"name":"timelock","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"HTLCClaimed","anonymous":false,"inputs":[
    {"name":"id","type":"bytes32","indexed":true},
    {"name":"sUser","type":"bytes32","indexed":false},
    {"name":"sLp1","type":"bytes32","indexed":false},
    {"name":"sLp2","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"HTLCRefunded","anonymous":false,"inputs":[
    {"name":"id","type":"bytes32","indexed":true}
  ]}
]`

// EVMABI is the parsed contract ABI, built once at package init.
var EVMABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(evmHTLCABIJSON))
	if err != nil {
		panic(fmt.Sprintf("htlc: parse embedded EVM HTLC ABI: %v", err))
	}
	EVMABI = parsed
}

// CreateParams is the decoded/encoded argument set for create(...).
type CreateParams struct {
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	HUser     [32]byte
	HLP1      [32]byte
	HLP2      [32]byte
	Timelock  *big.Int
}

// EncodeCreate packs calldata for a create(...) call.
func EncodeCreate(p CreateParams) ([]byte, error) {
	return EVMABI.Pack("create", p.Recipient, p.Token, p.Amount, p.HUser, p.HLP1, p.HLP2, p.Timelock)
}

// DecodeCreate unpacks calldata previously produced by EncodeCreate.
// Round-tripping through Encode then Decode must return the original
// fields.
func DecodeCreate(calldata []byte) (CreateParams, error) {
	var p CreateParams
	if len(calldata) < 4 {
		return p, fmt.Errorf("htlc: calldata too short")
	}
	args, err := EVMABI.Methods["create"].Inputs.Unpack(calldata[4:])
	if err != nil {
		return p, fmt.Errorf("htlc: decode create calldata: %w", err)
	}
	p.Recipient = args[0].(common.Address)
	p.Token = args[1].(common.Address)
	p.Amount = args[2].(*big.Int)
	p.HUser = args[3].([32]byte)
	p.HLP1 = args[4].([32]byte)
	p.HLP2 = args[5].([32]byte)
	p.Timelock = args[6].(*big.Int)
	return p, nil
}

// ClaimParams is the decoded/encoded argument set for claim(...).
type ClaimParams struct {
	ID    [32]byte
	SUser [32]byte
	SLP1  [32]byte
	SLP2  [32]byte
}

// EncodeClaim packs calldata for a claim(...) call.
func EncodeClaim(p ClaimParams) ([]byte, error) {
	return EVMABI.Pack("claim", p.ID, p.SUser, p.SLP1, p.SLP2)
}

// EncodeRefund packs calldata for a refund(...) call.
func EncodeRefund(id [32]byte) ([]byte, error) {
	return EVMABI.Pack("refund", id)
}

// HTLCCreatedEvent is the decoded form of the HTLCCreated log.
type HTLCCreatedEvent struct {
	ID        [32]byte
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	HUser     [32]byte
	HLP1      [32]byte
	HLP2      [32]byte
	Timelock  *big.Int
	TxHash    common.Hash
}

// HTLCClaimedEvent is the decoded form of the HTLCClaimed log. This is
// where the engine extracts all three preimages directly from an EVM
// leg, with no witness to parse.
type HTLCClaimedEvent struct {
	ID     [32]byte
	SUser  [32]byte
	SLP1   [32]byte
	SLP2   [32]byte
	TxHash common.Hash
}

// HTLCRefundedEvent is the decoded form of the HTLCRefunded log.
type HTLCRefundedEvent struct {
	ID     [32]byte
	TxHash common.Hash
}

var (
	topicHTLCCreated  = EVMABI.Events["HTLCCreated"].ID
	topicHTLCClaimed  = EVMABI.Events["HTLCClaimed"].ID
	topicHTLCRefunded = EVMABI.Events["HTLCRefunded"].ID
)

// EventTopics returns the three topic0 hashes this codec decodes, for
// use in an eth_getLogs / watch filter.
func EventTopics() []common.Hash {
	return []common.Hash{topicHTLCCreated, topicHTLCClaimed, topicHTLCRefunded}
}

// DecodeLog dispatches a raw log to the matching decoder based on its
// topic0. Returns one of *HTLCCreatedEvent, *HTLCClaimedEvent,
// *HTLCRefundedEvent, or an error if the topic is unrecognized.
func DecodeLog(l types.Log) (interface{}, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("htlc: log has no topics")
	}
	switch l.Topics[0] {
	case topicHTLCCreated:
		return decodeHTLCCreated(l)
	case topicHTLCClaimed:
		return decodeHTLCClaimed(l)
	case topicHTLCRefunded:
		return decodeHTLCRefunded(l)
	default:
		return nil, fmt.Errorf("htlc: unrecognized log topic %s", l.Topics[0])
	}
}

func decodeHTLCCreated(l types.Log) (*HTLCCreatedEvent, error) {
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("htlc: HTLCCreated expects 3 topics, got %d", len(l.Topics))
	}
	ev := &HTLCCreatedEvent{TxHash: l.TxHash}
	ev.ID = l.Topics[1]
	ev.Recipient = common.HexToAddress(l.Topics[2].Hex())

	args, err := EVMABI.Events["HTLCCreated"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("htlc: decode HTLCCreated data: %w", err)
	}
	ev.Token = args[0].(common.Address)
	ev.Amount = args[1].(*big.Int)
	ev.HUser = args[2].([32]byte)
	ev.HLP1 = args[3].([32]byte)
	ev.HLP2 = args[4].([32]byte)
	ev.Timelock = args[5].(*big.Int)
	return ev, nil
}

func decodeHTLCClaimed(l types.Log) (*HTLCClaimedEvent, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("htlc: HTLCClaimed expects 2 topics, got %d", len(l.Topics))
	}
	ev := &HTLCClaimedEvent{TxHash: l.TxHash, ID: l.Topics[1]}

	args, err := EVMABI.Events["HTLCClaimed"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("htlc: decode HTLCClaimed data: %w", err)
	}
	ev.SUser = args[0].([32]byte)
	ev.SLP1 = args[1].([32]byte)
	ev.SLP2 = args[2].([32]byte)
	return ev, nil
}

func decodeHTLCRefunded(l types.Log) (*HTLCRefundedEvent, error) {
	if len(l.Topics) != 2 {
		return nil, fmt.Errorf("htlc: HTLCRefunded expects 2 topics, got %d", len(l.Topics))
	}
	return &HTLCRefundedEvent{TxHash: l.TxHash, ID: l.Topics[1]}, nil
}

// ComputeSelector returns the 4-byte function selector for a method
// name. The watchers do not call it; they only decode confirmed logs.
func ComputeSelector(method string) ([4]byte, error) {
	m, ok := EVMABI.Methods[method]
	if !ok {
		return [4]byte{}, fmt.Errorf("htlc: unknown method %q", method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	return sel, nil
}

// VerifyClaimedSecrets checks a claim event's three revealed
// secrets against a hashlock triple, returning an error naming the
// first mismatching slot. The engine does not call it: it checks
// extracted secrets with its own verifyAgainstHashlocks.
func VerifyClaimedSecrets(ev *HTLCClaimedEvent, hUser, hLP1, hLP2 [32]byte) error {
	if !VerifySecret(ev.SUser, hUser) {
		return fmt.Errorf("htlc: S_user does not hash to H_user")
	}
	if !VerifySecret(ev.SLP1, hLP1) {
		return fmt.Errorf("htlc: S_lp1 does not hash to H_lp1")
	}
	if !VerifySecret(ev.SLP2, hLP2) {
		return fmt.Errorf("htlc: S_lp2 does not hash to H_lp2")
	}
	return nil
}
