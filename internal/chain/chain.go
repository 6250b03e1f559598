// Package chain provides read-only blockchain data clients for the
// three rails FlowSwap bridges (BTC, M1, and the EVM USDC leg), plus
// the broadcast path each watcher and the engine's claim/refund
// drivers need. No private keys live here; only the LP's hot wallet
// layer signs transactions.
package chain

import (
	"context"
	"errors"
)

// Common errors returned by Client implementations.
var (
	ErrNotFound        = errors.New("chain: not found")
	ErrBroadcastFailed = errors.New("chain: broadcast failed")
	ErrRateLimited     = errors.New("chain: rate limited")
)

// UTXO is an unspent output on a UTXO chain (BTC or M1).
type UTXO struct {
	TxID          string
	Vout          uint32
	Amount        uint64
	ScriptPubKey  string
	Confirmations int64
	BlockHeight   int64
}

// TxStatus is the confirmation state of a transaction.
type TxStatus struct {
	Confirmed     bool
	BlockHash     string
	BlockHeight   int64
	BlockTime     int64
	Confirmations int64
}

// Transaction is a UTXO-chain transaction as reported by a block
// explorer API.
type Transaction struct {
	TxID     string
	Fee      uint64
	LockTime uint32
	Status   TxStatus
	Vin      []TxInput
	Vout     []TxOutput
	Hex      string
}

// TxInput is one input of a UTXO-chain transaction.
type TxInput struct {
	TxID      string
	Vout      uint32
	Witness   []string
	ScriptSig string
	Sequence  uint32
}

// TxOutput is one output of a UTXO-chain transaction.
type TxOutput struct {
	ScriptPubKey string
	Address      string
	Value        uint64
}

// BlockHeader is a UTXO-chain block header.
type BlockHeader struct {
	Hash         string
	Height       int64
	PreviousHash string
	Timestamp    int64
}

// FeeEstimate holds sat/vB fee targets for a UTXO chain.
type FeeEstimate struct {
	FastestFee  uint64
	HalfHourFee uint64
	HourFee     uint64
	EconomyFee  uint64
	MinimumFee  uint64
}

// Receipt is an EVM transaction receipt, trimmed to the fields the
// engine and watchers need.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64 // 1 = success, 0 = reverted
	Logs        []LogEvent
}

// Outspend is whether and how a UTXO output was spent.
type Outspend struct {
	Spent       bool
	SpendingTxID string
	Witness     []string
}

// LogEvent is a decoded EVM log entry paired with its raw form; a
// watcher converts it with ToTypesLog before passing it to
// htlc.DecodeLog.
type LogEvent struct {
	Address     string
	Topics      []string
	Data        []byte
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// Client is the read/broadcast surface every chain watcher and the
// engine's confirmation checks depend on. BTC and M1 share one
// implementation parameterized by base URL; EVM has its own backed by
// ethclient.
type Client interface {
	// GetBlockHeight returns the current chain tip height.
	GetBlockHeight(ctx context.Context) (int64, error)

	// GetAddressUTXOs returns unspent outputs at a UTXO-chain address.
	// Not meaningful for the EVM client (returns ErrNotFound).
	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// GetTransaction returns a UTXO-chain transaction by id.
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// GetReceipt returns an EVM transaction receipt by hash. Not
	// meaningful for UTXO clients (returns ErrNotFound).
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// GetLogs returns EVM logs matching the given contract address and
	// topic0 hashes, between fromBlock and toBlock inclusive. Not
	// meaningful for UTXO clients (returns ErrNotFound).
	GetLogs(ctx context.Context, contractAddress string, topics []string, fromBlock, toBlock int64) ([]LogEvent, error)

	// GetOutspend reports whether a UTXO-chain output has been spent
	// and, if so, by which transaction and with what witness stack —
	// this is how a watcher tells a claim from a refund on the BTC/M1
	// legs, since both spend the same funding outpoint. Not meaningful
	// for the EVM client (returns ErrNotFound).
	GetOutspend(ctx context.Context, txID string, vout uint32) (*Outspend, error)

	// Broadcast submits a raw signed transaction (hex-encoded for UTXO
	// chains, RLP-encoded hex for EVM) and returns its hash/txid.
	Broadcast(ctx context.Context, rawTxHex string) (string, error)

	// GetNonce returns the next account nonce to use for an EVM refund
	// transaction. Not meaningful for UTXO clients (returns ErrNotFound).
	GetNonce(ctx context.Context, address string) (uint64, error)

	// EstimateFee returns current fee-rate guidance. UTXO clients
	// return sat/vB tiers; the EVM client returns only FastestFee,
	// populated with the suggested gas price in wei.
	EstimateFee(ctx context.Context) (*FeeEstimate, error)
}
