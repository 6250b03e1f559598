package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient implements Client against an EVM RPC endpoint via
// ethclient.Client, grounded on the Dial/FilterLogs/SendTransaction/
// TransactionReceipt calls Klingon's contracts/htlc.Client wraps, but
// talking raw JSON-RPC + the hand-rolled htlc.EVMABI codec instead of
// abigen bindings, since the contract here is an external
// collaborator, not one this repo generates bindings for.
type EVMClient struct {
	rpc             *ethclient.Client
	contractAddress common.Address
}

// DialEVM connects to an EVM JSON-RPC endpoint and targets the given
// HTLC contract address for log filtering.
func DialEVM(ctx context.Context, rpcURL string, contractAddress common.Address) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial evm rpc: %w", err)
	}
	return &EVMClient{rpc: rpc, contractAddress: contractAddress}, nil
}

var _ Client = (*EVMClient)(nil)

func (c *EVMClient) GetBlockHeight(ctx context.Context) (int64, error) {
	height, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return int64(height), nil
}

func (c *EVMClient) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return nil, fmt.Errorf("chain: GetAddressUTXOs: %w", ErrNotFound)
}

func (c *EVMClient) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	return nil, fmt.Errorf("chain: GetTransaction: %w", ErrNotFound)
}

func (c *EVMClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.rpc.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("chain: transaction receipt: %w", err)
	}

	logs := make([]LogEvent, len(receipt.Logs))
	for i, l := range receipt.Logs {
		logs[i] = toLogEvent(l)
	}

	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      receipt.Status,
		Logs:        logs,
	}, nil
}

func (c *EVMClient) GetOutspend(ctx context.Context, txID string, vout uint32) (*Outspend, error) {
	return nil, fmt.Errorf("chain: GetOutspend: %w", ErrNotFound)
}

func (c *EVMClient) GetLogs(ctx context.Context, contractAddress string, topics []string, fromBlock, toBlock int64) ([]LogEvent, error) {
	addr := c.contractAddress
	if contractAddress != "" {
		addr = common.HexToAddress(contractAddress)
	}

	topicHashes := make([]common.Hash, len(topics))
	for i, t := range topics {
		topicHashes[i] = common.HexToHash(t)
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{topicHashes},
	}

	raw, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs: %w", err)
	}

	logs := make([]LogEvent, len(raw))
	for i, l := range raw {
		logs[i] = toLogEvent(l)
	}
	return logs, nil
}

func toLogEvent(l types.Log) LogEvent {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t.Hex()
	}
	return LogEvent{
		Address:     l.Address.Hex(),
		Topics:      topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
	}
}

// ToTypesLog converts a LogEvent back into the go-ethereum type
// htlc.DecodeLog expects, for callers that received a LogEvent off the
// wire (e.g. from a resumed watcher cursor) rather than directly from
// FilterLogs.
func ToTypesLog(l LogEvent) types.Log {
	topics := make([]common.Hash, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = common.HexToHash(t)
	}
	return types.Log{
		Address:     common.HexToAddress(l.Address),
		Topics:      topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      common.HexToHash(l.TxHash),
		Index:       l.LogIndex,
	}
}

func (c *EVMClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	raw := strings.TrimPrefix(rawTxHex, "0x")
	data, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return "", fmt.Errorf("%w: decode rlp: %v", ErrBroadcastFailed, err)
	}

	if err := c.rpc.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	return tx.Hash().Hex(), nil
}

func (c *EVMClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: pending nonce: %w", err)
	}
	return nonce, nil
}

func (c *EVMClient) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	return &FeeEstimate{FastestFee: gasPrice.Uint64()}, nil
}

// erc20BalanceOfSelector is the 4-byte selector for balanceOf(address),
// computed once so BalanceOfERC20 never needs an ABI dependency just
// to call the one ERC20 view method the inventory balance source uses.
var erc20BalanceOfSelector = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]

// BalanceOfERC20 calls token.balanceOf(owner) via eth_call, for the
// inventory layer's USDC balance refresh. A full ERC20 ABI binding
// would be overkill for one read-only method.
func (c *EVMClient) BalanceOfERC20(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	calldata := make([]byte, 0, 36)
	calldata = append(calldata, erc20BalanceOfSelector...)
	calldata = append(calldata, common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: erc20 balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.rpc.Close()
}
