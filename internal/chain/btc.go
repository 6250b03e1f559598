package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UTXOClient implements Client against a mempool.space-compatible
// Esplora REST API. It serves both the BTC leg and the M1 leg — M1's
// settlement layer exposes the same API shape against its own
// explorer, so one implementation covers both with a different
// baseURL.
type UTXOClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUTXOClient builds a client against an Esplora/mempool.space-style
// base URL, e.g. "https://mempool.space/api" for BTC or an operator's
// own M1 explorer URL.
func NewUTXOClient(baseURL string) *UTXOClient {
	return &UTXOClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Client = (*UTXOClient)(nil)

func (c *UTXOClient) GetBlockHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	var height int64
	if err := json.Unmarshal(body, &height); err != nil {
		return 0, fmt.Errorf("chain: decode block height: %w", err)
	}
	return height, nil
}

func (c *UTXOClient) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	body, err := c.get(ctx, "/address/"+address+"/utxo")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("chain: decode utxos: %w", err)
	}

	currentHeight, err := c.GetBlockHeight(ctx)
	if err != nil {
		currentHeight = 0
	}

	utxos := make([]UTXO, len(raw))
	for i, u := range raw {
		var confirmations int64
		if u.Status.Confirmed && u.Status.BlockHeight > 0 && currentHeight > 0 {
			confirmations = currentHeight - u.Status.BlockHeight + 1
		} else if u.Status.Confirmed {
			confirmations = 1
		}
		utxos[i] = UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        u.Value,
			Confirmations: confirmations,
			BlockHeight:   u.Status.BlockHeight,
		}
	}
	return utxos, nil
}

type esploraTx struct {
	TxID     string `json:"txid"`
	LockTime uint32 `json:"locktime"`
	Fee      uint64 `json:"fee"`
	Hex      string `json:"hex,omitempty"`
	Status   struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHash   string `json:"block_hash"`
		BlockHeight int64  `json:"block_height"`
		BlockTime   int64  `json:"block_time"`
	} `json:"status"`
	Vin []struct {
		TxID     string   `json:"txid"`
		Vout     uint32   `json:"vout"`
		Witness  []string `json:"witness"`
		Sequence uint32   `json:"sequence"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKey     string `json:"scriptpubkey"`
		ScriptPubKeyAddr string `json:"scriptpubkey_address"`
		Value            uint64 `json:"value"`
	} `json:"vout"`
}

func (c *UTXOClient) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	body, err := c.get(ctx, "/tx/"+txID)
	if err != nil {
		return nil, err
	}
	var raw esploraTx
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("chain: decode transaction: %w", err)
	}

	tx := &Transaction{
		TxID:     raw.TxID,
		Fee:      raw.Fee,
		LockTime: raw.LockTime,
		Status: TxStatus{
			Confirmed:   raw.Status.Confirmed,
			BlockHash:   raw.Status.BlockHash,
			BlockHeight: raw.Status.BlockHeight,
			BlockTime:   raw.Status.BlockTime,
		},
		Vin:  make([]TxInput, len(raw.Vin)),
		Vout: make([]TxOutput, len(raw.Vout)),
	}
	for i, v := range raw.Vin {
		tx.Vin[i] = TxInput{TxID: v.TxID, Vout: v.Vout, Witness: v.Witness, Sequence: v.Sequence}
	}
	for i, v := range raw.Vout {
		tx.Vout[i] = TxOutput{ScriptPubKey: v.ScriptPubKey, Address: v.ScriptPubKeyAddr, Value: v.Value}
	}

	if tx.Status.Confirmed && tx.Status.BlockHeight > 0 {
		if height, err := c.GetBlockHeight(ctx); err == nil && height >= tx.Status.BlockHeight {
			tx.Status.Confirmations = height - tx.Status.BlockHeight + 1
		}
	}

	hexBody, err := c.get(ctx, "/tx/"+txID+"/hex")
	if err == nil {
		tx.Hex = strings.TrimSpace(string(hexBody))
	}

	return tx, nil
}

// GetOutspend hits Esplora's /tx/{txid}/outspend/{vout}, which reports
// whether an output has been spent and, if so, by which transaction
// and with what witness.
func (c *UTXOClient) GetOutspend(ctx context.Context, txID string, vout uint32) (*Outspend, error) {
	body, err := c.get(ctx, fmt.Sprintf("/tx/%s/outspend/%d", txID, vout))
	if err != nil {
		return nil, err
	}
	var raw struct {
		Spent   bool     `json:"spent"`
		TxID    string   `json:"txid"`
		Witness []string `json:"witness"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("chain: decode outspend: %w", err)
	}
	return &Outspend{Spent: raw.Spent, SpendingTxID: raw.TxID, Witness: raw.Witness}, nil
}

func (c *UTXOClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	return nil, fmt.Errorf("chain: GetReceipt: %w", ErrNotFound)
}

func (c *UTXOClient) GetLogs(ctx context.Context, contractAddress string, topics []string, fromBlock, toBlock int64) ([]LogEvent, error) {
	return nil, fmt.Errorf("chain: GetLogs: %w", ErrNotFound)
}

func (c *UTXOClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrBroadcastFailed, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *UTXOClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	return 0, fmt.Errorf("chain: GetNonce: %w", ErrNotFound)
}

func (c *UTXOClient) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	body, err := c.get(ctx, "/v1/fees/recommended")
	if err != nil {
		return nil, err
	}
	var raw map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("chain: decode fee estimate: %w", err)
	}
	return &FeeEstimate{
		FastestFee:  uint64(raw["fastestFee"]),
		HalfHourFee: uint64(raw["halfHourFee"]),
		HourFee:     uint64(raw["hourFee"]),
		EconomyFee:  uint64(raw["economyFee"]),
		MinimumFee:  uint64(raw["minimumFee"]),
	}, nil
}

func (c *UTXOClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chain: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
