package watcher

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/model"
)

// ScanUTXO is the chain-specific body Loop.Run expects for a UTXO
// chain (BTC or M1 — they share the same Esplora-shaped client and
// therefore the same scan logic, parameterized only by which
// chain.Client instance and reorg depth/tick interval apply). A watch
// key registered with the engine is either the leg's funding address
// (before any funding transaction has been seen) or the funding
// transaction's id (once funded, to watch for its spend). main.go
// passes this straight to NewLoop's Run.
func ScanUTXO(c model.Chain, client chain.Client, cb Callbacks) func(ctx context.Context, fromHeight, tip int64) error {
	return func(ctx context.Context, fromHeight, tip int64) error {
		for key, swapID := range cb.Interests(c) {
			if looksLikeAddress(key) {
				utxos, err := client.GetAddressUTXOs(ctx, key)
				if err != nil {
					return fmt.Errorf("watcher: %s address scan: %w", c, err)
				}
				for _, u := range utxos {
					if u.Confirmations <= 0 {
						continue
					}
					if err := cb.OnFundConfirmed(ctx, swapID, c, u.TxID, u.Confirmations); err != nil {
						return err
					}
				}
				continue
			}

			// key is a funding txid: check both its own confirmation
			// depth and whether its first output has been spent.
			if tx, err := client.GetTransaction(ctx, key); err == nil && tx.Status.Confirmed {
				if err := cb.OnFundConfirmed(ctx, swapID, c, key, tx.Status.Confirmations); err != nil {
					return err
				}
			}

			out, err := client.GetOutspend(ctx, key, 0)
			if err != nil || out == nil || !out.Spent {
				continue
			}
			witness, werr := decodeWitness(out.Witness)
			if werr != nil {
				continue
			}
			kind := model.LegTxRefund
			if len(witness) == 6 {
				kind = model.LegTxClaim
			}
			if err := cb.OnClaimOrRefund(ctx, swapID, c, kind, out.SpendingTxID, witness); err != nil {
				return err
			}
		}
		return nil
	}
}

// looksLikeAddress distinguishes a watch key that names a funding
// address from one that names a 64-hex-character transaction id: any
// key that isn't exactly 64 lowercase-hex characters is treated as an
// address.
func looksLikeAddress(key string) bool {
	if len(key) != 64 {
		return true
	}
	for _, r := range key {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return true
		}
	}
	return false
}

func decodeWitness(hexItems []string) ([][]byte, error) {
	out := make([][]byte, len(hexItems))
	for i, h := range hexItems {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("watcher: decode witness item %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
