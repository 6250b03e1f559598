package watcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/htlc"
	"github.com/flowswap/lp-node/internal/model"
)

// ScanEVM fetches HTLC contract logs since the last tick and dispatches
// them by event type. Unlike the UTXO legs, an EVM claim log carries
// all three preimages directly (SecretTriple), so there is no witness
// to parse here.
func ScanEVM(client chain.Client, cb Callbacks) func(ctx context.Context, fromHeight, tip int64) error {
	topics := make([]string, 0, 3)
	for _, t := range htlc.EventTopics() {
		topics = append(topics, t.Hex())
	}

	return func(ctx context.Context, fromHeight, tip int64) error {
		interests := cb.Interests(model.ChainEVM)
		if len(interests) == 0 {
			return nil
		}

		logs, err := client.GetLogs(ctx, "", topics, fromHeight, tip)
		if err != nil {
			return fmt.Errorf("watcher: evm log scan: %w", err)
		}

		for _, l := range logs {
			decoded, err := htlc.DecodeLog(chain.ToTypesLog(l))
			if err != nil {
				continue
			}

			switch ev := decoded.(type) {
			case *htlc.HTLCCreatedEvent:
				swapID, ok := interests[idHex(ev.ID)]
				if !ok {
					continue
				}
				if err := cb.OnFundConfirmed(ctx, swapID, model.ChainEVM, ev.TxHash.Hex(), 1); err != nil {
					return err
				}

			case *htlc.HTLCClaimedEvent:
				swapID, ok := interests[idHex(ev.ID)]
				if !ok {
					continue
				}
				secrets := &model.SecretTriple{
					SUser: ev.SUser, HasUser: true,
					SLP1: ev.SLP1, HasLP1: true,
					SLP2: ev.SLP2, HasLP2: true,
				}
				if err := cb.OnEventLog(ctx, swapID, model.LegTxClaim, ev.TxHash.Hex(), secrets); err != nil {
					return err
				}

			case *htlc.HTLCRefundedEvent:
				swapID, ok := interests[idHex(ev.ID)]
				if !ok {
					continue
				}
				if err := cb.OnEventLog(ctx, swapID, model.LegTxRefund, ev.TxHash.Hex(), nil); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// idHex renders an on-chain HTLC id the same way engine.registerInterest
// stores it in EVMLeg.ContractID, so a decoded log's id can be looked up
// directly against the interest map.
func idHex(id [32]byte) string {
	return common.Hash(id).Hex()
}
