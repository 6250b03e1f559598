package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/engine"
	"github.com/flowswap/lp-node/internal/htlc"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/pkg/helpers"
	"github.com/flowswap/lp-node/pkg/logging"
)

// assumedRefundVBytes is a flat estimate of a single-input,
// single-output P2WSH refund transaction's virtual size, used only to
// size the fee deducted from the refund output. A real fee estimator
// would weigh the actual witness (it varies slightly with signature
// length), but a refund is not fee-sensitive the way a claim race is:
// it only ever broadcasts after the counterparty has already given up
// on claiming, so a few extra satoshis of overpayment is harmless.
const assumedRefundVBytes = 180

// RefundDriverConfig is everything RefundDriver needs beyond the
// signing keys themselves: where to send refunded funds, and how to
// reach each chain.
type RefundDriverConfig struct {
	Clients      map[model.Chain]chain.Client
	UTXOParams   map[model.Chain]*chaincfg.Params
	RefundPayout map[model.Chain]string

	EVMChainID  *big.Int
	EVMContract common.Address
	EVMGasLimit uint64
}

// RefundDriver implements engine.RefundDriver by building, signing,
// and broadcasting the actual refund transaction for a leg, using the
// keys derived by DeriveWalletKeys. Alongside ClaimDriver, it is one of
// only two components in this repo that ever touch a private key.
type RefundDriver struct {
	cfg  RefundDriverConfig
	keys *WalletKeys
	log  *logging.Logger
}

// NewRefundDriver builds a RefundDriver. cfg and keys are retained; keys
// should not be used anywhere else once handed off here.
func NewRefundDriver(cfg RefundDriverConfig, keys *WalletKeys, log *logging.Logger) *RefundDriver {
	if log == nil {
		log = logging.GetDefault()
	}
	return &RefundDriver{cfg: cfg, keys: keys, log: log}
}

var _ engine.RefundDriver = (*RefundDriver)(nil)

// BroadcastRefund builds and broadcasts the refund transaction for the
// given leg of swap, returning the broadcast transaction id.
func (d *RefundDriver) BroadcastRefund(ctx context.Context, swap *model.Swap, c model.Chain) (string, error) {
	leg := swap.Leg(c)
	if leg == nil {
		return "", fmt.Errorf("wallet: swap %s has no %s leg", swap.SwapID, c)
	}

	switch c {
	case model.ChainBTC, model.ChainM1:
		return d.broadcastUTXORefund(ctx, c, leg)
	case model.ChainEVM:
		return d.broadcastEVMRefund(ctx, leg)
	default:
		return "", fmt.Errorf("wallet: unknown chain %s", c)
	}
}

func (d *RefundDriver) broadcastUTXORefund(ctx context.Context, c model.Chain, leg *model.HTLCDescriptor) (string, error) {
	client, ok := d.cfg.Clients[c]
	if !ok {
		return "", fmt.Errorf("wallet: no client configured for chain %s", c)
	}
	params, ok := d.cfg.UTXOParams[c]
	if !ok {
		return "", fmt.Errorf("wallet: no chain params configured for chain %s", c)
	}
	payoutAddr, ok := d.cfg.RefundPayout[c]
	if !ok {
		return "", fmt.Errorf("wallet: no refund payout address configured for chain %s", c)
	}

	scriptBytes, err := helpers.HexToBytes(leg.ScriptHex)
	if err != nil {
		return "", fmt.Errorf("wallet: decode leg script: %w", err)
	}
	data, err := htlc.ParseBTC3SScript(scriptBytes)
	if err != nil {
		return "", fmt.Errorf("wallet: parse leg script: %w", err)
	}

	refundKey := d.keys.UTXORefundPrivateKey()
	refundPub := refundKey.PubKey().SerializeCompressed()
	if !helpers.BytesEqual(refundPub, data.RefundPubKey) {
		return "", fmt.Errorf("wallet: configured refund key does not match leg %s script", c)
	}

	pkScript, err := htlc.P2WSHScriptPubKey(scriptBytes)
	if err != nil {
		return "", fmt.Errorf("wallet: derive pkscript: %w", err)
	}

	payoutScript, err := addressToScript(payoutAddr, params)
	if err != nil {
		return "", fmt.Errorf("wallet: decode payout address: %w", err)
	}

	fee := int64(assumedRefundVBytes)
	if est, err := client.EstimateFee(ctx); err == nil && est.HalfHourFee > 0 {
		fee *= int64(est.HalfHourFee)
	}
	outputValue := int64(leg.Amount) - fee
	if outputValue <= 0 {
		return "", fmt.Errorf("wallet: leg %s amount %d too small to cover refund fee %d", c, leg.Amount, fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = data.Timelock

	fundHash, err := chainhash.NewHashFromStr(leg.FundTxID)
	if err != nil {
		return "", fmt.Errorf("wallet: parse fund txid: %w", err)
	}
	outpoint := wire.NewOutPoint(fundHash, leg.FundVout)
	txIn := wire.NewTxIn(outpoint, nil, nil)
	txIn.Sequence = wire.MaxTxInSequenceNum - 1
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(outputValue, payoutScript))

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(leg.Amount))
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sigHash, err := txscript.CalcWitnessSigHash(scriptBytes, sigHashes, txscript.SigHashAll, tx, 0, int64(leg.Amount))
	if err != nil {
		return "", fmt.Errorf("wallet: calc sighash: %w", err)
	}

	sig := ecdsa.Sign(refundKey, sigHash)
	sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))

	tx.TxIn[0].Witness = htlc.BuildRefundWitness(sigBytes, scriptBytes)

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("wallet: serialize refund tx: %w", err)
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	txID, err := client.Broadcast(ctx, rawHex)
	if err != nil {
		return "", fmt.Errorf("wallet: broadcast refund tx: %w", err)
	}
	d.log.Info("broadcast utxo refund", "chain", c, "tx_id", txID)
	return txID, nil
}

func (d *RefundDriver) broadcastEVMRefund(ctx context.Context, leg *model.HTLCDescriptor) (string, error) {
	client, ok := d.cfg.Clients[model.ChainEVM]
	if !ok {
		return "", fmt.Errorf("wallet: no client configured for chain evm")
	}

	idBytes, err := helpers.HexToBytes(leg.ContractID)
	if err != nil {
		return "", fmt.Errorf("wallet: decode contract id: %w", err)
	}
	if len(idBytes) != 32 {
		return "", fmt.Errorf("wallet: contract id must be 32 bytes, got %d", len(idBytes))
	}
	var id [32]byte
	copy(id[:], idBytes)

	calldata, err := htlc.EncodeRefund(id)
	if err != nil {
		return "", fmt.Errorf("wallet: encode refund calldata: %w", err)
	}

	from := ethcrypto.PubkeyToAddress(d.keys.EVMPrivateKey().PublicKey)
	nonce, err := client.GetNonce(ctx, from.Hex())
	if err != nil {
		return "", fmt.Errorf("wallet: get nonce: %w", err)
	}
	est, err := client.EstimateFee(ctx)
	if err != nil {
		return "", fmt.Errorf("wallet: estimate gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &d.cfg.EVMContract,
		Value:    big.NewInt(0),
		Gas:      d.cfg.EVMGasLimit,
		GasPrice: new(big.Int).SetUint64(est.FastestFee),
		Data:     calldata,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(d.cfg.EVMChainID), d.keys.EVMPrivateKey())
	if err != nil {
		return "", fmt.Errorf("wallet: sign refund tx: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("wallet: marshal refund tx: %w", err)
	}

	txID, err := client.Broadcast(ctx, helpers.BytesToHex(raw))
	if err != nil {
		return "", fmt.Errorf("wallet: broadcast refund tx: %w", err)
	}
	d.log.Info("broadcast evm refund", "tx_id", txID)
	return txID, nil
}

func addressToScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return txscript.PayToAddrScript(decoded)
}
