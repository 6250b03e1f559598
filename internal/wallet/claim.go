package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
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

// assumedClaimVBytes is a flat estimate of a single-input,
// single-output P2WSH claim transaction's virtual size. The claim
// witness carries the sig plus all three secrets, wider than a
// refund's sig-only witness, so the constant is larger than
// assumedRefundVBytes for the same reason that one is flat: a
// self-claim only ever broadcasts once the secrets are already known
// good, so a few extra satoshis of overpayment is harmless.
const assumedClaimVBytes = 260

// ClaimDriverConfig is everything ClaimDriver needs beyond the signing
// keys: where to sweep claimed funds, and how to reach each chain.
type ClaimDriverConfig struct {
	Clients    map[model.Chain]chain.Client
	UTXOParams map[model.Chain]*chaincfg.Params
	Payout     map[model.Chain]string

	EVMChainID  *big.Int
	EVMContract common.Address
	EVMGasLimit uint64
}

// ClaimDriver implements engine.ClaimDriver: it mirrors RefundDriver's
// split between deciding when to act (the engine) and building/signing
// the transaction (here), but walks the claim branch of a leg's HTLC
// script instead of the refund branch, using the three now-known
// secrets instead of waiting on a timelock.
type ClaimDriver struct {
	cfg  ClaimDriverConfig
	keys *WalletKeys
	log  *logging.Logger
}

// NewClaimDriver builds a ClaimDriver. cfg and keys are retained; keys
// should not be used anywhere else once handed off here.
func NewClaimDriver(cfg ClaimDriverConfig, keys *WalletKeys, log *logging.Logger) *ClaimDriver {
	if log == nil {
		log = logging.GetDefault()
	}
	return &ClaimDriver{cfg: cfg, keys: keys, log: log}
}

var _ engine.ClaimDriver = (*ClaimDriver)(nil)

// BroadcastClaim builds and broadcasts the claim transaction sweeping
// the given leg of swap to this node's own payout address, using the
// now-known secrets.
func (d *ClaimDriver) BroadcastClaim(ctx context.Context, swap *model.Swap, c model.Chain, secrets model.SecretTriple) (string, error) {
	if !secrets.Complete() {
		return "", fmt.Errorf("wallet: claim requested before all three secrets are known")
	}
	leg := swap.Leg(c)
	if leg == nil {
		return "", fmt.Errorf("wallet: swap %s has no %s leg", swap.SwapID, c)
	}

	switch c {
	case model.ChainBTC, model.ChainM1:
		return d.broadcastUTXOClaim(ctx, c, leg, secrets)
	case model.ChainEVM:
		return d.broadcastEVMClaim(ctx, leg, secrets)
	default:
		return "", fmt.Errorf("wallet: unknown chain %s", c)
	}
}

func (d *ClaimDriver) broadcastUTXOClaim(ctx context.Context, c model.Chain, leg *model.HTLCDescriptor, secrets model.SecretTriple) (string, error) {
	client, ok := d.cfg.Clients[c]
	if !ok {
		return "", fmt.Errorf("wallet: no client configured for chain %s", c)
	}
	params, ok := d.cfg.UTXOParams[c]
	if !ok {
		return "", fmt.Errorf("wallet: no chain params configured for chain %s", c)
	}
	payoutAddr, ok := d.cfg.Payout[c]
	if !ok {
		return "", fmt.Errorf("wallet: no payout address configured for chain %s", c)
	}

	scriptBytes, err := helpers.HexToBytes(leg.ScriptHex)
	if err != nil {
		return "", fmt.Errorf("wallet: decode leg script: %w", err)
	}
	data, err := htlc.ParseBTC3SScript(scriptBytes)
	if err != nil {
		return "", fmt.Errorf("wallet: parse leg script: %w", err)
	}

	claimKey := d.keys.UTXOClaimPrivateKey()
	claimPub := claimKey.PubKey().SerializeCompressed()
	if !helpers.BytesEqual(claimPub, data.ClaimPubKey) {
		return "", fmt.Errorf("wallet: configured claim key does not match leg %s script", c)
	}

	pkScript, err := htlc.P2WSHScriptPubKey(scriptBytes)
	if err != nil {
		return "", fmt.Errorf("wallet: derive pkscript: %w", err)
	}

	payoutScript, err := addressToScript(payoutAddr, params)
	if err != nil {
		return "", fmt.Errorf("wallet: decode payout address: %w", err)
	}

	fee := int64(assumedClaimVBytes)
	if est, err := client.EstimateFee(ctx); err == nil && est.HalfHourFee > 0 {
		fee *= int64(est.HalfHourFee)
	}
	outputValue := int64(leg.Amount) - fee
	if outputValue <= 0 {
		return "", fmt.Errorf("wallet: leg %s amount %d too small to cover claim fee %d", c, leg.Amount, fee)
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	fundHash, err := chainhash.NewHashFromStr(leg.FundTxID)
	if err != nil {
		return "", fmt.Errorf("wallet: parse fund txid: %w", err)
	}
	outpoint := wire.NewOutPoint(fundHash, leg.FundVout)
	tx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(outputValue, payoutScript))

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(leg.Amount))
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sigHash, err := txscript.CalcWitnessSigHash(scriptBytes, sigHashes, txscript.SigHashAll, tx, 0, int64(leg.Amount))
	if err != nil {
		return "", fmt.Errorf("wallet: calc sighash: %w", err)
	}

	sig := ecdsa.Sign(claimKey, sigHash)
	sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))

	tx.TxIn[0].Witness = htlc.BuildClaimWitness(sigBytes, secrets.SUser, secrets.SLP1, secrets.SLP2, scriptBytes)

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("wallet: serialize claim tx: %w", err)
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	txID, err := client.Broadcast(ctx, rawHex)
	if err != nil {
		return "", fmt.Errorf("wallet: broadcast claim tx: %w", err)
	}
	d.log.Info("broadcast utxo claim", "chain", c, "tx_id", txID)
	return txID, nil
}

func (d *ClaimDriver) broadcastEVMClaim(ctx context.Context, leg *model.HTLCDescriptor, secrets model.SecretTriple) (string, error) {
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

	calldata, err := htlc.EncodeClaim(htlc.ClaimParams{
		ID:    id,
		SUser: secrets.SUser,
		SLP1:  secrets.SLP1,
		SLP2:  secrets.SLP2,
	})
	if err != nil {
		return "", fmt.Errorf("wallet: encode claim calldata: %w", err)
	}

	// The HTLC contract pays out to the recipient recorded at create()
	// time, not to msg.sender, so this key only needs to be a valid
	// account to pay gas — the same one used for EVM refunds.
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
		return "", fmt.Errorf("wallet: sign claim tx: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("wallet: marshal claim tx: %w", err)
	}

	txID, err := client.Broadcast(ctx, helpers.BytesToHex(raw))
	if err != nil {
		return "", fmt.Errorf("wallet: broadcast claim tx: %w", err)
	}
	d.log.Info("broadcast evm claim", "tx_id", txID)
	return txID, nil
}
