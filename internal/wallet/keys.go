package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// hardened child indices for the keys this node needs. BTC and M1 legs
// share one refund key and one claim key (the same index for both
// chains): both use the BTC3S script shape over the same secp256k1
// curve, so splitting them buys nothing. The EVM HTLC contract's
// claim() call isn't keyed to a caller address, so EVM claims reuse
// the EVM refund key rather than deriving a fourth key.
const (
	utxoRefundIndex = hdkeychain.HardenedKeyStart + 0
	evmRefundIndex  = hdkeychain.HardenedKeyStart + 1
	utxoClaimIndex  = hdkeychain.HardenedKeyStart + 2
)

// WalletKeys holds every private key this node's drivers need: the
// BTC/M1 refund key, the EVM refund key, and the BTC/M1 claim key. A
// RefundDriver uses the first two; a ClaimDriver uses the claim key
// for the UTXO legs and reuses the EVM refund key to pay gas on an EVM
// claim call.
type WalletKeys struct {
	utxoRefundKey *btcec.PrivateKey
	evmKey        *ecdsa.PrivateKey
	utxoClaimKey  *btcec.PrivateKey
}

// DeriveWalletKeys derives the UTXO refund, EVM refund, and UTXO claim
// keys from a BIP39 seed via a single level of hardened derivation off
// the master key. There is no multi-account or change-address
// structure here; this node only ever needs exactly these three keys.
func DeriveWalletKeys(seed []byte) (*WalletKeys, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("wallet: new master key: %w", err)
	}

	utxoRefundChild, err := master.Derive(utxoRefundIndex)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive utxo refund key: %w", err)
	}
	utxoRefundECKey, err := utxoRefundChild.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: utxo refund ec key: %w", err)
	}

	evmChild, err := master.Derive(evmRefundIndex)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive evm refund key: %w", err)
	}
	evmECKey, err := evmChild.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: evm refund ec key: %w", err)
	}
	evmKey, err := ethcrypto.ToECDSA(evmECKey.Serialize())
	if err != nil {
		return nil, fmt.Errorf("wallet: convert evm refund key: %w", err)
	}

	utxoClaimChild, err := master.Derive(utxoClaimIndex)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive utxo claim key: %w", err)
	}
	utxoClaimECKey, err := utxoClaimChild.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: utxo claim ec key: %w", err)
	}

	return &WalletKeys{
		utxoRefundKey: utxoRefundECKey,
		evmKey:        evmKey,
		utxoClaimKey:  utxoClaimECKey,
	}, nil
}

// UTXORefundPrivateKey returns the BTC/M1 refund signing key.
func (k *WalletKeys) UTXORefundPrivateKey() *btcec.PrivateKey { return k.utxoRefundKey }

// EVMPrivateKey returns the EVM signing key, used for both refund and
// claim calls against the HTLC contract.
func (k *WalletKeys) EVMPrivateKey() *ecdsa.PrivateKey { return k.evmKey }

// UTXOClaimPrivateKey returns the BTC/M1 claim signing key.
func (k *WalletKeys) UTXOClaimPrivateKey() *btcec.PrivateKey { return k.utxoClaimKey }
