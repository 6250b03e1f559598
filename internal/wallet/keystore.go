// Package wallet holds the LP's signing keys: an encrypted BIP39
// mnemonic at rest, three HD-derived keys (UTXO refund, EVM, UTXO
// claim), the RefundDriver that builds, signs, and broadcasts a leg's
// refund transaction when the engine's timeout checker decides one is
// due, and the ClaimDriver that sweeps a leg once all three secrets are
// known. Nothing outside this package ever sees a private key.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
)

const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// EncryptedSeed is an operator's BIP39 mnemonic encrypted at rest with
// an Argon2id-derived AES-256-GCM key, so the keystore file alone is
// useless without the accompanying passphrase.
type EncryptedSeed struct {
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
}

// EncryptMnemonic validates mnemonic and encrypts it under password.
func EncryptMnemonic(mnemonic, password string) (*EncryptedSeed, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("wallet: invalid mnemonic")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("wallet: password must be at least 8 characters")
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(mnemonic), nil)
	return &EncryptedSeed{Ciphertext: ciphertext, Salt: salt, Nonce: nonce}, nil
}

// DecryptMnemonic reverses EncryptMnemonic.
func DecryptMnemonic(enc *EncryptedSeed, password string) (string, error) {
	key := argon2.IDKey([]byte(password), enc.Salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("wallet: decrypt (wrong password?): %w", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wallet: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: new gcm: %w", err)
	}
	return gcm, nil
}

// LoadKeystore reads and decrypts an operator's keystore file, returning
// a BIP39 seed ready for DeriveWalletKeys.
func LoadKeystore(path, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read keystore: %w", err)
	}
	var enc EncryptedSeed
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("wallet: parse keystore: %w", err)
	}
	mnemonic, err := DecryptMnemonic(&enc, password)
	if err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

// SaveKeystore encrypts mnemonic under password and writes it to path.
// Used by the operator-facing keystore-init command, not by the daemon.
func SaveKeystore(path, mnemonic, password string) error {
	enc, err := EncryptMnemonic(mnemonic, password)
	if err != nil {
		return err
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("wallet: marshal keystore: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// NewMnemonic generates a fresh 24-word BIP39 mnemonic (256 bits of
// entropy), for the keystore-init command.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("wallet: generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}
