package agent

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic is returned for a phrase that fails the BIP39 checksum.
var ErrInvalidMnemonic = errors.New("invalid BIP39 mnemonic")

// LoadKeypairFile reads a solana-keygen JSON keypair file.
func LoadKeypairFile(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return key, nil
}

// KeyFromMnemonic derives a keypair from a BIP39 mnemonic the way
// solana-keygen does without a derivation path: the first 32 bytes of the
// seed are the ed25519 private seed.
func KeyFromMnemonic(mnemonic, passphrase string) (solana.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive seed: %w", err)
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])), nil
}

// NewMnemonic generates a fresh 24 word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}
