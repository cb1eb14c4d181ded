package utils

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// NewMnemonic generates a fresh 24-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// SignerFromMnemonic derives the bundler's signing key from a BIP-39
// mnemonic. The derivation reduces the mnemonic's 64-byte seed to a valid
// secp256k1 scalar via Keccak256 rather than a full BIP-32 path walk,
// since the bundler only ever needs the one signing key this mnemonic
// protects.
func SignerFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("mnemonic is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")
	scalar := gethcrypto.Keccak256(seed)
	return gethcrypto.ToECDSA(scalar)
}

// SignerFromMnemonicFile reads path and derives the signing key from its
// contents.
func SignerFromMnemonicFile(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mnemonic file: %w", err)
	}
	return SignerFromMnemonic(string(data))
}
