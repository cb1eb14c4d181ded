package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMnemonicRoundTripsThroughSignerFromMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)

	key1, err := SignerFromMnemonic(mnemonic)
	require.NoError(t, err)
	key2, err := SignerFromMnemonic(mnemonic)
	require.NoError(t, err)
	require.Equal(t, key1.D, key2.D, "the same mnemonic must always derive the same key")
}

func TestSignerFromMnemonicRejectsInvalidPhrase(t *testing.T) {
	_, err := SignerFromMnemonic("not a valid bip-39 mnemonic at all")
	require.Error(t, err)
}

func TestSignerFromMnemonicFileReadsAndTrims(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mnemonic.txt")
	require.NoError(t, os.WriteFile(path, []byte(mnemonic+"\n"), 0o600))

	key, err := SignerFromMnemonicFile(path)
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestSignerFromMnemonicFileMissingFile(t *testing.T) {
	_, err := SignerFromMnemonicFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
