package hdwallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mnemonic = "test test test test test test test test test test test junk"

func TestHDWallet_DeriveAddress(t *testing.T) {
	wallet, err := New(mnemonic)
	require.NoError(t, err)

	addr, privHex, err := wallet.DeriveAddress(CoinTron, 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "T"))
	assert.Len(t, addr, 34)
	assert.Len(t, privHex, 64)

	// the key must control the address
	pk, err := crypto.HexToECDSA(privHex)
	require.NoError(t, err)
	assert.Equal(t, addr, address.PubkeyToAddress(pk.PublicKey).String())

	again, err := New(mnemonic)
	require.NoError(t, err)
	addr2, privHex2, err := again.DeriveAddress(CoinTron, 7)
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)
	assert.Equal(t, privHex, privHex2)

	other, _, err := wallet.DeriveAddress(CoinTron, 8)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)
}

func TestHDWallet_Rejects(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
	_, err = New("not a real mnemonic")
	assert.Error(t, err)

	wallet, err := New(mnemonic)
	require.NoError(t, err)
	_, _, err = wallet.DeriveAddress(60, 0)
	assert.ErrorIs(t, err, ErrCoinType)
}
