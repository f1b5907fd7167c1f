// Package hdwallet derives payout wallets from a BIP39 mnemonic.
package hdwallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/tyler-smith/go-bip39"
)

// CoinTron is the SLIP-44 coin type for TRON.
const CoinTron uint32 = 195

var ErrCoinType = errors.New("invalid coin type")

type HDWallet struct {
	masterKey *hdkeychain.ExtendedKey
}

func New(mnemonic string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, errors.New("mnemonic cannot be empty")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	// the network params only affect xprv serialization, not the derived keys
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	return &HDWallet{masterKey: master}, nil
}

// DeriveAddress walks m/44'/coin'/0'/0/index and returns the address with its
// hex private key. The key must be sealed before it is stored.
func (w *HDWallet) DeriveAddress(coinType uint32, index uint32) (string, string, error) {
	if coinType != CoinTron {
		return "", "", ErrCoinType
	}
	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,
		coinType + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
		index,
	}
	key := w.masterKey
	var err error
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return "", "", err
		}
	}
	privKey, err := key.ECPrivKey()
	if err != nil {
		return "", "", err
	}
	return TronAddress(privKey), fmt.Sprintf("%x", privKey.Serialize()), nil
}

// TronAddress is the base58check T-address of privKey's public key.
func TronAddress(privKey *btcec.PrivateKey) string {
	return address.PubkeyToAddress(privKey.ToECDSA().PublicKey).String()
}
