package tron

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"

	"bullrush.com/pkg/xerr"
)

var base58Addr = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)

// ValidateAddress accepts a base58check mainnet style address.
func ValidateAddress(addr string) error {
	if !base58Addr.MatchString(addr) {
		return xerr.New(xerr.RequestParamsError, "invalid Tron address format")
	}
	if _, err := address.Base58ToAddress(addr); err != nil {
		return xerr.New(xerr.RequestParamsError, "invalid Tron address checksum")
	}
	return nil
}

// NormalizeTxHash lowercases a transaction id and drops a 0x prefix, the form
// stored on deposit requests.
func NormalizeTxHash(txHash string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txHash)), "0x")
}

// AddressFromPrivateKey derives the base58 address owning a hex private key.
func AddressFromPrivateKey(privHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return "", xerr.New(xerr.RequestParamsError, "invalid private key")
	}
	return address.PubkeyToAddress(key.PublicKey).String(), nil
}
