package tron

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"google.golang.org/protobuf/proto"
)

// signTransaction signs tx in place and returns its id (sha256 of raw data).
func signTransaction(tx *core.Transaction, privHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	raw, err := proto.Marshal(tx.GetRawData())
	if err != nil {
		return "", fmt.Errorf("marshal raw data: %w", err)
	}
	hash := sha256.Sum256(raw)
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	tx.Signature = [][]byte{sig}
	return hex.EncodeToString(hash[:]), nil
}
