package tron

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

const tokenDecimals = 6

// transfer(address,uint256)
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

var errNotTransfer = errors.New("not a token transfer call")

// decodeTransfer reads recipient and raw amount out of transfer calldata.
// Layout: selector(4) | to word(32) | amount word(32).
func decodeTransfer(data []byte) (string, *big.Int, error) {
	if len(data) < 68 || !bytes.Equal(data[:4], transferSelector) {
		return "", nil, errNotTransfer
	}
	raw := make([]byte, 0, 21)
	raw = append(raw, address.TronBytePrefix)
	raw = append(raw, data[16:36]...)
	amount := new(big.Int).SetBytes(data[36:68])
	return address.Address(raw).String(), amount, nil
}

// transferParams builds the JSON argument list TriggerContract expects.
func transferParams(to string, amount *big.Int) (string, error) {
	params := []map[string]string{
		{"address": to},
		{"uint256": amount.String()},
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// toUnits truncates anything below the token's smallest unit.
func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(tokenDecimals).Truncate(0).BigInt()
}
