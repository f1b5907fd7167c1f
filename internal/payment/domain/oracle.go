package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a decoded token transfer as seen on chain.
type Transfer struct {
	TxHash    string
	From      string
	To        string
	Contract  string
	Amount    decimal.Decimal
	BlockTime time.Time
	// Success is false when the receipt reports a reverted or failed execution.
	Success bool
}

// ChainOracle is read and broadcast access to the chain. Implementations return
// xerr kinds: NotFound for an unknown hash, External for transport failures.
type ChainOracle interface {
	// TransfersTo lists confirmed inbound token transfers to addr at or after since.
	TransfersTo(ctx context.Context, addr string, since time.Time) ([]Transfer, error)
	// TransferByHash fetches the receipt and decodes the token transfer in it.
	TransferByHash(ctx context.Context, txHash string) (*Transfer, error)
	// SendToken signs with privKeyHex and broadcasts a token transfer.
	SendToken(ctx context.Context, privKeyHex, to string, amount decimal.Decimal) (string, error)
	// Balances returns the native (TRX) and token balances of addr.
	Balances(ctx context.Context, addr string) (native, token decimal.Decimal, err error)
	TokenContract() string
	ExplorerURL(txHash string) string
}
