package tron

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/ratelimit"
	"bullrush.com/pkg/xerr"
)

const transferMethod = "transfer(address,uint256)"

// node is the subset of the gRPC full-node client the oracle uses.
type node interface {
	GetTransactionInfoByID(id string) (*core.TransactionInfo, error)
	GetTransactionByID(id string) (*core.Transaction, error)
	TriggerContract(from, contractAddress, method, jsonString string, feeLimit, tAmount int64, tTokenID string, tTokenAmount int64) (*api.TransactionExtention, error)
	Broadcast(tx *core.Transaction) (*api.Return, error)
	GetAccount(addr string) (*core.Account, error)
	TRC20ContractBalance(addr, contractAddress string) (*big.Int, error)
	Stop()
}

// Oracle implements domain.ChainOracle: receipts and broadcast over gRPC,
// address history over TronGrid.
type Oracle struct {
	cfg      Config
	node     node
	grid     *gridClient
	breakers *ratelimit.Manager
	lookups  singleflight.Group
}

var _ domain.ChainOracle = (*Oracle)(nil)

// New dials the full node for cfg's network.
func New(cfg Config) (*Oracle, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	c := client.NewGrpcClientWithTimeout(cfg.GrpcURL, cfg.Timeout)
	if cfg.APIKey != "" {
		if err := c.SetAPIKey(cfg.APIKey); err != nil {
			return nil, fmt.Errorf("set tron api key: %w", err)
		}
	}
	if err := c.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("connect tron node %s: %w", cfg.GrpcURL, err)
	}
	logger.Info(context.Background(), "🔗 tron oracle connected",
		zap.String("network", cfg.Network),
		zap.String("grpc", cfg.GrpcURL),
		zap.String("usdt", cfg.USDTContract),
	)
	return newOracle(cfg, c), nil
}

func newOracle(cfg Config, n node) *Oracle {
	return &Oracle{
		cfg:      cfg,
		node:     n,
		grid:     newGridClient(cfg.GridURL, cfg.APIKey, cfg.Timeout),
		breakers: newBreakers(),
	}
}

func (o *Oracle) Close() {
	if o.node != nil {
		o.node.Stop()
	}
}

func (o *Oracle) TokenContract() string { return o.cfg.USDTContract }

func (o *Oracle) ExplorerURL(txHash string) string { return o.cfg.ExplorerURL + txHash }

func (o *Oracle) TransfersTo(ctx context.Context, addr string, since time.Time) ([]domain.Transfer, error) {
	return call(ctx, o, callGrid, func() ([]domain.Transfer, error) {
		ts, err := o.grid.transfersTo(ctx, addr, o.cfg.USDTContract, since)
		if err != nil {
			return nil, xerr.Wrap(err, xerr.KindExternal, "list transfers")
		}
		return ts, nil
	})
}

// TransferByHash collapses concurrent lookups of the same hash into one node round trip.
func (o *Oracle) TransferByHash(ctx context.Context, txHash string) (*domain.Transfer, error) {
	txHash = NormalizeTxHash(txHash)
	v, err, _ := o.lookups.Do(txHash, func() (any, error) {
		return call(ctx, o, callTx, func() (*domain.Transfer, error) {
			return o.transferByHash(txHash)
		})
	})
	if err != nil {
		return nil, err
	}
	t := *(v.(*domain.Transfer))
	return &t, nil
}

func (o *Oracle) transferByHash(txHash string) (*domain.Transfer, error) {
	info, err := o.node.GetTransactionInfoByID(txHash)
	if err != nil {
		return nil, nodeErr(err, "transaction info")
	}
	if info == nil || len(info.GetId()) == 0 {
		return nil, xerr.NewKind(xerr.KindNotFound, "transaction not found")
	}
	tx, err := o.node.GetTransactionByID(txHash)
	if err != nil {
		return nil, nodeErr(err, "transaction")
	}

	t := &domain.Transfer{
		TxHash:    txHash,
		BlockTime: time.UnixMilli(info.GetBlockTimeStamp()).UTC(),
		Success:   info.GetReceipt().GetResult() == core.Transaction_Result_SUCCESS,
		Amount:    decimal.Zero,
	}
	if err := decodeTransaction(tx, t); err != nil && !errors.Is(err, errNotTransfer) {
		return nil, xerr.Wrap(err, xerr.KindExternal, "decode transaction")
	}
	return t, nil
}

// decodeTransaction fills the token fields of t. A transaction that is not a
// contract transfer leaves them empty so the caller can reject it.
func decodeTransaction(tx *core.Transaction, t *domain.Transfer) error {
	contracts := tx.GetRawData().GetContract()
	if len(contracts) == 0 || contracts[0].GetType() != core.Transaction_Contract_TriggerSmartContract {
		return errNotTransfer
	}
	var trigger core.TriggerSmartContract
	if err := proto.Unmarshal(contracts[0].GetParameter().GetValue(), &trigger); err != nil {
		return err
	}
	to, raw, err := decodeTransfer(trigger.GetData())
	if err != nil {
		return err
	}
	t.From = address.Address(trigger.GetOwnerAddress()).String()
	t.Contract = address.Address(trigger.GetContractAddress()).String()
	t.To = to
	t.Amount = fromUnits(raw, tokenDecimals)
	return nil
}

func (o *Oracle) SendToken(ctx context.Context, privKeyHex, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", xerr.New(xerr.RequestParamsError, "amount must be positive")
	}
	from, err := AddressFromPrivateKey(privKeyHex)
	if err != nil {
		return "", err
	}
	params, err := transferParams(to, toUnits(amount))
	if err != nil {
		return "", err
	}

	return call(ctx, o, callSend, func() (string, error) {
		ext, err := o.node.TriggerContract(from, o.cfg.USDTContract, transferMethod, params, o.cfg.FeeLimit, 0, "", 0)
		if err != nil {
			return "", xerr.Wrap(err, xerr.KindExternal, "build transfer")
		}
		if r := ext.GetResult(); r != nil && !r.GetResult() {
			return "", xerr.NewKind(xerr.KindExternal, "build transfer: "+string(r.GetMessage()))
		}
		if ext.GetTransaction() == nil {
			return "", xerr.NewKind(xerr.KindExternal, "build transfer: empty transaction")
		}

		txID, err := signTransaction(ext.GetTransaction(), privKeyHex)
		if err != nil {
			return "", xerr.Wrap(err, xerr.KindInternal, "sign transfer")
		}
		ret, err := o.node.Broadcast(ext.GetTransaction())
		if err != nil {
			return "", xerr.Wrap(err, xerr.KindExternal, "broadcast")
		}
		if !ret.GetResult() {
			return "", xerr.NewKind(xerr.KindExternal,
				fmt.Sprintf("broadcast rejected: %s %s", ret.GetCode().String(), string(ret.GetMessage())))
		}
		logger.Info(ctx, "token transfer broadcast",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("amount", amount.String()),
			zap.String("tx_hash", txID),
		)
		return txID, nil
	})
}

// Balances of a fresh, never funded account are zero rather than an error.
func (o *Oracle) Balances(ctx context.Context, addr string) (decimal.Decimal, decimal.Decimal, error) {
	type pair struct{ native, token decimal.Decimal }
	p, err := call(ctx, o, callBalance, func() (pair, error) {
		native := decimal.Zero
		acc, err := o.node.GetAccount(addr)
		switch {
		case err == nil:
			native = decimal.New(acc.GetBalance(), -6)
		case !xerr.IsKind(nodeErr(err, ""), xerr.KindNotFound):
			return pair{}, nodeErr(err, "account")
		}
		raw, err := o.node.TRC20ContractBalance(addr, o.cfg.USDTContract)
		if err != nil {
			return pair{}, nodeErr(err, "token balance")
		}
		return pair{native: native, token: fromUnits(raw, tokenDecimals)}, nil
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return p.native, p.token, nil
}
