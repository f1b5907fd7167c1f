package tron

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"bullrush.com/pkg/xerr"
)

const usdt = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func newKey(t *testing.T) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	priv := hex.EncodeToString(crypto.FromECDSA(key))
	addr, err := AddressFromPrivateKey(priv)
	require.NoError(t, err)
	return priv, addr
}

func rawAddr(t *testing.T, b58 string) []byte {
	t.Helper()
	a, err := address.Base58ToAddress(b58)
	require.NoError(t, err)
	return a.Bytes()
}

func transferData(t *testing.T, to string, units int64) []byte {
	t.Helper()
	data := append([]byte{}, transferSelector...)
	data = append(data, common.LeftPadBytes(rawAddr(t, to)[1:], 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(units).Bytes(), 32)...)
	return data
}

func TestValidateAddress(t *testing.T) {
	_, good := newKey(t)
	tests := []struct {
		name string
		addr string
		ok   bool
	}{
		{"derived", good, true},
		{"usdt contract", usdt, true},
		{"empty", "", false},
		{"wrong prefix", "X" + usdt[1:], false},
		{"too short", usdt[:33], false},
		{"bad alphabet", "T0" + usdt[2:], false},
		{"bad checksum", usdt[:33] + "u", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, xerr.IsKind(err, xerr.KindValidation))
		})
	}
}

func TestNormalizeTxHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abcdef", "abcdef"},
		{"ABCDEF", "abcdef"},
		{"0xABCdef", "abcdef"},
		{" 0xabcdef\n", "abcdef"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTxHash(tt.in), tt.in)
	}
}

func TestDecodeTransfer(t *testing.T) {
	_, to := newKey(t)

	gotTo, amount, err := decodeTransfer(transferData(t, to, 100_500_000))
	require.NoError(t, err)
	assert.Equal(t, to, gotTo)
	assert.True(t, fromUnits(amount, tokenDecimals).Equal(decimal.RequireFromString("100.5")))

	_, _, err = decodeTransfer([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, errNotTransfer)

	other := transferData(t, to, 1)
	other[0] = 0x23
	_, _, err = decodeTransfer(other)
	assert.ErrorIs(t, err, errNotTransfer)
}

func TestTransferParams(t *testing.T) {
	s, err := transferParams(usdt, toUnits(decimal.RequireFromString("12.3456789")))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"address":"`+usdt+`"},{"uint256":"12345678"}]`, s)
}

func TestGrid_TransfersTo(t *testing.T) {
	_, collector := newKey(t)
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/"+collector+"/transactions/trc20", r.URL.Path)
		assert.Equal(t, usdt, r.URL.Query().Get("contract_address"))
		assert.Equal(t, "true", r.URL.Query().Get("only_confirmed"))
		assert.Equal(t, "1767323045000", r.URL.Query().Get("min_timestamp"))
		assert.Equal(t, "key", r.Header.Get("TRON-PRO-API-KEY"))
		_, _ = w.Write([]byte(`{"success":true,"meta":{"page_size":3},"data":[
			{"transaction_id":"aa","from":"TFrom","to":"` + collector + `","value":"100000000","type":"Transfer","block_timestamp":1767323100000,"token_info":{"address":"` + usdt + `","decimals":6,"symbol":"USDT"}},
			{"transaction_id":"bb","from":"` + collector + `","to":"TElse","value":"5000000","type":"Transfer","block_timestamp":1767323200000,"token_info":{"address":"` + usdt + `","decimals":6}},
			{"transaction_id":"cc","from":"TFrom","to":"` + collector + `","value":"1","type":"Approval","block_timestamp":1767323300000,"token_info":{"address":"` + usdt + `","decimals":6}}
		]}`))
	}))
	defer srv.Close()

	o := newOracle(Config{GridURL: srv.URL, APIKey: "key", USDTContract: usdt, Timeout: time.Second}, &fakeNode{})
	ts, err := o.TransfersTo(context.Background(), collector, since)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "aa", ts[0].TxHash)
	assert.True(t, ts[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, time.UnixMilli(1767323100000).UTC(), ts[0].BlockTime)
	assert.True(t, ts[0].Success)
}

func TestGrid_UpstreamErrorIsExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := newOracle(Config{GridURL: srv.URL, USDTContract: usdt, Timeout: time.Second}, &fakeNode{})
	_, err := o.TransfersTo(context.Background(), usdt, time.Now())
	require.Error(t, err)
	assert.True(t, xerr.IsKind(err, xerr.KindExternal))
}

type fakeNode struct {
	info      *core.TransactionInfo
	infoErr   error
	tx        *core.Transaction
	params    string
	broadcast *api.Return
	sent      *core.Transaction
	balance   int64
	accErr    error
	token     *big.Int
}

func (f *fakeNode) GetTransactionInfoByID(string) (*core.TransactionInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeNode) GetTransactionByID(string) (*core.Transaction, error) { return f.tx, nil }

func (f *fakeNode) TriggerContract(_, _, _, jsonString string, _, _ int64, _ string, _ int64) (*api.TransactionExtention, error) {
	f.params = jsonString
	return &api.TransactionExtention{
		Transaction: &core.Transaction{RawData: &core.TransactionRaw{Timestamp: 42, FeeLimit: 100}},
		Result:      &api.Return{Result: true},
	}, nil
}

func (f *fakeNode) Broadcast(tx *core.Transaction) (*api.Return, error) {
	f.sent = tx
	return f.broadcast, nil
}

func (f *fakeNode) GetAccount(string) (*core.Account, error) {
	if f.accErr != nil {
		return nil, f.accErr
	}
	return &core.Account{Balance: f.balance}, nil
}

func (f *fakeNode) TRC20ContractBalance(string, string) (*big.Int, error) { return f.token, nil }

func (f *fakeNode) Stop() {}

func triggerTx(t *testing.T, from, contract string, data []byte) *core.Transaction {
	t.Helper()
	param, err := anypb.New(&core.TriggerSmartContract{
		OwnerAddress:    rawAddr(t, from),
		ContractAddress: rawAddr(t, contract),
		Data:            data,
	})
	require.NoError(t, err)
	return &core.Transaction{RawData: &core.TransactionRaw{
		Contract: []*core.Transaction_Contract{{
			Type:      core.Transaction_Contract_TriggerSmartContract,
			Parameter: param,
		}},
	}}
}

func TestOracle_TransferByHash(t *testing.T) {
	_, from := newKey(t)
	_, to := newKey(t)
	n := &fakeNode{
		info: &core.TransactionInfo{
			Id:             []byte{0xab},
			BlockTimeStamp: 1767323100000,
			Receipt:        &core.ResourceReceipt{Result: core.Transaction_Result_SUCCESS},
		},
		tx: triggerTx(t, from, usdt, transferData(t, to, 250_000_000)),
	}
	o := newOracle(Config{USDTContract: usdt, Timeout: time.Second}, n)

	tr, err := o.TransferByHash(context.Background(), "0xABCD")
	require.NoError(t, err)
	assert.Equal(t, "abcd", tr.TxHash)
	assert.Equal(t, from, tr.From)
	assert.Equal(t, to, tr.To)
	assert.Equal(t, usdt, tr.Contract)
	assert.True(t, tr.Amount.Equal(decimal.NewFromInt(250)))
	assert.True(t, tr.Success)

	n.info.Receipt.Result = core.Transaction_Result_REVERT
	tr, err = o.TransferByHash(context.Background(), "abcd")
	require.NoError(t, err)
	assert.False(t, tr.Success)
}

func TestOracle_TransferByHashNotFound(t *testing.T) {
	o := newOracle(Config{USDTContract: usdt}, &fakeNode{infoErr: errors.New("transaction info not found")})
	_, err := o.TransferByHash(context.Background(), "ff")
	assert.True(t, xerr.IsKind(err, xerr.KindNotFound))

	o = newOracle(Config{USDTContract: usdt}, &fakeNode{info: &core.TransactionInfo{}})
	_, err = o.TransferByHash(context.Background(), "ff")
	assert.True(t, xerr.IsKind(err, xerr.KindNotFound))
}

func TestOracle_NonTokenTransactionDecodesEmpty(t *testing.T) {
	n := &fakeNode{
		info: &core.TransactionInfo{Id: []byte{1}, Receipt: &core.ResourceReceipt{Result: core.Transaction_Result_SUCCESS}},
		tx: &core.Transaction{RawData: &core.TransactionRaw{Contract: []*core.Transaction_Contract{{
			Type: core.Transaction_Contract_TransferContract,
		}}}},
	}
	o := newOracle(Config{USDTContract: usdt}, n)
	tr, err := o.TransferByHash(context.Background(), "01")
	require.NoError(t, err)
	assert.Empty(t, tr.Contract)
	assert.True(t, tr.Amount.IsZero())
}

func TestOracle_SendToken(t *testing.T) {
	priv, _ := newKey(t)
	_, to := newKey(t)
	n := &fakeNode{broadcast: &api.Return{Result: true}}
	o := newOracle(Config{USDTContract: usdt, FeeLimit: 100}, n)

	hash, err := o.SendToken(context.Background(), priv, to, decimal.RequireFromString("7.5"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"address":"`+to+`"},{"uint256":"7500000"}]`, n.params)

	require.NotNil(t, n.sent)
	require.Len(t, n.sent.Signature, 1)
	raw, err := proto.Marshal(n.sent.RawData)
	require.NoError(t, err)
	sum := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
}

func TestOracle_SendTokenRejected(t *testing.T) {
	priv, _ := newKey(t)
	n := &fakeNode{broadcast: &api.Return{Result: false, Message: []byte("BANDWITH_ERROR")}}
	o := newOracle(Config{USDTContract: usdt}, n)

	_, err := o.SendToken(context.Background(), priv, usdt, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.True(t, xerr.IsKind(err, xerr.KindExternal))

	_, err = o.SendToken(context.Background(), priv, usdt, decimal.Zero)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation))
}

func TestOracle_Balances(t *testing.T) {
	n := &fakeNode{balance: 12_500_000, token: big.NewInt(99_000_000)}
	o := newOracle(Config{USDTContract: usdt}, n)
	native, token, err := o.Balances(context.Background(), usdt)
	require.NoError(t, err)
	assert.True(t, native.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, token.Equal(decimal.NewFromInt(99)))

	n.accErr = errors.New("account not found")
	native, _, err = o.Balances(context.Background(), usdt)
	require.NoError(t, err)
	assert.True(t, native.IsZero())
}

func TestNetworkResolve(t *testing.T) {
	c, err := Config{Network: "nile"}.resolve()
	require.NoError(t, err)
	assert.Equal(t, "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf", c.USDTContract)
	assert.True(t, strings.HasPrefix(c.ExplorerURL, "https://nile.tronscan.org"))

	c, err = Config{Network: "nile", USDTContract: "TOverride"}.resolve()
	require.NoError(t, err)
	assert.Equal(t, "TOverride", c.USDTContract)

	_, err = Config{Network: "ropsten"}.resolve()
	assert.Error(t, err)
}
