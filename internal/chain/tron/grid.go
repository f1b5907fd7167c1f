package tron

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"

	"bullrush.com/internal/payment/domain"
)

const (
	gridPageSize = 50
	gridMaxPages = 10
)

// gridClient reads indexed TRC20 history from the TronGrid REST API.
type gridClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newGridClient(baseURL, apiKey string, timeout time.Duration) *gridClient {
	return &gridClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type trc20Page struct {
	Success bool          `json:"success"`
	Data    []trc20Record `json:"data"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
		PageSize    int    `json:"page_size"`
	} `json:"meta"`
}

type trc20Record struct {
	TransactionID  string `json:"transaction_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`
	Type           string `json:"type"`
	BlockTimestamp int64  `json:"block_timestamp"`
	TokenInfo      struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
}

// transfersTo pages through confirmed inbound transfers of contract to addr.
func (g *gridClient) transfersTo(ctx context.Context, addr, contract string, since time.Time) ([]domain.Transfer, error) {
	var out []domain.Transfer
	fingerprint := ""
	for page := 0; page < gridMaxPages; page++ {
		p, err := g.fetch(ctx, addr, contract, since, fingerprint)
		if err != nil {
			return nil, err
		}
		for _, r := range p.Data {
			if t, ok := r.transfer(addr, contract); ok {
				out = append(out, t)
			}
		}
		if p.Meta.Fingerprint == "" || len(p.Data) < gridPageSize {
			break
		}
		fingerprint = p.Meta.Fingerprint
	}
	return out, nil
}

func (g *gridClient) fetch(ctx context.Context, addr, contract string, since time.Time, fingerprint string) (*trc20Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(gridPageSize))
	q.Set("contract_address", contract)
	q.Set("only_confirmed", "true")
	q.Set("only_to", "true")
	q.Set("min_timestamp", strconv.FormatInt(since.UnixMilli(), 10))
	if fingerprint != "" {
		q.Set("fingerprint", fingerprint)
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", g.baseURL, addr, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trongrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("trongrid status %d: %s", resp.StatusCode, string(body))
	}

	var page trc20Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode trongrid response: %w", err)
	}
	if !page.Success {
		return nil, fmt.Errorf("trongrid reported failure")
	}
	return &page, nil
}

func (r trc20Record) transfer(addr, contract string) (domain.Transfer, bool) {
	if r.Type != "Transfer" || r.To != addr || r.TokenInfo.Address != contract {
		return domain.Transfer{}, false
	}
	v, ok := new(big.Int).SetString(r.Value, 10)
	if !ok {
		return domain.Transfer{}, false
	}
	decimals := r.TokenInfo.Decimals
	if decimals == 0 {
		decimals = tokenDecimals
	}
	return domain.Transfer{
		TxHash:    r.TransactionID,
		From:      r.From,
		To:        r.To,
		Contract:  r.TokenInfo.Address,
		Amount:    fromUnits(v, decimals),
		BlockTime: time.UnixMilli(r.BlockTimestamp).UTC(),
		Success:   true,
	}, true
}
