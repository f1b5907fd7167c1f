package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/internal/payment/service"
	"bullrush.com/pkg/common"
)

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, walletAddress, phoneNumber string) (*domain.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, adminID, withdrawalID string, decision domain.Decision, payoutWalletID string) (*service.ProcessResult, error)
	ListWithdrawals(ctx context.Context, page, size int) ([]*domain.WithdrawalView, int64, error)
	AddPayoutWallet(ctx context.Context, name, address, privateKey string) (*domain.PayoutWallet, error)
	ListPayoutWallets(ctx context.Context) ([]*domain.PayoutWallet, error)
	DerivePayoutWallet(ctx context.Context, name string, index uint32) (*domain.PayoutWallet, error)
}

type Withdrawal struct {
	svc WithdrawalService
}

func NewWithdrawal(svc WithdrawalService) *Withdrawal {
	return &Withdrawal{svc: svc}
}

type withdrawalDTO struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"walletAddress,omitempty"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TxHash        string          `json:"txHash,omitempty"`
	UserEmail     string          `json:"userEmail,omitempty"`
	UserName      string          `json:"userName,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toWithdrawalDTO(w *domain.Withdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:            w.ID,
		UserID:        w.UserID,
		Amount:        w.Amount,
		WalletAddress: deref(w.WalletAddress),
		PhoneNumber:   deref(w.PhoneNumber),
		Method:        w.Method(),
		Status:        string(w.Status),
		TxHash:        deref(w.TxHash),
		CreatedAt:     w.CreatedAt,
	}
}

type walletDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Address   string          `json:"address"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toWalletDTO(w *domain.PayoutWallet) walletDTO {
	return walletDTO{ID: w.ID, Name: w.Name, Address: w.Address, Balance: w.Balance, IsActive: w.IsActive, CreatedAt: w.CreatedAt}
}

type withdrawReq struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"walletAddress"`
	PhoneNumber   string          `json:"phoneNumber"`
}

func (h *Withdrawal) Request(c *gin.Context) {
	var req withdrawReq
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.svc.RequestWithdrawal(c.Request.Context(), common.UserIDFromGin(c), req.Amount, req.WalletAddress, req.PhoneNumber)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, toWithdrawalDTO(w))
}

func (h *Withdrawal) List(c *gin.Context) {
	page, size := paging(c)
	rows, total, err := h.svc.ListWithdrawals(c.Request.Context(), page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	items := make([]withdrawalDTO, 0, len(rows))
	for _, v := range rows {
		d := toWithdrawalDTO(&v.Withdrawal)
		d.UserEmail = v.UserEmail
		d.UserName = (&domain.User{FirstName: v.FirstName, LastName: v.LastName}).FullName()
		items = append(items, d)
	}
	common.Success(c, Page[withdrawalDTO]{Items: items, Total: total, Page: page, PageSize: size})
}

type processReq struct {
	WithdrawalID string `json:"withdrawalId" binding:"required"`
	Status       string `json:"status" binding:"required"`
	FromWalletID string `json:"fromWalletId"`
}

type processResp struct {
	Withdrawal  withdrawalDTO `json:"withdrawal"`
	TxHash      string        `json:"txHash,omitempty"`
	ExplorerURL string        `json:"explorerUrl,omitempty"`
}

func (h *Withdrawal) Process(c *gin.Context) {
	var req processReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.ProcessWithdrawal(c.Request.Context(), common.UserIDFromGin(c), req.WithdrawalID,
		domain.Decision(req.Status), req.FromWalletID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, processResp{
		Withdrawal:  toWithdrawalDTO(res.Withdrawal),
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
	})
}

type addWalletReq struct {
	Name       string `json:"name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	PrivateKey string `json:"private_key" binding:"required"`
}

func (h *Withdrawal) AddWallet(c *gin.Context) {
	var req addWalletReq
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.svc.AddPayoutWallet(c.Request.Context(), req.Name, req.Address, req.PrivateKey)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, toWalletDTO(w))
}

func (h *Withdrawal) ListWallets(c *gin.Context) {
	ws, err := h.svc.ListPayoutWallets(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	items := make([]walletDTO, 0, len(ws))
	for _, w := range ws {
		items = append(items, toWalletDTO(w))
	}
	common.Success(c, items)
}

type deriveWalletReq struct {
	Name  string `json:"name" binding:"required"`
	Index uint32 `json:"index"`
}

func (h *Withdrawal) DeriveWallet(c *gin.Context) {
	var req deriveWalletReq
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.svc.DerivePayoutWallet(c.Request.Context(), req.Name, req.Index)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, toWalletDTO(w))
}
