package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/common"
)

type DepositService interface {
	RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, plan string) (*domain.DepositRequest, error)
	SubmitTxHash(ctx context.Context, userID, requestID, txHash string) (domain.VerifyResult, error)
	CheckStatus(ctx context.Context, userID, requestID string) (domain.VerifyResult, error)
	CollectionAddress() string
}

type Deposit struct {
	svc DepositService
}

func NewDeposit(svc DepositService) *Deposit {
	return &Deposit{svc: svc}
}

type initiateReq struct {
	Amount decimal.Decimal `json:"amount"`
	Plan   string          `json:"plan"`
}

type initiateResp struct {
	RequestID    string    `json:"requestId"`
	AdminAddress string    `json:"adminAddress"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (h *Deposit) Initiate(c *gin.Context) {
	var req initiateReq
	if !bindJSON(c, &req) {
		return
	}
	dr, err := h.svc.RequestDeposit(c.Request.Context(), common.UserIDFromGin(c), req.Amount, req.Plan)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, initiateResp{
		RequestID:    dr.ID,
		AdminAddress: h.svc.CollectionAddress(),
		ExpiresAt:    dr.ExpiresAt,
	})
}

type submitHashReq struct {
	RequestID string `json:"requestId" binding:"required"`
	TxHash    string `json:"txHash" binding:"required"`
}

func (h *Deposit) SubmitTxHash(c *gin.Context) {
	var req submitHashReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.SubmitTxHash(c.Request.Context(), common.UserIDFromGin(c), req.RequestID, req.TxHash)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, res)
}

type verifyReq struct {
	RequestID       string `json:"requestId" binding:"required"`
	TransactionHash string `json:"transactionHash"`
}

// Verify checks a supplied hash, or reports where the request stands.
func (h *Deposit) Verify(c *gin.Context) {
	var req verifyReq
	if !bindJSON(c, &req) {
		return
	}
	ctx, uid := c.Request.Context(), common.UserIDFromGin(c)
	var (
		res domain.VerifyResult
		err error
	)
	if req.TransactionHash != "" {
		res, err = h.svc.SubmitTxHash(ctx, uid, req.RequestID, req.TransactionHash)
	} else {
		res, err = h.svc.CheckStatus(ctx, uid, req.RequestID)
	}
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, res)
}
