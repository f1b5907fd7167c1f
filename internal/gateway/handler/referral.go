package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"bullrush.com/pkg/common"
)

type ReferralService interface {
	ApplyReferralCode(ctx context.Context, userID, code string) (int, error)
}

type Referral struct {
	svc ReferralService
}

func NewReferral(svc ReferralService) *Referral {
	return &Referral{svc: svc}
}

type applyReq struct {
	ReferralCode string `json:"referralCode" binding:"required"`
}

func (h *Referral) Apply(c *gin.Context) {
	var req applyReq
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.svc.ApplyReferralCode(c.Request.Context(), common.UserIDFromGin(c), req.ReferralCode)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, gin.H{"applied": true, "bonusesCreated": n})
}
