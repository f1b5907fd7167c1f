package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/common"
)

type AdminService interface {
	ListUsers(ctx context.Context, page, size int) ([]*domain.User, int64, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]*domain.User, error)
	AdjustBalance(ctx context.Context, adminID, userID string, newBalance decimal.Decimal) (*domain.User, error)
	ToggleActive(ctx context.Context, userID string, active bool) error
	History(ctx context.Context, userID string, page, size int) ([]domain.HistoryItem, int64, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type Admin struct {
	svc AdminService
}

func NewAdmin(svc AdminService) *Admin {
	return &Admin{svc: svc}
}

type userDTO struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	TokenBalance decimal.Decimal `json:"tokenBalance"`
	IsAdmin      bool            `json:"isAdmin"`
	IsActive     bool            `json:"isActive"`
	ReferralCode string          `json:"referralCode"`
	ReferrerID   string          `json:"referrerId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		TokenBalance: u.TokenBalance,
		IsAdmin:      u.IsAdmin,
		IsActive:     u.IsActive,
		ReferralCode: u.ReferralCode,
		ReferrerID:   deref(u.ReferrerID),
		CreatedAt:    u.CreatedAt,
	}
}

func toUserDTOs(us []*domain.User) []userDTO {
	out := make([]userDTO, 0, len(us))
	for _, u := range us {
		out = append(out, toUserDTO(u))
	}
	return out
}

func (h *Admin) Users(c *gin.Context) {
	page, size := paging(c)
	us, total, err := h.svc.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, Page[userDTO]{Items: toUserDTOs(us), Total: total, Page: page, PageSize: size})
}

func (h *Admin) Search(c *gin.Context) {
	us, err := h.svc.SearchUsers(c.Request.Context(), c.Query("query"), queryInt(c, "limit", 0))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, toUserDTOs(us))
}

type balanceReq struct {
	NewBalance decimal.Decimal `json:"newBalance"`
}

func (h *Admin) AdjustBalance(c *gin.Context) {
	var req balanceReq
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.AdjustBalance(c.Request.Context(), common.UserIDFromGin(c), c.Param("userId"), req.NewBalance)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, toUserDTO(u))
}

type statusReq struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h *Admin) ToggleActive(c *gin.Context) {
	var req statusReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.ToggleActive(c.Request.Context(), c.Param("userId"), *req.IsActive); err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, gin.H{"userId": c.Param("userId"), "isActive": *req.IsActive})
}

func (h *Admin) History(c *gin.Context) {
	page, size := paging(c)
	items, total, err := h.svc.History(c.Request.Context(), c.Param("userId"), page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, Page[domain.HistoryItem]{Items: items, Total: total, Page: page, PageSize: size})
}

func (h *Admin) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, st)
}
