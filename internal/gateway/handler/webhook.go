package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/internal/payment/service"
	"bullrush.com/pkg/common"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
)

const (
	headerSvixID        = "svix-id"
	headerSvixTimestamp = "svix-timestamp"
	headerSvixSignature = "svix-signature"

	maxWebhookBody = 1 << 20
)

var errStaleTimestamp = errors.New("timestamp outside tolerance")

type IdentityService interface {
	OnUserCreated(ctx context.Context, p service.Profile) (*domain.User, error)
	OnUserUpdated(ctx context.Context, p service.Profile) error
	OnUserDeleted(ctx context.Context, userID string) error
}

// SignatureVerifier checks svix webhook signatures. The timestamp window is
// ours so it can be tuned; the library's own is fixed at five minutes.
type SignatureVerifier struct {
	wh        *svix.Webhook
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) (*SignatureVerifier, error) {
	if strings.TrimPrefix(secret, "whsec_") == "" {
		return nil, errors.New("webhook secret is required")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret must be base64 with optional whsec_ prefix: %w", err)
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &SignatureVerifier{wh: wh, tolerance: tolerance, now: time.Now}, nil
}

// Sign returns the "v1,<signature>" entry for a delivery.
func (v *SignatureVerifier) Sign(id string, ts time.Time, body []byte) (string, error) {
	return v.wh.Sign(id, ts, body)
}

func (v *SignatureVerifier) Verify(h http.Header, body []byte) error {
	if err := v.wh.VerifyIgnoringTimestamp(body, h); err != nil {
		return err
	}
	sec, err := strconv.ParseInt(h.Get(headerSvixTimestamp), 10, 64)
	if err != nil {
		return errStaleTimestamp
	}
	if d := v.now().Sub(time.Unix(sec, 0)); d > v.tolerance || d < -v.tolerance {
		return errStaleTimestamp
	}
	return nil
}

type identityEvent struct {
	Type string       `json:"type"`
	Data identityUser `json:"data"`
}

type identityUser struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PrimaryEmailID string `json:"primary_email_address_id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	UnsafeMetadata struct {
		ReferralCode string `json:"referral_code"`
	} `json:"unsafe_metadata"`
}

func (u identityUser) email() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u identityUser) profile() service.Profile {
	return service.Profile{
		ID:              u.ID,
		Email:           u.email(),
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		PendingReferral: strings.TrimSpace(u.UnsafeMetadata.ReferralCode),
	}
}

type Webhook struct {
	svc      IdentityService
	verifier *SignatureVerifier
}

func NewWebhook(svc IdentityService, verifier *SignatureVerifier) *Webhook {
	return &Webhook{svc: svc, verifier: verifier}
}

func (h *Webhook) Identity(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.KindValidation, "unreadable body"))
		return
	}
	if err := h.verifier.Verify(c.Request.Header, body); err != nil {
		logger.Warn(c.Request.Context(), "webhook signature rejected", zap.Error(err))
		common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, "invalid signature")
		return
	}
	var ev identityEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.KindValidation, "invalid event payload"))
		return
	}

	ctx := c.Request.Context()
	switch ev.Type {
	case "user.created":
		_, err = h.svc.OnUserCreated(ctx, ev.Data.profile())
	case "user.updated":
		err = h.svc.OnUserUpdated(ctx, ev.Data.profile())
	case "user.deleted":
		err = h.svc.OnUserDeleted(ctx, ev.Data.ID)
	default:
		logger.Debug(ctx, "webhook event ignored", zap.String("type", ev.Type))
	}
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, gin.H{"received": ev.Type})
}
