package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
)

const codeAttempts = 5

// Profile is the identity provider's view of a user.
type Profile struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	PendingReferral string
}

// ReferralApplier links a new user to the owner of a referral code.
type ReferralApplier interface {
	ApplyReferralCode(ctx context.Context, userID, code string) (int, error)
}

// IdentityService mirrors identity provider lifecycle events into the users table.
type IdentityService struct {
	users     domain.UserRepo
	referrals ReferralApplier
}

func NewIdentityService(users domain.UserRepo, referrals ReferralApplier) *IdentityService {
	return &IdentityService{users: users, referrals: referrals}
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// OnUserCreated inserts the profile with a fresh referral code. Redelivery of
// the same event returns the stored user.
func (s *IdentityService) OnUserCreated(ctx context.Context, p Profile) (*domain.User, error) {
	if p.ID == "" {
		return nil, xerr.New(xerr.RequestParamsError, "user id is required")
	}
	if u, err := s.users.GetUser(ctx, p.ID); err == nil {
		return u, nil
	} else if !xerr.IsKind(err, xerr.KindNotFound) {
		return nil, err
	}

	var user *domain.User
	for attempt := 1; ; attempt++ {
		u := &domain.User{
			ID:           p.ID,
			Email:        p.Email,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			IsActive:     true,
			ReferralCode: newReferralCode(),
		}
		err := s.users.CreateUser(ctx, u)
		if err == nil {
			user = u
			break
		}
		if !xerr.IsKind(err, xerr.KindConflict) || attempt >= codeAttempts {
			return nil, err
		}
		// a concurrent delivery may have inserted the row
		if existing, gerr := s.users.GetUser(ctx, p.ID); gerr == nil {
			return existing, nil
		}
	}
	logger.Info(ctx, "👤 user profile created", zap.String("user_id", user.ID), zap.String("referral_code", user.ReferralCode))

	if code := strings.TrimSpace(p.PendingReferral); code != "" && s.referrals != nil {
		if _, err := s.referrals.ApplyReferralCode(ctx, user.ID, code); err != nil {
			logger.Warn(ctx, "pending referral code not applied",
				zap.String("user_id", user.ID),
				zap.String("code", code),
				zap.Error(err),
			)
		} else if fresh, err := s.users.GetUser(ctx, user.ID); err == nil {
			user = fresh
		}
	}
	return user, nil
}

func (s *IdentityService) OnUserUpdated(ctx context.Context, p Profile) error {
	if err := s.users.UpdateProfile(ctx, p.ID, p.Email, p.FirstName, p.LastName); err != nil {
		return err
	}
	logger.Info(ctx, "user profile updated", zap.String("user_id", p.ID))
	return nil
}

func (s *IdentityService) OnUserDeleted(ctx context.Context, userID string) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	logger.Info(ctx, "user profile deleted", zap.String("user_id", userID))
	return nil
}
