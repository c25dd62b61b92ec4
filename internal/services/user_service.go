package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/repository"
)

// UserService handles user-related business logic
type UserService struct {
	repo *repository.Repository
	log  *logrus.Entry
}

// NewUserService creates a new UserService
func NewUserService(repo *repository.Repository) *UserService {
	return &UserService{repo: repo, log: logger.Component("users")}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.repo.DB().WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapNotFound(err, "User")
	}
	return &user, nil
}

type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Avatar    *string `json:"avatar"`
}

// UpdateProfile changes the user's own display fields
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req *ProfileUpdate) (*models.User, error) {
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" || len(name) > 50 {
			return nil, validationError("Username must be between 1 and 50 characters", "username")
		}
		var n int64
		err := s.repo.DB().WithContext(ctx).Model(&models.User{}).
			Where("username = ? AND id <> ?", name, userID).Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if n > 0 {
			return nil, ErrEmailTaken
		}
		fields["username"] = name
	}
	if req.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Avatar != nil {
		fields["avatar"] = req.Avatar
	}
	if len(fields) > 0 {
		if err := s.repo.DB().WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return s.GetUserByID(ctx, userID)
}

// UpdateMT5Credentials stores the account the hourly poll reads for this user
func (s *UserService) UpdateMT5Credentials(ctx context.Context, userID uint, creds models.MT5Credentials) (*models.User, error) {
	creds.AccountID = strings.TrimSpace(creds.AccountID)
	creds.Server = strings.TrimSpace(creds.Server)
	if !creds.Complete() {
		return nil, ErrMissingAccountInfo
	}
	err := s.repo.DB().WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"mt5_account_id": creds.AccountID,
			"mt5_password":   creds.Password,
			"mt5_server":     creds.Server,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save MT5 credentials: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// AddPushSubscription registers a browser endpoint. An endpoint already
// known is moved to this user and un-expired.
func (s *UserService) AddPushSubscription(ctx context.Context, userID uint, req *PushSubscriptionRequest) (*models.PushSubscription, error) {
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return nil, validationError("Invalid subscription object", "endpoint", "keys")
	}
	sub := &models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	err := s.repo.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "expired", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}
	return sub, nil
}

// RemovePushSubscription deletes the user's endpoint
func (s *UserService) RemovePushSubscription(ctx context.Context, userID uint, endpoint string) error {
	if endpoint == "" {
		return validationError("Endpoint is required", "endpoint")
	}
	res := s.repo.DB().WithContext(ctx).Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&models.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete push subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Subscription")
	}
	return nil
}

type UserFilter struct {
	Search string
	Role   string
	PageRequest
}

type UserPage struct {
	Users      []models.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// ListUsers is the admin user search
func (s *UserService) ListUsers(ctx context.Context, f UserFilter) (*UserPage, error) {
	page := f.PageRequest.normalize(20)
	q := s.repo.DB().WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	var users []models.User
	if err := q.Order("created_at DESC").Order("id DESC").Limit(page.Limit).Offset(page.offset()).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return &UserPage{Users: users, Pagination: newPagination(page, total)}, nil
}

type AdminUserUpdate struct {
	Role      *models.UserRole `json:"role"`
	IsActive  *bool            `json:"is_active"`
	IsPremium *bool            `json:"is_premium"`
}

// AdminUpdateUser changes role and account flags
func (s *UserService) AdminUpdateUser(ctx context.Context, id uint, req *AdminUserUpdate) (*models.User, error) {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if req.Role != nil {
		if *req.Role != models.UserRoleUser && *req.Role != models.UserRoleAdmin {
			return nil, validationError("Invalid role", "role")
		}
		fields["role"] = *req.Role
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.IsPremium != nil {
		fields["is_premium"] = *req.IsPremium
	}
	if len(fields) > 0 {
		if err := s.repo.DB().WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		s.log.WithFields(logrus.Fields{"user_id": id, "fields": len(fields)}).Info("user updated by admin")
	}
	return s.GetUserByID(ctx, id)
}

// DeleteUser removes an account that holds no open participation or
// active subscription, along with its leaderboard row, push endpoints and
// chatbox memberships.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	open, err := s.repo.HasOpenParticipation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check participations: %w", err)
	}
	if open {
		return ErrUserHasObligations
	}
	var active int64
	err = s.repo.DB().WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", id, models.SubscriptionStatusActive).Count(&active).Error
	if err != nil {
		return fmt.Errorf("failed to check subscriptions: %w", err)
	}
	if active > 0 {
		return ErrUserHasObligations
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.DeleteLeaderboardEntryForUser(ctx, id); err != nil {
			return err
		}
		db := tx.DB().WithContext(ctx)
		if err := db.Where("user_id = ?", id).Delete(&models.PushSubscription{}).Error; err != nil {
			return err
		}
		if err := db.Where("user_id = ?", id).Delete(&models.ChatboxSubscriber{}).Error; err != nil {
			return err
		}
		res := db.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("User")
		}
		return nil
	})
	if err != nil {
		var de *DomainError
		if errors.As(err, &de) {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}
