package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/models"
	"trading-challenges/internal/utils"
)

// AuthService handles registration and credential checks
type AuthService struct {
	db    *gorm.DB
	stats *StatsService
	cost  int
	log   *logrus.Entry
}

// NewAuthService creates a new AuthService
func NewAuthService(db *gorm.DB, stats *StatsService) *AuthService {
	return &AuthService{db: db, stats: stats, cost: bcrypt.DefaultCost, log: logger.Component("auth")}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// RegisterRequest is validated by the binding tags before it reaches Register.
type RegisterRequest struct {
	Username  string `json:"username" binding:"omitempty,max=50"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
}

// Register creates a user account with a hashed password
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	username := strings.TrimSpace(req.Username)
	if username != "" {
		taken, err := s.usernameTaken(ctx, username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
	} else {
		var err error
		username, err = s.pickUsername(ctx, req.FirstName+" "+req.LastName, email)
		if err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         models.UserRoleUser,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return user, nil
}

func (s *AuthService) usernameTaken(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return n > 0, nil
}

// pickUsername derives a free username from the user's name or email,
// falling back to a generated nickname.
func (s *AuthService) pickUsername(ctx context.Context, candidates ...string) (string, error) {
	base := utils.UsernameBase(candidates...)
	if base != "" {
		taken, err := s.usernameTaken(ctx, base)
		if err != nil {
			return "", err
		}
		if !taken {
			return base, nil
		}
	}
	for attempt := 0; attempt < 5; attempt++ {
		var name string
		var err error
		if base != "" {
			name, err = utils.WithSuffix(base)
		} else {
			name, err = utils.GenerateNickname()
		}
		if err != nil {
			return "", err
		}
		taken, err := s.usernameTaken(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", errors.New("could not find a free username")
}

// Login checks credentials, records the login and refreshes trading stats
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidLogin
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login", now).Error; err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to record last login")
	}
	user.LastLogin = &now
	s.stats.Schedule(user.ID)
	return &user, nil
}

// Me returns the current user and schedules a stats refresh
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapNotFound(err, "User")
	}
	s.stats.Schedule(user.ID)
	return &user, nil
}
