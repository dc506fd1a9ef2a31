package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by a successful signup or login.
type Session struct {
	Token   string         `json:"token"`
	IsAdmin bool           `json:"isAdmin"`
	User    models.Profile `json:"user"`
}

// Recorder receives activity log entries.
type Recorder interface {
	Record(entry models.Activity)
}

type Service struct {
	users    repository.UserStore
	tokens   *TokenManager
	admin    config.AuthConfig
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	cost     int
}

func NewService(users repository.UserStore, tokens *TokenManager, cfg config.AuthConfig, recorder Recorder, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		admin:    cfg,
		recorder: recorder,
		logger:   logger.Named("auth"),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := models.User{
		ID:           "user_" + uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Cart:         []models.CartLine{},
		Orders:       []models.Order{},
		Joined:       now,
		LastLogin:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.record(models.ActionUserSignup, "New user signed up: "+email, user.ID)
	s.logger.Info("User signed up", zap.String("user_id", user.ID))

	return s.session(user, RoleUser)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if s.isAdmin(email, req.Password) {
		s.record(models.ActionUserLogin, "Admin logged in", models.AdminUserID)
		return s.session(models.User{ID: models.AdminUserID, Name: "Admin", Email: email}, RoleAdmin)
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	var updated models.User
	err = s.users.UpdateUser(ctx, user.ID, func(u *models.User) error {
		u.LastLogin = s.now()
		updated = u.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}

	s.record(models.ActionUserLogin, "User logged in: "+email, user.ID)
	return s.session(updated, RoleUser)
}

func (s *Service) isAdmin(email, password string) bool {
	if s.admin.AdminEmail == "" || s.admin.AdminPassword == "" {
		return false
	}
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.AdminPassword)) == 1
	return email == normalizeEmail(s.admin.AdminEmail) && passwordOK
}

func (s *Service) session(user models.User, role string) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, IsAdmin: role == RoleAdmin, User: user.Profile()}, nil
}

func (s *Service) record(action, description, user string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(models.Activity{
		Timestamp:   s.now(),
		Action:      action,
		Description: description,
		User:        user,
	})
}
