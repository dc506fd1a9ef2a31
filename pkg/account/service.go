package account

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

type Recorder interface {
	Record(entry models.Activity)
}

// Service manages a signed-in user's cart and profile.
type Service struct {
	users    repository.UserStore
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(users repository.UserStore, recorder Recorder, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		recorder: recorder,
		logger:   logger.Named("account"),
		now:      time.Now,
	}
}

func (s *Service) Profile(ctx context.Context, userID string) (models.Profile, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return user.Profile(), nil
}

// SaveCart replaces the stored cart. Lines with an empty title or a
// non-positive quantity are not kept.
func (s *Service) SaveCart(ctx context.Context, userID string, lines []models.CartLine) error {
	cart := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Title == "" || l.Quantity <= 0 {
			continue
		}
		cart = append(cart, l)
	}

	var email string
	err := s.users.UpdateUser(ctx, userID, func(u *models.User) error {
		now := s.now()
		u.Cart = cart
		u.LastCartUpdate = &now
		email = u.Email
		return nil
	})
	if err != nil {
		return err
	}

	s.record(models.ActionCartUpdate, fmt.Sprintf("Cart saved for user: %s", email), userID)
	return nil
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	return s.users.UpdateUser(ctx, userID, func(u *models.User) error {
		now := s.now()
		u.Cart = []models.CartLine{}
		u.LastCartUpdate = &now
		return nil
	})
}

// UpdateAvatar sets or, with nil, removes the avatar.
func (s *Service) UpdateAvatar(ctx context.Context, userID string, avatar *string) (models.Profile, error) {
	var profile models.Profile
	err := s.users.UpdateUser(ctx, userID, func(u *models.User) error {
		u.Avatar = avatar
		profile = u.Clone().Profile()
		return nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// Orders returns the user's own copies of their orders, oldest first.
func (s *Service) Orders(ctx context.Context, userID string) ([]models.Order, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Orders == nil {
		return []models.Order{}, nil
	}
	return user.Orders, nil
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
