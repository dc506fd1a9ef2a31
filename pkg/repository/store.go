package repository

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order id already exists")
	ErrUserContended  = errors.New("user record changed concurrently")
)

// CatalogStore holds the authoritative product list.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	// SaveProducts replaces the whole catalog.
	SaveProducts(ctx context.Context, products []models.Product) error
}

// UserStore holds user records with their embedded cart and order history.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// CreateUser fails with ErrUserExists when the id or email is taken.
	CreateUser(ctx context.Context, user models.User) error
	SaveUser(ctx context.Context, user models.User) error
	// UpdateUser applies fn to the stored user under exclusive access to the
	// user document. Returning an error from fn discards the change. fn may
	// run more than once and always receives a fresh copy.
	UpdateUser(ctx context.Context, id string, fn func(*models.User) error) error
}

// OrderLedger is the append-only collection of every placed order.
type OrderLedger interface {
	// AppendOrder fails with ErrDuplicateOrder when the id already exists.
	AppendOrder(ctx context.Context, order models.Order) error
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
}

// CredentialSource supplies the payment gateway keys. ok is false when no
// keys are configured.
type CredentialSource interface {
	GetCredentials(ctx context.Context) (creds models.Credentials, ok bool, err error)
}

type ConfigStore interface {
	CredentialSource
	SaveCredentials(ctx context.Context, creds models.Credentials) error
}

// ActivityLog is the system action log, newest first.
type ActivityLog interface {
	AppendActivity(ctx context.Context, entry models.Activity) error
	ListActivity(ctx context.Context, limit int) ([]models.Activity, error)
}
