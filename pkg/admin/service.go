package admin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrMissingKeys    = errors.New("key id and key secret are required")
	ErrInvalidCatalog = errors.New("invalid catalog")
	ErrInvalidUpload  = errors.New("invalid upload")
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrInvalidStatus  = errors.New("invalid order status")
)

const (
	logsLimit       = 500
	uploadURLPrefix = "uploads"
)

type Recorder interface {
	Record(entry models.Activity)
}

// UserSummary is a user row without secrets or history.
type UserSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Joined    time.Time `json:"joined"`
	LastLogin time.Time `json:"last_login"`
}

type CartSummary struct {
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	CartItems   int        `json:"cart_items"`
	LastUpdated *time.Time `json:"last_updated"`
}

type Service struct {
	catalog  repository.CatalogStore
	users    repository.UserStore
	ledger   repository.OrderLedger
	settings repository.ConfigStore
	activity repository.ActivityLog
	uploads  afero.Fs
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

type Stores struct {
	Catalog  repository.CatalogStore
	Users    repository.UserStore
	Ledger   repository.OrderLedger
	Settings repository.ConfigStore
	Activity repository.ActivityLog
}

// NewService wires the admin operations. uploads is the filesystem that
// images are written to; it is served under /uploads.
func NewService(stores Stores, uploads afero.Fs, recorder Recorder, logger *zap.Logger) *Service {
	return &Service{
		catalog:  stores.Catalog,
		users:    stores.Users,
		ledger:   stores.Ledger,
		settings: stores.Settings,
		activity: stores.Activity,
		uploads:  uploads,
		recorder: recorder,
		logger:   logger.Named("admin"),
		now:      time.Now,
	}
}

func (s *Service) SaveCredentials(ctx context.Context, keyID, keySecret string) error {
	keyID, keySecret = strings.TrimSpace(keyID), strings.TrimSpace(keySecret)
	if keyID == "" || keySecret == "" {
		return ErrMissingKeys
	}
	if err := s.settings.SaveCredentials(ctx, models.Credentials{KeyID: keyID, KeySecret: keySecret}); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.record(models.ActionConfigUpdate, "Payment gateway keys updated")
	return nil
}

// PaymentConfigured reports whether online payment can be offered.
func (s *Service) PaymentConfigured(ctx context.Context) (bool, error) {
	_, ok, err := s.settings.GetCredentials(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReplaceProducts swaps in a new catalog. Titles must be present and unique
// since checkout matches on them.
func (s *Service) ReplaceProducts(ctx context.Context, products []models.Product) error {
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("%w: product %d has no title", ErrInvalidCatalog, i)
		}
		if seen[p.Title] {
			return fmt.Errorf("%w: duplicate title %q", ErrInvalidCatalog, p.Title)
		}
		if p.Price < 0 {
			return fmt.Errorf("%w: negative price for %q", ErrInvalidCatalog, p.Title)
		}
		seen[p.Title] = true
		if products[i].Images == nil {
			products[i].Images = []string{}
		}
	}

	if err := s.catalog.SaveProducts(ctx, products); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	s.record(models.ActionInventoryUpdate, fmt.Sprintf("Products updated via Admin (%d items)", len(products)))
	return nil
}

// SaveUpload stores a base64 image and returns its public path.
func (s *Service) SaveUpload(_ context.Context, filename, data string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: bad filename %q", ErrInvalidUpload, filename)
	}

	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	name := fmt.Sprintf("%d_%s", s.now().Unix(), base)
	if err := afero.WriteFile(s.uploads, name, raw, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	s.logger.Info("Image uploaded", zap.String("file", name), zap.Int("bytes", len(raw)))
	return uploadURLPrefix + "/" + name, nil
}

// Dataset returns one of the admin data views: users, carts, orders,
// archives or logs.
func (s *Service) Dataset(ctx context.Context, name string) (interface{}, error) {
	switch name {
	case "users":
		return s.userSummaries(ctx)
	case "carts":
		return s.activeCarts(ctx)
	case "orders":
		return s.ordersWhere(ctx, func(o models.Order) bool { return !o.Status.Archived() })
	case "archives":
		return s.ordersWhere(ctx, func(o models.Order) bool { return o.Status.Archived() })
	case "logs":
		return s.activity.ListActivity(ctx, logsLimit)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
}

func (s *Service) userSummaries(ctx context.Context) ([]UserSummary, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		phone := u.Phone
		if phone == "" {
			phone = "N/A"
		}
		out = append(out, UserSummary{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Phone:     phone,
			Joined:    u.Joined,
			LastLogin: u.LastLogin,
		})
	}
	return out, nil
}

func (s *Service) activeCarts(ctx context.Context) ([]CartSummary, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := []CartSummary{}
	for _, u := range users {
		if len(u.Cart) == 0 {
			continue
		}
		out = append(out, CartSummary{
			UserID:      u.ID,
			Name:        u.Name,
			CartItems:   len(u.Cart),
			LastUpdated: u.LastCartUpdate,
		})
	}
	return out, nil
}

// ordersWhere returns matching ledger orders, newest first.
func (s *Service) ordersWhere(ctx context.Context, keep func(models.Order) bool) ([]models.Order, error) {
	orders, err := s.ledger.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.Order{}
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// UpdateOrderStatus changes the ledger copy only. The owner's history keeps
// the snapshot taken at placement.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	st, err := models.ParseOrderStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	if err := s.ledger.UpdateOrderStatus(ctx, orderID, st); err != nil {
		return err
	}
	s.record(models.ActionOrderStatus, fmt.Sprintf("Order %s marked %s", orderID, st))
	return nil
}

func (s *Service) record(action, description string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(models.Activity{
		Timestamp:   s.now(),
		Action:      action,
		Description: description,
		User:        "Admin",
	})
}
