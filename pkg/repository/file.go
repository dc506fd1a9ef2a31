package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/storefront/pkg/models"
	"github.com/spf13/afero"
)

const maxActivityEntries = 5000

// FileRepository keeps every collection as one JSON document under a data
// directory: products.json, users.json, orders.json, admin_config.json and
// system_logs.json.
type FileRepository struct {
	products *Document[[]models.Product]
	users    *Document[[]models.User]
	orders   *Document[[]models.Order]
	config   *Document[models.Credentials]
	activity *Document[[]models.Activity]
}

func NewFileRepository(fsys afero.Fs, dir string) (*FileRepository, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &FileRepository{
		products: NewDocument[[]models.Product](fsys, filepath.Join(dir, "products.json")),
		users:    NewDocument[[]models.User](fsys, filepath.Join(dir, "users.json")),
		orders:   NewDocument[[]models.Order](fsys, filepath.Join(dir, "orders.json")),
		config:   NewDocument[models.Credentials](fsys, filepath.Join(dir, "admin_config.json")),
		activity: NewDocument[[]models.Activity](fsys, filepath.Join(dir, "system_logs.json")),
	}, nil
}

func (r *FileRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := r.products.Read(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

func (r *FileRepository) SaveProducts(ctx context.Context, products []models.Product) error {
	return r.products.Update(ctx, func(stored *[]models.Product) error {
		*stored = append([]models.Product{}, products...)
		return nil
	})
}

func (r *FileRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	users, err := r.users.Read(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *FileRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := r.users.Read(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *FileRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := r.users.Read(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (r *FileRepository) CreateUser(ctx context.Context, user models.User) error {
	return r.users.Update(ctx, func(users *[]models.User) error {
		for _, u := range *users {
			if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
				return ErrUserExists
			}
		}
		*users = append(*users, user.Clone())
		return nil
	})
}

func (r *FileRepository) SaveUser(ctx context.Context, user models.User) error {
	return r.UpdateUser(ctx, user.ID, func(u *models.User) error {
		*u = user.Clone()
		return nil
	})
}

func (r *FileRepository) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) error {
	return r.users.Update(ctx, func(users *[]models.User) error {
		for i := range *users {
			if (*users)[i].ID != id {
				continue
			}
			u := (*users)[i].Clone()
			if err := fn(&u); err != nil {
				return err
			}
			u.ID = id
			(*users)[i] = u
			return nil
		}
		return ErrUserNotFound
	})
}

func (r *FileRepository) AppendOrder(ctx context.Context, order models.Order) error {
	return r.orders.Update(ctx, func(orders *[]models.Order) error {
		for _, o := range *orders {
			if o.ID == order.ID {
				return ErrDuplicateOrder
			}
		}
		*orders = append(*orders, order.Clone())
		return nil
	})
}

func (r *FileRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders, err := r.orders.Read(ctx)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

func (r *FileRepository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	return r.orders.Update(ctx, func(orders *[]models.Order) error {
		for i := range *orders {
			if (*orders)[i].ID == id {
				(*orders)[i].Status = status
				return nil
			}
		}
		return ErrOrderNotFound
	})
}

func (r *FileRepository) GetCredentials(ctx context.Context) (models.Credentials, bool, error) {
	creds, err := r.config.Read(ctx)
	if err != nil {
		return models.Credentials{}, false, err
	}
	return creds, creds.Configured(), nil
}

func (r *FileRepository) SaveCredentials(ctx context.Context, creds models.Credentials) error {
	return r.config.Update(ctx, func(stored *models.Credentials) error {
		*stored = creds
		return nil
	})
}

func (r *FileRepository) AppendActivity(ctx context.Context, entry models.Activity) error {
	return r.activity.Update(ctx, func(entries *[]models.Activity) error {
		*entries = append([]models.Activity{entry}, *entries...)
		if len(*entries) > maxActivityEntries {
			*entries = (*entries)[:maxActivityEntries]
		}
		return nil
	})
}

func (r *FileRepository) ListActivity(ctx context.Context, limit int) ([]models.Activity, error) {
	entries, err := r.activity.Read(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []models.Activity{}
	}
	return entries, nil
}
