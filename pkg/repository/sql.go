package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// orderRecord is the orders table row. Items are stored as a JSON string.
type orderRecord struct {
	ID            string    `gorm:"primaryKey;type:varchar(40)"`
	UserID        string    `gorm:"type:varchar(64);not null;index"`
	CustomerName  string    `gorm:"type:varchar(200)"`
	Phone         string    `gorm:"type:varchar(40)"`
	Address       string    `gorm:"type:text"`
	Items         string    `gorm:"type:text"`
	Total         int64     `gorm:"not null"`
	OrderType     string    `gorm:"type:varchar(32);not null"`
	PaymentStatus string    `gorm:"type:varchar(20);not null"`
	PaymentID     *string   `gorm:"type:varchar(64)"`
	Date          time.Time `gorm:"index"`
	Status        string    `gorm:"type:varchar(20);index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (orderRecord) TableName() string {
	return "orders"
}

// SQLLedger is an OrderLedger backed by a relational table.
type SQLLedger struct {
	db *gorm.DB
}

func NewSQLLedger(cfg *config.MySQLConfig) (*SQLLedger, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	return NewSQLLedgerFromDB(db)
}

// NewSQLLedgerFromDB migrates the orders table on an existing connection.
func NewSQLLedgerFromDB(db *gorm.DB) (*SQLLedger, error) {
	if err := db.AutoMigrate(&orderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &SQLLedger{db: db}, nil
}

func (l *SQLLedger) AppendOrder(ctx context.Context, order models.Order) error {
	rec, err := toRecord(order)
	if err != nil {
		return err
	}

	err = l.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (l *SQLLedger) ListOrders(ctx context.Context) ([]models.Order, error) {
	var recs []orderRecord
	if err := l.db.WithContext(ctx).Order("date asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]models.Order, 0, len(recs))
	for _, rec := range recs {
		o, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", rec.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (l *SQLLedger) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res := l.db.WithContext(ctx).Model(&orderRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status.String(),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (l *SQLLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(o models.Order) (orderRecord, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orderRecord{}, fmt.Errorf("encode items: %w", err)
	}
	return orderRecord{
		ID:            o.ID,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		Phone:         o.Phone,
		Address:       o.Address,
		Items:         string(items),
		Total:         o.Total,
		OrderType:     o.OrderType.String(),
		PaymentStatus: o.PaymentStatus.String(),
		PaymentID:     o.PaymentID,
		Date:          o.Date,
		Status:        o.Status.String(),
	}, nil
}

func fromRecord(rec orderRecord) (models.Order, error) {
	o := models.Order{
		ID:           rec.ID,
		UserID:       rec.UserID,
		CustomerName: rec.CustomerName,
		Phone:        rec.Phone,
		Address:      rec.Address,
		Total:        rec.Total,
		PaymentID:    rec.PaymentID,
		Date:         rec.Date,
	}
	if err := json.Unmarshal([]byte(rec.Items), &o.Items); err != nil {
		return o, fmt.Errorf("decode items: %w", err)
	}
	if err := o.OrderType.UnmarshalText([]byte(rec.OrderType)); err != nil {
		return o, err
	}
	if err := o.PaymentStatus.UnmarshalText([]byte(rec.PaymentStatus)); err != nil {
		return o, err
	}
	if err := o.Status.UnmarshalText([]byte(rec.Status)); err != nil {
		return o, err
	}
	return o, nil
}
