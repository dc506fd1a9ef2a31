package models

import (
	"fmt"
	"time"
)

// GuestUserID is recorded as the owner of orders placed without a credential.
const GuestUserID = "guest"

// OrderType is how an order is paid for.
type OrderType int

const (
	CashOnDelivery OrderType = iota + 1
	OnlinePayment
)

// ParseRequestType maps the checkout request form ("COD" / "ONLINE").
func ParseRequestType(s string) (OrderType, error) {
	switch s {
	case "COD":
		return CashOnDelivery, nil
	case "ONLINE":
		return OnlinePayment, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

func (t OrderType) String() string {
	switch t {
	case CashOnDelivery:
		return "Cash on Delivery"
	case OnlinePayment:
		return "Online Payment"
	}
	return fmt.Sprintf("OrderType(%d)", int(t))
}

func (t OrderType) MarshalText() ([]byte, error) {
	switch t {
	case CashOnDelivery, OnlinePayment:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("invalid order type %d", int(t))
}

func (t *OrderType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Cash on Delivery", "COD":
		*t = CashOnDelivery
	case "Online Payment", "ONLINE":
		*t = OnlinePayment
	default:
		return fmt.Errorf("unknown order type %q", string(b))
	}
	return nil
}

type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota + 1
	PaymentPaid
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "Pending"
	case PaymentPaid:
		return "Paid"
	}
	return fmt.Sprintf("PaymentStatus(%d)", int(s))
}

func (s PaymentStatus) MarshalText() ([]byte, error) {
	switch s {
	case PaymentPending, PaymentPaid:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid payment status %d", int(s))
}

func (s *PaymentStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Pending":
		*s = PaymentPending
	case "Paid":
		*s = PaymentPaid
	default:
		return fmt.Errorf("unknown payment status %q", string(b))
	}
	return nil
}

// OrderStatus is the fulfillment state, mutated by admins after creation.
type OrderStatus int

const (
	StatusProcessing OrderStatus = iota + 1
	StatusShipped
	StatusDelivered
	StatusCancelled
	StatusArchived
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	var st OrderStatus
	if err := st.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return st, nil
}

func (s OrderStatus) String() string {
	switch s {
	case StatusProcessing:
		return "Processing"
	case StatusShipped:
		return "Shipped"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	case StatusArchived:
		return "Archived"
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// Archived reports whether the order is finished from the admin's point of view.
func (s OrderStatus) Archived() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusArchived:
		return true
	case StatusProcessing, StatusShipped:
		return false
	}
	return false
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusArchived:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("invalid order status %d", int(s))
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Processing":
		*s = StatusProcessing
	case "Shipped":
		*s = StatusShipped
	case "Delivered":
		*s = StatusDelivered
	case "Cancelled":
		*s = StatusCancelled
	case "Archived":
		*s = StatusArchived
	default:
		return fmt.Errorf("unknown order status %q", string(b))
	}
	return nil
}

// LineItem is a cart line priced against the catalog at placement time.
type LineItem struct {
	Title    string `json:"title" bson:"title"`
	Price    int64  `json:"price" bson:"price"`
	Quantity int    `json:"quantity" bson:"quantity"`
	Image    string `json:"image" bson:"image"`
}

type Order struct {
	ID            string        `json:"id" bson:"id"`
	UserID        string        `json:"user_id" bson:"user_id"`
	CustomerName  string        `json:"customer_name" bson:"customer_name"`
	Phone         string        `json:"phone" bson:"phone"`
	Address       string        `json:"address" bson:"address"`
	Items         []LineItem    `json:"items" bson:"items"`
	Total         int64         `json:"total" bson:"total"`
	OrderType     OrderType     `json:"order_type" bson:"order_type"`
	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status"`
	PaymentID     *string       `json:"payment_id" bson:"payment_id"`
	Date          time.Time     `json:"date" bson:"date"`
	Status        OrderStatus   `json:"status" bson:"status"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	if o.PaymentID != nil {
		id := *o.PaymentID
		c.PaymentID = &id
	}
	return c
}
