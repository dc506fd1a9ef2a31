package models

import "time"

// Product is an authoritative catalog record. Title is the join key used at
// checkout; prices are whole currency units.
type Product struct {
	Title  string   `json:"title" bson:"title"`
	Price  int64    `json:"price" bson:"price"`
	Images []string `json:"images" bson:"images"`
}

// FirstImage returns the cover image or "" when the product has none.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Credentials are the payment gateway keys configured by an admin.
type Credentials struct {
	KeyID     string `json:"razorpay_key_id" bson:"razorpay_key_id"`
	KeySecret string `json:"razorpay_key_secret" bson:"razorpay_key_secret"`
}

func (c Credentials) Configured() bool {
	return c.KeyID != "" && c.KeySecret != ""
}

// Activity is one entry of the system action log.
type Activity struct {
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Action      string    `json:"action" bson:"action"`
	Description string    `json:"description" bson:"description"`
	User        string    `json:"user" bson:"user"`
}

const (
	ActionUserSignup      = "USER_SIGNUP"
	ActionUserLogin       = "USER_LOGIN"
	ActionCartUpdate      = "CART_UPDATE"
	ActionInventoryUpdate = "INVENTORY_UPDATE"
	ActionConfigUpdate    = "CONFIG_UPDATE"
	ActionOrderPlaced     = "ORDER_PLACED"
	ActionOrderStatus     = "ORDER_STATUS"
)
