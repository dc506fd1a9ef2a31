package models

import (
	"time"
)

// AdminUserID is the identity carried by admin tokens; it has no user record.
const AdminUserID = "admin"

// CartLine is one entry of a cart. It is also the shape clients submit at
// checkout, where only title and quantity are trusted.
type CartLine struct {
	Title    string `json:"title" bson:"title"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

type User struct {
	ID             string     `json:"id" bson:"_id"`
	Email          string     `json:"email" bson:"email"`
	Name           string     `json:"name" bson:"name"`
	PasswordHash   string     `json:"password_hash" bson:"password_hash"`
	Avatar         *string    `json:"avatar" bson:"avatar"`
	Phone          string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Cart           []CartLine `json:"cart" bson:"cart"`
	Orders         []Order    `json:"orders" bson:"orders"`
	Joined         time.Time  `json:"joined" bson:"joined"`
	LastLogin      time.Time  `json:"last_login" bson:"last_login"`
	LastCartUpdate *time.Time `json:"last_cart_update,omitempty" bson:"last_cart_update,omitempty"`
}

// Profile is the client-facing view of a user.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Avatar    *string    `json:"avatar"`
	Cart      []CartLine `json:"cart"`
	Orders    []Order    `json:"orders"`
	Joined    time.Time  `json:"joined"`
	LastLogin time.Time  `json:"last_login"`
}

func (u User) Profile() Profile {
	p := Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		Cart:      u.Cart,
		Orders:    u.Orders,
		Joined:    u.Joined,
		LastLogin: u.LastLogin,
	}
	if p.Cart == nil {
		p.Cart = []CartLine{}
	}
	if p.Orders == nil {
		p.Orders = []Order{}
	}
	return p
}

// Clone returns a deep copy so stored and caller-held users never alias.
func (u User) Clone() User {
	c := u
	c.Cart = append([]CartLine(nil), u.Cart...)
	if u.Orders != nil {
		c.Orders = make([]Order, len(u.Orders))
		for i, o := range u.Orders {
			c.Orders[i] = o.Clone()
		}
	}
	if u.Avatar != nil {
		a := *u.Avatar
		c.Avatar = &a
	}
	if u.LastCartUpdate != nil {
		t := *u.LastCartUpdate
		c.LastCartUpdate = &t
	}
	return c
}
