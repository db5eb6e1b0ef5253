package models

import (
	"encoding/json"
	"time"
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"imageUrl"`
	Lifecycle   Lifecycle `json:"-"`
	CategoryID  int64     `json:"categoryId"`
	Category    *Category `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		lifecycleJSON
	}{product(p), p.Lifecycle.toJSON()})
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type product Product
	var aux struct {
		product
		lifecycleJSON
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Product(aux.product)
	p.Lifecycle = aux.lifecycleJSON.lifecycle()
	return nil
}

type User struct {
	ID             int64     `json:"id"`
	ExternalAuthID string    `json:"externalAuthId"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	Lifecycle      Lifecycle `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u User) MarshalJSON() ([]byte, error) {
	type user User
	return json.Marshal(struct {
		user
		lifecycleJSON
	}{user(u), u.Lifecycle.toJSON()})
}

func (u *User) UnmarshalJSON(data []byte) error {
	type user User
	var aux struct {
		user
		lifecycleJSON
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.user)
	u.Lifecycle = aux.lifecycleJSON.lifecycle()
	return nil
}

type Order struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"userId"`
	User            *User         `json:"user,omitempty"`
	TotalPrice      int64         `json:"totalPrice"`
	Status          OrderStatus   `json:"status"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	ShippingAddress string        `json:"shippingAddress"`
	PaymentIntentID *string       `json:"paymentIntentId"`
	SlipURL         *string       `json:"slipUrl"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Items           []OrderItem   `json:"items"`
}

// OrderItem is immutable once written. PriceAtPurchase is the unit price
// recorded when the order was placed.
type OrderItem struct {
	ID              int64    `json:"id"`
	OrderID         int64    `json:"orderId"`
	ProductID       int64    `json:"productId"`
	Product         *Product `json:"product,omitempty"`
	Quantity        int      `json:"quantity"`
	PriceAtPurchase int64    `json:"priceAtPurchase"`
}

func (i OrderItem) Subtotal() int64 {
	return i.PriceAtPurchase * int64(i.Quantity)
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCOD          PaymentMethod = "COD"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodBankTransfer || m == PaymentMethodCOD
}
