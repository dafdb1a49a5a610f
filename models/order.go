package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "UNPAID"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentAbandoned PaymentStatus = "ABANDONED"
)

// IsFailure reports whether the payment ended without a capture.
func (s PaymentStatus) IsFailure() bool {
	return s == PaymentFailed || s == PaymentAbandoned
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order amounts are integer minor currency units (paisa, cents).
type Order struct {
	ID             string        `db:"id" json:"id"`
	OrderNumber    string        `db:"order_number" json:"order_number"`
	UserID         int64         `db:"user_id" json:"user_id"`
	CustomerName   string        `db:"customer_name" json:"customer_name"`
	CustomerEmail  string        `db:"customer_email" json:"customer_email,omitempty"`
	CustomerPhone  string        `db:"customer_phone" json:"customer_phone,omitempty"`
	PaymentStatus  PaymentStatus `db:"payment_status" json:"payment_status"`
	Status         OrderStatus   `db:"status" json:"status"`
	IdempotencyKey *string       `db:"idempotency_key" json:"-"`
	GatewayOrderID *string       `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	PaymentID      *string       `db:"payment_id" json:"payment_id,omitempty"`
	InvoiceURL     *string       `db:"invoice_url" json:"invoice_url,omitempty"`
	Subtotal       int64         `db:"subtotal" json:"subtotal"`
	DeliveryFee    int64         `db:"delivery_fee" json:"delivery_fee"`
	Total          int64         `db:"total" json:"total"`
	Currency       string        `db:"currency" json:"currency"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	Items          []OrderItem   `db:"-" json:"items"`
}

type OrderItem struct {
	ID          int64  `db:"id" json:"-"`
	OrderID     string `db:"order_id" json:"-"`
	ProductID   string `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	PriceAtTime int64  `db:"price_at_time" json:"price_at_time"`
}

// LineTotal is the snapshot price times quantity.
func (i OrderItem) LineTotal() int64 {
	return i.PriceAtTime * int64(i.Quantity)
}

type Product struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Stock   int    `db:"stock" json:"stock"`
	InStock bool   `db:"in_stock" json:"in_stock"`
}

// PaymentUpdate is the set of order fields a terminal transition writes.
type PaymentUpdate struct {
	PaymentStatus PaymentStatus
	Status        OrderStatus
	// PaymentID is left untouched when nil.
	PaymentID *string
}

// Snapshot returns a copy that shares no pointers with o.
func (o *Order) Snapshot() *Order {
	cp := *o
	cp.IdempotencyKey = copyString(o.IdempotencyKey)
	cp.GatewayOrderID = copyString(o.GatewayOrderID)
	cp.PaymentID = copyString(o.PaymentID)
	cp.InvoiceURL = copyString(o.InvoiceURL)
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
