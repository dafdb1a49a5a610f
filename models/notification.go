package models

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Contact is one addressable recipient on one channel.
type Contact struct {
	Channel Channel `json:"channel"`
	Address string  `json:"address"`
}

type NotificationKind string

const (
	NotifyCustomerSuccess NotificationKind = "customer_success"
	NotifyCustomerStatus  NotificationKind = "customer_status"
	NotifyAdminAlert      NotificationKind = "admin_alert"
)

type AlertKind string

const (
	AlertOrderPaid         AlertKind = "order_paid"
	AlertOrderCancelled    AlertKind = "order_cancelled"
	AlertPaidUnfulfillable AlertKind = "paid_unfulfillable"
)

type NotificationEvent struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	Alert         AlertKind        `json:"alert,omitempty"`
	To            Contact          `json:"to"`
	OrderID       string           `json:"order_id"`
	OrderNumber   string           `json:"order_number"`
	CustomerName  string           `json:"customer_name,omitempty"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	Status        OrderStatus      `json:"status"`
	Total         int64            `json:"total"`
	Currency      string           `json:"currency"`
	InvoiceURL    string           `json:"invoice_url,omitempty"`
	Occurred      time.Time        `json:"occurred"`
}
