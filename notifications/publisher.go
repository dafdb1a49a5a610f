// Package notifications turns reconciliation outcomes into queued messages
// and delivers them through channel senders.
package notifications

import (
	"context"
	"time"

	"payment-service/models"

	"github.com/google/uuid"
)

const (
	priorityCustomer uint8 = 5
	priorityAdmin    uint8 = 9
)

type Broker interface {
	PublishJSON(ctx context.Context, messageID string, priority uint8, v any) error
}

// Publisher queues one message per recipient. It satisfies the engine's
// Notifier.
type Publisher struct {
	broker Broker
	now    func() time.Time
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker, now: time.Now}
}

func (p *Publisher) SendCustomerSuccess(ctx context.Context, to models.Contact, order *models.Order, invoiceURL string) error {
	ev := p.event(models.NotifyCustomerSuccess, to, order)
	ev.InvoiceURL = invoiceURL
	return p.publish(ctx, priorityCustomer, ev)
}

func (p *Publisher) SendCustomerStatusUpdate(ctx context.Context, to models.Contact, order *models.Order) error {
	return p.publish(ctx, priorityCustomer, p.event(models.NotifyCustomerStatus, to, order))
}

func (p *Publisher) SendAdminAlert(ctx context.Context, to models.Contact, order *models.Order, alert models.AlertKind) error {
	ev := p.event(models.NotifyAdminAlert, to, order)
	ev.Alert = alert
	ev.InvoiceURL = deref(order.InvoiceURL)
	return p.publish(ctx, priorityAdmin, ev)
}

func (p *Publisher) event(kind models.NotificationKind, to models.Contact, order *models.Order) models.NotificationEvent {
	return models.NotificationEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		To:            to,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		PaymentStatus: order.PaymentStatus,
		Status:        order.Status,
		Total:         order.Total,
		Currency:      order.Currency,
		Occurred:      p.now().UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, priority uint8, ev models.NotificationEvent) error {
	return p.broker.PublishJSON(ctx, ev.ID, priority, ev)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
