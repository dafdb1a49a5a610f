package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"payment-service/models"
)

// Sender delivers one rendered message on one channel.
type Sender interface {
	Send(ctx context.Context, to string, subject, body string) error
}

type Dispatcher struct {
	senders map[models.Channel]Sender
}

func NewDispatcher(senders map[models.Channel]Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

func (d *Dispatcher) Deliver(ctx context.Context, ev models.NotificationEvent) error {
	sender, ok := d.senders[ev.To.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", ev.To.Channel)
	}
	if ev.To.Address == "" {
		return fmt.Errorf("notification %s has no recipient", ev.ID)
	}
	subject, body := Render(ev)
	return sender.Send(ctx, ev.To.Address, subject, body)
}

// Render builds the subject and body for ev.
func Render(ev models.NotificationEvent) (string, string) {
	amount := fmt.Sprintf("%d.%02d %s", ev.Total/100, ev.Total%100, ev.Currency)

	switch ev.Kind {
	case models.NotifyCustomerSuccess:
		var b strings.Builder
		fmt.Fprintf(&b, "Hi %s, we received your payment of %s for order %s.", nameOr(ev.CustomerName), amount, ev.OrderNumber)
		if ev.InvoiceURL != "" {
			fmt.Fprintf(&b, " Your invoice: %s", ev.InvoiceURL)
		}
		return "Order " + ev.OrderNumber + " confirmed", b.String()

	case models.NotifyCustomerStatus:
		return "Order " + ev.OrderNumber + " update",
			fmt.Sprintf("Hi %s, payment for order %s did not complete and the order has been cancelled. No amount was captured.",
				nameOr(ev.CustomerName), ev.OrderNumber)

	case models.NotifyAdminAlert:
		switch ev.Alert {
		case models.AlertOrderPaid:
			return "New paid order " + ev.OrderNumber,
				fmt.Sprintf("Order %s was paid (%s).", ev.OrderNumber, amount)
		case models.AlertPaidUnfulfillable:
			return "ACTION REQUIRED: order " + ev.OrderNumber,
				fmt.Sprintf("Payment for order %s (%s) arrived after cancellation and stock is no longer available. Refund or restock manually.",
					ev.OrderNumber, amount)
		default:
			return "Order " + ev.OrderNumber + " cancelled",
				fmt.Sprintf("Order %s was cancelled with payment status %s.", ev.OrderNumber, ev.PaymentStatus)
		}
	}
	return "Order " + ev.OrderNumber, "Order " + ev.OrderNumber + " status " + string(ev.Status)
}

func nameOr(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// LogSender records messages instead of delivering them. It stands in for a
// provider until one is configured.
type LogSender struct {
	Channel models.Channel
	Logger  *slog.Logger
}

func (s LogSender) Send(_ context.Context, to string, subject, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "channel", s.Channel, "to", to, "subject", subject, "body", body)
	return nil
}
