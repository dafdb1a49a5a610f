package reconciliation

import (
	"context"
	"fmt"

	"payment-service/models"
)

// Side effects run after commit. None of them can change the recorded
// outcome; each failure is logged and counted on its own.

func (e *Engine) effectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.opts.EffectTimeout)
}

// issueInvoice returns the stored invoice URL, or the signed fallback link
// when generation or upload fails.
func (e *Engine) issueInvoice(ctx context.Context, order *models.Order) string {
	ctx, cancel := e.effectContext(ctx)
	defer cancel()

	url, err := e.invoices.Issue(ctx, order.Snapshot())
	if err == nil {
		if err := e.store.SetInvoiceURL(ctx, order.ID, url); err != nil {
			sideEffectFailures.WithLabelValues("invoice_persist").Inc()
			e.log.Error("failed to persist invoice url", "order_id", order.ID, "error", err)
		}
		order.InvoiceURL = &url
		return url
	}

	sideEffectFailures.WithLabelValues("invoice").Inc()
	e.log.Error("invoice generation failed, using fallback link", "order_id", order.ID, "error", err)

	fallback, err := e.invoices.FallbackURL(order)
	if err != nil {
		sideEffectFailures.WithLabelValues("invoice_fallback").Inc()
		e.log.Error("failed to sign fallback invoice link", "order_id", order.ID, "error", err)
		return ""
	}
	return fallback
}

func (e *Engine) notifyPaid(ctx context.Context, d Decision, order *models.Order, invoiceURL string) {
	if d.Has(EffectNotifyCustomerSuccess) {
		for _, to := range customerContacts(order) {
			e.dispatch(ctx, "customer_success", order, func(ctx context.Context) error {
				return e.notifier.SendCustomerSuccess(ctx, to, order, invoiceURL)
			})
		}
	}
	if d.Has(EffectNotifyAdmins) {
		e.alertAdmins(ctx, order, models.AlertOrderPaid)
	}
}

func (e *Engine) notifyCancelled(ctx context.Context, d Decision, order *models.Order) {
	if d.Has(EffectNotifyCustomerStatus) {
		for _, to := range customerContacts(order) {
			e.dispatch(ctx, "customer_status", order, func(ctx context.Context) error {
				return e.notifier.SendCustomerStatusUpdate(ctx, to, order)
			})
		}
	}
	if d.Has(EffectNotifyPrimaryAdmin) && len(e.opts.FallbackAdmins) > 0 {
		to := e.opts.FallbackAdmins[0]
		e.dispatch(ctx, "admin_alert", order, func(ctx context.Context) error {
			return e.notifier.SendAdminAlert(ctx, to, order, models.AlertOrderCancelled)
		})
	}
}

// alertAdmins resolves the admin set inside its own task, then sends one
// task per contact.
func (e *Engine) alertAdmins(ctx context.Context, order *models.Order, alert models.AlertKind) {
	e.dispatch(ctx, "admin_fanout", order, func(ctx context.Context) error {
		for _, to := range e.adminContacts(ctx) {
			e.dispatch(ctx, "admin_alert", order, func(ctx context.Context) error {
				return e.notifier.SendAdminAlert(ctx, to, order, alert)
			})
		}
		return nil
	})
}

func (e *Engine) adminContacts(ctx context.Context) []models.Contact {
	contacts, err := e.store.ListAdminContacts(ctx)
	if err != nil {
		e.log.Error("failed to list admin contacts, using configured fallback", "error", err)
	}
	if len(contacts) == 0 {
		return e.opts.FallbackAdmins
	}
	return contacts
}

func (e *Engine) dispatch(ctx context.Context, effect string, order *models.Order, fn func(ctx context.Context) error) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()

		ctx, cancel := e.effectContext(ctx)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			sideEffectFailures.WithLabelValues(effect).Inc()
			e.log.Error("side effect failed",
				"effect", effect, "order_id", order.ID, "order_number", order.OrderNumber, "error", err)
		}
	}()
}

func customerContacts(order *models.Order) []models.Contact {
	var out []models.Contact
	if order.CustomerEmail != "" {
		out = append(out, models.Contact{Channel: models.ChannelEmail, Address: order.CustomerEmail})
	}
	if order.CustomerPhone != "" {
		out = append(out, models.Contact{Channel: models.ChannelSMS, Address: order.CustomerPhone})
	}
	return out
}
