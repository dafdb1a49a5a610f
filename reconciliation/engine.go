// Package reconciliation is the single authority for moving an order between
// payment and fulfillment states. Correctness under concurrent delivery rests
// on the store: every transition re-reads the order under a row lock inside
// one transaction, and stock is only moved by conditional updates.
package reconciliation

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"payment-service/models"
)

// Store is the transactional order store. Methods called with the context
// passed to a Transact callback participate in that transaction. Lookups
// return sql.ErrNoRows for a missing order.
type Store interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
	FindOrderWithItems(ctx context.Context, id string) (*models.Order, error)
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	ConditionalDecrementStock(ctx context.Context, productID string, qty int) (int64, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
	UpdateOrderPayment(ctx context.Context, id string, upd models.PaymentUpdate) error
	SetInvoiceURL(ctx context.Context, id string, url string) error
	ListAdminContacts(ctx context.Context) ([]models.Contact, error)
}

type Invoicer interface {
	// Issue renders and stores the invoice, returning its URL.
	Issue(ctx context.Context, order *models.Order) (string, error)
	// FallbackURL is a signed link that renders the invoice on demand.
	FallbackURL(order *models.Order) (string, error)
}

type Notifier interface {
	SendCustomerSuccess(ctx context.Context, to models.Contact, order *models.Order, invoiceURL string) error
	SendCustomerStatusUpdate(ctx context.Context, to models.Contact, order *models.Order) error
	SendAdminAlert(ctx context.Context, to models.Contact, order *models.Order, alert models.AlertKind) error
}

type Options struct {
	// FallbackAdmins are used when the admin user set is empty. The first
	// entry is also the contact for cancellation alerts.
	FallbackAdmins []models.Contact
	EffectTimeout  time.Duration
	Logger         *slog.Logger
}

type Engine struct {
	store    Store
	invoices Invoicer
	notifier Notifier
	opts     Options
	log      *slog.Logger
	tasks    sync.WaitGroup
}

func NewEngine(store Store, invoices Invoicer, notifier Notifier, opts Options) *Engine {
	if opts.EffectTimeout <= 0 {
		opts.EffectTimeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		invoices: invoices,
		notifier: notifier,
		opts:     opts,
		log:      logger,
	}
}

type CompleteResult struct {
	AlreadyProcessed bool
	Order            *models.Order
	InvoiceURL       string
}

type FailResult struct {
	AlreadyProcessed bool
	NoopReason       string
	Order            *models.Order
	Restocked        bool
}

// CompletePayment records a captured payment. The caller has already
// authenticated the signal.
func (e *Engine) CompletePayment(ctx context.Context, orderID, paymentID string) (*CompleteResult, error) {
	order, err := e.load(ctx, orderID)
	if err != nil {
		recordTransition("complete", "error")
		return nil, err
	}
	if d := Transition(StateOf(order), EventCaptured); d.AlreadyProcessed {
		recordTransition("complete", "already_processed")
		return &CompleteResult{AlreadyProcessed: true, Order: order, InvoiceURL: deref(order.InvoiceURL)}, nil
	}

	var d Decision
	err = e.store.Transact(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockOrder(ctx, orderID)
		if err != nil {
			return notFound(err, orderID)
		}
		d = Transition(StateOf(locked), EventCaptured)
		if d.AlreadyProcessed {
			return nil
		}

		if d.Has(EffectDeductStock) {
			for _, item := range order.Items {
				n, err := e.store.ConditionalDecrementStock(ctx, item.ProductID, item.Quantity)
				if err != nil {
					return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
				}
				if n == 0 {
					return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
				}
			}
		}

		return e.store.UpdateOrderPayment(ctx, orderID, models.PaymentUpdate{
			PaymentStatus: d.Next.Payment,
			Status:        d.Next.Fulfillment,
			PaymentID:     &paymentID,
		})
	})
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			recordTransition("complete", "insufficient_stock")
			e.log.Error("paid order cannot be fulfilled",
				"order_id", orderID, "order_number", order.OrderNumber,
				"payment_id", paymentID, "product_id", stockErr.ProductID)
			e.alertAdmins(ctx, order.Snapshot(), models.AlertPaidUnfulfillable)
		} else {
			recordTransition("complete", "error")
		}
		return nil, err
	}

	if d.AlreadyProcessed {
		// Another delivery committed between our read and the lock.
		recordTransition("complete", "already_processed")
		current, err := e.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &CompleteResult{AlreadyProcessed: true, Order: current, InvoiceURL: deref(current.InvoiceURL)}, nil
	}

	recordTransition("complete", "paid")
	order.PaymentStatus, order.Status = d.Next.Payment, d.Next.Fulfillment
	order.PaymentID = &paymentID
	order.IdempotencyKey = nil
	e.log.Info("payment completed",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"payment_id", paymentID, "stock_rededucted", d.Has(EffectDeductStock))

	var invoiceURL string
	if d.Has(EffectIssueInvoice) {
		invoiceURL = e.issueInvoice(ctx, order)
	}
	e.notifyPaid(ctx, d, order.Snapshot(), invoiceURL)

	return &CompleteResult{Order: order, InvoiceURL: invoiceURL}, nil
}

// FailPayment records a failed or abandoned payment from a trusted source.
func (e *Engine) FailPayment(ctx context.Context, orderID string, reason models.PaymentStatus) (*FailResult, error) {
	return e.fail(ctx, orderID, reason, nil)
}

// ReportClientFailure is FailPayment for the unauthenticated client path: the
// caller must present the order's live idempotency key.
func (e *Engine) ReportClientFailure(ctx context.Context, orderID, failureToken string, reason models.PaymentStatus) (*FailResult, error) {
	return e.fail(ctx, orderID, reason, &failureToken)
}

func (e *Engine) fail(ctx context.Context, orderID string, reason models.PaymentStatus, token *string) (*FailResult, error) {
	ev, ok := EventForReason(reason)
	if !ok {
		return nil, ErrInvalidReason
	}

	order, err := e.load(ctx, orderID)
	if err != nil {
		recordTransition("fail", "error")
		return nil, err
	}
	if token != nil && !tokenMatches(order.IdempotencyKey, *token) {
		recordTransition("fail", "unauthorized")
		e.log.Warn("rejected client failure report", "order_id", orderID)
		return nil, ErrUnauthorized
	}
	if d := Transition(StateOf(order), ev); d.AlreadyProcessed {
		recordTransition("fail", "already_processed")
		return &FailResult{AlreadyProcessed: true, NoopReason: d.NoopReason, Order: order}, nil
	}

	var d Decision
	err = e.store.Transact(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockOrder(ctx, orderID)
		if err != nil {
			return notFound(err, orderID)
		}
		if token != nil && !tokenMatches(locked.IdempotencyKey, *token) {
			return ErrUnauthorized
		}
		d = Transition(StateOf(locked), ev)
		if d.AlreadyProcessed {
			return nil
		}

		if err := e.store.UpdateOrderPayment(ctx, orderID, models.PaymentUpdate{
			PaymentStatus: d.Next.Payment,
			Status:        d.Next.Fulfillment,
		}); err != nil {
			return err
		}

		if d.Has(EffectRestock) {
			for _, item := range order.Items {
				if err := e.store.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("restock %s: %w", item.ProductID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			recordTransition("fail", "unauthorized")
			e.log.Warn("rejected client failure report", "order_id", orderID)
		} else {
			recordTransition("fail", "error")
		}
		return nil, err
	}

	if d.AlreadyProcessed {
		recordTransition("fail", "already_processed")
		current, err := e.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &FailResult{AlreadyProcessed: true, NoopReason: d.NoopReason, Order: current}, nil
	}

	recordTransition("fail", string(reason))
	order.PaymentStatus, order.Status = d.Next.Payment, d.Next.Fulfillment
	order.IdempotencyKey = nil
	restocked := d.Has(EffectRestock)
	e.log.Info("payment marked failed",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"reason", reason, "restocked", restocked)

	e.notifyCancelled(ctx, d, order.Snapshot())

	return &FailResult{Order: order, Restocked: restocked}, nil
}

// Wait blocks until every dispatched side effect has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func (e *Engine) load(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := e.store.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	return order, nil
}

func notFound(err error, orderID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return fmt.Errorf("load order %s: %w", orderID, err)
}

func tokenMatches(key *string, token string) bool {
	if key == nil || *key == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*key), []byte(token)) == 1
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
