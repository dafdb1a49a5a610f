package repository

import (
	"context"
	"fmt"

	"payment-service/models"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// OrderRepo is the MySQL-backed order store. Methods called with a context
// produced by Transact run inside that transaction.
type OrderRepo struct {
	db *sqlx.DB
}

func NewOrderRepo(db *sqlx.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

func (r *OrderRepo) Transact(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

const orderColumns = `id, order_number, user_id, customer_name, customer_email, customer_phone,
	payment_status, status, idempotency_key, gateway_order_id, payment_id, invoice_url,
	subtotal, delivery_fee, total, currency, created_at, updated_at`

var findOrderQuery = "SELECT " + orderColumns + " FROM orders WHERE id = ?"

var findOrderByGatewayQuery = "SELECT " + orderColumns + " FROM orders WHERE gateway_order_id = ?"

var lockOrderQuery = "SELECT " + orderColumns + " FROM orders WHERE id = ? FOR UPDATE"

var findItemsQuery = `SELECT id, order_id, product_id, product_name, quantity, price_at_time
	FROM order_items WHERE order_id = ? ORDER BY id`

// FindOrderWithItems returns sql.ErrNoRows when the order does not exist.
func (r *OrderRepo) FindOrderWithItems(ctx context.Context, id string) (*models.Order, error) {
	return r.findWithItems(ctx, findOrderQuery, id)
}

func (r *OrderRepo) FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return r.findWithItems(ctx, findOrderByGatewayQuery, gatewayOrderID)
}

func (r *OrderRepo) findWithItems(ctx context.Context, query string, arg string) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, r.conn(ctx), &order, query, arg); err != nil {
		return nil, err
	}

	if err := sqlx.SelectContext(ctx, r.conn(ctx), &order.Items, findItemsQuery, order.ID); err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", order.ID, err)
	}
	return &order, nil
}

// LockOrder reads the order row with an exclusive lock held until the
// surrounding transaction ends. Items are not loaded.
func (r *OrderRepo) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, r.conn(ctx), &order, lockOrderQuery, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// MySQL evaluates SET assignments left to right, so in_stock sees the
// decremented stock.
var conditionalDecrementStockQuery = `UPDATE products SET stock = stock - ?, in_stock = stock > 0
	WHERE id = ? AND stock >= ?`

func (r *OrderRepo) ConditionalDecrementStock(ctx context.Context, productID string, qty int) (int64, error) {
	res, err := r.conn(ctx).ExecContext(ctx, conditionalDecrementStockQuery, qty, productID, qty)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var incrementStockQuery = "UPDATE products SET stock = stock + ?, in_stock = TRUE WHERE id = ?"

func (r *OrderRepo) IncrementStock(ctx context.Context, productID string, qty int) error {
	_, err := r.conn(ctx).ExecContext(ctx, incrementStockQuery, qty, productID)
	return err
}

var updateOrderPaymentQuery = `UPDATE orders
	SET payment_status = ?, status = ?, payment_id = COALESCE(?, payment_id), idempotency_key = NULL
	WHERE id = ?`

// UpdateOrderPayment records a terminal outcome and always clears the
// idempotency key.
func (r *OrderRepo) UpdateOrderPayment(ctx context.Context, id string, upd models.PaymentUpdate) error {
	res, err := r.conn(ctx).ExecContext(ctx, updateOrderPaymentQuery, upd.PaymentStatus, upd.Status, upd.PaymentID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update order %s: no rows affected", id)
	}
	return nil
}

var setInvoiceURLQuery = "UPDATE orders SET invoice_url = ? WHERE id = ?"

func (r *OrderRepo) SetInvoiceURL(ctx context.Context, id string, url string) error {
	_, err := r.conn(ctx).ExecContext(ctx, setInvoiceURLQuery, url, id)
	return err
}

var listAdminContactsQuery = "SELECT email, phone FROM users WHERE role = 'admin' ORDER BY id"

// ListAdminContacts returns one contact per non-empty admin email or phone.
func (r *OrderRepo) ListAdminContacts(ctx context.Context) ([]models.Contact, error) {
	var rows []struct {
		Email string `db:"email"`
		Phone string `db:"phone"`
	}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &rows, listAdminContactsQuery); err != nil {
		return nil, err
	}

	var contacts []models.Contact
	for _, row := range rows {
		if row.Email != "" {
			contacts = append(contacts, models.Contact{Channel: models.ChannelEmail, Address: row.Email})
		}
		if row.Phone != "" {
			contacts = append(contacts, models.Contact{Channel: models.ChannelSMS, Address: row.Phone})
		}
	}
	return contacts, nil
}
