package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"payment-service/models"
)

type inTxKey struct{}

// fakeStore serializes transactions behind one mutex and restores its
// snapshot when the callback fails, which is the isolation the engine
// relies on from the real store.
type fakeStore struct {
	mu             sync.Mutex
	orders         map[string]*models.Order
	products       map[string]*models.Product
	admins         []models.Contact
	adminsErr      error
	stockMutations int
	orderUpdates   int
	invoiceURLs    map[string]string

	// beforeLock runs inside the transaction just before LockOrder reads.
	beforeLock func(s *fakeStore, id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:      map[string]*models.Order{},
		products:    map[string]*models.Product{},
		invoiceURLs: map[string]string{},
	}
}

func (s *fakeStore) addProduct(id string, stock int) {
	s.products[id] = &models.Product{ID: id, Name: id, Stock: stock, InStock: stock > 0}
}

func (s *fakeStore) addOrder(o *models.Order) {
	s.orders[o.ID] = o
}

func (s *fakeStore) guard(ctx context.Context) func() {
	if ctx.Value(inTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *fakeStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make(map[string]*models.Order, len(s.orders))
	for id, o := range s.orders {
		orders[id] = o.Snapshot()
	}
	products := make(map[string]*models.Product, len(s.products))
	for id, p := range s.products {
		cp := *p
		products[id] = &cp
	}
	mutations, updates := s.stockMutations, s.orderUpdates

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		s.orders, s.products = orders, products
		s.stockMutations, s.orderUpdates = mutations, updates
		return err
	}
	return nil
}

func (s *fakeStore) FindOrderWithItems(ctx context.Context, id string) (*models.Order, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o.Snapshot(), nil
}

func (s *fakeStore) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	defer s.guard(ctx)()
	if s.beforeLock != nil {
		hook := s.beforeLock
		s.beforeLock = nil
		hook(s, id)
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := o.Snapshot()
	cp.Items = nil
	return cp, nil
}

func (s *fakeStore) ConditionalDecrementStock(ctx context.Context, productID string, qty int) (int64, error) {
	defer s.guard(ctx)()
	p, ok := s.products[productID]
	if !ok || p.Stock < qty {
		return 0, nil
	}
	p.Stock -= qty
	p.InStock = p.Stock > 0
	s.stockMutations++
	return 1, nil
}

func (s *fakeStore) IncrementStock(ctx context.Context, productID string, qty int) error {
	defer s.guard(ctx)()
	p, ok := s.products[productID]
	if !ok {
		return errors.New("no such product")
	}
	p.Stock += qty
	p.InStock = true
	s.stockMutations++
	return nil
}

func (s *fakeStore) UpdateOrderPayment(ctx context.Context, id string, upd models.PaymentUpdate) error {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return sql.ErrNoRows
	}
	o.PaymentStatus = upd.PaymentStatus
	o.Status = upd.Status
	if upd.PaymentID != nil {
		v := *upd.PaymentID
		o.PaymentID = &v
	}
	o.IdempotencyKey = nil
	s.orderUpdates++
	return nil
}

func (s *fakeStore) SetInvoiceURL(ctx context.Context, id string, url string) error {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return sql.ErrNoRows
	}
	o.InvoiceURL = &url
	s.invoiceURLs[id] = url
	return nil
}

func (s *fakeStore) ListAdminContacts(ctx context.Context) ([]models.Contact, error) {
	defer s.guard(ctx)()
	return s.admins, s.adminsErr
}

func (s *fakeStore) order(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Snapshot()
}

func (s *fakeStore) product(id string) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

type fakeInvoicer struct {
	mu       sync.Mutex
	issued   int
	issueErr error
}

func (f *fakeInvoicer) Issue(_ context.Context, order *models.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return "https://cdn.shop.test/invoices/" + order.OrderNumber + ".html", nil
}

func (f *fakeInvoicer) FallbackURL(order *models.Order) (string, error) {
	return "https://shop.test/invoices/" + order.ID + "?token=signed", nil
}

func (f *fakeInvoicer) issueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}

type sentNotification struct {
	Kind       models.NotificationKind
	To         models.Contact
	OrderID    string
	Alert      models.AlertKind
	InvoiceURL string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentNotification
	fail  map[models.NotificationKind]error
	panic bool
}

func (f *fakeNotifier) record(n sentNotification) error {
	if f.panic {
		panic("notifier exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[n.Kind]; err != nil {
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) SendCustomerSuccess(_ context.Context, to models.Contact, order *models.Order, invoiceURL string) error {
	return f.record(sentNotification{Kind: models.NotifyCustomerSuccess, To: to, OrderID: order.ID, InvoiceURL: invoiceURL})
}

func (f *fakeNotifier) SendCustomerStatusUpdate(_ context.Context, to models.Contact, order *models.Order) error {
	return f.record(sentNotification{Kind: models.NotifyCustomerStatus, To: to, OrderID: order.ID})
}

func (f *fakeNotifier) SendAdminAlert(_ context.Context, to models.Contact, order *models.Order, alert models.AlertKind) error {
	return f.record(sentNotification{Kind: models.NotifyAdminAlert, To: to, OrderID: order.ID, Alert: alert})
}

func (f *fakeNotifier) byKind(kind models.NotificationKind) []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotification
	for _, n := range f.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
