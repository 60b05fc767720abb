package usecase

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/shopspring/decimal"
)

// fakeStore — транзакционное хранилище в памяти. Блокировки строк держатся до Commit/Rollback,
// изменения транзакции видны другим только после Commit.
type fakeStore struct {
	mu            sync.Mutex
	products      map[int64]domain.Product
	orders        map[int64]domain.Order
	outbox        []*OutboxEvent
	locks         map[int64]chan struct{}
	nextProductID int64
	nextOrderID   int64
	nextItemID    int64

	beginErr    error
	commitErr   error
	rollbackErr error
	addItemErr  error
	outboxErr   error
	totalSkew   decimal.Decimal

	rollbacks       int
	rollbackCtxErrs []error
}

type fakeTxKey struct{}

func newFakeStore(products ...domain.Product) *fakeStore {
	s := &fakeStore{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
		locks:    make(map[int64]chan struct{}),
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.nextProductID = max(s.nextProductID, p.ID)
	}

	return s
}

func stockedProduct(id int64, price string, quantity int64) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "product",
		SKU:      "SKU-" + decimal.NewFromInt(id).String(),
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	}
}

func (s *fakeStore) lockFor(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}

	return ch
}

func (s *fakeStore) stock(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Quantity
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) events() []*OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *fakeStore) Begin(ctx context.Context) (context.Context, tr.Tx, error) {
	if s.beginErr != nil {
		return ctx, nil, s.beginErr
	}

	tx := &fakeTx{
		store:    s,
		active:   true,
		stock:    make(map[int64]int64),
		orders:   make(map[int64]*domain.Order),
		statuses: make(map[int64]string),
		deletes:  make(map[int64]bool),
	}

	return context.WithValue(ctx, fakeTxKey{}, tx), tx, nil
}

func txFrom(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

type fakeTx struct {
	store    *fakeStore
	active   bool
	held     []int64
	stock    map[int64]int64
	orders   map[int64]*domain.Order
	statuses map[int64]string
	deletes  map[int64]bool
	outbox   []*OutboxEvent
}

func (t *fakeTx) lock(ctx context.Context, id int64) error {
	if slices.Contains(t.held, id) {
		return nil
	}

	select {
	case t.store.lockFor(id) <- struct{}{}:
		t.held = append(t.held, id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *fakeTx) release() {
	for _, id := range t.held {
		<-t.store.lockFor(id)
	}
	t.held = nil
	t.active = false
}

func (t *fakeTx) Commit(_ context.Context) error {
	s := t.store
	if s.commitErr != nil {
		return s.commitErr
	}

	s.mu.Lock()
	for id, q := range t.stock {
		p := s.products[id]
		p.Quantity = q
		s.products[id] = p
	}
	for id, o := range t.orders {
		s.orders[id] = *o
	}
	for id, status := range t.statuses {
		o := s.orders[id]
		o.Status = status
		s.orders[id] = o
	}
	for id := range t.deletes {
		delete(s.orders, id)
	}
	s.outbox = append(s.outbox, t.outbox...)
	s.mu.Unlock()

	t.release()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	s := t.store
	s.mu.Lock()
	s.rollbacks++
	s.rollbackCtxErrs = append(s.rollbackCtxErrs, ctx.Err())
	s.mu.Unlock()

	t.release()
	return s.rollbackErr
}

func (t *fakeTx) IsActive() bool {
	return t.active
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}

// PRODUCTS

type fakeProductRepo struct {
	s *fakeStore
}

func (r *fakeProductRepo) Create(_ context.Context, product *domain.Product) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.products {
		if p.SKU == product.SKU {
			return nil, e.ErrSKUConflict
		}
	}

	r.s.nextProductID++
	created := *product
	created.ID = r.s.nextProductID
	created.CreatedAt = time.Now()
	r.s.products[created.ID] = created

	return &created, nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, e.ErrProductNotFound
	}

	return &p, nil
}

func (r *fakeProductRepo) List(_ context.Context) ([]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	products := make([]domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return int(a.ID - b.ID) })

	return products, nil
}

func (r *fakeProductRepo) Update(_ context.Context, id int64, patch *domain.ProductPatch) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, e.ErrProductNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.SKU != nil {
		p.SKU = *patch.SKU
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	now := time.Now()
	p.UpdatedAt = &now
	r.s.products[id] = p

	return &p, nil
}

func (r *fakeProductRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return e.ErrProductNotFound
	}
	delete(r.s.products, id)

	return nil
}

func (r *fakeProductRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, e.ErrTransactionNotFound
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := tx.lock(ctx, id); err != nil {
		return nil, err
	}

	// Перечитываем под блокировкой: предыдущий владелец мог закоммитить списание
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q, ok := tx.stock[id]; ok {
		p.Quantity = q
	}

	return p, nil
}

func (r *fakeProductRepo) DecrementStock(ctx context.Context, id int64, quantity int64) error {
	tx := txFrom(ctx)
	if tx == nil {
		return e.ErrTransactionNotFound
	}

	current, ok := tx.stock[id]
	if !ok {
		current = r.s.stock(id)
	}
	if current < quantity {
		return e.ErrInsufficientStock
	}
	tx.stock[id] = current - quantity

	return nil
}

// ORDERS

type fakeOrderRepo struct {
	s *fakeStore
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, e.ErrTransactionNotFound
	}

	r.s.mu.Lock()
	r.s.nextOrderID++
	id := r.s.nextOrderID
	r.s.mu.Unlock()

	created := *order
	created.ID = id
	created.CreatedAt = time.Now()
	tx.orders[id] = &created

	return copyOrder(&created), nil
}

func (r *fakeOrderRepo) AddItem(ctx context.Context, item *domain.OrderItem) (*domain.OrderItem, error) {
	if r.s.addItemErr != nil {
		return nil, r.s.addItemErr
	}

	tx := txFrom(ctx)
	order, ok := tx.orders[item.OrderID]
	if !ok {
		return nil, e.ErrOrderNotFound
	}

	r.s.mu.Lock()
	r.s.nextItemID++
	created := *item
	created.ID = r.s.nextItemID
	name := r.s.products[item.ProductID].Name
	r.s.mu.Unlock()

	created.ProductName = &name
	order.Items = append(order.Items, created)

	return &created, nil
}

func (r *fakeOrderRepo) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	tx := txFrom(ctx)
	order, ok := tx.orders[orderID]
	if !ok {
		return e.ErrOrderNotFound
	}
	order.Total = total.Add(r.s.totalSkew)

	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if tx := txFrom(ctx); tx != nil {
		if order, ok := tx.orders[id]; ok {
			return copyOrder(order), nil
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, e.ErrOrderNotFound
	}

	return copyOrder(&order), nil
}

func (r *fakeOrderRepo) List(_ context.Context) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orders := make([]domain.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return int(a.ID - b.ID) })

	return orders, nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, id int64, status string) (*domain.Order, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	txFrom(ctx).statuses[id] = status
	order.Status = status

	return order, nil
}

func (r *fakeOrderRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	txFrom(ctx).deletes[id] = true
	return nil
}

// OUTBOX

type fakeOutboxRepo struct {
	s *fakeStore
}

func (r *fakeOutboxRepo) Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error) {
	if r.s.outboxErr != nil {
		return nil, r.s.outboxErr
	}

	tx := txFrom(ctx)
	if tx == nil {
		return nil, e.ErrTransactionNotFound
	}
	tx.outbox = append(tx.outbox, event)

	return event, nil
}

func (r *fakeOutboxRepo) GetAndMarkAsProcessing(_ context.Context, _ int) ([]*OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkAsProcessed(_ context.Context, _ int64) error { return nil }

func (r *fakeOutboxRepo) MarkAsFailed(_ context.Context, _ int64) error { return nil }

func (r *fakeOutboxRepo) RequeueStale(context.Context, time.Duration) (int64, error) { return 0, nil }

// CACHE & RECEIPTS

type fakeCache struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	gens     CacheGenerations
	deleted  []int64
	sets     int
	dropped  int
	getErr   error
	delErr   error
	// setGate, если задан, держит SetProducts до закрытия канала
	setGate chan struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{products: make(map[int64]domain.Product), gens: make(CacheGenerations)}
}

func (c *fakeCache) GetProducts(_ context.Context, ids []int64) (map[int64]domain.Product, CacheGenerations, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getErr != nil {
		return nil, nil, c.getErr
	}

	found := make(map[int64]domain.Product)
	gens := make(CacheGenerations, len(ids))
	for _, id := range ids {
		gens[id] = c.gens[id]
		if p, ok := c.products[id]; ok {
			found[id] = p
		}
	}

	return found, gens, nil
}

func (c *fakeCache) SetProducts(_ context.Context, products []domain.Product, gens CacheGenerations) error {
	if c.setGate != nil {
		<-c.setGate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	for _, p := range products {
		gen, ok := gens[p.ID]
		if !ok || gen != c.gens[p.ID] {
			c.dropped++
			continue
		}
		c.products[p.ID] = p
	}

	return nil
}

func (c *fakeCache) DeleteProducts(_ context.Context, ids []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleted = append(c.deleted, ids...)
	for _, id := range ids {
		delete(c.products, id)
		c.gens[id]++
	}

	return c.delErr
}

func (c *fakeCache) cached(id int64) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	return p, ok
}

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

type fakeReceipts struct {
	mu       sync.Mutex
	archived []int64
	removed  []int64
}

func (f *fakeReceipts) ArchiveReceipt(order *domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, order.ID)
}

func (f *fakeReceipts) RemoveReceipt(orderID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, orderID)
}

func discardLogger() logger.Logger {
	return logger.New(slog.NewTextHandler(io.Discard, nil))
}

type orderFixture struct {
	uc       *OrderUseCase
	store    *fakeStore
	cache    *fakeCache
	receipts *fakeReceipts
}

func newOrderFixture(products ...domain.Product) *orderFixture {
	store := newFakeStore(products...)
	cache := newFakeCache()
	receipts := &fakeReceipts{}

	uc := NewOrderUC(
		&fakeOrderRepo{s: store},
		&fakeProductRepo{s: store},
		&fakeOutboxRepo{s: store},
		store,
		cache,
		receipts,
		discardLogger(),
		time.Second,
	)

	return &orderFixture{uc: uc, store: store, cache: cache, receipts: receipts}
}
