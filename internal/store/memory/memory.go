// Package memory is an in-process store.Store. Transactions are serialized
// and run against a private copy of the state that replaces the shared one
// on commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

var now = func() time.Time { return time.Now().UTC() }

type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Close() {}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type state struct {
	products  map[string]domain.Product
	inventory map[string]domain.Inventory
	carts     map[string]*domain.Cart // by user id
	orders    map[string]*domain.Order
	payments  map[string]*domain.Payment
}

func newState() *state {
	return &state{
		products:  map[string]domain.Product{},
		inventory: map[string]domain.Inventory{},
		carts:     map[string]*domain.Cart{},
		orders:    map[string]*domain.Order{},
		payments:  map[string]*domain.Payment{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = copyCart(v)
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	return c
}

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem(nil), c.Items...)
	return &out
}

func copyOrder(o *domain.Order) *domain.Order {
	out := *o
	out.Items = append([]domain.OrderItem(nil), o.Items...)
	return &out
}

type tx struct{ st *state }

func (t *tx) GetProduct(_ context.Context, id string) (domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return domain.Product{}, apperr.NotFound("product %s not found", id)
	}
	return p, nil
}

func (t *tx) UpsertProduct(_ context.Context, p domain.Product) error {
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) CreateInventory(_ context.Context, inv domain.Inventory) error {
	if _, ok := t.st.inventory[inv.ProductID]; ok {
		return apperr.Conflict("inventory for product %s already exists", inv.ProductID)
	}
	t.st.inventory[inv.ProductID] = inv
	return nil
}

func (t *tx) GetInventory(_ context.Context, productID string) (domain.Inventory, error) {
	inv, ok := t.st.inventory[productID]
	if !ok {
		return domain.Inventory{}, apperr.NotFound("inventory for product %s not found", productID)
	}
	return inv, nil
}

// LockInventory is a plain read: the transaction already runs exclusively.
func (t *tx) LockInventory(ctx context.Context, productID string) (domain.Inventory, error) {
	return t.GetInventory(ctx, productID)
}

func (t *tx) UpdateInventory(_ context.Context, inv domain.Inventory) error {
	if _, ok := t.st.inventory[inv.ProductID]; !ok {
		return apperr.NotFound("inventory for product %s not found", inv.ProductID)
	}
	t.st.inventory[inv.ProductID] = inv
	return nil
}

func (t *tx) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	c, ok := t.st.carts[userID]
	if !ok {
		return nil, apperr.NotFound("cart for user %s not found", userID)
	}
	return copyCart(c), nil
}

func (t *tx) CreateCart(_ context.Context, c *domain.Cart) error {
	if _, ok := t.st.carts[c.UserID]; ok {
		return apperr.Conflict("cart for user %s already exists", c.UserID)
	}
	t.st.carts[c.UserID] = copyCart(c)
	return nil
}

func (t *tx) cartByID(id string) *domain.Cart {
	for _, c := range t.st.carts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (t *tx) AddCartItem(_ context.Context, it domain.CartItem) error {
	c := t.cartByID(it.CartID)
	if c == nil {
		return apperr.NotFound("cart %s not found", it.CartID)
	}
	if _, dup := c.ItemByProduct(it.ProductID); dup {
		return apperr.Conflict("product %s already in cart", it.ProductID)
	}
	c.Items = append(c.Items, it)
	return nil
}

func (t *tx) UpdateCartItem(_ context.Context, it domain.CartItem) error {
	c := t.cartByID(it.CartID)
	if c == nil {
		return apperr.NotFound("cart %s not found", it.CartID)
	}
	for i := range c.Items {
		if c.Items[i].ID == it.ID {
			c.Items[i] = it
			return nil
		}
	}
	return apperr.NotFound("cart item %s not found", it.ID)
}

func (t *tx) DeleteCartItems(_ context.Context, cartID string, itemIDs []string) error {
	c := t.cartByID(cartID)
	if c == nil {
		return apperr.NotFound("cart %s not found", cartID)
	}
	drop := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = true
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if !drop[it.ID] {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o *domain.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return apperr.Conflict("order %s already exists", o.ID)
	}
	t.st.orders[o.ID] = copyOrder(o)
	return nil
}

func (t *tx) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %s not found", id)
	}
	return copyOrder(o), nil
}

func (t *tx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *tx) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range t.st.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) error {
	o, ok := t.st.orders[id]
	if !ok {
		return apperr.NotFound("order %s not found", id)
	}
	o.Status = status
	o.UpdatedAt = now()
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p *domain.Payment) error {
	for _, x := range t.st.payments {
		if x.OrderID == p.OrderID && x.Status == domain.PaymentPending && p.Status == domain.PaymentPending {
			return apperr.Conflict("order %s already has a pending payment", p.OrderID)
		}
	}
	cp := *p
	t.st.payments[p.ID] = &cp
	return nil
}

func (t *tx) findPayment(match func(*domain.Payment) bool) (*domain.Payment, error) {
	var best *domain.Payment
	for _, p := range t.st.payments {
		if !match(p) {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, apperr.NotFound("payment not found")
	}
	cp := *best
	return &cp, nil
}

func (t *tx) FindPendingPayment(_ context.Context, orderID, userID string) (*domain.Payment, error) {
	return t.findPayment(func(p *domain.Payment) bool {
		return p.OrderID == orderID && p.UserID == userID && p.Status == domain.PaymentPending
	})
}

func (t *tx) FindPaymentBySession(_ context.Context, orderID, userID, gatewayOrderID string) (*domain.Payment, error) {
	return t.findPayment(func(p *domain.Payment) bool {
		return p.OrderID == orderID && p.UserID == userID && p.GatewayOrderID == gatewayOrderID
	})
}

func (t *tx) FindPaymentByCapture(_ context.Context, orderID, gatewayPaymentID string) (*domain.Payment, error) {
	return t.findPayment(func(p *domain.Payment) bool {
		return p.OrderID == orderID && p.GatewayPaymentID != "" && p.GatewayPaymentID == gatewayPaymentID
	})
}

func (t *tx) FindPaymentByGatewayOrder(_ context.Context, gatewayOrderID string) (*domain.Payment, error) {
	return t.findPayment(func(p *domain.Payment) bool {
		return p.GatewayOrderID == gatewayOrderID
	})
}

func (t *tx) MarkPaymentFailed(_ context.Context, id string) error {
	p, ok := t.st.payments[id]
	if !ok {
		return apperr.NotFound("payment %s not found", id)
	}
	if p.Status == domain.PaymentSuccess {
		return apperr.Conflict("payment %s already captured", id)
	}
	p.Status = domain.PaymentFailed
	p.UpdatedAt = now()
	return nil
}

func (t *tx) CapturePayment(_ context.Context, id, gatewayPaymentID, signature string) error {
	p, ok := t.st.payments[id]
	if !ok {
		return apperr.NotFound("payment %s not found", id)
	}
	if p.Status != domain.PaymentPending {
		return apperr.Conflict("payment %s is no longer pending", id)
	}
	for _, x := range t.st.payments {
		if x.ID != id && x.OrderID == p.OrderID && gatewayPaymentID != "" && x.GatewayPaymentID == gatewayPaymentID {
			return apperr.Conflict("gateway payment %s already recorded for order %s", gatewayPaymentID, p.OrderID)
		}
	}
	p.GatewayPaymentID = gatewayPaymentID
	p.GatewaySignature = signature
	p.Status = domain.PaymentSuccess
	p.UpdatedAt = now()
	return nil
}
