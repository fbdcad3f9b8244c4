// Package store declares the transactional ports the services run on.
// Implementations live in store/postgres and store/memory.
package store

import (
	"context"

	"github.com/ariefcatur/go-storefront-core/internal/domain"
)

// Store runs fn inside one transaction. A nil return commits, anything else
// rolls back every write fn made. Constraint violations detected at write or
// commit time come back as apperr.Conflict.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// Tx is the unit of work. Lock* methods hold the row until the transaction
// ends; callers that lock several inventory rows do so in ascending
// product id order.
type Tx interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	UpsertProduct(ctx context.Context, p domain.Product) error

	CreateInventory(ctx context.Context, inv domain.Inventory) error
	GetInventory(ctx context.Context, productID string) (domain.Inventory, error)
	LockInventory(ctx context.Context, productID string) (domain.Inventory, error)
	UpdateInventory(ctx context.Context, inv domain.Inventory) error

	// GetCart returns NotFound when the user has no cart yet.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, c *domain.Cart) error
	AddCartItem(ctx context.Context, it domain.CartItem) error
	UpdateCartItem(ctx context.Context, it domain.CartItem) error
	DeleteCartItems(ctx context.Context, cartID string, itemIDs []string) error

	InsertOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// InsertPayment fails with Conflict if the order already has a PENDING payment.
	InsertPayment(ctx context.Context, p *domain.Payment) error
	FindPendingPayment(ctx context.Context, orderID, userID string) (*domain.Payment, error)
	FindPaymentBySession(ctx context.Context, orderID, userID, gatewayOrderID string) (*domain.Payment, error)
	FindPaymentByCapture(ctx context.Context, orderID, gatewayPaymentID string) (*domain.Payment, error)
	FindPaymentByGatewayOrder(ctx context.Context, gatewayOrderID string) (*domain.Payment, error)
	MarkPaymentFailed(ctx context.Context, id string) error
	// CapturePayment moves a PENDING payment to SUCCESS. It fails with
	// Conflict when the payment is no longer PENDING or the (order id,
	// gateway payment id) pair is already recorded.
	CapturePayment(ctx context.Context, id, gatewayPaymentID, signature string) error
}
