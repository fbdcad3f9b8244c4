// Package cart manages the per-user pre-order cart. Prices are snapshotted
// when an item is added; stock is re-checked at checkout.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/pricing"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

type Summary struct {
	Items    int             `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type View struct {
	*domain.Cart
	Summary Summary `json:"summary"`
}

type Service struct {
	Store store.Store
}

func New(st store.Store) *Service { return &Service{Store: st} }

func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	var c *domain.Cart
	err := s.withCart(ctx, userID, func(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
		c = cart
		return nil
	})
	return view(c), err
}

// AddItem puts qty of a product in the cart, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (View, error) {
	if qty <= 0 {
		return View{}, apperr.InvalidInput("quantity must be greater than zero")
	}
	var out *domain.Cart
	err := s.withCart(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Active() {
			return apperr.New(apperr.KindProductUnavailable, "product %s is not active (status=%s)", p.ID, p.Status)
		}

		if it, ok := c.ItemByProduct(productID); ok {
			it.Quantity += qty
			if it.Quantity > p.Stock {
				return apperr.New(apperr.KindInsufficientStock, "not enough stock for product %s", p.ID)
			}
			if err := tx.UpdateCartItem(ctx, it); err != nil {
				return err
			}
		} else {
			if qty > p.Stock {
				return apperr.New(apperr.KindInsufficientStock, "not enough stock for product %s", p.ID)
			}
			it := domain.CartItem{
				ID:        uuid.NewString(),
				CartID:    c.ID,
				ProductID: p.ID,
				Quantity:  qty,
				UnitPrice: p.Price,
			}
			if err := tx.AddCartItem(ctx, it); err != nil {
				return err
			}
		}
		out, err = tx.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return View{}, err
	}
	logging.FromContext(ctx).Info("cart_item_added",
		zap.String("user_id", userID), zap.String("product_id", productID), zap.Int("quantity", qty))
	return view(out), nil
}

// UpdateItem sets the quantity of a line. Zero keeps the line but makes it
// non-purchasable.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, qty int) (View, error) {
	if qty < 0 {
		return View{}, apperr.InvalidInput("quantity must not be negative")
	}
	var out *domain.Cart
	err := s.withCart(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		it, ok := c.Item(itemID)
		if !ok {
			return apperr.NotFound("cart item %s not found", itemID)
		}
		p, err := tx.GetProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if qty > p.Stock {
			return apperr.New(apperr.KindInsufficientStock, "not enough stock for product %s", p.ID)
		}
		it.Quantity = qty
		if err := tx.UpdateCartItem(ctx, it); err != nil {
			return err
		}
		out, err = tx.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return view(out), nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (View, error) {
	var out *domain.Cart
	err := s.withCart(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		if _, ok := c.Item(itemID); !ok {
			return apperr.NotFound("cart item %s not found", itemID)
		}
		if err := tx.DeleteCartItems(ctx, c.ID, []string{itemID}); err != nil {
			return err
		}
		var err error
		out, err = tx.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return view(out), nil
}

// Clear empties the cart; the cart itself stays.
func (s *Service) Clear(ctx context.Context, userID string) (View, error) {
	var out *domain.Cart
	err := s.withCart(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		ids := make([]string, 0, len(c.Items))
		for _, it := range c.Items {
			ids = append(ids, it.ID)
		}
		if err := tx.DeleteCartItems(ctx, c.ID, ids); err != nil {
			return err
		}
		c.Items = []domain.CartItem{}
		out = c
		return nil
	})
	if err != nil {
		return View{}, err
	}
	logging.FromContext(ctx).Info("cart_cleared", zap.String("user_id", userID))
	return view(out), nil
}

// withCart runs fn with the user's cart, creating it on first access. Two
// first accesses racing on the unique user id are settled by retrying once.
func (s *Service) withCart(ctx context.Context, userID string, fn func(context.Context, store.Tx, *domain.Cart) error) error {
	if userID == "" {
		return apperr.InvalidInput("user id is required")
	}
	run := func() error {
		return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			c, err := LoadOrCreate(ctx, tx, userID)
			if err != nil {
				return err
			}
			return fn(ctx, tx, c)
		})
	}
	err := run()
	if errors.Is(err, apperr.ErrConflict) {
		err = run()
	}
	return err
}

// LoadOrCreate returns the user's cart inside tx, creating an empty one
// when none exists.
func LoadOrCreate(ctx context.Context, tx store.Tx, userID string) (*domain.Cart, error) {
	c, err := tx.GetCart(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	c = &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.CreateCart(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func view(c *domain.Cart) View {
	if c == nil {
		return View{}
	}
	calc := pricing.Calculator{}
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Purchasable() {
		lines = append(lines, calc.Line(it.UnitPrice, it.Quantity))
	}
	t := calc.Totals(lines)
	return View{Cart: c, Summary: Summary{Items: t.Items, Subtotal: t.Subtotal}}
}
