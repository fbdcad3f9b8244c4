//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	st        *Store
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	c, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "app",
				"POSTGRES_PASSWORD": "secret",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = c

	host, err := c.Host(s.ctx)
	s.Require().NoError(err)
	port, err := c.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)

	pool, err := Connect(s.ctx, fmt.Sprintf("postgres://app:secret@%s:%s/storefront?sslmode=disable", host, port.Port()))
	s.Require().NoError(err)
	s.st = New(pool)
	s.Require().NoError(s.st.Migrate(s.ctx))
	// idempotent
	s.Require().NoError(s.st.Migrate(s.ctx))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.st != nil {
		s.st.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresSuite) tx(fn func(ctx context.Context, tx store.Tx) error) error {
	return s.st.InTx(s.ctx, fn)
}

func (s *PostgresSuite) seed(pid string, stock int) {
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpsertProduct(ctx, domain.Product{ID: pid, Name: "P " + pid,
			Price: decimal.RequireFromString("10.00"), Status: domain.ProductStatusActive, Stock: stock}); err != nil {
			return err
		}
		inv, err := domain.NewInventory(pid, stock)
		if err != nil {
			return err
		}
		return tx.CreateInventory(ctx, inv)
	}))
}

func (s *PostgresSuite) order(id, userID, pid string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID: id, UserID: userID, Status: domain.OrderPending, TotalItems: 1,
		Subtotal: decimal.RequireFromString("10.00"), Tax: decimal.RequireFromString("1.80"),
		Discount: decimal.Zero, GrandTotal: decimal.RequireFromString("11.80"),
		CreatedAt: now, UpdatedAt: now,
		Items: []domain.OrderItem{{ID: id + "-i1", OrderID: id, ProductID: pid, ProductName: "P " + pid,
			UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1, LineTotal: decimal.RequireFromString("10.00")}},
	}
}

func (s *PostgresSuite) TestInventoryRoundTripAndRollback() {
	s.seed("pg-a", 5)

	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		inv, err := tx.LockInventory(ctx, "pg-a")
		if err != nil {
			return err
		}
		if err := inv.Reserve(2); err != nil {
			return err
		}
		return tx.UpdateInventory(ctx, inv)
	}))

	_ = s.tx(func(ctx context.Context, tx store.Tx) error {
		inv, _ := tx.LockInventory(ctx, "pg-a")
		_ = inv.Reserve(3)
		_ = tx.UpdateInventory(ctx, inv)
		return apperr.New(apperr.KindInternal, "abort")
	})

	var got domain.Inventory
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.GetInventory(ctx, "pg-a")
		return err
	}))
	s.Equal(3, got.AvailableStock)
	s.Equal(2, got.ReservedStock)

	err := s.tx(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetInventory(ctx, "missing")
		return err
	})
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *PostgresSuite) TestConcurrentReservationsSerialize() {
	s.seed("pg-b", 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tx(func(ctx context.Context, tx store.Tx) error {
				inv, err := tx.LockInventory(ctx, "pg-b")
				if err != nil {
					return err
				}
				if err := inv.Reserve(1); err != nil {
					return err
				}
				return tx.UpdateInventory(ctx, inv)
			})
			if err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(3, okCount)
}

func (s *PostgresSuite) TestCartItems() {
	s.seed("pg-c", 5)
	now := time.Now().UTC()
	c := &domain.Cart{ID: "cart-pg-1", UserID: "u-cart", CreatedAt: now}

	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateCart(ctx, c); err != nil {
			return err
		}
		return tx.AddCartItem(ctx, domain.CartItem{ID: "ci-1", CartID: c.ID, ProductID: "pg-c", Quantity: 2,
			UnitPrice: decimal.RequireFromString("10.00")})
	}))

	err := s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.AddCartItem(ctx, domain.CartItem{ID: "ci-2", CartID: c.ID, ProductID: "pg-c", Quantity: 1,
			UnitPrice: decimal.RequireFromString("10.00")})
	})
	s.ErrorIs(err, apperr.ErrConflict)

	var got *domain.Cart
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeleteCartItems(ctx, c.ID, []string{"ci-1"}); err != nil {
			return err
		}
		var err error
		got, err = tx.GetCart(ctx, "u-cart")
		return err
	}))
	s.Equal(c.ID, got.ID)
	s.Empty(got.Items)
}

func (s *PostgresSuite) TestOrdersAndPayments() {
	s.seed("pg-d", 5)
	o := s.order("ord-pg-1", "u-pay", "pg-d")
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.InsertOrder(ctx, o)
	}))

	var got *domain.Order
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.LockOrder(ctx, o.ID)
		return err
	}))
	s.Require().Len(got.Items, 1)
	s.True(o.GrandTotal.Equal(got.GrandTotal))

	now := time.Now().UTC()
	pay := func(id, gw string) *domain.Payment {
		return &domain.Payment{ID: id, OrderID: o.ID, UserID: "u-pay", GatewayOrderID: gw,
			Amount: o.GrandTotal, Currency: "INR", Status: domain.PaymentPending, CreatedAt: now, UpdatedAt: now}
	}
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, pay("pay-1", "order_gw1"))
	}))
	err := s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, pay("pay-2", "order_gw2"))
	})
	s.ErrorIs(err, apperr.ErrConflict)

	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.CapturePayment(ctx, "pay-1", "pay_gw_1", "sig")
	}))
	err = s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.CapturePayment(ctx, "pay-1", "pay_gw_1", "sig")
	})
	s.ErrorIs(err, apperr.ErrConflict)

	var p *domain.Payment
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.FindPaymentByCapture(ctx, o.ID, "pay_gw_1")
		return err
	}))
	s.Equal(domain.PaymentSuccess, p.Status)
	s.Equal("sig", p.GatewaySignature)

	err = s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.MarkPaymentFailed(ctx, "pay-1")
	})
	s.ErrorIs(err, apperr.ErrConflict)

	// a FAILED session cannot be captured later
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertPayment(ctx, pay("pay-3", "order_gw3")); err != nil {
			return err
		}
		return tx.MarkPaymentFailed(ctx, "pay-3")
	}))
	err = s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.CapturePayment(ctx, "pay-3", "pay_gw_3", "sig")
	})
	s.ErrorIs(err, apperr.ErrConflict)

	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOrderStatus(ctx, o.ID, domain.OrderPaid)
	}))
	var list []domain.Order
	s.Require().NoError(s.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		list, err = tx.ListOrdersByUser(ctx, "u-pay")
		return err
	}))
	require.Len(s.T(), list, 1)
	assert.Equal(s.T(), domain.OrderPaid, list[0].Status)
}
