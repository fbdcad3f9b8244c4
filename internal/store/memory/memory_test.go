package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv, _ := domain.NewInventory("p-1", 5)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateInventory(ctx, inv)
	}))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.LockInventory(ctx, "p-1")
		if err != nil {
			return err
		}
		if err := got.Reserve(5); err != nil {
			return err
		}
		if err := tx.UpdateInventory(ctx, got); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetInventory(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, 5, got.AvailableStock)
		assert.Equal(t, 0, got.ReservedStock)
		return nil
	}))
}

func TestCreateInventoryTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv, _ := domain.NewInventory("p-1", 1)
	create := func(ctx context.Context, tx store.Tx) error { return tx.CreateInventory(ctx, inv) }

	require.NoError(t, s.InTx(ctx, create))
	assert.ErrorIs(t, s.InTx(ctx, create), apperr.ErrConflict)
}

func TestSinglePendingPaymentPerOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	mk := func(id, session string) *domain.Payment {
		return &domain.Payment{
			ID: id, OrderID: "o-1", UserID: "u-1", GatewayOrderID: session,
			Amount: decimal.NewFromInt(10), Currency: "INR", Status: domain.PaymentPending,
			CreatedAt: time.Now(),
		}
	}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, mk("pay-1", "gw-1"))
	}))
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, mk("pay-2", "gw-2"))
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.FindPendingPayment(ctx, "o-1", "u-1")
		require.NoError(t, err)
		assert.Equal(t, "gw-1", p.GatewayOrderID)
		return nil
	}))
}

func TestCapturePaymentCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, &domain.Payment{
			ID: "pay-1", OrderID: "o-1", UserID: "u-1", GatewayOrderID: "gw-1", Status: domain.PaymentPending,
		})
	}))
	capture := func(ctx context.Context, tx store.Tx) error {
		return tx.CapturePayment(ctx, "pay-1", "gwp-1", "sig")
	}

	require.NoError(t, s.InTx(ctx, capture))
	assert.ErrorIs(t, s.InTx(ctx, capture), apperr.ErrConflict)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.FindPaymentByCapture(ctx, "o-1", "gwp-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentSuccess, p.Status)
		return nil
	}))
}

func TestCapturePaymentRefusesFailedSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertPayment(ctx, &domain.Payment{
			ID: "pay-1", OrderID: "o-1", UserID: "u-1", GatewayOrderID: "gw-1", Status: domain.PaymentPending,
		}); err != nil {
			return err
		}
		return tx.MarkPaymentFailed(ctx, "pay-1")
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CapturePayment(ctx, "pay-1", "gwp-1", "sig")
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.FindPaymentByGatewayOrder(ctx, "gw-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentFailed, p.Status)
		assert.Empty(t, p.GatewayPaymentID)
		return nil
	}))
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i, id := range []string{"o-old", "o-new", "o-mid"} {
			offset := map[int]time.Duration{0: 0, 1: 2 * time.Hour, 2: time.Hour}[i]
			if err := tx.InsertOrder(ctx, &domain.Order{ID: id, UserID: "u-1", CreatedAt: base.Add(offset)}); err != nil {
				return err
			}
		}
		return tx.InsertOrder(ctx, &domain.Order{ID: "o-other", UserID: "u-2", CreatedAt: base})
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.ListOrdersByUser(ctx, "u-1")
		require.NoError(t, err)
		ids := make([]string, 0, len(list))
		for _, o := range list {
			ids = append(ids, o.ID)
		}
		assert.Equal(t, []string{"o-new", "o-mid", "o-old"}, ids)
		return nil
	}))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().InTx(ctx, func(context.Context, store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
