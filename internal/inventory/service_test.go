package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/store"
	"github.com/ariefcatur/go-storefront-core/internal/store/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	inv, err := svc.Create(ctx, "p-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, inv.AvailableStock)

	got, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalStock)

	_, err = svc.Create(ctx, "p-1", 3)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserveFinalizeReleaseInTx(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.Create(ctx, "p-1", 5)
	require.NoError(t, err)

	require.NoError(t, svc.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := svc.Reserve(ctx, tx, "p-1", 3); err != nil {
			return err
		}
		if err := svc.Finalize(ctx, tx, "p-1", 2); err != nil {
			return err
		}
		return svc.Release(ctx, tx, "p-1", 1)
	}))

	got, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Inventory{ProductID: "p-1", TotalStock: 3, AvailableStock: 3, ReservedStock: 0},
		domain.Inventory{ProductID: got.ProductID, TotalStock: got.TotalStock, AvailableStock: got.AvailableStock, ReservedStock: got.ReservedStock})
}

func TestReserveMissingRowIsInsufficientStock(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	err := svc.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return svc.Reserve(ctx, tx, "ghost", 1)
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
}

func TestAdjustTotal(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, _ = svc.Create(ctx, "p-1", 5)
	require.NoError(t, svc.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return svc.Reserve(ctx, tx, "p-1", 4)
	}))

	inv, err := svc.AdjustTotal(ctx, "p-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 6, inv.AvailableStock)
	assert.Equal(t, 4, inv.ReservedStock)

	_, err = svc.AdjustTotal(ctx, "p-1", 2)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const stock = 7
	_, _ = svc.Create(ctx, "p-1", stock)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		qty := i%3 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return svc.Reserve(ctx, tx, "p-1", qty)
			})
			if err == nil {
				granted.Add(int64(qty))
			}
		}()
	}
	wg.Wait()

	inv, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, granted.Load(), int64(stock))
	assert.Equal(t, int(granted.Load()), inv.ReservedStock)
	require.NoError(t, inv.Check())
}

func TestPutProduct(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	p, err := svc.PutProduct(ctx, domain.Product{ID: " p-1 ", Name: "Mug", Price: decimal.RequireFromString("4.005"), Stock: 7})
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "4.01", p.Price.StringFixed(2))
	assert.Equal(t, domain.ProductStatusActive, p.Status)

	inv, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 7, inv.AvailableStock)

	// updating the catalog entry leaves the ledger alone
	_, err = svc.PutProduct(ctx, domain.Product{ID: "p-1", Name: "Mug", Price: decimal.NewFromInt(5), Status: "inactive", Stock: 99})
	require.NoError(t, err)
	inv, _ = svc.Get(ctx, "p-1")
	assert.Equal(t, 7, inv.TotalStock)

	_, err = svc.PutProduct(ctx, domain.Product{ID: "p-2", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.PutProduct(ctx, domain.Product{ID: "p-2", Name: "x", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
