package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/config"
	"github.com/ariefcatur/go-storefront-core/internal/payments"
)

func TestNewInMemory(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.DriverMemory)
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SETTLE_INVENTORY", "false")
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.Empty(t, a.Producers)
	assert.Nil(t, a.Callbacks())
	assert.False(t, a.Orders.SettleInventory)
	assert.IsType(t, &payments.LocalLocker{}, a.Payments.Locker)
	assert.Equal(t, "INR", a.Payments.Currency)

	_, err = a.Inventory.Create(context.Background(), "p-1", 3)
	require.NoError(t, err)
}
