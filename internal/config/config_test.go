package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "0.18", cfg.Tax().String())
	assert.True(t, cfg.DiscountAmount().IsZero())
	assert.Equal(t, "INR", cfg.Currency)
	assert.True(t, cfg.SettleInventory)
	assert.Equal(t, 15*time.Second, cfg.SessionLockTTL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Brokers())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TAX_RATE", "0.05")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SETTLE_INVENTORY", "false")
	t.Setenv("CALLBACK_WORKERS", "8")
	t.Setenv("SESSION_LOCK_TTL", "2s")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.05", cfg.Tax().String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
	assert.False(t, cfg.SettleInventory)
	assert.Equal(t, 8, cfg.CallbackWorkers)
	assert.Equal(t, 2*time.Second, cfg.SessionLockTTL)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
}

func TestValidate(t *testing.T) {
	t.Setenv("GATEWAY_KEY_ID", "rzp_test")
	t.Setenv("GATEWAY_KEY_SECRET", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.TaxRate = "-0.1"
	bad.Discount = "abc"
	bad.StoreDriver = "mysql"
	bad.GatewayKeySecret = ""

	err = bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"TAX_RATE", "DISCOUNT", "STORE_DRIVER", "GATEWAY_KEY_SECRET"} {
		assert.Contains(t, err.Error(), want)
	}
}
