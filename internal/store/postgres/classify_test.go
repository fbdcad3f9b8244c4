package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil, "op"))

	err := classify(fmt.Errorf("scan: %w", pgx.ErrNoRows), "get order")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	dup := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "payments_one_pending_per_order"}
	err = classify(dup, "insert payment")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), "payments_one_pending_per_order")

	other := errors.New("connection reset")
	err = classify(other, "update inventory")
	assert.ErrorIs(t, err, other)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
