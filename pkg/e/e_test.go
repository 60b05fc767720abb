package e

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductErrorKeepsKindAndID(t *testing.T) {
	err := Wrap("OrderUseCase.CreateOrder", NewProductError(ErrInsufficientStock, 7))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrProductNotFound)

	var pErr *ProductError
	assert.True(t, errors.As(err, &pErr))
	assert.Equal(t, int64(7), pErr.ProductID)
	assert.Contains(t, err.Error(), "insufficient stock for product 7")
}

func TestStorageDoesNotRelabelBusinessErrors(t *testing.T) {
	notFound := NewProductError(ErrProductNotFound, 3)
	assert.Same(t, error(notFound), Storage(notFound))

	invalid := Invalid(ErrItemsRequired)
	assert.ErrorIs(t, Storage(invalid), ErrInvalidRequest)
	assert.NotErrorIs(t, Storage(invalid), ErrStorageFailure)

	io := fmt.Errorf("connection reset")
	wrapped := Storage(io)
	assert.ErrorIs(t, wrapped, ErrStorageFailure)
	assert.ErrorIs(t, wrapped, io)
	assert.Same(t, wrapped, Storage(wrapped))

	assert.Nil(t, Storage(nil))
}

func TestIsRetryable(t *testing.T) {
	conflict := Storage(fmt.Errorf("%w: deadlock detected", ErrTransientConflict))

	assert.True(t, IsRetryable(conflict))
	assert.False(t, IsRetryable(Storage(errors.New("disk full"))))
}
