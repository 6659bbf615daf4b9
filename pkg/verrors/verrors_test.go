package verrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDimensionMismatch(t *testing.T) {
	err := DimensionMismatch(3, 2)
	var dm *DimensionMismatchError
	assert.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Got)
}

func TestNotFound(t *testing.T) {
	err := NotFound("noun", "abc")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestSentinels(t *testing.T) {
	assert.True(t, IsReadOnly(ErrReadOnly))
	assert.True(t, IsWriteOnly(ErrWriteOnly))
	assert.True(t, IsCancelled(ErrCancelled))
	assert.False(t, IsReadOnly(ErrWriteOnly))
}

func TestStorageTransientUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := StorageTransient(inner)
	assert.True(t, IsTransient(err))
	assert.True(t, errors.Is(err, inner))
}
