package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(StoreIO, "writing chunk batch", cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestError_Is_MatchesByKind(t *testing.T) {
	a := New(Usage, "reserved vault name", nil)
	b := New(Usage, "empty source", nil)
	c := New(StoreSchema, "dimension mismatch", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(StoreIO, nil))
}

func TestOf_ReturnsKindForWrappedError(t *testing.T) {
	err := New(Timeout, "deadline exceeded", nil)
	wrapped := errors.Join(errors.New("context"), err)

	kind, ok := Of(wrapped)
	require.True(t, ok)
	assert.Equal(t, Timeout, kind)
	assert.True(t, Is(wrapped, Timeout))
	assert.False(t, Is(wrapped, Usage))
}

func TestRetryOnce_SucceedsOnSecondAttempt(t *testing.T) {
	attempts := 0
	err := RetryOnce(func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryOnce_SurfacesAfterSecondFailure(t *testing.T) {
	attempts := 0
	err := RetryOnce(func() error {
		attempts++
		return errors.New("still failing")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}
