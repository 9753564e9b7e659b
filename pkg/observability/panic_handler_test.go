package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanicWithCallback_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", &buf)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		defer RecoverPanicWithCallback(logger, "worker", nil)
		panic("boom")
	})
	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "context=worker")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var got interface{}
	func() {
		defer RecoverPanicWithCallback(quietLogger(), "worker", func(r interface{}) { got = r })
		panic("boom")
	}()
	assert.Equal(t, "boom", got)

	called := false
	func() {
		defer RecoverPanicWithCallback(quietLogger(), "worker", func(interface{}) { called = true })
	}()
	assert.False(t, called)
}

func TestRecoverError(t *testing.T) {
	assert.NoError(t, RecoverError(nil))
	assert.EqualError(t, RecoverError("boom"), "panic: boom")

	sentinel := errors.New("sentinel")
	assert.ErrorIs(t, RecoverError(sentinel), sentinel)
}
