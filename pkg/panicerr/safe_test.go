package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeContextRecoversPanic(t *testing.T) {
	err := SafeContext(func(context.Context) error {
		panic("janitor exploded")
	})(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "janitor exploded")
}

func TestSafeContextPassesThrough(t *testing.T) {
	want := errors.New("listen failed")
	assert.Equal(t, want, SafeContext(func(context.Context) error { return want })(context.Background()))
	assert.NoError(t, SafeContext(func(context.Context) error { return nil })(context.Background()))
}
