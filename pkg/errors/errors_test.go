package errors

import (
	stdErrors "errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(fs.ErrNotExist, "open session db")
	assert.EqualError(t, err, "open session db: file does not exist")
	assert.True(t, Is(err, fs.ErrNotExist))
	assert.Contains(t, StackOf(err), "TestWrapKeepsCause")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "nothing"))
	assert.NoError(t, Wrapf(nil, "nothing %d", 1))
}

func TestStackOfInnermost(t *testing.T) {
	inner := New("boom")
	outer := Wrapf(inner, "step %d", 2)
	assert.Equal(t, inner.(*Error).StackTrace(), StackOf(outer))
	assert.Empty(t, StackOf(stdErrors.New("plain")))

	var e *Error
	assert.True(t, As(outer, &e))
}
