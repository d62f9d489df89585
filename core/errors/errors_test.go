package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindConfig, "config"},
		{KindModel, "model"},
		{KindInput, "input"},
		{Kind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestErrorError(t *testing.T) {
	t.Run("with underlying error", func(t *testing.T) {
		err := Model("load", "bad header", errors.New("unexpected EOF"))
		assert.Equal(t, "[model] load: bad header: unexpected EOF", err.Error())
	})

	t.Run("without op", func(t *testing.T) {
		err := New(KindConfig, "", "no languages", nil)
		assert.Equal(t, "[config] no languages", err.Error())
	})

	t.Run("with context", func(t *testing.T) {
		err := Config("build", "empty language", nil).
			WithContext("lang", "fr").
			WithContext("texts", "0")
		assert.Equal(t, "[config] build: empty language (lang=fr texts=0)", err.Error())
	})
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Modelf("load", "line %d", 4))

	assert.True(t, IsModel(err))
	assert.False(t, IsConfig(err))
	assert.False(t, IsInput(err))
	assert.True(t, errors.Is(err, ErrModel))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("permission denied")
	err := Input("read", "cannot open corpus file", base)

	assert.Same(t, base, err.Unwrap())
	assert.True(t, errors.Is(err, base))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(Config("x", "y", nil))
	require.True(t, ok)
	assert.Equal(t, KindConfig, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(KindInput, "op", "msg", nil))
	})

	t.Run("plain error gets kind", func(t *testing.T) {
		err := Wrap(KindInput, "read", "cannot read document", errors.New("eof"))
		assert.True(t, IsInput(err))
	})

	t.Run("existing kind preserved", func(t *testing.T) {
		inner := Model("decode", "bad probability", nil)
		err := Wrap(KindInput, "load", "cannot load model", inner)
		assert.True(t, IsModel(err))
		assert.False(t, IsInput(err))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfig, ExitCode(Config("a", "b", nil)))
	assert.Equal(t, ExitModel, ExitCode(fmt.Errorf("w: %w", Model("a", "b", nil))))
	assert.Equal(t, ExitInput, ExitCode(Input("a", "b", nil)))
}
