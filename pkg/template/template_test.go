package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) Environment {
	return EnvironmentFunc(func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	})
}

func TestRenderSubstitutesKnownKeys(t *testing.T) {
	out, err := Render("hello {{ var.who }}", env(map[string]string{"var.who": "world"}))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRenderNoPlaceholders(t *testing.T) {
	out, err := Render("plain string", env(nil))
	require.NoError(t, err)
	assert.Equal(t, "plain string", out)
}

func TestRenderMultiplePlaceholders(t *testing.T) {
	out, err := Render("{{a}}-{{b}}-{{a}}", env(map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, err)
	assert.Equal(t, "1-2-1", out)
}

func TestRenderMissingKeyFails(t *testing.T) {
	_, err := Render("{{ var.ghost }}", env(nil))
	require.Error(t, err)
	path, ok := MissingKey(err)
	require.True(t, ok)
	assert.Equal(t, "var.ghost", path)
}

func TestRenderBadExpressionUnbalanced(t *testing.T) {
	_, err := Render("{{ var.x", env(nil))
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrBadExpression, te.Kind)
}

func TestRenderBadExpressionEmptyKey(t *testing.T) {
	_, err := Render("{{ }}", env(nil))
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrBadExpression, te.Kind)
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("{{x}}"))
	assert.False(t, HasPlaceholder("plain"))
}
