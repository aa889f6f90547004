package i18n

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	tr := Default()
	assert.Equal(t, "Login failed", tr.T("en", "auth:login.failed", nil))
	assert.Equal(t, "Post not found", tr.T("", "feed:post.not_found", nil))
	assert.Contains(t, tr.Domains(), "auth")
}

func TestPluralAndInterpolation(t *testing.T) {
	tr := Default()
	assert.Equal(t, "1 comment", tr.T("en", "feed:comments.count", map[string]any{"count": 1}))
	assert.Equal(t, "4 likes", tr.T("en", "feed:likes.count", map[string]any{"count": 4}))
	assert.Equal(t, "Verification email sent to a@b.com.", tr.T("en", "auth:resend.success", map[string]any{"email": "a@b.com"}))
}

func TestFallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.json": {Data: []byte(`{"cli:hello":"Hello {{user.name}}","cli:bye":"Bye"}`)},
		"l/es.json": {Data: []byte(`{"cli:hello":"Hola {{user.name}}"}`)},
	}
	tr, err := New(WithFS(fsys, "l"), WithFallbackLocales("es"))
	require.NoError(t, err)

	data := map[string]any{"user": map[string]any{"name": "Ana"}}
	assert.Equal(t, "Hola Ana", tr.T("es-MX", "cli:hello", data))
	assert.Equal(t, "Bye", tr.T("es", "cli:bye", nil))
	assert.Equal(t, "Hola Ana", tr.T("fr", "cli:hello", data))
	assert.Equal(t, "missing.key", tr.T("en", "cli:missing.key", nil))

	_, err = tr.Lookup("es", "cli:bye")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBestMatch(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)
	tr.Add("es", "cli:x", "x")
	tr.Add("en", "cli:x", "x")

	assert.Equal(t, "es", tr.BestMatch("es_ES.UTF-8"))
	assert.Equal(t, "en", tr.BestMatch("fr-FR,en;q=0.8"))
	assert.Equal(t, "en", tr.BestMatch(""))
}

func TestContextLocale(t *testing.T) {
	ctx := ContextWithLocale(context.Background(), "en")
	assert.Equal(t, "en", LocaleFromContext(ctx))
	assert.Equal(t, "Login failed", Default().TCtx(ctx, "auth:login.failed", nil))
}
