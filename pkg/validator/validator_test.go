package validator

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/feedclient/pkg/apperr"
)

type signup struct {
	Email    string `json:"email" validate:"required,email" binding:"required,email"`
	Password string `json:"password" validate:"required,min=8" binding:"required,min=8"`
	Kind     string `json:"kind" validate:"omitempty,oneof=post image video"`
}

func TestStructSuggestions(t *testing.T) {
	vi := New()
	err := vi.Struct(signup{Email: "nope", Password: "short", Kind: "gif"})
	require.NotNil(t, err)
	assert.Equal(t, apperr.KindValidation, err.Kind)

	byField := map[string]string{}
	for _, s := range err.Suggestions {
		byField[s.Field] = s.Message
	}
	assert.Equal(t, "Please enter a valid email address", byField["email"])
	assert.Equal(t, "password must be at least 8 characters", byField["password"])
	assert.Equal(t, "kind must be one of: post, image, video", byField["kind"])
}

func TestStructValid(t *testing.T) {
	assert.Nil(t, New().Struct(signup{Email: "a@b.com", Password: "longenough"}))
}

func TestParseErrorJSON(t *testing.T) {
	vi := New()

	var target signup
	syntax := json.Unmarshal([]byte(`{"email":`), &target)
	assert.Equal(t, "Invalid JSON payload", vi.ParseError(syntax).Message)

	typed := json.Unmarshal([]byte(`{"email":1}`), &target)
	got := vi.ParseError(typed)
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, "email", got.Suggestions[0].Field)

	assert.Equal(t, apperr.KindValidation, vi.ParseError(errors.New("odd")).Kind)
	assert.Nil(t, vi.ParseError(nil))
}

func TestBindJSONUsesJSONNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	vi := New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	out, err := BindJSON[signup](vi, c)
	assert.Nil(t, out)
	require.NotNil(t, err)
	require.NotEmpty(t, err.Suggestions)
	assert.Equal(t, "password", err.Suggestions[0].Field)
}
