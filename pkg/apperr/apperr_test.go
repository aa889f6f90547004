package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeForStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusBadRequest:            KindValidation,
		http.StatusUnprocessableEntity:   KindValidation,
		http.StatusConflict:              KindValidation,
		http.StatusUnauthorized:          KindAuth,
		http.StatusForbidden:             KindAuth,
		http.StatusNotFound:              KindNotFound,
		http.StatusRequestEntityTooLarge: KindUpload,
		http.StatusUnsupportedMediaType:  KindUpload,
		http.StatusGatewayTimeout:        KindNetwork,
		http.StatusTooManyRequests:       KindServer,
		http.StatusBadGateway:            KindServer,
	}
	for status, kind := range cases {
		assert.Equal(t, kind, CodeForStatus(status).Kind(), "status %d", status)
	}
}

func TestFromResponseDetail(t *testing.T) {
	a := FromResponse(401, "GET", "http://x/api/posts/", []byte(`{"detail":"Given token not valid","code":"token_not_valid"}`))
	assert.Equal(t, KindAuth, a.Kind)
	assert.Equal(t, 401, a.Status)
	assert.Equal(t, "Given token not valid", a.Detail)
	assert.Equal(t, "token_not_valid", a.BackendCode)
	assert.Equal(t, "Given token not valid", a.Error())
}

func TestFromResponseFieldsAndNested(t *testing.T) {
	body := `{"email":["A user with that email already exists."],"password":"too short","errors":{"non_field_errors":["Unable to log in"],"username":["taken"]}}`
	a := FromResponse(400, "POST", "/account/register/", []byte(body))

	assert.Equal(t, []string{"Unable to log in"}, a.NonFieldErrors)
	assert.Equal(t, []string{"A user with that email already exists."}, a.Fields["email"])
	assert.Equal(t, []string{"too short"}, a.Fields["password"])
	assert.Equal(t, []string{"taken"}, a.Fields["username"])

	msg, ok := a.BackendMessage("email")
	require.True(t, ok)
	assert.Equal(t, "Unable to log in", msg)
}

func TestDescribePriority(t *testing.T) {
	a := FromResponse(400, "POST", "/", []byte(`{"username":["taken"],"email":["bad email"]}`))
	assert.Equal(t, "bad email", a.Describe("email", "username"))
	assert.Equal(t, "taken", a.Describe("username", "email"))
	assert.Equal(t, "email: bad email", a.Describe())

	empty := FromResponse(500, "GET", "/", nil)
	assert.Equal(t, ErrorCodeInternal.Message(), empty.Describe())
	_, ok := empty.BackendMessage()
	assert.False(t, ok)
}

func TestFromResponseOddBodies(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, FromResponse(400, "", "", []byte(`["one","two"]`)).NonFieldErrors)
	assert.Equal(t, "Bad Gateway", FromResponse(502, "", "", []byte("Bad Gateway")).Detail)
	assert.Empty(t, FromResponse(502, "", "", []byte("<html><body>oops</body></html>")).Detail)
	assert.Equal(t, "boom", FromResponse(500, "", "", []byte(`{"error":"boom"}`)).Detail)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromTransport(t *testing.T) {
	refused := FromTransport(errors.New("dial tcp: connection refused"), "GET", "/posts/", false)
	assert.Equal(t, KindNetwork, refused.Kind)
	assert.Equal(t, "Cannot connect to server. Please check your connection.", refused.Error())
	assert.Zero(t, refused.Status)

	upload := FromTransport(fmt.Errorf("post: %w", timeoutErr{}), "POST", "/posts/", true)
	assert.Equal(t, KindUpload, upload.Kind)
	assert.Equal(t, ErrorCodeUploadTimeout.Message(), upload.Message)

	plain := FromTransport(context.DeadlineExceeded, "GET", "/", false)
	assert.True(t, IsCode(plain, ErrorCodeTimeout))

	canceled := FromTransport(context.Canceled, "GET", "/", false)
	assert.ErrorIs(t, canceled, context.Canceled)

	same := New(ErrorCodeNotFound)
	assert.Same(t, same, FromTransport(same, "", "", false))
}

func TestHelpers(t *testing.T) {
	err := fmt.Errorf("load feed: %w", New(ErrorCodeNotFound).WithMessage("Post not found"))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, "Post not found", UserMessage(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.ErrorIs(t, err, New(ErrorCodeNotFound))
	assert.False(t, IsKind(nil, KindNotFound))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
	assert.False(t, HasError(nil))
}

func TestValidationSuggestions(t *testing.T) {
	a := New(ErrorCodeValidationFail).AddSuggestion("email", "email must be a valid email address")
	assert.Equal(t, "email must be a valid email address", a.Describe())
	assert.Contains(t, a.LogFields(), "validation_failed")
}

func TestSummarize(t *testing.T) {
	orig := FromResponse(http.StatusBadRequest, "POST", "/account/login/",
		[]byte(`{"password":["This field may not be blank."]}`))
	sum := orig.Summarize("Invalid request. Please check your email and password.")

	assert.Equal(t, "Invalid request. Please check your email and password.", sum.Error())
	assert.Equal(t, KindValidation, sum.Kind)
	assert.Equal(t, http.StatusBadRequest, sum.Status)
	assert.True(t, errors.Is(sum, New(ErrorCodeInvalidRequest)))
	assert.True(t, IsCode(sum, ErrorCodeInvalidRequest))

	var inner *AppError
	require.True(t, errors.As(sum.Unwrap(), &inner))
	assert.Equal(t, []string{"This field may not be blank."}, inner.Fields["password"])
}
