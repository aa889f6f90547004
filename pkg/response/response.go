// Package response writes gin responses in the shape the feed API uses: bare resources on success,
// {"detail"}, {"non_field_errors"} or per-field lists on failure, and count/next/previous pages.
package response

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/apperr"
)

// Page is the paginated envelope of list endpoints.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Success writes data with 200.
func Success(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, data)
}

// Created writes data with 201.
func Created(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusCreated, data)
}

// NoContent writes an empty 204.
func NoContent(ctx *gin.Context) {
	ctx.Status(http.StatusNoContent)
}

// Message writes {"message": msg} with 200.
func Message(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, gin.H{"message": msg})
}

// Detail aborts with {"detail": detail} and, when code is set, {"code": code}.
func Detail(ctx *gin.Context, status int, detail string, code ...string) {
	body := gin.H{"detail": detail}
	if len(code) > 0 && code[0] != "" {
		body["code"] = code[0]
	}
	ctx.AbortWithStatusJSON(status, body)
}

// NonField aborts with {"non_field_errors": msgs}.
func NonField(ctx *gin.Context, status int, msgs ...string) {
	ctx.AbortWithStatusJSON(status, gin.H{"non_field_errors": msgs})
}

// Fields aborts with one message list per field.
func Fields(ctx *gin.Context, status int, fields map[string][]string) {
	ctx.AbortWithStatusJSON(status, fields)
}

// Field aborts with a single field error.
func Field(ctx *gin.Context, status int, field, msg string) {
	Fields(ctx, status, map[string][]string{field: {msg}})
}

// JSONError writes appErr. Field suggestions become per-field lists and validation failures are
// reported as 400.
func JSONError(ctx *gin.Context, appErr *apperr.AppError) {
	if appErr == nil {
		appErr = apperr.New(apperr.ErrorCodeInternal)
	}
	status := appErr.Status
	if status == 0 || appErr.Kind == apperr.KindValidation {
		status = http.StatusBadRequest
	}
	if appErr.Kind == apperr.KindServer && appErr.Status == 0 {
		status = http.StatusInternalServerError
	}

	if len(appErr.Suggestions) > 0 {
		fields := make(map[string][]string, len(appErr.Suggestions))
		for _, s := range appErr.Suggestions {
			fields[s.Field] = append(fields[s.Field], s.Message)
		}
		Fields(ctx, status, fields)
		return
	}
	Detail(ctx, status, appErr.Message, appErr.Code)
}

// HandleError writes err, wrapping unknown errors as internal.
func HandleError(ctx *gin.Context, err error) {
	if err == nil {
		return
	}
	if ae, ok := apperr.As(err); ok {
		JSONError(ctx, ae)
		return
	}
	JSONError(ctx, apperr.New(apperr.ErrorCodeInternal).Wrap(err))
}

// Paginate writes the page-th slice of items, pageSize per page. next and previous are absolute
// links that keep the request's other query parameters.
func Paginate[T any](ctx *gin.Context, items []T, page, pageSize int) {
	if pageSize <= 0 {
		pageSize = 10
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))

	out := Page[T]{Count: len(items), Results: items[start:end]}
	if out.Results == nil {
		out.Results = []T{}
	}
	if end < len(items) {
		next := pageLink(ctx, page+1)
		out.Next = &next
	}
	if page > 1 && start > 0 {
		prev := pageLink(ctx, page-1)
		out.Previous = &prev
	}
	ctx.JSON(http.StatusOK, out)
}

// PageParam reads ?page=, defaulting to 1.
func PageParam(ctx *gin.Context) int {
	n, err := strconv.Atoi(ctx.Query("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func pageLink(ctx *gin.Context, page int) string {
	scheme := "http"
	if ctx.Request.TLS != nil {
		scheme = "https"
	}
	q := ctx.Request.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{Scheme: scheme, Host: ctx.Request.Host, Path: ctx.Request.URL.Path, RawQuery: q.Encode()}
	return u.String()
}
