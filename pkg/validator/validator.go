package validator

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	gvalidator "github.com/go-playground/validator/v10"

	"github.com/milan604/feedclient/pkg/apperr"
)

// TagErrorBuilder describes how to convert a validator.FieldError into a message
type TagErrorBuilder struct {
	Code    *apperr.ErrorCode
	Builder func(fe gvalidator.FieldError) string
}

// Validator is the wrapper around go-playground validator with extra features.
type Validator struct {
	v                *gvalidator.Validate
	tagErrorBuilders map[string]TagErrorBuilder
}

// ValidatorEngine is what payload builders and mock handlers depend on.
type ValidatorEngine interface {
	Struct(s any) *apperr.AppError
	RegisterValidation(tag string, fn gvalidator.Func) error
	RegisterTagError(tag string, code *apperr.ErrorCode, builder func(gvalidator.FieldError) string)
	ParseError(err error) *apperr.AppError
}

// New creates a Validator whose field names follow json/form/uri tags. Gin's binding engine is
// configured the same way so errors from BindJSON name fields identically.
func New() *Validator {
	v := gvalidator.New(gvalidator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)

	if be, ok := binding.Validator.Engine().(*gvalidator.Validate); ok {
		be.RegisterTagNameFunc(fieldName)
	}

	vi := &Validator{
		v:                v,
		tagErrorBuilders: make(map[string]TagErrorBuilder),
	}
	vi.registerDefaults()
	return vi
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		if name := getTagName(f, tag); name != "" {
			return name
		}
	}
	return f.Name
}

// helper to get tag name
func getTagName(f reflect.StructField, tagName string) string {
	tagValue := f.Tag.Get(tagName)
	if tagValue == "-" {
		return ""
	}
	return strings.SplitN(tagValue, ",", 2)[0]
}

func (vi *Validator) registerDefaults() {
	code := apperr.ErrorCodeValidationFail
	vi.RegisterTagError("required", code, func(fe gvalidator.FieldError) string {
		return fmt.Sprintf("%s is required", fe.Field())
	})
	vi.RegisterTagError("email", code, func(fe gvalidator.FieldError) string {
		return "Please enter a valid email address"
	})
	vi.RegisterTagError("min", code, func(fe gvalidator.FieldError) string {
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	})
	vi.RegisterTagError("max", code, func(fe gvalidator.FieldError) string {
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	})
	vi.RegisterTagError("oneof", code, func(fe gvalidator.FieldError) string {
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	})
	vi.RegisterTagError("required_without", code, func(fe gvalidator.FieldError) string {
		return fmt.Sprintf("%s is required when %s is empty", fe.Field(), fe.Param())
	})
}

// RegisterValidation registers a custom validator (name) to the engine.
func (vi *Validator) RegisterValidation(tag string, fn gvalidator.Func) error {
	return vi.v.RegisterValidation(tag, fn)
}

// RegisterTagError allows mapping tag -> ErrorCode + message builder.
func (vi *Validator) RegisterTagError(tag string, code *apperr.ErrorCode, builder func(gvalidator.FieldError) string) {
	vi.tagErrorBuilders[tag] = TagErrorBuilder{Code: code, Builder: builder}
}

// Struct validates s and returns nil or a validation AppError with one suggestion per field.
func (vi *Validator) Struct(s any) *apperr.AppError {
	if err := vi.v.Struct(s); err != nil {
		return vi.ParseError(err)
	}
	return nil
}

// ParseError converts any binding/validator/json error into *apperr.AppError
func (vi *Validator) ParseError(err error) *apperr.AppError {
	if err == nil {
		return nil
	}

	var (
		verrs     gvalidator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		timeErr   *time.ParseError
	)
	switch {
	case stdErrors.As(err, &verrs):
		appErr := apperr.New(apperr.ErrorCodeValidationFail)
		for _, fe := range verrs {
			b, ok := vi.tagErrorBuilders[fe.Tag()]
			if ok && b.Code != nil && b.Code != apperr.ErrorCodeValidationFail {
				appErr = appErr.WithCode(b.Code)
			}
			appErr.AddSuggestion(fe.Field(), vi.buildMessageForField(fe))
		}
		return appErr

	case stdErrors.As(err, &typeErr):
		appErr := apperr.New(apperr.ErrorCodeInvalidRequest)
		if typeErr.Field == "" {
			return appErr.WithMessage("Invalid request body")
		}
		return appErr.AddSuggestion(typeErr.Field,
			fmt.Sprintf("Invalid type for field %s: expected %s", typeErr.Field, typeErr.Type.String()))

	case stdErrors.As(err, &syntaxErr):
		return apperr.New(apperr.ErrorCodeInvalidRequest).WithMessage("Invalid JSON payload")

	case stdErrors.As(err, &timeErr):
		return apperr.New(apperr.ErrorCodeValidationFail).WithMessage("Invalid datetime format")

	default:
		return apperr.New(apperr.ErrorCodeInvalidRequest).WithMessage(fmt.Sprintf("Invalid input: %v", err))
	}
}

// buildMessageForField uses registered tag builders or defaults
func (vi *Validator) buildMessageForField(fe gvalidator.FieldError) string {
	if b, ok := vi.tagErrorBuilders[fe.Tag()]; ok && b.Builder != nil {
		return b.Builder(fe)
	}
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed on '%s' validation (param=%s)", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed on '%s' validation", fe.Field(), fe.Tag())
}

/* ------------------------------
   Binding helpers for gin handlers
--------------------------------*/

// BindJSON binds and validates JSON body into T. Returns either (*T, nil) or (nil, *apperr.AppError)
func BindJSON[T any](vi ValidatorEngine, ctx *gin.Context) (*T, *apperr.AppError) {
	var req T
	if err := ctx.ShouldBindJSON(&req); err != nil {
		return nil, vi.ParseError(err)
	}
	return &req, nil
}

// BindQuery binds & validates query parameters
func BindQuery[T any](vi ValidatorEngine, ctx *gin.Context) (*T, *apperr.AppError) {
	var req T
	if err := ctx.ShouldBindQuery(&req); err != nil {
		return nil, vi.ParseError(err)
	}
	return &req, nil
}

// BindForm binds & validates a multipart or urlencoded form
func BindForm[T any](vi ValidatorEngine, ctx *gin.Context) (*T, *apperr.AppError) {
	var req T
	if err := ctx.ShouldBindWith(&req, binding.FormMultipart); err != nil {
		return nil, vi.ParseError(err)
	}
	return &req, nil
}
