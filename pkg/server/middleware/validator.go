package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/validator"
)

const ValidatorKey = "feedclient_validator"

// ValidatorMiddleware makes vi available to handlers through GetValidator.
func ValidatorMiddleware(vi *validator.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ValidatorKey, vi)
		c.Next()
	}
}

// GetValidator retrieves the validator from the gin context.
func GetValidator(c *gin.Context) (*validator.Validator, bool) {
	v, ok := c.Get(ValidatorKey)
	if !ok {
		return nil, false
	}
	vi, ok := v.(*validator.Validator)
	return vi, ok
}
