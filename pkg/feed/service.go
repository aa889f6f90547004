// Package feed provides typed operations over the feed API: posts, comments, engagement,
// search and profiles. Every call goes through the shared HTTP client, so an expired access
// token is refreshed transparently. Operations never write the session.
package feed

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/go-querystring/query"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/i18n"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/session"
	"github.com/milan604/feedclient/pkg/validator"
)

// Service performs feed operations.
type Service struct {
	client    feedhttp.HTTPClient
	session   session.Reader
	validator *validator.Validator
	tr        *i18n.Translator
	log       logger.LogManager
	maxUpload int64
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l logger.LogManager) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithTranslator(tr *i18n.Translator) Option {
	return func(s *Service) {
		if tr != nil {
			s.tr = tr
		}
	}
}

// WithSession gives read access to the signed-in user, used to fill in the author of new
// content.
func WithSession(r session.Reader) Option {
	return func(s *Service) { s.session = r }
}

// WithMaxUploadBytes sets the local upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewService returns a Service using client for every request.
func NewService(client feedhttp.HTTPClient, opts ...Option) *Service {
	s := &Service{
		client:    client,
		validator: validator.New(),
		tr:        i18n.Default(),
		log:       logger.NewNop(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxUploadBytes is the local upload limit in effect.
func (s *Service) MaxUploadBytes() int64 { return s.maxUpload }

// values encodes a params struct with its url tags.
func values(params any) (url.Values, error) {
	v, err := query.Values(params)
	if err != nil {
		return nil, apperr.New(apperr.ErrorCodeInvalidRequest).Wrap(err)
	}
	return v, nil
}

func pageQuery(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": {strconv.Itoa(page)}}
}

func (s *Service) validate(v any) error {
	if verr := s.validator.Struct(v); verr != nil {
		return verr
	}
	return nil
}

// me returns the signed-in username, or "".
func (s *Service) me() string {
	if s.session == nil {
		return ""
	}
	u, ok := s.session.User()
	if !ok {
		return ""
	}
	return u.Username
}

func (s *Service) debug(ctx context.Context, format string, args ...any) {
	s.log.DebugFCtx(ctx, format, args...)
}

// asBackend summarises err with the most specific message the backend sent, if any.
func asBackend(err error, fields ...string) (*apperr.AppError, bool) {
	appErr, ok := apperr.As(err)
	if !ok {
		return nil, false
	}
	msg, ok := appErr.BackendMessage(fields...)
	if !ok {
		return nil, false
	}
	return appErr.Summarize(msg), true
}
