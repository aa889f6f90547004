// Package auth implements the account operations: login, registration, logout, token refresh
// and email verification. It is the only package besides the HTTP interceptor that writes the
// session.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/i18n"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/session"
	"github.com/milan604/feedclient/pkg/utils"
	"github.com/milan604/feedclient/pkg/validator"
)

// Endpoint paths, relative to the API root.
const (
	PathLogin              = "/account/login/"
	PathRegister           = "/account/register/"
	PathVerifyEmail        = "/account/verify-email/"
	PathResendVerification = "/account/resend-verification/"
)

// Service performs account operations against the API and keeps the session in step.
type Service struct {
	client    feedhttp.HTTPClient
	store     SessionStore
	validator *validator.Validator
	tr        *i18n.Translator
	log       logger.LogManager
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l logger.LogManager) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTranslator replaces the built-in message catalogue.
func WithTranslator(tr *i18n.Translator) Option {
	return func(s *Service) {
		if tr != nil {
			s.tr = tr
		}
	}
}

// WithValidator replaces the input validator.
func WithValidator(v *validator.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// NewService returns a Service that talks to the API through client and persists into store.
func NewService(client feedhttp.HTTPClient, store SessionStore, opts ...Option) *Service {
	s := &Service{
		client:    client,
		store:     store,
		validator: validator.New(),
		tr:        i18n.Default(),
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login signs in with an email and password. The email is tried as the username first; when the
// backend rejects it, the part before '@' is tried once. Tokens and user are saved together.
func (s *Service) Login(ctx context.Context, cred Credentials) (session.User, error) {
	cred.Email = strings.TrimSpace(cred.Email)
	if verr := s.validator.Struct(cred); verr != nil {
		return session.User{}, verr
	}

	resp, err := s.postLogin(ctx, cred.Email, cred.Password)
	if err != nil && retryWithUsername(err) {
		if local := utils.EmailLocalPart(cred.Email); local != "" && local != cred.Email {
			s.log.DebugFCtx(ctx, "login with email rejected, retrying as %s", local)
			resp, err = s.postLogin(ctx, local, cred.Password)
		}
	}
	if err != nil {
		return session.User{}, s.loginError(ctx, err)
	}
	if resp.Access == "" || resp.Refresh == "" {
		return session.User{}, apperr.New(apperr.ErrorCodeInvalidResponse).
			WithRequest(http.MethodPost, PathLogin).
			WithMessage(s.tr.TCtx(ctx, "auth:login.failed", nil))
	}

	user := deriveUser(resp.User, cred.Email)
	if err := s.store.Save(ctx, session.Session{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		User:         &user,
	}); err != nil {
		s.log.ErrorFCtx(ctx, "persisting session after login: %v", err)
		return session.User{}, apperr.New(apperr.ErrorCodeInternal).Wrap(err).
			WithMessage(s.tr.TCtx(ctx, "auth:login.failed", nil))
	}
	s.client.ResetAuthState()

	s.log.InfoFCtx(logger.WithUsername(ctx, user.Username), "signed in")
	return user, nil
}

func (s *Service) postLogin(ctx context.Context, username, password string) (*loginResponse, error) {
	var resp loginResponse
	err := s.client.Do(ctx, &feedhttp.Request{
		Method:   http.MethodPost,
		Path:     PathLogin,
		Body:     loginRequest{Username: username, Password: password},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// retryWithUsername reports whether a failed login is worth a second attempt with the username.
func retryWithUsername(err error) bool {
	switch apperr.StatusOf(err) {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return true
	}
	return false
}

// loginError picks the message shown for a failed login: detail, non_field_errors (top level or
// nested under errors), a status based text, the transport text, then a generic one.
func (s *Service) loginError(ctx context.Context, err error) error {
	appErr, ok := apperr.As(err)
	if !ok {
		return apperr.New(apperr.ErrorCodeInternal).Wrap(err).WithMessage(s.tr.TCtx(ctx, "auth:login.failed", nil))
	}
	if msg, ok := appErr.BackendMessage(); ok {
		return appErr.Summarize(msg)
	}

	var key string
	switch {
	case appErr.Status == http.StatusUnauthorized:
		key = "auth:login.unauthorized"
	case appErr.Status == http.StatusBadRequest:
		key = "auth:login.bad_request"
	case appErr.Status >= http.StatusInternalServerError:
		key = "auth:login.server"
	case appErr.Kind == apperr.KindNetwork:
		return appErr
	default:
		key = "auth:login.failed"
	}
	return appErr.Summarize(s.tr.TCtx(ctx, key, nil))
}

// Register creates an account. It never creates a session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if verr := s.validator.Struct(in); verr != nil {
		return RegisterResult{}, verr
	}

	var resp messageResponse
	err := s.client.Do(ctx, &feedhttp.Request{
		Method: http.MethodPost,
		Path:   PathRegister,
		Body: registerRequest{
			Username: utils.EmailLocalPart(in.Email),
			Email:    in.Email,
			Password: in.Password,
			Name:     in.Name,
		},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return RegisterResult{}, s.registerError(ctx, err)
	}

	s.log.InfoFCtx(ctx, "registered %s, awaiting email verification", in.Email)
	return RegisterResult{
		Email:   in.Email,
		Message: utils.DefaultIfEmpty(resp.Message, s.tr.TCtx(ctx, "auth:register.success", nil)),
	}, nil
}

// registerError: detail, non_field_errors, then email, username and password field errors,
// then status text, transport text, generic text.
func (s *Service) registerError(ctx context.Context, err error) error {
	appErr, ok := apperr.As(err)
	if !ok {
		return apperr.New(apperr.ErrorCodeInternal).Wrap(err).WithMessage(s.tr.TCtx(ctx, "auth:register.failed", nil))
	}
	if msg, ok := appErr.BackendMessage("email", "username", "password"); ok {
		return appErr.Summarize(msg)
	}

	var key string
	switch {
	case appErr.Status == http.StatusBadRequest:
		key = "auth:register.bad_request"
	case appErr.Status >= http.StatusInternalServerError:
		key = "auth:register.server"
	case appErr.Kind == apperr.KindNetwork:
		return appErr
	default:
		key = "auth:register.failed"
	}
	return appErr.Summarize(s.tr.TCtx(ctx, key, nil))
}

// Logout forgets the session locally. The backend keeps no server-side session, so no request is
// made.
func (s *Service) Logout(ctx context.Context) error {
	u, _ := s.store.User()
	err := s.store.Clear(ctx)
	s.client.ResetAuthState()
	if err != nil {
		s.log.WarnFCtx(ctx, "clearing session on logout: %v", err)
		return err
	}
	s.log.InfoFCtx(logger.WithUsername(ctx, u.Username), "signed out")
	return nil
}

// RefreshToken exchanges refresh for a new access token. It does not touch the session.
func (s *Service) RefreshToken(ctx context.Context, refresh string) (string, error) {
	if strings.TrimSpace(refresh) == "" {
		return "", apperr.New(apperr.ErrorCodeUnauthorized).
			WithMessage(s.tr.TCtx(ctx, "auth:session.expired", nil))
	}
	pair, err := s.client.RefreshAccessToken(ctx, refresh)
	if err != nil {
		return "", err
	}
	return pair.Access, nil
}

// VerifyEmail confirms an account with the token from the verification email.
func (s *Service) VerifyEmail(ctx context.Context, token string) (VerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return VerifyResult{}, apperr.New(apperr.ErrorCodeValidationFail).
			AddSuggestion("token", s.tr.TCtx(ctx, "auth:verify.invalid", nil))
	}

	var resp messageResponse
	err := s.client.Do(ctx, &feedhttp.Request{
		Method:   http.MethodPost,
		Path:     PathVerifyEmail,
		Body:     map[string]string{"token": token},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return VerifyResult{}, s.verifyError(ctx, err)
	}

	if strings.Contains(strings.ToLower(resp.Message), "already verified") {
		return VerifyResult{Status: StatusAlreadyVerified, Message: s.tr.TCtx(ctx, "auth:verify.already", nil)}, nil
	}
	return VerifyResult{
		Status:  StatusVerified,
		Message: utils.DefaultIfEmpty(resp.Message, s.tr.TCtx(ctx, "auth:verify.success", nil)),
	}, nil
}

func (s *Service) verifyError(ctx context.Context, err error) error {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindNetwork {
		return err
	}
	msg, ok := appErr.BackendMessage()
	lower := strings.ToLower(msg)
	switch {
	case !ok:
		msg = s.tr.TCtx(ctx, "auth:verify.failed", nil)
	case strings.Contains(lower, "expired"):
		msg = s.tr.TCtx(ctx, "auth:verify.expired", nil)
	case strings.Contains(lower, "invalid"):
		msg = s.tr.TCtx(ctx, "auth:verify.invalid", nil)
	}
	return appErr.Summarize(msg)
}

// ResendVerification asks the backend to send a new verification email.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	in := struct {
		Email string `json:"email" validate:"required,email"`
	}{Email: strings.TrimSpace(email)}
	if verr := s.validator.Struct(in); verr != nil {
		return "", verr
	}

	var resp messageResponse
	err := s.client.Do(ctx, &feedhttp.Request{
		Method:   http.MethodPost,
		Path:     PathResendVerification,
		Body:     in,
		SkipAuth: true,
	}, &resp)
	if err != nil {
		if appErr, ok := apperr.As(err); ok {
			if msg, ok := appErr.BackendMessage("email"); ok {
				return "", appErr.Summarize(msg)
			}
		}
		return "", err
	}
	return utils.DefaultIfEmpty(resp.Message,
		s.tr.TCtx(ctx, "auth:resend.success", map[string]any{"email": in.Email})), nil
}

// Restore loads a persisted session at startup. It reports whether the user is signed in.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	ok, err := s.store.Restore(ctx)
	if err != nil {
		return false, err
	}
	s.client.ResetAuthState()
	if ok {
		u, _ := s.store.User()
		s.log.DebugFCtx(logger.WithUsername(ctx, u.Username), "session restored")
	}
	return ok, nil
}

// CurrentUser returns the signed-in user.
func (s *Service) CurrentUser() (session.User, bool) { return s.store.User() }

// IsAuthenticated reports whether a complete session is held.
func (s *Service) IsAuthenticated() bool { return s.store.IsAuthenticated() }

// IsSessionExpired reports whether err ended the session, i.e. the caller should sign in again.
func IsSessionExpired(err error) bool {
	var appErr *apperr.AppError
	return errors.As(err, &appErr) && appErr.Kind == apperr.KindAuth && appErr.Status == http.StatusUnauthorized
}
