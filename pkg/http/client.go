package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/config"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/observability"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultUploadTimeout = 120 * time.Second
	defaultRefreshPath   = "/account/token/refresh/"
	maxResponseBytes     = 32 << 20
	peerService          = "feed-api"
)

// Client is the API client. It attaches credentials, refreshes an expired access token once per
// request and normalises every failure into *apperr.AppError. Safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	uploadClient  *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	cookies       bool
	headers       http.Header
	refreshPath   string

	tokens    TokenStore
	navigator Navigator
	auth      *AuthInterceptor
	sender    sender

	logger        logger.LogManager
	metrics       *Metrics
	tracer        trace.Tracer
	requestHooks  []RequestHook
	responseHooks []ResponseHook
}

// RequestHook is a function that can modify a request before it's sent.
type RequestHook func(*http.Request) error

// ResponseHook inspects a response after it's received. The body has already been read and is
// replayable.
type ResponseHook func(*http.Response) error

// ClientOption configures the HTTP client.
type ClientOption func(*Client)

// WithBaseURL sets the API root, e.g. https://host/api.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom http.Client. Its transport and jar are shared by uploads.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout for ordinary calls.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUploadTimeout sets the per-request timeout for multipart uploads.
func WithUploadTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.uploadTimeout = d
		}
	}
}

// WithSession sets where credentials are read from and written to.
func WithSession(store TokenStore) ClientOption {
	return func(c *Client) {
		if store != nil {
			c.tokens = store
		}
	}
}

// WithLoginRedirect sets what happens after an irrecoverable authentication failure.
func WithLoginRedirect(n Navigator) ClientOption {
	return func(c *Client) { c.navigator = n }
}

// WithLogger sets a logger for the client.
func WithLogger(l logger.LogManager) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestHook adds a hook that runs before each request.
func WithRequestHook(hook RequestHook) ClientOption {
	return func(c *Client) { c.requestHooks = append(c.requestHooks, hook) }
}

// WithResponseHook adds a hook that runs after each response.
func WithResponseHook(hook ResponseHook) ClientOption {
	return func(c *Client) { c.responseHooks = append(c.responseHooks, hook) }
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.sender.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker stops sending after failures consecutive transport or gateway failures and
// lets a trial request through after cooldown.
func WithCircuitBreaker(failures uint32, cooldown time.Duration) ClientOption {
	return func(c *Client) { c.sender.breaker = newBreaker(failures, cooldown) }
}

// WithMetrics records request and refresh metrics.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTracer wraps every attempt in a client span.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = t }
}

// WithProactiveRefresh refreshes before sending when the access token expires within buffer.
func WithProactiveRefresh(buffer time.Duration) ClientOption {
	return func(c *Client) { c.auth.proactive = buffer }
}

// WithCookieJar keeps cookies set by the backend across requests.
func WithCookieJar() ClientOption {
	return func(c *Client) { c.cookies = true }
}

// WithRefreshPath overrides the token refresh endpoint.
func WithRefreshPath(p string) ClientOption {
	return func(c *Client) { c.refreshPath = p }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers.Add(key, value) }
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       config.DefaultBaseURL,
		timeout:       defaultTimeout,
		uploadTimeout: defaultUploadTimeout,
		headers:       http.Header{},
		refreshPath:   defaultRefreshPath,
		tokens:        noTokens{},
		logger:        logger.NewNop(),
	}
	c.auth = newAuthInterceptor(c)

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	} else if c.httpClient.Timeout == 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.cookies && c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	upload := *c.httpClient
	upload.Timeout = c.uploadTimeout
	c.uploadClient = &upload

	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// State returns the interceptor state.
func (c *Client) State() AuthState { return c.auth.State() }

// ResetAuthState returns the interceptor to NORMAL.
func (c *Client) ResetAuthState() { c.auth.Reset() }

// Do sends r and decodes a 2xx JSON body into out.
func (c *Client) Do(ctx context.Context, r *Request, out any) error {
	if !r.SkipAuth {
		c.auth.beforeSend(ctx)
	}

	res, err := c.execute(ctx, r)
	if err != nil {
		return err
	}
	if res.status == http.StatusUnauthorized && !r.SkipAuth {
		if res, err = c.auth.onUnauthorized(ctx, r, res); err != nil {
			return err
		}
	}
	if res.status < 200 || res.status > 299 {
		return c.responseError(ctx, res)
	}
	return c.decode(res, out)
}

// response is a fully read reply to one attempt.
type response struct {
	status int
	header http.Header
	body   []byte
	method string
	url    string
	bearer string
}

// execute performs one attempt of r.
func (c *Client) execute(ctx context.Context, r *Request) (*response, error) {
	req, err := c.newHTTPRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if c.tracer == nil {
		return c.roundTrip(ctx, req, r)
	}

	ctx, span := observability.TraceExternalCall(ctx, c.tracer, peerService, req)
	res, err := c.roundTrip(ctx, req.WithContext(ctx), r)
	status := 0
	if res != nil {
		status = res.status
	}
	observability.EndExternalCall(span, status, err)
	return res, err
}

func (c *Client) roundTrip(ctx context.Context, req *http.Request, r *Request) (*response, error) {
	ctx = logger.WithRequestID(ctx, req.Header.Get("X-Request-ID"))

	bearer := ""
	if !r.SkipAuth {
		bearer = r.bearer
		if bearer == "" {
			bearer = c.tokens.AccessToken()
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
	}

	if err := c.applyRequestHooks(req); err != nil {
		closeBody(req)
		return nil, err
	}

	client := c.httpClient
	if r.isUpload() {
		client = c.uploadClient
	}

	c.logger.DebugFCtx(ctx, "%s %s (attempt %d)", req.Method, req.URL.Redacted(), r.attempt)
	done := c.metrics.start()
	resp, err := c.sender.send(client, req)
	if err != nil {
		done(req.Method, 0)
		closeBody(req)
		return nil, c.transportError(ctx, req, r, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	done(req.Method, resp.StatusCode)
	if err != nil {
		return nil, c.transportError(ctx, req, r, err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err := c.applyResponseHooks(resp); err != nil {
		return nil, err
	}

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
		method: req.Method,
		url:    req.URL.Redacted(),
		bearer: bearer,
	}, nil
}

// closeBody releases a request body that will never be sent, stopping any multipart writer.
func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

// applyRequestHooks applies all request hooks.
func (c *Client) applyRequestHooks(req *http.Request) error {
	for _, hook := range c.requestHooks {
		if err := hook(req); err != nil {
			return fmt.Errorf("request hook failed: %w", err)
		}
	}
	return nil
}

// applyResponseHooks applies all response hooks.
func (c *Client) applyResponseHooks(resp *http.Response) error {
	for _, hook := range c.responseHooks {
		if err := hook(resp); err != nil {
			return fmt.Errorf("response hook failed: %w", err)
		}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, req *http.Request, r *Request, err error) error {
	var appErr *apperr.AppError
	switch {
	case isBreakerOpen(err):
		appErr = apperr.New(apperr.ErrorCodeServiceUnavailable).WithRequest(req.Method, req.URL.Redacted()).Wrap(err)
		appErr.Status = 0
	case errors.Is(err, errLocalRateLimit):
		appErr = apperr.New(apperr.ErrorCodeRateLimited).WithRequest(req.Method, req.URL.Redacted()).Wrap(err)
		appErr.Status = 0
	default:
		appErr = apperr.FromTransport(err, req.Method, req.URL.Redacted(), r.isUpload())
	}
	c.logger.With(appErr.LogFields()...).WarnFCtx(ctx, "api request failed: %s", appErr.Message)
	return appErr
}

// responseError normalises a non-2xx reply and logs it.
func (c *Client) responseError(ctx context.Context, res *response) error {
	appErr := apperr.FromResponse(res.status, res.method, res.url, res.body)
	c.logger.With(appErr.LogFields()...).WarnFCtx(ctx, "api request failed: %d %s", res.status, appErr.Describe())
	return appErr
}

func (c *Client) decode(res *response, out any) error {
	if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		appErr := apperr.New(apperr.ErrorCodeInvalidResponse).WithRequest(res.method, res.url).Wrap(err)
		appErr.Status = res.status
		return appErr
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Patch performs a PATCH request with JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

// RefreshAccessToken posts the refresh token to the refresh endpoint. The call is never
// intercepted, so a rejected refresh token cannot trigger another refresh.
func (c *Client) RefreshAccessToken(ctx context.Context, refresh string) (TokenPair, error) {
	var pair TokenPair
	err := c.Do(ctx, &Request{
		Method:   http.MethodPost,
		Path:     c.refreshPath,
		Body:     map[string]string{"refresh": refresh},
		SkipAuth: true,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.Access == "" {
		return TokenPair{}, apperr.New(apperr.ErrorCodeInvalidResponse).
			WithRequest(http.MethodPost, c.resolve(c.refreshPath, nil)).
			WithMessage("Refresh response did not include an access token")
	}
	return pair, nil
}
