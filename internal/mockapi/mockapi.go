// Package mockapi is an in-memory implementation of the feed API, used by feedmock for local
// development and by tests as a realistic backend. It issues HS256 JWTs, answers errors in the
// same shapes as the real API and keeps everything in memory.
package mockapi

import (
	"crypto/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/response"
	"github.com/milan604/feedclient/pkg/server"
	middleware "github.com/milan604/feedclient/pkg/server/middleware"
	"github.com/milan604/feedclient/pkg/validator"
)

// Defaults.
const (
	DefaultAccessTTL      = 5 * time.Minute
	DefaultRefreshTTL     = 24 * time.Hour
	DefaultVerifyTTL      = 24 * time.Hour
	DefaultPageSize       = 10
	DefaultMaxUploadBytes = 100 << 20
)

// Server is the mock backend.
type Server struct {
	store     *store
	tokens    *tokenIssuer
	validator *validator.Validator
	log       logger.LogManager

	now          func() time.Time
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	rotate       bool
	autoVerify   bool
	loginUser    bool
	pageSize     int
	maxUpload    int64
	bcryptCost   int
	engineOpts   []server.EngineOption
	loginCalls   atomic.Int64
	refreshCalls atomic.Int64

	mediaMu sync.RWMutex
	media   map[string]blob
}

type blob struct {
	contentType string
	data        []byte
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logger.LogManager) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSecret sets the token signing key. A random key is used otherwise.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) { s.refreshTTL = d }
}

// WithRotation makes the refresh endpoint return a new refresh token and blacklist the old one.
func WithRotation(enabled bool) Option {
	return func(s *Server) { s.rotate = enabled }
}

// WithAutoVerify marks new accounts verified so they can sign in right away.
func WithAutoVerify(enabled bool) Option {
	return func(s *Server) { s.autoVerify = enabled }
}

// WithLoginUser controls whether the login response includes the user object.
func WithLoginUser(enabled bool) Option {
	return func(s *Server) { s.loginUser = enabled }
}

// WithPageSize sets the size of every paginated listing.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxUploadBytes sets the largest accepted upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithClock replaces time.Now for token and verification expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithEngineOptions passes extra options to server.NewEngine, e.g. metrics or rate limiting.
func WithEngineOptions(opts ...server.EngineOption) Option {
	return func(s *Server) { s.engineOpts = append(s.engineOpts, opts...) }
}

// New returns an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		validator:  validator.New(),
		log:        logger.NewNop(),
		now:        time.Now,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		loginUser:  true,
		pageSize:   DefaultPageSize,
		maxUpload:  DefaultMaxUploadBytes,
		bcryptCost: bcrypt.MinCost,
		media:      map[string]blob{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		_, _ = rand.Read(s.secret)
	}
	s.store = newStore(s.now, DefaultVerifyTTL, s.bcryptCost)
	s.tokens = newTokenIssuer(s.secret, s.accessTTL, s.refreshTTL, s.now)
	return s
}

// Handler returns a gin engine serving the API under /api and uploaded media under /media.
func (s *Server) Handler() *gin.Engine {
	opts := append([]server.EngineOption{
		server.WithLogger(s.log),
		server.WithRecovery(true),
		server.WithValidator(s.validator),
	}, s.engineOpts...)
	engine := server.NewEngine(opts...)
	engine.MaxMultipartMemory = 8 << 20
	engine.NoRoute(func(c *gin.Context) { response.Detail(c, http.StatusNotFound, "Not found.") })
	engine.NoMethod(func(c *gin.Context) {
		response.Detail(c, http.StatusMethodNotAllowed, "Method \""+c.Request.Method+"\" not allowed.")
	})
	engine.HandleMethodNotAllowed = true

	s.Routes(engine.Group("/api"))
	engine.GET("/media/:name", s.serveMedia)
	return engine
}

// Routes registers the API endpoints on r.
func (s *Server) Routes(r gin.IRouter) {
	optional, required := s.authenticate(false), s.authenticate(true)

	acc := r.Group("/account")
	acc.POST("/login/", s.login)
	acc.POST("/register/", s.register)
	acc.POST("/token/refresh/", s.refresh)
	acc.POST("/verify-email/", s.verifyEmail)
	acc.POST("/resend-verification/", s.resendVerification)
	acc.GET("/profile/", required, s.getProfile)
	acc.PATCH("/profile/", required, s.updateProfile)
	acc.GET("/activity/", required, s.listActivity)
	acc.GET("/users/:username/posts/", optional, s.userPosts)
	acc.GET("/users/:username/stats/", optional, s.userStats)

	posts := r.Group("/posts")
	posts.GET("/", optional, s.listPosts)
	posts.POST("/", required, s.createPost)
	posts.GET("/search/", optional, s.searchPosts)
	posts.GET("/:key/", optional, s.getPost)
	posts.PATCH("/:key/", required, s.updatePost)
	posts.DELETE("/:key/", required, s.deletePost)
	posts.POST("/:key/like/", required, s.like)
	posts.POST("/:key/bookmark/", required, s.bookmark)
	posts.POST("/:key/share/", required, s.share)
	posts.GET("/:key/comments/", optional, s.listComments)
	posts.POST("/:key/comments/", required, s.createComment)
}

func (s *Server) logger(c *gin.Context) logger.LogManager { return middleware.GetLogger(c) }

// CreateUser adds an account directly, bypassing registration.
func (s *Server) CreateUser(username, email, password string, verified bool) error {
	_, _, err := s.store.createUser(username, email, password, "", verified)
	return err
}

// VerificationToken returns the newest verification token issued for email, as the verification
// email would carry it.
func (s *Server) VerificationToken(email string) (string, bool) {
	return s.store.latestVerification(email)
}

// LoginCalls counts requests to the login endpoint.
func (s *Server) LoginCalls() int64 { return s.loginCalls.Load() }

// RefreshCalls counts requests to the refresh endpoint.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// RevokeAccessTokens invalidates every access token issued so far, as if they had expired.
func (s *Server) RevokeAccessTokens() { s.tokens.revokeAll(tokenAccess) }

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() { s.tokens.revokeAll(tokenRefresh) }

// Seed creates a verified demo account with a few posts and returns its credentials.
func (s *Server) Seed() (username, email, password string, err error) {
	username, email, password = "demo", "demo@example.com", "demo-password"
	u, _, err := s.store.createUser(username, email, password, "Demo User", true)
	if err != nil {
		return "", "", "", err
	}
	s.store.createPost(u.ID, newPost{
		Title:       "Welcome to the feed",
		Content:     "This post was created by the mock backend.",
		ContentType: "post",
		Tags:        []string{"welcome", "mock"},
	})
	s.store.createPost(u.ID, newPost{
		Title:       "Shipping a release",
		Content:     "How we ship.",
		ContentType: "workflow",
		Tags:        []string{"process"},
		Steps: []workflowStep{
			{Title: "Branch", Description: "Cut a release branch"},
			{Title: "Test"},
			{Title: "Tag and publish"},
		},
	})
	return username, email, password, nil
}

func (s *Server) storeMedia(contentType, ext string, data []byte) string {
	name := uuid.NewString() + ext
	s.mediaMu.Lock()
	s.media[name] = blob{contentType: contentType, data: data}
	s.mediaMu.Unlock()
	return name
}

func (s *Server) serveMedia(c *gin.Context) {
	s.mediaMu.RLock()
	b, ok := s.media[c.Param("name")]
	s.mediaMu.RUnlock()
	if !ok {
		response.Detail(c, http.StatusNotFound, "Not found.")
		return
	}
	c.Data(http.StatusOK, b.contentType, b.data)
}

// absoluteURL turns a server path into a URL on the host the request was sent to.
func absoluteURL(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: c.Request.Host, Path: path}).String()
}
