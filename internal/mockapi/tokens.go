package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/milan604/feedclient/pkg/response"
)

// Token types carried in the token_type claim.
const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

const (
	codeTokenNotValid = "token_not_valid"
	msgTokenNotValid  = "Given token not valid for any token type"
	msgNoCredentials  = "Authentication credentials were not provided."
	userKey           = "mockapi_user"
)

var errRevoked = errors.New("token is blacklisted")

type tokenClaims struct {
	TokenType string `json:"token_type"`
	UserID    int64  `json:"user_id"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and checks HS256 access and refresh tokens and keeps the blacklist.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	issued  map[string]string // jti -> token type
	revoked map[string]bool
}

func newTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
		issued:     map[string]string{},
		revoked:    map[string]bool{},
	}
}

func (ti *tokenIssuer) sign(u *user, typ string, ttl time.Duration) (string, error) {
	now := ti.now()
	jti := uuid.NewString()
	claims := tokenClaims{
		TokenType: typ,
		UserID:    u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", err
	}
	ti.mu.Lock()
	ti.issued[jti] = typ
	ti.mu.Unlock()
	return signed, nil
}

func (ti *tokenIssuer) access(u *user) (string, error) { return ti.sign(u, tokenAccess, ti.accessTTL) }

func (ti *tokenIssuer) pair(u *user) (access, refresh string, err error) {
	if access, err = ti.access(u); err != nil {
		return "", "", err
	}
	if refresh, err = ti.sign(u, tokenRefresh, ti.refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// parse verifies tok and checks its type and the blacklist.
func (ti *tokenIssuer) parse(tok, wantType string) (*tokenClaims, error) {
	var claims tokenClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) { return ti.secret, nil })
	if err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("token has type %q, want %q", claims.TokenType, wantType)
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.revoked[claims.ID] {
		return nil, errRevoked
	}
	return &claims, nil
}

func (ti *tokenIssuer) revoke(jti string) {
	ti.mu.Lock()
	ti.revoked[jti] = true
	ti.mu.Unlock()
}

// revokeAll blacklists every token of type typ issued so far.
func (ti *tokenIssuer) revokeAll(typ string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	for jti, t := range ti.issued {
		if t == typ {
			ti.revoked[jti] = true
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", true
	}
	return strings.TrimSpace(tok), true
}

// authenticate validates the bearer access token and stores its user in the context. A request
// without credentials passes through unless required is set; a request with bad credentials is
// always rejected.
func (s *Server) authenticate(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, present := bearerToken(c)
		if !present {
			if required {
				response.Detail(c, http.StatusUnauthorized, msgNoCredentials, "not_authenticated")
				return
			}
			c.Next()
			return
		}
		if tok == "" {
			response.Detail(c, http.StatusUnauthorized, msgTokenNotValid, codeTokenNotValid)
			return
		}

		claims, err := s.tokens.parse(tok, tokenAccess)
		if err != nil {
			s.logger(c).DebugFCtx(c.Request.Context(), "rejected access token: %v", err)
			response.Detail(c, http.StatusUnauthorized, msgTokenNotValid, codeTokenNotValid)
			return
		}
		u, ok := s.store.user(claims.UserID)
		if !ok {
			response.Detail(c, http.StatusUnauthorized, "User not found", "user_not_found")
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// currentUser returns the authenticated user, if any.
func currentUser(c *gin.Context) (*user, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*user)
	return u, ok
}

func viewerID(c *gin.Context) int64 {
	if u, ok := currentUser(c); ok {
		return u.ID
	}
	return 0
}
