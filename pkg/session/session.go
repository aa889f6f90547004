// Package session holds the signed-in user's tokens and profile and persists them through a
// pluggable Storage. The three persisted keys are always written and cleared together.
package session

import (
	"context"
	"encoding/json"
	"time"
)

// Persisted keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Keys lists every persisted key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// User is the locally cached identity of the signed-in account.
type User struct {
	ID        int64      `json:"id,omitempty"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	Location  string     `json:"location,omitempty"`
}

// Session is a snapshot of the persisted state.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// Authenticated reports whether all three parts are present.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.User != nil
}

// Storage persists string values under the session keys.
// Save must write every given key in one atomic operation.
type Storage interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Reader is the read-only view handed to packages that must not mutate the session.
type Reader interface {
	AccessToken() string
	RefreshToken() string
	User() (User, bool)
	IsAuthenticated() bool
	Snapshot() Session
}

func encode(s Session) (map[string]string, error) {
	values := map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
	}
	if s.User != nil {
		b, err := json.Marshal(s.User)
		if err != nil {
			return nil, err
		}
		values[KeyUser] = string(b)
	}
	return values, nil
}
