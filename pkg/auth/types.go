package auth

import (
	"context"
	"strings"
	"time"

	"github.com/milan604/feedclient/pkg/session"
	"github.com/milan604/feedclient/pkg/utils"
)

// Credentials are what the user types into the login form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// RegisterResult is returned by a successful sign-up. No session is created; the account must be
// verified by email first.
type RegisterResult struct {
	Email   string
	Message string
}

// VerifyStatus is the outcome of an email verification.
type VerifyStatus string

const (
	StatusVerified        VerifyStatus = "verified"
	StatusAlreadyVerified VerifyStatus = "already_verified"
)

// VerifyResult is returned by VerifyEmail.
type VerifyResult struct {
	Status  VerifyStatus
	Message string
}

// SessionStore is the session surface the auth operations write to. *session.Store satisfies it.
type SessionStore interface {
	session.Reader
	Save(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
	Restore(ctx context.Context) (bool, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    *backendUser `json:"user,omitempty"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// backendUser is the account object as the API returns it.
type backendUser struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DisplayName string     `json:"display_name"`
	Name        string     `json:"name"`
	Bio         string     `json:"bio"`
	Location    string     `json:"location"`
	DateJoined  *time.Time `json:"date_joined"`
	CreatedAt   *time.Time `json:"created_at"`
}

// deriveUser builds the cached identity. Without a user object in the login reply everything is
// taken from the email address.
func deriveUser(bu *backendUser, email string) session.User {
	local := utils.EmailLocalPart(email)
	if bu == nil {
		return session.User{Email: email, Username: local, Name: local}
	}

	username := utils.DefaultIfEmpty(bu.Username, local)
	fullName := strings.TrimSpace(bu.FirstName + " " + bu.LastName)
	u := session.User{
		ID:        bu.ID,
		Username:  username,
		Name:      utils.Coalesce(fullName, bu.DisplayName, bu.Name, username),
		Email:     utils.DefaultIfEmpty(bu.Email, email),
		Bio:       bu.Bio,
		Location:  bu.Location,
		CreatedAt: bu.CreatedAt,
	}
	if u.CreatedAt == nil {
		u.CreatedAt = bu.DateJoined
	}
	return u
}
