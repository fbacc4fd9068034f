package domain

import (
	"encoding/json"
	"time"
)

// User is the identity returned by the backend for the logged-in account.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Session is the in-memory copy of the current credentials.
// An empty AccessToken or RefreshToken means the credential is absent.
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// IsAuthenticated is derived on every call and never stored.
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// MarshalJSON renders the session without tokens, for display to local UI processes.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		User            *User `json:"user"`
		IsAuthenticated bool  `json:"isAuthenticated"`
		HasRefreshToken bool  `json:"hasRefreshToken"`
	}{
		User:            s.User,
		IsAuthenticated: s.IsAuthenticated(),
		HasRefreshToken: s.RefreshToken != "",
	})
}

// SessionChangeReason says which mutation produced a SessionChange.
type SessionChangeReason string

const (
	SessionReasonLogin        SessionChangeReason = "login"
	SessionReasonUserUpdated  SessionChangeReason = "user_updated"
	SessionReasonTokenRotated SessionChangeReason = "token_rotated"
	SessionReasonLogout       SessionChangeReason = "logout"
	SessionReasonHydrate      SessionChangeReason = "hydrate"
)

// SessionChange is delivered to session observers after every observable mutation.
type SessionChange struct {
	Session Session
	Reason  SessionChangeReason
}

// AuthResponse is returned by /auth/login and /auth/signup.
type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LoginCredentials is the body of /auth/login.
type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupCredentials is the body of /auth/signup. ConfirmPassword never leaves the client.
type SignupCredentials struct {
	Name            string `json:"name" validate:"required,min=2,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,password_strength"`
	ConfirmPassword string `json:"-" validate:"eqfield=Password"`
}

// RefreshTokenRequest is the body of /auth/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshTokenResponse is returned by /auth/refresh. RefreshToken is optional.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
