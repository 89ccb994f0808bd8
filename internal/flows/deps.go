package flows

import "time"

// AccountRecord is the flow-local account shape. The engine maps its public
// account type into this before invoking a flow.
type AccountRecord struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	EmailVerified bool
	LockedUntil   *time.Time
}

// SessionRecord is the flow-local session shape.
type SessionRecord struct {
	ID        string
	AccountID string
	IP        string
	UserAgent string
}

// TokenPairRecord carries a freshly issued token pair.
type TokenPairRecord struct {
	AccountID    string
	Email        string
	Role         string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
