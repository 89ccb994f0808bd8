package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates the two token classes a codec mints. A refresh token
// presented where an access token is expected must fail verification, and
// vice versa.
type Type string

const (
	// TypeAccess is a short-lived bearer token.
	TypeAccess Type = "access"
	// TypeRefresh is a long-lived rotation token, stored hashed server-side.
	TypeRefresh Type = "refresh"
)

// ErrInvalid is returned for any token that fails verification: bad
// signature, expired, wrong type, wrong issuer or audience, or malformed.
// Callers get no finer-grained signal.
var ErrInvalid = errors.New("token: invalid or expired")

// Config carries the signing parameters for a [Codec].
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Claims is the claim set carried by both token types. Subject holds the
// account email, UID the account id.
type Claims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	Typ  Type   `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies token pairs with a single HMAC-SHA256 secret.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready codec. Secret strength is
// enforced upstream by config validation; here only presence is checked.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	return &Codec{config: cfg}, nil
}

// Mint signs a token of the given type for the account. now is injected so
// callers control the clock.
func (c *Codec) Mint(typ Type, accountID, email, role string, now time.Time) (string, error) {
	ttl := c.config.AccessTTL
	if typ == TypeRefresh {
		ttl = c.config.RefreshTTL
	}

	claims := Claims{
		UID:  accountID,
		Role: role,
		Typ:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti makes every mint unique: two refresh tokens for one
			// account in the same second must not share a session hash.
			ID:        uuid.NewString(),
			Subject:   email,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.config.Secret)
}

// MintPair signs an access and a refresh token for the account in one call.
func (c *Codec) MintPair(accountID, email, role string, now time.Time) (access, refresh string, err error) {
	access, err = c.Mint(TypeAccess, accountID, email, role, now)
	if err != nil {
		return "", "", err
	}
	refresh, err = c.Mint(TypeRefresh, accountID, email, role, now)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify parses tokenStr, checks signature, expiry, issuer, audience, and
// that the embedded type matches want. Every failure mode collapses to
// [ErrInvalid].
func (c *Codec) Verify(tokenStr string, want Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Typ != want {
		return nil, ErrInvalid
	}
	if claims.UID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }
