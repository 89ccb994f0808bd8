package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// codeBroker stores and redeems the one-time authorization codes bridging a
// federated-login redirect. Codes carry a pre-minted token pair so redemption
// needs no account lookup.
type codeBroker struct {
	store CodeStore
	ttl   time.Duration
	now   func() time.Time
}

// codeBytes gives 256 bits of entropy per code; guessing is not a concern
// within the 30-second lifetime.
const codeBytes = 32

func newOpaqueCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (b *codeBroker) Store(ctx context.Context, code, accountID, accessToken, refreshToken string) error {
	now := b.now()
	return b.store.Insert(ctx, OneTimeCode{
		Code:         code,
		AccountID:    accountID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(b.ttl),
		CreatedAt:    now,
	})
}

// Redeem consumes the code. Unknown, already-redeemed, and expired codes all
// collapse to ErrCodeInvalidOrExpired.
func (b *codeBroker) Redeem(ctx context.Context, code string) (*OneTimeCode, error) {
	record, err := b.store.Redeem(ctx, code, b.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCodeInvalidOrExpired
		}
		return nil, err
	}
	return record, nil
}
