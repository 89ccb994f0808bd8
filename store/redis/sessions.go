package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockplane/authcore"
)

const (
	sessionKeyPrefix   = "authcore:session:"
	sessionIDKeyPrefix = "authcore:session:id:"
	accountSetPrefix   = "authcore:sessions:acct:"
)

// claimSessionScript atomically revokes the valid session stored at KEYS[1]
// and returns its pre-revocation fields. ARGV[1] is now in unix milliseconds.
const claimSessionScript = `
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if revoked and revoked ~= "" then
  return nil
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires or expires <= tonumber(ARGV[1]) then
  return nil
end
local data = redis.call("HGETALL", KEYS[1])
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return data
`

// revokeSessionScript marks the session revoked if it is not already.
const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if revoked and revoked ~= "" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var (
	claimSessionLua  = redis.NewScript(claimSessionScript)
	revokeSessionLua = redis.NewScript(revokeSessionScript)
)

// SessionStore is a Redis-backed [authcore.SessionStore]. Records live in a
// hash per session keyed by refresh-token digest, with an id pointer key and
// a per-account id set for revocation fan-out. Key TTLs cover the retention
// window, so the sweeps are cheap safety nets rather than the primary
// expiry mechanism.
type SessionStore struct {
	client *redis.Client
	// retention extends key TTL past expiry so revoked sessions stay
	// inspectable for the audit window.
	retention time.Duration
}

// NewSessionStore creates a session store on client. retention is how long
// revoked or expired records stay readable before Redis drops them.
func NewSessionStore(client *redis.Client, retention time.Duration) *SessionStore {
	return &SessionStore{client: client, retention: retention}
}

func sessionKey(hash string) string { return sessionKeyPrefix + hash }

func sessionIDKey(id string) string { return sessionIDKeyPrefix + id }

func accountSetKey(id string) string { return accountSetPrefix + id }

func unixMilli(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func storeErr(err error) error { return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err) }

func (s *SessionStore) Create(ctx context.Context, session authcore.Session) error {
	key := sessionKey(session.RefreshTokenHash)
	fields := map[string]any{
		"id":                 session.ID,
		"account_id":         session.AccountID,
		"refresh_token_hash": session.RefreshTokenHash,
		"ip":                 session.IP,
		"user_agent":         session.UserAgent,
		"expires_at":         session.ExpiresAt.UnixMilli(),
		"revoked_at":         "",
		"created_at":         session.CreatedAt.UnixMilli(),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Set(ctx, sessionIDKey(session.ID), session.RefreshTokenHash, 0)
	pipe.SAdd(ctx, accountSetKey(session.AccountID), session.ID)
	// TTL spans the session's own lifetime plus retention, independent of
	// clock skew between engine and store.
	ttl := session.ExpiresAt.Sub(session.CreatedAt) + s.retention
	pipe.Expire(ctx, key, ttl)
	pipe.Expire(ctx, sessionIDKey(session.ID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *SessionStore) FindValid(ctx context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(refreshTokenHash)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if len(fields) == 0 {
		return nil, authcore.ErrNotFound
	}
	session, err := sessionFromFields(fields)
	if err != nil {
		return nil, err
	}
	if !session.Valid(now) {
		return nil, authcore.ErrNotFound
	}
	return session, nil
}

func (s *SessionStore) Claim(ctx context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	res, err := claimSessionLua.Run(ctx, s.client, []string{sessionKey(refreshTokenHash)}, unixMilli(now)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authcore.ErrNotFound
		}
		return nil, storeErr(err)
	}

	flat, ok := res.([]any)
	if !ok || len(flat) == 0 {
		return nil, authcore.ErrNotFound
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return sessionFromFields(fields)
}

func (s *SessionStore) Revoke(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	hash, err := s.client.Get(ctx, sessionIDKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, storeErr(err)
	}

	res, err := revokeSessionLua.Run(ctx, s.client, []string{sessionKey(hash)}, unixMilli(now)).Int64()
	if err != nil {
		return false, storeErr(err)
	}
	return res == 1, nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, accountID string, now time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, accountSetKey(accountID)).Result()
	if err != nil {
		return 0, storeErr(err)
	}

	n := 0
	for _, id := range ids {
		revoked, err := s.Revoke(ctx, id, now)
		if err != nil {
			return n, err
		}
		if revoked {
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, func(session *authcore.Session) bool {
		return session.RevokedAt == nil && !now.Before(session.ExpiresAt)
	})
}

func (s *SessionStore) SweepRevokedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.sweep(ctx, func(session *authcore.Session) bool {
		return session.RevokedAt != nil && session.RevokedAt.Before(cutoff)
	})
}

func (s *SessionStore) sweep(ctx context.Context, shouldDelete func(*authcore.Session) bool) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return n, storeErr(err)
		}
		for _, key := range keys {
			fields, err := s.client.HGetAll(ctx, key).Result()
			if err != nil || len(fields) == 0 {
				continue
			}
			// The id pointer namespace shares the session prefix; pointer
			// keys are plain strings and come back empty from HGetAll.
			session, err := sessionFromFields(fields)
			if err != nil {
				continue
			}
			if shouldDelete(session) {
				pipe := s.client.TxPipeline()
				pipe.Del(ctx, key)
				pipe.Del(ctx, sessionIDKey(session.ID))
				pipe.SRem(ctx, accountSetKey(session.AccountID), session.ID)
				if _, err := pipe.Exec(ctx); err != nil {
					return n, storeErr(err)
				}
				n++
			}
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

func sessionFromFields(fields map[string]string) (*authcore.Session, error) {
	expiresMilli, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt session record", authcore.ErrStoreUnavailable)
	}
	createdMilli, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	session := &authcore.Session{
		ID:               fields["id"],
		AccountID:        fields["account_id"],
		RefreshTokenHash: fields["refresh_token_hash"],
		IP:               fields["ip"],
		UserAgent:        fields["user_agent"],
		ExpiresAt:        time.UnixMilli(expiresMilli).UTC(),
		CreatedAt:        time.UnixMilli(createdMilli).UTC(),
	}
	if raw := fields["revoked_at"]; raw != "" {
		revokedMilli, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			revokedAt := time.UnixMilli(revokedMilli).UTC()
			session.RevokedAt = &revokedAt
		}
	}
	return session, nil
}
