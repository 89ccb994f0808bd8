package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockplane/authcore"
)

const codeKeyPrefix = "authcore:code:"

// redeemCodeScript atomically reads and deletes an unexpired code. ARGV[1] is
// now in unix milliseconds. Used and unknown codes both come back empty.
const redeemCodeScript = `
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires or expires <= tonumber(ARGV[1]) then
  return nil
end
local data = redis.call("HGETALL", KEYS[1])
redis.call("DEL", KEYS[1])
return data
`

var redeemCodeLua = redis.NewScript(redeemCodeScript)

// CodeStore is a Redis-backed [authcore.CodeStore]. Keys carry a TTL slightly
// past the code's expiry, so SweepExpired usually finds nothing to do.
type CodeStore struct {
	client *redis.Client
}

// NewCodeStore creates a code store on client.
func NewCodeStore(client *redis.Client) *CodeStore {
	return &CodeStore{client: client}
}

func codeKey(code string) string { return codeKeyPrefix + code }

func (s *CodeStore) Insert(ctx context.Context, code authcore.OneTimeCode) error {
	key := codeKey(code.Code)
	fields := map[string]any{
		"code":          code.Code,
		"account_id":    code.AccountID,
		"access_token":  code.AccessToken,
		"refresh_token": code.RefreshToken,
		"expires_at":    code.ExpiresAt.UnixMilli(),
		"created_at":    code.CreatedAt.UnixMilli(),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, code.ExpiresAt.Sub(code.CreatedAt)+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *CodeStore) Redeem(ctx context.Context, code string, now time.Time) (*authcore.OneTimeCode, error) {
	res, err := redeemCodeLua.Run(ctx, s.client, []string{codeKey(code)}, unixMilli(now)).Result()
	if err != nil {
		if err == redis.Nil {
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

	expiresMilli, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	createdMilli, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return &authcore.OneTimeCode{
		Code:         fields["code"],
		AccountID:    fields["account_id"],
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		ExpiresAt:    time.UnixMilli(expiresMilli).UTC(),
		CreatedAt:    time.UnixMilli(createdMilli).UTC(),
	}, nil
}

func (s *CodeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, codeKeyPrefix+"*", 100).Result()
		if err != nil {
			return n, storeErr(err)
		}
		for _, key := range keys {
			raw, err := s.client.HGet(ctx, key, "expires_at").Result()
			if err != nil {
				continue
			}
			expiresMilli, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || now.UnixMilli() < expiresMilli {
				continue
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return n, storeErr(err)
			}
			n++
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}
