package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockplane/authcore"
)

const challengeKeyPrefix = "authcore:challenge:"

// consumeChallengeScript marks an unexpired challenge used and returns its
// account id plus whether it had been used before. ARGV[1] is now in unix
// milliseconds.
const consumeChallengeScript = `
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires or expires <= tonumber(ARGV[1]) then
  return nil
end
local account = redis.call("HGET", KEYS[1], "account_id")
local used = redis.call("HGET", KEYS[1], "used")
if used == "1" then
  return {account, 1}
end
redis.call("HSET", KEYS[1], "used", "1")
return {account, 0}
`

var consumeChallengeLua = redis.NewScript(consumeChallengeScript)

// ChallengeStore is a Redis-backed [authcore.ChallengeStore]. One hash per
// token, plus a per-account set for reissue cleanup.
type ChallengeStore struct {
	client *redis.Client
}

// NewChallengeStore creates a challenge store on client.
func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client}
}

func challengeKey(kind authcore.ChallengeKind, token string) string {
	return challengeKeyPrefix + string(kind) + ":" + token
}

func challengeAccountKey(kind authcore.ChallengeKind, accountID string) string {
	return challengeKeyPrefix + "acct:" + string(kind) + ":" + accountID
}

func (s *ChallengeStore) Insert(ctx context.Context, challenge authcore.Challenge) error {
	key := challengeKey(challenge.Kind, challenge.Token)
	fields := map[string]any{
		"token":      challenge.Token,
		"kind":       string(challenge.Kind),
		"account_id": challenge.AccountID,
		"expires_at": challenge.ExpiresAt.UnixMilli(),
		"created_at": challenge.CreatedAt.UnixMilli(),
		"used":       "0",
	}

	ttl := challenge.ExpiresAt.Sub(challenge.CreatedAt) + time.Minute
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, challengeAccountKey(challenge.Kind, challenge.AccountID), challenge.Token)
	pipe.Expire(ctx, challengeAccountKey(challenge.Kind, challenge.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *ChallengeStore) Consume(ctx context.Context, kind authcore.ChallengeKind, token string, now time.Time) (string, bool, error) {
	res, err := consumeChallengeLua.Run(ctx, s.client, []string{challengeKey(kind, token)}, unixMilli(now)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, authcore.ErrNotFound
		}
		return "", false, storeErr(err)
	}

	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return "", false, authcore.ErrNotFound
	}
	accountID, _ := pair[0].(string)
	usedFlag, _ := pair[1].(int64)
	return accountID, usedFlag == 1, nil
}

func (s *ChallengeStore) DeleteByAccount(ctx context.Context, kind authcore.ChallengeKind, accountID string) error {
	setKey := challengeAccountKey(kind, accountID)
	tokens, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return storeErr(err)
	}

	pipe := s.client.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, challengeKey(kind, token))
	}
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *ChallengeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, challengeKeyPrefix+"*", 100).Result()
		if err != nil {
			return n, storeErr(err)
		}
		for _, key := range keys {
			raw, err := s.client.HGet(ctx, key, "expires_at").Result()
			if err != nil {
				// Account sets and already-dropped keys are skipped.
				continue
			}
			expiresMilli, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil || now.UnixMilli() < expiresMilli {
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
