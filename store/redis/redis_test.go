package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lockplane/authcore"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestSession(id, hash string) authcore.Session {
	return authcore.Session{
		ID:               id,
		AccountID:        "u1",
		RefreshTokenHash: hash,
		IP:               "10.0.0.1",
		UserAgent:        "test-agent",
		ExpiresAt:        baseTime.Add(24 * time.Hour),
		CreatedAt:        baseTime,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := NewSessionStore(newTestRedis(t), 30*24*time.Hour)
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "h1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindValid(ctx, "h1", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "s1" || got.AccountID != "u1" || got.IP != "10.0.0.1" || got.UserAgent != "test-agent" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.ExpiresAt.Equal(baseTime.Add(24 * time.Hour)) {
		t.Fatalf("expiry mismatch: %v", got.ExpiresAt)
	}

	if _, err := store.FindValid(ctx, "h1", baseTime.Add(25*time.Hour)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expired session must not be found, got %v", err)
	}
	if _, err := store.FindValid(ctx, "missing", baseTime); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("unknown hash must not be found, got %v", err)
	}
}

func TestSessionClaimIsAtomic(t *testing.T) {
	store := NewSessionStore(newTestRedis(t), 30*24*time.Hour)
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "h1")); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan *authcore.Session, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sess, err := store.Claim(ctx, "h1", baseTime.Add(time.Second)); err == nil {
				wins <- sess
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for sess := range wins {
		n++
		if sess.RevokedAt != nil {
			t.Fatal("winner must receive the pre-revocation record")
		}
	}
	if n != 1 {
		t.Fatalf("exactly one claimer must win, got %d", n)
	}

	if _, err := store.Claim(ctx, "h1", baseTime.Add(2*time.Second)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("claimed session must not be claimable again, got %v", err)
	}
}

func TestSessionRevokeAndRevokeAll(t *testing.T) {
	store := NewSessionStore(newTestRedis(t), 30*24*time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, newTestSession(fmt.Sprintf("s%d", i), fmt.Sprintf("h%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := store.Revoke(ctx, "s0", baseTime)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}
	ok, err = store.Revoke(ctx, "s0", baseTime)
	if err != nil || ok {
		t.Fatalf("double revoke must report false, ok=%v err=%v", ok, err)
	}
	ok, err = store.Revoke(ctx, "missing", baseTime)
	if err != nil || ok {
		t.Fatalf("revoking unknown session must report false, ok=%v err=%v", ok, err)
	}

	n, err := store.RevokeAll(ctx, "u1", baseTime)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoke all should catch the 2 live sessions, got %d", n)
	}
}

func TestSessionSweeps(t *testing.T) {
	store := NewSessionStore(newTestRedis(t), 30*24*time.Hour)
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "h1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, newTestSession("s2", "h2")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Revoke(ctx, "s2", baseTime); err != nil {
		t.Fatal(err)
	}

	// s1 expires unrevoked; s2 was revoked and waits out the retention window.
	n, err := store.SweepExpired(ctx, baseTime.Add(48*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("sweep expired: n=%d err=%v", n, err)
	}

	n, err = store.SweepRevokedBefore(ctx, baseTime.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("sweep revoked: n=%d err=%v", n, err)
	}
}

func TestCodeRedeemOnce(t *testing.T) {
	store := NewCodeStore(newTestRedis(t))
	ctx := context.Background()

	code := authcore.OneTimeCode{
		Code:         "c1",
		AccountID:    "u1",
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    baseTime.Add(30 * time.Second),
		CreatedAt:    baseTime,
	}
	if err := store.Insert(ctx, code); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan *authcore.OneTimeCode, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rec, err := store.Redeem(ctx, "c1", baseTime.Add(time.Second)); err == nil {
				wins <- rec
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for rec := range wins {
		n++
		if rec.AccessToken != "at" || rec.RefreshToken != "rt" || rec.AccountID != "u1" {
			t.Fatalf("redeemed payload mismatch: %+v", rec)
		}
	}
	if n != 1 {
		t.Fatalf("exactly one redeemer must win, got %d", n)
	}
}

func TestCodeExpiredAndUnknownLookAlike(t *testing.T) {
	store := NewCodeStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Insert(ctx, authcore.OneTimeCode{Code: "c1", ExpiresAt: baseTime.Add(30 * time.Second), CreatedAt: baseTime}); err != nil {
		t.Fatal(err)
	}

	_, errExpired := store.Redeem(ctx, "c1", baseTime.Add(31*time.Second))
	_, errUnknown := store.Redeem(ctx, "nope", baseTime)
	if !errors.Is(errExpired, authcore.ErrNotFound) || !errors.Is(errUnknown, authcore.ErrNotFound) {
		t.Fatalf("expired (%v) and unknown (%v) must be identical", errExpired, errUnknown)
	}
}

func TestChallengeConsumeSemantics(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t))
	ctx := context.Background()

	if err := store.Insert(ctx, authcore.Challenge{
		Token:     "t1",
		Kind:      authcore.ChallengeVerifyEmail,
		AccountID: "u1",
		ExpiresAt: baseTime.Add(24 * time.Hour),
		CreatedAt: baseTime,
	}); err != nil {
		t.Fatal(err)
	}

	accountID, used, err := store.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime)
	if err != nil || used || accountID != "u1" {
		t.Fatalf("first consume: id=%q used=%v err=%v", accountID, used, err)
	}

	accountID, used, err = store.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime)
	if err != nil || !used || accountID != "u1" {
		t.Fatalf("second consume: id=%q used=%v err=%v", accountID, used, err)
	}

	if _, _, err := store.Consume(ctx, authcore.ChallengePasswordReset, "t1", baseTime); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("cross-kind consume must fail, got %v", err)
	}
	if _, _, err := store.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime.Add(25*time.Hour)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expired consume must fail, got %v", err)
	}
}

func TestChallengeDeleteByAccount(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Insert(ctx, authcore.Challenge{
			Token:     fmt.Sprintf("t%d", i),
			Kind:      authcore.ChallengePasswordReset,
			AccountID: "u1",
			ExpiresAt: baseTime.Add(time.Hour),
			CreatedAt: baseTime,
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteByAccount(ctx, authcore.ChallengePasswordReset, "u1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := store.Consume(ctx, authcore.ChallengePasswordReset, fmt.Sprintf("t%d", i), baseTime); !errors.Is(err, authcore.ErrNotFound) {
			t.Fatalf("token t%d survived delete", i)
		}
	}
}
