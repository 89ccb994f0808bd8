package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lockplane/authcore"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestAccountStoreDuplicateEmailNormalized(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()

	if err := s.Create(ctx, authcore.Account{ID: "u1", Email: "User@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(ctx, authcore.Account{ID: "u2", Email: "user@example.COM"})
	if !errors.Is(err, authcore.ErrDuplicateAccount) {
		t.Fatalf("want duplicate, got %v", err)
	}

	got, err := s.GetByEmail(ctx, "USER@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("lookup returned %s", got.ID)
	}
	if got.Email != "user@example.com" {
		t.Fatalf("stored email not canonical lowercase: %q", got.Email)
	}
}

func TestAccountStoreReturnsCopies(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	if err := s.Create(ctx, authcore.Account{ID: "u1", Email: "a@x.com", Role: "user"}); err != nil {
		t.Fatal(err)
	}

	first, _ := s.GetByID(ctx, "u1")
	first.Role = "admin"

	second, _ := s.GetByID(ctx, "u1")
	if second.Role != "user" {
		t.Fatal("mutation of a returned record leaked into the store")
	}
}

func TestRecordLoginFailureLockAndHold(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	if err := s.Create(ctx, authcore.Account{ID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		until, err := s.RecordLoginFailure(ctx, "u1", 5, 15*time.Minute, baseTime)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if until != nil {
			t.Fatalf("locked before threshold at failure %d", i)
		}
	}

	until, err := s.RecordLoginFailure(ctx, "u1", 5, 15*time.Minute, baseTime)
	if err != nil {
		t.Fatal(err)
	}
	if until == nil || !until.Equal(baseTime.Add(15*time.Minute)) {
		t.Fatalf("expected lock until %v, got %v", baseTime.Add(15*time.Minute), until)
	}

	// Failures during the lock window report the same expiry and do not
	// advance the counter.
	again, err := s.RecordLoginFailure(ctx, "u1", 5, 15*time.Minute, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || !again.Equal(*until) {
		t.Fatalf("lock expiry drifted: %v vs %v", again, until)
	}
	acct, _ := s.GetByID(ctx, "u1")
	if acct.FailedLogins != 5 {
		t.Fatalf("counter advanced while locked: %d", acct.FailedLogins)
	}

	if err := s.ResetLoginFailures(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	acct, _ = s.GetByID(ctx, "u1")
	if acct.FailedLogins != 0 || acct.LockedUntil != nil {
		t.Fatal("reset did not clear failure state")
	}
}

func TestRecordLoginFailureConcurrentRace(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()
	if err := s.Create(ctx, authcore.Account{ID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	lockSignals := make(chan time.Time, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if until, err := s.RecordLoginFailure(ctx, "u1", 5, time.Minute, baseTime); err == nil && until != nil {
				lockSignals <- *until
			}
		}()
	}
	wg.Wait()
	close(lockSignals)

	n := 0
	for range lockSignals {
		n++
	}
	// The fifth and every later failure must observe the lock.
	if n != 16 {
		t.Fatalf("expected 16 lock observations from 20 racing failures, got %d", n)
	}
	acct, _ := s.GetByID(ctx, "u1")
	if acct.FailedLogins != 5 {
		t.Fatalf("counter = %d, want 5 (held at threshold)", acct.FailedLogins)
	}
}

func newSession(id, hash string) authcore.Session {
	return authcore.Session{
		ID:               id,
		AccountID:        "u1",
		RefreshTokenHash: hash,
		ExpiresAt:        baseTime.Add(24 * time.Hour),
		CreatedAt:        baseTime,
	}
}

func TestSessionClaimSingleWinner(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	if err := s.Create(ctx, newSession("s1", "h1")); err != nil {
		t.Fatal(err)
	}

	const racers = 32
	var wg sync.WaitGroup
	var winners sync.Map
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sess, err := s.Claim(ctx, "h1", baseTime.Add(time.Second)); err == nil {
				winners.Store(i, sess)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	winners.Range(func(any, any) bool { n++; return true })
	if n != 1 {
		t.Fatalf("exactly one claimer must win, got %d", n)
	}

	if _, err := s.FindValid(ctx, "h1", baseTime.Add(time.Second)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatal("claimed session must no longer be valid")
	}
}

func TestSessionExpiryAndRevocation(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	if err := s.Create(ctx, newSession("s1", "h1")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.FindValid(ctx, "h1", baseTime.Add(25*time.Hour)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatal("expired session must not be found valid")
	}
	if _, err := s.Claim(ctx, "h1", baseTime.Add(25*time.Hour)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatal("expired session must not be claimable")
	}

	ok, err := s.Revoke(ctx, "s1", baseTime)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}
	ok, _ = s.Revoke(ctx, "s1", baseTime)
	if ok {
		t.Fatal("second revoke must report false")
	}
}

func TestSessionRevokeAllAndSweeps(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Create(ctx, newSession(fmt.Sprintf("s%d", i), fmt.Sprintf("h%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	other := newSession("sx", "hx")
	other.AccountID = "u2"
	if err := s.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	n, err := s.RevokeAll(ctx, "u1", baseTime)
	if err != nil || n != 3 {
		t.Fatalf("revoke all: n=%d err=%v", n, err)
	}

	// Revoked sessions survive the expiry sweep for the audit window.
	n, err = s.SweepExpired(ctx, baseTime.Add(48*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("sweep expired: n=%d err=%v (only the unrevoked session qualifies)", n, err)
	}

	n, err = s.SweepRevokedBefore(ctx, baseTime.Add(time.Hour))
	if err != nil || n != 3 {
		t.Fatalf("sweep revoked: n=%d err=%v", n, err)
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty, has %d", s.Len())
	}
}

func TestCodeRedeemExactlyOnce(t *testing.T) {
	s := NewCodeStore()
	ctx := context.Background()
	code := authcore.OneTimeCode{
		Code:         "c1",
		AccountID:    "u1",
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    baseTime.Add(30 * time.Second),
		CreatedAt:    baseTime,
	}
	if err := s.Insert(ctx, code); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan *authcore.OneTimeCode, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rec, err := s.Redeem(ctx, "c1", baseTime.Add(time.Second)); err == nil {
				wins <- rec
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for rec := range wins {
		n++
		if rec.AccessToken != "at" || rec.RefreshToken != "rt" {
			t.Fatalf("winner got wrong payload: %+v", rec)
		}
	}
	if n != 1 {
		t.Fatalf("exactly one redeemer must win, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatal("redeemed code must be deleted")
	}
}

func TestCodeExpiryIndistinguishableFromUse(t *testing.T) {
	s := NewCodeStore()
	ctx := context.Background()
	if err := s.Insert(ctx, authcore.OneTimeCode{Code: "c1", ExpiresAt: baseTime.Add(30 * time.Second)}); err != nil {
		t.Fatal(err)
	}

	_, errExpired := s.Redeem(ctx, "c1", baseTime.Add(31*time.Second))
	_, errUnknown := s.Redeem(ctx, "nope", baseTime)
	if !errors.Is(errExpired, authcore.ErrNotFound) || !errors.Is(errUnknown, authcore.ErrNotFound) {
		t.Fatalf("expired (%v) and unknown (%v) must be the same error", errExpired, errUnknown)
	}

	if n, err := s.SweepExpired(ctx, baseTime.Add(time.Minute)); err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
}

func TestChallengeConsumeReportsPriorUse(t *testing.T) {
	s := NewChallengeStore()
	ctx := context.Background()
	ch := authcore.Challenge{
		Token:     "t1",
		Kind:      authcore.ChallengeVerifyEmail,
		AccountID: "u1",
		ExpiresAt: baseTime.Add(24 * time.Hour),
	}
	if err := s.Insert(ctx, ch); err != nil {
		t.Fatal(err)
	}

	accountID, alreadyUsed, err := s.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime)
	if err != nil || alreadyUsed || accountID != "u1" {
		t.Fatalf("first consume: id=%q used=%v err=%v", accountID, alreadyUsed, err)
	}

	accountID, alreadyUsed, err = s.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime)
	if err != nil || !alreadyUsed || accountID != "u1" {
		t.Fatalf("second consume: id=%q used=%v err=%v", accountID, alreadyUsed, err)
	}

	// A token of one kind cannot be consumed as the other kind.
	if _, _, err := s.Consume(ctx, authcore.ChallengePasswordReset, "t1", baseTime); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("cross-kind consume must fail, got %v", err)
	}

	// Expired tokens are gone regardless of use state.
	if _, _, err := s.Consume(ctx, authcore.ChallengeVerifyEmail, "t1", baseTime.Add(25*time.Hour)); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expired consume must fail, got %v", err)
	}
}

func TestChallengeDeleteByAccount(t *testing.T) {
	s := NewChallengeStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Insert(ctx, authcore.Challenge{
			Token:     fmt.Sprintf("t%d", i),
			Kind:      authcore.ChallengePasswordReset,
			AccountID: "u1",
			ExpiresAt: baseTime.Add(time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteByAccount(ctx, authcore.ChallengePasswordReset, "u1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := s.Consume(ctx, authcore.ChallengePasswordReset, fmt.Sprintf("t%d", i), baseTime); !errors.Is(err, authcore.ErrNotFound) {
			t.Fatalf("token t%d survived delete", i)
		}
	}
}
