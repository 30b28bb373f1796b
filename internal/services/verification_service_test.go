package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/terraincognita07/whiteboar/internal/models"
)

func TestGenerateVerificationCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateVerificationCode()
		if err != nil {
			t.Fatalf("GenerateVerificationCode() unexpected error: %v", err)
		}
		if len(code) != VerificationCodeLength || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("expected six digits, got %q", code)
		}
	}
}

func TestIssueCodeStoresHashNotPlaintext(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	session := createTestSession(t, newTestSessionService(repos, clock))
	service := newTestVerificationService(repos, clock, "012345")

	issued, err := service.IssueCode(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}
	if issued.Code != "012345" {
		t.Fatalf("expected leading zeros preserved, got %q", issued.Code)
	}
	if !issued.ExpiresAt.Equal(clock.Now().Add(DefaultVerificationCodeTTL)) {
		t.Fatalf("unexpected code expiry %s", issued.ExpiresAt)
	}

	stored, err := repos.Sessions.FindByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("FindByID() unexpected error: %v", err)
	}
	if stored.VerificationCodeHash == "" || stored.VerificationCodeHash == issued.Code {
		t.Fatalf("expected a hash at rest, got %q", stored.VerificationCodeHash)
	}
	if stored.VerificationAttempts != 0 || stored.VerificationCodeIssuedAt == nil {
		t.Fatalf("unexpected verification state: %#v", stored)
	}
}

func TestVerifyCodeSuccessCannotBeReplayed(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	session := createTestSession(t, newTestSessionService(repos, clock))
	service := newTestVerificationService(repos, clock, "424242")
	ctx := context.Background()

	if _, err := service.IssueCode(ctx, session.ID); err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}
	result, err := service.VerifyCode(ctx, session.ID, "424242")
	if err != nil {
		t.Fatalf("VerifyCode() unexpected error: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected verified result")
	}

	stored, err := repos.Sessions.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() unexpected error: %v", err)
	}
	if !stored.EmailVerified || stored.VerificationCodeHash != "" {
		t.Fatalf("expected verified session with cleared code, got %#v", stored)
	}

	if _, err := service.VerifyCode(ctx, session.ID, "424242"); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected replay to fail with ErrEmailAlreadyVerified, got %v", err)
	}
	if _, err := service.IssueCode(ctx, session.ID); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected IssueCode() on verified email to fail, got %v", err)
	}
}

func TestVerifyCodeMismatchCountsAttempts(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	session := createTestSession(t, newTestSessionService(repos, clock))
	service := newTestVerificationService(repos, clock, "111111")
	ctx := context.Background()

	if _, err := service.VerifyCode(ctx, session.ID, "111111"); !errors.Is(err, ErrVerificationNotIssued) {
		t.Fatalf("expected ErrVerificationNotIssued before issuing, got %v", err)
	}
	if _, err := service.IssueCode(ctx, session.ID); err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}

	result, err := service.VerifyCode(ctx, session.ID, "999999")
	if !errors.Is(err, ErrVerificationMismatch) {
		t.Fatalf("expected ErrVerificationMismatch, got %v", err)
	}
	if result.Verified || result.AttemptsRemaining != 4 || result.LockedUntil != nil {
		t.Fatalf("unexpected result after one miss: %#v", result)
	}

	stored, err := repos.Sessions.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() unexpected error: %v", err)
	}
	if stored.VerificationAttempts != 1 {
		t.Fatalf("expected the miss to be persisted, got %d attempts", stored.VerificationAttempts)
	}
}

func TestVerifyCodeExpiresAfterTTL(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	session := createTestSession(t, newTestSessionService(repos, clock))
	service := newTestVerificationService(repos, clock, "222222")
	ctx := context.Background()

	if _, err := service.IssueCode(ctx, session.ID); err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}
	clock.Advance(DefaultVerificationCodeTTL + time.Second)

	if _, err := service.VerifyCode(ctx, session.ID, "222222"); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected ErrVerificationExpired, got %v", err)
	}
	stored, err := repos.Sessions.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() unexpected error: %v", err)
	}
	if stored.VerificationAttempts != 0 {
		t.Fatalf("expired codes must not count as attempts, got %d", stored.VerificationAttempts)
	}
}

func TestOnboardingLockoutScenario(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	sessions := newTestSessionService(repos, clock)
	service := newTestVerificationService(repos, clock, "135790", "246801")
	ctx := context.Background()

	session, err := sessions.CreateSession(ctx, CreateSessionInput{Email: "a@x.com", Locale: "en"})
	if err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}
	if _, err := sessions.SaveFormData(ctx, session.ID, map[string]any{"firstName": "Ann"}); err != nil {
		t.Fatalf("SaveFormData() unexpected error: %v", err)
	}
	if _, err := service.IssueCode(ctx, session.ID); err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}

	for attempt := 1; attempt <= MaxVerificationAttempts; attempt++ {
		result, err := service.VerifyCode(ctx, session.ID, "000000")
		if attempt < MaxVerificationAttempts {
			if !errors.Is(err, ErrVerificationMismatch) {
				t.Fatalf("attempt %d: expected mismatch, got %v", attempt, err)
			}
			continue
		}

		var locked *LockedError
		if !errors.As(err, &locked) || !errors.Is(err, ErrRateLimited) {
			t.Fatalf("attempt %d: expected lockout, got %v", attempt, err)
		}
		if result.LockedUntil == nil || !result.LockedUntil.Equal(clock.Now().Add(VerificationLockout)) {
			t.Fatalf("expected lockout of fifteen minutes, got %#v", result.LockedUntil)
		}
	}

	result, err := service.VerifyCode(ctx, session.ID, "135790")
	if !errors.Is(err, ErrVerificationLocked) {
		t.Fatalf("expected correct code to be rejected while locked, got %v", err)
	}
	if result.LockedUntil == nil || !result.LockedUntil.After(clock.Now()) || result.AttemptsRemaining != 0 {
		t.Fatalf("expected future lockout in result, got %#v", result)
	}
	if _, err := service.IssueCode(ctx, session.ID); !errors.Is(err, ErrVerificationLocked) {
		t.Fatalf("expected IssueCode() to fail while locked, got %v", err)
	}

	clock.Advance(VerificationLockout + time.Second)
	if _, err := service.IssueCode(ctx, session.ID); err != nil {
		t.Fatalf("IssueCode() after lockout unexpected error: %v", err)
	}
	result, err = service.VerifyCode(ctx, session.ID, "246801")
	if err != nil || !result.Verified {
		t.Fatalf("expected verification after lockout, got %#v %v", result, err)
	}
}

type recordingNotifier struct {
	sessionID string
	code      string
}

func (notifier *recordingNotifier) SendVerificationCode(_ context.Context, session models.OnboardingSession, code string) error {
	notifier.sessionID = session.ID
	notifier.code = code
	return nil
}

func TestIssueCodeNotifiesWithPlaintextCode(t *testing.T) {
	repos := openTestRepositories(t)
	clock := newTestClock()
	session := createTestSession(t, newTestSessionService(repos, clock))
	service := newTestVerificationService(repos, clock, "777111")
	notifier := &recordingNotifier{}
	service.notifier = notifier

	if _, err := service.IssueCode(context.Background(), session.ID); err != nil {
		t.Fatalf("IssueCode() unexpected error: %v", err)
	}
	if notifier.sessionID != session.ID || notifier.code != "777111" {
		t.Fatalf("unexpected notification: %#v", notifier)
	}
}
