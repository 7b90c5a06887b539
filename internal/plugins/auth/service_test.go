package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// --- Test Doubles ---

// testClock is a settable clock shared by the service and session issuer.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeNotifier records events instead of sending mail.
type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// last returns the most recent event, failing the test if there is none.
func (n *fakeNotifier) last(t *testing.T) Event {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		t.Fatal("expected a notification, got none")
	}
	return n.events[len(n.events)-1]
}

// stubRepo overrides selected methods of an embedded repository.
type stubRepo struct {
	UserRepository
	findByEmailFn   func(ctx context.Context, email string) (*User, error)
	recordFailureFn func(ctx context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return s.UserRepository.FindByEmail(ctx, email)
}

func (s *stubRepo) RecordFailure(ctx context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error {
	if s.recordFailureFn != nil {
		return s.recordFailureFn(ctx, id, track, policy, now)
	}
	return s.UserRepository.RecordFailure(ctx, id, track, policy, now)
}

// --- Test Helpers ---

const (
	testName     = "Jane"
	testEmail    = "jane@x.com"
	testPassword = "Aa1!aaaa"
)

type testEnv struct {
	svc      AuthService
	repo     UserRepository
	notifier *fakeNotifier
	clock    *testClock
}

// newTestEnv builds a service over an in-memory repository at bcrypt's
// minimum cost. mod may adjust the config before construction.
func newTestEnv(t *testing.T, repo UserRepository, mod func(*ServiceConfig)) *testEnv {
	t.Helper()
	if repo == nil {
		repo = NewMemoryUserRepository()
	}
	clock := newTestClock()
	notifier := &fakeNotifier{}

	issuer, err := NewSessionIssuer("test-secret-test-secret-test-secret", 72*time.Hour, clock.Now)
	if err != nil {
		t.Fatalf("session issuer: %v", err)
	}

	cfg := ServiceConfig{BcryptCost: bcrypt.MinCost}
	if mod != nil {
		mod(&cfg)
	}

	svc, err := NewAuthService(repo, issuer, notifier, cfg, clock.Now)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	return &testEnv{svc: svc, repo: repo, notifier: notifier, clock: clock}
}

// register creates the standard test account and returns its emailed code.
func (env *testEnv) register(t *testing.T) (*PublicUser, string) {
	t.Helper()
	user, err := env.svc.Register(context.Background(), RegisterInput{
		Name: testName, Email: testEmail, Password: testPassword,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ev := env.notifier.last(t)
	if ev.Kind != EventVerificationCode {
		t.Fatalf("expected verification event, got %s", ev.Kind)
	}
	return user, ev.Code
}

// registerVerified creates and verifies the standard test account.
func (env *testEnv) registerVerified(t *testing.T) *PublicUser {
	t.Helper()
	user, code := env.register(t)
	if _, err := env.svc.VerifyEmail(context.Background(), testEmail, code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return user
}

func (env *testEnv) login(password string) (*LoginResult, error) {
	return env.svc.Login(context.Background(), LoginInput{Email: testEmail, Password: password})
}

func (env *testEnv) stored(t *testing.T) *User {
	t.Helper()
	u, err := env.repo.FindByEmail(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	return u
}

// assertAppError checks that err is an *apperror.AppError with the expected
// status and type.
func assertAppError(t *testing.T, err error, expectedCode int, expectedType string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", expectedType)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode || appErr.Type != expectedType {
		t.Errorf("expected %d %s, got %d %s (message: %s)",
			expectedCode, expectedType, appErr.Code, appErr.Type, appErr.Message)
	}
}

// --- Register Tests ---

func TestRegister_CreatesUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	user, code := env.register(t)
	if user.Role != rbac.RoleUser {
		t.Errorf("expected role user, got %s", user.Role)
	}
	if len(code) != verificationCodeLength {
		t.Errorf("expected %d-digit code, got %q", verificationCodeLength, code)
	}

	stored := env.stored(t)
	if stored.IsEmailVerified {
		t.Error("new account must start unverified")
	}
	if stored.VerificationHash == nil || *stored.VerificationHash != HashOneTimeSecret(code) {
		t.Error("expected only the code hash to be stored")
	}
	if !stored.VerificationExpires.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Errorf("unexpected code expiry %v", stored.VerificationExpires)
	}
	if !VerifyPassword(testPassword, stored.PasswordHash) {
		t.Error("stored hash does not verify the password")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"missing name", RegisterInput{Email: testEmail, Password: testPassword}},
		{"missing email", RegisterInput{Name: testName, Password: testPassword}},
		{"missing password", RegisterInput{Name: testName, Email: testEmail}},
		{"bad email", RegisterInput{Name: testName, Email: "jane-at-x", Password: testPassword}},
		{"weak password", RegisterInput{Name: testName, Email: testEmail, Password: "password"}},
		{"markup-only name", RegisterInput{Name: "<b></b>", Email: testEmail, Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			_, err := env.svc.Register(context.Background(), tt.input)
			assertAppError(t, err, http.StatusBadRequest, apperror.TypeValidation)
			if env.notifier.count() != 0 {
				t.Error("no notification expected on validation failure")
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.register(t)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Name: "Other", Email: "JANE@x.com", Password: testPassword,
	})
	assertAppError(t, err, http.StatusConflict, apperror.TypeConflict)
}

func TestRegister_SanitizesName(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	user, err := env.svc.Register(context.Background(), RegisterInput{
		Name: "<script>x</script>Jane <b>Doe</b>", Email: testEmail, Password: testPassword,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "Jane Doe" {
		t.Errorf("expected sanitized name, got %q", user.Name)
	}
}

func TestRegister_StoreErrorIsInternal(t *testing.T) {
	repo := &stubRepo{
		UserRepository: NewMemoryUserRepository(),
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return nil, errors.New("connection refused")
		},
	}
	env := newTestEnv(t, repo, nil)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Name: testName, Email: testEmail, Password: testPassword,
	})
	assertAppError(t, err, http.StatusInternalServerError, apperror.TypeInternal)
}

// --- Login Tests ---

func TestLogin_UnverifiedAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.register(t)

	_, err := env.login(testPassword)
	assertAppError(t, err, http.StatusForbidden, apperror.TypeEmailNotVerified)

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if appErr.Meta["verify_required"] != true {
		t.Error("expected verify_required hint")
	}
}

func TestLogin_CorrectPasswordClearsCountersBeforeVerificationGate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.register(t)

	for i := 0; i < 3; i++ {
		_, err := env.login("Wrong1!pw")
		assertAppError(t, err, http.StatusUnauthorized, apperror.TypeInvalidCredentials)
	}
	if got := env.stored(t).LoginFailedAttempts; got != 3 {
		t.Fatalf("expected 3 failures, got %d", got)
	}

	_, err := env.login(testPassword)
	assertAppError(t, err, http.StatusForbidden, apperror.TypeEmailNotVerified)
	if got := env.stored(t).LoginFailedAttempts; got != 0 {
		t.Errorf("expected counter reset, got %d", got)
	}
}

func TestLogin_UnknownEmailMatchesWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)

	_, unknown := env.svc.Login(context.Background(), LoginInput{Email: "nobody@x.com", Password: testPassword})
	_, wrong := env.login("Wrong1!pw")

	assertAppError(t, unknown, http.StatusUnauthorized, apperror.TypeInvalidCredentials)
	assertAppError(t, wrong, http.StatusUnauthorized, apperror.TypeInvalidCredentials)
	if apperror.SafeMessage(unknown) != apperror.SafeMessage(wrong) {
		t.Errorf("messages differ: %q vs %q", apperror.SafeMessage(unknown), apperror.SafeMessage(wrong))
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.registerVerified(t)

	result, err := env.login(testPassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User != *user {
		t.Errorf("expected profile %+v, got %+v", *user, result.User)
	}
	if !result.Session.ExpiresAt.Equal(env.clock.Now().Add(72 * time.Hour)) {
		t.Errorf("unexpected session expiry %v", result.Session.ExpiresAt)
	}

	session, err := env.svc.ResolveSession(context.Background(), result.Session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.UserID != user.ID || session.Role != rbac.RoleUser {
		t.Errorf("unexpected session %+v", session)
	}
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)

	for i := 0; i < 5; i++ {
		_, err := env.login("Wrong1!pw")
		assertAppError(t, err, http.StatusUnauthorized, apperror.TypeInvalidCredentials)
	}

	// Locked: even the correct password is refused before comparison.
	_, err := env.login(testPassword)
	assertAppError(t, err, http.StatusTooManyRequests, apperror.TypeTooManyAttempts)

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if appErr.Meta["retry_after_minutes"] != 10 {
		t.Errorf("expected 10 minutes remaining, got %v", appErr.Meta["retry_after_minutes"])
	}

	stored := env.stored(t)
	if stored.LoginFailedAttempts != 0 {
		t.Errorf("counter should reset when the lockout starts, got %d", stored.LoginFailedAttempts)
	}

	env.clock.Advance(10*time.Minute + time.Second)

	if _, err := env.login(testPassword); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
	stored = env.stored(t)
	if stored.LoginFailedAttempts != 0 || stored.LoginLockedUntil != nil {
		t.Errorf("expected cleared login track, got %d %v", stored.LoginFailedAttempts, stored.LoginLockedUntil)
	}
}

func TestLogin_ConfiguredPolicy(t *testing.T) {
	env := newTestEnv(t, nil, func(cfg *ServiceConfig) {
		cfg.LoginPolicy = LockoutPolicy{Threshold: 2, Duration: 3 * time.Minute}
	})
	env.registerVerified(t)

	env.login("Wrong1!pw")
	env.login("Wrong1!pw")

	_, err := env.login(testPassword)
	assertAppError(t, err, http.StatusTooManyRequests, apperror.TypeTooManyAttempts)
	if !apperror.IsType(err, apperror.TypeTooManyAttempts) || apperror.SafeMessage(err) != "Too many attempts. Try again in ~3m." {
		t.Errorf("unexpected message %q", apperror.SafeMessage(err))
	}
}

func TestLogin_ConcurrentFailuresAreNotLost(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = env.login("Wrong1!pw")
		}()
	}
	close(start)
	wg.Wait()

	if got := env.stored(t).LoginFailedAttempts; got != 2 {
		t.Errorf("expected exactly 2 recorded failures, got %d", got)
	}
}

func TestLogin_RecordFailureErrorIsInternal(t *testing.T) {
	mem := NewMemoryUserRepository()
	repo := &stubRepo{
		UserRepository: mem,
		recordFailureFn: func(ctx context.Context, id string, track Track, policy LockoutPolicy, now time.Time) error {
			return errors.New("deadlock")
		},
	}
	env := newTestEnv(t, repo, nil)
	env.registerVerified(t)

	_, err := env.login("Wrong1!pw")
	assertAppError(t, err, http.StatusInternalServerError, apperror.TypeInternal)
}

// --- Verification Tests ---

func TestVerifyEmail_LockoutIsIndependentOfLogin(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, code := env.register(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svc.VerifyEmail(ctx, testEmail, "000000x")
		assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredCode)
	}

	_, err := env.svc.VerifyEmail(ctx, testEmail, code)
	assertAppError(t, err, http.StatusTooManyRequests, apperror.TypeTooManyAttempts)

	// The login track is untouched: a correct password reaches the
	// verification gate rather than a lockout.
	_, err = env.login(testPassword)
	assertAppError(t, err, http.StatusForbidden, apperror.TypeEmailNotVerified)

	env.clock.Advance(10 * time.Minute)

	if _, err := env.svc.VerifyEmail(ctx, testEmail, code); err != nil {
		t.Fatalf("expected verification after cooldown, got %v", err)
	}
	stored := env.stored(t)
	if !stored.IsEmailVerified || stored.VerificationHash != nil || stored.VerifyFailedAttempts != 0 {
		t.Errorf("unexpected state after verification: %+v", stored)
	}
}

func TestVerifyEmail_LoginLockoutDoesNotBlockVerification(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, code := env.register(t)

	// Unverified accounts still count wrong passwords.
	for i := 0; i < 5; i++ {
		env.login("Wrong1!pw")
	}
	_, err := env.login(testPassword)
	assertAppError(t, err, http.StatusTooManyRequests, apperror.TypeTooManyAttempts)

	if _, err := env.svc.VerifyEmail(context.Background(), testEmail, code); err != nil {
		t.Fatalf("verification should not be affected by login lockout: %v", err)
	}
}

func TestVerifyEmail_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)

	already, err := env.svc.VerifyEmail(context.Background(), testEmail, "garbage")
	if err != nil {
		t.Fatalf("expected success for verified account, got %v", err)
	}
	if !already {
		t.Error("expected alreadyVerified")
	}
}

func TestVerifyEmail_GenericFailures(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, code := env.register(t)
	ctx := context.Background()

	_, err := env.svc.VerifyEmail(ctx, "nobody@x.com", code)
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredCode)

	env.clock.Advance(24 * time.Hour)
	_, err = env.svc.VerifyEmail(ctx, testEmail, code)
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredCode)

	_, err = env.svc.VerifyEmail(ctx, testEmail, "")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeValidation)
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, oldCode := env.register(t)
	ctx := context.Background()

	if err := env.svc.ResendVerification(ctx, "nobody@x.com"); err != nil {
		t.Fatalf("unknown email should succeed silently: %v", err)
	}
	if env.notifier.count() != 1 {
		t.Fatal("no mail expected for unknown email")
	}

	if err := env.svc.ResendVerification(ctx, testEmail); err != nil {
		t.Fatalf("resend: %v", err)
	}
	newCode := env.notifier.last(t).Code

	if oldCode != newCode {
		_, err := env.svc.VerifyEmail(ctx, testEmail, oldCode)
		assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredCode)
	}
	if _, err := env.svc.VerifyEmail(ctx, testEmail, newCode); err != nil {
		t.Fatalf("new code should verify: %v", err)
	}

	sent := env.notifier.count()
	if err := env.svc.ResendVerification(ctx, testEmail); err != nil {
		t.Fatalf("verified account should succeed silently: %v", err)
	}
	if env.notifier.count() != sent {
		t.Error("no mail expected for verified account")
	}
}

// --- Password Reset Tests ---

func TestForgotPassword_UnknownEmailSendsNothing(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if err := env.svc.ForgotPassword(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Error("expected no notification")
	}
}

func TestResetPassword_FullCycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)
	ctx := context.Background()

	before, err := env.login(testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.svc.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	ev := env.notifier.last(t)
	if ev.Kind != EventPasswordReset || len(ev.Token) != 2*opaqueTokenBytes {
		t.Fatalf("unexpected reset event %+v", ev)
	}
	stored := env.stored(t)
	if stored.ResetHash == nil || *stored.ResetHash != HashOneTimeSecret(ev.Token) {
		t.Fatal("expected only the token hash to be stored")
	}
	if StatusOf(stored, env.clock.Now()).Kind != StatusResetPending {
		t.Error("expected reset-pending status")
	}

	const newPassword = "Bb2@bbbb"
	if err := env.svc.ResetPassword(ctx, ev.Token, newPassword); err != nil {
		t.Fatalf("reset: %v", err)
	}

	stored = env.stored(t)
	if VerifyPassword(testPassword, stored.PasswordHash) {
		t.Error("old password still verifies")
	}
	if !VerifyPassword(newPassword, stored.PasswordHash) {
		t.Error("new password does not verify")
	}
	if stored.ResetHash != nil || stored.ResetExpires != nil {
		t.Error("reset secret should be cleared")
	}

	_, err = env.svc.ResolveSession(ctx, before.Session.Token)
	assertAppError(t, err, http.StatusUnauthorized, apperror.TypeStaleSession)

	// Single use.
	err = env.svc.ResetPassword(ctx, ev.Token, "Cc3#cccc")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredToken)

	if _, err := env.login(newPassword); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.registerVerified(t)
	ctx := context.Background()

	if err := env.svc.ForgotPassword(ctx, testEmail); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := env.notifier.last(t).Token

	env.clock.Advance(time.Hour)

	err := env.svc.ResetPassword(ctx, token, "Bb2@bbbb")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredToken)
}

func TestResetPassword_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	err := env.svc.ResetPassword(ctx, "", "Bb2@bbbb")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeValidation)

	err = env.svc.ResetPassword(ctx, "sometoken", "short")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeValidation)

	err = env.svc.ResetPassword(ctx, "unknown-token", "Bb2@bbbb")
	assertAppError(t, err, http.StatusBadRequest, apperror.TypeInvalidOrExpiredToken)
}

// --- Session Tests ---

func TestResolveSession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.registerVerified(t)
	ctx := context.Background()

	result, err := env.login(testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = env.svc.ResolveSession(ctx, "not-a-jwt")
	assertAppError(t, err, http.StatusUnauthorized, apperror.TypeInvalidToken)

	// The live role wins over the role embedded at issuance.
	if err := env.repo.UpdateRole(ctx, user.ID, rbac.RoleStaff); err != nil {
		t.Fatalf("update role: %v", err)
	}
	session, err := env.svc.ResolveSession(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.Role != rbac.RoleStaff {
		t.Errorf("expected live role staff, got %s", session.Role)
	}

	env.clock.Advance(72 * time.Hour)
	_, err = env.svc.ResolveSession(ctx, result.Session.Token)
	assertAppError(t, err, http.StatusUnauthorized, apperror.TypeInvalidToken)
}

func TestResolveSession_DeletedAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := &User{ID: "ghost", Role: rbac.RoleUser}

	issuer, _ := NewSessionIssuer("test-secret-test-secret-test-secret", time.Hour, env.clock.Now)
	issued, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = env.svc.ResolveSession(context.Background(), issued.Token)
	assertAppError(t, err, http.StatusUnauthorized, apperror.TypeStaleSession)
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name       string
		everywhere bool
		wantStale  bool
	}{
		{"session survives by default", false, false},
		{"logout everywhere revokes", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, func(cfg *ServiceConfig) { cfg.LogoutEverywhere = tt.everywhere })
			env.registerVerified(t)
			ctx := context.Background()

			result, err := env.login(testPassword)
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			session, err := env.svc.ResolveSession(ctx, result.Session.Token)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}

			if err := env.svc.Logout(ctx, session); err != nil {
				t.Fatalf("logout: %v", err)
			}

			_, err = env.svc.ResolveSession(ctx, result.Session.Token)
			if tt.wantStale {
				assertAppError(t, err, http.StatusUnauthorized, apperror.TypeStaleSession)
			} else if err != nil {
				t.Errorf("expected session to survive, got %v", err)
			}
		})
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t, nil, func(cfg *ServiceConfig) { cfg.LogoutEverywhere = true })
	if err := env.svc.Logout(context.Background(), nil); err != nil {
		t.Errorf("logout without session must succeed, got %v", err)
	}
}

// --- Misc ---

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	user := env.registerVerified(t)

	got, err := env.svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if *got != *user {
		t.Errorf("expected %+v, got %+v", *user, *got)
	}

	_, err = env.svc.Me(context.Background(), "missing")
	assertAppError(t, err, http.StatusNotFound, apperror.TypeNotFound)
}

func TestPurgeUnverified(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.register(t)
	ctx := context.Background()

	n, err := env.svc.PurgeUnverified(ctx, 30*24*time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing purged yet, got %d %v", n, err)
	}

	env.clock.Advance(31 * 24 * time.Hour)
	n, err = env.svc.PurgeUnverified(ctx, 30*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d %v", n, err)
	}
	if _, err := env.repo.FindByEmail(ctx, testEmail); !apperror.IsNotFound(err) {
		t.Errorf("expected account gone, got %v", err)
	}
}

func TestNewAuthService_RejectsBadCost(t *testing.T) {
	issuer, _ := NewSessionIssuer("secret", time.Hour, nil)
	_, err := NewAuthService(NewMemoryUserRepository(), issuer, &fakeNotifier{}, ServiceConfig{BcryptCost: 99}, nil)
	if err == nil {
		t.Fatal("expected error for out-of-range cost")
	}
}
