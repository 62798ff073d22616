package authclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/internal/apitest"
	"github.com/MrEthical07/authclient/session"
)

func newTestBackend(t *testing.T, opts ...apitest.Option) *apitest.Server {
	t.Helper()
	srv := apitest.New(opts...)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *apitest.Server, mutate func(*Config), with ...func(*Builder)) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.API.BaseURL = srv.BaseURL()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithBaseTransport(srv.Client().Transport)
	for _, fn := range with {
		fn(b)
	}
	c, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestLoginStoresSessionAndAuthorizesRequests(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	resp, err := c.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "pw-123456"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !c.Session().IsAuthenticated() || c.Session().Token() != resp.Token {
		t.Fatalf("session not updated after login")
	}

	var user apitest.User
	ok, err := c.Session().DecodeUser(&user)
	if err != nil || !ok {
		t.Fatalf("DecodeUser: ok=%v err=%v", ok, err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	var me apitest.User
	if err := c.Do(ctx, http.MethodGet, "/v1/me", nil, &me); err != nil {
		t.Fatalf("GET /v1/me: %v", err)
	}
	if me.ID != user.ID {
		t.Fatalf("expected %q, got %q", user.ID, me.ID)
	}

	got, _ := srv.LastRequest("/v1/me")
	if got.Authorization != "Bearer "+resp.Token {
		t.Fatalf("expected bearer header, got %q", got.Authorization)
	}
	if len(got.Cookies) == 0 {
		t.Fatalf("expected session cookie on credentialed request")
	}
	if got.Accept != "application/json" {
		t.Fatalf("expected Accept application/json, got %q", got.Accept)
	}
	if got.RequestID == "" {
		t.Fatalf("expected X-Request-ID")
	}

	if v := c.Metrics().Value(MetricLoginSuccess); v != 1 {
		t.Fatalf("expected 1 login success, got %d", v)
	}
	if v := c.Metrics().Value(MetricRequestAuthorized); v != 1 {
		t.Fatalf("expected 1 authorized request, got %d", v)
	}
}

func TestExcludedEndpointsCarryNoCredentials(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	if _, err := c.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := c.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ada@example.com"}); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	otp, ok := srv.OTP("ada@example.com")
	if !ok {
		t.Fatalf("no otp issued")
	}
	verified, err := c.VerifyOTP(ctx, VerifyOTPRequest{Email: "ada@example.com", OTP: otp})
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if _, err := c.ResetPassword(ctx, ResetPasswordRequest{
		Email:      "ada@example.com",
		ResetToken: verified.ResetToken,
		Password:   "new-password",
	}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	for _, path := range []string{PathForgotPassword, PathVerifyOTP, PathResetPassword} {
		got, ok := srv.LastRequest(path)
		if !ok {
			t.Fatalf("%s not sent", path)
		}
		if got.Authorization != "" {
			t.Fatalf("%s carried Authorization %q", path, got.Authorization)
		}
		if len(got.Cookies) != 0 {
			t.Fatalf("%s carried cookies %v", path, got.Cookies)
		}
	}

	if !c.Session().IsAuthenticated() {
		t.Fatalf("excluded requests must not touch the session")
	}
	if v := c.Metrics().Value(MetricRequestExcluded); v != 3 {
		t.Fatalf("expected 3 excluded requests, got %d", v)
	}
}

func TestLoginFailureLeavesSessionAndNotifies(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	notices := NewChannelNotifier(4)
	c := newTestClient(t, srv, nil, func(b *Builder) { b.WithNotifier(notices) })

	_, err := c.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "wrong"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
		t.Fatalf("unexpected api error %#v", err)
	}
	if c.Session().IsAuthenticated() {
		t.Fatalf("failed login must not authenticate")
	}

	select {
	case n := <-notices.Notices():
		if n.Level != NoticeError || n.Message != "invalid credentials" {
			t.Fatalf("unexpected notice %+v", n)
		}
		if n.Timeout != 5*time.Second || n.Position != "top-right" || !n.CloseOnClick || !n.PauseOnHover {
			t.Fatalf("notice missing toast defaults: %+v", n)
		}
	default:
		t.Fatalf("expected a notice")
	}
}

func TestRegisterWithoutTokenKeepsSession(t *testing.T) {
	srv := newTestBackend(t, apitest.WithRegisterToken(false))
	c := newTestClient(t, srv, nil)

	resp, err := c.Register(context.Background(), RegisterRequest{Email: "new@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if resp.Token != "" || c.Session().IsAuthenticated() {
		t.Fatalf("registration without token must not authenticate")
	}
}

func TestRegisterLogsIn(t *testing.T) {
	srv := newTestBackend(t)
	c := newTestClient(t, srv, nil)

	if _, err := c.Register(context.Background(), RegisterRequest{
		Name: "Bo", Email: "bo@example.com", Password: "pw", PasswordConfirmation: "pw",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !c.Session().IsAuthenticated() {
		t.Fatalf("expected session after registration")
	}

	_, err := c.Register(context.Background(), RegisterRequest{Email: "bo@example.com", Password: "pw"})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed for duplicate, got %v", err)
	}
}

func TestInvalidRequestsAreRejectedLocally(t *testing.T) {
	srv := newTestBackend(t)
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	if _, err := c.Login(ctx, LoginRequest{Email: "a@example.com"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := c.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "a", PasswordConfirmation: "b"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := c.ResetPassword(ctx, ResetPasswordRequest{Email: "a@example.com", Password: "x"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestLogoutClearsLocally(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	storage := session.NewMemoryStorage()
	c := newTestClient(t, srv, nil, func(b *Builder) { b.WithStorage(storage) })
	ctx := context.Background()

	if _, err := c.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	before := len(srv.Requests())

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if c.Session().IsAuthenticated() {
		t.Fatalf("expected cleared session")
	}
	if storage.Len() != 0 {
		t.Fatalf("expected storage emptied, %d keys left", storage.Len())
	}
	if len(srv.Requests()) != before {
		t.Fatalf("logout must not call the backend")
	}

	err := c.Do(ctx, http.MethodGet, "/v1/me", nil, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
	got, _ := srv.LastRequest("/v1/me")
	if got.Authorization != "" {
		t.Fatalf("expected no Authorization after logout, got %q", got.Authorization)
	}
}

func TestSessionRestoredAcrossClients(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	storage := session.NewMemoryStorage()
	ctx := context.Background()

	first := newTestClient(t, srv, nil, func(b *Builder) { b.WithStorage(storage) })
	resp, err := first.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "pw-123456"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	first.Close()

	second := newTestClient(t, srv, nil, func(b *Builder) { b.WithStorage(storage) })
	if second.Session().Token() != resp.Token {
		t.Fatalf("token not restored")
	}
	if v := second.Metrics().Value(MetricSessionRestored); v != 1 {
		t.Fatalf("expected restore metric, got %d", v)
	}

	status := second.Status()
	if !status.Authenticated || status.Claims == nil || status.Expired {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Claims.UserID == "" {
		t.Fatalf("expected user id claim")
	}
}

func TestExpiredTokenClearedOnRestore(t *testing.T) {
	srv := newTestBackend(t)
	expired, err := srv.IssueToken("u1", -time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	for _, clear := range []bool{false, true} {
		storage := session.NewMemoryStorage()
		_ = storage.Set(context.Background(), "token", expired)

		c := newTestClient(t, srv, func(cfg *Config) {
			cfg.Session.ClearExpiredOnRestore = clear
		}, func(b *Builder) { b.WithStorage(storage) })

		if got := c.Session().IsAuthenticated(); got == clear {
			t.Fatalf("clear=%v: authenticated=%v", clear, got)
		}
		if v := c.Metrics().Value(MetricSessionExpiredOnRestore); v != 1 {
			t.Fatalf("clear=%v: expected expired metric, got %d", clear, v)
		}
		if !clear && !c.Status().Expired {
			t.Fatalf("status should report expiry")
		}
	}
}

func TestOpaqueTokenRestoredUntouched(t *testing.T) {
	srv := newTestBackend(t)
	storage := session.NewMemoryStorage()
	_ = storage.Set(context.Background(), "token", "opaque-token")

	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.Session.ClearExpiredOnRestore = true
	}, func(b *Builder) { b.WithStorage(storage) })

	if c.Session().Token() != "opaque-token" {
		t.Fatalf("opaque token must survive restore")
	}
	status := c.Status()
	if status.Claims != nil || status.Expired {
		t.Fatalf("opaque token has no claims: %+v", status)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	srv := newTestBackend(t)
	c := newTestClient(t, srv, nil)

	ctx := WithRequestID(context.Background(), "fixed-id")
	_, _ = c.ForgotPassword(ctx, ForgotPasswordRequest{Email: "x@example.com"})

	got, _ := srv.LastRequest(PathForgotPassword)
	if got.RequestID != "fixed-id" {
		t.Fatalf("expected fixed-id, got %q", got.RequestID)
	}
}

func TestHTTPClientSharesPolicy(t *testing.T) {
	srv := newTestBackend(t, apitest.WithUser("Ada", "ada@example.com", "pw-123456"))
	c := newTestClient(t, srv, nil)
	if _, err := c.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	resp, err := c.HTTPClient().Get(srv.BaseURL() + "/v1/me")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	srv := newTestBackend(t)
	c := newTestClient(t, srv, nil)
	c.Close()
	c.Close()

	if err := c.Do(context.Background(), http.MethodGet, "/v1/me", nil, nil); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if err := c.Logout(context.Background()); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
}

func TestResolveKeepsQueryAndBasePath(t *testing.T) {
	srv := newTestBackend(t)
	c := newTestClient(t, srv, nil)

	got, err := c.resolve("/v1/items?page=2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := srv.BaseURL() + "/v1/items?page=2"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	abs := "https://other.example.com/x"
	if got, _ := c.resolve(abs); got != abs {
		t.Fatalf("absolute URL rewritten to %q", got)
	}
}
