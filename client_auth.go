package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Backend endpoints, relative to API.BaseURL.
const (
	PathRegister       = "/v1/register"
	PathLogin          = "/v1/login"
	PathForgotPassword = "/v1/forget-password"
	PathVerifyOTP      = "/v1/verify-otp"
	PathResetPassword  = "/v1/reset-password"
)

// RegisterRequest is the body of PathRegister.
type RegisterRequest struct {
	Name                 string `json:"name,omitempty"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
}

// LoginRequest is the body of PathLogin.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest is the body of PathForgotPassword.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest is the body of PathVerifyOTP.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest completes the reset flow. The backend accepts either
// the OTP itself or the ResetToken returned by VerifyOTP.
type ResetPasswordRequest struct {
	Email                string `json:"email"`
	OTP                  string `json:"otp,omitempty"`
	ResetToken           string `json:"reset_token,omitempty"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
}

// AuthResponse is the body of a successful login or registration.
type AuthResponse struct {
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user,omitempty"`
	Message string          `json:"message,omitempty"`
}

// MessageResponse is the body of the password-reset flow endpoints.
type MessageResponse struct {
	Message    string `json:"message,omitempty"`
	ResetToken string `json:"reset_token,omitempty"`
}

// Register creates an account. When the response carries a token the new
// session is stored; a registration that must be verified first leaves the
// session untouched.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	if req.PasswordConfirmation != "" && req.PasswordConfirmation != req.Password {
		return nil, fmt.Errorf("%w: password confirmation does not match", ErrInvalidRequest)
	}

	resp, err := c.authenticate(ctx, PathRegister, req, false)

	ev := newAuditEvent(AuditRegister, err == nil)
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		ev.Error = err.Error()
		c.audit.Emit(ctx, ev)
		c.notify(ctx, NoticeError, failureMessage("Registration failed", err))
		return nil, err
	}

	c.metrics.Inc(MetricRegisterSuccess)
	ev.UserID = tokenSubject(resp.Token)
	c.audit.Emit(ctx, ev)
	c.notify(ctx, NoticeSuccess, successMessage(resp.Message, "Registration successful"))
	return resp, nil
}

// Login exchanges credentials for a token and stores the session. A 2xx
// response without a token is an error.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}

	resp, err := c.authenticate(ctx, PathLogin, req, true)

	ev := newAuditEvent(AuditLogin, err == nil)
	ev.Metadata = map[string]string{"email": req.Email}
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		ev.Error = err.Error()
		c.audit.Emit(ctx, ev)
		c.notify(ctx, NoticeError, failureMessage("Login failed", err))
		return nil, err
	}

	c.metrics.Inc(MetricLoginSuccess)
	ev.UserID = tokenSubject(resp.Token)
	c.audit.Emit(ctx, ev)
	c.notify(ctx, NoticeSuccess, successMessage(resp.Message, "Logged in successfully"))
	return resp, nil
}

func (c *Client) authenticate(ctx context.Context, path string, body any, requireToken bool) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		if requireToken {
			return nil, ErrMissingToken
		}
		return &resp, nil
	}
	if err := c.session.SetAuth(ctx, resp.Token, resp.User); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &resp, nil
}

// Logout forgets the session on this device. The backend is not called.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	ev := newAuditEvent(AuditLogout, true)
	ev.UserID = tokenSubject(c.session.Token())

	c.session.ClearAuth(ctx)

	c.metrics.Inc(MetricLogout)
	c.audit.Emit(ctx, ev)
	c.notify(ctx, NoticeInfo, "Logged out")
	return nil
}

// ForgotPassword asks the backend to send a one-time code to email.
func (c *Client) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*MessageResponse, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	c.metrics.Inc(MetricPasswordResetRequest)

	resp, err := c.resetFlow(ctx, PathForgotPassword, req, AuditPasswordResetRequest,
		"Reset code sent", "Could not send reset code")
	return resp, err
}

// VerifyOTP checks the one-time code sent by ForgotPassword.
func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*MessageResponse, error) {
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		return nil, fmt.Errorf("%w: email and otp are required", ErrInvalidRequest)
	}

	resp, err := c.resetFlow(ctx, PathVerifyOTP, req, AuditOTPVerify,
		"Code verified", "Code verification failed")
	if err != nil {
		c.metrics.Inc(MetricOTPVerifyFailure)
		return nil, err
	}
	c.metrics.Inc(MetricOTPVerifySuccess)
	return resp, nil
}

// ResetPassword sets a new password after a successful VerifyOTP.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	if req.OTP == "" && req.ResetToken == "" {
		return nil, fmt.Errorf("%w: otp or reset token is required", ErrInvalidRequest)
	}
	if req.PasswordConfirmation != "" && req.PasswordConfirmation != req.Password {
		return nil, fmt.Errorf("%w: password confirmation does not match", ErrInvalidRequest)
	}

	resp, err := c.resetFlow(ctx, PathResetPassword, req, AuditPasswordReset,
		"Password reset successfully", "Password reset failed")
	if err != nil {
		c.metrics.Inc(MetricPasswordResetFailure)
		return nil, err
	}
	c.metrics.Inc(MetricPasswordResetSuccess)
	return resp, nil
}

func (c *Client) resetFlow(ctx context.Context, path string, body any, event, okMsg, failMsg string) (*MessageResponse, error) {
	var resp MessageResponse
	err := c.Do(ctx, http.MethodPost, path, body, &resp)

	ev := newAuditEvent(event, err == nil)
	if err != nil {
		ev.Error = err.Error()
		c.audit.Emit(ctx, ev)
		c.notify(ctx, NoticeError, failureMessage(failMsg, err))
		return nil, err
	}
	c.audit.Emit(ctx, ev)
	c.notify(ctx, NoticeSuccess, successMessage(resp.Message, okMsg))
	return &resp, nil
}

func successMessage(server, fallback string) string {
	if server != "" {
		return server
	}
	return fallback
}

func failureMessage(prefix string, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrClientNotReady) {
		return prefix
	}
	return prefix + ": " + err.Error()
}
