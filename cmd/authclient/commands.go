package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/MrEthical07/authclient"
)

type command struct {
	summary string
	// offline commands run without building a client
	offline bool
	run     func(ctx context.Context, env *environment, args []string) error
}

var commandOrder = []string{
	"status", "login", "register", "logout",
	"forgot-password", "verify-otp", "reset-password",
	"get", "routes",
}

var commands = map[string]command{
	"status":          {summary: "show the stored session", run: runStatus},
	"login":           {summary: "log in and store the session", run: runLogin},
	"register":        {summary: "create an account", run: runRegister},
	"logout":          {summary: "forget the stored session", run: runLogout},
	"forgot-password": {summary: "request a password reset code", run: runForgotPassword},
	"verify-otp":      {summary: "verify a password reset code", run: runVerifyOTP},
	"reset-password":  {summary: "set a new password", run: runResetPassword},
	"get":             {summary: "GET an API path with the stored session", run: runGet},
	"routes":          {summary: "list application routes", offline: true, run: runRoutes},
}

func parseCommandFlags(name string, env *environment, args []string, define func(fs *pflag.FlagSet)) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.stderr)
	define(fs)
	if err := fs.Parse(args); err != nil {
		return nil, usageError{msg: fmt.Sprintf("%s: %v", name, err)}
	}
	return fs, nil
}

// password resolves a password from the flag or AUTHCLIENT_PASSWORD.
func password(env *environment, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return env.getenv("AUTHCLIENT_PASSWORD")
}

func runStatus(_ context.Context, env *environment, args []string) error {
	if len(args) > 0 {
		return usagef("status: unexpected argument %q", args[0])
	}
	st := env.client.Status()

	fmt.Fprintf(env.stdout, "backend:       %s\n", st.Backend)
	fmt.Fprintf(env.stdout, "api:           %s\n", st.BaseURL)
	fmt.Fprintf(env.stdout, "authenticated: %t\n", st.Authenticated)
	if len(st.User) > 0 {
		fmt.Fprintf(env.stdout, "user:          %s\n", st.User)
	}
	if st.Claims != nil {
		if st.Claims.UserID != "" {
			fmt.Fprintf(env.stdout, "user id:       %s\n", st.Claims.UserID)
		}
		if st.Claims.HasExpiry() {
			left := st.Claims.TimeLeft(time.Now()).Round(time.Second)
			fmt.Fprintf(env.stdout, "expires:       %s (%s)\n", st.Claims.ExpiresAt.Format(time.RFC3339), left)
		}
		if st.Expired {
			fmt.Fprintln(env.stdout, "expired:       true")
		}
	}
	return nil
}

func runLogin(ctx context.Context, env *environment, args []string) error {
	var email, pass string
	if _, err := parseCommandFlags("login", env, args, func(fs *pflag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&pass, "password", "", "password (env AUTHCLIENT_PASSWORD)")
	}); err != nil {
		return err
	}

	resp, err := env.client.Login(ctx, authclient.LoginRequest{Email: email, Password: password(env, pass)})
	if err != nil {
		return err
	}
	if len(resp.User) > 0 {
		fmt.Fprintf(env.stdout, "%s\n", resp.User)
	}
	return nil
}

func runRegister(ctx context.Context, env *environment, args []string) error {
	var name, email, pass, confirm string
	if _, err := parseCommandFlags("register", env, args, func(fs *pflag.FlagSet) {
		fs.StringVar(&name, "name", "", "display name")
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&pass, "password", "", "password (env AUTHCLIENT_PASSWORD)")
		fs.StringVar(&confirm, "password-confirmation", "", "repeat the password")
	}); err != nil {
		return err
	}

	resp, err := env.client.Register(ctx, authclient.RegisterRequest{
		Name:                 name,
		Email:                email,
		Password:             password(env, pass),
		PasswordConfirmation: confirm,
	})
	if err != nil {
		return err
	}
	if resp.Token == "" {
		fmt.Fprintln(env.stdout, "registered; log in to start a session")
	}
	return nil
}

func runLogout(ctx context.Context, env *environment, args []string) error {
	if len(args) > 0 {
		return usagef("logout: unexpected argument %q", args[0])
	}
	return env.client.Logout(ctx)
}

func runForgotPassword(ctx context.Context, env *environment, args []string) error {
	var email string
	if _, err := parseCommandFlags("forgot-password", env, args, func(fs *pflag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
	}); err != nil {
		return err
	}
	_, err := env.client.ForgotPassword(ctx, authclient.ForgotPasswordRequest{Email: email})
	return err
}

func runVerifyOTP(ctx context.Context, env *environment, args []string) error {
	var email, otp string
	if _, err := parseCommandFlags("verify-otp", env, args, func(fs *pflag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&otp, "otp", "", "code received by email")
	}); err != nil {
		return err
	}
	resp, err := env.client.VerifyOTP(ctx, authclient.VerifyOTPRequest{Email: email, OTP: otp})
	if err != nil {
		return err
	}
	if resp.ResetToken != "" {
		fmt.Fprintf(env.stdout, "reset token: %s\n", resp.ResetToken)
	}
	return nil
}

func runResetPassword(ctx context.Context, env *environment, args []string) error {
	var email, otp, resetToken, pass, confirm string
	if _, err := parseCommandFlags("reset-password", env, args, func(fs *pflag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&otp, "otp", "", "code received by email")
		fs.StringVar(&resetToken, "reset-token", "", "token printed by verify-otp")
		fs.StringVar(&pass, "password", "", "new password (env AUTHCLIENT_PASSWORD)")
		fs.StringVar(&confirm, "password-confirmation", "", "repeat the new password")
	}); err != nil {
		return err
	}
	_, err := env.client.ResetPassword(ctx, authclient.ResetPasswordRequest{
		Email:                email,
		OTP:                  otp,
		ResetToken:           resetToken,
		Password:             password(env, pass),
		PasswordConfirmation: confirm,
	})
	return err
}

func runGet(ctx context.Context, env *environment, args []string) error {
	fs, err := parseCommandFlags("get", env, args, func(*pflag.FlagSet) {})
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("get: expected exactly one path")
	}

	var body json.RawMessage
	if err := env.client.Do(ctx, http.MethodGet, fs.Arg(0), nil, &body); err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) && !env.client.Session().IsAuthenticated() {
			return fmt.Errorf("%w (not logged in)", err)
		}
		return err
	}
	if len(body) == 0 {
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		out.Reset()
		out.Write(body)
	}
	fmt.Fprintln(env.stdout, strings.TrimSpace(out.String()))
	return nil
}

func runRoutes(_ context.Context, env *environment, args []string) error {
	if len(args) > 0 {
		return usagef("routes: unexpected argument %q", args[0])
	}
	for _, r := range authclient.Routes() {
		access := "session"
		if r.Public {
			access = "public"
		}
		fmt.Fprintf(env.stdout, "%-18s %-16s %s\n", r.Path, r.Name, access)
	}
	return nil
}
