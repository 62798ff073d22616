package apitest

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName is the session cookie set by login and registration.
const CookieName = "auth_sid"

// Request is what the server saw of one incoming request.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Cookies       []string
	RequestID     string
	Accept        string
}

// User is the public user record returned by the server.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type account struct {
	user User
	hash []byte
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued tokens. Default one hour.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithRegisterToken controls whether registration logs the user in.
// Default true.
func WithRegisterToken(enabled bool) Option {
	return func(s *Server) { s.registerToken = enabled }
}

// WithUser seeds an account.
func WithUser(name, email, password string) Option {
	return func(s *Server) { s.seed = append(s.seed, [3]string{name, email, password}) }
}

// Server is a fake backend listening on a loopback httptest server. Its
// API lives under /api, so BaseURL is what a client should be pointed at.
type Server struct {
	srv *httptest.Server

	secret        []byte
	issuer        string
	tokenTTL      time.Duration
	registerToken bool
	seed          [][3]string

	mu       sync.Mutex
	accounts map[string]*account
	otps     map[string]string
	resets   map[string]string
	requests []Request
}

// New starts a Server. Callers must Close it.
func New(opts ...Option) *Server {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	s := &Server{
		secret:        secret,
		issuer:        "apitest",
		tokenTTL:      time.Hour,
		registerToken: true,
		accounts:      make(map[string]*account),
		otps:          make(map[string]string),
		resets:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, u := range s.seed {
		_, _ = s.createAccount(u[0], u[1], u[2])
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/forget-password", s.handleForgotPassword)
	mux.HandleFunc("POST /api/v1/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("POST /api/v1/reset-password", s.handleResetPassword)
	mux.HandleFunc("GET /api/v1/me", s.requireBearer(s.handleMe))

	s.srv = httptest.NewServer(s.record(mux))
	return s
}

// BaseURL is the API root, e.g. http://127.0.0.1:PORT/api.
func (s *Server) BaseURL() string {
	return s.srv.URL + "/api"
}

// Client returns an http.Client wired to the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// Requests returns every request seen so far, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// LastRequest returns the most recent request whose path ends with suffix.
func (s *Server) LastRequest(suffix string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if strings.HasSuffix(s.requests[i].Path, suffix) {
			return s.requests[i], true
		}
	}
	return Request{}, false
}

// OTP returns the pending one-time code for email.
func (s *Server) OTP(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.otps[normalizeEmail(email)]
	return otp, ok
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookies []string
		for _, c := range r.Cookies() {
			cookies = append(cookies, c.Name+"="+c.Value)
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Cookies:       cookies,
			RequestID:     r.Header.Get("X-Request-ID"),
			Accept:        r.Header.Get("Accept"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createAccount(name, email, password string) (*account, bool) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[email]; exists {
		return nil, false
	}
	acct := &account{
		user: User{ID: uuid.NewString(), Name: name, Email: email},
		hash: hash,
	}
	s.accounts[email] = acct
	return acct, true
}

func (s *Server) lookup(email string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[normalizeEmail(email)]
	return acct, ok
}

type credentials struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OTP        string `json:"otp"`
	ResetToken string `json:"reset_token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}
	acct, ok := s.createAccount(in.Name, in.Email, in.Password)
	if !ok {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if !s.registerToken {
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Registration successful, please log in",
		})
		return
	}
	s.issue(w, http.StatusCreated, acct, "Registration successful")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	acct, ok := s.lookup(in.Email)
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(in.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issue(w, http.StatusOK, acct, "Login successful")
}

func (s *Server) issue(w http.ResponseWriter, status int, acct *account, message string) {
	token, err := s.IssueToken(acct.user.ID, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    uuid.NewString(),
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, status, map[string]any{
		"token":   token,
		"user":    acct.user,
		"message": message,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	// unknown emails get the same answer
	if _, ok := s.lookup(in.Email); ok {
		otp, err := NewOTP(6)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "otp generation failed")
			return
		}
		s.mu.Lock()
		s.otps[normalizeEmail(in.Email)] = otp
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "If the account exists, a code has been sent"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	email := normalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.otps[email]
	if !ok || in.OTP == "" || want != in.OTP {
		writeError(w, http.StatusBadRequest, "invalid or expired code")
		return
	}
	resetToken := uuid.NewString()
	s.resets[resetToken] = email
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Code verified",
		"reset_token": resetToken,
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	if in.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "password is required")
		return
	}
	email := normalizeEmail(in.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case in.ResetToken != "" && s.resets[in.ResetToken] == email:
		delete(s.resets, in.ResetToken)
	case in.OTP != "" && s.otps[email] == in.OTP:
	default:
		writeError(w, http.StatusBadRequest, "invalid or expired code")
		return
	}
	acct, ok := s.accounts[email]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or expired code")
		return
	}
	acct.hash = hash
	delete(s.otps, email)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password has been reset"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == claims.UID {
			writeJSON(w, http.StatusOK, acct.user)
			return
		}
	}
	writeError(w, http.StatusNotFound, "user not found")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
