package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrEmptyToken is returned by SetAuth when the token is empty.
	ErrEmptyToken = errors.New("empty token")
	// ErrReloadFailed is returned by Reload when storage could not be read.
	ErrReloadFailed = errors.New("session reload failed")
)

const (
	// DefaultTokenKey is the storage key holding the raw token.
	DefaultTokenKey = "token"
	// DefaultUserKey is the storage key holding the JSON user record.
	DefaultUserKey = "user"
)

// Op names a storage operation reported to Config.OnStorageError.
type Op string

const (
	OpRestore Op = "restore"
	OpSet     Op = "set"
	OpRemove  Op = "remove"
)

// Config configures a Store. The zero value uses the default keys, a
// discarding logger, and no error hook.
type Config struct {
	TokenKey string
	UserKey  string
	Logger   *slog.Logger

	// OnStorageError is called for every storage failure the Store swallows.
	OnStorageError func(op Op, key string, err error)
}

// RestoreResult describes what the Store found in storage at construction.
type RestoreResult struct {
	TokenFound    bool
	UserFound     bool
	UserDiscarded bool
	ReadFailed    bool
}

// Store is the single source of truth for who is logged in.
//
// Memory and storage are updated under one lock: no reader observes the new
// in-memory state before the storage write for it has been issued. Store is
// safe for concurrent use.
type Store struct {
	storage  Storage
	tokenKey string
	userKey  string
	logger   *slog.Logger
	onError  func(op Op, key string, err error)
	restored RestoreResult

	mu      sync.RWMutex
	current Session

	obsMu     sync.Mutex
	observers map[uint64]func(Session)
	nextObsID uint64
}

// NewStore creates a Store and restores any persisted session from storage.
// A nil storage selects a fresh MemoryStorage. Restore never fails: missing
// or unreadable values come back absent.
func NewStore(ctx context.Context, storage Storage, cfg Config) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if cfg.TokenKey == "" {
		cfg.TokenKey = DefaultTokenKey
	}
	if cfg.UserKey == "" {
		cfg.UserKey = DefaultUserKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Store{
		storage:   storage,
		tokenKey:  cfg.TokenKey,
		userKey:   cfg.UserKey,
		logger:    cfg.Logger,
		onError:   cfg.OnStorageError,
		observers: make(map[uint64]func(Session)),
	}
	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	s.current, s.restored = s.read(ctx)

	s.logger.Debug("session restored",
		slog.Bool("token", s.restored.TokenFound),
		slog.Bool("user", s.restored.UserFound),
	)
}

// read loads both keys. Read failures are reported and leave that half of
// the session absent.
func (s *Store) read(ctx context.Context) (Session, RestoreResult) {
	var (
		sess   Session
		result RestoreResult
	)

	token, found, err := s.storage.Get(ctx, s.tokenKey)
	switch {
	case err != nil:
		result.ReadFailed = true
		s.storageError(OpRestore, s.tokenKey, err)
	case found && token != "":
		sess.Token = token
		result.TokenFound = true
	}

	raw, found, err := s.storage.Get(ctx, s.userKey)
	switch {
	case err != nil:
		result.ReadFailed = true
		s.storageError(OpRestore, s.userKey, err)
	case found:
		user, ok := DecodeUser(raw)
		if ok {
			sess.User = user
			result.UserFound = true
		} else if raw != string(jsonNull) && raw != "" {
			result.UserDiscarded = true
			s.logger.Warn("discarding unparsable persisted user", slog.String("key", s.userKey))
		}
	}
	return sess, result
}

// Reload replaces the in-memory session with what storage holds now, for
// storage that can change underneath the process: keys expiring under a
// Redis TTL, or another process sharing the same keys. When a read fails
// the in-memory session is kept and ErrReloadFailed is returned. Observers
// are notified if the session changed.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	next, result := s.read(ctx)
	if result.ReadFailed {
		s.mu.Unlock()
		return ErrReloadFailed
	}
	changed := !s.current.Equal(next)
	s.current = next
	snapshot := s.current.clone()
	s.mu.Unlock()

	if changed {
		s.logger.Debug("session reloaded", slog.Bool("token", result.TokenFound))
		s.notify(snapshot)
	}
	return nil
}

// Restored reports what construction found in storage.
func (s *Store) Restored() RestoreResult {
	return s.restored
}

// SetAuth replaces the token and user and persists both. It fails only on
// invalid input; storage failures are logged and reported to
// Config.OnStorageError, and the in-memory session is still replaced.
func (s *Store) SetAuth(ctx context.Context, token string, user any) error {
	if token == "" {
		return ErrEmptyToken
	}
	encoded, err := EncodeUser(user)
	if err != nil {
		return err
	}

	next := Session{Token: token, User: encoded}

	s.mu.Lock()
	changed := !s.current.Equal(next)
	s.current = next
	if err := s.storage.Set(ctx, s.tokenKey, token); err != nil {
		s.storageError(OpSet, s.tokenKey, err)
	}
	if err := s.storage.Set(ctx, s.userKey, persistedUser(encoded)); err != nil {
		s.storageError(OpSet, s.userKey, err)
	}
	snapshot := s.current.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
	return nil
}

// ClearAuth drops the token and user from memory and storage. Calling it on
// an already cleared store leaves the same state behind.
func (s *Store) ClearAuth(ctx context.Context) {
	s.mu.Lock()
	changed := s.current.Authenticated() || s.current.HasUser()
	s.current = Session{}
	if err := s.storage.Remove(ctx, s.tokenKey); err != nil {
		s.storageError(OpRemove, s.tokenKey, err)
	}
	if err := s.storage.Remove(ctx, s.userKey); err != nil {
		s.storageError(OpRemove, s.userKey, err)
	}
	s.mu.Unlock()

	if changed {
		s.notify(Session{})
	}
}

// IsAuthenticated reports whether a non-empty token is held in memory.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token != ""
}

// Token returns the current token, or "" when absent.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// User returns a copy of the current user record, or nil when absent.
func (s *Store) User() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRaw(s.current.User)
}

// Snapshot returns a copy of the whole session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// DecodeUser unmarshals the current user record into v. It reports false
// without touching v when no user is present.
func (s *Store) DecodeUser(v any) (bool, error) {
	raw := s.User()
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers fn to receive the new snapshot after every change.
// Observers run synchronously on the mutating goroutine, after the store
// lock is released, so they may read the store. The returned func removes
// the observer.
func (s *Store) Subscribe(fn func(Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) notify(snapshot Session) {
	s.obsMu.Lock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Session), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snapshot.clone())
	}
}

func (s *Store) storageError(op Op, key string, err error) {
	s.logger.Warn("session storage failure",
		slog.String("op", string(op)),
		slog.String("key", key),
		slog.Any("error", err),
	)
	if s.onError != nil {
		s.onError(op, key, err)
	}
}
