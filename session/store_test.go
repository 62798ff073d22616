package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type profile struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type failingStorage struct {
	*MemoryStorage
	failGet    bool
	failSet    bool
	failRemove bool
}

var errBackend = errors.New("backend down")

func (f *failingStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errBackend
	}
	return f.MemoryStorage.Get(ctx, key)
}

func (f *failingStorage) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errBackend
	}
	return f.MemoryStorage.Set(ctx, key, value)
}

func (f *failingStorage) Remove(ctx context.Context, key string) error {
	if f.failRemove {
		return errBackend
	}
	return f.MemoryStorage.Remove(ctx, key)
}

func TestSetAuthRoundTripThroughRestore(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{})

	user := profile{ID: 7, Email: "ada@example.com"}
	if err := store.SetAuth(ctx, "tok-1", user); err != nil {
		t.Fatalf("set auth: %v", err)
	}

	restored := NewStore(ctx, storage, Config{})
	if got := restored.Token(); got != "tok-1" {
		t.Fatalf("expected restored token tok-1, got %q", got)
	}

	var got profile
	ok, err := restored.DecodeUser(&got)
	if err != nil || !ok {
		t.Fatalf("decode restored user: ok=%v err=%v", ok, err)
	}
	if got != user {
		t.Fatalf("expected %+v, got %+v", user, got)
	}
	if r := restored.Restored(); !r.TokenFound || !r.UserFound || r.UserDiscarded {
		t.Fatalf("unexpected restore result %+v", r)
	}
}

func TestClearAuthRemovesPersistedKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{})

	if err := store.SetAuth(ctx, "tok-1", profile{ID: 1}); err != nil {
		t.Fatalf("set auth: %v", err)
	}
	store.ClearAuth(ctx)

	if store.IsAuthenticated() {
		t.Fatal("expected unauthenticated after clear")
	}
	if store.User() != nil {
		t.Fatal("expected no user after clear")
	}
	for _, key := range []string{DefaultTokenKey, DefaultUserKey} {
		if _, found, _ := storage.Get(ctx, key); found {
			t.Fatalf("expected %q removed from storage", key)
		}
	}
}

func TestClearAuthIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{})

	store.ClearAuth(ctx)
	store.ClearAuth(ctx)

	if store.IsAuthenticated() {
		t.Fatal("expected unauthenticated")
	}
	if storage.Len() != 0 {
		t.Fatalf("expected empty storage, got %d keys", storage.Len())
	}
}

func TestIsAuthenticated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, Config{})

	if store.IsAuthenticated() {
		t.Fatal("expected unauthenticated before SetAuth")
	}
	if err := store.SetAuth(ctx, "abc123", nil); err != nil {
		t.Fatalf("set auth: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected authenticated after SetAuth")
	}
	store.ClearAuth(ctx)
	if store.IsAuthenticated() {
		t.Fatal("expected unauthenticated after ClearAuth")
	}
}

func TestSetAuthRejectsEmptyToken(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{})

	if err := store.SetAuth(ctx, "", profile{ID: 1}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if storage.Len() != 0 {
		t.Fatal("expected nothing persisted for rejected token")
	}
}

func TestSetAuthRejectsUnencodableUser(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, Config{})

	err := store.SetAuth(ctx, "tok", map[string]any{"ch": make(chan int)})
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("expected state untouched on invalid user")
	}
}

func TestRestoreDiscardsCorruptUser(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	_ = storage.Set(ctx, DefaultTokenKey, "tok-9")
	_ = storage.Set(ctx, DefaultUserKey, "{not json")

	store := NewStore(ctx, storage, Config{})
	if store.User() != nil {
		t.Fatalf("expected corrupt user discarded, got %s", store.User())
	}
	if got := store.Token(); got != "tok-9" {
		t.Fatalf("expected token kept, got %q", got)
	}
	if !store.Restored().UserDiscarded {
		t.Fatal("expected UserDiscarded")
	}
}

func TestRestoreNullUserIsAbsent(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	_ = storage.Set(ctx, DefaultUserKey, "null")

	store := NewStore(ctx, storage, Config{})
	snap := store.Snapshot()
	if snap.HasUser() || snap.Authenticated() {
		t.Fatalf("expected empty session, got %+v", snap)
	}
	if store.Restored().UserDiscarded {
		t.Fatal("null user is absent, not discarded")
	}
}

func TestRestoreTokenWithoutUser(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	_ = storage.Set(ctx, DefaultTokenKey, "lonely")

	store := NewStore(ctx, storage, Config{})
	if !store.IsAuthenticated() {
		t.Fatal("expected token restored without user")
	}
	if store.User() != nil {
		t.Fatal("expected absent user")
	}
}

func TestRestoreReadFailureIsAbsent(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{MemoryStorage: NewMemoryStorage(), failGet: true}

	var ops []Op
	store := NewStore(ctx, storage, Config{
		OnStorageError: func(op Op, _ string, _ error) { ops = append(ops, op) },
	})
	if store.IsAuthenticated() {
		t.Fatal("expected absent token on read failure")
	}
	if !store.Restored().ReadFailed {
		t.Fatal("expected ReadFailed")
	}
	if len(ops) != 2 || ops[0] != OpRestore {
		t.Fatalf("expected two restore errors reported, got %v", ops)
	}
}

func TestStorageWriteFailureNotReturned(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{MemoryStorage: NewMemoryStorage(), failSet: true, failRemove: true}

	var failures int
	store := NewStore(ctx, storage, Config{
		OnStorageError: func(Op, string, error) { failures++ },
	})

	if err := store.SetAuth(ctx, "tok", profile{ID: 2}); err != nil {
		t.Fatalf("expected storage failure swallowed, got %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected in-memory state updated despite storage failure")
	}
	store.ClearAuth(ctx)
	if store.IsAuthenticated() {
		t.Fatal("expected cleared despite storage failure")
	}
	if failures != 4 {
		t.Fatalf("expected 4 reported failures, got %d", failures)
	}
}

func TestCustomKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{TokenKey: "auth.token", UserKey: "auth.user"})

	if err := store.SetAuth(ctx, "t", json.RawMessage(`{"id":1}`)); err != nil {
		t.Fatalf("set auth: %v", err)
	}
	if v, found, _ := storage.Get(ctx, "auth.token"); !found || v != "t" {
		t.Fatalf("expected custom token key, got %q found=%v", v, found)
	}
	if v, found, _ := storage.Get(ctx, "auth.user"); !found || v != `{"id":1}` {
		t.Fatalf("expected custom user key, got %q found=%v", v, found)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, Config{})
	if err := store.SetAuth(ctx, "tok", json.RawMessage(`{"id":1}`)); err != nil {
		t.Fatalf("set auth: %v", err)
	}

	snap := store.Snapshot()
	snap.User[0] = 'X'
	if string(store.User()) != `{"id":1}` {
		t.Fatalf("snapshot mutation leaked into store: %s", store.User())
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, Config{})

	var got []Session
	cancel := store.Subscribe(func(s Session) {
		got = append(got, s)
		if s.Token != store.Token() {
			t.Errorf("observer saw store token %q, snapshot %q", store.Token(), s.Token)
		}
	})

	_ = store.SetAuth(ctx, "a", nil)
	_ = store.SetAuth(ctx, "a", nil) // unchanged
	store.ClearAuth(ctx)
	store.ClearAuth(ctx) // unchanged
	cancel()
	_ = store.SetAuth(ctx, "b", nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %+v", len(got), got)
	}
	if got[0].Token != "a" || got[1].Token != "" {
		t.Fatalf("unexpected notifications %+v", got)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = store.SetAuth(ctx, "tok", profile{ID: j})
				store.ClearAuth(ctx)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := store.Snapshot()
				if snap.HasUser() && !snap.Authenticated() {
					t.Error("observed user without token")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(ctx, storage, Config{})

	var got []Session
	store.Subscribe(func(s Session) { got = append(got, s) })

	// another process sharing the storage logs in
	if err := NewStore(ctx, storage, Config{}).SetAuth(ctx, "other-tok", profile{ID: 9}); err != nil {
		t.Fatalf("set auth: %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("store must not see external writes before Reload")
	}

	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if store.Token() != "other-tok" {
		t.Fatalf("expected reloaded token, got %q", store.Token())
	}
	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got) != 1 || got[0].Token != "other-tok" {
		t.Fatalf("expected one change notification, got %+v", got)
	}
}

func TestReloadFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
	store := NewStore(ctx, storage, Config{})
	if err := store.SetAuth(ctx, "tok", nil); err != nil {
		t.Fatalf("set auth: %v", err)
	}

	storage.failGet = true
	if err := store.Reload(ctx); !errors.Is(err, ErrReloadFailed) {
		t.Fatalf("expected ErrReloadFailed, got %v", err)
	}
	if store.Token() != "tok" {
		t.Fatalf("failed reload must keep the session, got %q", store.Token())
	}
}
