package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"librarydesk/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func upstreamToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"id": 3}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream-secret"))
	if err != nil {
		t.Fatalf("sign upstream token: %v", err)
	}
	return tok
}

func member() domain.User {
	return domain.User{ID: 3, Name: "Rina", Email: "rina@example.com", Role: domain.RoleMember}
}

func TestSessionExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s := Session{Token: upstreamToken(t, exp)}
	if got := s.ExpiresAt(); !got.Equal(exp) {
		t.Fatalf("expires at = %v, want %v", got, exp)
	}
	if got := (Session{Token: "opaque-token"}).ExpiresAt(); !got.IsZero() {
		t.Fatalf("opaque token should have no expiry, got %v", got)
	}
	if got := s.lifetime(24*time.Hour, time.Now()); got > time.Hour {
		t.Fatalf("lifetime should be capped by token expiry, got %v", got)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context should carry no session")
	}
	ctx := WithSession(context.Background(), Session{Token: "t", User: member()})
	got, ok := FromContext(ctx)
	if !ok || got.User.Email != "rina@example.com" {
		t.Fatalf("unexpected session from context: %+v ok=%v", got, ok)
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Save(ctx, Session{}); err != ErrNoSession {
		t.Fatalf("saving an empty session should fail with ErrNoSession, got %v", err)
	}
	sess := Session{Token: upstreamToken(t, time.Now().Add(time.Hour)), User: member()}
	key, err := store.Save(ctx, sess)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, key)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Token != sess.Token || got.User != sess.User {
		t.Fatalf("loaded session mismatch: %+v", got)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.Load(ctx, key); ok || err != nil {
		t.Fatalf("deleted session still loads: ok=%v err=%v", ok, err)
	}
	if _, err := store.Save(ctx, Session{Token: upstreamToken(t, time.Now().Add(-time.Minute)), User: member()}); err == nil {
		t.Fatalf("expired upstream token should not be stored")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Hour))
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	key, err := store.Save(context.Background(), Session{Token: "opaque", User: member()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok, _ := store.Load(context.Background(), key); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestMemoryStoreSweepsAbandonedEntries(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()
	abandoned, err := store.Save(ctx, Session{Token: "opaque", User: member()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	for i := 1; i < sweepEvery; i++ {
		if _, err := store.Save(ctx, Session{Token: "opaque", User: member()}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	store.mu.RLock()
	_, kept := store.entries[abandoned]
	size := len(store.entries)
	store.mu.RUnlock()
	if kept {
		t.Fatalf("expired entry still held after %d saves", sweepEvery)
	}
	if size != sweepEvery-1 {
		t.Fatalf("entries = %d, want %d live sessions", size, sweepEvery-1)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Hour)
	exerciseStore(t, store)

	key, err := store.Save(context.Background(), Session{Token: "opaque", User: member()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + key); ttl != time.Hour {
		t.Fatalf("redis ttl = %v, want 1h", ttl)
	}
}

func TestJWTStore(t *testing.T) {
	store, err := NewJWTStore(testSecret, time.Hour, nil)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	exerciseStore(t, store)
}

func TestJWTStoreRejectsTamperedCookie(t *testing.T) {
	store, err := NewJWTStore(testSecret, time.Hour, NewMemoryRevoker())
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	key, err := store.Save(context.Background(), Session{Token: "opaque", User: member()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	other, _ := NewJWTStore("fedcba9876543210fedcba9876543210", time.Hour, nil)
	if _, ok, err := other.Load(context.Background(), key); ok || err != nil {
		t.Fatalf("cookie signed with another secret must not load: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.Load(context.Background(), key+"x"); ok {
		t.Fatalf("tampered cookie must not load")
	}
}

func TestJWTStoreRevocationSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewRedisRevoker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	first, _ := NewJWTStore(testSecret, time.Hour, revoker)
	second, _ := NewJWTStore(testSecret, time.Hour, revoker)

	key, err := first.Save(context.Background(), Session{Token: "opaque", User: member()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := second.Load(context.Background(), key); ok {
		t.Fatalf("revoked cookie should be rejected by every replica")
	}
}

func TestNewJWTStoreRequiresLongSecret(t *testing.T) {
	if _, err := NewJWTStore("short", time.Hour, nil); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenLocalStore(filepath.Join(t.TempDir(), "state", "session.db"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx); err != ErrNoSession {
		t.Fatalf("empty store should report ErrNoSession, got %v", err)
	}
	if err := store.Put(ctx, Session{Token: "first", User: member()}); err != nil {
		t.Fatalf("put: %v", err)
	}
	admin := domain.User{ID: 1, Name: "Ayu", Email: "ayu@example.com", Role: domain.RoleAdmin}
	if err := store.Put(ctx, Session{Token: "second", User: admin}); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Token != "second" || got.User != admin {
		t.Fatalf("expected replaced session, got %+v", got)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Get(ctx); err != ErrNoSession {
		t.Fatalf("cleared store should report ErrNoSession, got %v", err)
	}
}
