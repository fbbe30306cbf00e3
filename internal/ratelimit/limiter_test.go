package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// memoryWindowStore — честное скользящее окно в памяти, та же семантика,
// что у Redis sorted set; умеет отказывать по требованию теста.
type memoryWindowStore struct {
	mu      sync.Mutex
	members map[string][]time.Time
	err     error
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{members: make(map[string][]time.Time)}
}

func (s *memoryWindowStore) Slide(_ context.Context, key string, now time.Time, window time.Duration, max int) (int64, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, time.Time{}, false, s.err
	}

	cutoff := now.Add(-window)
	kept := s.members[key][:0]
	for _, ts := range s.members[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.members[key] = kept

	count := int64(len(kept))
	if count >= int64(max) {
		return count, kept[0], false, nil
	}
	s.members[key] = append(kept, now)
	return count, time.Time{}, true, nil
}

func TestSlidingWindowFiveThenDeny(t *testing.T) {
	store := newMemoryWindowStore()
	l := New(store, time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := l.Check(ctx, "10.0.0.1", time.Minute, 5)
		if !res.Allowed {
			t.Fatalf("request #%d denied early: %+v", i+1, res)
		}
		if want := 5 - i - 1; res.Remaining != want {
			t.Fatalf("request #%d remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res := l.Check(ctx, "10.0.0.1", time.Minute, 5)
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("sixth request must be denied: %+v", res)
	}
	// resetAt считается от старейшего члена, а не просто now+window
	if res.ResetAt.After(time.Now().Add(time.Minute + time.Second)) {
		t.Fatalf("resetAt too far in the future: %v", res.ResetAt)
	}

	// Другой ключ не задет
	if res := l.Check(ctx, "10.0.0.2", time.Minute, 5); !res.Allowed {
		t.Fatalf("independent key denied: %+v", res)
	}
}

func TestWindowSlidesForward(t *testing.T) {
	store := newMemoryWindowStore()
	l := New(store, time.Second, zap.NewNop())
	ctx := context.Background()

	// Заполняем окно "старыми" членами вручную
	old := time.Now().Add(-2 * time.Minute)
	store.mu.Lock()
	store.members["k"] = []time.Time{old, old, old}
	store.mu.Unlock()

	// Все старое вытеснено лениво при первом же Check
	res := l.Check(ctx, "k", time.Minute, 3)
	if !res.Allowed || res.Total != 1 {
		t.Fatalf("stale members must be evicted: %+v", res)
	}
}

func TestFailOpenOnStoreError(t *testing.T) {
	store := newMemoryWindowStore()
	store.err = errors.New("connection refused")
	l := New(store, time.Second, zap.NewNop())

	res := l.Check(context.Background(), "10.0.0.1", time.Minute, 5)
	if !res.Allowed {
		t.Fatal("store failure must fail open, not deny")
	}
	if res.Remaining != 4 {
		t.Fatalf("synthetic remaining = %d, want 4", res.Remaining)
	}
	if res.ResetAt.IsZero() {
		t.Fatal("synthetic resetAt must be set")
	}
}

func TestCircuitBreakerKeepsFailingOpen(t *testing.T) {
	store := newMemoryWindowStore()
	store.err = errors.New("connection refused")
	l := New(store, time.Second, zap.NewNop())
	ctx := context.Background()

	// Больше порога ConsecutiveFailures: CB размыкается, запросы все равно проходят
	for i := 0; i < 10; i++ {
		if res := l.Check(ctx, "k", time.Minute, 5); !res.Allowed {
			t.Fatalf("request #%d denied during outage", i+1)
		}
	}

	// Стор ожил, но CB еще разомкнут — fail-open продолжается без ошибок наружу
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	if res := l.Check(ctx, "k", time.Minute, 5); !res.Allowed {
		t.Fatal("open breaker must still fail open")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	store := newMemoryWindowStore()
	l := New(store, time.Second, zap.NewNop())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := l.Middleware(time.Minute, 2, nil)(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
		req.RemoteAddr = "192.168.1.7:50000"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request #%d: code = %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	req.RemoteAddr = "192.168.1.7:50000"
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "too_many_requests" {
		t.Fatalf("body = %+v", body)
	}
}

func TestByRealIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:40123"
	if got := ByRealIP(req); got != "203.0.113.9" {
		t.Fatalf("ByRealIP = %q", got)
	}
	req.RemoteAddr = "[2001:db8::1]:40123"
	if got := ByRealIP(req); got != "2001:db8::1" {
		t.Fatalf("ByRealIP ipv6 = %q", got)
	}
	req.RemoteAddr = "weird-no-port"
	if got := ByRealIP(req); got != "weird-no-port" {
		t.Fatalf("ByRealIP fallback = %q", got)
	}
}

func TestOnDecisionOutcomes(t *testing.T) {
	store := newMemoryWindowStore()
	l := New(store, time.Second, zap.NewNop())
	outcomes := map[string]int{}
	l.OnDecision = func(o string) { outcomes[o]++ }
	ctx := context.Background()

	l.Check(ctx, "k", time.Minute, 1) // allowed
	l.Check(ctx, "k", time.Minute, 1) // denied
	store.mu.Lock()
	store.err = errors.New("down")
	store.mu.Unlock()
	l.Check(ctx, "k", time.Minute, 1) // fail_open

	if outcomes["allowed"] != 1 || outcomes["denied"] != 1 || outcomes["fail_open"] != 1 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestStoreHealthyTracksBreaker(t *testing.T) {
	store := newMemoryWindowStore()
	l := New(store, time.Second, zap.NewNop())
	ctx := context.Background()

	if !l.StoreHealthy() {
		t.Fatal("fresh breaker must be closed")
	}
	store.mu.Lock()
	store.err = errors.New("down")
	store.mu.Unlock()
	for i := 0; i < 10; i++ {
		l.Check(ctx, "k", time.Minute, 5)
	}
	if l.StoreHealthy() {
		t.Fatal("breaker must open after consecutive failures")
	}
}
