package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore — управляемый durable store: считает вставки, умеет отказывать
// первые failFirst попыток и дедуплицирует по ID, как Postgres с ON CONFLICT.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string]Entry
	batches   int
	failFirst int
	maxBatch  int
	capRows   int // >0: отказывать слишком широким вставкам, как Postgres с потолком параметров
	deleted   []time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (s *fakeStore) InsertBatch(_ context.Context, batch []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if len(batch) > s.maxBatch {
		s.maxBatch = len(batch)
	}
	if s.capRows > 0 && len(batch) > s.capRows {
		return errors.New("extended protocol limited to 65535 parameters")
	}
	if s.failFirst > 0 {
		s.failFirst--
		return errors.New("store unavailable")
	}
	for _, e := range batch {
		s.entries[e.ID] = e // повторная вставка того же ID не плодит дубликат
	}
	return nil
}

func (s *fakeStore) Query(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, cutoff)
	var n int64
	for id, e := range s.entries {
		if e.Timestamp.Before(cutoff) && e.Severity != SeverityCritical {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newTestLedger(t *testing.T, store Store, opts Options) (*Ledger, *WALStore, string) {
	t.Helper()
	dir := t.TempDir()
	wal, err := NewWALStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewLedger(store, wal, zap.NewNop(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return l, wal, dir
}

// waitFor опрашивает условие с дедлайном — фоновый воркер асинхронный.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met: " + msg)
}

func TestCriticalFlushedImmediately(t *testing.T) {
	store := newFakeStore()
	l, wal, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, FlushThreshold: 100})
	l.Start()
	defer l.Stop()

	id := l.Log(Entry{Category: CategoryPayment, Severity: SeverityCritical, Action: "chargeback"})
	if id == "" {
		t.Fatal("Log must return assigned id")
	}

	// critical не ждет ни тикера, ни порога
	waitFor(t, func() bool { return store.count() == 1 }, "critical entry flushed")

	// WAL-файл снят после подтвержденной вставки
	waitFor(t, func() bool {
		left, err := wal.LoadAll()
		return err == nil && len(left) == 0
	}, "wal cleaned after flush")
}

func TestThresholdFlush(t *testing.T) {
	store := newFakeStore()
	l, _, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, FlushThreshold: 3})
	l.Start()
	defer l.Stop()

	l.Log(Entry{Severity: SeverityInfo, Action: "a1"})
	l.Log(Entry{Severity: SeverityInfo, Action: "a2"})
	time.Sleep(50 * time.Millisecond)
	if store.count() != 0 {
		t.Fatal("below threshold: nothing should be flushed yet")
	}

	l.Log(Entry{Severity: SeverityInfo, Action: "a3"})
	waitFor(t, func() bool { return store.count() == 3 }, "threshold flush")
}

func TestFlushFailureRebuffersWithoutLoss(t *testing.T) {
	store := newFakeStore()
	// 3 ретрая внутри одного flush — валим их все, плюс еще один цикл
	store.failFirst = 3
	l, _, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, FlushThreshold: 100})
	l.Start()

	l.Log(Entry{Severity: SeverityCritical, Action: "must-survive"})

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.batches >= 3
	}, "all retry attempts exhausted")

	// Запись вернулась в буфер, а не испарилась
	waitFor(t, func() bool { return l.Pending() == 1 }, "entry re-buffered")

	// Stop делает финальный сброс — store уже здоров
	l.Stop()
	if store.count() != 1 {
		t.Fatalf("store count = %d after final flush, want 1", store.count())
	}
}

func TestRecoveryOnStart(t *testing.T) {
	dir := t.TempDir()
	wal, err := NewWALStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Имитация прошлого запуска, умершего до сброса critical записей
	wal.Write(Entry{ID: "crash-1", Timestamp: time.Now().UTC().Add(-time.Minute),
		Severity: SeverityCritical, Action: "chargeback"})
	wal.Write(Entry{ID: "crash-2", Timestamp: time.Now().UTC(),
		Severity: SeverityCritical, Action: "refund"})

	store := newFakeStore()
	l, err := NewLedger(store, wal, zap.NewNop(), Options{FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if l.Pending() != 2 {
		t.Fatalf("recovered pending = %d, want 2", l.Pending())
	}

	// Первый проход воркера сбрасывает восстановленное без ожидания тикера
	l.Start()
	waitFor(t, func() bool { return store.count() == 2 }, "recovered entries flushed")
	l.Stop()

	left, _ := wal.LoadAll()
	if len(left) != 0 {
		t.Fatalf("wal not cleaned after recovery flush: %+v", left)
	}
}

func TestIdempotentReflush(t *testing.T) {
	store := newFakeStore()
	l, _, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, FlushThreshold: 100})
	l.Start()
	defer l.Stop()

	id := l.Log(Entry{Severity: SeverityCritical, Action: "once"})
	waitFor(t, func() bool { return store.count() == 1 }, "first flush")

	// Повторная вставка той же записи (ретрай после сбоя сети) не дублирует
	store.mu.Lock()
	e := store.entries[id]
	store.mu.Unlock()
	if err := store.InsertBatch(context.Background(), []Entry{e}); err != nil {
		t.Fatal(err)
	}
	if store.count() != 1 {
		t.Fatalf("duplicate after re-insert: count = %d", store.count())
	}
}

func TestLogAfterStop(t *testing.T) {
	store := newFakeStore()
	l, wal, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour})
	l.Start()
	l.Stop()

	// Вход заперт: в буфер не попадает, но critical остается в recovery-логе
	id := l.Log(Entry{Severity: SeverityCritical, Action: "late"})
	if l.Pending() != 0 {
		t.Fatalf("pending = %d after shutdown, want 0", l.Pending())
	}
	left, _ := wal.LoadAll()
	if len(left) != 1 || left[0].ID != id {
		t.Fatalf("late critical must stay in recovery log: %+v", left)
	}

	// Повторный Stop безопасен
	l.Stop()
}

func TestCleanupSparesCritical(t *testing.T) {
	store := newFakeStore()
	l, _, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, RetentionDays: 30})

	old := time.Now().UTC().AddDate(0, 0, -60)
	store.InsertBatch(context.Background(), []Entry{
		{ID: "old-info", Timestamp: old, Severity: SeverityInfo},
		{ID: "old-critical", Timestamp: old, Severity: SeverityCritical},
		{ID: "fresh-info", Timestamp: time.Now().UTC(), Severity: SeverityInfo},
	})

	n, err := l.Cleanup(context.Background(), 0) // 0 -> default RetentionDays
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	store.mu.Lock()
	_, criticalKept := store.entries["old-critical"]
	_, freshKept := store.entries["fresh-info"]
	store.mu.Unlock()
	if !criticalKept || !freshKept {
		t.Fatal("cleanup removed entries it must keep")
	}
}

func TestWrapperSeverityMapping(t *testing.T) {
	store := newFakeStore()
	l, _, _ := newTestLedger(t, store, Options{FlushInterval: time.Hour, FlushThreshold: 100})
	l.Start()
	defer l.Stop()

	l.Auth("login", "u-1", "10.0.0.1", "curl", false, nil)
	l.Payment("charge", "u-1", "pay-1", false, nil) // неуспешный платеж = critical
	l.Autonomous("trading-bot", "rebalance", true, "", nil)
	l.Stop()

	byAction := map[string]Entry{}
	store.mu.Lock()
	for _, e := range store.entries {
		byAction[e.Action] = e
	}
	store.mu.Unlock()

	if e := byAction["login"]; e.Category != CategoryAuth || e.Severity != SeverityWarning {
		t.Fatalf("auth failure: %+v", e)
	}
	if e := byAction["charge"]; e.Category != CategoryPayment || e.Severity != SeverityCritical {
		t.Fatalf("payment failure: %+v", e)
	}
	if e := byAction["rebalance"]; e.Category != CategoryAutonomous || e.Severity != SeverityInfo || !e.Success {
		t.Fatalf("autonomous success: %+v", e)
	}
}

// Долгий простой стора копит многотысячный хвост. Если после восстановления
// весь хвост уходит одной вставкой, стор с потолком ширины statement будет
// отвергать ее вечно и буфер никогда не опустеет. Сброс обязан резать
// накопленное на куски не шире maxFlushBatch.
func TestBackfillFlushedInBoundedChunks(t *testing.T) {
	store := newFakeStore()
	store.capRows = maxFlushBatch
	store.failFirst = 3 // весь запас ретраев первого сброса: имитация простоя
	l, _, _ := newTestLedger(t, store, Options{
		FlushInterval:  time.Hour,
		FlushThreshold: 100000,
	})

	const total = 2*maxFlushBatch + 500
	for i := 0; i < total; i++ {
		l.Log(Entry{Category: CategoryAutonomous, Severity: SeverityInfo, Action: "tick"})
	}

	l.Start()
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.batches >= 3
	}, "initial flush attempts")
	if got := l.Pending(); got != total {
		t.Fatalf("pending after outage = %d, want %d", got, total)
	}

	// Стор ожил: критическая запись дергает немедленный сброс хвоста
	l.Log(Entry{Category: CategoryAdmin, Severity: SeverityCritical, Action: "wake"})
	waitFor(t, func() bool { return store.count() == total+1 }, "backfill persisted")

	store.mu.Lock()
	max := store.maxBatch
	store.mu.Unlock()
	if max > maxFlushBatch {
		t.Fatalf("single insert carried %d rows, cap is %d", max, maxFlushBatch)
	}
	if got := l.Pending(); got != 0 {
		t.Fatalf("pending after recovery = %d, want 0", got)
	}
	l.Stop()
}

// Log, идущий параллельно со Stop, либо попадает в финальный сброс, либо
// отклоняется — но не повисает в буфере после останова.
func TestStopDrainsConcurrentLogs(t *testing.T) {
	store := newFakeStore()
	l, _, _ := newTestLedger(t, store, Options{
		FlushInterval:  time.Hour,
		FlushThreshold: 100000,
	})
	l.Start()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Log(Entry{Category: CategoryAutonomous, Severity: SeverityInfo, Action: "burst"})
			}
		}()
	}
	l.Stop()
	wg.Wait()

	if got := l.Pending(); got != 0 {
		t.Fatalf("pending = %d after Stop, want 0", got)
	}
}
