package audit

/*
Файл ledger.go реализует Audit Ledger — журнал security-событий платформы
с гарантией переживания падения процесса.

Ключевые особенности архитектуры:
- Synchronous acceptance, asynchronous durability: вызов Log всегда быстрый,
  запись в Postgres уходит фоном пачками.
- Write-Ahead для critical: событие с severity=critical сначала синхронно
  уезжает в файловый recovery-лог и только потом в буфер. Если процесс умрет
  на следующей строке — событие не потеряно.
- Recovery on start: все файлы, оставшиеся в recovery-логе, — несброшенная
  работа прошлого запуска. Они загружаются в буфер и сбрасываются первыми,
  до приема новых событий.
- Idempotent insert: durable store вставляет по ON CONFLICT (id) DO NOTHING,
  поэтому повторный сброс после ретрая не плодит дубликаты.
- Retention: периодическая чистка записей старше окна (default 90 дней);
  critical хранится бессрочно как юридический след.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store определяет, куда физически сохраняются записи.
type Store interface {
	// InsertBatch сохраняет пачку записей; обязан быть идемпотентным по ID.
	InsertBatch(ctx context.Context, entries []Entry) error
	// Query возвращает записи по фильтру, новые первыми.
	Query(ctx context.Context, f Filter) ([]Entry, error)
	// DeleteExpired удаляет записи старше cutoff, кроме severity=critical.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	FlushInterval   time.Duration // период фонового сброса (default 5s)
	FlushThreshold  int           // размер буфера, при котором сбрасываем сразу (default 10)
	RetentionDays   int           // окно хранения для не-critical (default 90)
	CleanupInterval time.Duration // период retention-чистки; 0 = выключено
}

func (o *Options) withDefaults() {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 10
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 90
	}
}

type Ledger struct {
	store  Store
	wal    *WALStore
	logger *zap.Logger
	opts   Options

	mu  sync.Mutex
	buf []Entry

	flushC chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после Stop
	isClosed int32
}

// NewLedger выполняет recovery: остатки recovery-лога загружаются в буфер
// и будут сброшены первыми при Start.
func NewLedger(store Store, wal *WALStore, logger *zap.Logger, opts Options) (*Ledger, error) {
	opts.withDefaults()

	l := &Ledger{
		store:  store,
		wal:    wal,
		logger: logger.With(zap.String("mod", "audit")),
		opts:   opts,
		flushC: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	recovered, err := wal.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(recovered) > 0 {
		l.buf = append(l.buf, recovered...)
		l.logger.Warn("recovered unflushed audit entries from previous run",
			zap.Int("count", len(recovered)))
	}

	return l, nil
}

func (l *Ledger) Start() {
	l.wg.Add(1)
	go l.worker()

	if l.opts.CleanupInterval > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}
}

// Log принимает событие: проставляет ID/Timestamp, для critical пишет WAL ДО
// буферизации, кладет в буфер и сразу дает operator-visible строку в лог.
// Возвращает присвоенный ID. Никогда не блокируется на persistence.
func (l *Ledger) Log(e Entry) string {
	e.ID = uuid.New().String()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	critical := e.Severity == SeverityCritical
	if critical {
		// Write-ahead шаг. Ошибка диска не блокирует прием — событие все
		// равно попадет в буфер, теряется только гарантия на случай падения.
		if err := l.wal.Write(e); err != nil {
			l.logger.Error("wal write failed", zap.String("id", e.ID), zap.Error(err))
		}
	}

	// Флаг проверяется под тем же мьютексом, что и буфер: иначе Log,
	// проскочивший проверку параллельно со Stop, допишет запись уже после
	// финального сброса и она тихо потеряется.
	l.mu.Lock()
	if atomic.LoadInt32(&l.isClosed) == 1 {
		l.mu.Unlock()
		// Критические уже в WAL и будут подняты recovery при следующем старте
		l.logger.Warn("audit entry arrived after shutdown",
			zap.String("id", e.ID), zap.String("action", e.Action))
		return e.ID
	}
	l.buf = append(l.buf, e)
	size := len(l.buf)
	l.mu.Unlock()

	l.logger.Info("audit",
		zap.String("category", string(e.Category)),
		zap.String("severity", string(e.Severity)),
		zap.String("action", e.Action),
		zap.String("user_id", e.UserID),
		zap.Bool("success", e.Success),
	)

	if critical || size >= l.opts.FlushThreshold {
		l.requestFlush()
	}
	return e.ID
}

func (l *Ledger) requestFlush() {
	select {
	case l.flushC <- struct{}{}:
	default: // сброс уже запрошен
	}
}

// Pending возвращает текущую заполненность буфера (для метрик).
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Query читает durable store (console API).
func (l *Ledger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return l.store.Query(ctx, f)
}

// Cleanup удаляет из durable store записи старше retentionDays.
// severity=critical не удаляется никогда.
func (l *Ledger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = l.opts.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return l.store.DeleteExpired(ctx, cutoff)
}

func (l *Ledger) worker() {
	defer l.wg.Done()

	// Сначала даем шанс восстановленным записям, потом принимаем новый трафик
	l.flush(context.Background())

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.flushC:
			l.flush(context.Background())
		case <-ticker.C:
			l.flush(context.Background())
		}
	}
}

// maxFlushBatch — потолок одной вставки. За время простоя стора буфер может
// накопить тысячи записей; Postgres ограничивает statement 65535 параметрами
// (~5041 строка по 13 колонок), поэтому накопленное сбрасывается кусками —
// иначе после восстановления стора каждый flush падал бы вечно.
const maxFlushBatch = 1000

// flush забирает буфер и идемпотентно вставляет его в store кусками по
// maxFlushBatch. При неудаче несброшенный остаток возвращается в начало
// буфера — молчаливой потери нет. WAL-файлы удаляются только после
// подтвержденной вставки своего куска.
func (l *Ledger) flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	for len(batch) > 0 {
		n := len(batch)
		if n > maxFlushBatch {
			n = maxFlushBatch
		}
		chunk := batch[:n]

		err := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		).Do(func() error {
			return l.store.InsertBatch(ctx, chunk)
		})

		if err != nil {
			l.logger.Error("audit flush failed, re-buffering",
				zap.Int("count", len(batch)), zap.Error(err))
			l.mu.Lock()
			l.buf = append(batch, l.buf...)
			l.mu.Unlock()
			return
		}

		for _, e := range chunk {
			if e.Severity == SeverityCritical {
				if err := l.wal.Remove(e.ID); err != nil {
					l.logger.Warn("wal cleanup failed", zap.String("id", e.ID), zap.Error(err))
				}
			}
		}
		batch = batch[n:]
	}
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background(), l.opts.RetentionDays)
			if err != nil {
				l.logger.Error("audit retention cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.logger.Info("audit retention cleanup", zap.Int64("deleted", n))
			}
		}
	}
}

// Stop «запирает» вход и делает финальный сброс, чтобы буфер не потерялся
// при штатной остановке.
func (l *Ledger) Stop() {
	if !atomic.CompareAndSwapInt32(&l.isClosed, 0, 1) {
		return
	}

	l.logger.Info("stopping audit ledger: final flush...")
	close(l.done)
	l.wg.Wait()
	l.flush(context.Background())
	l.logger.Info("audit ledger stopped gracefully")
}
