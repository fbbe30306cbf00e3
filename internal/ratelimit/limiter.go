package ratelimit

/*
Admission Limiter — скользящее окно на Redis sorted set.

Алгоритм одного Check:
  1. ZRemRangeByScore — ленивое вытеснение членов старше окна;
  2. ZCard — сколько осталось;
  3. меньше лимита  -> ZAdd(score=now, member=uniq) + Expire(окно+буфер),
     иначе           -> ZRange(0,0) за честным resetAt (старейший + окно).

Failure policy: FAIL OPEN. Падение Redis не должно превращаться в
denial-of-service для легитимных пользователей — при любой ошибке стора
запрос пропускается с синтетическим remaining/resetAt. Circuit Breaker
переводит известный как мертвый стор в мгновенный fail-open без ожидания
таймаута на каждом запросе. Это осознанный, аудируемый компромисс.
*/

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Total     int64     `json:"total"`
}

// WindowStore — один блокирующий round-trip по окну.
type WindowStore interface {
	// Slide вытесняет устаревших членов, считает остаток и, если лимит не
	// исчерпан, регистрирует новое действие. oldest — таймстемп старейшего
	// оставшегося члена (для расчета честного resetAt при отказе).
	Slide(ctx context.Context, key string, now time.Time, window time.Duration, max int) (count int64, oldest time.Time, admitted bool, err error)
}

type Limiter struct {
	store   WindowStore
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	timeout time.Duration

	// Троттлинг warn-логов fail-open: одна строка в секунду, а не на каждый запрос
	warnLimit *rate.Limiter

	// OnDecision, если задан, получает исход каждого Check:
	// "allowed", "denied" или "fail_open". Задается до первого использования.
	OnDecision func(outcome string)
}

func New(store WindowStore, timeout time.Duration, logger *zap.Logger) *Limiter {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "ratelimit-store",
		Interval: 5 * time.Second,
		Timeout:  30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Limiter{
		store:     store,
		cb:        cb,
		logger:    logger.With(zap.String("mod", "ratelimit")),
		timeout:   timeout,
		warnLimit: rate.NewLimiter(rate.Limit(1), 3),
	}
}

type slideResult struct {
	count    int64
	oldest   time.Time
	admitted bool
}

// Check отвечает: превысил ли key лимит max за окно window.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, max int) Result {
	now := time.Now()

	out, err := l.cb.Execute(func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		count, oldest, admitted, err := l.store.Slide(sctx, key, now, window, max)
		if err != nil {
			return nil, err
		}
		return slideResult{count: count, oldest: oldest, admitted: admitted}, nil
	})

	if err != nil {
		// FAIL OPEN: стор недоступен — пропускаем
		if l.warnLimit.Allow() {
			l.logger.Warn("rate limit store unavailable, failing open",
				zap.String("key", key), zap.Error(err))
		}
		l.decided("fail_open")
		return Result{
			Allowed:   true,
			Remaining: max - 1,
			ResetAt:   now.Add(window),
			Total:     0,
		}
	}

	sr := out.(slideResult)
	if !sr.admitted {
		l.decided("denied")
		resetAt := now.Add(window)
		if !sr.oldest.IsZero() {
			// Честный "try again at": окно освободится, когда выпадет старейший
			resetAt = sr.oldest.Add(window)
		}
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt,
			Total:     sr.count,
		}
	}

	l.decided("allowed")
	return Result{
		Allowed:   true,
		Remaining: max - int(sr.count) - 1,
		ResetAt:   now.Add(window),
		Total:     sr.count + 1,
	}
}

// StoreHealthy сообщает, закрыт ли circuit breaker (стор считается живым).
func (l *Limiter) StoreHealthy() bool {
	return l.cb.State() == gobreaker.StateClosed
}

func (l *Limiter) decided(outcome string) {
	if l.OnDecision != nil {
		l.OnDecision(outcome)
	}
}
