package killswitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/infra"
)

// Bridge транслирует глобальные kill/resume между инстансами через Redis Pub/Sub.
// Per-subsystem переходы не транслируются: callbacks — локальные замыкания
// конкретного процесса.
type Bridge struct {
	sw         *Switch
	rdb        *redis.Client
	logger     *zap.Logger
	instanceID string
}

func NewBridge(sw *Switch, rdb *redis.Client, instanceID string, logger *zap.Logger) *Bridge {
	b := &Bridge{
		sw:         sw,
		rdb:        rdb,
		logger:     logger.With(zap.String("mod", "ks-bridge")),
		instanceID: instanceID,
	}

	// Публикуем только локально инициированные глобальные переходы.
	// Переходы, пришедшие с моста, помечены remote: — их не ретранслируем,
	// иначе инстансы зациклят друг друга.
	sw.Subscribe(func(e Event) {
		if e.System != "*" || strings.HasPrefix(e.TriggeredBy, "remote:") {
			return
		}
		b.publish(e)
	})

	return b
}

func (b *Bridge) publish(e Event) {
	verb := "kill"
	if e.Type == EventResumed {
		verb = "resume"
	}
	payload := fmt.Sprintf("%s|%s|%s|%s", b.instanceID, verb, e.Reason, e.TriggeredBy)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.rdb.Publish(ctx, infra.RedisChanKillSwitch, payload).Err(); err != nil {
		b.logger.Warn("kill-switch broadcast failed", zap.Error(err))
	}
}

// Listen — «живучая» подписка: переподключение при обрыве, разбор сигналов,
// применение чужих глобальных переходов к локальному Switch.
func (b *Bridge) Listen(ctx context.Context) {
	for {
		pubsub := b.rdb.Subscribe(ctx, infra.RedisChanKillSwitch)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			b.logger.Error("failed to subscribe", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		b.logger.Info("kill-switch bridge listening")
		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				b.apply(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}

func (b *Bridge) apply(payload string) {
	// Формат: "<origin>|<kill|resume>|<reason>|<by>"
	parts := strings.SplitN(payload, "|", 4)
	if len(parts) != 4 {
		b.logger.Error("invalid kill-switch signal", zap.String("payload", payload))
		return
	}
	origin, verb, reason, by := parts[0], parts[1], parts[2], parts[3]
	if origin == b.instanceID {
		return // свой же сигнал
	}

	triggeredBy := "remote:" + by
	switch verb {
	case "kill":
		b.sw.KillAll(reason, triggeredBy)
	case "resume":
		b.sw.ResumeAll(reason, triggeredBy)
	default:
		b.logger.Error("unknown kill-switch verb", zap.String("verb", verb))
	}
}
