package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "guard"
)

// Ключи состояния
const (
	// RedisKeyRateLimitPrefix — префикс sorted-set'ов Admission Limiter:
	// guard:ratelimit:<key> -> ZSET(score=unixMilli, member=uniq)
	RedisKeyRateLimitPrefix = RedisNamespace + ":ratelimit:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanKillSwitch — канал трансляции глобального kill/resume между инстансами
	RedisChanKillSwitch = RedisNamespace + ":killswitch-signal"
)

// RateLimitKey собирает полный ключ окна для заданного идентификатора.
func RateLimitKey(key string) string {
	return RedisKeyRateLimitPrefix + key
}
