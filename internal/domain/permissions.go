package domain

// PermissionLevel определяет, насколько автономно система может выполнять действие
type PermissionLevel string

const (
	LevelNone    PermissionLevel = "none"    // Запрещено полностью
	LevelRead    PermissionLevel = "read"    // Только чтение
	LevelSuggest PermissionLevel = "suggest" // Может предложить, исполняет человек
	LevelExecute PermissionLevel = "execute" // Может исполнять самостоятельно
	LevelFull    PermissionLevel = "full"    // Без ограничений уровня
)

// Valid сообщает, известен ли уровень. Неизвестный уровень трактуем как none (Zero Trust).
func (l PermissionLevel) Valid() bool {
	switch l {
	case LevelNone, LevelRead, LevelSuggest, LevelExecute, LevelFull:
		return true
	}
	return false
}

// SystemPermissions — статическая конфигурация класса актора.
// Загружается один раз при старте (viper) и не меняется в рантайме.
type SystemPermissions struct {
	Name string `json:"name" mapstructure:"name"`

	// Action -> уровень. Отсутствие ключа = none.
	Permissions map[string]PermissionLevel `json:"permissions" mapstructure:"permissions"`

	// Потолки. Spend — в минорных единицах валюты (центы/копейки).
	MaxSpendPerDay    int64 `json:"max_spend_per_day" mapstructure:"max_spend_per_day"`
	MaxActionsPerHour int   `json:"max_actions_per_hour" mapstructure:"max_actions_per_hour"`

	// Действия, требующие ручного подтверждения на уровне suggest
	RequiresApproval []string `json:"requires_approval" mapstructure:"requires_approval"`
}

// NeedsApproval проверяет вхождение действия в список requires_approval.
func (p *SystemPermissions) NeedsApproval(action string) bool {
	for _, a := range p.RequiresApproval {
		if a == action {
			return true
		}
	}
	return false
}
