package audit

import (
	"time"
)

type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryPayment    Category = "payment"
	CategorySecurity   Category = "security"
	CategoryAutonomous Category = "autonomous"
	CategoryAdmin      Category = "admin"
	CategoryData       Category = "data"
	CategoryUser       Category = "user"
	CategorySystem     Category = "system"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	// SeverityCritical — события с юридической/форензик ценностью.
	// Пишутся в recovery-лог до буферизации и не подпадают под retention.
	SeverityCritical Severity = "critical"
)

// Entry — неизменяемая запись аудита. ID и Timestamp проставляет Ledger.Log,
// после этого запись не мутируется и персистится ровно один раз (idempotent insert).
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Action    string    `json:"action"`

	UserID     string `json:"user_id,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	Details      map[string]interface{} `json:"details,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Filter описывает выборку из durable store. Limit обрезается до 1000 на стороне репозитория.
type Filter struct {
	UserID   string
	Category Category
	Severity Severity
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}
