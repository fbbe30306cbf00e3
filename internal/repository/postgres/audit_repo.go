package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/guardplane/internal/audit"
)

// Количество колонок в таблице audit_log
const auditNumFields = 13

// InsertBatch пишет пачку записей аудита. Идемпотентность по id обязательна:
// после ретрая или recovery одна и та же запись может прийти повторно —
// ON CONFLICT (id) DO NOTHING гарантирует ровно одну строку.
func (r *Repo) InsertBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*auditNumFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * auditNumFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13)

		details, _ := json.Marshal(e.Details)

		vals = append(vals,
			e.ID, e.Timestamp, string(e.Category), string(e.Severity), e.Action,
			nullable(e.UserID), nullable(e.TargetID), nullable(e.TargetType),
			nullable(e.IPAddress), nullable(e.UserAgent),
			details, e.Success, nullable(e.ErrorMessage),
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_log (id, timestamp, category, severity, action, user_id, target_id, target_type, ip_address, user_agent, details, success, error_message)
		 VALUES %s ON CONFLICT (id) DO NOTHING`,
		strings.TrimSuffix(placeholderStr, ","),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit insert batch: %w", err)
	}
	return nil
}

// Query возвращает записи по фильтру, новые первыми. Limit обрезается до 1000.
func (r *Repo) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := `SELECT id, timestamp, category, severity, action,
		COALESCE(user_id, ''), COALESCE(target_id, ''), COALESCE(target_type, ''),
		COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		details, success, COALESCE(error_message, '')
		FROM audit_log`

	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.Start.IsZero() {
		add("timestamp >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("timestamp <= $%d", f.End)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit query: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Category, &e.Severity, &e.Action,
			&e.UserID, &e.TargetID, &e.TargetType, &e.IPAddress, &e.UserAgent,
			&details, &e.Success, &e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("postgres: audit scan: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: audit rows: %w", err)
	}
	return results, nil
}

// DeleteExpired — retention-чистка. critical не удаляется никогда:
// это бессрочный юридический/форензик след.
func (r *Repo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx,
		`DELETE FROM audit_log WHERE timestamp < $1 AND severity <> $2`,
		cutoff, string(audit.SeverityCritical))
	if err != nil {
		return 0, fmt.Errorf("postgres: audit retention delete: %w", err)
	}
	return ct.RowsAffected(), nil
}

// nullable маппит пустую строку в NULL
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
