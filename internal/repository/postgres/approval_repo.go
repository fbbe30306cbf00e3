package postgres

/*
Файл approval_repo.go — write-through персистентность очереди подтверждений
(Human-in-the-loop). Источник правды для решений — in-memory реестр RBAC;
таблица нужна, чтобы операторская очередь и история переживали рестарт.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/guardplane/internal/domain"
)

// SaveApproval создает запись в таблице approvals.
func (r *Repo) SaveApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	params, _ := json.Marshal(app.Params)

	query := `INSERT INTO approvals (id, system_name, action, params, status, created_at, expires_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		app.ID, app.SystemName, app.Action, params, string(app.Status),
		app.CreatedAt, app.ExpiresAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// UpdateApproval фиксирует решение. Условие status = 'PENDING' предотвращает
// Double Decision на уровне базы.
func (r *Repo) UpdateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	query := `UPDATE approvals
	          SET status = $1, reviewer_id = $2, comment = $3, updated_at = $4
	          WHERE id = $5 AND status = 'PENDING'`

	ct, err := r.pool.Exec(ctx, query,
		string(app.Status), app.ReviewerID, app.Comment, app.UpdatedAt, app.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update approval status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Либо ID неверный, либо решение по заявке уже было принято ранее
		return fmt.Errorf("approval request not found or already processed (id: %s)", app.ID)
	}
	return nil
}

// FindApprovals — история заявок для консоли (Decision Queue), новые первыми.
func (r *Repo) FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT id, system_name, action, params, status, reviewer_id, comment, created_at, expires_at, updated_at
	          FROM approvals`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		var app domain.ApprovalRequest
		var params []byte
		var reviewerID, comment sql.NullString // Обработка NULL из БД

		if err := rows.Scan(
			&app.ID, &app.SystemName, &app.Action, &params, &app.Status,
			&reviewerID, &comment, &app.CreatedAt, &app.ExpiresAt, &app.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}

		if len(params) > 0 {
			_ = json.Unmarshal(params, &app.Params)
		}
		if reviewerID.Valid {
			val := reviewerID.String
			app.ReviewerID = &val
		}
		if comment.Valid {
			val := comment.String
			app.Comment = &val
		}
		results = append(results, &app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// GetApprovalByID — детали заявки для анализа.
func (r *Repo) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT id, system_name, action, params, status, reviewer_id, comment, created_at, expires_at, updated_at
	          FROM approvals WHERE id = $1`

	var app domain.ApprovalRequest
	var params []byte
	var reviewerID, comment sql.NullString

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&app.ID, &app.SystemName, &app.Action, &params, &app.Status,
		&reviewerID, &comment, &app.CreatedAt, &app.ExpiresAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("postgres: database error: %w", err)
	}

	if len(params) > 0 {
		_ = json.Unmarshal(params, &app.Params)
	}
	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val
	}
	if comment.Valid {
		val := comment.String
		app.Comment = &val
	}
	return &app, nil
}
