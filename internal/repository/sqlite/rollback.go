package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/pkg/errors"
)

// RollbackRepository persists rollback plans and their execution results
type RollbackRepository struct {
	db *sql.DB
}

// NewRollbackRepository creates a new rollback repository
func NewRollbackRepository(db *sql.DB) rollback.Repository {
	return &RollbackRepository{db: db}
}

// SavePlan stores a newly created plan
func (r *RollbackRepository) SavePlan(ctx context.Context, plan *rollback.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return errors.PersistenceError("Failed to serialize rollback plan", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rollback_plans (id, created_at, status, plan) VALUES (?, ?, ?, ?)`,
		plan.ID, plan.CreatedAt.Format(time.RFC3339Nano), plan.Status, string(data))
	if err != nil {
		return errors.PersistenceError("Failed to write rollback plan", err)
	}
	return nil
}

// GetPlan retrieves a plan by id
func (r *RollbackRepository) GetPlan(ctx context.Context, id string) (*rollback.Plan, error) {
	var data, status string
	err := r.db.QueryRowContext(ctx,
		`SELECT plan, status FROM rollback_plans WHERE id = ?`, id).Scan(&data, &status)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Rollback plan")
	}
	if err != nil {
		return nil, errors.PersistenceError("Failed to read rollback plan", err)
	}

	var plan rollback.Plan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, errors.PersistenceError("Failed to decode rollback plan", err)
	}
	plan.Status = status
	return &plan, nil
}

// UpdatePlanStatus advances a plan through its lifecycle states
func (r *RollbackRepository) UpdatePlanStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rollback_plans SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errors.PersistenceError("Failed to update rollback plan status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("Rollback plan")
	}
	return nil
}

// ListPlans retrieves the most recent plans
func (r *RollbackRepository) ListPlans(ctx context.Context, limit int) ([]*rollback.Plan, error) {
	query := `SELECT plan, status FROM rollback_plans ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.PersistenceError("Failed to list rollback plans", err)
	}
	defer rows.Close()

	var plans []*rollback.Plan
	for rows.Next() {
		var data, status string
		if err := rows.Scan(&data, &status); err != nil {
			return nil, errors.PersistenceError("Failed to scan rollback plan", err)
		}
		var plan rollback.Plan
		if err := json.Unmarshal([]byte(data), &plan); err != nil {
			return nil, errors.PersistenceError("Failed to decode rollback plan", err)
		}
		plan.Status = status
		plans = append(plans, &plan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError("Failed to read rollback plans", err)
	}

	return plans, nil
}

// SaveResult pairs an execution result with its plan. Results are written
// once and never mutated.
func (r *RollbackRepository) SaveResult(ctx context.Context, result *rollback.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.PersistenceError("Failed to serialize rollback result", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE rollback_plans SET result = ? WHERE id = ?`, string(data), result.PlanID)
	if err != nil {
		return errors.PersistenceError("Failed to write rollback result", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("Rollback plan")
	}
	return nil
}

// GetResult retrieves the execution result paired with a plan
func (r *RollbackRepository) GetResult(ctx context.Context, planID string) (*rollback.Result, error) {
	var data sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM rollback_plans WHERE id = ?`, planID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Rollback plan")
	}
	if err != nil {
		return nil, errors.PersistenceError("Failed to read rollback result", err)
	}
	if !data.Valid || data.String == "" {
		return nil, errors.NotFound("Rollback result")
	}

	var result rollback.Result
	if err := json.Unmarshal([]byte(data.String), &result); err != nil {
		return nil, errors.PersistenceError("Failed to decode rollback result", err)
	}
	return &result, nil
}
