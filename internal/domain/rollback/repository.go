package rollback

import "context"

// Repository defines rollback plan and result persistence. Results are
// written once per execution attempt and never mutated.
type Repository interface {
	SavePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	UpdatePlanStatus(ctx context.Context, id, status string) error
	ListPlans(ctx context.Context, limit int) ([]*Plan, error)
	SaveResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, planID string) (*Result, error)
}
