package rollback

import "context"

// Service defines the rollback manager interface
type Service interface {
	CreateRollbackPlan(ctx context.Context, targetVersion, reason string) (*Plan, error)
	ExecuteRollback(ctx context.Context, planID string, force bool) (*Result, error)
	QuickRollback(ctx context.Context, reason string) (*Result, error)
	EmergencyRollback(ctx context.Context, targetVersion string) (*Result, error)

	GetPlan(ctx context.Context, id string) (*Plan, error)
	GetResult(ctx context.Context, planID string) (*Result, error)
	ListPlans(ctx context.Context, limit int) ([]*Plan, error)
}

// Precondition is a boolean fact that must hold before a rollback may
// proceed under normal execution. Check returns nil when satisfied.
type Precondition interface {
	Name() string
	Check(ctx context.Context) error
}

// ConsumerRegistry is the external process-registry oracle behind the
// "no active consumer processes" precondition.
type ConsumerRegistry interface {
	ActiveConsumers(ctx context.Context) (int, error)
}
