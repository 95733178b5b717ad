package candidate

import (
	"context"

	"github.com/prakashgbid/confledger/internal/domain/version"
)

// Analyzer validates a candidate change against the active configuration
// without committing anything
type Analyzer interface {
	Analyze(ctx context.Context, cand *Change) (*Analysis, error)
}

// ImpactTester measures a candidate's performance impact in an isolated
// workspace, comparing probe runs against a cached baseline
type ImpactTester interface {
	TestOptimization(ctx context.Context, cand *Change) (*OptimizationResult, error)
}

// ApplyOptions controls how the manager commits a validated candidate
type ApplyOptions struct {
	// Description overrides the generated version description
	Description string `json:"description,omitempty"`
	// Tags are attached to the committed version
	Tags []string `json:"tags,omitempty"`
	// SkipImpactTest commits without running the probe battery
	SkipImpactTest bool `json:"skip_impact_test,omitempty"`
	// Force commits even when the analysis requests manual review or the
	// impact test reports a failure
	Force bool `json:"force,omitempty"`
}

// Outcome is the full record of one candidate's journey through the
// manager: its analysis, the impact test when run, and the committed
// version when the candidate was applied.
type Outcome struct {
	Analysis *Analysis           `json:"analysis"`
	Impact   *OptimizationResult `json:"impact,omitempty"`
	Version  *version.Version    `json:"version,omitempty"`
	Applied  bool                `json:"applied"`
	Skipped  string              `json:"skipped,omitempty"` // reason when not applied without error
}

// Manager orchestrates validation, impact testing and committing of
// candidate changes
type Manager interface {
	ApplyChange(ctx context.Context, cand *Change, opts ApplyOptions) (*Outcome, error)
	ApplyChanges(ctx context.Context, cands []Change, opts ApplyOptions) ([]*Outcome, error)
}
