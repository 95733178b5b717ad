package rollback

import "time"

// Plan represents a proposed recovery operation. Steps are generated once
// from the plan's risk level and never reordered afterwards.
type Plan struct {
	ID                string        `json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	Reason            string        `json:"reason"`
	FromVersion       string        `json:"from_version"`
	ToVersion         string        `json:"to_version"`
	AffectedItems     []string      `json:"affected_items"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Risk              string        `json:"risk"`
	Preconditions     []string      `json:"preconditions"`
	Steps             []Step        `json:"steps"`
	Status            string        `json:"status"`
}

// Step is one unit of rollback work
type Step struct {
	ID               string        `json:"id"`
	Description      string        `json:"description"`
	Kind             string        `json:"kind"`
	TestCommand      string        `json:"test_command,omitempty"`
	ExpectedDuration time.Duration `json:"expected_duration"`
	OnFailure        string        `json:"on_failure"`
}

// Result is the immutable execution record of one rollback attempt
type Result struct {
	PlanID         string        `json:"plan_id"`
	Success        bool          `json:"success"`
	CompletedSteps []string      `json:"completed_steps"`
	FailedStep     string        `json:"failed_step,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
	Verified       bool          `json:"verified"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Step kinds
const (
	StepBackup  = "backup"
	StepTest    = "test"
	StepApply   = "apply"
	StepVerify  = "verify"
	StepCleanup = "cleanup"
)

// Per-step failure policies
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
	PolicyRetry    = "retry"
)

// Plan lifecycle states
const (
	StatusPlanned             = "planned"
	StatusPreconditionChecked = "precondition_checked"
	StatusExecuting           = "executing"
	StatusSucceeded           = "succeeded"
	StatusFailed              = "failed"
	StatusAborted             = "aborted"
)

// criticalCategories are the categories whose changes raise rollback risk
var criticalCategories = map[string]bool{
	"api":      true,
	"parallel": true,
	"memory":   true,
	"errors":   true,
}

// IsCriticalCategory reports whether a diff category counts toward risk
func IsCriticalCategory(category string) bool {
	return criticalCategories[category]
}

// IsTerminal reports whether the plan has finished executing
func (p *Plan) IsTerminal() bool {
	return p.Status == StatusSucceeded || p.Status == StatusFailed || p.Status == StatusAborted
}
