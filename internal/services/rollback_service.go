package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/pkg/metrics"
	"github.com/prakashgbid/confledger/internal/probes"
)

// Expected step durations used for plan estimates
const (
	backupStepDuration  = 5 * time.Second
	testStepDuration    = 30 * time.Second
	applyStepDuration   = 5 * time.Second
	verifyStepDuration  = 5 * time.Second
	perfStepDuration    = 60 * time.Second
	cleanupStepDuration = 2 * time.Second
)

// RollbackService plans and executes risk-staged restorations against the
// version ledger. Plans are generated deterministically from the diff between
// the current version and the target; execution walks the steps strictly in
// order and records an immutable result per attempt.
type RollbackService struct {
	repo        rollback.Repository
	ledger      version.Service
	runner      *probes.Runner
	workRoot    string
	testCommand string
	baseline    []rollback.Precondition
	highRisk    []rollback.Precondition
	stepTimeout time.Duration
	logger      *logger.Logger
}

// NewRollbackService creates a new rollback manager. The baseline
// preconditions gate every non-forced execution; the highRisk set is checked
// in addition for high-risk plans. testCommand, when non-empty, is run for
// test-kind steps.
func NewRollbackService(
	repo rollback.Repository,
	ledger version.Service,
	runner *probes.Runner,
	workRoot string,
	testCommand string,
	baseline []rollback.Precondition,
	highRisk []rollback.Precondition,
	stepTimeout time.Duration,
	log *logger.Logger,
) *RollbackService {
	if stepTimeout <= 0 {
		stepTimeout = testStepDuration
	}
	return &RollbackService{
		repo:        repo,
		ledger:      ledger,
		runner:      runner,
		workRoot:    workRoot,
		testCommand: testCommand,
		baseline:    baseline,
		highRisk:    highRisk,
		stepTimeout: stepTimeout,
		logger:      log.With("service", "rollback"),
	}
}

// CreateRollbackPlan builds a plan to restore targetVersion from the current
// version. Risk is derived from how many diff entries are removals or touch
// critical categories, and the step list follows from the risk level.
func (s *RollbackService) CreateRollbackPlan(ctx context.Context, targetVersion, reason string) (*rollback.Plan, error) {
	current, err := s.ledger.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current.Number == targetVersion {
		return nil, apperrors.Conflict(fmt.Sprintf("already at version %s", targetVersion))
	}
	if _, err := s.ledger.GetVersion(ctx, targetVersion); err != nil {
		return nil, err
	}

	changes, err := s.ledger.GetVersionDiff(ctx, current.Number, targetVersion)
	if err != nil {
		return nil, err
	}

	risk := riskLevel(changes)
	steps := s.buildSteps(risk)

	plan := &rollback.Plan{
		ID:                uuid.New().String(),
		CreatedAt:         time.Now().UTC(),
		Reason:            reason,
		FromVersion:       current.Number,
		ToVersion:         targetVersion,
		AffectedItems:     affectedItems(changes),
		EstimatedDuration: totalDuration(steps),
		Risk:              risk,
		Preconditions:     s.preconditionNames(risk),
		Steps:             steps,
		Status:            rollback.StatusPlanned,
	}

	if err := s.repo.SavePlan(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"plan_id": plan.ID,
		"from":    plan.FromVersion,
		"to":      plan.ToVersion,
		"risk":    plan.Risk,
		"steps":   len(plan.Steps),
	}).Info("Rollback plan created")

	return plan, nil
}

// ExecuteRollback runs a previously created plan. Unless force is set, every
// precondition for the plan's risk level must pass before any step runs; a
// single unmet condition aborts with a precondition error and leaves the plan
// re-executable. A plan that has already reached a terminal state cannot run
// again.
func (s *RollbackService) ExecuteRollback(ctx context.Context, planID string, force bool) (*rollback.Result, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.IsTerminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("plan %s already executed with status %s", planID, plan.Status))
	}

	if !force {
		if failed := s.checkPreconditions(ctx, plan.Risk); len(failed) > 0 {
			return nil, apperrors.PreconditionError("rollback preconditions not met", failed)
		}
		if err := s.setStatus(ctx, plan, rollback.StatusPreconditionChecked); err != nil {
			return nil, err
		}
	} else {
		s.logger.WithFields(map[string]interface{}{
			"plan_id": planID,
		}).Warn("Precondition checks bypassed by force")
	}

	if err := s.setStatus(ctx, plan, rollback.StatusExecuting); err != nil {
		return nil, err
	}

	result := s.runSteps(ctx, plan)

	status := rollback.StatusFailed
	outcome := "failure"
	switch {
	case result.Success:
		status = rollback.StatusSucceeded
		outcome = "success"
	case result.FailedStep != "" && !result.Verified:
		if abortedOn(plan, result.FailedStep) {
			status = rollback.StatusAborted
			outcome = "aborted"
		}
	}
	if err := s.setStatus(ctx, plan, status); err != nil {
		s.logger.ErrorWithErr(err, "Failed to persist terminal plan status")
	}
	if err := s.repo.SaveResult(ctx, result); err != nil {
		s.logger.ErrorWithErr(err, "Failed to persist rollback result")
	}
	metrics.RecordRollback(plan.Risk, outcome, result.Duration.Seconds())

	s.logger.WithFields(map[string]interface{}{
		"plan_id":  plan.ID,
		"success":  result.Success,
		"verified": result.Verified,
		"duration": result.Duration.String(),
	}).Info("Rollback execution finished")

	return result, nil
}

// QuickRollback restores the immediately prior version without a manual plan
// step. It still runs the full precondition and step machinery.
func (s *RollbackService) QuickRollback(ctx context.Context, reason string) (*rollback.Result, error) {
	history, err := s.ledger.GetVersionHistory(ctx, 2)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, apperrors.InsufficientHistory("quick rollback needs at least two committed versions")
	}

	if reason == "" {
		reason = "quick rollback to previous version"
	}
	plan, err := s.CreateRollbackPlan(ctx, history[1].Number, reason)
	if err != nil {
		return nil, err
	}
	return s.ExecuteRollback(ctx, plan.ID, false)
}

// EmergencyRollback is the last-resort path. It bypasses all preconditions
// and, when even planned execution cannot proceed, falls back to restoring
// the target snapshot directly through the ledger. It never reports a
// precondition failure.
func (s *RollbackService) EmergencyRollback(ctx context.Context, targetVersion string) (*rollback.Result, error) {
	start := time.Now()

	plan, err := s.CreateRollbackPlan(ctx, targetVersion, "emergency rollback")
	if err == nil {
		result, execErr := s.ExecuteRollback(ctx, plan.ID, true)
		if execErr == nil {
			return result, nil
		}
		s.logger.ErrorWithErr(execErr, "Emergency plan execution failed, falling back to direct restore")
	} else {
		s.logger.ErrorWithErr(err, "Emergency plan creation failed, falling back to direct restore")
	}

	ok, restoreErr := s.ledger.RestoreVersion(ctx, targetVersion)
	if restoreErr != nil {
		metrics.RecordRollback(rollback.RiskHigh, "failure", time.Since(start).Seconds())
		return nil, restoreErr
	}

	result := &rollback.Result{
		Success:    ok,
		Verified:   ok,
		Duration:   time.Since(start),
		FinishedAt: time.Now().UTC(),
	}
	if plan != nil {
		result.PlanID = plan.ID
		if err := s.repo.SaveResult(ctx, result); err != nil {
			s.logger.ErrorWithErr(err, "Failed to persist emergency rollback result")
		}
	}
	if !ok {
		result.Error = "restore failed after safety backup; retry possible"
	}

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	metrics.RecordRollback(rollback.RiskHigh, outcome, result.Duration.Seconds())
	return result, nil
}

// GetPlan returns a stored plan by id
func (s *RollbackService) GetPlan(ctx context.Context, id string) (*rollback.Plan, error) {
	return s.repo.GetPlan(ctx, id)
}

// GetResult returns the execution result for a plan
func (s *RollbackService) GetResult(ctx context.Context, planID string) (*rollback.Result, error) {
	return s.repo.GetResult(ctx, planID)
}

// ListPlans returns the most recently created plans
func (s *RollbackService) ListPlans(ctx context.Context, limit int) ([]*rollback.Plan, error) {
	return s.repo.ListPlans(ctx, limit)
}

// runSteps walks the plan's steps strictly in order, applying each step's
// failure policy. A retry policy grants exactly one re-attempt.
func (s *RollbackService) runSteps(ctx context.Context, plan *rollback.Plan) *rollback.Result {
	start := time.Now()
	result := &rollback.Result{
		PlanID:         plan.ID,
		CompletedSteps: []string{},
	}

	var failures []string
	for _, step := range plan.Steps {
		err := s.executeStep(ctx, plan, step)
		if err != nil && step.OnFailure == rollback.PolicyRetry {
			s.logger.WithFields(map[string]interface{}{
				"plan_id": plan.ID,
				"step":    step.ID,
			}).Warn("Step failed, retrying once")
			err = s.executeStep(ctx, plan, step)
		}

		if err == nil {
			result.CompletedSteps = append(result.CompletedSteps, step.ID)
			continue
		}

		failures = append(failures, fmt.Sprintf("%s: %v", step.ID, err))
		if step.OnFailure == rollback.PolicyContinue {
			s.logger.WithFields(map[string]interface{}{
				"plan_id": plan.ID,
				"step":    step.ID,
				"error":   err.Error(),
			}).Warn("Step failed, continuing per policy")
			continue
		}

		result.FailedStep = step.ID
		break
	}

	if result.FailedStep == "" {
		result.Verified = s.verifyOutcome(ctx, plan)
		result.Success = result.Verified && len(failures) == 0
	}
	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	}
	result.Duration = time.Since(start)
	result.FinishedAt = time.Now().UTC()
	return result
}

func (s *RollbackService) executeStep(ctx context.Context, plan *rollback.Plan, step rollback.Step) error {
	s.logger.WithFields(map[string]interface{}{
		"plan_id": plan.ID,
		"step":    step.ID,
		"kind":    step.Kind,
	}).Debug("Executing rollback step")

	switch step.Kind {
	case rollback.StepBackup:
		return s.commitBackup(ctx, plan)
	case rollback.StepTest:
		return s.runTestCommand(ctx, step)
	case rollback.StepApply:
		ok, err := s.ledger.RestoreVersion(ctx, plan.ToVersion)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("restore of %s did not complete; safety backup is in place", plan.ToVersion)
		}
		return nil
	case rollback.StepVerify:
		if !s.verifyOutcome(ctx, plan) {
			return fmt.Errorf("live state does not match snapshot %s", plan.ToVersion)
		}
		return nil
	case rollback.StepCleanup:
		// Temp workspaces are removed by the runner per probe; nothing
		// persistent remains to collect.
		return nil
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// commitBackup records the pre-rollback state as its own version so the
// rollback itself is undoable
func (s *RollbackService) commitBackup(ctx context.Context, plan *rollback.Plan) error {
	change := version.Change{
		Kind:     version.KindModify,
		Category: "general",
		ItemID:   "ledger.state",
		Name:     "Ledger State",
		Reason:   fmt.Sprintf("pre-rollback backup for plan %s", plan.ID),
	}
	_, err := s.ledger.CreateVersion(ctx,
		fmt.Sprintf("Backup before rollback %s -> %s", plan.FromVersion, plan.ToVersion),
		[]version.Change{change},
		[]string{version.TagBackup, version.TagAuto},
	)
	return err
}

func (s *RollbackService) runTestCommand(ctx context.Context, step rollback.Step) error {
	command := step.TestCommand
	if command == "" {
		command = s.testCommand
	}
	if command == "" {
		return nil
	}

	ws, err := probes.NewWorkspace(s.workRoot, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	m := s.runner.Run(ctx, probes.Scenario{
		Name:    step.ID,
		Command: command,
		Timeout: s.stepTimeout,
	}, ws.Dir, nil)
	return m.Err
}

// verifyOutcome checks that the pointer moved to the target and the live
// document is structurally identical to the target snapshot
func (s *RollbackService) verifyOutcome(ctx context.Context, plan *rollback.Plan) bool {
	current, err := s.ledger.CurrentVersion(ctx)
	if err != nil || current.Number != plan.ToVersion {
		return false
	}
	snap, err := s.ledger.GetSnapshot(ctx, plan.ToVersion)
	if err != nil {
		return false
	}
	live, err := s.ledger.CurrentDocument(ctx)
	if err != nil {
		return false
	}
	liveHash, err := live.Hash()
	if err != nil {
		return false
	}
	return liveHash == snap.Hash
}

func (s *RollbackService) checkPreconditions(ctx context.Context, risk string) []string {
	checks := s.baseline
	if risk == rollback.RiskHigh {
		checks = append(append([]rollback.Precondition{}, s.baseline...), s.highRisk...)
	}

	var failed []string
	for _, pc := range checks {
		if err := pc.Check(ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", pc.Name(), err))
		}
	}
	return failed
}

func (s *RollbackService) preconditionNames(risk string) []string {
	names := make([]string, 0, len(s.baseline)+len(s.highRisk))
	for _, pc := range s.baseline {
		names = append(names, pc.Name())
	}
	if risk == rollback.RiskHigh {
		for _, pc := range s.highRisk {
			names = append(names, pc.Name())
		}
	}
	return names
}

// buildSteps generates the ordered step list for a risk level. Backup is
// always first; high risk adds a pre-apply test, and anything above low risk
// gets a post-apply performance test.
func (s *RollbackService) buildSteps(risk string) []rollback.Step {
	steps := []rollback.Step{{
		ID:               uuid.New().String(),
		Description:      "Back up current state",
		Kind:             rollback.StepBackup,
		ExpectedDuration: backupStepDuration,
		OnFailure:        rollback.PolicyAbort,
	}}

	if risk == rollback.RiskHigh {
		steps = append(steps, rollback.Step{
			ID:               uuid.New().String(),
			Description:      "Run test suite before applying",
			Kind:             rollback.StepTest,
			TestCommand:      s.testCommand,
			ExpectedDuration: testStepDuration,
			OnFailure:        rollback.PolicyAbort,
		})
	}

	steps = append(steps,
		rollback.Step{
			ID:               uuid.New().String(),
			Description:      "Restore target snapshot",
			Kind:             rollback.StepApply,
			ExpectedDuration: applyStepDuration,
			OnFailure:        rollback.PolicyRetry,
		},
		rollback.Step{
			ID:               uuid.New().String(),
			Description:      "Verify restored state",
			Kind:             rollback.StepVerify,
			ExpectedDuration: verifyStepDuration,
			OnFailure:        rollback.PolicyAbort,
		},
	)

	if risk != rollback.RiskLow {
		steps = append(steps, rollback.Step{
			ID:               uuid.New().String(),
			Description:      "Run performance checks on restored state",
			Kind:             rollback.StepTest,
			TestCommand:      s.testCommand,
			ExpectedDuration: perfStepDuration,
			OnFailure:        rollback.PolicyContinue,
		})
	}

	steps = append(steps, rollback.Step{
		ID:               uuid.New().String(),
		Description:      "Remove temporary artifacts",
		Kind:             rollback.StepCleanup,
		ExpectedDuration: cleanupStepDuration,
		OnFailure:        rollback.PolicyContinue,
	})
	return steps
}

// riskLevel counts diff entries that are removals or touch critical
// categories: more than five is high, two to five is medium, else low
func riskLevel(changes []version.Change) string {
	critical := 0
	for _, c := range changes {
		if c.Kind == version.KindRemove || rollback.IsCriticalCategory(c.Category) {
			critical++
		}
	}
	switch {
	case critical > 5:
		return rollback.RiskHigh
	case critical >= 2:
		return rollback.RiskMedium
	default:
		return rollback.RiskLow
	}
}

func affectedItems(changes []version.Change) []string {
	seen := make(map[string]bool)
	items := []string{}
	for _, c := range changes {
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			items = append(items, c.ItemID)
		}
	}
	return items
}

func totalDuration(steps []rollback.Step) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.ExpectedDuration
	}
	return total
}

func abortedOn(plan *rollback.Plan, stepID string) bool {
	for _, s := range plan.Steps {
		if s.ID == stepID {
			return s.OnFailure == rollback.PolicyAbort || s.OnFailure == rollback.PolicyRetry
		}
	}
	return false
}

func (s *RollbackService) setStatus(ctx context.Context, plan *rollback.Plan, status string) error {
	plan.Status = status
	return s.repo.UpdatePlanStatus(ctx, plan.ID, status)
}
