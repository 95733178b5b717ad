package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/probes"
	"github.com/prakashgbid/confledger/internal/testutil"
)

func newTestRollback(t *testing.T, baseline, highRisk []rollback.Precondition) (*RollbackService, version.Service, *testutil.MockRollbackRepository) {
	t.Helper()
	ledger, _ := newTestLedger(t)
	repo := testutil.NewMockRollbackRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	runner := probes.NewRunner(5*time.Second, log)
	svc := NewRollbackService(repo, ledger, runner, t.TempDir(), "", baseline, highRisk, time.Second, log)
	return svc, ledger, repo
}

func seedTwoVersions(t *testing.T, ledger version.Service) {
	t.Helper()
	ctx := context.Background()
	if _, err := ledger.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.CreateVersion(ctx, "second",
		[]version.Change{{Kind: version.KindAdd, Category: "general", ItemID: "feature.x", After: true}}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackService_CreateRollbackPlan(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, nil)
	seedTwoVersions(t, ledger)

	plan, err := svc.CreateRollbackPlan(context.Background(), "1.0.0", "test rollback")
	if err != nil {
		t.Fatalf("CreateRollbackPlan() error = %v", err)
	}

	if plan.FromVersion != "1.1.0" || plan.ToVersion != "1.0.0" {
		t.Errorf("plan versions = %s -> %s, want 1.1.0 -> 1.0.0", plan.FromVersion, plan.ToVersion)
	}
	if plan.Risk != rollback.RiskLow {
		t.Errorf("plan risk = %s, want low", plan.Risk)
	}
	if plan.Status != rollback.StatusPlanned {
		t.Errorf("plan status = %s, want planned", plan.Status)
	}
	if len(plan.AffectedItems) != 1 || plan.AffectedItems[0] != "feature.x" {
		t.Errorf("affected items = %v, want [feature.x]", plan.AffectedItems)
	}

	// Backup is always the first step, cleanup the last
	if len(plan.Steps) == 0 || plan.Steps[0].Kind != rollback.StepBackup {
		t.Fatalf("first step = %+v, want backup", plan.Steps)
	}
	if plan.Steps[len(plan.Steps)-1].Kind != rollback.StepCleanup {
		t.Errorf("last step kind = %s, want cleanup", plan.Steps[len(plan.Steps)-1].Kind)
	}
	// Low risk: backup, apply, verify, cleanup and nothing else
	kinds := stepKinds(plan)
	wantKinds := []string{rollback.StepBackup, rollback.StepApply, rollback.StepVerify, rollback.StepCleanup}
	if fmt.Sprint(kinds) != fmt.Sprint(wantKinds) {
		t.Errorf("low-risk steps = %v, want %v", kinds, wantKinds)
	}

	if plan.EstimatedDuration <= 0 {
		t.Error("plan estimated duration not set")
	}
}

func TestRollbackService_HighRiskPlanSteps(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, []rollback.Precondition{
		&testutil.MockPrecondition{PreName: "maintenance window active"},
	})
	ctx := context.Background()

	if _, err := ledger.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	// Six critical-category additions make the reverse diff six removals
	var changes []version.Change
	for i := 0; i < 6; i++ {
		changes = append(changes, version.Change{
			Kind:     version.KindAdd,
			Category: "memory",
			ItemID:   fmt.Sprintf("memory.setting%d", i),
			After:    i,
		})
	}
	if _, err := ledger.CreateVersion(ctx, "risky", changes, nil); err != nil {
		t.Fatal(err)
	}

	plan, err := svc.CreateRollbackPlan(ctx, "1.0.0", "revert risky changes")
	if err != nil {
		t.Fatalf("CreateRollbackPlan() error = %v", err)
	}

	if plan.Risk != rollback.RiskHigh {
		t.Fatalf("plan risk = %s, want high", plan.Risk)
	}
	kinds := stepKinds(plan)
	wantKinds := []string{
		rollback.StepBackup, rollback.StepTest, rollback.StepApply,
		rollback.StepVerify, rollback.StepTest, rollback.StepCleanup,
	}
	if fmt.Sprint(kinds) != fmt.Sprint(wantKinds) {
		t.Errorf("high-risk steps = %v, want %v", kinds, wantKinds)
	}
	// A pre-apply test must come before the apply step
	if kinds[1] != rollback.StepTest {
		t.Error("high-risk plan has no test before apply")
	}

	found := false
	for _, name := range plan.Preconditions {
		if name == "maintenance window active" {
			found = true
		}
	}
	if !found {
		t.Errorf("high-risk plan preconditions = %v, missing high-risk condition", plan.Preconditions)
	}
}

func TestRollbackService_MediumRisk(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, nil)
	ctx := context.Background()

	if _, err := ledger.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	changes := []version.Change{
		{Kind: version.KindAdd, Category: "api", ItemID: "api.a", After: 1},
		{Kind: version.KindAdd, Category: "parallel", ItemID: "parallel.b", After: 2},
	}
	if _, err := ledger.CreateVersion(ctx, "two critical", changes, nil); err != nil {
		t.Fatal(err)
	}

	plan, err := svc.CreateRollbackPlan(ctx, "1.0.0", "revert")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Risk != rollback.RiskMedium {
		t.Errorf("plan risk = %s, want medium", plan.Risk)
	}
}

func TestRollbackService_PlanRequiresKnownTarget(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, nil)
	seedTwoVersions(t, ledger)
	ctx := context.Background()

	if _, err := svc.CreateRollbackPlan(ctx, "9.9.9", "missing"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("CreateRollbackPlan() error = %v, want not found", err)
	}
	if _, err := svc.CreateRollbackPlan(ctx, "1.1.0", "noop"); !apperrors.HasCode(err, apperrors.ErrCodeConflict) {
		t.Errorf("CreateRollbackPlan() to current error = %v, want conflict", err)
	}
}

func TestRollbackService_ExecuteRollback(t *testing.T) {
	svc, ledger, repo := newTestRollback(t, nil, nil)
	seedTwoVersions(t, ledger)
	ctx := context.Background()

	plan, err := svc.CreateRollbackPlan(ctx, "1.0.0", "execute test")
	if err != nil {
		t.Fatal(err)
	}

	result, err := svc.ExecuteRollback(ctx, plan.ID, false)
	if err != nil {
		t.Fatalf("ExecuteRollback() error = %v", err)
	}
	if !result.Success || !result.Verified {
		t.Fatalf("ExecuteRollback() result = %+v, want success and verified", result)
	}
	if len(result.CompletedSteps) != len(plan.Steps) {
		t.Errorf("completed steps = %d, want %d", len(result.CompletedSteps), len(plan.Steps))
	}

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.0" {
		t.Errorf("current version after rollback = %s, want 1.0.0", current.Number)
	}

	// The backup step must have committed a backup-tagged version
	backups, err := ledger.GetVersionsByTag(ctx, version.TagBackup)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) == 0 {
		t.Error("rollback execution committed no backup version")
	}

	stored, err := svc.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != rollback.StatusSucceeded {
		t.Errorf("plan status = %s, want succeeded", stored.Status)
	}
	if _, err := repo.GetResult(ctx, plan.ID); err != nil {
		t.Errorf("GetResult() error = %v, want stored result", err)
	}

	// A terminal plan cannot be executed again
	if _, err := svc.ExecuteRollback(ctx, plan.ID, false); !apperrors.HasCode(err, apperrors.ErrCodeConflict) {
		t.Errorf("re-ExecuteRollback() error = %v, want conflict", err)
	}
}

func TestRollbackService_PreconditionFailureBlocksAllSteps(t *testing.T) {
	failing := &testutil.MockPrecondition{
		PreName: "no active consumer processes",
		Err:     fmt.Errorf("2 consumer process(es) still active"),
	}
	svc, ledger, _ := newTestRollback(t, []rollback.Precondition{failing}, nil)
	seedTwoVersions(t, ledger)
	ctx := context.Background()

	plan, err := svc.CreateRollbackPlan(ctx, "1.0.0", "blocked")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ExecuteRollback(ctx, plan.ID, false)
	if !apperrors.HasCode(err, apperrors.ErrCodePrecondition) {
		t.Fatalf("ExecuteRollback() error = %v, want precondition error", err)
	}

	// No step ran: current version unchanged, no backup committed
	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.1.0" {
		t.Errorf("precondition failure still moved current version to %s", current.Number)
	}
	backups, _ := ledger.GetVersionsByTag(ctx, version.TagBackup)
	if len(backups) != 0 {
		t.Error("precondition failure still committed a backup")
	}

	// The plan stays re-executable once the condition clears
	failing.Err = nil
	result, err := svc.ExecuteRollback(ctx, plan.ID, false)
	if err != nil {
		t.Fatalf("ExecuteRollback() after clearing condition error = %v", err)
	}
	if !result.Success {
		t.Errorf("result after clearing condition = %+v, want success", result)
	}
}

func TestRollbackService_ForceBypassesPreconditions(t *testing.T) {
	failing := &testutil.MockPrecondition{
		PreName: "sufficient free disk space",
		Err:     fmt.Errorf("disk full"),
	}
	svc, ledger, _ := newTestRollback(t, []rollback.Precondition{failing}, nil)
	seedTwoVersions(t, ledger)
	ctx := context.Background()

	plan, err := svc.CreateRollbackPlan(ctx, "1.0.0", "forced")
	if err != nil {
		t.Fatal(err)
	}
	result, err := svc.ExecuteRollback(ctx, plan.ID, true)
	if err != nil {
		t.Fatalf("forced ExecuteRollback() error = %v", err)
	}
	if !result.Success {
		t.Errorf("forced result = %+v, want success", result)
	}
	if failing.Calls != 0 {
		t.Errorf("forced execution evaluated preconditions %d times", failing.Calls)
	}
}

func TestRollbackService_QuickRollback(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, nil)
	seedTwoVersions(t, ledger)

	result, err := svc.QuickRollback(context.Background(), "")
	if err != nil {
		t.Fatalf("QuickRollback() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("QuickRollback() result = %+v, want success", result)
	}

	current, err := ledger.CurrentVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.0" {
		t.Errorf("current version after quick rollback = %s, want 1.0.0", current.Number)
	}
}

func TestRollbackService_QuickRollbackNeedsHistory(t *testing.T) {
	svc, ledger, _ := newTestRollback(t, nil, nil)
	ctx := context.Background()

	if _, err := ledger.CreateVersion(ctx, "only one", nil, nil); err != nil {
		t.Fatal(err)
	}
	_, err := svc.QuickRollback(ctx, "too early")
	if !apperrors.HasCode(err, apperrors.ErrCodeInsufficientHistory) {
		t.Errorf("QuickRollback() error = %v, want insufficient history", err)
	}
}

// The emergency path must never surface a precondition failure, even when
// every configured precondition is failing.
func TestRollbackService_EmergencyBypassesPreconditions(t *testing.T) {
	failingA := &testutil.MockPrecondition{PreName: "a", Err: fmt.Errorf("a failed")}
	failingB := &testutil.MockPrecondition{PreName: "b", Err: fmt.Errorf("b failed")}
	svc, ledger, _ := newTestRollback(t,
		[]rollback.Precondition{failingA}, []rollback.Precondition{failingB})
	seedTwoVersions(t, ledger)
	ctx := context.Background()

	result, err := svc.EmergencyRollback(ctx, "1.0.0")
	if err != nil {
		t.Fatalf("EmergencyRollback() error = %v", err)
	}
	if apperrors.HasCode(err, apperrors.ErrCodePrecondition) {
		t.Fatal("EmergencyRollback() surfaced a precondition error")
	}
	if !result.Success {
		t.Errorf("EmergencyRollback() result = %+v, want success", result)
	}

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.0" {
		t.Errorf("current version after emergency rollback = %s, want 1.0.0", current.Number)
	}
}

func TestRollbackService_EmergencyFallsBackToDirectRestore(t *testing.T) {
	svc, ledger, repo := newTestRollback(t, nil, nil)
	seedTwoVersions(t, ledger)

	// Break plan persistence so the planned path cannot proceed
	repo.SaveError = fmt.Errorf("storage down")

	result, err := svc.EmergencyRollback(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("EmergencyRollback() error = %v", err)
	}
	if !result.Success {
		t.Errorf("fallback result = %+v, want success", result)
	}

	current, err := ledger.CurrentVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.0" {
		t.Errorf("current version after fallback = %s, want 1.0.0", current.Number)
	}
}

func stepKinds(plan *rollback.Plan) []string {
	kinds := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}
