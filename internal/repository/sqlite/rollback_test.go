package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prakashgbid/confledger/internal/domain/rollback"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/testutil"
)

func testPlan(created time.Time) *rollback.Plan {
	return &rollback.Plan{
		ID:            uuid.New().String(),
		CreatedAt:     created,
		Reason:        "test rollback",
		FromVersion:   "1.1.0",
		ToVersion:     "1.0.0",
		AffectedItems: []string{"cache.ttl"},
		Risk:          rollback.RiskLow,
		Preconditions: []string{"a prior backup exists"},
		Steps: []rollback.Step{
			{ID: uuid.New().String(), Kind: rollback.StepBackup, OnFailure: rollback.PolicyAbort},
			{ID: uuid.New().String(), Kind: rollback.StepApply, OnFailure: rollback.PolicyRetry},
		},
		Status: rollback.StatusPlanned,
	}
}

func TestRollbackRepository_PlanLifecycle(t *testing.T) {
	repo := NewRollbackRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	plan := testPlan(time.Now().UTC())
	if err := repo.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan() error = %v", err)
	}

	got, err := repo.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got.FromVersion != "1.1.0" || got.ToVersion != "1.0.0" || len(got.Steps) != 2 {
		t.Errorf("GetPlan() = %+v, want saved plan", got)
	}
	if got.Status != rollback.StatusPlanned {
		t.Errorf("GetPlan() status = %s, want planned", got.Status)
	}

	if err := repo.UpdatePlanStatus(ctx, plan.ID, rollback.StatusSucceeded); err != nil {
		t.Fatalf("UpdatePlanStatus() error = %v", err)
	}
	got, err = repo.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The status column, not the serialized plan, is authoritative
	if got.Status != rollback.StatusSucceeded {
		t.Errorf("GetPlan() status after update = %s, want succeeded", got.Status)
	}
}

func TestRollbackRepository_Results(t *testing.T) {
	repo := NewRollbackRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	plan := testPlan(time.Now().UTC())
	if err := repo.SavePlan(ctx, plan); err != nil {
		t.Fatal(err)
	}

	// No result until an execution wrote one
	if _, err := repo.GetResult(ctx, plan.ID); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("GetResult() before execution error = %v, want not found", err)
	}

	result := &rollback.Result{
		PlanID:         plan.ID,
		Success:        true,
		CompletedSteps: []string{plan.Steps[0].ID, plan.Steps[1].ID},
		Duration:       3 * time.Second,
		Verified:       true,
		FinishedAt:     time.Now().UTC(),
	}
	if err := repo.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	got, err := repo.GetResult(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if !got.Success || !got.Verified || len(got.CompletedSteps) != 2 {
		t.Errorf("GetResult() = %+v, want saved result", got)
	}

	// A result cannot exist without its plan
	orphan := &rollback.Result{PlanID: "missing", Success: true}
	if err := repo.SaveResult(ctx, orphan); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("SaveResult() for unknown plan error = %v, want not found", err)
	}
}

func TestRollbackRepository_ListPlans(t *testing.T) {
	repo := NewRollbackRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		plan := testPlan(base.Add(time.Duration(i) * time.Minute))
		if err := repo.SavePlan(ctx, plan); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, plan.ID)
	}

	plans, err := repo.ListPlans(ctx, 0)
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("ListPlans() = %d plans, want 3", len(plans))
	}
	// Newest first
	if plans[0].ID != ids[2] {
		t.Errorf("ListPlans() first = %s, want newest %s", plans[0].ID, ids[2])
	}

	limited, err := repo.ListPlans(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListPlans(2) = %d plans, want 2", len(limited))
	}

	if _, err := repo.GetPlan(ctx, "missing"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("GetPlan() for unknown id error = %v, want not found", err)
	}
}
