package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
)

type stubImpactTester struct {
	result *candidate.OptimizationResult
	err    error
	calls  int
}

func (s *stubImpactTester) TestOptimization(ctx context.Context, cand *candidate.Change) (*candidate.OptimizationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestManager(t *testing.T, impact candidate.ImpactTester) (*ManagerService, version.Service) {
	t.Helper()
	ledger, _ := newTestLedger(t)
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	analyzer := NewAnalyzerService(ledger, log)
	return NewManagerService(ledger, analyzer, impact, log), ledger
}

func passingImpact() *stubImpactTester {
	return &stubImpactTester{result: &candidate.OptimizationResult{Success: true}}
}

func TestManagerService_ApplyChange(t *testing.T) {
	impact := passingImpact()
	mgr, ledger := newTestManager(t, impact)
	ctx := context.Background()

	outcome, err := mgr.ApplyChange(ctx, &candidate.Change{
		Setting:     "cache.ttl",
		Value:       120,
		Description: "raise cache ttl",
	}, candidate.ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("ApplyChange() outcome = %+v, want applied", outcome)
	}
	if outcome.Version == nil || outcome.Version.Number != "1.0.0" {
		t.Errorf("committed version = %+v, want 1.0.0", outcome.Version)
	}
	if impact.calls != 1 {
		t.Errorf("impact tester calls = %d, want 1", impact.calls)
	}

	// The setting now exists, so a second apply is a modify and a patch bump
	outcome, err = mgr.ApplyChange(ctx, &candidate.Change{
		Setting: "cache.ttl",
		Value:   240,
	}, candidate.ApplyOptions{Force: true})
	if err != nil {
		t.Fatalf("second ApplyChange() error = %v", err)
	}
	if outcome.Version.Number != "1.0.1" {
		t.Errorf("second committed version = %s, want 1.0.1", outcome.Version.Number)
	}
	change := outcome.Version.Changes[0]
	if change.Kind != version.KindModify {
		t.Errorf("second change kind = %s, want modify", change.Kind)
	}

	current, err := ledger.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Number != "1.0.1" {
		t.Errorf("ledger current version = %s, want 1.0.1", current.Number)
	}
}

func TestManagerService_RejectsInvalidCandidate(t *testing.T) {
	mgr, ledger := newTestManager(t, passingImpact())
	ctx := context.Background()

	outcome, err := mgr.ApplyChange(ctx, &candidate.Change{Setting: ""}, candidate.ApplyOptions{})
	if !apperrors.HasCode(err, apperrors.ErrCodeValidation) {
		t.Fatalf("ApplyChange() error = %v, want validation error", err)
	}
	if outcome == nil || outcome.Analysis == nil {
		t.Fatal("ApplyChange() returned no analysis with the rejection")
	}
	if outcome.Applied {
		t.Error("invalid candidate was applied")
	}

	if _, err := ledger.CurrentVersion(ctx); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Error("rejected candidate still committed a version")
	}
}

func TestManagerService_ManualReviewHold(t *testing.T) {
	mgr, ledger := newTestManager(t, passingImpact())
	ctx := context.Background()

	// Three aggressive-retry items each logically conflict with a
	// rate-limit-off candidate; with the critical impact penalty the score
	// drops below the review threshold.
	var changes []version.Change
	for i := 0; i < 3; i++ {
		changes = append(changes, version.Change{
			Kind: version.KindAdd, Category: "errors",
			ItemID: fmt.Sprintf("retry.policy%d", i), After: "aggressive",
		})
	}
	if _, err := ledger.CreateVersion(ctx, "initial", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.CreateVersion(ctx, "retries", changes, nil); err != nil {
		t.Fatal(err)
	}

	cand := &candidate.Change{Setting: "rate_limit.mode", Value: "off"}
	outcome, err := mgr.ApplyChange(ctx, cand, candidate.ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if outcome.Applied {
		t.Fatal("low-scoring candidate was applied without force")
	}
	if outcome.Skipped == "" {
		t.Error("held candidate has no skip reason")
	}

	// Force overrides the hold
	outcome, err = mgr.ApplyChange(ctx, cand, candidate.ApplyOptions{Force: true})
	if err != nil {
		t.Fatalf("forced ApplyChange() error = %v", err)
	}
	if !outcome.Applied {
		t.Errorf("forced outcome = %+v, want applied", outcome)
	}
}

func TestManagerService_ImpactFailureHoldsCandidate(t *testing.T) {
	impact := &stubImpactTester{result: &candidate.OptimizationResult{
		Success: false,
		Errors:  []string{"probe hang timed out"},
	}}
	mgr, ledger := newTestManager(t, impact)
	ctx := context.Background()

	outcome, err := mgr.ApplyChange(ctx, &candidate.Change{
		Setting: "cache.ttl",
		Value:   60,
	}, candidate.ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if outcome.Applied {
		t.Error("candidate with a failed impact test was applied")
	}
	if outcome.Impact == nil {
		t.Error("outcome carries no impact result")
	}
	if _, err := ledger.CurrentVersion(ctx); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Error("held candidate still committed a version")
	}
}

func TestManagerService_SkipImpactTest(t *testing.T) {
	impact := passingImpact()
	mgr, _ := newTestManager(t, impact)

	outcome, err := mgr.ApplyChange(context.Background(), &candidate.Change{
		Setting: "cache.ttl",
		Value:   60,
	}, candidate.ApplyOptions{SkipImpactTest: true})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}
	if impact.calls != 0 {
		t.Errorf("impact tester calls = %d, want 0 with SkipImpactTest", impact.calls)
	}
}

func TestManagerService_ApplyChanges(t *testing.T) {
	mgr, _ := newTestManager(t, passingImpact())

	cands := []candidate.Change{
		{Setting: "cache.ttl", Value: 60},
		{Setting: ""}, // invalid
		{Setting: "pool.size", Value: 10},
	}

	outcomes, err := mgr.ApplyChanges(context.Background(), cands, candidate.ApplyOptions{})
	if err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if !outcomes[0].Applied || !outcomes[2].Applied {
		t.Errorf("valid candidates not applied: %+v, %+v", outcomes[0], outcomes[2])
	}
	if outcomes[1].Applied {
		t.Error("invalid candidate applied in batch")
	}
	if outcomes[1].Skipped == "" {
		t.Error("rejected batch candidate has no recorded reason")
	}
}
