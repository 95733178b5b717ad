package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
)

// Candidates scoring below this are held for manual review unless forced
const manualReviewThreshold = 0.6

// ManagerService drives candidate changes through validation, optional
// impact testing and a ledger commit. Nothing reaches the ledger unless the
// analyzer accepted it; conflicts and recommendations travel with the
// outcome instead of being flattened into errors.
type ManagerService struct {
	ledger   version.Service
	analyzer candidate.Analyzer
	impact   candidate.ImpactTester
	logger   *logger.Logger
}

// NewManagerService creates a new version manager
func NewManagerService(
	ledger version.Service,
	analyzer candidate.Analyzer,
	impact candidate.ImpactTester,
	log *logger.Logger,
) *ManagerService {
	return &ManagerService{
		ledger:   ledger,
		analyzer: analyzer,
		impact:   impact,
		logger:   log.With("service", "manager"),
	}
}

// ApplyChange runs one candidate through the full pipeline. An invalid
// candidate returns a validation error carrying the analyzer's findings. A
// candidate flagged for manual review, or one whose impact test failed, is
// held back unless opts.Force is set; the outcome then records why.
func (s *ManagerService) ApplyChange(ctx context.Context, cand *candidate.Change, opts candidate.ApplyOptions) (*candidate.Outcome, error) {
	analysis, err := s.analyzer.Analyze(ctx, cand)
	if err != nil {
		return nil, err
	}

	outcome := &candidate.Outcome{Analysis: analysis}
	if !analysis.IsValid {
		return outcome, apperrors.ValidationError(
			fmt.Sprintf("candidate %s rejected", cand.Setting), analysis.Errors)
	}

	if needsManualReview(analysis) && !opts.Force {
		outcome.Skipped = fmt.Sprintf(
			"compatibility score %.2f requires manual review", analysis.CompatibilityScore)
		s.logger.WithFields(map[string]interface{}{
			"setting": cand.Setting,
			"score":   analysis.CompatibilityScore,
		}).Warn("Candidate held for manual review")
		return outcome, nil
	}

	if !opts.SkipImpactTest && s.impact != nil {
		result, err := s.impact.TestOptimization(ctx, cand)
		if err != nil {
			return outcome, err
		}
		outcome.Impact = result
		if !result.Success && !opts.Force {
			outcome.Skipped = "impact test failed: " + strings.Join(result.Errors, "; ")
			return outcome, nil
		}
	}

	v, err := s.commit(ctx, cand, analysis, opts)
	if err != nil {
		return outcome, err
	}
	outcome.Version = v
	outcome.Applied = true

	s.logger.WithFields(map[string]interface{}{
		"setting": cand.Setting,
		"version": v.Number,
		"impact":  analysis.Impact,
	}).Info("Candidate applied")

	return outcome, nil
}

// ApplyChanges runs a batch of candidates independently. One candidate's
// rejection does not stop the rest; each outcome carries its own verdict.
func (s *ManagerService) ApplyChanges(ctx context.Context, cands []candidate.Change, opts candidate.ApplyOptions) ([]*candidate.Outcome, error) {
	outcomes := make([]*candidate.Outcome, 0, len(cands))
	for i := range cands {
		outcome, err := s.ApplyChange(ctx, &cands[i], opts)
		if err != nil {
			if outcome == nil {
				outcome = &candidate.Outcome{}
			}
			if outcome.Skipped == "" {
				outcome.Skipped = err.Error()
			}
			s.logger.WithFields(map[string]interface{}{
				"setting": cands[i].Setting,
				"error":   err.Error(),
			}).Warn("Candidate rejected in batch")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *ManagerService) commit(ctx context.Context, cand *candidate.Change, analysis *candidate.Analysis, opts candidate.ApplyOptions) (*version.Version, error) {
	kind := version.KindAdd
	var before interface{}

	doc, err := s.ledger.CurrentDocument(ctx)
	switch {
	case err == nil:
		for _, item := range doc.Items() {
			if item.ID == cand.Setting {
				kind = version.KindModify
				before = item.Config.Value
				break
			}
		}
	case apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		// first change on an empty ledger
	default:
		return nil, err
	}

	change := version.Change{
		Kind:     kind,
		Category: analysis.Category,
		ItemID:   cand.Setting,
		Name:     cand.Setting,
		Before:   before,
		After:    cand.Value,
		Reason:   cand.Reason,
	}

	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("Apply %s change to %s", analysis.Category, cand.Setting)
		if cand.Description != "" {
			description = cand.Description
		}
	}

	return s.ledger.CreateVersion(ctx, description, []version.Change{change}, opts.Tags)
}

func needsManualReview(analysis *candidate.Analysis) bool {
	return analysis.CompatibilityScore < manualReviewThreshold
}
