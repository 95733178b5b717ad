package services

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/probes"
)

// Score weighting: response time and memory are lower-is-better, throughput
// higher-is-better, each capped before weighting.
const (
	responseTimeCapMs = 10000.0
	memoryCapMB       = 1024.0
	throughputCap     = 10000.0
)

// ImpactService benchmarks a candidate change against the active
// configuration by running a fixed battery of scenario probes on both sides
// and comparing weighted performance scores.
type ImpactService struct {
	ledger   version.Service
	runner   *probes.Runner
	battery  []probes.Scenario
	workRoot string
	logger   *logger.Logger

	mu       sync.Mutex
	baseline *candidate.Metrics
}

// NewImpactService creates a new impact tester. The probe battery is
// supplied externally; the tester only executes and measures it.
func NewImpactService(ledger version.Service, runner *probes.Runner, battery []probes.Scenario, workRoot string, log *logger.Logger) *ImpactService {
	return &ImpactService{
		ledger:   ledger,
		runner:   runner,
		battery:  battery,
		workRoot: workRoot,
		logger:   log,
	}
}

// TestOptimization runs the battery for the candidate and compares it with
// the cached baseline. Probe failures are aggregated into the result, never
// thrown; the workspace is removed on every exit path.
func (s *ImpactService) TestOptimization(ctx context.Context, cand *candidate.Change) (*candidate.OptimizationResult, error) {
	result := &candidate.OptimizationResult{}

	baseline, baseErrs, err := s.ensureBaseline(ctx)
	if err != nil {
		return nil, err
	}
	result.Errors = append(result.Errors, baseErrs...)
	result.Baseline = *baseline

	doc, err := s.candidateDocument(ctx, cand)
	if err != nil {
		return nil, err
	}

	// The candidate setting is applied through scoped environment
	// overrides and a workspace-local document copy; nothing touches the
	// live configuration.
	env := []string{
		"CONFLEDGER_CANDIDATE_SETTING=" + cand.Setting,
		"CONFLEDGER_CANDIDATE_VALUE=" + fmt.Sprint(cand.Value),
	}

	optimized, optErrs, err := s.runBattery(ctx, doc, env)
	if err != nil {
		return nil, err
	}
	result.Errors = append(result.Errors, optErrs...)
	result.Optimized = *optimized

	result.Performance.Baseline = performanceScore(*baseline)
	result.Performance.Optimized = performanceScore(*optimized)
	if result.Performance.Baseline > 0 {
		result.Performance.Improvement = (result.Performance.Optimized - result.Performance.Baseline) /
			result.Performance.Baseline * 100
	}

	result.Success = len(result.Errors) == 0
	if result.Success && result.Performance.Improvement < 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("candidate regresses the performance score by %.1f%%", -result.Performance.Improvement))
	}

	s.logger.WithFields(map[string]interface{}{
		"setting":     cand.Setting,
		"success":     result.Success,
		"improvement": result.Performance.Improvement,
		"errors":      len(result.Errors),
	}).Info("Impact test finished")

	return result, nil
}

// ensureBaseline measures the current configuration and caches the first
// clean result for the process lifetime. A measurement with probe failures
// is degenerate and is re-taken on the next call.
func (s *ImpactService) ensureBaseline(ctx context.Context) (*candidate.Metrics, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseline != nil {
		return s.baseline, nil, nil
	}

	doc, err := s.currentOrEmptyDocument(ctx)
	if err != nil {
		return nil, nil, err
	}

	metrics, errs, err := s.runBattery(ctx, doc, nil)
	if err != nil {
		return nil, nil, err
	}

	if len(errs) == 0 {
		s.baseline = metrics
	}
	return metrics, errs, nil
}

// runBattery executes every scenario inside a fresh workspace seeded with
// the document under test and representative fixture files
func (s *ImpactService) runBattery(ctx context.Context, doc *version.Document, env []string) (*candidate.Metrics, []string, error) {
	encoded, err := version.EncodeDocument(doc)
	if err != nil {
		return nil, nil, err
	}

	ws, err := probes.NewWorkspace(s.workRoot, map[string][]byte{
		"config.yaml":          encoded,
		"fixtures/sample.json": []byte(`{"items":[{"id":1},{"id":2}]}`),
		"fixtures/sample.txt":  []byte("representative fixture payload\n"),
	})
	if err != nil {
		return nil, nil, apperrors.ProbeExecutionError("workspace", err)
	}
	defer ws.Close()

	aggregated := &candidate.Metrics{}
	var errs []string

	for _, scenario := range s.battery {
		m := s.runner.Run(ctx, scenario, ws.Dir, env)
		if m.Err != nil {
			errs = append(errs, m.Err.Error())
			continue
		}

		aggregated.ResponseTimeMs += m.ResponseTimeMs
		aggregated.MemoryMB = math.Max(aggregated.MemoryMB, m.MemoryMB)
		aggregated.CPUPercent = math.Max(aggregated.CPUPercent, m.CPUPercent)
		aggregated.Throughput += m.Throughput
	}

	return aggregated, errs, nil
}

func (s *ImpactService) currentOrEmptyDocument(ctx context.Context) (*version.Document, error) {
	doc, err := s.ledger.CurrentDocument(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return version.NewDocument("0.0.0"), nil
		}
		return nil, err
	}
	return doc, nil
}

// candidateDocument clones the current document with the candidate applied
func (s *ImpactService) candidateDocument(ctx context.Context, cand *candidate.Change) (*version.Document, error) {
	base, err := s.currentOrEmptyDocument(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := base.Clone()
	if err != nil {
		return nil, err
	}

	category := categorize(cand.Setting, cand.Description)
	doc.UpsertItem(category, version.Item{
		ID:   cand.Setting,
		Name: cand.Setting,
		Config: version.ItemConfig{
			Setting: cand.Setting,
			Value:   cand.Value,
		},
	})
	return doc, nil
}

// performanceScore folds one side's metrics into a single comparable score
func performanceScore(m candidate.Metrics) float64 {
	rt := math.Min(m.ResponseTimeMs, responseTimeCapMs)
	mem := math.Min(m.MemoryMB, memoryCapMB)
	tp := math.Min(m.Throughput, throughputCap)

	return 0.4*(1-rt/responseTimeCapMs) +
		0.3*(1-mem/memoryCapMB) +
		0.3*(tp/throughputCap)
}
