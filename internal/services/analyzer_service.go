package services

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/prakashgbid/confledger/internal/domain/version"
	apperrors "github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/pkg/validator"
)

// AnalyzerService inspects a candidate change for structural correctness,
// conflicts with the active configuration, and risk classification. All
// issues are returned as data inside the Analysis so callers can inspect
// them before any commitment.
type AnalyzerService struct {
	ledger   version.Service
	validate *validator.Validator
	logger   *logger.Logger
}

// NewAnalyzerService creates a new candidate change analyzer
func NewAnalyzerService(ledger version.Service, log *logger.Logger) *AnalyzerService {
	return &AnalyzerService{
		ledger:   ledger,
		validate: validator.New(),
		logger:   log,
	}
}

// settingMatcher matches a configuration item by setting name pattern and,
// optionally, an exact value
type settingMatcher struct {
	pattern *regexp.Regexp
	value   string // empty matches any value
}

func (m settingMatcher) matches(setting string, value interface{}) bool {
	if !m.pattern.MatchString(setting) {
		return false
	}
	if m.value == "" {
		return true
	}
	return strings.EqualFold(fmt.Sprint(value), m.value)
}

// conflictRule is a declarative logical-conflict predicate: two settings
// that must not both hold, even without a naming collision
type conflictRule struct {
	a, b        settingMatcher
	description string
}

var logicalConflictRules = []conflictRule{
	{
		a:           settingMatcher{pattern: regexp.MustCompile(`(?i)memory`), value: "aggressive"},
		b:           settingMatcher{pattern: regexp.MustCompile(`(?i)performance`), value: "high"},
		description: "aggressive memory reclamation undermines high-performance mode",
	},
	{
		a:           settingMatcher{pattern: regexp.MustCompile(`(?i)cache`), value: "disabled"},
		b:           settingMatcher{pattern: regexp.MustCompile(`(?i)performance`), value: "high"},
		description: "disabling the cache contradicts high-performance mode",
	},
	{
		a:           settingMatcher{pattern: regexp.MustCompile(`(?i)parallel`), value: "max"},
		b:           settingMatcher{pattern: regexp.MustCompile(`(?i)memory`), value: "low"},
		description: "maximum parallelism cannot run under a low memory ceiling",
	},
	{
		a:           settingMatcher{pattern: regexp.MustCompile(`(?i)rate.?limit`), value: "off"},
		b:           settingMatcher{pattern: regexp.MustCompile(`(?i)retry`), value: "aggressive"},
		description: "aggressive retries without rate limiting can flood the upstream",
	},
}

var criticalImpactPattern = regexp.MustCompile(`(?i)rate.?limit|timeout|error.?recovery`)
var highImpactPattern = regexp.MustCompile(`(?i)parallel|memory|performance|cache`)
var performanceKeywords = []string{"performance", "speed", "fast", "optimiz", "latency", "throughput"}

// categoryBuckets is evaluated in order; the first keyword hit wins
var categoryBuckets = []struct {
	name     string
	keywords []string
}{
	{"performance", []string{"performance", "speed", "latency", "throughput"}},
	{"memory", []string{"memory", "heap", "gc"}},
	{"api", []string{"api", "rate", "endpoint", "request"}},
	{"context", []string{"context", "window", "token"}},
	{"errors", []string{"error", "retry", "recovery", "timeout"}},
	{"parallel", []string{"parallel", "concurrent", "worker", "thread"}},
}

// Analyze produces the validator's verdict on a candidate change
func (s *AnalyzerService) Analyze(ctx context.Context, cand *candidate.Change) (*candidate.Analysis, error) {
	analysis := &candidate.Analysis{
		IsValid:            true,
		Impact:             candidate.ImpactMedium,
		CompatibilityScore: 1.0,
	}

	structuralFailed := s.checkStructure(cand, analysis)

	active, err := s.activeItems(ctx)
	if err != nil {
		return nil, err
	}

	s.checkConflicts(cand, active, analysis)
	s.classifyImpact(cand, analysis)
	analysis.Category = categorize(cand.Setting, cand.Description)

	// Score: each conflict costs 0.1, a structural failure 0.3, critical
	// impact 0.2, clamped to [0, 1]
	score := 1.0
	score -= 0.1 * float64(len(analysis.Conflicts))
	if structuralFailed {
		score -= 0.3
	}
	if analysis.Impact == candidate.ImpactCritical {
		score -= 0.2
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	analysis.CompatibilityScore = score

	if score < 0.6 {
		analysis.Recommendations = append(analysis.Recommendations,
			"manual review required: compatibility score below 0.6")
	}
	if len(analysis.Conflicts) > 0 {
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("resolve %d conflict(s) with the active configuration before committing", len(analysis.Conflicts)))
	}

	s.logger.WithFields(map[string]interface{}{
		"setting":   cand.Setting,
		"category":  analysis.Category,
		"impact":    analysis.Impact,
		"score":     analysis.CompatibilityScore,
		"conflicts": len(analysis.Conflicts),
	}).Debug("Candidate change analyzed")

	return analysis, nil
}

// checkStructure validates the candidate's shape, soft-failing into the
// analysis rather than returning an error
func (s *AnalyzerService) checkStructure(cand *candidate.Change, analysis *candidate.Analysis) bool {
	for _, f := range s.validate.Validate(cand) {
		analysis.Errors = append(analysis.Errors, f.Message)
	}
	// nil, not zero: a candidate may legitimately set a flag to false or a
	// number to 0
	if cand.Value == nil {
		analysis.Errors = append(analysis.Errors, "value is required")
	}
	if len(analysis.Errors) == 0 {
		return false
	}
	analysis.IsValid = false
	return true
}

func (s *AnalyzerService) activeItems(ctx context.Context) ([]version.Item, error) {
	doc, err := s.ledger.CurrentDocument(ctx)
	if err != nil {
		// An empty ledger has nothing to conflict with
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Items(), nil
}

// checkConflicts finds value conflicts on matching identifiers and logical
// conflicts from the declarative rule table
func (s *AnalyzerService) checkConflicts(cand *candidate.Change, active []version.Item, analysis *candidate.Analysis) {
	for _, item := range active {
		if item.Config.Setting == cand.Setting && !reflect.DeepEqual(item.Config.Value, cand.Value) {
			analysis.Conflicts = append(analysis.Conflicts, candidate.Conflict{
				Type:    candidate.ConflictValue,
				ItemID:  item.ID,
				Setting: cand.Setting,
				Description: fmt.Sprintf("item %s already sets %s to %v",
					item.ID, cand.Setting, item.Config.Value),
			})
		}
	}

	for _, rule := range logicalConflictRules {
		for _, item := range active {
			if item.Config.Setting == cand.Setting {
				continue
			}
			candHitsA := rule.a.matches(cand.Setting, cand.Value)
			candHitsB := rule.b.matches(cand.Setting, cand.Value)
			itemHitsA := rule.a.matches(item.Config.Setting, item.Config.Value)
			itemHitsB := rule.b.matches(item.Config.Setting, item.Config.Value)

			if (candHitsA && itemHitsB) || (candHitsB && itemHitsA) {
				analysis.Conflicts = append(analysis.Conflicts, candidate.Conflict{
					Type:        candidate.ConflictLogical,
					ItemID:      item.ID,
					Setting:     cand.Setting,
					Description: rule.description,
				})
			}
		}
	}
}

// classifyImpact buckets the candidate by how disruptive its setting is
func (s *AnalyzerService) classifyImpact(cand *candidate.Change, analysis *candidate.Analysis) {
	switch {
	case criticalImpactPattern.MatchString(cand.Setting):
		analysis.Impact = candidate.ImpactCritical
	case highImpactPattern.MatchString(cand.Setting):
		analysis.Impact = candidate.ImpactHigh
	default:
		analysis.Impact = candidate.ImpactMedium
		desc := strings.ToLower(cand.Description)
		for _, kw := range performanceKeywords {
			if strings.Contains(desc, kw) {
				analysis.Impact = candidate.ImpactHigh
				break
			}
		}
	}
}

// categorize buckets a setting into a fixed category set, first match wins
func categorize(setting, description string) string {
	text := strings.ToLower(setting + " " + description)
	for _, bucket := range categoryBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(text, kw) {
				return bucket.name
			}
		}
	}
	return "general"
}
