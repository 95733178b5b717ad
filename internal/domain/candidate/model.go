package candidate

// Change is a proposed configuration change supplied by an external source.
// Value is a presence check, not a non-zero check: false and 0 are
// legitimate settings, so the analyzer tests it against nil itself.
type Change struct {
	Setting     string      `json:"setting" validate:"required"`
	Value       interface{} `json:"value"`
	Description string      `json:"description,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Author      string      `json:"author,omitempty"`
}

// Conflict types
const (
	ConflictValue   = "value"
	ConflictLogical = "logical"
)

// Conflict describes a collision between a candidate and the active
// configuration
type Conflict struct {
	Type        string `json:"type"`
	ItemID      string `json:"item_id"`
	Setting     string `json:"setting"`
	Description string `json:"description"`
}

// Impact classifications
const (
	ImpactCritical = "critical"
	ImpactHigh     = "high"
	ImpactMedium   = "medium"
)

// Analysis is the validator's verdict on a candidate change. Structural and
// conflict issues are carried as data so callers can inspect them before any
// commitment.
type Analysis struct {
	IsValid            bool       `json:"is_valid"`
	Errors             []string   `json:"errors,omitempty"`
	Conflicts          []Conflict `json:"conflicts,omitempty"`
	Impact             string     `json:"impact"`
	Category           string     `json:"category"`
	CompatibilityScore float64    `json:"compatibility_score"`
	Recommendations    []string   `json:"recommendations,omitempty"`
}

// PerformanceScore holds the comparable per-side scores of an impact test
type PerformanceScore struct {
	Baseline    float64 `json:"baseline"`
	Optimized   float64 `json:"optimized"`
	Improvement float64 `json:"improvement"` // percent delta of optimized vs baseline
}

// Metrics aggregates probe measurements for one side of an impact test
type Metrics struct {
	ResponseTimeMs float64 `json:"response_time_ms"` // sum across probes
	MemoryMB       float64 `json:"memory_mb"`        // max across probes
	CPUPercent     float64 `json:"cpu_percent"`      // max across probes
	Throughput     float64 `json:"throughput"`       // sum across probes
}

// OptimizationResult is the structured outcome of an impact test
type OptimizationResult struct {
	Success     bool             `json:"success"`
	Performance PerformanceScore `json:"performance"`
	Baseline    Metrics          `json:"baseline_metrics"`
	Optimized   Metrics          `json:"optimized_metrics"`
	Errors      []string         `json:"errors,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}
