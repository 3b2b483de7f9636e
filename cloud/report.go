package cloud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultReportPath is where the CLI writes reports when --report has no value
const DefaultReportPath = "cloudsnap-report.json"

// SolveReport is the persisted and published outcome of one solve
type SolveReport struct {
	Text        string          `json:"text"`
	Rows        int             `json:"rows"`
	Residual    float64         `json:"residual"`
	BestRestart int             `json:"bestRestart"`
	Matrix      HiddenMatrix    `json:"matrix"`
	Transform   RigidTransform  `json:"transform"`
	Restarts    []RestartResult `json:"restarts,omitempty"`
	Settings    ReportSettings  `json:"settings"`
	Source      string          `json:"source,omitempty"`
	DurationMs  int64           `json:"durationMs"`
	Timestamp   int64           `json:"timestamp"`
}

// ReportSettings records the solver inputs that produced a report
type ReportSettings struct {
	Scale      float64  `json:"scale"`
	Iterations int      `json:"iterations"`
	Restarts   int      `json:"restarts"`
	Seed       int64    `json:"seed"`
	Jitter     int      `json:"jitter"`
	Polish     bool     `json:"polish"`
	Domain     Domain   `json:"domain"`
	Anchors    []Anchor `json:"anchors,omitempty"`
}

// NewSolveReport decodes result and bundles it with the settings used
func NewSolveReport(result *SolveResult, cfg SolverConfig, source string, elapsed time.Duration) (*SolveReport, error) {
	if result == nil {
		return nil, fmt.Errorf("building report: nil result")
	}

	text, err := Decode(result.Matrix, cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("building report: %w", err)
	}

	return &SolveReport{
		Text:        text,
		Rows:        len(result.Matrix),
		Residual:    result.Residual,
		BestRestart: result.BestRestart,
		Matrix:      result.Matrix,
		Transform:   result.Transform,
		Restarts:    result.Restarts,
		Settings: ReportSettings{
			Scale:      cfg.Scale,
			Iterations: cfg.Iterations,
			Restarts:   cfg.Restarts,
			Seed:       cfg.Seed,
			Jitter:     cfg.Jitter,
			Polish:     cfg.Polish,
			Domain:     cfg.Domain,
			Anchors:    cfg.Anchors,
		},
		Source:     source,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().Unix(),
	}, nil
}

// Summary is the one-line human form printed by the CLI
func (r *SolveReport) Summary() string {
	return fmt.Sprintf("%s (residual=%.6f, restart=%d, rows=%d)", r.Text, r.Residual, r.BestRestart, r.Rows)
}

// LoadReport reads a report written by SaveReport.
// A missing file returns nil, nil.
func LoadReport(path string) (*SolveReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	var report SolveReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}

	return &report, nil
}

// SaveReport writes the report as indented JSON, creating parent directories
func SaveReport(path string, report *SolveReport) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}

	return nil
}
