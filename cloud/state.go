package cloud

import (
	"log"
	"sync"
	"time"
)

// ResultTracker holds the most recent observations and solve report for the
// HTTP endpoints and the MQTT service
type ResultTracker struct {
	mu           sync.RWMutex
	observations []Vec3
	report       *SolveReport
	solves       int
	failures     int
	lastError    string
	updated      time.Time
	cachePath    string // report file; empty disables persistence
}

// TrackerStatus is the snapshot served by /health
type TrackerStatus struct {
	Solves    int       `json:"solves"`
	Failures  int       `json:"failures"`
	LastError string    `json:"lastError,omitempty"`
	HasResult bool      `json:"hasResult"`
	Updated   time.Time `json:"updated,omitempty"`
}

// NewResultTracker creates an empty tracker
func NewResultTracker() *ResultTracker {
	return &ResultTracker{}
}

// NewResultTrackerWithCache persists every recorded report to cachePath and
// starts from the report already stored there, if any.
func NewResultTrackerWithCache(cachePath string) *ResultTracker {
	rt := &ResultTracker{cachePath: cachePath}
	if cachePath != "" {
		if report, err := LoadReport(cachePath); err == nil && report != nil {
			rt.report = report
			rt.updated = time.Unix(report.Timestamp, 0)
		}
	}
	return rt
}

// Record stores a successful solve
func (rt *ResultTracker) Record(obs []Vec3, report *SolveReport) {
	rt.mu.Lock()
	rt.observations = append([]Vec3(nil), obs...)
	rt.report = report
	rt.solves++
	rt.lastError = ""
	rt.updated = time.Now()
	path := rt.cachePath
	rt.mu.Unlock()

	if path != "" {
		if err := SaveReport(path, report); err != nil {
			log.Printf("Error persisting report to %s: %v", path, err)
		}
	}
}

// RecordFailure counts a failed solve and remembers its error
func (rt *ResultTracker) RecordFailure(err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.failures++
	if err != nil {
		rt.lastError = err.Error()
	}
	rt.updated = time.Now()
}

// Report returns the latest report, or nil
func (rt *ResultTracker) Report() *SolveReport {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.report == nil {
		return nil
	}
	copy := *rt.report
	return &copy
}

// Observations returns a copy of the observations behind the latest report
func (rt *ResultTracker) Observations() []Vec3 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]Vec3(nil), rt.observations...)
}

// Snapshot returns the latest report and the observations behind it, read
// together so they always belong to the same solve. The report is nil before
// the first solve.
func (rt *ResultTracker) Snapshot() (*SolveReport, []Vec3) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.report == nil {
		return nil, nil
	}
	report := *rt.report
	return &report, append([]Vec3(nil), rt.observations...)
}

// Status summarizes the tracker
func (rt *ResultTracker) Status() TrackerStatus {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return TrackerStatus{
		Solves:    rt.solves,
		Failures:  rt.failures,
		LastError: rt.lastError,
		HasResult: rt.report != nil,
		Updated:   rt.updated,
	}
}
