package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kwv/cloudsnap/cloud"
)

// maxSolveBody caps POST /solve payloads
const maxSolveBody = 8 << 20

// solveFunc solves a dump and records the outcome
type solveFunc func(ctx context.Context, obs []cloud.Vec3, source string) (*cloud.SolveReport, error)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *cloud.ResultTracker, render cloud.RenderConfig, solve solveFunc) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Version   string    `json:"version"`
			Timestamp time.Time `json:"timestamp"`
			cloud.TrackerStatus
		}{
			Status:        "ok",
			Version:       Version,
			Timestamp:     time.Now(),
			TrackerStatus: tracker.Status(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		report := tracker.Report()
		if report == nil {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Printf("Error encoding report: %v", err)
		}
	})

	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		report := tracker.Report()
		if report == nil {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprintln(w, report.Text)
	})

	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		obs, err := cloud.ParseObservations(http.MaxBytesReader(w, r.Body, maxSolveBody))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := solve(r.Context(), obs, "http:"+r.RemoteAddr)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, cloud.ErrNoObservations) || errors.Is(err, cloud.ErrOutOfDomain) || errors.Is(err, cloud.ErrMalformedInput) {
				status = http.StatusUnprocessableEntity
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.Printf("Error encoding report: %v", err)
		}
	})

	mux.HandleFunc("/projection.svg", func(w http.ResponseWriter, r *http.Request) {
		observed, predicted, report := projectionData(tracker)
		if report == nil {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := cloud.NewProjectionRenderer(render).RenderSVG(w, observed, predicted); err != nil {
			log.Printf("Error encoding projection SVG: %v", err)
		}
	})

	mux.HandleFunc("/projection.png", func(w http.ResponseWriter, r *http.Request) {
		observed, predicted, report := projectionData(tracker)
		if report == nil {
			http.Error(w, "No result available", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := cloud.NewProjectionRenderer(render).RenderPNG(w, observed, predicted, report.Text); err != nil {
			log.Printf("Error encoding projection PNG: %v", err)
		}
	})

	// Default route serves HTML page embedding the SVG projection
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>cloudsnap</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#fff}
img{display:block;width:100vw;height:90vh;object-fit:contain}
iframe{border:0;width:100vw;height:10vh;font-family:monospace}
</style>
</head>
<body>
<img src="/projection.svg" alt="Projection">
<iframe src="/text" title="Decoded message"></iframe>
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// projectionData returns the latest observations, their reconstruction and
// report. The report is nil when nothing has been solved with observations.
func projectionData(tracker *cloud.ResultTracker) ([]cloud.Vec3, []cloud.Vec3, *cloud.SolveReport) {
	report, observed := tracker.Snapshot()
	if report == nil || len(observed) == 0 {
		return nil, nil, nil
	}

	rt := report.Transform
	return observed, rt.ApplyAll(report.Matrix.Points()), report
}
