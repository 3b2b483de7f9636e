package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/cloudsnap/cloud"
)

// queueSize bounds the observation dumps waiting for the service worker
const queueSize = 4

// App encapsulates the application state and dependencies
type App struct {
	Config     *cloud.Config
	Tracker    *cloud.ResultTracker
	MQTTClient *cloud.MQTTClient
	Publisher  *cloud.Publisher

	Out io.Writer
	In  io.Reader

	// CLI Flags (effectively dependencies)
	ConfigFile string
	Input      string
	URL        string
	ReportFile string
	RenderFile string
	Synthesize string
	Output     string
	SynthSeed  int64
	SynthNoise float64
	HttpPort   int
	MqttMode   bool
	HttpMode   bool
	Verbose    bool

	opts AppOptions
}

// solveJob is one observation dump queued by the MQTT handler
type solveJob struct {
	obs    []cloud.Vec3
	source string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Tracker: cloud.NewResultTracker(),
		Out:     os.Stdout,
		In:      os.Stdin,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Input = opts.Input
	a.URL = opts.URL
	a.ReportFile = opts.ReportFile
	a.RenderFile = opts.RenderFile
	a.Synthesize = opts.Synthesize
	a.Output = opts.Output
	a.SynthSeed = opts.SynthSeed
	a.SynthNoise = opts.SynthNoise
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.Verbose = opts.Verbose
	a.opts = opts
}

// loadConfig reads the config file (if any) and applies explicit flag overrides
func (a *App) loadConfig() (*cloud.Config, error) {
	config := cloud.DefaultConfig()
	if a.ConfigFile != "" {
		loaded, err := cloud.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
		}
		config = loaded
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if err := applyOverrides(config, a.opts); err != nil {
		return nil, err
	}
	if a.ReportFile != "" {
		config.ReportPath = a.ReportFile
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	a.Config = config
	return config, nil
}

// applyOverrides copies every flag the user actually set onto config
func applyOverrides(config *cloud.Config, opts AppOptions) error {
	set := opts.Explicit
	if set["scale"] {
		config.Solver.Scale = opts.Scale
	}
	if set["iterations"] {
		config.Solver.Iterations = opts.Iterations
	}
	if set["restarts"] {
		config.Solver.Restarts = opts.Restarts
	}
	if set["workers"] {
		config.Solver.Workers = opts.Workers
	}
	if set["seed"] {
		config.Solver.Seed = opts.Seed
	}
	if set["jitter"] {
		config.Solver.Jitter = opts.Jitter
	}
	if set["no-polish"] {
		config.Solver.Polish = !opts.NoPolish
	}
	if set["min-code"] {
		config.Domain.Min = opts.MinCode
	}
	if set["max-code"] {
		config.Domain.Max = opts.MaxCode
	}
	if set["prefix"] {
		config.Prefix = opts.Prefix
	}
	if set["anchors"] {
		anchors, err := cloud.ParseAnchorSpec(opts.Anchors)
		if err != nil {
			return err
		}
		config.Anchors = append(config.Anchors, anchors...)
	}
	return nil
}

// readObservations loads the observation dump named by --url or --input
func (a *App) readObservations(ctx context.Context) ([]cloud.Vec3, string, error) {
	switch {
	case a.URL != "":
		obs, err := cloud.FetchObservations(ctx, a.URL)
		return obs, a.URL, err
	case a.Input == "-":
		obs, err := cloud.ParseObservations(a.In)
		return obs, "stdin", err
	case a.Input != "":
		obs, err := cloud.ParseObservationFile(a.Input)
		return obs, a.Input, err
	}
	return nil, "", fmt.Errorf("no input: use --input or --url")
}

// RunSolve solves one observation dump and prints the decoded message
func (a *App) RunSolve() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Tracker = cloud.NewResultTracker()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, source, err := a.readObservations(ctx)
	if err != nil {
		return err
	}
	log.Printf("Read %d observations from %s", len(obs), source)

	report, err := a.solveObservations(ctx, obs, source)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(a.Out, report.Text)
	_, _ = fmt.Fprintf(a.Out, "residual: %.6f (restart %d of %d, %d ms)\n",
		report.Residual, report.BestRestart, report.Settings.Restarts, report.DurationMs)

	if config.ReportPath != "" {
		if err := cloud.SaveReport(config.ReportPath, report); err != nil {
			return err
		}
		log.Printf("Saved report to %s", config.ReportPath)
	}

	if a.RenderFile != "" {
		result := &cloud.SolveResult{Matrix: report.Matrix, Transform: report.Transform}
		if err := cloud.RenderProjection(a.RenderFile, config.Render, obs, result, report.Text); err != nil {
			return err
		}
		log.Printf("Rendered projection to %s", a.RenderFile)
	}

	return nil
}

// RunSynthesize forges an observation dump for a known message
func (a *App) RunSynthesize() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(a.SynthSeed))
	translation := cloud.Vec3{
		rng.Float64()*200 - 100,
		rng.Float64()*200 - 100,
		rng.Float64()*200 - 100,
	}
	obs, transform := cloud.Synthesize(a.Synthesize, cloud.SynthConfig{
		Scale:       config.Solver.Scale,
		Translation: translation,
		Noise:       a.SynthNoise,
		RNG:         rng,
	})
	log.Printf("Synthesized %d observations (scale=%.3f, translation=%v, noise=%.3f)",
		len(obs), transform.Scale, transform.Translation, a.SynthNoise)

	text := cloud.FormatObservations(obs)
	if a.Output == "" {
		_, err := io.WriteString(a.Out, text)
		return err
	}

	if err := os.WriteFile(a.Output, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing observations: %w", err)
	}
	log.Printf("Wrote observations to %s", a.Output)
	return nil
}

// solveObservations runs the solver, records the outcome and publishes it
func (a *App) solveObservations(ctx context.Context, obs []cloud.Vec3, source string) (*cloud.SolveReport, error) {
	sc := a.Config.SolverConfig()
	sc.Verbose = a.Verbose

	start := time.Now()
	result, err := cloud.Solve(ctx, obs, sc)
	var report *cloud.SolveReport
	if err == nil {
		report, err = cloud.NewSolveReport(result, sc, source, time.Since(start))
	}

	if err != nil {
		a.Tracker.RecordFailure(err)
		if a.Publisher != nil {
			if perr := a.Publisher.PublishError(err); perr != nil {
				log.Printf("[MQTT] Error publishing failure: %v", perr)
			}
		}
		return nil, fmt.Errorf("solving %s: %w", source, err)
	}

	a.Tracker.Record(obs, report)
	if a.Publisher != nil {
		if err := a.Publisher.PublishReport(report); err != nil {
			log.Printf("[MQTT] Error publishing report: %v", err)
		}
	}
	return report, nil
}

// observationHandler queues parsed dumps for the worker, dropping them when
// the queue is full
func (a *App) observationHandler(jobs chan<- solveJob) cloud.ObservationHandler {
	return func(topic string, obs []cloud.Vec3, err error) {
		if err != nil {
			log.Printf("[MQTT] Ignoring payload on %s: %v", topic, err)
			a.Tracker.RecordFailure(err)
			return
		}

		select {
		case jobs <- solveJob{obs: obs, source: "mqtt:" + topic}:
			log.Printf("[MQTT] Queued %d observations from %s", len(obs), topic)
		default:
			log.Printf("[MQTT] Solver busy, dropping %d observations from %s", len(obs), topic)
		}
	}
}

// runWorker solves queued dumps one at a time until ctx is done
func (a *App) runWorker(ctx context.Context, jobs <-chan solveJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			report, err := a.solveObservations(ctx, job.obs, job.source)
			if err != nil {
				log.Printf("Solve failed: %v", err)
				continue
			}
			log.Printf("Solved %s: %s", job.source, report.Summary())
		}
	}
}

// RunService runs MQTT and/or HTTP until interrupted
func (a *App) RunService() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	a.Tracker = cloud.NewResultTrackerWithCache(config.ReportPath)
	if config.ReportPath != "" {
		log.Printf("Persisting reports to %s", config.ReportPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		jobs := make(chan solveJob, queueSize)

		mqttClient, err := cloud.InitMQTT(ctx, config, a.observationHandler(jobs))
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient

		a.Publisher = cloud.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		go a.runWorker(ctx, jobs)
		_, _ = fmt.Fprintln(a.Out, "MQTT report publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Tracker, config.Render, a.solveObservations),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	a.printServiceInfo(config)

	<-ctx.Done()

	_, _ = fmt.Fprintln(a.Out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
		cancel()
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	_, _ = fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

func (a *App) printServiceInfo(config *cloud.Config) {
	out := a.Out
	_, _ = fmt.Fprintln(out, "\nService Running")
	_, _ = fmt.Fprintln(out, "===============")

	if a.MqttMode {
		prefix := config.MQTT.PublishPrefix
		if prefix == "" {
			prefix = "cloudsnap"
		}
		_, _ = fmt.Fprintln(out, "\nMQTT:")
		_, _ = fmt.Fprintf(out, "  Subscribed topic: %s\n", config.MQTT.InputTopic)
		_, _ = fmt.Fprintf(out, "  Publishing to: %s/result, %s/text, %s/error\n", prefix, prefix, prefix)
	}

	if a.HttpMode {
		_, _ = fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		_, _ = fmt.Fprintln(out, "  GET  /health          - Health check and solve counters")
		_, _ = fmt.Fprintln(out, "  GET  /result          - Latest solve report (JSON)")
		_, _ = fmt.Fprintln(out, "  GET  /text            - Latest decoded message")
		_, _ = fmt.Fprintln(out, "  POST /solve           - Solve the observation dump in the body")
		_, _ = fmt.Fprintln(out, "  GET  /projection.svg  - Observations vs reconstruction")
		_, _ = fmt.Fprintln(out, "  GET  /projection.png  - Same, rasterized with caption")
	}

	_, _ = fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
