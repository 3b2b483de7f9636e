package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/cloudsnap/cloud"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile string
	Input      string
	URL        string
	ReportFile string
	RenderFile string

	// Solver overrides, applied only when the flag was given
	Scale      float64
	Iterations int
	Restarts   int
	Workers    int
	Seed       int64
	Jitter     int
	MinCode    int
	MaxCode    int
	Anchors    string
	Prefix     string
	NoPolish   bool

	// Synthesize mode
	Synthesize string
	Output     string
	SynthSeed  int64
	SynthNoise float64

	MqttMode bool
	HttpMode bool
	HttpPort int
	Verbose  bool

	// Explicit holds the names of the flags present on the command line
	Explicit map[string]bool
}

// AppRunner is the surface of App driven by the command line
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunSolve() error
	RunSynthesize() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer, app AppRunner) error {
	defaults := cloud.DefaultSolverConfig()

	fs := flag.NewFlagSet("cloudsnap", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to YAML configuration file (optional)")
	fs.StringVar(&opts.Input, "input", "", "Observation file to solve, or - for stdin")
	fs.StringVar(&opts.URL, "url", "", "Fetch observations from this URL")
	fs.StringVar(&opts.ReportFile, "report", "", "Write the JSON solve report to this file")
	fs.StringVar(&opts.RenderFile, "render", "", "Write a projection plot (.svg or .png)")

	fs.Float64Var(&opts.Scale, "scale", defaults.Scale, "Known scale factor s")
	fs.IntVar(&opts.Iterations, "iterations", defaults.Iterations, "Alternating iterations per restart")
	fs.IntVar(&opts.Restarts, "restarts", defaults.Restarts, "Number of independent restarts")
	fs.IntVar(&opts.Workers, "workers", 0, "Concurrent restarts (0 = GOMAXPROCS)")
	fs.Int64Var(&opts.Seed, "seed", defaults.Seed, "Base seed for restart jitter and rotations")
	fs.IntVar(&opts.Jitter, "jitter", defaults.Jitter, "Initial guess jitter for restarts after the first")
	fs.IntVar(&opts.MinCode, "min-code", defaults.Domain.Min, "Smallest admissible code point")
	fs.IntVar(&opts.MaxCode, "max-code", defaults.Domain.Max, "Largest admissible code point")
	fs.StringVar(&opts.Anchors, "anchors", "", "Pinned cells: R:C=V or R:C='c', comma separated")
	fs.StringVar(&opts.Prefix, "prefix", "", "Known plaintext prefix, anchored row-major (e.g. ictf{)")
	fs.BoolVar(&opts.NoPolish, "no-polish", false, "Skip the coordinate descent polish phase")

	fs.StringVar(&opts.Synthesize, "synthesize", "", "Forge observations for TEXT and exit")
	fs.StringVar(&opts.Output, "output", "", "Output file for --synthesize (default stdout)")
	fs.Int64Var(&opts.SynthSeed, "synth-seed", 1, "Seed for the forged rotation and translation")
	fs.Float64Var(&opts.SynthNoise, "synth-noise", 0, "Gaussian noise added to forged observations")

	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (solve every observation dump)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Log per-restart progress")

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts.Explicit = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.Explicit[f.Name] = true })

	app.ApplyOptions(opts)

	switch {
	case opts.Synthesize != "":
		return app.RunSynthesize()
	case opts.MqttMode || opts.HttpMode:
		_, _ = fmt.Fprintf(out, "cloudsnap version: %s\n", Version)
		return app.RunService()
	case opts.Input != "" || opts.URL != "":
		return app.RunSolve()
	}

	_, _ = fmt.Fprintf(out, "cloudsnap version: %s\n", Version)
	_, _ = fmt.Fprintln(out, "Nothing to do.")
	_, _ = fmt.Fprintln(out, "Use --input FILE (or - for stdin) or --url URL to solve an observation dump")
	_, _ = fmt.Fprintln(out, "Use --synthesize TEXT to forge observations for a known message")
	_, _ = fmt.Fprintln(out, "Use --mqtt to solve observations published on the input topic")
	_, _ = fmt.Fprintln(out, "Use --http to serve results and accept POST /solve")
	_, _ = fmt.Fprintln(out, "\nConfiguration:")
	_, _ = fmt.Fprintln(out, "  --config FILE - YAML solver, anchor, MQTT and render settings")
	_, _ = fmt.Fprintln(out, "  Flags override values from the file")
	return nil
}
