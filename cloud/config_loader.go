package cloud

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Keys absent from the file keep the values
// from DefaultConfig.
type Config struct {
	Solver     SolverSettings `yaml:"solver" json:"solver"`
	Domain     Domain         `yaml:"domain" json:"domain"`
	Prefix     string         `yaml:"prefix,omitempty" json:"prefix,omitempty"` // Known plaintext prefix, laid row-major
	Anchors    []Anchor       `yaml:"anchors,omitempty" json:"anchors,omitempty"`
	MQTT       MQTTConfig     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Render     RenderConfig   `yaml:"render,omitempty" json:"render,omitempty"`
	ReportPath string         `yaml:"reportPath,omitempty" json:"reportPath,omitempty"`
}

// SolverSettings mirrors the tunable fields of SolverConfig
type SolverSettings struct {
	Scale        float64 `yaml:"scale" json:"scale"`
	Iterations   int     `yaml:"iterations" json:"iterations"`
	Restarts     int     `yaml:"restarts" json:"restarts"`
	Workers      int     `yaml:"workers,omitempty" json:"workers,omitempty"` // 0 = GOMAXPROCS
	Seed         int64   `yaml:"seed" json:"seed"`
	Jitter       int     `yaml:"jitter" json:"jitter"`
	Initial      int     `yaml:"initial" json:"initial"`
	UseMidpoint  bool    `yaml:"useMidpoint,omitempty" json:"useMidpoint,omitempty"`
	Polish       bool    `yaml:"polish" json:"polish"`
	PolishSweeps int     `yaml:"polishSweeps" json:"polishSweeps"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	InputTopic    string `yaml:"inputTopic,omitempty" json:"inputTopic,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls the projection plots
type RenderConfig struct {
	Plane      string  `yaml:"plane,omitempty" json:"plane,omitempty"`           // xy, xz or yz (default xy)
	Size       float64 `yaml:"size,omitempty" json:"size,omitempty"`             // Canvas edge in mm (default 160)
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // PNG DPI (default 150)
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	sc := DefaultSolverConfig()
	return &Config{
		Solver: SolverSettings{
			Scale:        sc.Scale,
			Iterations:   sc.Iterations,
			Restarts:     sc.Restarts,
			Seed:         sc.Seed,
			Jitter:       sc.Jitter,
			Initial:      sc.Initial,
			UseMidpoint:  sc.UseMidpoint,
			Polish:       sc.Polish,
			PolishSweeps: sc.PolishSweeps,
		},
		Domain: sc.Domain,
		MQTT: MQTTConfig{
			InputTopic:    "cloudsnap/observations",
			PublishPrefix: "cloudsnap",
			ClientID:      "cloudsnap",
		},
		Render: RenderConfig{
			Plane:      "xy",
			Size:       160,
			Resolution: 150,
		},
	}
}

// LoadConfig loads the configuration from a YAML file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the file-level fields and then the derived solver config
func (c *Config) Validate() error {
	if c.Domain.Min > c.Domain.Max {
		return fmt.Errorf("%w: domain.min %d > domain.max %d", ErrInvalidConfig, c.Domain.Min, c.Domain.Max)
	}
	for i, r := range c.Prefix {
		if !c.Domain.Contains(int(r)) {
			return fmt.Errorf("%w: prefix[%d] %q outside domain", ErrInvalidConfig, i, r)
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.InputTopic == "" {
		return fmt.Errorf("%w: mqtt.inputTopic is required when mqtt.broker is set", ErrInvalidConfig)
	}
	switch c.Render.Plane {
	case "", "xy", "xz", "yz":
	default:
		return fmt.Errorf("%w: render.plane %q must be xy, xz or yz", ErrInvalidConfig, c.Render.Plane)
	}
	if c.Render.Size < 0 || c.Render.Resolution < 0 {
		return fmt.Errorf("%w: render.size and render.resolution must not be negative", ErrInvalidConfig)
	}

	sc := c.SolverConfig()
	return sc.Validate()
}

// SolverConfig builds the solver configuration. Prefix anchors come first so
// explicit anchors override them cell by cell.
func (c *Config) SolverConfig() SolverConfig {
	sc := DefaultSolverConfig()
	sc.Scale = c.Solver.Scale
	sc.Iterations = c.Solver.Iterations
	sc.Restarts = c.Solver.Restarts
	if c.Solver.Workers > 0 {
		sc.Workers = c.Solver.Workers
	}
	sc.Seed = c.Solver.Seed
	sc.Jitter = c.Solver.Jitter
	sc.Initial = c.Solver.Initial
	sc.UseMidpoint = c.Solver.UseMidpoint
	sc.Polish = c.Solver.Polish
	sc.PolishSweeps = c.Solver.PolishSweeps
	sc.Domain = c.Domain
	sc.Anchors = MergeAnchors(AnchorsFromPrefix(c.Prefix), c.Anchors)
	return sc
}
