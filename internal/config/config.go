// Package config provides YAML configuration loading and validation for
// the benchmark CLI.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fanbench/fanbench/internal/loadgen"
)

// Duration wraps time.Duration so YAML values like "250ms" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root benchmark configuration.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Pool      PoolConfig      `yaml:"pool"`
	Substrate SubstrateConfig `yaml:"substrate"`
	Processor ProcessorConfig `yaml:"processor"`
	Load      LoadConfig      `yaml:"load"`
	Results   ResultsConfig   `yaml:"results"`
}

// ClientConfig shapes the simulated upstream.
type ClientConfig struct {
	BaseLatency Duration `yaml:"base_latency"`
	Jitter      Duration `yaml:"jitter"`
	FailureRate float64  `yaml:"failure_rate"`
}

// PoolConfig sizes the client handle pool.
type PoolConfig struct {
	Size           int      `yaml:"size"`
	AcquireTimeout Duration `yaml:"acquire_timeout"`
}

// SubstrateConfig sizes the two scheduling policies.
type SubstrateConfig struct {
	MinWorkers  int      `yaml:"min_workers"`
	MaxWorkers  int      `yaml:"max_workers"`
	QueueSize   int      `yaml:"queue_size"`
	IdleTimeout Duration `yaml:"idle_timeout"`
	MaxInFlight int      `yaml:"max_in_flight"`
}

// ProcessorConfig holds the fan-out timeouts.
type ProcessorConfig struct {
	FetchTimeout  Duration `yaml:"fetch_timeout"`
	BatchTimeout  Duration `yaml:"batch_timeout"`
	StrictPartial bool     `yaml:"strict_partial"`
}

// ProfileConfig is one load profile in the file.
type ProfileConfig struct {
	Name     string   `yaml:"name"`
	Users    int      `yaml:"users"`
	Duration Duration `yaml:"duration"`
	RampUp   Duration `yaml:"ramp_up"`
}

// LoadConfig shapes the load-test command.
type LoadConfig struct {
	UnitsPerUser int             `yaml:"units_per_user"`
	ThinkTimeMax Duration        `yaml:"think_time_max"`
	Profiles     []ProfileConfig `yaml:"profiles"`
}

// ResultsConfig controls result persistence.
type ResultsConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseLatency: Duration(5 * time.Millisecond),
			Jitter:      Duration(15 * time.Millisecond),
			FailureRate: 0.02,
		},
		Pool: PoolConfig{
			Size:           10,
			AcquireTimeout: Duration(5 * time.Second),
		},
		Substrate: SubstrateConfig{
			MinWorkers:  4,
			MaxWorkers:  32,
			QueueSize:   128,
			IdleTimeout: Duration(30 * time.Second),
			MaxInFlight: 0,
		},
		Processor: ProcessorConfig{
			FetchTimeout: Duration(2 * time.Second),
			BatchTimeout: Duration(10 * time.Second),
		},
		Load: LoadConfig{
			UnitsPerUser: 5,
			ThinkTimeMax: Duration(500 * time.Millisecond),
		},
		Results: ResultsConfig{Dir: "results"},
	}
}

// Load reads path, layers it over defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Profiles returns the configured load profiles, falling back to the
// built-in light/medium/heavy set.
func (c *Config) Profiles() []loadgen.Profile {
	if len(c.Load.Profiles) == 0 {
		return loadgen.BuiltinProfiles()
	}
	profiles := make([]loadgen.Profile, 0, len(c.Load.Profiles))
	for _, p := range c.Load.Profiles {
		profiles = append(profiles, loadgen.Profile{
			Name:     p.Name,
			Users:    p.Users,
			Duration: p.Duration.Std(),
			RampUp:   p.RampUp.Std(),
		})
	}
	return profiles
}

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field in one pass.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (e *ValidationErrors) add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// Validate checks every field and returns all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Client.FailureRate < 0 || c.Client.FailureRate > 1 {
		errs.add("client.failure_rate", "must be in [0,1]")
	}
	if c.Pool.Size <= 0 {
		errs.add("pool.size", "must be > 0")
	}
	if c.Substrate.MinWorkers <= 0 {
		errs.add("substrate.min_workers", "must be > 0")
	}
	if c.Substrate.MaxWorkers < c.Substrate.MinWorkers {
		errs.add("substrate.max_workers", "must be >= min_workers")
	}
	if c.Substrate.QueueSize <= 0 {
		errs.add("substrate.queue_size", "must be > 0")
	}
	if c.Processor.FetchTimeout.Std() <= 0 {
		errs.add("processor.fetch_timeout", "must be > 0")
	}
	if c.Processor.BatchTimeout.Std() <= c.Processor.FetchTimeout.Std() {
		errs.add("processor.batch_timeout", "must be longer than fetch_timeout")
	}
	if c.Load.UnitsPerUser <= 0 {
		errs.add("load.units_per_user", "must be > 0")
	}
	for i, p := range c.Load.Profiles {
		prefix := fmt.Sprintf("load.profiles[%d]", i)
		if p.Name == "" {
			errs.add(prefix+".name", "is required")
		}
		if p.Users <= 0 {
			errs.add(prefix+".users", "must be > 0")
		}
		if p.Duration.Std() <= 0 {
			errs.add(prefix+".duration", "must be > 0")
		}
		if p.RampUp.Std() < 0 || p.RampUp.Std() > p.Duration.Std() {
			errs.add(prefix+".ramp_up", "must be in [0, duration]")
		}
	}

	if len(errs.Errors) > 0 {
		return errs
	}
	return nil
}
