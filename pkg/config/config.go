package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata" // monitor.timezone must resolve on hosts without a zoneinfo database

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/scoring"
	"github.com/openfleet/openfleet/pkg/stores"
	"github.com/openfleet/openfleet/pkg/telemetry"
	"github.com/openfleet/openfleet/pkg/workers"
)

// EnvConfigPath names the environment variable consulted when no config path is given.
const EnvConfigPath = "OPENFLEET_CONFIG"

// Config is the application configuration.
type Config struct {
	Fleet          FleetConfig             `yaml:"fleet"`
	Scoring        scoring.Config          `yaml:"scoring"`
	Monitor        MonitorConfig           `yaml:"monitor"`
	Store          StoreConfig             `yaml:"store"`
	ServiceCenters []workers.ServiceCenter `yaml:"service_centers" validate:"min=1,dive"`
	Telemetry      telemetry.Config        `yaml:"telemetry"`
}

// FleetConfig locates the fleet dataset.
type FleetConfig struct {
	// DataFile is a YAML or JSON dataset. Empty means no vehicles are known.
	DataFile string `yaml:"data_file"`
}

// MonitorConfig tunes the behavior monitor and its policy sources.
type MonitorConfig struct {
	AnomalyCapacity  int `yaml:"anomaly_capacity" validate:"gt=0"`
	ActivityCapacity int `yaml:"activity_capacity" validate:"gt=0"`

	// Orchestrator is the actor allowed to drive workflows.
	Orchestrator string `yaml:"orchestrator" validate:"required"`

	// PolicyFile overrides the built-in actor policies.
	PolicyFile string `yaml:"policy_file"`

	// RulesDir holds advisory .rego rules.
	RulesDir string `yaml:"rules_dir"`

	// BuiltinRules enables the bundled advisory rules.
	BuiltinRules bool `yaml:"builtin_rules"`

	// WatchPolicies reloads PolicyFile and RulesDir when they change.
	WatchPolicies bool `yaml:"watch_policies"`

	// Timezone is the IANA zone used by the timing check. Empty means local time.
	Timezone string `yaml:"timezone"`

	// RecentAnomalies is how many anomalies the dashboard lists.
	RecentAnomalies int `yaml:"recent_anomalies" validate:"gte=0"`
}

// StoreConfig configures the SQLite archive.
type StoreConfig struct {
	Enabled bool `yaml:"enabled"`

	stores.Config `yaml:",inline"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tel := telemetry.DefaultConfig()
	tel.Metrics.Enabled = false

	return &Config{
		Scoring: scoring.DefaultConfig(),
		Monitor: MonitorConfig{
			AnomalyCapacity:  monitor.DefaultAnomalyCapacity,
			ActivityCapacity: activity.DefaultCapacity,
			Orchestrator:     policy.ActorOrchestrator,
			BuiltinRules:     true,
			RecentAnomalies:  10,
		},
		Store: StoreConfig{
			Config: stores.Config{
				Path:            "./data/openfleet.db",
				MaxOpenConns:    8,
				MaxIdleConns:    4,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		ServiceCenters: workers.DefaultServiceCenters(),
		Telemetry:      *tel,
	}
}

// Load reads path over the defaults and validates the result. An empty path
// falls back to $OPENFLEET_CONFIG, and with neither set the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML onto cfg and validates it. Sections absent from data keep
// the values already in cfg.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and means no overrides.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return faults.NewInvalidInputError("malformed config", err)
	}
	return cfg.Validate()
}

// Validate checks every section.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return faults.NewInvalidInputError("invalid config", err)
	}
	if _, err := c.Location(); err != nil {
		return faults.NewInvalidInputError("invalid monitor.timezone", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return faults.NewInvalidInputError("invalid telemetry config", err)
	}

	seen := make(map[string]bool, len(c.ServiceCenters))
	for _, sc := range c.ServiceCenters {
		if seen[sc.ID] {
			return faults.NewInvalidInputError("duplicate service center", nil).WithResource(sc.ID)
		}
		seen[sc.ID] = true
	}
	return nil
}

// Location resolves the monitor's time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Monitor.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Monitor.Timezone)
}

// PolicySources maps the monitor section to policy loader sources.
func (c *Config) PolicySources() policy.Sources {
	return policy.Sources{
		PolicyFile:   c.Monitor.PolicyFile,
		RulesDir:     c.Monitor.RulesDir,
		Orchestrator: c.Monitor.Orchestrator,
		BuiltinRules: c.Monitor.BuiltinRules,
	}
}
