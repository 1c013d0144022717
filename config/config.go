// Package config centralises runtime configuration for the fbflow runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where fbflow operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// DefaultOPCUAPort is the standard OPC UA TCP port.
const DefaultOPCUAPort = 4840

// RuntimeSettings sizes the event-chain execution engine.
type RuntimeSettings struct {
	CycleTime     time.Duration `yaml:"cycleTime"`
	Deadline      time.Duration `yaml:"deadline"`
	QueueCapacity int           `yaml:"queueCapacity"`
}

// OPCUASettings configures the bridge's server and its loopback client.
type OPCUASettings struct {
	Port           int    `yaml:"port"`
	Endpoint       string `yaml:"endpoint"`
	CertFile       string `yaml:"certFile"`
	KeyFile        string `yaml:"keyFile"`
	ApplicationURI string `yaml:"applicationURI"`
}

// TelemetrySettings configures metric export.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// LoggingSettings configures the structured logging backend.
type LoggingSettings struct {
	Level string `yaml:"level"`
}

// Settings contains the fbflow configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment Environment       `yaml:"environment"`
	Runtime     RuntimeSettings   `yaml:"runtime"`
	OPCUA       OPCUASettings     `yaml:"opcua"`
	Telemetry   TelemetrySettings `yaml:"telemetry"`
	Logging     LoggingSettings   `yaml:"logging"`
}

// Default returns the default fbflow configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Runtime: RuntimeSettings{
			CycleTime:     10 * time.Millisecond,
			Deadline:      0,
			QueueCapacity: 256,
		},
		OPCUA: OPCUASettings{
			Port:           DefaultOPCUAPort,
			Endpoint:       fmt.Sprintf("opc.tcp://localhost:%d", DefaultOPCUAPort),
			CertFile:       "pki/server.crt",
			KeyFile:        "pki/server.key",
			ApplicationURI: "urn:fbflow:runtime",
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: "",
			ServiceName:  "fbflow",
		},
		Logging: LoggingSettings{
			Level: "info",
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("FBFLOW_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_CYCLE_TIME")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.Runtime.CycleTime = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_DEADLINE")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur >= 0 {
			cfg.Runtime.Deadline = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_QUEUE_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Runtime.QueueCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_OPCUA_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
			cfg.OPCUA.Port = n
			cfg.OPCUA.Endpoint = fmt.Sprintf("opc.tcp://localhost:%d", n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_OPCUA_ENDPOINT")); v != "" {
		cfg.OPCUA.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("FBFLOW_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithCycleTime overrides the engine cycle period.
func WithCycleTime(d time.Duration) Option {
	return func(s *Settings) {
		if d > 0 {
			s.Runtime.CycleTime = d
		}
	}
}

// WithDeadline overrides the per-cycle deadline.
func WithDeadline(d time.Duration) Option {
	return func(s *Settings) {
		if d >= 0 {
			s.Runtime.Deadline = d
		}
	}
}

// WithQueueCapacity overrides the event queue capacity.
func WithQueueCapacity(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Runtime.QueueCapacity = n
		}
	}
}

// WithOPCUAPort overrides the server port and realigns the loopback endpoint.
func WithOPCUAPort(port int) Option {
	return func(s *Settings) {
		if port > 0 && port < 65536 {
			s.OPCUA.Port = port
			s.OPCUA.Endpoint = fmt.Sprintf("opc.tcp://localhost:%d", port)
		}
	}
}

// Validate checks the settings for values the runtime cannot operate with.
func (s Settings) Validate() error {
	if s.Runtime.CycleTime <= 0 {
		return fmt.Errorf("runtime.cycleTime must be positive, got %s", s.Runtime.CycleTime)
	}
	if s.Runtime.Deadline < 0 {
		return fmt.Errorf("runtime.deadline must not be negative, got %s", s.Runtime.Deadline)
	}
	if s.Runtime.QueueCapacity <= 0 {
		return fmt.Errorf("runtime.queueCapacity must be positive, got %d", s.Runtime.QueueCapacity)
	}
	if s.OPCUA.Port <= 0 || s.OPCUA.Port >= 65536 {
		return fmt.Errorf("opcua.port out of range: %d", s.OPCUA.Port)
	}
	if !strings.HasPrefix(s.OPCUA.Endpoint, "opc.tcp://") {
		return fmt.Errorf("opcua.endpoint must use the opc.tcp scheme, got %q", s.OPCUA.Endpoint)
	}
	return nil
}
