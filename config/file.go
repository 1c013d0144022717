package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSettings mirrors Settings with string durations so YAML files can use
// the usual "10ms"/"1s" forms.
type fileSettings struct {
	Environment string `yaml:"environment"`
	Runtime     struct {
		CycleTime     string `yaml:"cycleTime"`
		Deadline      string `yaml:"deadline"`
		QueueCapacity int    `yaml:"queueCapacity"`
	} `yaml:"runtime"`
	OPCUA     OPCUASettings     `yaml:"opcua"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Logging   LoggingSettings   `yaml:"logging"`
}

// LoadOrDefault reads the YAML file at path and merges it over the defaults.
// A missing file is not an error; the second return value reports whether the
// file was found.
func LoadOrDefault(path string) (Settings, bool, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read config %s: %w", path, err)
	}

	var file fileSettings
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, true, fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.Environment != "" {
		cfg.Environment = Environment(file.Environment)
	}
	if file.Runtime.CycleTime != "" {
		dur, err := time.ParseDuration(file.Runtime.CycleTime)
		if err != nil {
			return cfg, true, fmt.Errorf("parse config %s: runtime.cycleTime: %w", path, err)
		}
		cfg.Runtime.CycleTime = dur
	}
	if file.Runtime.Deadline != "" {
		dur, err := time.ParseDuration(file.Runtime.Deadline)
		if err != nil {
			return cfg, true, fmt.Errorf("parse config %s: runtime.deadline: %w", path, err)
		}
		cfg.Runtime.Deadline = dur
	}
	if file.Runtime.QueueCapacity > 0 {
		cfg.Runtime.QueueCapacity = file.Runtime.QueueCapacity
	}
	if file.OPCUA.Port > 0 {
		cfg.OPCUA.Port = file.OPCUA.Port
		cfg.OPCUA.Endpoint = fmt.Sprintf("opc.tcp://localhost:%d", file.OPCUA.Port)
	}
	if file.OPCUA.Endpoint != "" {
		cfg.OPCUA.Endpoint = file.OPCUA.Endpoint
	}
	if file.OPCUA.CertFile != "" {
		cfg.OPCUA.CertFile = file.OPCUA.CertFile
	}
	if file.OPCUA.KeyFile != "" {
		cfg.OPCUA.KeyFile = file.OPCUA.KeyFile
	}
	if file.OPCUA.ApplicationURI != "" {
		cfg.OPCUA.ApplicationURI = file.OPCUA.ApplicationURI
	}
	if file.Telemetry.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = file.Telemetry.OTLPEndpoint
	}
	if file.Telemetry.ServiceName != "" {
		cfg.Telemetry.ServiceName = file.Telemetry.ServiceName
	}
	if file.Logging.Level != "" {
		cfg.Logging.Level = file.Logging.Level
	}

	if err := cfg.Validate(); err != nil {
		return cfg, true, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, true, nil
}
