// Package config provides configuration management for Mission Control.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Mission Control.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Events        EventsConfig        `mapstructure:"events"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace isolates queue-group subscribers across deployments/instances.
	Namespace string `mapstructure:"namespace"`
	// IngressSubject is the subject/queue name the dispatcher listens on.
	IngressSubject string `mapstructure:"ingressSubject"`
}

// AuthConfig holds authentication configuration for verifying inbound bearer tokens.
type AuthConfig struct {
	// JWTPublicKeyPath, when set, enables local verification of RSA-signed tokens
	// (an RSA public key in PEM form; EC keys are not supported).
	JWTPublicKeyPath string `mapstructure:"jwtPublicKeyPath"`
	// VerifyURL is used as the sole verification mechanism when no local key is
	// configured, and as a fallback whenever local verification fails for any reason.
	VerifyURL string `mapstructure:"verifyUrl"`
	// RequestTimeout bounds the fallback verify-endpoint call, in seconds.
	RequestTimeout int `mapstructure:"requestTimeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TelemetryConfig controls the telemetry aggregator's tick cadence and fan-out timeouts.
type TelemetryConfig struct {
	TickInterval   int `mapstructure:"tickInterval"`   // in seconds, default 5
	CollectTimeout int `mapstructure:"collectTimeout"` // deadline for one mission's collect-and-publish round (including any reflection it triggers), in seconds
}

// CollaboratorsConfig holds the base URLs of every external collaborator Mission
// Control calls out to. Mission Control never talks to a database or a message
// broker belonging to these systems directly; it only ever calls their typed
// HTTP APIs through internal/client.
type CollaboratorsConfig struct {
	PostOfficeURL          string `mapstructure:"postOfficeUrl"`
	LibrarianURL           string `mapstructure:"librarianUrl"`
	TrafficManagerURL      string `mapstructure:"trafficManagerUrl"`
	BrainURL               string `mapstructure:"brainUrl"`
	EngineerURL            string `mapstructure:"engineerUrl"`
	CapabilitiesManagerURL string `mapstructure:"capabilitiesManagerUrl"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TickIntervalDuration returns the aggregator tick interval as a time.Duration.
func (t *TelemetryConfig) TickIntervalDuration() time.Duration {
	return time.Duration(t.TickInterval) * time.Second
}

// CollectTimeoutDuration returns the per-collaborator collection timeout.
func (t *TelemetryConfig) CollectTimeoutDuration() time.Duration {
	return time.Duration(t.CollectTimeout) * time.Second
}

// RequestTimeoutDuration returns the verify-endpoint call timeout.
func (a *AuthConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("MISSIONCTL_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use the in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "missioncontrol-cluster")
	v.SetDefault("nats.clientId", "mission-control")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")
	v.SetDefault("events.ingressSubject", "mission-control.ingress")

	v.SetDefault("auth.jwtPublicKeyPath", "")
	v.SetDefault("auth.verifyUrl", "")
	v.SetDefault("auth.requestTimeout", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("telemetry.tickInterval", 5)
	v.SetDefault("telemetry.collectTimeout", 4)

	v.SetDefault("collaborators.postOfficeUrl", "http://postoffice:5020")
	v.SetDefault("collaborators.librarianUrl", "http://librarian:5040")
	v.SetDefault("collaborators.trafficManagerUrl", "http://trafficmanager:5080")
	v.SetDefault("collaborators.brainUrl", "http://brain:5070")
	v.SetDefault("collaborators.engineerUrl", "http://engineer:5050")
	v.SetDefault("collaborators.capabilitiesManagerUrl", "http://capabilitiesmanager:5060")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix MISSIONCTL_ and the upper-cased key with
// dots replaced by underscores (server.port -> MISSIONCTL_SERVER_PORT); camelCase
// keys are not split (server.readTimeout -> MISSIONCTL_SERVER_READTIMEOUT) except
// for the explicit bindings in LoadWithPath.
// Config file should be named config.yaml and placed in the current directory or /etc/missioncontrol/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MISSIONCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for env vars whose SNAKE_CASE form does not match the
	// camelCase config key (AutomaticEnv only handles the dotted-path case).
	_ = v.BindEnv("telemetry.tickInterval", "MISSIONCTL_TELEMETRY_TICK_INTERVAL")
	_ = v.BindEnv("events.ingressSubject", "MISSIONCTL_EVENTS_INGRESS_SUBJECT")
	_ = v.BindEnv("logging.level", "MISSIONCTL_LOG_LEVEL")
	_ = v.BindEnv("auth.jwtPublicKeyPath", "MISSIONCTL_AUTH_JWT_PUBLIC_KEY_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/missioncontrol/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Auth.JWTPublicKeyPath == "" && cfg.Auth.VerifyURL == "" {
		errs = append(errs, "one of auth.jwtPublicKeyPath or auth.verifyUrl must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Telemetry.TickInterval <= 0 {
		errs = append(errs, "telemetry.tickInterval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
