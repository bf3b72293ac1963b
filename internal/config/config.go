// Package config loads controller settings from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server is the storage-manager / traffic-control pair of one simulation
// server.
type Server struct {
	StorageManagerURL string
	TrafficControlURL string
}

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	LogLevel string

	// OpenTelemetry collector endpoint (gRPC)
	OTELEndpoint string

	// OperatorToken guards start/stop when set.
	OperatorToken string

	// Create-run limiter, per client address
	CreateRateLimit float64
	CreateRateBurst int

	// ZoneName selects the order dispatcher reported by /system/health.
	ZoneName string

	RequestTimeout time.Duration
	HealthTimeout  time.Duration

	// Scheduler timing
	TickInterval        time.Duration
	CheckInterval       time.Duration
	LayerFetchDelay     time.Duration
	SubmitDelay         time.Duration
	MaxInventoryRetries int

	// Servers by server number
	Servers map[int]Server
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"database_url":          "DATABASE_URL",
	"http_port":             "PORT",
	"log_level":             "LOG_LEVEL",
	"otel_endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"operator_token":        "OPERATOR_TOKEN",
	"create_rate_limit":     "CREATE_RATE_LIMIT",
	"create_rate_burst":     "CREATE_RATE_BURST",
	"zone_name":             "ZONE_NAME",
	"request_timeout":       "REQUEST_TIMEOUT",
	"health_timeout":        "HEALTH_TIMEOUT",
	"tick_interval":         "TICK_INTERVAL",
	"check_interval":        "CHECK_INTERVAL",
	"layer_fetch_delay":     "LAYER_FETCH_DELAY",
	"submit_delay":          "SUBMIT_DELAY",
	"max_inventory_retries": "MAX_INVENTORY_RETRIES",
	"sm_base_1":             "SM_BASE_1",
	"tc_base_1":             "TC_BASE_1",
	"sm_base_2":             "SM_BASE_2",
	"tc_base_2":             "TC_BASE_2",
}

// Load reads configuration from path (or ./mosaic.yaml when path is empty
// and the file exists), then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("create_rate_limit", 1.0)
	v.SetDefault("create_rate_burst", 3)
	v.SetDefault("zone_name", "Zone1")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("health_timeout", "1s")
	v.SetDefault("tick_interval", "500ms")
	v.SetDefault("check_interval", "1s")
	v.SetDefault("layer_fetch_delay", "1s")
	v.SetDefault("submit_delay", "1s")
	v.SetDefault("max_inventory_retries", 20)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("mosaic")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:   v.GetString("database_url"),
		LogLevel:      v.GetString("log_level"),
		OTELEndpoint:  v.GetString("otel_endpoint"),
		OperatorToken: v.GetString("operator_token"),
		ZoneName:      v.GetString("zone_name"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	var err error
	if cfg.HTTPPort, err = intValue(v, "http_port"); err != nil {
		return nil, err
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid http_port: %d out of range", cfg.HTTPPort)
	}
	if cfg.CreateRateLimit, err = floatValue(v, "create_rate_limit"); err != nil {
		return nil, err
	}
	if cfg.CreateRateBurst, err = intValue(v, "create_rate_burst"); err != nil {
		return nil, err
	}
	if cfg.MaxInventoryRetries, err = intValue(v, "max_inventory_retries"); err != nil {
		return nil, err
	}
	if cfg.MaxInventoryRetries < 1 {
		return nil, fmt.Errorf("invalid max_inventory_retries: must be at least 1")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"request_timeout", &cfg.RequestTimeout},
		{"health_timeout", &cfg.HealthTimeout},
		{"tick_interval", &cfg.TickInterval},
		{"check_interval", &cfg.CheckInterval},
		{"layer_fetch_delay", &cfg.LayerFetchDelay},
		{"submit_delay", &cfg.SubmitDelay},
	}
	for _, d := range durations {
		if *d.dst, err = durationValue(v, d.key); err != nil {
			return nil, err
		}
	}

	if cfg.Servers, err = servers(v); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ServerNumbers returns the configured server numbers in ascending order.
func (c *Config) ServerNumbers() []int {
	numbers := make([]int, 0, len(c.Servers))
	for n := range c.Servers {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatValue(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

// servers merges the "servers" map of the config file with the
// SM_BASE_n / TC_BASE_n variables of servers 1 and 2.
func servers(v *viper.Viper) (map[int]Server, error) {
	out := make(map[int]Server)

	for key, raw := range v.GetStringMap("servers") {
		n, err := strconv.Atoi(key)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid servers key %q: must be a positive server number", key)
		}
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid servers.%s: expected a mapping", key)
		}
		out[n] = Server{
			StorageManagerURL: stringField(fields, "sm_base_url"),
			TrafficControlURL: stringField(fields, "tc_base_url"),
		}
	}

	for _, n := range []int{1, 2} {
		s := out[n]
		if sm := v.GetString(fmt.Sprintf("sm_base_%d", n)); sm != "" {
			s.StorageManagerURL = sm
		}
		if tc := v.GetString(fmt.Sprintf("tc_base_%d", n)); tc != "" {
			s.TrafficControlURL = tc
		}
		if s.StorageManagerURL != "" || s.TrafficControlURL != "" {
			out[n] = s
		}
	}

	for n, s := range out {
		if s.StorageManagerURL == "" || s.TrafficControlURL == "" {
			return nil, fmt.Errorf("invalid server %d: both sm_base_url and tc_base_url are required", n)
		}
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
