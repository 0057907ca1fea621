// Package config loads and validates runtime configuration for the
// artifact distribution core: upload mode thresholds, chunk sizes,
// timeouts, progress cadence, and the object store adapter's connection
// settings (spec.md §6.4).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all artifact-core configuration.
type Config struct {
	Transfer TransferConfig `json:"transfer"`
	Progress ProgressConfig `json:"progress"`
	Session  SessionConfig  `json:"session"`
	Adapter  AdapterConfig  `json:"adapter"`
	Logging  LoggingConfig  `json:"logging"`
	RPCFront RPCFrontConfig `json:"rpc_front"`
}

// TransferConfig controls upload/download mode selection and chunk sizing.
type TransferConfig struct {
	MultipartThresholdBytes int64 `json:"multipart_threshold_bytes"`
	MaxChunkBytes           int64 `json:"max_chunk_bytes"`
	RecommendedChunkBytes   int64 `json:"recommended_chunk_bytes"`
	DownloadReadChunkBytes  int64 `json:"download_read_chunk_bytes"`
	MultipartMinPartBytes   int64 `json:"multipart_min_part_bytes"`
	MaxAccumulatedBytes     int64 `json:"max_accumulated_bytes"`
}

// ProgressConfig controls the progress registry's publication cadence and
// retention.
type ProgressConfig struct {
	CoalesceInterval         time.Duration `json:"progress_coalesce_interval"`
	RetentionAfterTerminal   time.Duration `json:"progress_retention_after_terminal"`
	SubscriberBufferCapacity int           `json:"subscriber_buffer_capacity"`
}

// SessionConfig controls the session store's idle-eviction policy.
type SessionConfig struct {
	IdleTimeout        time.Duration `json:"session_idle_timeout"`
	MaxConcurrentAggregateBytes int64 `json:"max_concurrent_aggregate_bytes"`
}

// AdapterConfig is opaque bucket/region/credential/endpoint configuration
// handed to the object store adapter; the core itself never interprets it.
type AdapterConfig struct {
	Backend         string            `json:"backend"`
	Bucket          string            `json:"bucket"`
	Endpoint        string            `json:"endpoint"`
	Region          string            `json:"region"`
	GatewayURL      string            `json:"gateway_url"`
	Credentials     map[string]string `json:"credentials,omitempty"`
	SignedURLMaxTTL time.Duration     `json:"signed_url_max_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
	File   string `json:"file"`
}

// RPCFrontConfig holds the HTTP transport binding configuration.
type RPCFrontConfig struct {
	ListenAddr  string `json:"listen_addr"`
	EnableH2C   bool   `json:"enable_h2c"`
	MaxInflight int    `json:"max_inflight_streams"`
}

// DefaultConfig returns a configuration with sensible defaults drawn from
// spec.md §6.4.
func DefaultConfig() *Config {
	return &Config{
		Transfer: TransferConfig{
			MultipartThresholdBytes: 5 * 1024 * 1024,
			MaxChunkBytes:           32 * 1024 * 1024,
			RecommendedChunkBytes:   256 * 1024,
			DownloadReadChunkBytes:  256 * 1024,
			MultipartMinPartBytes:   5 * 1024 * 1024,
			MaxAccumulatedBytes:     64 * 1024 * 1024,
		},
		Progress: ProgressConfig{
			CoalesceInterval:         500 * time.Millisecond,
			RetentionAfterTerminal:   120 * time.Second,
			SubscriberBufferCapacity: 16,
		},
		Session: SessionConfig{
			IdleTimeout:                 30 * time.Minute,
			MaxConcurrentAggregateBytes: 1024 * 1024 * 1024,
		},
		Adapter: AdapterConfig{
			Backend:         "memory",
			Bucket:          "artifacts",
			Endpoint:        "127.0.0.1:5001",
			GatewayURL:      "http://127.0.0.1:8080",
			SignedURLMaxTTL: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
		RPCFront: RPCFrontConfig{
			ListenAddr:  ":8843",
			EnableH2C:   true,
			MaxInflight: 256,
		},
	}
}

// LoadConfig loads configuration from file with environment variable
// overrides, the way pkg/infrastructure/config.LoadConfig does for the
// teacher's config surface.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("ARTIFACTCORE_MULTIPART_THRESHOLD_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Transfer.MultipartThresholdBytes = n
		}
	}
	if val := os.Getenv("ARTIFACTCORE_MAX_CHUNK_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Transfer.MaxChunkBytes = n
		}
	}
	if val := os.Getenv("ARTIFACTCORE_SESSION_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Session.IdleTimeout = d
		}
	}
	if val := os.Getenv("ARTIFACTCORE_PROGRESS_COALESCE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Progress.CoalesceInterval = d
		}
	}
	if val := os.Getenv("ARTIFACTCORE_PROGRESS_RETENTION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Progress.RetentionAfterTerminal = d
		}
	}
	if val := os.Getenv("ARTIFACTCORE_ADAPTER_BACKEND"); val != "" {
		c.Adapter.Backend = val
	}
	if val := os.Getenv("ARTIFACTCORE_ADAPTER_BUCKET"); val != "" {
		c.Adapter.Bucket = val
	}
	if val := os.Getenv("ARTIFACTCORE_ADAPTER_ENDPOINT"); val != "" {
		c.Adapter.Endpoint = val
	}
	if val := os.Getenv("ARTIFACTCORE_ADAPTER_GATEWAY_URL"); val != "" {
		c.Adapter.GatewayURL = val
	}
	if val := os.Getenv("ARTIFACTCORE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("ARTIFACTCORE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("ARTIFACTCORE_LISTEN_ADDR"); val != "" {
		c.RPCFront.ListenAddr = val
	}
	if val := os.Getenv("ARTIFACTCORE_ENABLE_H2C"); val != "" {
		c.RPCFront.EnableH2C = strings.ToLower(val) == "true"
	}
}

// Validate validates the configuration against the invariants of spec.md §5/§6.4.
func (c *Config) Validate() error {
	if c.Transfer.MultipartThresholdBytes <= 0 {
		return fmt.Errorf("multipart threshold must be positive")
	}
	if c.Transfer.MaxChunkBytes <= 0 {
		return fmt.Errorf("max chunk bytes must be positive")
	}
	if c.Transfer.RecommendedChunkBytes <= 0 || c.Transfer.RecommendedChunkBytes > c.Transfer.MaxChunkBytes {
		return fmt.Errorf("recommended chunk bytes must be positive and not exceed max chunk bytes")
	}
	if c.Transfer.MultipartMinPartBytes <= 0 {
		return fmt.Errorf("multipart min part bytes must be positive")
	}
	if c.Progress.SubscriberBufferCapacity < 16 {
		return fmt.Errorf("subscriber buffer capacity must be at least 16")
	}
	if c.Progress.RetentionAfterTerminal < 60*time.Second || c.Progress.RetentionAfterTerminal > 300*time.Second {
		return fmt.Errorf("progress retention after terminal must be between 60s and 300s")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Adapter.SignedURLMaxTTL <= 0 || c.Adapter.SignedURLMaxTTL > 7*24*time.Hour {
		return fmt.Errorf("signed url max ttl must be positive and no more than 7 days")
	}
	if c.Adapter.Bucket == "" {
		return fmt.Errorf("adapter bucket cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.RPCFront.ListenAddr == "" {
		return fmt.Errorf("rpc front listen address cannot be empty")
	}

	return nil
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".artifactcore", "config.json"), nil
}
