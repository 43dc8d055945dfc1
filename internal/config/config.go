package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retrievex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// BackendConfig holds index backend connection settings.
type BackendConfig struct {
	Driver           string   `yaml:"driver"` // redis (default)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	DocIndex         string   `yaml:"doc_index"`
	NodeIndex        string   `yaml:"node_index"`
	VectorDim        int      `yaml:"vector_dim"`
	TagFields        []string `yaml:"tag_fields"`
	NumericFields    []string `yaml:"numeric_fields"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	CacheEnabled     bool   `yaml:"cache_enabled"`
}

// ScoringConfig holds the model settings for re-ranking and distillation scoring.
type ScoringConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// PipelineConfig holds the orchestration policy knobs.
type PipelineConfig struct {
	RRFK               int     `yaml:"rrf_k"`
	RerankCandidateCap int     `yaml:"rerank_candidate_cap"`
	DistillThreshold   float64 `yaml:"distill_threshold"`
	SystematicPageSize int     `yaml:"systematic_page_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Backend.Driver == "" {
		c.Backend.Driver = "redis"
	}
	if c.Backend.DocIndex == "" {
		c.Backend.DocIndex = "idx:docs"
	}
	if c.Backend.NodeIndex == "" {
		c.Backend.NodeIndex = "idx:nodes"
	}
	if c.Backend.VectorDim <= 0 {
		c.Backend.VectorDim = 1536
	}
	if c.Backend.ReadinessTimeout <= 0 {
		c.Backend.ReadinessTimeout = 10
	}
	if c.Pipeline.RRFK <= 0 {
		c.Pipeline.RRFK = 60
	}
	if c.Pipeline.RerankCandidateCap <= 0 {
		c.Pipeline.RerankCandidateCap = 50
	}
	if c.Pipeline.DistillThreshold <= 0 {
		c.Pipeline.DistillThreshold = 0.4
	}
	if c.Pipeline.SystematicPageSize <= 0 {
		c.Pipeline.SystematicPageSize = 100
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 256
	}
	if c.Scoring.APIKey == "" {
		c.Scoring.APIKey = c.Embedding.APIKey
	}
	if c.Scoring.BaseURL == "" {
		c.Scoring.BaseURL = c.Embedding.BaseURL
	}
	if c.Scoring.Model == "" {
		c.Scoring.Model = c.Embedding.Model
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Backend.Addrs) == 0 {
		return fmt.Errorf("backend.addrs is required")
	}
	if c.Backend.Driver != "redis" {
		return fmt.Errorf("unknown backend.driver %q", c.Backend.Driver)
	}
	if c.Pipeline.DistillThreshold > 1 {
		return fmt.Errorf("pipeline.distill_threshold must be between 0 and 1, got %g",
			c.Pipeline.DistillThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
