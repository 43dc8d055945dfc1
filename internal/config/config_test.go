package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:    HTTPConfig{Port: 8080},
		Backend: BackendConfig{Driver: "redis", Addrs: []string{"localhost:6379"}},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		cfg := validConfig()
		cfg.HTTP.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("port %d: expected error", port)
		}
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Addrs = nil
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing addrs")
	}
	if !strings.Contains(err.Error(), "backend.addrs") {
		t.Errorf("error = %q", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Driver = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.DistillThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold > 1")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Driver = ""
	cfg.ApplyDefaults()

	if cfg.Backend.Driver != "redis" {
		t.Errorf("driver = %q", cfg.Backend.Driver)
	}
	if cfg.Backend.DocIndex != "idx:docs" || cfg.Backend.NodeIndex != "idx:nodes" {
		t.Errorf("indexes: %q %q", cfg.Backend.DocIndex, cfg.Backend.NodeIndex)
	}
	if cfg.Backend.VectorDim != 1536 {
		t.Errorf("vector_dim = %d", cfg.Backend.VectorDim)
	}
	if cfg.Pipeline.RRFK != 60 || cfg.Pipeline.RerankCandidateCap != 50 {
		t.Errorf("pipeline: rrf_k=%d cap=%d", cfg.Pipeline.RRFK, cfg.Pipeline.RerankCandidateCap)
	}
	if cfg.Pipeline.DistillThreshold != 0.4 || cfg.Pipeline.SystematicPageSize != 100 {
		t.Errorf("pipeline: threshold=%g page=%d",
			cfg.Pipeline.DistillThreshold, cfg.Pipeline.SystematicPageSize)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http timeouts: %d %d", cfg.HTTP.ReadTimeoutSec, cfg.HTTP.ShutdownSec)
	}
	if cfg.Audit.QueueSize != 256 {
		t.Errorf("audit queue = %d", cfg.Audit.QueueSize)
	}
}

func TestApplyDefaults_ScoringFallsBackToEmbedding(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding = EmbeddingConfig{APIKey: "k", BaseURL: "https://api.example.com/v1", Model: "m"}
	cfg.ApplyDefaults()

	if cfg.Scoring.APIKey != "k" || cfg.Scoring.BaseURL != "https://api.example.com/v1" || cfg.Scoring.Model != "m" {
		t.Errorf("scoring fallback: %+v", cfg.Scoring)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RX_TEST_KEY", "secret")

	out := string(expandEnvVars([]byte("api_key: ${RX_TEST_KEY}\nurl: ${RX_TEST_MISSING:-fallback}\n")))
	if !strings.Contains(out, "api_key: secret") {
		t.Errorf("substitution failed: %q", out)
	}
	if !strings.Contains(out, "url: fallback") {
		t.Errorf("default value failed: %q", out)
	}
}
