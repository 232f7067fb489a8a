package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadValidYAML(t *testing.T) {
	yamlContent := `
ring:
  virtual_nodes: 200
  hasher: "xxhash"

routing:
  strategy: "least_connections"
  affinity_sessions: 1000
  affinity_ttl_ms: 60000

breaker:
  failure_threshold: 3
  success_threshold: 1
  recovery_timeout: 10s

rate_limit:
  max_tokens: 50
  refill_per_sec: 5
  adaptive: true

failover:
  check_interval: 15s
  history_limit: 20

logging:
  level: "debug"
  format: "json"
`

	cfg, err := LoadFromReader(strings.NewReader(yamlContent))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Ring.VirtualNodes != 200 {
		t.Errorf("Expected virtual_nodes=200, got %d", cfg.Ring.VirtualNodes)
	}
	if cfg.Ring.Hasher != "xxhash" {
		t.Errorf("Expected hasher=xxhash, got %s", cfg.Ring.Hasher)
	}
	if cfg.Routing.Strategy != "least_connections" {
		t.Errorf("Expected strategy=least_connections, got %s", cfg.Routing.Strategy)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("Expected failure_threshold=3, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.RecoveryTimeout != 10*time.Second {
		t.Errorf("Expected recovery_timeout=10s, got %v", cfg.Breaker.RecoveryTimeout)
	}
	if cfg.RateLimit.MaxTokens != 50 {
		t.Errorf("Expected max_tokens=50, got %g", cfg.RateLimit.MaxTokens)
	}
	if !cfg.RateLimit.Adaptive {
		t.Error("Expected adaptive=true")
	}
	if cfg.Failover.CheckInterval != 15*time.Second {
		t.Errorf("Expected check_interval=15s, got %v", cfg.Failover.CheckInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("STEER_STRATEGY", "adaptive")
	t.Setenv("STEER_LEVEL", "warn")

	yamlContent := `
routing:
  strategy: "${STEER_STRATEGY}"
logging:
  level: "${STEER_LEVEL}"
`

	cfg, err := LoadFromReader(strings.NewReader(yamlContent))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cfg.Routing.Strategy != "adaptive" {
		t.Errorf("Expected strategy=adaptive, got %s", cfg.Routing.Strategy)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level=warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("ring: [not a mapping"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse config YAML") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/steer.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to open config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "steer.yaml")
	content := "routing:\n  strategy: round_robin\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Routing.Strategy != "round_robin" {
		t.Errorf("Expected strategy=round_robin, got %s", cfg.Routing.Strategy)
	}
}

func TestGetEffectiveStrategyDefault(t *testing.T) {
	t.Parallel()

	r := RoutingConfig{}
	if got := r.GetEffectiveStrategy(); got != StrategyWeightedRandom {
		t.Errorf("Expected weighted_random default, got %s", got)
	}

	r.Strategy = StrategyHashBased
	if got := r.GetEffectiveStrategy(); got != StrategyHashBased {
		t.Errorf("Expected hash, got %s", got)
	}
}

func TestOptionGetters(t *testing.T) {
	t.Parallel()

	ring := RingConfig{}
	if ring.GetVirtualNodesOption().IsPresent() {
		t.Error("Expected None for unset virtual_nodes")
	}
	ring.VirtualNodes = 64
	if v := ring.GetVirtualNodesOption().MustGet(); v != 64 {
		t.Errorf("Expected 64, got %d", v)
	}

	routing := RoutingConfig{AffinityTTLMS: 5000}
	ttl, ok := routing.GetAffinityTTLOption().Get()
	if !ok || ttl != 5*time.Second {
		t.Errorf("Expected 5s TTL, got %v (present=%v)", ttl, ok)
	}

	logging := LoggingConfig{}
	if logging.GetOutputOption().IsPresent() {
		t.Error("Expected None for stdout default")
	}
	logging.Output = "/var/log/steer.log"
	if out := logging.GetOutputOption().MustGet(); out != "/var/log/steer.log" {
		t.Errorf("Expected file path, got %s", out)
	}
}
