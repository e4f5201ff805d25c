package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

func TestFlattenConfig(t *testing.T) {
	body := []byte(`
lrt:
  variant: restaked
  program-id: 5Bb4XHR5QbQE8MHdQBCobPFbDJD2b1zowxut7kd25uhR
api_server:
  allowed origins:
    - http://localhost:3000
    - " "
    - http://127.0.0.1:3000
auditor:
  poll_interval: 2s
empty:
`)
	raw := make(map[string]any)
	if err := yaml.Unmarshal(body, &raw); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	got, err := flattenConfig(raw)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	want := map[string]string{
		"LRT_VARIANT":                "restaked",
		"LRT_PROGRAM_ID":             "5Bb4XHR5QbQE8MHdQBCobPFbDJD2b1zowxut7kd25uhR",
		"API_SERVER_ALLOWED_ORIGINS": "http://localhost:3000,http://127.0.0.1:3000",
		"AUDITOR_POLL_INTERVAL":      "2s",
	}
	if len(got) != len(want) {
		t.Fatalf("flattened %d keys, want %d: %v", len(got), len(want), got)
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("%s = %q, want %q", key, got[key], value)
		}
	}
}

func TestNormalizeKeySegment(t *testing.T) {
	cases := map[string]string{
		"poll_interval": "POLL_INTERVAL",
		"program-id":    "PROGRAM_ID",
		" Faucet Max ":  "FAUCET_MAX",
		"--":            "",
		"a..b":          "A_B",
	}
	for in, want := range cases {
		if got := normalizeKeySegment(in); got != want {
			t.Fatalf("normalizeKeySegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLocalnetConfigFromEnv(t *testing.T) {
	t.Setenv("LRT_VARIANT", "Restaked")
	t.Setenv("LRT_INPUT_DECIMALS", "6")
	t.Setenv("FAUCET_ENABLED", "false")

	cfg, err := LoadLocalnetConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Variant != "restaked" {
		t.Fatalf("variant = %q", cfg.Variant)
	}
	if cfg.InputDecimals != 6 {
		t.Fatalf("decimals = %d", cfg.InputDecimals)
	}
	if cfg.FaucetEnabled {
		t.Fatalf("faucet should be disabled")
	}
	if !cfg.LRTProgramID.Equals(defaultLRTProgramID) {
		t.Fatalf("program id = %s", cfg.LRTProgramID)
	}
}

func TestLoadLocalnetConfigRejectsUnknownVariant(t *testing.T) {
	t.Setenv("LRT_VARIANT", "leveraged")
	if _, err := LoadLocalnetConfig(); err == nil {
		t.Fatalf("expected variant error")
	}
}

func TestEnvAuthorityFromKeypairFile(t *testing.T) {
	wallet := solana.NewWallet()
	raw := make([]int, 0, len(wallet.PrivateKey))
	for _, b := range wallet.PrivateKey {
		raw = append(raw, int(b))
	}
	body, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "authority.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}
	t.Setenv("TEST_AUTHORITY_KEYPAIR_PATH", path)

	got, err := envAuthority("TEST_AUTHORITY", "TEST_AUTHORITY_KEYPAIR_PATH")
	if err != nil {
		t.Fatalf("envAuthority: %v", err)
	}
	if !got.Equals(wallet.PublicKey()) {
		t.Fatalf("authority = %s, want %s", got, wallet.PublicKey())
	}

	explicit := solana.NewWallet().PublicKey()
	t.Setenv("TEST_AUTHORITY", explicit.String())
	if got, err = envAuthority("TEST_AUTHORITY", "TEST_AUTHORITY_KEYPAIR_PATH"); err != nil || !got.Equals(explicit) {
		t.Fatalf("explicit authority = %s, %v", got, err)
	}
}

func TestEnvDurationRejectsNonPositive(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "0s")
	if _, err := envDuration("TEST_INTERVAL", time.Second); err == nil {
		t.Fatalf("expected error for zero duration")
	}
	t.Setenv("TEST_INTERVAL", "")
	if got, err := envDuration("TEST_INTERVAL", time.Second); err != nil || got != time.Second {
		t.Fatalf("fallback = %v, %v", got, err)
	}
}
