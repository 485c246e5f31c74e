// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bvk/marketgate/solana"
)

func writeKeypair(t *testing.T, dir string) (string, *solana.Keypair) {
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(kp)
	if err != nil {
		t.Fatal(err)
	}
	fpath := filepath.Join(dir, "id.json")
	if err := os.WriteFile(fpath, data, 0600); err != nil {
		t.Fatal(err)
	}
	return fpath, kp
}

func setBaseEnv(t *testing.T) *solana.Keypair {
	dir := t.TempDir()
	keyfile, kp := writeKeypair(t, dir)

	t.Setenv("RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("KEYPAIR_PATH", keyfile)
	t.Setenv("PROGRAM_ID", solana.PublicKey{9}.String())
	t.Setenv("REDIS_URL", "memory://")
	t.Setenv("FEE_ACCOUNT", solana.PublicKey{8}.String())
	for _, name := range []string{"WS_URL", "POLICY_FILE", "PORT", "LISTEN_IP", "RPC_TIMEOUT", "RPC_RATE",
		"CONFIRM_TIMEOUT", "IMAGE_API_ROOT", "DRAFT_API_URL", "DRAFT_API_KEY", "RATE_LIMIT_BY_CLIENT"} {
		unsetenv(t, name)
	}
	return kp
}

func unsetenv(t *testing.T, name string) {
	t.Setenv(name, "")
	os.Unsetenv(name)
}

func TestLoad(t *testing.T) {
	kp := setBaseEnv(t)

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Authority.PublicKey() != kp.PublicKey() {
		t.Fatalf("want authority %s, got %s", kp.PublicKey(), c.Authority.PublicKey())
	}
	if c.ProgramID != (solana.PublicKey{9}) || c.FeeAccount != (solana.PublicKey{8}) {
		t.Fatalf("unexpected program or fee account")
	}
	if c.Env.Port != 3332 || c.Env.ListenIP != "127.0.0.1" {
		t.Fatalf("want default listen address, got %s:%d", c.Env.ListenIP, c.Env.Port)
	}
	if c.Env.RPCTimeout != 30*time.Second {
		t.Fatalf("want default rpc timeout, got %s", c.Env.RPCTimeout)
	}
	if c.Redis != nil {
		t.Fatalf("want in-memory store for memory:// url")
	}
	if c.Policy.RateLimit.Window != time.Hour || c.Policy.RateLimit.Max != 100 {
		t.Fatalf("unexpected default rate limit %+v", c.Policy.RateLimit)
	}
	if c.Policy.Cache.Invalidation != InvalidateTTL {
		t.Fatalf("want ttl invalidation, got %q", c.Policy.Cache.Invalidation)
	}
	if c.BotPattern == nil || !c.BotPattern.MatchString("Googlebot/2.1") {
		t.Fatalf("want default bot pattern to match crawlers")
	}
	ws, err := c.Env.WebsocketURL()
	if err != nil {
		t.Fatal(err)
	}
	if ws != "ws://127.0.0.1:8899" {
		t.Fatalf("want derived websocket url, got %q", ws)
	}
}

func TestLoadMissing(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PROGRAM_ID", "")

	_, err := Load("")
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %v", err)
	}
	if cerr.Field != "PROGRAM_ID" {
		t.Fatalf("want PROGRAM_ID field, got %q", cerr.Field)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, value, field string
	}{
		{"PROGRAM_ID", "not-a-key", "PROGRAM_ID"},
		{"FEE_ACCOUNT", "0OIl", "FEE_ACCOUNT"},
		{"RPC_URL", "localhost:8899", "RPC_URL"},
		{"KEYPAIR_PATH", "/does/not/exist.json", "KEYPAIR_PATH"},
		{"REDIS_URL", "postgres://x", "REDIS_URL"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(test.name, test.value)

			_, err := Load("")
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("want *config.Error, got %v", err)
			}
			if cerr.Field != test.field {
				t.Fatalf("want field %q, got %q (%v)", test.field, cerr.Field, err)
			}
		})
	}
}

func TestPolicyFile(t *testing.T) {
	setBaseEnv(t)

	fpath := filepath.Join(t.TempDir(), "policy.yaml")
	policy := `
rateLimit:
  window: 1m
  max: 5
  byClient: true
cache:
  marketStateTTL: 3s
  invalidation: write
errors:
  botPattern: ""
bodyLimit: 2048
`
	if err := os.WriteFile(fpath, []byte(policy), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLICY_FILE", fpath)

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	p := c.Policy
	if p.RateLimit.Window != time.Minute || p.RateLimit.Max != 5 || !p.RateLimit.ByClient {
		t.Fatalf("unexpected rate limit policy %+v", p.RateLimit)
	}
	if p.Cache.MarketStateTTL != 3*time.Second || p.Cache.MetadataTTL != time.Hour {
		t.Fatalf("unexpected cache policy %+v", p.Cache)
	}
	if p.Cache.Invalidation != InvalidateWrite {
		t.Fatalf("want write invalidation, got %q", p.Cache.Invalidation)
	}
	if c.BotPattern != nil {
		t.Fatalf("want bot detection disabled by empty pattern")
	}
	if p.BodyLimit != 2048 {
		t.Fatalf("want body limit 2048, got %d", p.BodyLimit)
	}
}

func TestPolicyRejects(t *testing.T) {
	tests := map[string]string{
		"unknown invalidation": "cache:\n  invalidation: never\n",
		"unknown key":          "cache:\n  ttl: 5s\n",
		"bad pattern":          "errors:\n  botPattern: \"(\"\n",
	}
	for name, policy := range tests {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			fpath := filepath.Join(t.TempDir(), "policy.yaml")
			if err := os.WriteFile(fpath, []byte(policy), 0644); err != nil {
				t.Fatal(err)
			}
			t.Setenv("POLICY_FILE", fpath)

			_, err := Load("")
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("want *config.Error, got %v", err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, ".env")
	if err := os.WriteFile(fpath, []byte("MARKETGATE_TEST_VALUE=from-file\nMARKETGATE_TEST_KEPT=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MARKETGATE_TEST_KEPT", "from-env")
	unsetenv(t, "MARKETGATE_TEST_VALUE")

	if err := LoadEnvFile(fpath); err != nil {
		t.Fatal(err)
	}
	if v := os.Getenv("MARKETGATE_TEST_VALUE"); v != "from-file" {
		t.Fatalf("want value from file, got %q", v)
	}
	if v := os.Getenv("MARKETGATE_TEST_KEPT"); v != "from-env" {
		t.Fatalf("want existing variable kept, got %q", v)
	}
	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("want missing env file ignored, got %v", err)
	}
}
