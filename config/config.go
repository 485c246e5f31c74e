// Copyright (c) 2025 BVK Chaitanya

// Package config loads gateway settings from the environment, an optional
// .env file and an optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bvk/marketgate/solana"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Error reports a missing or invalid configuration input.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field string, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Env holds the values read from environment variables.
type Env struct {
	RPCURL      string `env:"RPC_URL"`
	WSURL       string `env:"WS_URL"`
	KeypairPath string `env:"KEYPAIR_PATH"`
	ProgramID   string `env:"PROGRAM_ID"`
	RedisURL    string `env:"REDIS_URL"`
	FeeAccount  string `env:"FEE_ACCOUNT"`

	ListenIP string `env:"LISTEN_IP,default=127.0.0.1"`
	Port     int    `env:"PORT,default=3332"`

	ImageAPIRoot string `env:"IMAGE_API_ROOT"`
	DraftAPIURL  string `env:"DRAFT_API_URL"`
	DraftAPIKey  string `env:"DRAFT_API_KEY"`

	RPCTimeout     time.Duration `env:"RPC_TIMEOUT,default=30s"`
	RPCRate        float64       `env:"RPC_RATE,default=10"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT,default=0s"`

	RateLimitByClient bool `env:"RATE_LIMIT_BY_CLIENT,default=false"`

	PolicyFile string `env:"POLICY_FILE"`
}

// Config is the validated gateway configuration.
type Config struct {
	Env    Env
	Policy Policy

	Authority  *solana.Keypair
	ProgramID  solana.PublicKey
	FeeAccount solana.PublicKey

	// Redis is nil when the in-memory store is selected.
	Redis *redis.Options

	// BotPattern is nil when bot detection is disabled.
	BotPattern *regexp.Regexp
}

// LoadEnvFile loads variables from the named file in the current directory
// or its closest parent that has it. Variables already set in the process
// environment are kept. A missing file is not an error.
func LoadEnvFile(filename string) error {
	if filename == "" {
		return nil
	}
	if filepath.IsAbs(filename) {
		if err := godotenv.Load(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &Error{Field: "env file", Err: err}
		}
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	for last, dir := "", cwd; dir != last; last, dir = dir, filepath.Dir(dir) {
		fpath := filepath.Join(dir, filename)
		if _, err := os.Stat(fpath); err != nil {
			continue
		}
		if err := godotenv.Load(fpath); err != nil {
			return &Error{Field: "env file", Err: err}
		}
		return nil
	}
	return nil
}

// Load reads the environment (after an optional .env file) and the policy
// file it names, and validates everything.
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	c := new(Config)
	if err := envdecode.Decode(&c.Env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, &Error{Field: "environment", Err: err}
	}

	if c.Env.PolicyFile != "" {
		p, err := LoadPolicy(c.Env.PolicyFile)
		if err != nil {
			return nil, err
		}
		c.Policy = *p
	}
	c.Policy.setDefaults()

	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) resolve() error {
	if err := c.Env.Check(); err != nil {
		return err
	}
	if err := c.Policy.Check(); err != nil {
		return err
	}

	kp, err := solana.LoadKeypair(c.Env.KeypairPath)
	if err != nil {
		return &Error{Field: "KEYPAIR_PATH", Err: err}
	}
	c.Authority = kp

	if c.ProgramID, err = solana.ParsePublicKey(c.Env.ProgramID); err != nil {
		return &Error{Field: "PROGRAM_ID", Err: err}
	}
	if c.FeeAccount, err = solana.ParsePublicKey(c.Env.FeeAccount); err != nil {
		return &Error{Field: "FEE_ACCOUNT", Err: err}
	}

	if c.Env.RedisURL != MemoryStoreURL {
		if c.Redis, err = redis.ParseURL(c.Env.RedisURL); err != nil {
			return &Error{Field: "REDIS_URL", Err: err}
		}
	}

	if p := *c.Policy.Errors.BotPattern; p != "" {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return &Error{Field: "errors.botPattern", Err: err}
		}
		c.BotPattern = re
	}
	return nil
}

// MemoryStoreURL selects the process-local cache and rate limit stores.
const MemoryStoreURL = "memory://"

// Check validates the raw environment values.
func (v *Env) Check() error {
	required := []struct{ name, value string }{
		{"RPC_URL", v.RPCURL},
		{"KEYPAIR_PATH", v.KeypairPath},
		{"PROGRAM_ID", v.ProgramID},
		{"REDIS_URL", v.RedisURL},
		{"FEE_ACCOUNT", v.FeeAccount},
	}
	for _, r := range required {
		if r.value == "" {
			return fieldError(r.name, "environment variable is not set")
		}
	}
	if err := checkHTTPURL(v.RPCURL); err != nil {
		return &Error{Field: "RPC_URL", Err: err}
	}
	if v.WSURL != "" {
		u, err := url.Parse(v.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fieldError("WS_URL", "must be an absolute ws or wss url (got %q)", v.WSURL)
		}
	}
	if v.ImageAPIRoot != "" {
		if err := checkHTTPURL(v.ImageAPIRoot); err != nil {
			return &Error{Field: "IMAGE_API_ROOT", Err: err}
		}
	}
	if v.DraftAPIURL != "" {
		if err := checkHTTPURL(v.DraftAPIURL); err != nil {
			return &Error{Field: "DRAFT_API_URL", Err: err}
		}
	}
	if v.Port <= 0 || v.Port > 65535 {
		return fieldError("PORT", "must be a valid port number (got %d)", v.Port)
	}
	if v.RPCTimeout <= 0 {
		return fieldError("RPC_TIMEOUT", "must be positive")
	}
	if v.RPCRate <= 0 {
		return fieldError("RPC_RATE", "must be positive")
	}
	if v.ConfirmTimeout < 0 {
		return fieldError("CONFIRM_TIMEOUT", "cannot be negative")
	}
	return nil
}

// WebsocketURL returns the configured websocket endpoint or the one derived
// from the rpc url.
func (v *Env) WebsocketURL() (string, error) {
	if v.WSURL != "" {
		return v.WSURL, nil
	}
	return solana.WebsocketURL(v.RPCURL)
}

func checkHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http or https url (got %q)", s)
	}
	return nil
}
