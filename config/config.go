// Package config loads facetrouted configuration from a TOML file with
// FACETROUTE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/logging"
	"github.com/blockberries/facetroute/merkle"
)

// Config is the daemon configuration.
type Config struct {
	GRPCAddr string `toml:"grpc_addr" env:"FACETROUTE_GRPC_ADDR"`
	HTTPAddr string `toml:"http_addr" env:"FACETROUTE_HTTP_ADDR"`

	// StorePath is the sqlite database file. Empty keeps state in memory.
	StorePath string `toml:"store_path" env:"FACETROUTE_STORE_PATH"`

	Hasher   string        `toml:"hasher" env:"FACETROUTE_HASHER"`
	MinDelay time.Duration `toml:"min_delay" env:"FACETROUTE_MIN_DELAY"`

	Governance []string `toml:"governance" env:"FACETROUTE_GOVERNANCE" envSeparator:","`
	Guardians  []string `toml:"guardians" env:"FACETROUTE_GUARDIANS" envSeparator:","`

	TokenSecret string `toml:"token_secret" env:"FACETROUTE_TOKEN_SECRET"`
	TokenIssuer string `toml:"token_issuer" env:"FACETROUTE_TOKEN_ISSUER"`

	LogLevel    string `toml:"log_level" env:"FACETROUTE_LOG_LEVEL"`
	ServiceName string `toml:"service_name" env:"FACETROUTE_SERVICE_NAME"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		GRPCAddr:    "127.0.0.1:9650",
		HTTPAddr:    "127.0.0.1:9651",
		Hasher:      merkle.Default().Name(),
		MinDelay:    48 * time.Hour,
		TokenIssuer: "facetroute",
		LogLevel:    "info",
		ServiceName: "facetrouted",
	}
}

// Load reads path (if non-empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, envMap(os.Environ()))
}

// LoadWith is Load with an explicit environment.
func LoadWith(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.GRPCAddr = strings.TrimSpace(c.GRPCAddr)
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.StorePath = strings.TrimSpace(c.StorePath)
	c.Hasher = strings.ToLower(strings.TrimSpace(c.Hasher))
	c.Governance = normalizeList(c.Governance)
	c.Guardians = normalizeList(c.Guardians)
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: grpc_addr is required")
	}
	if _, err := merkle.ByName(c.Hasher); err != nil {
		return fmt.Errorf("config: hasher: %w", err)
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("config: min_delay %s is negative", c.MinDelay)
	}
	if len(c.Governance) == 0 {
		return errors.New("config: at least one governance principal is required")
	}
	if len(c.TokenSecret) < access.MinSecretLen {
		return fmt.Errorf("config: token_secret must be at least %d bytes", access.MinSecretLen)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Gate builds the role table from the configured principal lists.
func (c Config) Gate() *access.Table {
	roles := make(map[access.Principal]access.Role)
	for _, p := range c.Governance {
		roles[access.Principal(p)] |= access.RoleGovernance
	}
	for _, p := range c.Guardians {
		roles[access.Principal(p)] |= access.RoleGuardian
	}
	return access.NewTable(roles)
}

// HasherImpl returns the configured hash algorithm. Validate has
// already checked the name.
func (c Config) HasherImpl() merkle.Hasher {
	h, err := merkle.ByName(c.Hasher)
	if err != nil {
		return merkle.Default()
	}
	return h
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
