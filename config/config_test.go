package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/facetroute/access"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facetrouted.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
grpc_addr = "0.0.0.0:7000"
store_path = "/var/lib/facetroute/state.db"
hasher = "SHA256"
min_delay = "10m"
governance = ["dao", " dao ", "ops"]
guardians = ["guardian"]
token_secret = "`+secret+`"
`)
	cfg, err := LoadWith(path, map[string]string{
		"FACETROUTE_MIN_DELAY": "1h",
		"FACETROUTE_GUARDIANS": "g1,g2",
		"FACETROUTE_LOG_LEVEL": "debug",
		"FACETROUTE_UNRELATED": "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.GRPCAddr)
	assert.Equal(t, "127.0.0.1:9651", cfg.HTTPAddr, "default kept")
	assert.Equal(t, "/var/lib/facetroute/state.db", cfg.StorePath)
	assert.Equal(t, "sha256", cfg.Hasher)
	assert.Equal(t, "sha256", cfg.HasherImpl().Name())
	assert.Equal(t, time.Hour, cfg.MinDelay, "env overrides file")
	assert.Equal(t, []string{"dao", "ops"}, cfg.Governance)
	assert.Equal(t, []string{"g1", "g2"}, cfg.Guardians)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOnly(t *testing.T) {
	cfg, err := LoadWith("", map[string]string{
		"FACETROUTE_GOVERNANCE":   "dao",
		"FACETROUTE_TOKEN_SECRET": secret,
	})
	require.NoError(t, err)
	assert.Equal(t, Default().GRPCAddr, cfg.GRPCAddr)
	assert.Equal(t, 48*time.Hour, cfg.MinDelay)
	assert.Equal(t, "keccak256", cfg.HasherImpl().Name())
	assert.Empty(t, cfg.StorePath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "nope.toml"), nil)
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := LoadWith("", map[string]string{
		"FACETROUTE_GOVERNANCE":   "dao",
		"FACETROUTE_TOKEN_SECRET": secret,
		"FACETROUTE_MIN_DELAY":    "soon",
	})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Governance = []string{"dao"}
		c.TokenSecret = secret
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"no grpc addr":   func(c *Config) { c.GRPCAddr = "" },
		"bad hasher":     func(c *Config) { c.Hasher = "md5" },
		"negative delay": func(c *Config) { c.MinDelay = -time.Second },
		"no governance":  func(c *Config) { c.Governance = nil },
		"short secret":   func(c *Config) { c.TokenSecret = "short" },
		"bad log level":  func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGate(t *testing.T) {
	c := Default()
	c.Governance = []string{"dao", "both"}
	c.Guardians = []string{"guardian", "both"}
	g := c.Gate()

	assert.Equal(t, access.RoleGovernance, g.RolesOf("dao"))
	assert.Equal(t, access.RoleGuardian, g.RolesOf("guardian"))
	assert.True(t, g.RolesOf("both").Has(access.RoleGovernance|access.RoleGuardian))
	assert.Equal(t, access.Role(0), g.RolesOf("stranger"))
	assert.Equal(t, access.Role(0), g.RolesOf(access.Anonymous))
}
