package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	assert.False(t, Enabled(env(nil)))
	assert.True(t, Enabled(env(map[string]string{EnvEndpoint: "http://collector:4318"})))
	assert.False(t, Enabled(env(map[string]string{
		EnvEndpoint: "http://collector:4318",
		EnvEnabled:  "FALSE",
	})))
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	shutdown, err := Setup(context.Background(), "facetrouted-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
