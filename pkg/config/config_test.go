package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Bus.Driver)
	assert.Equal(t, 3*time.Second, cfg.Market.Period)
	require.Len(t, cfg.Market.Companies, 3)
	assert.Equal(t, "MacroHard", cfg.Market.Companies[0].Name)
	assert.Equal(t, "MCH", cfg.Market.Companies[0].Symbol)
	assert.Equal(t, 10000, cfg.Market.Companies[0].Volume)
	assert.Equal(t, 10000.0, cfg.Portfolio.Cash)
	assert.Equal(t, 2, cfg.Breaker.MaxFailures)
	assert.Equal(t, 2*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, 10, cfg.Audit.DefaultLimit)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
bus:
  driver: rabbitmq
market:
  period: 500ms
  companies:
    - name: Acme
      symbol: ACM
      price: 42
      volume: 100
      variation: 10
breaker:
  max_failures: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("MICROTRADER_PORTFOLIO_CASH", "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rabbitmq", cfg.Bus.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Market.Period)
	require.Len(t, cfg.Market.Companies, 1)
	assert.Equal(t, "Acme", cfg.Market.Companies[0].Name)
	assert.Equal(t, 42.0, cfg.Market.Companies[0].Price)
	assert.Equal(t, 5, cfg.Breaker.MaxFailures)
	assert.Equal(t, 500.0, cfg.Portfolio.Cash)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Bus.Driver = "kafka"
	cfg.Breaker.MaxFailures = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bus driver")
	assert.Contains(t, err.Error(), "max_failures")
}

func TestEndpoint_BaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8081", Endpoint{Listen: ":8081"}.BaseURL())
	assert.Equal(t, "http://quote:9000", Endpoint{Listen: "0.0.0.0:9000", PublicHost: "quote"}.BaseURL())
}
