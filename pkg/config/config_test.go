package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"8090"`
	BaseURL  string        `env:"TEST_CFG_BASE_URL" envDefault:"http://localhost:5000/api"`
	Debounce time.Duration `env:"TEST_CFG_DEBOUNCE" envDefault:"300ms"`
	Brokers  []string      `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load[testConfig]()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "http://localhost:5000/api", cfg.BaseURL)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9191")
	t.Setenv("TEST_CFG_DEBOUNCE", "50ms")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load[testConfig]()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	_, err := Load[testConfig]()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_WithEnvironmentAndPrefix(t *testing.T) {
	cfg, err := Load[testConfig](
		WithPrefix("APP_"),
		WithEnvironment(map[string]string{"APP_TEST_CFG_PORT": "7000"}),
	)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

type checkedConfig struct {
	Min int `env:"TEST_CFG_MIN" envDefault:"1"`
	Max int `env:"TEST_CFG_MAX" envDefault:"10"`
}

func (c *checkedConfig) Validate() error {
	if c.Min > c.Max {
		return errors.New("min exceeds max")
	}
	return nil
}

func TestLoad_RunsValidate(t *testing.T) {
	_, err := Load[checkedConfig](WithEnvironment(map[string]string{"TEST_CFG_MIN": "5"}))
	require.NoError(t, err)

	_, err = Load[checkedConfig](WithEnvironment(map[string]string{"TEST_CFG_MIN": "50"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config: min exceeds max")
}
