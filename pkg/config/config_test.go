package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	Index    string        `env:"TEST_CFG_INDEX" envDefault:"products"`
	TTL      time.Duration `env:"TEST_CFG_TTL" envDefault:"30s"`
	Brokers  []string      `env:"TEST_CFG_BROKERS" envDefault:"a:9092,b:9092" envSeparator:","`
	Disabled bool          `env:"TEST_CFG_DISABLED" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "products", cfg.Index)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.False(t, cfg.Disabled)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_TTL", "2m")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.TTL)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFromMap(t *testing.T) {
	var cfg testConfig
	err := LoadFromMap(&cfg, map[string]string{
		"TEST_CFG_INDEX":    "catalog_v2",
		"TEST_CFG_DISABLED": "true",
	})

	require.NoError(t, err)
	assert.Equal(t, "catalog_v2", cfg.Index)
	assert.True(t, cfg.Disabled)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadFromMap_Nil(t *testing.T) {
	var cfg testConfig
	require.NoError(t, LoadFromMap(&cfg, nil))
	assert.Equal(t, "products", cfg.Index)
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_SECRET,required"`
}

func TestLoadFromMap_RequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := LoadFromMap(&cfg, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
