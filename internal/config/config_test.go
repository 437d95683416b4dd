package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("PORTUNUS_CONFIG_FILE", "")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 50, cfg.PartitionCapacity)
	assert.Equal(t, 10, cfg.BusCapacity)
	assert.Equal(t, 30*time.Millisecond, cfg.Timing.RealtimeGuardTimeout)
	assert.Equal(t, time.Second, cfg.Timing.BulkGuardTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Timing.SnapshotGuardTimeout)
	assert.Equal(t, 80*time.Millisecond, cfg.Timing.ExitDebounce)
	assert.Equal(t, 5*time.Second, cfg.Timing.UnlockDuration)
	assert.Equal(t, 4*time.Second, cfg.Timing.UnlockCooldown)
	assert.Equal(t, 30, cfg.LogRetentionDays)
	assert.Equal(t, "portunus-door-001", cfg.MQTT.ClientID)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORTUNUS_MODULE_ID", "front-door")
	t.Setenv("PORTUNUS_ENV", "PROD")
	t.Setenv("PORTUNUS_PARTITION_CAPACITY", "20")
	t.Setenv("PORTUNUS_UNLOCK_DURATION", "3s")
	t.Setenv("PORTUNUS_ANTENNA_CYCLE_INTERVAL", "0s")
	t.Setenv("PORTUNUS_HTTP_ADDR", "")
	t.Setenv("PORTUNUS_COMMAND_RATE_LIMIT", "2.5")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "front-door", cfg.ModuleID)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 20, cfg.PartitionCapacity)
	assert.Equal(t, 3*time.Second, cfg.Timing.UnlockDuration)
	assert.Zero(t, cfg.Timing.AntennaCycleInterval)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, 2.5, cfg.CommandRateLimit)
	assert.Equal(t, "portunus-front-door", cfg.MQTT.ClientID)
}

func TestFromEnv_BadValuesFailSoft(t *testing.T) {
	t.Setenv("PORTUNUS_ENV", "staging")
	t.Setenv("PORTUNUS_PARTITION_CAPACITY", "lots")
	t.Setenv("PORTUNUS_TICK", "-5ms")
	t.Setenv("PORTUNUS_BUS_CAPACITY", "0")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 50, cfg.PartitionCapacity)
	assert.Equal(t, 5*time.Millisecond, cfg.Timing.Tick)
	assert.Equal(t, 10, cfg.BusCapacity)
}

func TestFromEnv_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.toml")
	body := `
module_id = "side-door"
db_path = "/var/lib/portunus/side.db"
partition_capacity = 25

[mqtt]
broker = "tcp://broker.local:1883"
topic_prefix = "site-a"

[timing]
unlock_duration = "7s"
exit_debounce = "120ms"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("PORTUNUS_CONFIG_FILE", path)
	t.Setenv("PORTUNUS_PARTITION_CAPACITY", "30")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "side-door", cfg.ModuleID)
	assert.Equal(t, "/var/lib/portunus/side.db", cfg.DBPath)
	assert.Equal(t, 30, cfg.PartitionCapacity)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, "site-a", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 7*time.Second, cfg.Timing.UnlockDuration)
	assert.Equal(t, 120*time.Millisecond, cfg.Timing.ExitDebounce)
	assert.Equal(t, time.Second, cfg.Timing.ReadCooldown)
}

func TestFromEnv_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("module_id = ["), 0o600))
	t.Setenv("PORTUNUS_CONFIG_FILE", path)

	_, err := config.FromEnv()
	assert.Error(t, err)
}
