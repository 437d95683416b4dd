package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ModuleID        string `toml:"module_id"`
	FirmwareVersion string `toml:"firmware_version"`

	Env    string `toml:"env"`     // "dev" | "prod"
	DBPath string `toml:"db_path"` // e.g. "./data/controller.db"

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "json" | "console"

	HTTPAddr string `toml:"http_addr"` // empty disables the admin API
	GRPCAddr string `toml:"grpc_addr"` // empty disables gRPC

	// ServerURL is the Portunus server receiving heartbeats; empty disables them.
	ServerURL string `toml:"server_url"`

	MQTT MQTTConfig `toml:"mqtt"`

	PartitionCapacity int `toml:"partition_capacity"`
	BusCapacity       int `toml:"bus_capacity"`

	Timing Timing `toml:"timing"`

	// Access log retention
	LogRetentionDays   int `toml:"log_retention_days"`   // 0 = keep forever
	PruneIntervalHours int `toml:"prune_interval_hours"` // how often the pruner runs

	// Command ingress limits, shared by HTTP and gRPC; 0 disables.
	CommandRateLimit float64 `toml:"command_rate_limit"`
	CommandBurst     int     `toml:"command_burst"`
}

type MQTTConfig struct {
	Broker      string `toml:"broker"` // empty disables MQTT
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
}

type Timing struct {
	Tick                 time.Duration `toml:"tick"`
	RealtimeGuardTimeout time.Duration `toml:"realtime_guard_timeout"`
	BulkGuardTimeout     time.Duration `toml:"bulk_guard_timeout"`
	LogGuardTimeout      time.Duration `toml:"log_guard_timeout"`
	SnapshotGuardTimeout time.Duration `toml:"snapshot_guard_timeout"`
	ReadCooldown         time.Duration `toml:"read_cooldown"`
	ProbeInterval        time.Duration `toml:"probe_interval"`
	AntennaCycleInterval time.Duration `toml:"antenna_cycle_interval"` // 0 disables
	ExitDebounce         time.Duration `toml:"exit_debounce"`
	ExitCooldown         time.Duration `toml:"exit_cooldown"`
	UnlockDuration       time.Duration `toml:"unlock_duration"`
	UnlockCooldown       time.Duration `toml:"unlock_cooldown"`
	HeartbeatInterval    time.Duration `toml:"heartbeat_interval"`
}

func Defaults() Config {
	return Config{
		ModuleID:        "door-001",
		FirmwareVersion: "dev",
		Env:             "dev",
		DBPath:          "./data/controller.db",
		LogLevel:        "info",
		LogFormat:       "json",
		HTTPAddr:        "127.0.0.1:8081",
		MQTT: MQTTConfig{
			TopicPrefix: "portunus",
		},
		PartitionCapacity: 50,
		BusCapacity:       10,
		Timing: Timing{
			Tick:                 5 * time.Millisecond,
			RealtimeGuardTimeout: 30 * time.Millisecond,
			BulkGuardTimeout:     time.Second,
			LogGuardTimeout:      100 * time.Millisecond,
			SnapshotGuardTimeout: 50 * time.Millisecond,
			ReadCooldown:         time.Second,
			ProbeInterval:        10 * time.Second,
			AntennaCycleInterval: 60 * time.Second,
			ExitDebounce:         80 * time.Millisecond,
			ExitCooldown:         4 * time.Second,
			UnlockDuration:       5 * time.Second,
			UnlockCooldown:       4 * time.Second,
			HeartbeatInterval:    60 * time.Second,
		},
		LogRetentionDays:   30,
		PruneIntervalHours: 6,
		CommandRateLimit:   5,
		CommandBurst:       10,
	}
}

// FromEnv starts from Defaults, applies the TOML file named by
// PORTUNUS_CONFIG_FILE if set, then PORTUNUS_* environment variables.
// Bad environment values fall back silently; only an unreadable config
// file is an error.
func FromEnv() (Config, error) {
	return Load(os.Getenv("PORTUNUS_CONFIG_FILE"))
}

// Load is FromEnv with an explicit config file path; empty means none.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path = strings.TrimSpace(path); path != "" {
		if err := LoadTOML(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

// LoadTOML overlays the keys present in the file at path onto cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.ModuleID = getenvDefault("PORTUNUS_MODULE_ID", c.ModuleID)
	c.FirmwareVersion = getenvDefault("PORTUNUS_FIRMWARE_VERSION", c.FirmwareVersion)
	c.Env = strings.ToLower(getenvDefault("PORTUNUS_ENV", c.Env))
	c.DBPath = getenvDefault("PORTUNUS_DB_PATH", c.DBPath)
	c.LogLevel = getenvDefault("PORTUNUS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault("PORTUNUS_LOG_FORMAT", c.LogFormat)
	c.HTTPAddr = getenvAllowEmpty("PORTUNUS_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvAllowEmpty("PORTUNUS_GRPC_ADDR", c.GRPCAddr)
	c.ServerURL = getenvAllowEmpty("PORTUNUS_SERVER_URL", c.ServerURL)

	c.MQTT.Broker = getenvAllowEmpty("PORTUNUS_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getenvDefault("PORTUNUS_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getenvDefault("PORTUNUS_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getenvDefault("PORTUNUS_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getenvDefault("PORTUNUS_MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.PartitionCapacity = getenvInt("PORTUNUS_PARTITION_CAPACITY", c.PartitionCapacity)
	c.BusCapacity = getenvInt("PORTUNUS_BUS_CAPACITY", c.BusCapacity)

	t := &c.Timing
	t.Tick = getenvDuration("PORTUNUS_TICK", t.Tick)
	t.RealtimeGuardTimeout = getenvDuration("PORTUNUS_REALTIME_GUARD_TIMEOUT", t.RealtimeGuardTimeout)
	t.BulkGuardTimeout = getenvDuration("PORTUNUS_BULK_GUARD_TIMEOUT", t.BulkGuardTimeout)
	t.LogGuardTimeout = getenvDuration("PORTUNUS_LOG_GUARD_TIMEOUT", t.LogGuardTimeout)
	t.SnapshotGuardTimeout = getenvDuration("PORTUNUS_SNAPSHOT_GUARD_TIMEOUT", t.SnapshotGuardTimeout)
	t.ReadCooldown = getenvDuration("PORTUNUS_READ_COOLDOWN", t.ReadCooldown)
	t.ProbeInterval = getenvDuration("PORTUNUS_PROBE_INTERVAL", t.ProbeInterval)
	t.AntennaCycleInterval = getenvDuration("PORTUNUS_ANTENNA_CYCLE_INTERVAL", t.AntennaCycleInterval)
	t.ExitDebounce = getenvDuration("PORTUNUS_EXIT_DEBOUNCE", t.ExitDebounce)
	t.ExitCooldown = getenvDuration("PORTUNUS_EXIT_COOLDOWN", t.ExitCooldown)
	t.UnlockDuration = getenvDuration("PORTUNUS_UNLOCK_DURATION", t.UnlockDuration)
	t.UnlockCooldown = getenvDuration("PORTUNUS_UNLOCK_COOLDOWN", t.UnlockCooldown)
	t.HeartbeatInterval = getenvDuration("PORTUNUS_HEARTBEAT_INTERVAL", t.HeartbeatInterval)

	c.LogRetentionDays = getenvInt("PORTUNUS_LOG_RETENTION_DAYS", c.LogRetentionDays)
	c.PruneIntervalHours = getenvInt("PORTUNUS_PRUNE_INTERVAL_HOURS", c.PruneIntervalHours)
	c.CommandRateLimit = getenvFloat("PORTUNUS_COMMAND_RATE_LIMIT", c.CommandRateLimit)
	c.CommandBurst = getenvInt("PORTUNUS_COMMAND_BURST", c.CommandBurst)
}

// normalize clamps values a file may have set out of range.
func (c *Config) normalize() {
	def := Defaults()
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	if strings.TrimSpace(c.ModuleID) == "" {
		c.ModuleID = def.ModuleID
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "portunus-" + c.ModuleID
	}
	if c.PartitionCapacity <= 0 {
		c.PartitionCapacity = def.PartitionCapacity
	}
	if c.BusCapacity <= 0 {
		c.BusCapacity = def.BusCapacity
	}
	if c.Timing.Tick <= 0 {
		c.Timing.Tick = def.Timing.Tick
	}
	if c.Timing.AntennaCycleInterval < 0 {
		c.Timing.AntennaCycleInterval = 0
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = def.PruneIntervalHours
	}
	if c.LogRetentionDays < 0 {
		c.LogRetentionDays = 0
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvAllowEmpty lets an explicitly empty variable switch a listener off.
func getenvAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
