// Package config loads the agent's configuration via viper, the way this
// codebase's am package loads its own: a Config struct unmarshalled from
// defaults + an optional TOML file + environment overrides.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/makapix/agent-core/internal/corerrors"
)

// Config holds every tunable named in the spec's timeout and storage
// sections, defaulted to the literal values called out there. ChannelRoot,
// ReadinessTimeout, RequestTimeout, RequestAttempts and FirstAssetWait are
// loaded but not read by any component: the channel orchestrator uses its
// own 60 s first-asset constant, and Correlator.PublishAndWait takes its
// timeouts and attempt count as arguments.
type Config struct {
	DeviceModel     string `mapstructure:"device_model"`
	FirmwareVersion string `mapstructure:"firmware_version"`

	ProvisioningURL string `mapstructure:"provisioning_url"`

	BrokerHostDefault string `mapstructure:"broker_host_default"`
	BrokerPortDefault int    `mapstructure:"broker_port_default"`
	TopicPrefix       string `mapstructure:"topic_prefix"`

	VaultRoot   string `mapstructure:"vault_root"`
	ChannelRoot string `mapstructure:"channel_root"`
	KVPath      string `mapstructure:"kv_path"`
	ResetMarker string `mapstructure:"reset_marker"`

	PollInterval        int `mapstructure:"poll_interval_seconds"`
	PollCap             int `mapstructure:"poll_cap_count"`
	ReadinessTimeout    int `mapstructure:"readiness_timeout_seconds"`
	RequestTimeout      int `mapstructure:"request_timeout_seconds"`
	RequestAttempts     int `mapstructure:"request_attempts"`
	ReconnectMinBackoff int `mapstructure:"reconnect_min_backoff_seconds"`
	ReconnectMaxBackoff int `mapstructure:"reconnect_max_backoff_seconds"`
	WatchdogInterval    int `mapstructure:"watchdog_interval_seconds"`
	LinkProbeInterval   int `mapstructure:"link_probe_interval_seconds"`
	StatusInterval      int `mapstructure:"status_interval_seconds"`
	FirstAssetWait      int `mapstructure:"first_asset_wait_seconds"`
	ViewTickSeconds      int `mapstructure:"view_tick_seconds"`
	ViewFirstSeconds     int `mapstructure:"view_first_seconds"`
	ViewSubsequentSeconds int `mapstructure:"view_subsequent_seconds"`
}

var global *Config

// Load reads configuration the way am.Load does: defaults first, then an
// optional file at path (skipped if empty), then MAKAPIX_-prefixed env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAKAPIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, corerrors.Wrapf(err, "reading config file %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, corerrors.Wrap(err, "unmarshalling config")
	}
	global = &cfg
	return global, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device_model", "makapix-frame")
	v.SetDefault("firmware_version", "0.0.0-dev")
	v.SetDefault("provisioning_url", "https://provision.makapix.cloud")
	v.SetDefault("broker_host_default", "mqtt.makapix.cloud")
	v.SetDefault("broker_port_default", 8883)
	v.SetDefault("topic_prefix", "makapix")
	v.SetDefault("vault_root", "/var/lib/makapix")
	v.SetDefault("channel_root", "/var/lib/makapix/channel")
	v.SetDefault("kv_path", "/var/lib/makapix/state.db")
	v.SetDefault("reset_marker", "/var/lib/makapix/.reset")

	v.SetDefault("poll_interval_seconds", 3)
	v.SetDefault("poll_cap_count", 300)
	v.SetDefault("readiness_timeout_seconds", 5)
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("request_attempts", 3)
	v.SetDefault("reconnect_min_backoff_seconds", 5)
	v.SetDefault("reconnect_max_backoff_seconds", 60)
	v.SetDefault("watchdog_interval_seconds", 30)
	v.SetDefault("link_probe_interval_seconds", 120)
	v.SetDefault("status_interval_seconds", 30)
	v.SetDefault("first_asset_wait_seconds", 60)
	v.SetDefault("view_tick_seconds", 1)
	v.SetDefault("view_first_seconds", 5)
	v.SetDefault("view_subsequent_seconds", 30)
}

// Global returns the process-wide config loaded by the most recent Load
// call, or nil if Load has not been called yet.
func Global() *Config { return global }
