// Package config loads and validates the process configuration for
// both the Master and Slave entrypoints: a TOML file plus CLI flag and
// environment variable overrides.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// InvalidConfiguration reports an out-of-range or otherwise unusable
// knob. It is always fatal at startup; there is no implicit clamping
// beyond what the core components themselves mandate.
type InvalidConfiguration struct {
	Field  string
	Reason string
}

func (e *InvalidConfiguration) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// NetworkConfig holds the wire-protocol endpoint settings.
type NetworkConfig struct {
	MasterAddr string `toml:"master_ip"`
	SyncPort   int    `toml:"sync_port"`
}

// SyncConfig holds the sync controller's thresholds and timing.
type SyncConfig struct {
	SyncTimeoutSeconds      float64 `toml:"sync_timeout"`
	SyncIntervalSeconds     float64 `toml:"sync_interval"`
	RoundsPerSync           int     `toml:"rounds_per_sync"`
	SyncThresholdSeconds    float64 `toml:"sync_threshold"`
	LargeOffsetSeconds      float64 `toml:"large_offset_threshold"`
	MasterOfflineTimeoutSec float64 `toml:"master_offline_timeout"`
}

// PIDConfig holds the controller's gains and saturation bounds.
type PIDConfig struct {
	Kp                float64 `toml:"pid_kp"`
	Ki                float64 `toml:"pid_ki"`
	Kd                float64 `toml:"pid_kd"`
	IntegralLimit     float64 `toml:"pid_integral_limit"`
	MaxRateAdjustment float64 `toml:"max_rate_adjustment"`
	LargeOffsetReset  float64 `toml:"pid_large_offset_reset"`
}

// Ambient holds the knobs the core spec never names: where the
// control-plane and status surfaces listen, and how verbose logging is.
type Ambient struct {
	RPCSocket  string `toml:"rpc_socket"`
	HTTPAddr   string `toml:"http_addr"`
	ConfigPath string `toml:"-"`
	Discover   bool   `toml:"-"`
	NoDaemon   bool   `toml:"-"`
}

// Config is the fully parsed, validated configuration for one process.
type Config struct {
	Network NetworkConfig `toml:"network"`
	Sync    SyncConfig    `toml:"sync"`
	PID     PIDConfig     `toml:"pid"`
	Ambient Ambient       `toml:"ambient"`
}

// Default returns the canonical defaults from the external interface
// table, before any file, flag, or environment override is applied.
func Default(role string) Config {
	cfg := Config{
		Network: NetworkConfig{MasterAddr: "127.0.0.1", SyncPort: 12345},
		Sync: SyncConfig{
			SyncTimeoutSeconds:      1.0,
			SyncIntervalSeconds:     5.0,
			RoundsPerSync:           6,
			SyncThresholdSeconds:    0.001,
			LargeOffsetSeconds:      5.0,
			MasterOfflineTimeoutSec: 15.0,
		},
		PID: PIDConfig{
			Kp:                0.8,
			Ki:                0.5,
			Kd:                0.1,
			IntegralLimit:     1.0,
			MaxRateAdjustment: 1.0,
			LargeOffsetReset:  1.0,
		},
		Ambient: Ambient{
			RPCSocket: fmt.Sprintf("/var/run/clocksync-%s.sock", role),
			HTTPAddr:  ":8090",
		},
	}
	return cfg
}

// Load reads a TOML file at path (if non-empty and present), layers
// environment variable overrides for host/port on top (mirroring the
// teacher's NTP_HOST/NTP_PORT convention), and validates the result.
// A missing path falls back to compiled-in defaults; a malformed file
// or an out-of-range knob is fatal via InvalidConfiguration.
func Load(role, path string) (Config, error) {
	cfg := Default(role)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else {
			if err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("config: failed to decode %s: %w", path, err)
			}
		}
	}

	if host := os.Getenv("CLOCKSYNC_MASTER_HOST"); host != "" {
		cfg.Network.MasterAddr = host
	}
	if port := os.Getenv("CLOCKSYNC_SYNC_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.Network.SyncPort = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RegisterFlags binds CLI flags for overrides that apply regardless of
// role (config path, RPC socket, HTTP listen address, discovery).
func RegisterFlags(fs *flag.FlagSet, cfg *Ambient) {
	fs.StringVar(&cfg.ConfigPath, "config", "", "path to a TOML configuration file")
	fs.StringVar(&cfg.RPCSocket, "socket", cfg.RPCSocket, "unix domain socket for the control RPC service")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "listen address for the status HTTP API")
	fs.BoolVar(&cfg.Discover, "discover", false, "look up the Master via mDNS instead of an explicit address")
	fs.BoolVar(&cfg.NoDaemon, "no-daemon", false, "run in the foreground instead of daemonizing")
}

// Validate checks every numeric knob against the ranges the external
// interface table implies: nothing here is negative, no threshold is
// backwards, and no saturation bound is non-positive.
func (c Config) Validate() error {
	if c.Network.SyncPort <= 0 || c.Network.SyncPort > 65535 {
		return &InvalidConfiguration{Field: "sync_port", Reason: "must be in 1..65535"}
	}
	if c.Sync.SyncTimeoutSeconds <= 0 {
		return &InvalidConfiguration{Field: "sync_timeout", Reason: "must be positive"}
	}
	if c.Sync.SyncIntervalSeconds <= 0 {
		return &InvalidConfiguration{Field: "sync_interval", Reason: "must be positive"}
	}
	if c.Sync.RoundsPerSync <= 0 {
		return &InvalidConfiguration{Field: "rounds_per_sync", Reason: "must be positive"}
	}
	if c.Sync.SyncThresholdSeconds <= 0 {
		return &InvalidConfiguration{Field: "sync_threshold", Reason: "must be positive"}
	}
	if c.Sync.LargeOffsetSeconds <= c.Sync.SyncThresholdSeconds {
		return &InvalidConfiguration{Field: "large_offset_threshold", Reason: "must exceed sync_threshold"}
	}
	if c.Sync.MasterOfflineTimeoutSec <= 0 {
		return &InvalidConfiguration{Field: "master_offline_timeout", Reason: "must be positive"}
	}
	if c.PID.IntegralLimit <= 0 {
		return &InvalidConfiguration{Field: "pid_integral_limit", Reason: "must be positive"}
	}
	if c.PID.MaxRateAdjustment <= 0 {
		return &InvalidConfiguration{Field: "max_rate_adjustment", Reason: "must be positive"}
	}
	if c.PID.LargeOffsetReset <= 0 {
		return &InvalidConfiguration{Field: "pid_large_offset_reset", Reason: "must be positive"}
	}
	return nil
}

// SyncTimeout returns the per-exchange receive deadline as a Duration.
func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.SyncTimeoutSeconds * float64(time.Second))
}

// SyncInterval returns the cycle period as a Duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.SyncIntervalSeconds * float64(time.Second))
}

// MasterOfflineTimeout returns the offline threshold as a Duration.
func (c Config) MasterOfflineTimeout() time.Duration {
	return time.Duration(c.Sync.MasterOfflineTimeoutSec * float64(time.Second))
}
