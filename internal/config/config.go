package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/vango-dev/nsbus/pkg/registry"
	"github.com/vango-dev/nsbus/pkg/server"
)

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "nsbus.toml"

// Snapshot backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Registry RegistryConfig `toml:"registry"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ServerConfig maps to server.ServerConfig.
type ServerConfig struct {
	Address           string   `toml:"address"`
	Path              string   `toml:"path"`
	AllowAllOrigins   bool     `toml:"allow_all_origins"`
	EnableCompression bool     `toml:"enable_compression"`
	ReadTimeout       Duration `toml:"read_timeout"`
	WriteTimeout      Duration `toml:"write_timeout"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	MaxMessageSize    int64    `toml:"max_message_size"`
}

// RegistryConfig maps to registry.Config.
type RegistryConfig struct {
	EvictAfter      Duration `toml:"evict_after"`
	CleanupInterval Duration `toml:"cleanup_interval"`
}

// SnapshotConfig selects where registry snapshots are kept.
type SnapshotConfig struct {
	// Backend is one of none, memory or s3.
	Backend  string `toml:"backend"`
	Key      string `toml:"key"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	// PathStyle addresses buckets as endpoint/bucket, as MinIO expects.
	PathStyle bool `toml:"path_style"`
	// Anonymous sends unsigned requests instead of loading AWS credentials.
	Anonymous bool `toml:"anonymous"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Path      string `toml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sd := server.DefaultServerConfig()
	rd := registry.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:           sd.Address,
			Path:              sd.Path,
			ReadTimeout:       Duration{sd.ReadTimeout},
			WriteTimeout:      Duration{sd.WriteTimeout},
			HeartbeatInterval: Duration{sd.HeartbeatInterval},
			ShutdownTimeout:   Duration{sd.ShutdownTimeout},
			MaxMessageSize:    sd.MaxMessageSize,
		},
		Registry: RegistryConfig{
			EvictAfter:      Duration{rd.EvictAfter},
			CleanupInterval: Duration{rd.CleanupInterval},
		},
		Snapshot: SnapshotConfig{
			Backend: BackendNone,
			Key:     sd.SnapshotKey,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "nsbus",
			Path:      "/metrics",
		},
	}
}

// Load reads path over the defaults. An empty path loads DefaultFileName
// when it exists and returns the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}
	hb, rt := c.Server.HeartbeatInterval.Duration, c.Server.ReadTimeout.Duration
	if hb > 0 && rt > 0 && hb >= rt {
		errs = append(errs, errors.New("server.heartbeat_interval must be shorter than server.read_timeout"))
	}
	if c.Registry.EvictAfter.Duration < 0 {
		errs = append(errs, errors.New("registry.evict_after must not be negative"))
	}

	switch c.Snapshot.Backend {
	case "", BackendNone, BackendMemory:
	case BackendS3:
		if c.Snapshot.Bucket == "" {
			errs = append(errs, errors.New("snapshot.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshot.backend %q is not one of none, memory, s3", c.Snapshot.Backend))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// ServerConfig converts the server section. Collaborators (codec, metrics,
// store, logger) are left for the caller to set.
func (c *Config) ServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig()
	sc.Address = c.Server.Address
	sc.Path = c.Server.Path
	sc.EnableCompression = c.Server.EnableCompression
	sc.ReadTimeout = c.Server.ReadTimeout.Duration
	sc.WriteTimeout = c.Server.WriteTimeout.Duration
	sc.HeartbeatInterval = c.Server.HeartbeatInterval.Duration
	sc.ShutdownTimeout = c.Server.ShutdownTimeout.Duration
	sc.MaxMessageSize = c.Server.MaxMessageSize
	if c.Server.AllowAllOrigins {
		sc.CheckOrigin = server.AllowAllOrigins
	}
	if c.Snapshot.Key != "" {
		sc.SnapshotKey = c.Snapshot.Key
	}
	return sc
}

// RegistryConfig converts the registry section.
func (c *Config) RegistryConfig() *registry.Config {
	return &registry.Config{
		EvictAfter:      c.Registry.EvictAfter.Duration,
		CleanupInterval: c.Registry.CleanupInterval.Duration,
	}
}

// lookupEnv is os.LookupEnv, replaceable in tests.
var lookupEnv = os.LookupEnv
