package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "NSBUS_"

// ApplyEnv overlays NSBUS_* variables found by lookup. A nil lookup reads
// the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = lookupEnv
	}

	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	duration := func(dst *Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			dst.Duration = d
			return nil
		}
	}
	integer := func(dst *int64) func(string) error {
		return func(v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}

	setters := []struct {
		key string
		set func(string) error
	}{
		{"ADDRESS", str(&c.Server.Address)},
		{"PATH", str(&c.Server.Path)},
		{"ALLOW_ALL_ORIGINS", boolean(&c.Server.AllowAllOrigins)},
		{"ENABLE_COMPRESSION", boolean(&c.Server.EnableCompression)},
		{"READ_TIMEOUT", duration(&c.Server.ReadTimeout)},
		{"WRITE_TIMEOUT", duration(&c.Server.WriteTimeout)},
		{"HEARTBEAT_INTERVAL", duration(&c.Server.HeartbeatInterval)},
		{"SHUTDOWN_TIMEOUT", duration(&c.Server.ShutdownTimeout)},
		{"MAX_MESSAGE_SIZE", integer(&c.Server.MaxMessageSize)},
		{"EVICT_AFTER", duration(&c.Registry.EvictAfter)},
		{"CLEANUP_INTERVAL", duration(&c.Registry.CleanupInterval)},
		{"SNAPSHOT_BACKEND", str(&c.Snapshot.Backend)},
		{"SNAPSHOT_KEY", str(&c.Snapshot.Key)},
		{"SNAPSHOT_BUCKET", str(&c.Snapshot.Bucket)},
		{"SNAPSHOT_PREFIX", str(&c.Snapshot.Prefix)},
		{"SNAPSHOT_REGION", str(&c.Snapshot.Region)},
		{"SNAPSHOT_ENDPOINT", str(&c.Snapshot.Endpoint)},
		{"SNAPSHOT_PATH_STYLE", boolean(&c.Snapshot.PathStyle)},
		{"SNAPSHOT_ANONYMOUS", boolean(&c.Snapshot.Anonymous)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_FORMAT", str(&c.Log.Format)},
		{"METRICS_ENABLED", boolean(&c.Metrics.Enabled)},
		{"METRICS_NAMESPACE", str(&c.Metrics.Namespace)},
		{"METRICS_PATH", str(&c.Metrics.Path)},
	}

	var errs []error
	for _, s := range setters {
		v, ok := lookup(EnvPrefix + s.key)
		if !ok {
			continue
		}
		if err := s.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, s.key, err))
		}
	}
	return errors.Join(errs...)
}
