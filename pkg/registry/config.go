package registry

import "time"

// Config configures a Registry.
type Config struct {
	// EvictAfter is how long a closed entry is kept before it is removed.
	// Zero disables eviction.
	// Default: 30 minutes.
	EvictAfter time.Duration

	// CleanupInterval is how often closed entries are checked for eviction.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// OnEvict is called with the ids removed by each eviction pass.
	OnEvict func(ids []string)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EvictAfter:      30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}
