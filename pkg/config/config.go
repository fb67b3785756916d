package config

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Default window of the CollegeMsg dataset, one day per partition
const (
	DefaultSplitStart  = 1082040961
	DefaultSplitFinish = 1098777142
	DefaultSplitWindow = 24 * 60 * 60
)

// Config manages pipeline configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults. Every key can be
// overridden through a TGCD_ prefixed environment variable.
func NewConfig() *Config {
	v := viper.New()

	// Splitting parameters
	v.SetDefault("split.start", DefaultSplitStart)
	v.SetDefault("split.finish", DefaultSplitFinish)
	v.SetDefault("split.window", DefaultSplitWindow)
	v.SetDefault("split.auto_window", false)

	// Temporal graph parameters
	v.SetDefault("temporal.max_time", int64(0))
	v.SetDefault("temporal.strict_actors", false)

	// Community detection parameters
	v.SetDefault("modularity.epsilon", 1e-10)

	// Louvain baseline parameters
	v.SetDefault("baseline.louvain", false)
	v.SetDefault("baseline.max_iterations", 100)
	v.SetDefault("baseline.random_seed", int64(42))

	// Performance parameters
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Storage parameters
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.dsn", "./data/tgcd.db")

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)

	v.SetDefault("analysis.track_splits", false)
	v.SetDefault("analysis.output_file", "splits.jsonl")

	v.SetDefault("metrics.address", "")

	v.SetEnvPrefix("TGCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Getters for splitting parameters
func (c *Config) SplitStart() int64 { return c.v.GetInt64("split.start") }
func (c *Config) SplitFinish() int64 { return c.v.GetInt64("split.finish") }
func (c *Config) SplitWindow() int64 { return c.v.GetInt64("split.window") }
func (c *Config) AutoWindow() bool { return c.v.GetBool("split.auto_window") }

// MaxTime returns the build cut-off; zero or negative means no limit
func (c *Config) MaxTime() int64 { return c.v.GetInt64("temporal.max_time") }
func (c *Config) StrictActors() bool { return c.v.GetBool("temporal.strict_actors") }
func (c *Config) Epsilon() float64 { return c.v.GetFloat64("modularity.epsilon") }
func (c *Config) BaselineLouvain() bool { return c.v.GetBool("baseline.louvain") }
func (c *Config) BaselineMaxIterations() int { return c.v.GetInt("baseline.max_iterations") }
func (c *Config) BaselineRandomSeed() int64 { return c.v.GetInt64("baseline.random_seed") }

func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }

func (c *Config) StorageDriver() string { return c.v.GetString("storage.driver") }
func (c *Config) StorageDir() string { return c.v.GetString("storage.dir") }
func (c *Config) StorageDSN() string { return c.v.GetString("storage.dsn") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) LogJSON() bool { return c.v.GetBool("logging.json") }

func (c *Config) TrackSplits() bool { return c.v.GetBool("analysis.track_splits") }
func (c *Config) TrackingOutputFile() string { return c.v.GetString("analysis.output_file") }

func (c *Config) MetricsAddress() string { return c.v.GetString("metrics.address") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	return c.CreateLoggerTo(os.Stdout)
}

// CreateLoggerTo creates a zerolog logger writing to out
func (c *Config) CreateLoggerTo(out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	if !c.LogJSON() {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "tgcd").Logger()
}
