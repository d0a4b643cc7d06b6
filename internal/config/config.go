package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SWAPSCOPE"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL              string
	ExplorerURL         string
	ExplorerKey         string
	StartDate           string
	EndDate             string
	FromBlock           uint64
	ToBlock             uint64
	WindowSize          uint64
	Concurrency         int
	BatchPause          time.Duration
	RateLimitPause      time.Duration
	RangeFailurePause   time.Duration
	RangeShrink         uint64
	ProgressEvery       int
	MaxAttempts         int
	MaxRateLimitRetries int
	MaxRangeAttempts    int
	RPS                 int
	OutDir              string
	CheckpointEnabled   bool
	ResolveTimestamps   bool
	PGDSN               string
	MetricsAddr         string
	LogLevel            string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("explorer-url", "https://api.arbiscan.io/api")
	v.SetDefault("window-size", uint64(200000))
	v.SetDefault("concurrency", 10)
	v.SetDefault("batch-pause", 500*time.Millisecond)
	v.SetDefault("rate-limit-pause", time.Second)
	v.SetDefault("range-failure-pause", 3*time.Second)
	v.SetDefault("range-shrink", uint64(10000))
	v.SetDefault("progress-every", 6)
	v.SetDefault("max-attempts", 5)
	v.SetDefault("max-rate-limit-retries", 10)
	v.SetDefault("max-range-attempts", 20)
	v.SetDefault("out-dir", "./data")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		ExplorerURL:         v.GetString("explorer-url"),
		ExplorerKey:         v.GetString("explorer-key"),
		StartDate:           v.GetString("start-date"),
		EndDate:             v.GetString("end-date"),
		FromBlock:           v.GetUint64("from-block"),
		ToBlock:             v.GetUint64("to-block"),
		WindowSize:          v.GetUint64("window-size"),
		Concurrency:         v.GetInt("concurrency"),
		BatchPause:          v.GetDuration("batch-pause"),
		RateLimitPause:      v.GetDuration("rate-limit-pause"),
		RangeFailurePause:   v.GetDuration("range-failure-pause"),
		RangeShrink:         v.GetUint64("range-shrink"),
		ProgressEvery:       v.GetInt("progress-every"),
		MaxAttempts:         v.GetInt("max-attempts"),
		MaxRateLimitRetries: v.GetInt("max-rate-limit-retries"),
		MaxRangeAttempts:    v.GetInt("max-range-attempts"),
		RPS:                 v.GetInt("rps"),
		OutDir:              v.GetString("out-dir"),
		CheckpointEnabled:   v.GetBool("checkpoint-enabled"),
		ResolveTimestamps:   v.GetBool("resolve-timestamps"),
		PGDSN:               v.GetString("pg-dsn"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// ValidateRange checks the settings needed to resolve and split the block span.
// A zero from-block or to-block means unset and falls back to the matching date.
func (c Config) ValidateRange() error {
	if c.FromBlock == 0 && c.StartDate == "" {
		return fmt.Errorf("start-date is required unless from-block is set")
	}
	if c.ToBlock == 0 && c.EndDate == "" {
		return fmt.Errorf("end-date is required unless to-block is set")
	}
	if c.WindowSize == 0 {
		return fmt.Errorf("window-size must be greater than zero")
	}
	return nil
}

// Validate checks the settings needed by the run command.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if err := c.ValidateRange(); err != nil {
		return err
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than zero")
	}
	if c.MaxAttempts <= 0 || c.MaxRangeAttempts <= 0 {
		return fmt.Errorf("max-attempts and max-range-attempts must be greater than zero")
	}
	if c.MaxRateLimitRetries < 0 || c.RPS < 0 {
		return fmt.Errorf("max-rate-limit-retries and rps must not be negative")
	}
	return nil
}

// RunName identifies a run's output files; the start date, or the start block when dates are unset.
func (c Config) RunName() string {
	if c.StartDate != "" {
		return c.StartDate
	}
	return fmt.Sprintf("block-%d", c.FromBlock)
}

func (c Config) CSVPath() string {
	return filepath.Join(c.OutDir, "txs-"+c.RunName()+".csv")
}

func (c Config) SkipLogPath() string {
	return filepath.Join(c.OutDir, "skipped-"+c.RunName()+".jsonl")
}

func (c Config) CheckpointPath() string {
	return filepath.Join(c.OutDir, "checkpoint-"+c.RunName()+".json")
}
