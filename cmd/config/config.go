// Package config loads the CLI configuration and assembles the engine with
// its cache, outbox and API client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/cache"
	"github.com/arbornotes/arbor/pkg/engine"
	"github.com/arbornotes/arbor/pkg/outbox"
)

var (
	cfgFile string
	// Offline forces the engine to treat the server as unreachable.
	Offline bool
)

// Config is the file/env configuration surface.
type Config struct {
	ServerURL string `mapstructure:"server_url"`
	Token     string `mapstructure:"token"`
	DataDir   string `mapstructure:"data_dir"`

	CacheRaceWarmMs    int `mapstructure:"cache_race_warm_ms"`
	CacheRaceColdMs    int `mapstructure:"cache_race_cold_ms"`
	NetworkTimeoutMs   int `mapstructure:"network_timeout_ms"`
	MetaProbeTimeoutMs int `mapstructure:"meta_probe_timeout_ms"`

	CreateVersionIfStaleHours int    `mapstructure:"create_version_if_stale_hours"`
	ReplayMaxRetries          int    `mapstructure:"replay_max_retries"`
	LogLevel                  string `mapstructure:"log_level"`
}

// InitConfig wires viper to the config file and the ARBOR_* environment.
func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".config", "arbor")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ARBOR")

	viper.SetDefault("server_url", "http://localhost:8080")
	viper.SetDefault("data_dir", filepath.Join(os.Getenv("HOME"), ".local", "share", "arbor"))
	viper.SetDefault("create_version_if_stale_hours", 24)
	viper.SetDefault("replay_max_retries", 5)
	viper.SetDefault("log_level", "warn")

	_ = viper.ReadInConfig() // missing config file is fine, env and defaults apply
}

// Load decodes the effective configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Deps is everything a subcommand needs.
type Deps struct {
	Engine   *engine.Engine
	Store    cache.Store
	Queue    outbox.Queue
	Client   *api.Client
	Replayer *outbox.Replayer
	Log      *logrus.Logger
}

// Close releases the durable stores.
func (d *Deps) Close() {
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.Queue != nil {
		_ = d.Queue.Close()
	}
}

// InitDeps builds the full dependency graph from the loaded configuration.
func InitDeps() (*Deps, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	log.SetLevel(level)

	client, err := api.New(cfg.ServerURL, cfg.Token)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := cache.NewSQLiteStore(filepath.Join(cfg.DataDir, "cache.db"))
	if err != nil {
		return nil, err
	}
	queue, err := outbox.NewSQLiteQueue(filepath.Join(cfg.DataDir, "outbox.db"))
	if err != nil {
		store.Close()
		return nil, err
	}

	ecfg := engine.DefaultConfig()
	if cfg.CacheRaceWarmMs > 0 {
		ecfg.CacheRaceWarm = time.Duration(cfg.CacheRaceWarmMs) * time.Millisecond
	}
	if cfg.CacheRaceColdMs > 0 {
		ecfg.CacheRaceCold = time.Duration(cfg.CacheRaceColdMs) * time.Millisecond
	}
	if cfg.NetworkTimeoutMs > 0 {
		ecfg.NetworkTimeout = time.Duration(cfg.NetworkTimeoutMs) * time.Millisecond
	}
	if cfg.MetaProbeTimeoutMs > 0 {
		ecfg.MetaProbeTimeout = time.Duration(cfg.MetaProbeTimeoutMs) * time.Millisecond
	}
	ecfg.CreateVersionIfStaleHours = cfg.CreateVersionIfStaleHours

	eng := engine.New(client, store, queue, log, ecfg)
	if Offline {
		eng.SetOnline(false)
	}

	return &Deps{
		Engine:   eng,
		Store:    store,
		Queue:    queue,
		Client:   client,
		Replayer: outbox.NewReplayer(queue, client, log, cfg.ReplayMaxRetries),
		Log:      log,
	}, nil
}

// AddGlobalFlags registers the persistent flags shared by every subcommand.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/arbor/config.yaml)")
	cmd.PersistentFlags().BoolVar(&Offline, "offline", false, "Work against the local cache only")
}
