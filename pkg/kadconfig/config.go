// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package kadconfig binds the node's on-disk/env/flag configuration to
// a plain Go struct via viper, the way the teacher's `cmd/uplink` pairs
// viper with cobra (minus the `cfgstruct`/`process` reflection layer
// storj builds on top of that; that machinery lives in packages not
// present in the retrieved pack, see DESIGN.md).
package kadconfig

import (
	"time"

	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// ConfigErr is the class for all errors pertaining to configuration
// loading.
var ConfigErr = errs.Class("config error")

// Config is the full set of settings a node needs to run.
type Config struct {
	// Listen is the host:port the UDP transport binds.
	Listen string `mapstructure:"listen"`

	// DebugRPCListen is the host:port the debugrpc control surface
	// binds. Empty disables it.
	DebugRPCListen string `mapstructure:"debug-rpc-listen"`

	// Bootstrap is the set of host:port addresses of peers to contact
	// during Service.Bootstrap.
	Bootstrap []string `mapstructure:"bootstrap"`

	// ReplyTimeout is how long a single query waits for an answer
	// before the inbox synthesizes a TIMEOUT.
	ReplyTimeout time.Duration `mapstructure:"reply-timeout"`

	// BucketRefreshInterval is how often Service.Run issues a refresh
	// lookup for one randomly drawn ID. It does not track which
	// buckets are stale.
	BucketRefreshInterval time.Duration `mapstructure:"bucket-refresh-interval"`

	// BootstrapBackoffBase and BootstrapBackoffMax bound the
	// exponential backoff Service.Bootstrap uses between retries.
	BootstrapBackoffBase time.Duration `mapstructure:"bootstrap-backoff-base"`
	BootstrapBackoffMax  time.Duration `mapstructure:"bootstrap-backoff-max"`
}

// Default returns the configuration a freshly initialized node should
// use absent any file, env, or flag overrides.
func Default() Config {
	return Config{
		Listen:                "0.0.0.0:7946",
		ReplyTimeout:          800 * time.Millisecond,
		BucketRefreshInterval: 5 * time.Minute,
		BootstrapBackoffBase:  time.Second,
		BootstrapBackoffMax:   time.Minute,
	}
}

// Load reads configuration from configPath (if non-empty), then KADEMLIA_*
// environment variables, layered over Default, and returns the result.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("kademlia")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("listen", def.Listen)
	v.SetDefault("reply-timeout", def.ReplyTimeout)
	v.SetDefault("bucket-refresh-interval", def.BucketRefreshInterval)
	v.SetDefault("bootstrap-backoff-base", def.BootstrapBackoffBase)
	v.SetDefault("bootstrap-backoff-max", def.BootstrapBackoffMax)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, ConfigErr.Wrap(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ConfigErr.Wrap(err)
	}
	return cfg, nil
}
