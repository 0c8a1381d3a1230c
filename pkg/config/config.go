// Package config wires the node's launch flags through cobra and
// viper (component A2), giving viper's flag > environment >
// config-file > default precedence.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every launch-time setting the node needs.
type Config struct {
	Port      int
	Host      string
	SeedURL   string
	MyAddress string
	AutoMine  bool
	DataDir   string
}

// SelfAddress returns the node's own address, defaulting to
// 127.0.0.1:{port} when MyAddress was not set explicitly.
func (c Config) SelfAddress() string {
	if c.MyAddress != "" {
		return c.MyAddress
	}
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

var configFile string

// RegisterFlags attaches the node's launch flags to cmd, to be read
// back with Load once cmd has parsed its arguments.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./config.yaml)")
	flags.Int("port", 5000, "port this node listens on")
	flags.String("host", "0.0.0.0", "host this node binds to")
	flags.String("seed-url", "", "address of a seed peer to register with on startup")
	flags.String("my-address", "", "this node's own advertised address (default 127.0.0.1:{port})")
	flags.Bool("auto-mine", false, "start with continuous mining enabled")
	flags.String("data-dir", "./data", "directory for persisted chain, peer and wallet state")

	cobra.OnInitialize(func() {
		configFile, _ = flags.GetString("config")
	})

	_ = viper.BindPFlag("port", flags.Lookup("port"))
	_ = viper.BindPFlag("host", flags.Lookup("host"))
	_ = viper.BindPFlag("seed-url", flags.Lookup("seed-url"))
	_ = viper.BindPFlag("my-address", flags.Lookup("my-address"))
	_ = viper.BindPFlag("auto-mine", flags.Lookup("auto-mine"))
	_ = viper.BindPFlag("data-dir", flags.Lookup("data-dir"))
}

// Load reads config.yaml (or the file named by --config) if present,
// layers in environment variables prefixed NODE_, and returns the
// final, flag-precedent Config.
func Load() (Config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("NODE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		Port:      viper.GetInt("port"),
		Host:      viper.GetString("host"),
		SeedURL:   viper.GetString("seed-url"),
		MyAddress: viper.GetString("my-address"),
		AutoMine:  viper.GetBool("auto-mine"),
		DataDir:   viper.GetString("data-dir"),
	}, nil
}
