package config

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

const EnvPrefix = "frostems"

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("cycle.cycle_time_millis", 1000)
	v.SetDefault("solver.strategy", "reduce")
	v.SetDefault("solver.apparent_power_edges", 16)
	v.SetDefault("solver.max_iterations", 20000)
	v.SetDefault("bridge.poll_interval_millis", 1000)
	v.SetDefault("bridge.timeout_millis", 2000)
	v.SetDefault("bridge.revert_time_seconds", 60)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.base_topic", "frostems")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

// Load reads defaults, FROSTEMS_* environment variables and the optional yaml
// file named by CONFIG_FILE, then validates the result.
func Load(v *viper.Viper) (*Config, error) {

	// alias PORT => FROSTEMS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("FROSTEMS_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Redacted returns a copy safe to print.
func (cfg Config) Redacted() Config {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return cfg
}
