package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// decodeHook turns "5s" style strings into durations and comma separated
// strings into slices.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// merge fills cfg from the parsed flag set and, if --config names one,
// the config file. Precedence: explicit flag, file, flag default.
func merge(fs *pflag.FlagSet, cfg *Config) error {
	v := viper.New()
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// LoadFile reads path into cfg, leaving fields the file does not set.
func LoadFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}
