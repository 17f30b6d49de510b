package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// fileConfig is the shape of the optional config file. Message keys contain
// dots, so the file is read with a "::" key delimiter.
type fileConfig struct {
	Server struct {
		Hosts          []string      `mapstructure:"hosts"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"server"`

	Cache struct {
		Driver     string        `mapstructure:"driver"`
		Prefix     string        `mapstructure:"prefix"`
		DefaultTTL time.Duration `mapstructure:"default_ttl"`
	} `mapstructure:"cache"`

	Responders map[string]ResponderConfig `mapstructure:"responders"`
	Messages   map[string]string          `mapstructure:"messages"`
	Route404   *Route404Config            `mapstructure:"route404"`
}

// mergeFile reads path (YAML, TOML or JSON by extension) over config.
func mergeFile(config *Config, path string) error {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &fc,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	if len(fc.Server.Hosts) > 0 {
		config.Server.Hosts = fc.Server.Hosts
	}
	if fc.Server.RequestTimeout > 0 {
		config.Server.RequestTimeout = fc.Server.RequestTimeout
	}
	if fc.Cache.Driver != "" {
		config.Cache.Driver = fc.Cache.Driver
	}
	if fc.Cache.Prefix != "" {
		config.Cache.Prefix = fc.Cache.Prefix
	}
	if fc.Cache.DefaultTTL > 0 {
		config.Cache.DefaultTTL = fc.Cache.DefaultTTL
	}
	for name, r := range fc.Responders {
		config.Responders[name] = r
	}
	for key, msg := range fc.Messages {
		config.Messages[key] = msg
	}
	if fc.Route404 != nil {
		config.Route404 = *fc.Route404
	}
	return nil
}
