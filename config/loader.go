package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

// Load reads a YAML or JSON configuration file and applies defaults. The
// format is inferred from the file extension.
func Load(path string) (*BdkConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return unmarshal(v)
}

// LoadFromReader reads configuration content in the given format
// ("yaml" or "json").
func LoadFromReader(r io.Reader, format string) (*BdkConfig, error) {
	v := viper.New()
	v.SetConfigType(strings.ToLower(format))
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*BdkConfig, error) {
	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
