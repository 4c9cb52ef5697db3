package config

import (
	"fmt"

	"go.uber.org/fx"
)

// NewProvider supplies a prebuilt config when one is given, otherwise the
// environment is loaded. Both paths go through the same validation.
func NewProvider(customConfig *Config) fx.Option {
	return fx.Provide(func() (*Config, error) {
		if customConfig != nil {
			if err := Validate(customConfig); err != nil {
				return nil, fmt.Errorf("invalid config: %w", err)
			}
			return customConfig, nil
		}

		cfg := &Config{}
		if err := LoadConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	})
}
