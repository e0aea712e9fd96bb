package config

import "fmt"

// NewProvider opens the configuration backend by name
func NewProvider(backend, path string) (ConfigProvider, error) {
	switch backend {
	case "", "yaml":
		return NewYAMLProvider(path), nil
	case "sqlite":
		return NewSQLiteProvider(path)
	default:
		return nil, fmt.Errorf("unsupported config backend: %s (supported: yaml, sqlite)", backend)
	}
}

// Load reads, defaults and validates a configuration from provider
func Load(provider ConfigProvider) (*ConfigData, error) {
	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
