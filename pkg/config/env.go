package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Environment variables that override file based configuration
const (
	EnvConfigPath    = "FLUXPREP_CONFIG"
	EnvConfigBackend = "FLUXPREP_CONFIG_BACKEND"
	EnvSMEARURL      = "FLUXPREP_SMEAR_URL"
	EnvSilent        = "FLUXPREP_SILENT"
	EnvTraceback     = "FLUXPREP_TRACEBACK_DAYS"
)

// LoadEnv reads a .env file from the working directory if one exists
func LoadEnv(logger *zap.SugaredLogger) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}
}

// Getenv returns the value of key or def when unset
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ApplyEnv overrides configuration values from the environment
func (c *ConfigData) ApplyEnv() error {
	if url := os.Getenv(EnvSMEARURL); url != "" {
		if c.Sources.SMEAR == nil {
			c.Sources.SMEAR = &SMEARData{}
		}
		c.Sources.SMEAR.URL = url
	}
	if v := os.Getenv(EnvSilent); v != "" {
		silent, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSilent, err)
		}
		c.Run.Silent = silent
	}
	if v := os.Getenv(EnvTraceback); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return fmt.Errorf("invalid %s %q", EnvTraceback, v)
		}
		c.Run.TracebackDays = days
	}
	return nil
}
