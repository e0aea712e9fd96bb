package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chrissnell/fluxprep/internal/app"
	"github.com/chrissnell/fluxprep/internal/log"
	"github.com/chrissnell/fluxprep/internal/types"
	"github.com/chrissnell/fluxprep/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", config.Getenv(config.EnvConfigPath, "config.yaml"), "Path to configuration source:\n\t\t\t  YAML: config.yaml\n\t\t\t  SQLite: config.db\n\t\t\t  Use 'config-convert' tool to convert YAML→SQLite")
	cfgBackend := flag.String("config-backend", config.Getenv(config.EnvConfigBackend, "yaml"), "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	online := flag.Bool("now", false, "Process the trailing traceback window ending today (online mode)")
	traceback := flag.Int("traceback", 0, "Number of days reprocessed in online mode (default from config, 3 if unset)")
	schedule := flag.Duration("schedule", 0, "Run online mode periodically, e.g. 30m, until interrupted")
	perVariable := flag.Bool("v", false, "Request each variable separately (slow mode, use when a batch request fails)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	var silent bool
	flag.BoolVar(&silent, "silent", false, "Do not log daily summaries")
	flag.BoolVar(&silent, "s", false, "Shorthand for -silent")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fluxprep %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	config.LoadEnv(log.GetSugaredLogger())

	// Load configuration
	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	opts := app.Options{
		TracebackDays: *traceback,
		Schedule:      *schedule,
		Silent:        silent,
		PerVariable:   *perVariable,
	}
	if *online {
		opts.Mode = types.ModeOnline
		opts.Now = time.Now()
	}

	// Create and run the application
	application := app.New(cfgData, opts, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	provider, err := config.NewProvider(cfgBackend, filename)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	cfgData, err := config.Load(provider)
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
