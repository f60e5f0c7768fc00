// Command sprintexportd serves sprint CSV exports over a Unix control socket
// and HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewfead/sprintexport/internal/config"
	"github.com/drewfead/sprintexport/internal/daemon"
	"github.com/drewfead/sprintexport/internal/logging"
)

// Version is set at build time
var Version = "dev"

func main() {
	var configPath string
	exitCode := 0

	root := &cobra.Command{
		Use:           "sprintexportd",
		Short:         "Serve Jira sprint CSV exports",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			exitCode = run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(configPath string) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "component", "main")
			fmt.Fprintf(os.Stderr, "FATAL: unrecovered panic: %v\n", r)
			exitCode = 2
		}
	}()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	if err := logging.Init(logging.Config{
		Level:     logging.ParseLevel(cfg.Daemon.LogLevel),
		Format:    os.Getenv("SPRINTEXPORT_LOG_FORMAT"),
		SentryDSN: cfg.Daemon.SentryDSN,
		Env:       getEnv(),
		Version:   Version,
		LogFile:   cfg.Daemon.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Flush(2 * time.Second)

	d, err := daemon.New(cfg, Version)
	if err != nil {
		logging.Error("failed to initialize daemon", "error", err)
		return 1
	}

	logging.Info("starting sprintexportd",
		"version", Version,
		"socket", cfg.Daemon.Socket,
		"http", cfg.Daemon.HTTPAddr,
		"jira", cfg.Jira.BaseURL,
		"sentry", cfg.Daemon.SentryDSN != "",
	)

	if err := d.Run(); err != nil {
		logging.Error("daemon error", "error", err)
		return 1
	}
	return 0
}

func getEnv() string {
	if env := os.Getenv("SPRINTEXPORT_ENV"); env != "" {
		return env
	}
	return "development"
}
