package main

import (
	"os"
	"time"

	"filter-explorer/internal/codec"
	"filter-explorer/internal/config"
	"filter-explorer/internal/filterservice"
	"filter-explorer/internal/logger"
	"filter-explorer/internal/services"
	"filter-explorer/internal/session"
	"filter-explorer/internal/shutdown"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	AppName    = "Filter Explorer"
	AppID      = "io.github.filter-explorer"
	AppVersion = "0.3.0"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// environment holds everything shared by the GUI and the headless commands.
type environment struct {
	cfg      config.Config
	log      logger.Logger
	registry *prometheus.Registry
	client   *filterservice.Client
	machine  *session.Machine
	images   *services.ImageService
	shutdown *shutdown.Manager
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "filter-explorer",
		Short: "Interactive image filtering against a remote filtering service",
		Long: `Filter Explorer loads an image, sends it to a filtering service one filter
at a time and shows the original next to the cumulative result.

Examples:
  filter-explorer                                    # open the window
  filter-explorer apply -i in.png -f gaussian_blur:7 -f canny -o out.png
  filter-explorer filters                            # list available filters`,
		Version:      AppVersion,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd, configPath)
			if err != nil {
				return err
			}
			return NewApplication(env).Run()
		},
	}

	flags := rootCmd.PersistentFlags()
	def := config.Default()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default ./filter-explorer.yaml)")
	flags.String("service-url", def.Service.URL, "filtering service route prefix")
	flags.Duration("timeout", def.Service.Timeout, "per-request timeout")
	flags.Int("kernel", int(def.Kernel.Default), "default kernel size for blur filters")
	flags.String("log-level", def.Log.Level, "log level: debug, info, warn, error")
	flags.String("log-format", def.Log.Format, "log format: console or json")

	rootCmd.AddCommand(newApplyCommand(&configPath))
	rootCmd.AddCommand(newFiltersCommand())

	return rootCmd
}

func newEnvironment(cmd *cobra.Command, configPath string) (*environment, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Format, level)

	registry := prometheus.NewRegistry()
	client := filterservice.NewClient(cfg.Service.URL,
		filterservice.WithTimeout(cfg.Service.Timeout),
		filterservice.WithLogger(log),
		filterservice.WithMetrics(filterservice.NewMetrics(registry)),
	)
	machine := session.New(client, codec.New(), log)

	env := &environment{
		cfg:      cfg,
		log:      log,
		registry: registry,
		client:   client,
		machine:  machine,
		images:   services.NewImageService(log),
		shutdown: shutdown.NewManager(log),
	}

	// Registered first so it reports after everything else has stopped.
	env.shutdown.Register("stats reporter", &statsReporter{env: env})
	env.shutdown.Register("filter client", client)

	log.Info("Main", "configuration loaded", map[string]interface{}{
		"service_url":    cfg.Service.URL,
		"timeout":        cfg.Service.Timeout.String(),
		"default_kernel": int(cfg.Kernel.Default),
		"version":        AppVersion,
	})
	return env, nil
}

// statsReporter logs session counters and request outcomes.
type statsReporter struct {
	env *environment
}

func (r *statsReporter) Report(message string) {
	stats := r.env.machine.Stats()
	fields := map[string]interface{}{
		"loads":    stats.Loads,
		"applied":  stats.Applied,
		"failed":   stats.Failed,
		"stale":    stats.Stale,
		"rejected": stats.Rejected,
	}
	if totals, err := filterservice.Summarize(r.env.registry); err == nil {
		for outcome, n := range totals {
			fields["requests_"+outcome] = n
		}
	}
	r.env.log.Info("Main", message, fields)
}

func (r *statsReporter) Shutdown() {
	r.Report("session statistics")
}

// Monitor reports every interval until shutdown begins.
func (r *statsReporter) Monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := r.env.shutdown.Done()
	for {
		select {
		case <-ticker.C:
			r.Report("periodic statistics")
		case <-done:
			return
		}
	}
}
