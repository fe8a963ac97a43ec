// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kodiakviz/kodiakview/pkg/logging"
	"github.com/kodiakviz/kodiakview/services/viewport"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const defaultConfigPath = "config.yaml"

var (
	configPath string
	port       int
	backend    string
	remoteURL  string
	ladderPath string
	logDir     string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "kodiakview",
		Short: "A progressive viewport streaming server for remote scene rendering",
		Long: `KodiakView serves interactively rendered viewports: camera poses go
in, progressively refined frames come out. Stale work is abandoned the
moment a newer pose arrives.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the viewport service",
		Run:   runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the kodiakview version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("kodiakview", Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the YAML config file")

	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&backend, "backend", "", "Renderer backend: preview or remote (overrides config)")
	serveCmd.Flags().StringVar(&remoteURL, "remote-url", "", "Remote renderer base URL (overrides config)")
	serveCmd.Flags().StringVar(&ladderPath, "ladder", "", "Quality ladder YAML, hot reloaded (overrides config)")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (stderr only when empty)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Viewport
	if port != 0 {
		cfg.Port = port
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if ladderPath != "" {
		cfg.LadderPath = ladderPath
	}

	level := config.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(logging.Config{
		Level:   parseLevel(level),
		Service: "kodiakview",
		LogDir:  logDir,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	svc, err := viewport.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build the viewport service: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Viewport service failed: %v", err)
	}
	slog.Info("viewport service stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
