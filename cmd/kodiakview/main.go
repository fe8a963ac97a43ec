// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kodiakviz/kodiakview/services/viewport"
)

// fileConfig is the on-disk shape of config.yaml. Only the viewport
// section exists today.
type fileConfig struct {
	Viewport viewport.Config `yaml:"viewport"`
	LogLevel string          `yaml:"log_level"`
}

var config = fileConfig{
	Viewport: viewport.DefaultConfig(),
	LogLevel: "info",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			if configPath != defaultConfigPath {
				log.Fatalf("Error reading %s: %v", configPath, err)
			}
			// No config file is fine; defaults and flags carry it.
			return
		}
		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
	}
}
