// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The proscenium CLI is the operator and player companion to the stage
// server: play a scene from the terminal, inspect sessions and profiles,
// and manage the local configuration.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ProsceniumAI/Proscenium/cmd/proscenium/config"
	"github.com/ProsceniumAI/Proscenium/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "proscenium",
	Short: "Play and operate Proscenium stage scenes from the terminal",
	Long: `proscenium is the companion CLI for the Proscenium stage server.

It can join a live scene as a player (console), inspect running sessions
and stored player profiles, and manage the local configuration at
~/.proscenium/proscenium.yaml.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// JSON logs when output is piped, text on a terminal.
		logger := logging.New(logging.Config{
			Level:   logging.LevelWarn,
			Service: "cli",
			JSON:    !isatty.IsTerminal(os.Stderr.Fd()),
		})
		slog.SetDefault(logger.Slog())

		// init writes the config itself; everything else needs it loaded.
		if cmd.Name() == "init" {
			return nil
		}
		return config.Load()
	}
}
