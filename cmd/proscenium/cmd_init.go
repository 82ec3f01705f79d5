// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ProsceniumAI/Proscenium/cmd/proscenium/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or update ~/.proscenium/proscenium.yaml interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		// Pre-fill from an existing config so init doubles as an editor.
		if err := config.Load(); err == nil {
			cfg = config.Global
			if cfg.Server.URL == "" {
				cfg.Server.URL = config.DefaultConfig().Server.URL
			}
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Stage server URL").
					Description("Where the stage server listens, e.g. http://localhost:12300").
					Value(&cfg.Server.URL).
					Validate(validateServerURL),
				huh.NewInput().
					Title("Player ID").
					Description("Your durable player identity (blank for per-session anonymous)").
					Value(&cfg.Player.ID),
				huh.NewInput().
					Title("Default scene").
					Description("Scene to join when none is given (blank for the built-in scene)").
					Value(&cfg.Player.Scene),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		if err := config.Save(cfg); err != nil {
			return err
		}
		path, _ := config.Path()
		fmt.Printf("%s wrote %s\n", okMark(), path)
		return nil
	},
}

func validateServerURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("the server URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("enter a full URL like http://localhost:12300")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("the scheme must be http or https")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
