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

	"github.com/spf13/cobra"

	"github.com/ProsceniumAI/Proscenium/cmd/proscenium/config"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the stage server is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status struct {
			Status  string `json:"status"`
			Service string `json:"service"`
		}
		if err := apiGet("/health", &status); err != nil {
			fmt.Printf("%s stage server unreachable at %s\n", badMark(), config.Global.Server.URL)
			return err
		}
		fmt.Printf("%s %s is %s at %s\n", okMark(), status.Service, status.Status,
			config.Global.Server.URL)
		return nil
	},
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List the scenes the stage server can play",
	RunE: func(cmd *cobra.Command, args []string) error {
		var reply struct {
			Scenes []string `json:"scenes"`
		}
		if err := apiGet("/v1/scenes", &reply); err != nil {
			return err
		}
		for _, scene := range reply.Scenes {
			fmt.Println(scene)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions on the stage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		var reply struct {
			Sessions []struct {
				ID       string `json:"id"`
				PlayerID string `json:"player_id"`
				Scene    string `json:"scene"`
				Actions  int    `json:"actions"`
			} `json:"sessions"`
			Count int `json:"count"`
		}
		if err := apiGet("/v1/sessions", &reply); err != nil {
			return err
		}
		if reply.Count == 0 {
			fmt.Println("no live sessions")
			return nil
		}
		for _, s := range reply.Sessions {
			fmt.Printf("%s  player=%s scene=%s actions=%d\n", s.ID, s.PlayerID, s.Scene, s.Actions)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(scenesCmd)
	rootCmd.AddCommand(sessionsCmd)
}
