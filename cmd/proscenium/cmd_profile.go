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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect stored player profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored player IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var reply struct {
			Players []string `json:"players"`
		}
		if err := apiGet("/v1/profiles", &reply); err != nil {
			return err
		}
		if len(reply.Players) == 0 {
			fmt.Println("no stored profiles")
			return nil
		}
		for _, id := range reply.Players {
			fmt.Println(id)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <player-id>",
	Short: "Show one player's stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var profile map[string]any
		if err := apiGet("/v1/profiles/"+args[0], &profile); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <player-id>",
	Short: "Delete one player's stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDelete("/v1/profiles/"+args[0], nil); err != nil {
			return err
		}
		fmt.Printf("%s deleted profile %s\n", okMark(), args[0])
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}
