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
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ProsceniumAI/Proscenium/cmd/proscenium/config"
)

// apiTimeout bounds one admin API call.
const apiTimeout = 10 * time.Second

var apiClient = &http.Client{Timeout: apiTimeout}

// serverURL joins the configured server base with an API path.
func serverURL(path string) string {
	base := strings.TrimRight(config.Global.Server.URL, "/")
	return base + path
}

// wsURL converts the configured HTTP base into the play socket URL.
func wsURL(scene, playerID, sessionID string) (string, error) {
	parsed, err := url.Parse(config.Global.Server.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", config.Global.Server.URL, err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/v1/play/ws"

	query := url.Values{}
	if scene != "" {
		query.Set("scene", scene)
	}
	if playerID != "" {
		query.Set("player_id", playerID)
	}
	if sessionID != "" {
		query.Set("session_id", sessionID)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// apiGet fetches path and decodes the JSON response into out.
func apiGet(path string, out any) error {
	return apiDo(http.MethodGet, path, out)
}

// apiDelete issues a DELETE and decodes the JSON response into out.
func apiDelete(path string, out any) error {
	return apiDo(http.MethodDelete, path, out)
}

func apiDo(method, path string, out any) error {
	req, err := http.NewRequest(method, serverURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach the stage server at %s: %w",
			config.Global.Server.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: server answered %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
