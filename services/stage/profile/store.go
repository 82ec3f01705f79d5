// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile persists player behavioral profiles.
//
// Profiles live in an embedded BadgerDB so a single-process deployment
// needs no external database. Writes happen only at scene and session
// boundaries; a write failure is logged by the caller and retried at the
// next boundary, so Save must stay idempotent.
package profile

import (
	"context"
	"errors"

	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
)

// ErrNotFound is returned by Load when no profile exists for the player.
var ErrNotFound = errors.New("profile not found")

// Store is the persistence contract the session layer depends on.
type Store interface {
	// Load fetches the profile for playerID, or ErrNotFound.
	Load(ctx context.Context, playerID string) (*datatypes.PlayerProfile, error)

	// Save writes the profile, overwriting any previous version. Safe to
	// retry.
	Save(ctx context.Context, p *datatypes.PlayerProfile) error

	// List returns the IDs of every stored profile, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes a profile. Deleting a missing profile is not an error.
	Delete(ctx context.Context, playerID string) error

	Close() error
}

const keyPrefix = "profile/"

func profileKey(playerID string) []byte {
	return []byte(keyPrefix + playerID)
}
