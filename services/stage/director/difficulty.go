// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package director

import "github.com/ProsceniumAI/Proscenium/services/stage/datatypes"

// ComputeDifficulty maps outcome history to a challenge multiplier and a
// hint cadence.
//
// # Description
//
//	Pure function of (successRate, attempts). The multiplier drifts from
//	1.0 toward a rate-determined target as evidence accumulates, so one
//	lucky scene barely moves it while a long streak does. Struggling
//	players land below 1.0 with frequent hints; skilled players land above
//	1.0 with rare hints.
//
// # Inputs
//
//	successRate - Fraction of scenes won, in [0, 1].
//	attempts - Total scenes finished. Zero means no history.
//
// # Outputs
//
//	datatypes.Difficulty - Multiplier in (0.6, 1.4) and hint cadence. With
//	no history the multiplier is exactly 1.0.
func ComputeDifficulty(successRate float64, attempts int) datatypes.Difficulty {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	if attempts < 0 {
		attempts = 0
	}

	target := 0.6 + 0.8*successRate
	n := float64(attempts)
	multiplier := 1 + (target-1)*n/(n+1)

	var cadence datatypes.HintFrequency
	switch {
	case successRate < 0.35:
		cadence = datatypes.HintFrequent
	case successRate < 0.7:
		cadence = datatypes.HintOccasional
	default:
		cadence = datatypes.HintRare
	}

	return datatypes.Difficulty{Multiplier: multiplier, HintFrequency: cadence}
}
