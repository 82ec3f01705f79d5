// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package genai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles an inner backend with a token bucket shared across
// all sessions. Waiting respects the caller's context, so a turn deadline
// also bounds time spent queued for a slot.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter of rps requests per second.
func NewRateLimited(inner Backend, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Generate implements the Backend interface.
func (r *RateLimited) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait aborted: %w", err)
	}
	return r.inner.Generate(ctx, prompt, params)
}
