// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// API key handling.
//
// Keys rest inside a memguard enclave (mlocked, encrypted, guarded pages)
// and are only materialized for the duration of one backend call. If the
// process lacks mlock headroom the server refuses to start unless
// PROSCENIUM_INSECURE_MEMORY=true explicitly accepts plain memory.
package genai

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the smallest mlock limit considered workable for the
// handful of small buffers this package locks.
const MinMlockLimitKB = 64

// insecureMemoryEnv accepts plain-memory key storage when mlock limits are
// too low.
const insecureMemoryEnv = "PROSCENIUM_INSECURE_MEMORY"

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// initMemguard performs one-time memguard setup and mlock validation.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit insufficient for secure key storage",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"env_override", insecureMemoryEnv+"=true",
			)
		}
	})
}

// checkMlockLimit queries the kernel for the current mlock resource limit.
// Returns (true, -1) when the limit is unlimited or unknowable.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// APIKey is a backend credential at rest. In the normal mode the key lives
// in a sealed enclave; in insecure mode (explicit opt-in) it is a plain
// string.
type APIKey struct {
	enclave *memguard.Enclave
	plain   string
}

// LoadAPIKey resolves a credential from the named environment variable,
// falling back to a container secret file, and seals it.
func LoadAPIKey(envVar, secretPath string) (*APIKey, error) {
	initMemguard()

	value := os.Getenv(envVar)
	if value == "" && secretPath != "" {
		raw, err := os.ReadFile(secretPath)
		if err == nil {
			value = strings.TrimSpace(string(raw))
			slog.Info("Read API key from secret file", "path", secretPath)
		}
	}
	if value == "" {
		return nil, fmt.Errorf("%s not set and no secret found at %s", envVar, secretPath)
	}

	if !mlockSufficient {
		if os.Getenv(insecureMemoryEnv) != "true" {
			return nil, fmt.Errorf(
				"mlock limit insufficient: have %d KB, need %d KB. "+
					"Raise the limit or set %s=true",
				currentMlockLimitKB, MinMlockLimitKB, insecureMemoryEnv,
			)
		}
		slog.Warn("Storing API key in plain memory", "env_override", insecureMemoryEnv)
		return &APIKey{plain: value}, nil
	}

	return &APIKey{enclave: memguard.NewEnclave([]byte(value))}, nil
}

// Open materializes the key into a locked buffer. The caller must Destroy
// the buffer as soon as the call that needed it returns; strings derived
// from the buffer alias its memory and die with it.
func (k *APIKey) Open() (*memguard.LockedBuffer, error) {
	if k.enclave != nil {
		return k.enclave.Open()
	}
	return memguard.NewBufferFromBytes([]byte(k.plain)), nil
}
