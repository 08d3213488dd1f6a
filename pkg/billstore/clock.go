// Copyright 2025 Certen Protocol

package billstore

import "time"

// SystemClock reads the wall clock. It is the only place in this module
// allowed to do so — derivation and validation always take now as an
// explicit argument instead (§9).
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant, useful for deterministic
// tests that need to control now precisely.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }
