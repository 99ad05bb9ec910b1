/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package placement implements the density heuristic that decides,
// for a buffer with no existing device residency, whether it is worth
// prefetching onto the device at all.
package placement

import "github.com/accelrt/hetmem/pkg/flags"

// DensityThreshold is the cutoff below which a buffer is judged too
// sparsely reused, relative to its size, to justify a device-resident
// copy.
const DensityThreshold = 0.5

// localReuseScale divides the raw local-reuse count before it enters
// the density formula, flattening the count's influence relative to
// trip count and size.
const localReuseScale = 8.0

// Decision is the placement policy's verdict for a buffer with no
// prior residency.
type Decision int

const (
	// Undecided means there wasn't enough information (no rank, zero
	// trip count, or zero size) to compute a density at all; the
	// caller should defer judgment to the next touch.
	Undecided Decision = iota
	// SoftDev means the buffer is dense enough to prefetch onto the
	// device without a dedicated allocation.
	SoftDev
	// UM means the buffer is too sparse to warrant prefetching; leave
	// it in unified managed memory and let the accelerator runtime's
	// page migration handle it.
	UM
)

func (d Decision) String() string {
	switch d {
	case SoftDev:
		return "SOFT_DEV"
	case UM:
		return "UM"
	default:
		return "UNDECIDED"
	}
}

// Density computes (localReuse/8) * tripCount / size. It is exported
// separately from Classify so callers that only need the raw number
// (diagnostics, tests) don't have to reverse the threshold.
func Density(localReuse, tripCount, size int64) float64 {
	if size <= 0 {
		return 0
	}
	return (float64(localReuse) / localReuseScale) * float64(tripCount) / float64(size)
}

// Classify applies the density heuristic to a buffer's reuse
// metadata, host-range size, and the trip count of the compute region
// currently referencing it.
func Classify(localReuse, tripCount, size int64) Decision {
	if tripCount <= 0 || size <= 0 {
		return Undecided
	}
	if Density(localReuse, tripCount, size) < DensityThreshold {
		return UM
	}
	return SoftDev
}

// ClassifyArgument is a convenience wrapper that pulls LocalReuse
// straight out of an argument flag word.
func ClassifyArgument(w flags.Word, tripCount, size int64) Decision {
	if !w.HasRank() {
		return Undecided
	}
	return Classify(w.LocalReuse(), tripCount, size)
}
