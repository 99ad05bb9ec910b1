/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package mapping defines the per-buffer mapping entry and the state
// machine that moves it between residency classes, issuing the driver
// calls each transition requires.
package mapping

import (
	"fmt"

	"github.com/accelrt/hetmem/pkg/flags"
)

// Location is a mapping entry's current residency class.
type Location int

const (
	// Undecided entries have no committed residency yet; the density
	// heuristic has deferred judgment until a compute region actually
	// touches the buffer.
	Undecided Location = iota
	// Dev is a dedicated device allocation, separate from the host
	// copy.
	Dev
	// SoftDev is a host-pinned buffer prefetched onto the device
	// without a separate device allocation.
	SoftDev
	// UM is unified managed memory, placement left to the accelerator
	// runtime's page migration.
	UM
	// Host is page-locked host memory with no device residency.
	Host
	// Part is a prefix-device/suffix-host split.
	Part
)

func (l Location) String() string {
	switch l {
	case Undecided:
		return "UNDECIDED"
	case Dev:
		return "DEV"
	case SoftDev:
		return "SOFT_DEV"
	case UM:
		return "UM"
	case Host:
		return "HOST"
	case Part:
		return "PART"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// HostRange is a half-open byte range [Begin, End) in host address
// space. Entries in the residency index never partially overlap one
// another: two ranges are either equal, disjoint, or one contains the
// other.
type HostRange struct {
	Begin uintptr
	End   uintptr
}

// Size returns the number of bytes the range covers.
func (r HostRange) Size() int64 { return int64(r.End - r.Begin) }

// Contains reports whether other lies entirely within r.
func (r HostRange) Contains(other HostRange) bool {
	return other.Begin >= r.Begin && other.End <= r.End
}

// Overlaps reports whether r and other share at least one byte.
func (r HostRange) Overlaps(other HostRange) bool {
	return r.Begin < other.End && other.Begin < r.End
}

// SmallObjectThreshold is the size below which a buffer is never
// selected as an eviction victim, regardless of its score: the driver
// calls needed to evict it cost more than leaving it resident.
const SmallObjectThreshold = 4096

// Entry is the placement engine's per-buffer record. One Entry exists
// per distinct host range ever seen by decideMapping, whether or not a
// placement decision has been made for it yet.
type Entry struct {
	HostRange HostRange

	// Location is the current residency class. A freshly created
	// entry starts Undecided.
	Location Location

	// DevicePtr is the device-side address, valid only when Location
	// is Dev, SoftDev, UM, or Part (for Part, the device-resident
	// prefix).
	DevicePtr uintptr
	// DevSize is the number of bytes actually committed on the
	// device. For Part this is the prefix length; for Dev/SoftDev/UM
	// it equals HostRange.Size().
	DevSize int64

	// MapFlags is the most recently seen argument flag word for this
	// buffer, residency bits included. It is kept for diagnostics and
	// for entries that are recreated after an eviction.
	MapFlags flags.Word

	// IsValid reports whether the device copy (if any) holds data
	// consistent with the host copy. A failed driver transfer clears
	// this without reverting Location; the entry stays resident but
	// logically invalid until the next successful transfer.
	IsValid bool

	// RefCount is incremented by each concurrently active region that
	// references this buffer and decremented when the region returns.
	// An entry with RefCount > 0 is never chosen as an eviction victim.
	RefCount int64

	// TimeStamp is the GlobalClock value as of the most recent touch.
	TimeStamp uint64
	// Reuse is the global reuse count (Rank) most recently supplied
	// for this buffer.
	Reuse int64
	// ReuseDist is the predicted reuse distance most recently supplied
	// for this buffer.
	ReuseDist int64

	// PinnedInCluster reports whether this entry is a current member
	// of a DEV cluster that is being admitted in the same call; such
	// entries are excluded from eviction consideration during that
	// call, even with RefCount == 0, so a cluster can't evict its own
	// members to make room for itself.
	PinnedInCluster bool

	// ClusterKeys holds the BaseKey of every cluster this entry is
	// currently a member of. Membership is by key, not by direct
	// pointer, so mapping never needs to import the cluster package.
	ClusterKeys map[uintptr]struct{}

	// Dirty records that the device copy has outstanding writes that
	// have not yet been flushed back on a FROM/release transfer.
	Dirty bool
}

// NewEntry creates a fresh, Undecided entry for the given range.
func NewEntry(hr HostRange) *Entry {
	return &Entry{
		HostRange:   hr,
		Location:    Undecided,
		ClusterKeys: make(map[uintptr]struct{}),
	}
}

// AddCluster records membership in the cluster identified by key.
func (e *Entry) AddCluster(key uintptr) { e.ClusterKeys[key] = struct{}{} }

// RemoveCluster drops membership in the cluster identified by key.
func (e *Entry) RemoveCluster(key uintptr) { delete(e.ClusterKeys, key) }

// InCluster reports whether the entry currently belongs to the
// cluster identified by key.
func (e *Entry) InCluster(key uintptr) bool {
	_, ok := e.ClusterKeys[key]
	return ok
}

// Evictable reports whether this entry may be chosen as an eviction
// victim right now: no outstanding references, not pinned by an
// in-flight cluster admission, and large enough to be worth the
// driver round trip.
func (e *Entry) Evictable() bool {
	return e.RefCount == 0 && !e.PinnedInCluster && e.HostRange.Size() >= SmallObjectThreshold
}

// Score is the eviction selector's ranking value: entries with a
// larger TimeStamp+ReuseDist are less likely to be touched again soon
// and are preferred as victims.
func (e *Entry) Score() int64 {
	return int64(e.TimeStamp) + e.ReuseDist
}
