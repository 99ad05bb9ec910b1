/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package cluster groups buffers that a compute region uses together
// so the placement engine can admit or evict them as a unit rather
// than one buffer at a time.
package cluster

import "github.com/accelrt/hetmem/pkg/mapping"

// Type classifies a cluster by how uniformly its members can be
// placed on the device.
type Type int

const (
	// Dev clusters fit entirely on the device: every member is (or
	// can become) DEV, SOFT_DEV, or PART.
	Dev Type = iota
	// Mix clusters could not be admitted as a unit; some members
	// were split as PART or left on the host individually.
	Mix
)

func (t Type) String() string {
	if t == Dev {
		return "DEV"
	}
	return "MIX"
}

// Cluster is the set of buffers one compute region references
// together, keyed by a caller-supplied BaseKey that stays stable
// across repeated invocations of the same region so its cluster can
// be found again.
type Cluster struct {
	BaseKey uintptr
	Type    Type

	members []*mapping.Entry
	// size caches the sum of member host-range sizes. It is
	// recomputed incrementally on AddMember/RemoveMember rather than
	// by walking members on every read, since admission consults it
	// repeatedly while deciding how much device space the cluster
	// needs.
	size int64
}

// New returns an empty DEV-typed cluster for the given key. Callers
// reclassify it to Mix the first time a member falls back to a
// non-device residency.
func New(baseKey uintptr) *Cluster {
	return &Cluster{BaseKey: baseKey, Type: Dev}
}

// Members returns the cluster's current member entries. Callers must
// not mutate the returned slice.
func (c *Cluster) Members() []*mapping.Entry { return c.members }

// Size returns the total host-range bytes of all members.
func (c *Cluster) Size() int64 { return c.size }

// AddMember adds e to the cluster if it is not already a member.
func (c *Cluster) AddMember(e *mapping.Entry) {
	if e.InCluster(c.BaseKey) {
		return
	}
	c.members = append(c.members, e)
	c.size += e.HostRange.Size()
	e.AddCluster(c.BaseKey)
}

// RemoveMember drops e from the cluster.
func (c *Cluster) RemoveMember(e *mapping.Entry) {
	for i, cur := range c.members {
		if cur == e {
			c.members = append(c.members[:i], c.members[i+1:]...)
			c.size -= e.HostRange.Size()
			e.RemoveCluster(c.BaseKey)
			return
		}
	}
}

// DeviceResidentSize returns the bytes of c's members currently
// committed to the device (DEV, SOFT_DEV, UM, or the prefix of PART),
// as opposed to Size, which counts every member regardless of where
// it ended up.
func (c *Cluster) DeviceResidentSize() int64 {
	var total int64
	for _, e := range c.members {
		switch e.Location {
		case mapping.Dev, mapping.SoftDev, mapping.UM:
			total += e.DevSize
		case mapping.Part:
			total += e.DevSize
		}
	}
	return total
}

// Pin marks every member as ineligible for eviction for the duration
// of the current admission call, so the cluster can't be asked to
// evict its own members to make room for itself.
func (c *Cluster) Pin() {
	for _, e := range c.members {
		e.PinnedInCluster = true
	}
}

// Unpin reverses Pin once the admission call that required it has
// finished, successfully or not.
func (c *Cluster) Unpin() {
	for _, e := range c.members {
		e.PinnedInCluster = false
	}
}
