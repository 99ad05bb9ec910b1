/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package admission decides how a cluster of buffers is brought onto
// the device together: fast-path straight onto the device if there is
// room, evict to make room if there isn't, or fall back to placing
// members individually (on the device, split as PART, or on the host)
// if even eviction cannot make enough room.
package admission

import (
	"context"

	"github.com/accelrt/hetmem/pkg/budget"
	"github.com/accelrt/hetmem/pkg/cluster"
	"github.com/accelrt/hetmem/pkg/eviction"
	"github.com/accelrt/hetmem/pkg/log"
	"github.com/accelrt/hetmem/pkg/mapping"
	"github.com/accelrt/hetmem/pkg/residency"
)

// Request is one member's admission ask: the entry, the residency it
// should end up in, and how many device bytes that residency needs.
type Request struct {
	Entry    *mapping.Entry
	Decision mapping.Location
	NeededBytes int64
	// NeedsData reports whether the device copy must be initialized
	// from the host copy (false for a write-only first touch).
	NeedsData bool
}

// MemberOutcome records what actually happened to one requested
// member, which may differ from its Request.Decision if the cluster
// fell back to MIX.
type MemberOutcome struct {
	Entry    *mapping.Entry
	Decision mapping.Location
	// Partial is set when NeedsData would not fully fit and the
	// member was split into a PART mapping instead.
	Partial bool
}

// Outcome is the result of admitting a cluster.
type Outcome struct {
	Type     cluster.Type
	Members  []MemberOutcome
	Evicted  []*mapping.Entry
}

// smallestUsefulPart is the minimum device-resident prefix worth
// creating a PART mapping for; below this, the driver round trips
// cost more than the prefetch is worth.
const smallestUsefulPart = mapping.SmallObjectThreshold

// AdmitCluster runs the DEV fast path, falling back to the eviction
// slow path and finally to a per-member MIX fallback, per the
// transition table each member's request implies. clusters is the
// registry every entry's ClusterKeys are checked against so a buffer
// that belongs to some other still-DEV cluster is never selected as a
// victim, per invariant 6: an entry belongs to a DEV cluster for as
// long as that cluster remains DEV, independent of the transient
// per-call Cluster.Pin used for the cluster currently being formed.
func AdmitCluster(ctx context.Context, c *cluster.Cluster, b *budget.Device, idx *residency.Index, clusters *cluster.Registry, m *mapping.Machine, requests []Request) (Outcome, error) {
	logger := log.L()
	total := int64(0)
	for _, r := range requests {
		total += r.NeededBytes
	}

	c.Pin()
	defer c.Unpin()

	if total <= b.Avail() {
		return admitAll(ctx, c, b, m, requests)
	}

	logger.Debugw("cluster admission needs eviction", "cluster", c.BaseKey, "needed", total, "avail", b.Avail())
	needed := total - b.Avail()
	plan := eviction.Select(evictionCandidates(idx.All(), clusters), needed)
	for _, victim := range plan.Victims {
		if err := m.Release(ctx, victim); err != nil {
			return Outcome{}, err
		}
	}

	if plan.Covered || total <= b.Avail() {
		return admitAll(ctx, c, b, m, requests)
	}

	logger.Debugw("cluster admission falling back to MIX", "cluster", c.BaseKey, "stillNeeded", total-b.Avail())
	return admitMixFallback(ctx, c, b, m, requests)
}

func admitAll(ctx context.Context, c *cluster.Cluster, b *budget.Device, m *mapping.Machine, requests []Request) (Outcome, error) {
	out := Outcome{Type: cluster.Dev}
	for _, r := range requests {
		if err := transition(ctx, m, r.Entry, r.Decision, r.NeededBytes, r.NeedsData); err != nil {
			return Outcome{}, err
		}
		c.AddMember(r.Entry)
		out.Members = append(out.Members, MemberOutcome{Entry: r.Entry, Decision: r.Decision})
	}
	c.Type = cluster.Dev
	return out, nil
}

// admitMixFallback places as many members on the device as still fit,
// tightest-fitting first, running the Partial Placement subroutine on
// whichever member first fails to fit fully, then sends everything
// left over to HOST.
func admitMixFallback(ctx context.Context, c *cluster.Cluster, b *budget.Device, m *mapping.Machine, requests []Request) (Outcome, error) {
	out := Outcome{Type: cluster.Mix}
	for _, r := range requests {
		avail := b.Avail()
		switch {
		case r.NeededBytes <= avail:
			if err := transition(ctx, m, r.Entry, r.Decision, r.NeededBytes, r.NeedsData); err != nil {
				return Outcome{}, err
			}
			c.AddMember(r.Entry)
			out.Members = append(out.Members, MemberOutcome{Entry: r.Entry, Decision: r.Decision})
		case avail >= smallestUsefulPart:
			// ToPart(avail) always consumes every remaining device
			// byte, so every later iteration's avail falls below
			// smallestUsefulPart and takes the HOST branch below: at
			// most one member becomes PART per call. A future change
			// to ToPart's prefix sizing that leaves bytes uncommitted
			// would need an explicit "already placed a PART member"
			// guard here to preserve that.
			if err := m.ToPart(ctx, r.Entry, avail); err != nil {
				return Outcome{}, err
			}
			c.AddMember(r.Entry)
			out.Members = append(out.Members, MemberOutcome{Entry: r.Entry, Decision: mapping.Part, Partial: true})
		default:
			if err := m.ToHost(ctx, r.Entry); err != nil {
				return Outcome{}, err
			}
			c.AddMember(r.Entry)
			out.Members = append(out.Members, MemberOutcome{Entry: r.Entry, Decision: mapping.Host})
		}
	}
	c.Type = cluster.Mix
	return out, nil
}

// evictionCandidates drops any entry that belongs to a cluster still
// typed DEV from the pool eviction.Select is allowed to pick from.
// mapping.Entry.Evictable and eviction.Collect already exclude
// RefCount>0, transiently PinnedInCluster, and sub-threshold entries;
// this adds the one exclusion that needs the cluster registry rather
// than anything recorded directly on the entry.
func evictionCandidates(entries []*mapping.Entry, clusters *cluster.Registry) []*mapping.Entry {
	if clusters == nil {
		return entries
	}
	out := make([]*mapping.Entry, 0, len(entries))
	for _, e := range entries {
		inDevCluster := false
		for key := range e.ClusterKeys {
			if owner, ok := clusters.Lookup(key); ok && owner.Type == cluster.Dev {
				inDevCluster = true
				break
			}
		}
		if !inDevCluster {
			out = append(out, e)
		}
	}
	return out
}

func transition(ctx context.Context, m *mapping.Machine, e *mapping.Entry, decision mapping.Location, neededBytes int64, needsData bool) error {
	switch decision {
	case mapping.Dev:
		return m.ToDev(ctx, e, needsData)
	case mapping.SoftDev:
		return m.ToSoftDev(ctx, e)
	case mapping.UM:
		return m.ToUM(ctx, e)
	case mapping.Host:
		return m.ToHost(ctx, e)
	case mapping.Part:
		return m.ToPart(ctx, e, neededBytes)
	default:
		panic("admission: unknown transition target " + decision.String())
	}
}
