/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package eviction selects victims to release when an admission needs
// more device space than is currently free. It implements the
// accumulate-then-sort-then-walk scan: gather every evictable entry,
// rank them from least to most recently useful, then walk the ranked
// list releasing entries until enough space has been freed or the
// candidates run out.
package eviction

import (
	"sort"

	"github.com/accelrt/hetmem/pkg/mapping"
)

// Candidate pairs an entry with the device bytes releasing it would
// free, since for a PART entry that is DevSize, not the full host
// range.
type Candidate struct {
	Entry        *mapping.Entry
	FreedOnEvict int64
}

// Collect scans every entry in entries and returns the ones eligible
// for eviction, ranked worst-first: highest score (TimeStamp+ReuseDist)
// first, ties broken by higher Reuse first. Entries pinned by an
// in-flight cluster admission, still referenced, or smaller than the
// small-object threshold are excluded entirely, per
// mapping.Entry.Evictable.
func Collect(entries []*mapping.Entry) []Candidate {
	var candidates []Candidate
	for _, e := range entries {
		if !e.Evictable() {
			continue
		}
		freed := e.DevSize
		if e.Location == mapping.Undecided || e.Location == mapping.Host {
			continue // nothing device-resident to reclaim
		}
		candidates = append(candidates, Candidate{Entry: e, FreedOnEvict: freed})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := candidates[i].Entry, candidates[j].Entry
		si, sj := ei.Score(), ej.Score()
		if si != sj {
			return si > sj
		}
		return ei.Reuse > ej.Reuse
	})
	return candidates
}

// Plan is the outcome of selecting victims to cover a requested byte
// count: the ordered list of entries to release, and whether the
// candidates collectively covered the request.
type Plan struct {
	Victims []*mapping.Entry
	Freed   int64
	Covered bool
}

// Select walks the ranked candidate list accumulating victims until
// needed bytes have been accounted for, or the candidates are
// exhausted. It performs no release itself: the caller is responsible
// for running each victim through mapping.Machine.Release and must
// stop early if a release fails outright, since Plan is computed
// against the state before any release happens.
func Select(entries []*mapping.Entry, needed int64) Plan {
	var plan Plan
	if needed <= 0 {
		plan.Covered = true
		return plan
	}
	for _, c := range Collect(entries) {
		plan.Victims = append(plan.Victims, c.Entry)
		plan.Freed += c.FreedOnEvict
		if plan.Freed >= needed {
			plan.Covered = true
			break
		}
	}
	return plan
}
