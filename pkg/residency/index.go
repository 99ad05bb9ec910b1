/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package residency implements the interval map over host address
// ranges that backs every other component's notion of "is this buffer
// already known, and how does a new query relate to it". It holds no
// policy: it only classifies a query range against the entries it
// already has and returns the match, if any.
package residency

import (
	"github.com/accelrt/hetmem/pkg/mapping"
)

// QueryResult classifies how a query range relates to an existing
// entry, if one was found.
type QueryResult int

const (
	// NotFound means no entry overlaps the query range at all.
	NotFound QueryResult = iota
	// IsContained means the query range lies entirely within an
	// existing, valid entry (the common case: an exact repeat map or a
	// sub-range of a larger mapped object).
	IsContained
	// ExtendsBefore means the query range shares its end with an
	// existing valid entry's end, but starts earlier, asking to grow
	// the mapping backward.
	ExtendsBefore
	// ExtendsAfter means the query range shares its start with an
	// existing valid entry's start, but ends later, asking to grow
	// the mapping forward.
	ExtendsAfter
	// InvalidContained is IsContained, but the matched entry's device
	// copy is currently marked invalid (a prior transfer failed).
	InvalidContained
	// InvalidExtendsBefore is ExtendsBefore against an invalid entry.
	InvalidExtendsBefore
	// InvalidExtendsAfter is ExtendsAfter against an invalid entry.
	InvalidExtendsAfter
)

// Index is the interval map of host ranges to mapping entries. It is
// not internally synchronized: callers hold the engine-wide mapping
// mutex for the duration of any call into it. Entries are kept in
// insertion order so that full scans (used by the eviction selector)
// are reproducible between runs given the same call sequence.
type Index struct {
	entries []*mapping.Entry
}

// NewIndex returns an empty residency index.
func NewIndex() *Index {
	return &Index{}
}

// Lookup classifies hr against the entries already in the index and
// returns the best match, if any. When the range is an exact or
// sub-range match of more than one candidate that cannot happen: by
// invariant, entries are pairwise equal or disjoint, so at most one
// entry can contain or share a boundary with hr.
func (idx *Index) Lookup(hr mapping.HostRange) (QueryResult, *mapping.Entry) {
	for _, e := range idx.entries {
		result, ok := classify(hr, e.HostRange)
		if !ok {
			continue
		}
		if !e.IsValid {
			switch result {
			case IsContained:
				result = InvalidContained
			case ExtendsBefore:
				result = InvalidExtendsBefore
			case ExtendsAfter:
				result = InvalidExtendsAfter
			}
		}
		return result, e
	}
	return NotFound, nil
}

// classify reports how query relates to existing, and whether it
// relates at all.
func classify(query, existing mapping.HostRange) (QueryResult, bool) {
	if existing.Contains(query) {
		return IsContained, true
	}
	if !query.Overlaps(existing) {
		return NotFound, false
	}
	switch {
	case query.End == existing.End && query.Begin < existing.Begin:
		return ExtendsBefore, true
	case query.Begin == existing.Begin && query.End > existing.End:
		return ExtendsAfter, true
	}
	// Partial overlap that is neither containment nor a clean prefix
	// or suffix extension. This only happens for an illegal explicit
	// re-mapping of part of an existing buffer under a different base
	// pointer; the entry point treats it as a diagnostic, not a
	// mutation, so the index reports no usable match.
	return NotFound, false
}

// Insert adds a brand new entry to the index. Callers must already
// have established, via Lookup, that no existing entry overlaps e's
// range.
func (idx *Index) Insert(e *mapping.Entry) {
	idx.entries = append(idx.entries, e)
}

// Remove drops an entry from the index entirely, used when a mapping
// is explicitly deleted (DELETE map-type) rather than merely evicted.
func (idx *Index) Remove(e *mapping.Entry) {
	for i, cur := range idx.entries {
		if cur == e {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

// All returns every entry currently in the index, in stable insertion
// order. The eviction selector uses this for its full-scan candidate
// pass; callers must not mutate the returned slice.
func (idx *Index) All() []*mapping.Entry {
	return idx.entries
}

// Len returns the number of entries currently tracked.
func (idx *Index) Len() int { return len(idx.entries) }
