/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package engine wires the residency index, cluster registry,
// placement policy, eviction selector, and admission logic together
// behind a single entry point: decideMapping, invoked once per target
// region with the list of buffers that region references.
package engine

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/accelrt/hetmem/pkg/admission"
	"github.com/accelrt/hetmem/pkg/budget"
	"github.com/accelrt/hetmem/pkg/cluster"
	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/flags"
	"github.com/accelrt/hetmem/pkg/log"
	"github.com/accelrt/hetmem/pkg/mapping"
	"github.com/accelrt/hetmem/pkg/placement"
	"github.com/accelrt/hetmem/pkg/residency"
)

// GMode is a global override of the per-argument placement decision,
// held by the Engine rather than negotiated per call. It is set with
// WithGMode at construction and can be changed between calls with
// SetGMode.
type GMode int

const (
	// GModeAuto lets each argument's flags and the density heuristic
	// decide its residency, the normal operating mode.
	GModeAuto GMode = iota
	// GModeForceDev forces every managed argument onto a dedicated
	// device allocation.
	GModeForceDev
	// GModeForceUM forces every managed argument into unified managed
	// memory.
	GModeForceUM
	// GModeForceHost forces every managed argument to stay host-only.
	GModeForceHost
	// GModeForceSoftDev forces every managed argument into a
	// host-pinned, device-prefetched mapping.
	GModeForceSoftDev
)

// RankComparator selects how arguments within one region invocation
// are ordered before they contend for device space, per the two
// comparator variants the global mutable state carried as a
// compile-time toggle: this is now a runtime policy instead.
type RankComparator int

const (
	// RankComparatorReuseDistance orders arguments by ascending
	// ReuseDistance (tightest expected reuse first), tie-broken by
	// ascending Reuse. This is the default rank comparator.
	RankComparatorReuseDistance RankComparator = iota
	// RankComparatorRank orders arguments by descending Reuse alone,
	// ignoring ReuseDistance entirely.
	RankComparatorRank
)

// Argument is one buffer passed into a target region invocation.
type Argument struct {
	HostPtr uintptr
	Size    int64
	Flags   flags.Word
}

// Engine holds everything decideMapping needs across calls: the
// residency index, the cluster registry, one device's budget and
// driver Capability, and the knobs that apply uniformly to every
// call (GlobalClock, GMode, HybridRatio).
type Engine struct {
	mu sync.Mutex

	index    *residency.Index
	clusters *cluster.Registry
	budget   *budget.Device
	machine  *mapping.Machine

	globalClock    uint64
	gMode          GMode
	hybridRatio    float64
	rankComparator RankComparator
	logger         log.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine) error

// WithCapability supplies the driver facade and the device's total
// memory budget.
func WithCapability(cap driver.Capability, devID int, totalDeviceMemory int64) Option {
	return func(e *Engine) error {
		if cap == nil {
			return errors.New("engine: capability must not be nil")
		}
		e.budget = budget.NewDevice(totalDeviceMemory)
		e.machine = mapping.NewMachine(cap, e.budget, devID, e.logger)
		return nil
	}
}

// WithGMode sets a global override of the per-argument placement
// decision.
func WithGMode(mode GMode) Option {
	return func(e *Engine) error {
		e.gMode = mode
		return nil
	}
}

// WithHybridRatio sets the fraction of a HYB-flagged buffer placed on
// the device at creation time; must be in (0, 1).
func WithHybridRatio(ratio float64) Option {
	return func(e *Engine) error {
		if ratio <= 0 || ratio >= 1 {
			return errors.Errorf("engine: hybrid ratio %v out of range (0,1)", ratio)
		}
		e.hybridRatio = ratio
		return nil
	}
}

// WithRankComparator overrides the default (reuse-distance-centric)
// ordering arguments are sorted by before admission.
func WithRankComparator(cmp RankComparator) Option {
	return func(e *Engine) error {
		e.rankComparator = cmp
		return nil
	}
}

// WithLogger overrides the default global logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// New constructs an Engine. WithCapability is required; the rest have
// workable defaults (GModeAuto, a 0.5 hybrid ratio,
// RankComparatorReuseDistance, the global logger).
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		index:       residency.NewIndex(),
		clusters:    cluster.NewRegistry(),
		hybridRatio: 0.5,
		logger:      log.L(),
	}
	for _, opt := range options {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.machine == nil {
		return nil, errors.New("engine: WithCapability is required")
	}
	return e, nil
}

// Result is decideMapping's per-argument answer.
type Result struct {
	// Ptr is the address the caller should program the compute region
	// with: a device pointer for Dev/SoftDev/UM/the resident prefix of
	// Part, or the original host pointer for Host and Undecided.
	Ptr      uintptr
	Location mapping.Location
}

// DecideMapping is the engine's single entry point, called once per
// target-region invocation with every buffer the region references.
// tripCount is the region's loop trip count, used by the density
// heuristic; clusterKey identifies the compute region so repeated
// invocations of the same region find the same Cluster.
func (e *Engine) DecideMapping(ctx context.Context, clusterKey uintptr, tripCount int64, args []Argument) ([]Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.globalClock++
	clock := e.globalClock

	type resolved struct {
		arg   Argument
		entry *mapping.Entry
		isNew bool
	}
	resolvedArgs := make([]resolved, len(args))
	for i, a := range args {
		hr := mapping.HostRange{Begin: a.HostPtr, End: a.HostPtr + uintptr(a.Size)}
		result, entry := e.index.Lookup(hr)
		switch result {
		case residency.NotFound:
			entry = mapping.NewEntry(hr)
			e.index.Insert(entry)
			resolvedArgs[i] = resolved{arg: a, entry: entry, isNew: true}
		case residency.ExtendsBefore, residency.ExtendsAfter, residency.InvalidExtendsBefore, residency.InvalidExtendsAfter:
			// An implicit (density/GMode-driven) extension of an
			// existing mapping is not a mutation the engine performs
			// on its own: it is a diagnostic-only condition per the
			// illegal-extension error policy. Treat the argument as
			// referencing the existing entry unchanged.
			e.logger.Warnw("argument would extend an existing mapping; ignoring the extension",
				"begin", a.HostPtr, "size", a.Size)
			resolvedArgs[i] = resolved{arg: a, entry: entry, isNew: false}
		default:
			resolvedArgs[i] = resolved{arg: a, entry: entry, isNew: false}
		}
		e.machine.Touch(resolvedArgs[i].entry, clock, a.Flags)
		resolvedArgs[i].entry.RefCount++
	}

	sort.SliceStable(resolvedArgs, func(i, j int) bool {
		a, b := resolvedArgs[i].entry, resolvedArgs[j].entry
		if e.rankComparator == RankComparatorRank {
			return a.Reuse > b.Reuse
		}
		// RankComparatorReuseDistance (default): ascending ReuseDist,
		// tie-break ascending Reuse — arguments with the tightest
		// expected reuse are placed first.
		if a.ReuseDist != b.ReuseDist {
			return a.ReuseDist < b.ReuseDist
		}
		return a.Reuse < b.Reuse
	})

	// clusterKey == 0 denotes a data-open region (no compute, per the
	// region-call contract's host_ptr == nil case): every argument is
	// deferred to UNDECIDED and no cluster is ever formed for it.
	isDataRegion := clusterKey == 0

	results := make(map[*mapping.Entry]Result, len(resolvedArgs))
	var requests []admission.Request
	var c *cluster.Cluster
	if !isDataRegion {
		c = e.clusters.GetOrCreate(clusterKey)
	}

	for _, r := range resolvedArgs {
		entry := r.entry
		forced := e.gMode != GModeAuto
		if entry.Location != mapping.Undecided && !forced {
			results[entry] = Result{Ptr: e.currentPtr(entry), Location: entry.Location}
			continue
		}
		if entry.Location != mapping.Undecided && forced {
			// A global mode override forces a remap even for an
			// already-resident entry: release its current residency
			// first so budget accounting reflects the transition
			// (e.g. UM -> DEV subtracts umSize before crediting
			// deviceSize), then fall through to classify and apply
			// the forced decision below.
			if err := e.machine.Release(ctx, entry); err != nil {
				return nil, err
			}
		}

		decision := e.classify(r.arg, tripCount, r.isNew, isDataRegion)
		switch decision {
		case mapping.Host:
			if err := e.machine.ToHost(ctx, entry); err != nil {
				return nil, err
			}
			results[entry] = Result{Ptr: entry.HostRange.Begin, Location: mapping.Host}
		case mapping.UM:
			if err := e.machine.ToUM(ctx, entry); err != nil {
				return nil, err
			}
			results[entry] = Result{Ptr: entry.DevicePtr, Location: mapping.UM}
		case mapping.Part:
			if !r.isNew {
				// HYB is a one-off policy applied only at creation;
				// an existing entry keeps its current residency.
				results[entry] = Result{Ptr: e.currentPtr(entry), Location: entry.Location}
				continue
			}
			prefix := int64(math.Round(float64(entry.HostRange.Size()) * e.hybridRatio))
			if prefix <= 0 {
				prefix = mapping.SmallObjectThreshold
			}
			if err := e.machine.ToPart(ctx, entry, prefix); err != nil {
				return nil, err
			}
			results[entry] = Result{Ptr: entry.DevicePtr, Location: mapping.Part}
		case mapping.Undecided:
			results[entry] = Result{Ptr: entry.HostRange.Begin, Location: mapping.Undecided}
		default: // Dev or SoftDev: contend for device space as a cluster.
			requests = append(requests, admission.Request{
				Entry:       entry,
				Decision:    decision,
				NeededBytes: entry.HostRange.Size(),
				NeedsData:   true,
			})
		}
	}

	if len(requests) > 0 {
		if _, err := admission.AdmitCluster(ctx, c, e.budget, e.index, e.clusters, e.machine, requests); err != nil {
			return nil, err
		}
		for _, req := range requests {
			results[req.Entry] = Result{Ptr: e.currentPtr(req.Entry), Location: req.Entry.Location}
		}
	}

	// resolvedArgs was sorted by reuse rank for processing priority;
	// reassemble the answer in the caller's original argument order.
	final := make([]Result, len(args))
	for _, r := range resolvedArgs {
		r.entry.RefCount--
		final[argIndex(args, r.arg)] = results[r.entry]
	}
	return final, nil
}

// argIndex finds a's position in args by identity of its host
// pointer; arguments in one call are required to have distinct
// ranges, so this is unambiguous.
func argIndex(args []Argument, a Argument) int {
	for i, candidate := range args {
		if candidate.HostPtr == a.HostPtr {
			return i
		}
	}
	return 0
}

// classify resolves one argument's target Location, honoring an
// explicit GMode override first; then, for a data-open region (no
// compute), deferring unconditionally to UNDECIDED; then the
// argument's own explicit residency flags; and finally the density
// heuristic for an argument that requested none.
func (e *Engine) classify(a Argument, tripCount int64, isNew, isDataRegion bool) mapping.Location {
	switch e.gMode {
	case GModeForceDev:
		return mapping.Dev
	case GModeForceUM:
		return mapping.UM
	case GModeForceHost:
		return mapping.Host
	case GModeForceSoftDev:
		return mapping.SoftDev
	}

	if isDataRegion {
		return mapping.Undecided
	}

	w := a.Flags
	switch {
	case w.IsHost():
		return mapping.Host
	case w.IsHybrid():
		return mapping.Part
	case w.IsSoftDev():
		return mapping.SoftDev
	case w.IsUVM():
		return mapping.UM
	}

	switch placement.ClassifyArgument(w, tripCount, a.Size) {
	case placement.SoftDev:
		return mapping.SoftDev
	case placement.UM:
		return mapping.UM
	default:
		return mapping.Undecided
	}
}

// SetGMode changes the engine's global override for every subsequent
// DecideMapping call. A forced mode applied to an entry that already
// has a residency takes effect on that entry's next reference, as any
// other GMode override does: DecideMapping releases the old residency
// and reclassifies.
func (e *Engine) SetGMode(mode GMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gMode = mode
}

// Snapshot is a point-in-time view of the engine's budget and
// registry sizes, used for monitoring.
type Snapshot struct {
	DeviceBytes     int64
	UMBytes         int64
	TotalBytes      int64
	EntryCount      int
	ClusterCount    int
	GlobalClockTick uint64
}

// Snapshot returns the engine's current budget and registry counts.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		DeviceBytes:     e.budget.Device,
		UMBytes:         e.budget.UM,
		TotalBytes:      e.budget.Total,
		EntryCount:      e.index.Len(),
		ClusterCount:    e.clusters.Len(),
		GlobalClockTick: e.globalClock,
	}
}

func (e *Engine) currentPtr(entry *mapping.Entry) uintptr {
	switch entry.Location {
	case mapping.Dev, mapping.SoftDev, mapping.UM, mapping.Part:
		return entry.DevicePtr
	default:
		return entry.HostRange.Begin
	}
}
