/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelrt/hetmem/pkg/budget"
	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/flags"
)

func newTestMachine(total int64) (*Machine, *driver.Simulated, *budget.Device) {
	sim := driver.NewSimulated(0xd0000000)
	b := budget.NewDevice(total)
	return NewMachine(sim, b, 0, nil), sim, b
}

func TestToDevAllocatesAndSubmits(t *testing.T) {
	m, sim, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x1000, End: 0x2000})

	require.NoError(t, m.ToDev(context.Background(), e, true))
	assert.Equal(t, Dev, e.Location)
	assert.True(t, e.IsValid)
	assert.Equal(t, int64(0x1000), b.Device)
	assert.Len(t, sim.Calls, 2) // alloc + submit
}

func TestToDevSurvivesSubmitFailure(t *testing.T) {
	m, sim, _ := newTestMachine(0x10000)
	sim.FailNext["submit"] = assertError{}
	e := NewEntry(HostRange{Begin: 0x1000, End: 0x2000})

	require.NoError(t, m.ToDev(context.Background(), e, true))
	assert.Equal(t, Dev, e.Location)
	assert.False(t, e.IsValid)
}

func TestToSoftDevPinsAndPrefetches(t *testing.T) {
	m, sim, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x3000, End: 0x4000})

	require.NoError(t, m.ToSoftDev(context.Background(), e))
	assert.Equal(t, SoftDev, e.Location)
	assert.Equal(t, e.HostRange.Begin, e.DevicePtr)
	assert.Equal(t, int64(0x1000), b.Device)
	assert.Len(t, sim.Calls, 2)
}

func TestToUMAdvisesDefault(t *testing.T) {
	m, _, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x5000, End: 0x6000})

	require.NoError(t, m.ToUM(context.Background(), e))
	assert.Equal(t, UM, e.Location)
	assert.Equal(t, int64(0x1000), b.UM)
}

func TestToHostPinsOnly(t *testing.T) {
	m, _, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x7000, End: 0x8000})

	require.NoError(t, m.ToHost(context.Background(), e))
	assert.Equal(t, Host, e.Location)
	assert.Equal(t, uintptr(0), e.DevicePtr)
	assert.Equal(t, int64(0), b.Device)
}

func TestToPartSplitsPrefixAndSuffix(t *testing.T) {
	m, _, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x9000, End: 0xb000}) // 0x2000 bytes

	require.NoError(t, m.ToPart(context.Background(), e, 0x1000))
	assert.Equal(t, Part, e.Location)
	assert.Equal(t, int64(0x1000), e.DevSize)
	assert.Equal(t, int64(0x1000), b.Device)
}

func TestReleaseFreesDevAllocationAndReturnsUndecided(t *testing.T) {
	m, sim, b := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x1000, End: 0x2000})
	require.NoError(t, m.ToDev(context.Background(), e, true))

	require.NoError(t, m.Release(context.Background(), e))
	assert.Equal(t, Undecided, e.Location)
	assert.Equal(t, int64(0), b.Device)
	found := false
	for _, c := range sim.Calls {
		if c.Op == "free" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReleaseRetrievesDirtyDataBeforeFreeing(t *testing.T) {
	m, sim, _ := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x1000, End: 0x2000})
	require.NoError(t, m.ToDev(context.Background(), e, false))
	e.Dirty = true

	require.NoError(t, m.Release(context.Background(), e))
	found := false
	for _, c := range sim.Calls {
		if c.Op == "retrieve" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTouchUpdatesReuseBookkeeping(t *testing.T) {
	m, _, _ := newTestMachine(0x10000)
	e := NewEntry(HostRange{Begin: 0x1000, End: 0x2000})
	w := flags.Word(0).WithRank(7).WithReuseDistance(99)

	m.Touch(e, 42, w)
	assert.Equal(t, uint64(42), e.TimeStamp)
	assert.Equal(t, int64(7), e.Reuse)
	assert.Equal(t, int64(99), e.ReuseDist)
}

// assertError is a minimal error used to exercise the failure path
// without pulling in errors.New at every call site.
type assertError struct{}

func (assertError) Error() string { return "simulated failure" }
