/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelrt/hetmem/pkg/budget"
	"github.com/accelrt/hetmem/pkg/cluster"
	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/mapping"
	"github.com/accelrt/hetmem/pkg/residency"
)

func newHarness(total int64) (*budget.Device, *residency.Index, *cluster.Registry, *mapping.Machine, *driver.Simulated) {
	sim := driver.NewSimulated(0xd0000000)
	b := budget.NewDevice(total)
	idx := residency.NewIndex()
	clusters := cluster.NewRegistry()
	m := mapping.NewMachine(sim, b, 0, nil)
	return b, idx, clusters, m, sim
}

func TestAdmitClusterFastPathWhenRoomAvailable(t *testing.T) {
	b, idx, clusters, m, _ := newHarness(0x10000)
	c := cluster.New(0x1)
	e1 := mapping.NewEntry(mapping.HostRange{Begin: 0x1000, End: 0x2000})
	idx.Insert(e1)

	out, err := AdmitCluster(context.Background(), c, b, idx, clusters, m, []Request{
		{Entry: e1, Decision: mapping.Dev, NeededBytes: 0x1000, NeedsData: true},
	})
	require.NoError(t, err)
	assert.Equal(t, cluster.Dev, out.Type)
	assert.Equal(t, mapping.Dev, e1.Location)
	assert.Equal(t, int64(0x1000), b.Device)
}

func TestAdmitClusterEvictsToMakeRoom(t *testing.T) {
	b, idx, clusters, m, _ := newHarness(0x2000)
	old := mapping.NewEntry(mapping.HostRange{Begin: 0x8000, End: 0xa000})
	old.Location = mapping.Dev
	old.DevSize = 0x2000
	old.DevicePtr = 0xd0000000
	old.TimeStamp = 1
	b.AddDevice(0x2000)
	idx.Insert(old)

	c := cluster.New(0x1)
	e1 := mapping.NewEntry(mapping.HostRange{Begin: 0x1000, End: 0x3000})
	idx.Insert(e1)

	out, err := AdmitCluster(context.Background(), c, b, idx, clusters, m, []Request{
		{Entry: e1, Decision: mapping.Dev, NeededBytes: 0x2000, NeedsData: true},
	})
	require.NoError(t, err)
	assert.Equal(t, cluster.Dev, out.Type)
	assert.Equal(t, mapping.Undecided, old.Location)
	assert.Equal(t, mapping.Dev, e1.Location)
}

func TestAdmitClusterFallsBackToMixWhenEvictionInsufficient(t *testing.T) {
	b, idx, clusters, m, _ := newHarness(0x1000)
	c := cluster.New(0x1)
	e1 := mapping.NewEntry(mapping.HostRange{Begin: 0x1000, End: 0x3000})
	idx.Insert(e1)

	out, err := AdmitCluster(context.Background(), c, b, idx, clusters, m, []Request{
		{Entry: e1, Decision: mapping.Dev, NeededBytes: 0x2000, NeedsData: true},
	})
	require.NoError(t, err)
	assert.Equal(t, cluster.Mix, out.Type)
	require.Len(t, out.Members, 1)
	assert.Equal(t, mapping.Part, out.Members[0].Decision)
}

func TestAdmitClusterFastPathWhenNeedFitsExactly(t *testing.T) {
	b, idx, clusters, m, _ := newHarness(0x1000)
	c := cluster.New(0x1)
	e1 := mapping.NewEntry(mapping.HostRange{Begin: 0x1000, End: 0x3000}) // 0x2000 bytes
	idx.Insert(e1)

	out, err := AdmitCluster(context.Background(), c, b, idx, clusters, m, []Request{
		{Entry: e1, Decision: mapping.Dev, NeededBytes: 0x1000, NeedsData: true},
	})
	require.NoError(t, err)
	_ = out
	// 0x1000 fits exactly, so this should take the fast path, not MIX.
	assert.Equal(t, mapping.Dev, e1.Location)
}
