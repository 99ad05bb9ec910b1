/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResidencyClassification(t *testing.T) {
	cases := []struct {
		name string
		w    Word
		uvm  bool
		host bool
		sdev bool
		part bool
		hyb  bool
	}{
		{"none", Word(0), false, false, false, false, false},
		{"uvm", Word(0).WithUVM(), true, false, false, false, false},
		{"host", Word(0).WithHost(), false, true, false, false, false},
		{"softdev", Word(0).WithSoftDev(), false, false, true, false, false},
		{"part", Word(0).WithPart(), false, false, false, true, false},
		{"hybrid", Word(0).WithHybrid(), false, false, false, false, true},
		{"undecided", Word(0).WithUndecided(), true, true, false, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.uvm, c.w.IsUVM())
			assert.Equal(t, c.host, c.w.IsHost())
			assert.Equal(t, c.sdev, c.w.IsSoftDev())
			assert.Equal(t, c.part, c.w.IsPart())
			assert.Equal(t, c.hyb, c.w.IsHybrid())
		})
	}
}

func TestReclassifyClearsPreviousResidency(t *testing.T) {
	w := Word(0).WithUVM()
	w = w.WithHost()
	assert.False(t, w.IsUVM())
	assert.True(t, w.IsHost())
}

func TestRankRoundTrip(t *testing.T) {
	w := Word(0).WithRank(42)
	assert.Equal(t, int64(42), w.Rank())
	assert.True(t, w.HasRank())
	assert.False(t, Word(0).HasRank())
}

func TestLocalReuseRoundTrip(t *testing.T) {
	w := Word(0).WithLocalReuse(8)
	assert.Equal(t, int64(8), w.LocalReuse())
}

func TestReuseDistanceRoundTrip(t *testing.T) {
	w := Word(0).WithReuseDistance(100)
	assert.Equal(t, int64(100), w.ReuseDistance())
}

func TestBaseTypePreservedAcrossResidencyChange(t *testing.T) {
	w := Word(0x155) // some opaque base type bits
	w = w.WithRank(3).WithReuseDistance(77).WithLocalReuse(8)
	w = w.WithSoftDev()
	assert.Equal(t, uint32(0x155), w.BaseType())
	assert.Equal(t, int64(3), w.Rank())
	assert.Equal(t, int64(77), w.ReuseDistance())
	assert.Equal(t, int64(8), w.LocalReuse())
	assert.True(t, w.IsSoftDev())
}

func TestFieldsDoNotOverlap(t *testing.T) {
	w := Word(0).WithRank(0xff).WithLocalReuse(0x7f).WithReuseDistance(0xffffff)
	w = w.WithUVM()
	assert.Equal(t, int64(0xff), w.Rank())
	assert.Equal(t, int64(0x7f), w.LocalReuse())
	assert.Equal(t, int64(0xffffff), w.ReuseDistance())
	assert.True(t, w.IsUVM())
	assert.False(t, w.IsHost())
}
