/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package budget tracks how much of a device's finite memory is
// currently committed to DEV/SOFT_DEV/PART mappings versus UM
// mappings, and enforces the slack invariant that keeps the two
// pools from overrunning the device.
package budget

import "fmt"

// Slack is the small margin the budget tolerates for non-managed
// arguments that never go through the placement engine.
const Slack = 1024

// Device tracks the committed portions of one accelerator's memory.
// It is not safe for concurrent use; callers serialize access with
// the same mutex that protects the residency index.
type Device struct {
	// Total is the device's total usable memory, fixed at construction.
	Total int64
	// Device is bytes currently committed to DEV, SOFT_DEV, or the
	// device-resident prefix of a PART mapping.
	Device int64
	// UM is bytes currently committed to UM mappings.
	UM int64
}

// NewDevice returns a budget tracker for a device with the given
// total capacity.
func NewDevice(total int64) *Device {
	return &Device{Total: total}
}

// Avail returns the number of bytes not yet committed to either pool.
// It can go negative only transiently, between an AddDevice/AddUM call
// and the caller noticing the breach.
func (d *Device) Avail() int64 {
	return d.Total - d.Device - d.UM
}

// Committed returns Device+UM, the total currently committed.
func (d *Device) Committed() int64 {
	return d.Device + d.UM
}

// AddDevice commits n more bytes to the device pool and asserts the
// budget invariant. A breach is fatal: it means a caller upstream
// admitted more than it reserved, which is a bug in the engine, not a
// recoverable runtime condition.
func (d *Device) AddDevice(n int64) {
	d.Device += n
	d.assertInvariant()
}

// SubDevice releases n bytes from the device pool.
func (d *Device) SubDevice(n int64) {
	d.Device -= n
}

// AddUM commits n more bytes to the UM pool and asserts the budget
// invariant.
func (d *Device) AddUM(n int64) {
	d.UM += n
	d.assertInvariant()
}

// SubUM releases n bytes from the UM pool.
func (d *Device) SubUM(n int64) {
	d.UM -= n
}

func (d *Device) assertInvariant() {
	if d.Device+d.UM > d.Total+Slack {
		panic(fmt.Sprintf("budget invariant violated: device=%d um=%d total=%d slack=%d",
			d.Device, d.UM, d.Total, Slack))
	}
}
