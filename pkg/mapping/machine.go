/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package mapping

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/accelrt/hetmem/pkg/budget"
	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/flags"
	"github.com/accelrt/hetmem/pkg/log"
)

// Machine drives an Entry through the residency transition table. It
// owns the one accelerator's Capability and budget that every
// transition reads and mutates; callers hold the engine-wide mapping
// mutex for the duration of any call into it, so a Machine itself does
// no locking.
type Machine struct {
	Driver driver.Capability
	Budget *budget.Device
	DevID  int
	Logger log.Logger
}

// NewMachine returns a transition machine bound to one accelerator.
func NewMachine(cap driver.Capability, b *budget.Device, devID int, logger log.Logger) *Machine {
	if logger == nil {
		logger = log.L()
	}
	return &Machine{Driver: cap, Budget: b, DevID: devID, Logger: logger}
}

// invalidate marks the entry's device copy unusable after a failed
// driver call. Per the error-handling policy, a transfer failure is
// logged and the entry proceeds in a degraded state rather than
// aborting the call. The entry keeps its residency and stays marked
// invalid; no later call retries the transfer.
func (m *Machine) invalidate(e *Entry, err error, op string) {
	e.IsValid = false
	m.Logger.Errorf("driver call %s failed for range [%#x,%#x): %v; marking entry invalid",
		op, e.HostRange.Begin, e.HostRange.End, err)
}

// ToDev transitions e to a dedicated device allocation, copying the
// host contents over if needsData is true (false for a write-only
// first touch that will be filled by the region itself).
func (m *Machine) ToDev(ctx context.Context, e *Entry, needsData bool) error {
	size := e.HostRange.Size()
	ptr, err := m.Driver.Alloc(ctx, m.DevID, size, e.HostRange.Begin)
	if err != nil {
		return errors.Wrapf(err, "alloc %d bytes for DEV mapping", size)
	}
	if needsData {
		if err := m.Driver.Submit(ctx, m.DevID, ptr, e.HostRange.Begin, size); err != nil {
			m.invalidate(e, err, "submit")
			e.DevicePtr = ptr
			e.DevSize = size
			e.Location = Dev
			m.Budget.AddDevice(size)
			return nil
		}
	}
	e.DevicePtr = ptr
	e.DevSize = size
	e.Location = Dev
	e.IsValid = true
	m.Budget.AddDevice(size)
	return nil
}

// ToSoftDev transitions e to a host-pinned buffer prefetched onto the
// device, with no separate device allocation.
func (m *Machine) ToSoftDev(ctx context.Context, e *Entry) error {
	size := e.HostRange.Size()
	if err := m.Driver.Opt(ctx, m.DevID, size, e.HostRange.Begin, driver.OpPinHost); err != nil {
		return errors.Wrap(err, "pin host range for SOFT_DEV mapping")
	}
	if err := m.Driver.Opt(ctx, m.DevID, size, e.HostRange.Begin, driver.OpPrefetchDevice); err != nil {
		m.invalidate(e, err, "prefetch-device")
	} else {
		e.IsValid = true
	}
	e.DevicePtr = e.HostRange.Begin
	e.DevSize = size
	e.Location = SoftDev
	m.Budget.AddDevice(size)
	return nil
}

// ToUM transitions e to unified managed memory.
func (m *Machine) ToUM(ctx context.Context, e *Entry) error {
	size := e.HostRange.Size()
	if err := m.Driver.Opt(ctx, m.DevID, size, e.HostRange.Begin, driver.OpAdviseDefault); err != nil {
		return errors.Wrap(err, "advise default for UM mapping")
	}
	e.DevicePtr = e.HostRange.Begin
	e.DevSize = size
	e.Location = UM
	e.IsValid = true
	m.Budget.AddUM(size)
	return nil
}

// ToHost transitions e to page-locked host memory with no device
// residency at all.
func (m *Machine) ToHost(ctx context.Context, e *Entry) error {
	size := e.HostRange.Size()
	if err := m.Driver.Opt(ctx, m.DevID, size, e.HostRange.Begin, driver.OpPinHost); err != nil {
		return errors.Wrap(err, "pin host range for HOST mapping")
	}
	e.DevicePtr = 0
	e.DevSize = 0
	e.Location = Host
	e.IsValid = true
	return nil
}

// ToPart transitions e to a prefix-device/suffix-host split, with
// prefixSize bytes resident on the device.
func (m *Machine) ToPart(ctx context.Context, e *Entry, prefixSize int64) error {
	total := e.HostRange.Size()
	if prefixSize <= 0 || prefixSize > total {
		panic(fmt.Sprintf("ToPart: prefix size %d out of range for [%#x,%#x)",
			prefixSize, e.HostRange.Begin, e.HostRange.End))
	}
	ptr, err := m.Driver.Alloc(ctx, m.DevID, prefixSize, e.HostRange.Begin)
	if err != nil {
		return errors.Wrapf(err, "alloc %d byte PART prefix", prefixSize)
	}
	if err := m.Driver.Submit(ctx, m.DevID, ptr, e.HostRange.Begin, prefixSize); err != nil {
		m.invalidate(e, err, "submit")
	} else {
		e.IsValid = true
	}
	suffixBegin := e.HostRange.Begin + uintptr(prefixSize)
	suffixSize := total - prefixSize
	if err := m.Driver.Opt(ctx, m.DevID, suffixSize, suffixBegin, driver.OpPinHost); err != nil {
		m.Logger.Errorf("pin host suffix for PART mapping [%#x,%#x): %v", suffixBegin, e.HostRange.End, err)
	}
	e.DevicePtr = ptr
	e.DevSize = prefixSize
	e.Location = Part
	m.Budget.AddDevice(prefixSize)
	return nil
}

// Release tears down whatever device residency e currently has,
// flushing dirty data back to the host first, and returns it to
// Undecided. It is the only transition eviction ever performs.
func (m *Machine) Release(ctx context.Context, e *Entry) error {
	switch e.Location {
	case Undecided, Host:
		// Nothing device-resident to release.
	case Dev, SoftDev:
		if e.Dirty && e.IsValid {
			if err := m.Driver.Retrieve(ctx, m.DevID, e.HostRange.Begin, e.DevicePtr, e.DevSize); err != nil {
				m.invalidate(e, err, "retrieve")
			}
		}
		if e.Location == Dev {
			if err := m.Driver.Free(ctx, m.DevID, e.DevicePtr); err != nil {
				m.Logger.Errorf("free DEV allocation at %#x: %v", e.DevicePtr, err)
			}
			m.Budget.SubDevice(e.DevSize)
		} else {
			if err := m.Driver.Opt(ctx, m.DevID, e.DevSize, e.DevicePtr, driver.OpUnpin); err != nil {
				m.Logger.Errorf("unpin SOFT_DEV range at %#x: %v", e.DevicePtr, err)
			}
			m.Budget.SubDevice(e.DevSize)
		}
	case UM:
		m.Budget.SubUM(e.DevSize)
	case Part:
		if e.Dirty && e.IsValid {
			if err := m.Driver.Retrieve(ctx, m.DevID, e.HostRange.Begin, e.DevicePtr, e.DevSize); err != nil {
				m.invalidate(e, err, "retrieve")
			}
		}
		if err := m.Driver.Free(ctx, m.DevID, e.DevicePtr); err != nil {
			m.Logger.Errorf("free PART prefix at %#x: %v", e.DevicePtr, err)
		}
		m.Budget.SubDevice(e.DevSize)
		suffixBegin := e.HostRange.Begin + uintptr(e.DevSize)
		suffixSize := e.HostRange.Size() - e.DevSize
		if err := m.Driver.Opt(ctx, m.DevID, suffixSize, suffixBegin, driver.OpUnpin); err != nil {
			m.Logger.Errorf("unpin PART suffix at %#x: %v", suffixBegin, err)
		}
	default:
		panic(fmt.Sprintf("Release: unknown transition out of location %v", e.Location))
	}
	e.Location = Undecided
	e.DevicePtr = 0
	e.DevSize = 0
	e.Dirty = false
	return nil
}

// Touch updates an entry's reuse bookkeeping as of the current global
// clock tick, without changing its residency. It is called once per
// argument on every target-region invocation that references the
// entry, whether or not the call ends up changing its placement.
func (m *Machine) Touch(e *Entry, clock uint64, w flags.Word) {
	e.TimeStamp = clock
	e.MapFlags = w
	if w.HasRank() {
		e.Reuse = w.Rank()
	}
	e.ReuseDist = w.ReuseDistance()
}
