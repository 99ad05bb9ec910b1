/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package driver defines the capability interface that the placement
// engine uses to move bytes between host and device memory. The engine
// never touches a device directly: every allocation, transfer, and hint
// passes through a Capability implementation, which is the only part of
// the stack that has to know about the real accelerator.
package driver

import "context"

// Op identifies one of the advisory or pinning operations accepted by
// Capability.Opt. The numeric values match the wire encoding used by the
// accelerator daemon, so they must not be renumbered.
type Op int

const (
	// OpPinHost page-locks a host range so the device can access it
	// without faulting.
	OpPinHost Op = 0
	// OpPrefetchDevice migrates a range to device memory ahead of use.
	OpPrefetchDevice Op = 1
	// OpAdviseDefault clears any previously given placement advice.
	OpAdviseDefault Op = 2
	// 3 is intentionally unused; the daemon reserves it for a
	// read-mostly advise hint that the engine does not issue.
	// OpPinDevice page-locks a range in device memory.
	OpPinDevice Op = 4
	// OpPrefetchHost migrates a range back to host memory ahead of use.
	OpPrefetchHost Op = 5
	// OpUnpin releases a pin previously established by OpPinHost or
	// OpPinDevice.
	OpUnpin Op = 6
)

func (op Op) String() string {
	switch op {
	case OpPinHost:
		return "pin-host"
	case OpPrefetchDevice:
		return "prefetch-device"
	case OpAdviseDefault:
		return "advise-default"
	case OpPinDevice:
		return "pin-device"
	case OpPrefetchHost:
		return "prefetch-host"
	case OpUnpin:
		return "unpin"
	default:
		return "unknown-op"
	}
}

// Capability is the driver facade consumed by the placement engine. All
// methods are expected to be short, synchronous, and safe to call while
// the engine's mapping mutex is held; implementations must not re-enter
// the engine.
type Capability interface {
	// Alloc reserves size bytes of dedicated device memory and returns
	// the device pointer. hostHint is the host address the allocation
	// backs, passed through for implementations that want to place the
	// allocation close to where it will be accessed from.
	Alloc(ctx context.Context, devID int, size int64, hostHint uintptr) (uintptr, error)

	// Free releases a dedicated device allocation previously returned
	// by Alloc.
	Free(ctx context.Context, devID int, ptr uintptr) error

	// Submit copies size bytes from host memory to device memory.
	Submit(ctx context.Context, devID int, dstDev, srcHost uintptr, size int64) error

	// Retrieve copies size bytes from device memory to host memory.
	Retrieve(ctx context.Context, devID int, dstHost, srcDev uintptr, size int64) error

	// Opt applies an advisory or pinning operation to a host or device
	// range.
	Opt(ctx context.Context, devID int, size int64, ptr uintptr, op Op) error
}
