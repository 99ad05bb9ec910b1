/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Call records a single invocation made against a Simulated capability,
// in the order it was issued. Tests use this to assert that the engine
// produced the transition sequence required by the mapping-entry state
// machine.
type Call struct {
	Op     string // "alloc", "free", "submit", "retrieve", or an Op.String()
	DevID  int
	Ptr    uintptr
	Other  uintptr
	Size   int64
	Failed bool
}

// Simulated is an in-memory Capability used by tests and by the
// hetmemd daemon when it is started without an accelerator daemon
// endpoint.
// It hands out monotonically increasing device addresses and never
// actually moves any bytes; it exists purely to exercise and record the
// sequence of driver calls the engine issues.
type Simulated struct {
	mu       sync.Mutex
	next     uintptr
	allocs   map[uintptr]int64
	Calls    []Call
	FailNext map[string]error
}

// NewSimulated returns a ready-to-use simulated driver. base is the
// first device address handed out by Alloc; pick something that cannot
// be confused with a host pointer in test output.
func NewSimulated(base uintptr) *Simulated {
	return &Simulated{
		next:     base,
		allocs:   make(map[uintptr]int64),
		FailNext: make(map[string]error),
	}
}

func (s *Simulated) takeFailure(op string) error {
	if err, ok := s.FailNext[op]; ok {
		delete(s.FailNext, op)
		return err
	}
	return nil
}

func (s *Simulated) Alloc(ctx context.Context, devID int, size int64, hostHint uintptr) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("alloc"); err != nil {
		s.Calls = append(s.Calls, Call{Op: "alloc", DevID: devID, Size: size, Failed: true})
		return 0, err
	}
	ptr := s.next
	s.next += uintptr(size)
	s.allocs[ptr] = size
	s.Calls = append(s.Calls, Call{Op: "alloc", DevID: devID, Ptr: ptr, Size: size})
	return ptr, nil
}

func (s *Simulated) Free(ctx context.Context, devID int, ptr uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("free"); err != nil {
		s.Calls = append(s.Calls, Call{Op: "free", DevID: devID, Ptr: ptr, Failed: true})
		return err
	}
	if _, ok := s.allocs[ptr]; !ok {
		return errors.Errorf("free of unknown device pointer %#x", ptr)
	}
	delete(s.allocs, ptr)
	s.Calls = append(s.Calls, Call{Op: "free", DevID: devID, Ptr: ptr})
	return nil
}

func (s *Simulated) Submit(ctx context.Context, devID int, dstDev, srcHost uintptr, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("submit"); err != nil {
		s.Calls = append(s.Calls, Call{Op: "submit", DevID: devID, Ptr: dstDev, Other: srcHost, Size: size, Failed: true})
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "submit", DevID: devID, Ptr: dstDev, Other: srcHost, Size: size})
	return nil
}

func (s *Simulated) Retrieve(ctx context.Context, devID int, dstHost, srcDev uintptr, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("retrieve"); err != nil {
		s.Calls = append(s.Calls, Call{Op: "retrieve", DevID: devID, Ptr: dstHost, Other: srcDev, Size: size, Failed: true})
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "retrieve", DevID: devID, Ptr: dstHost, Other: srcDev, Size: size})
	return nil
}

func (s *Simulated) Opt(ctx context.Context, devID int, size int64, ptr uintptr, op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("opt:%s", op)
	if err := s.takeFailure(key); err != nil {
		s.Calls = append(s.Calls, Call{Op: op.String(), DevID: devID, Ptr: ptr, Size: size, Failed: true})
		return err
	}
	s.Calls = append(s.Calls, Call{Op: op.String(), DevID: devID, Ptr: ptr, Size: size})
	return nil
}

var _ Capability = (*Simulated)(nil)
