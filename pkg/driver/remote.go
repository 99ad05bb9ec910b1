/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import "context"

// RemoteCapability implements Capability by forwarding every call as a
// JSON-RPC 2.0 request to an accelerator daemon: one thin Capability
// method per wire verb, all going through a single Invoke.
type RemoteCapability struct {
	Client *RPCClient
}

// NewRemoteCapability connects to the accelerator daemon listening on
// the given Unix domain socket path.
func NewRemoteCapability(socketPath string) (*RemoteCapability, error) {
	client, err := DialRPC(socketPath)
	if err != nil {
		return nil, err
	}
	return &RemoteCapability{Client: client}, nil
}

// Close disconnects from the daemon.
func (r *RemoteCapability) Close() error {
	return r.Client.Close()
}

type allocArgs struct {
	DevID    int     `json:"dev_id"`
	Size     int64   `json:"size"`
	HostHint uintptr `json:"host_hint"`
}

type allocReply struct {
	Ptr uintptr `json:"ptr"`
}

func (r *RemoteCapability) Alloc(ctx context.Context, devID int, size int64, hostHint uintptr) (uintptr, error) {
	var reply allocReply
	err := r.Client.Invoke(ctx, "alloc", allocArgs{DevID: devID, Size: size, HostHint: hostHint}, &reply)
	return reply.Ptr, err
}

type freeArgs struct {
	DevID int     `json:"dev_id"`
	Ptr   uintptr `json:"ptr"`
}

func (r *RemoteCapability) Free(ctx context.Context, devID int, ptr uintptr) error {
	return r.Client.Invoke(ctx, "free", freeArgs{DevID: devID, Ptr: ptr}, nil)
}

type transferArgs struct {
	DevID int     `json:"dev_id"`
	Dst   uintptr `json:"dst"`
	Src   uintptr `json:"src"`
	Size  int64   `json:"size"`
}

func (r *RemoteCapability) Submit(ctx context.Context, devID int, dstDev, srcHost uintptr, size int64) error {
	return r.Client.Invoke(ctx, "submit", transferArgs{DevID: devID, Dst: dstDev, Src: srcHost, Size: size}, nil)
}

func (r *RemoteCapability) Retrieve(ctx context.Context, devID int, dstHost, srcDev uintptr, size int64) error {
	return r.Client.Invoke(ctx, "retrieve", transferArgs{DevID: devID, Dst: dstHost, Src: srcDev, Size: size}, nil)
}

type optArgs struct {
	DevID int     `json:"dev_id"`
	Size  int64   `json:"size"`
	Ptr   uintptr `json:"ptr"`
	Op    int     `json:"op"`
}

func (r *RemoteCapability) Opt(ctx context.Context, devID int, size int64, ptr uintptr, op Op) error {
	return r.Client.Invoke(ctx, "opt", optArgs{DevID: devID, Size: size, Ptr: ptr, Op: int(op)}, nil)
}

var _ Capability = (*RemoteCapability)(nil)
