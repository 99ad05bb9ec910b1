/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package statsservice is a hand-written gRPC service (no protoc
// step, using pkg/common's JSON codec) that reports a running
// engine's current budget and cluster counts for monitoring.
package statsservice

import (
	"context"

	"google.golang.org/grpc"

	"github.com/accelrt/hetmem/pkg/engine"
)

// Request is empty; Stats always reports the engine's full current
// state.
type Request struct{}

// Reply is the engine's current budget and cluster accounting.
type Reply struct {
	DeviceBytes    int64 `json:"device_bytes"`
	UMBytes        int64 `json:"um_bytes"`
	TotalBytes     int64 `json:"total_bytes"`
	EntryCount     int   `json:"entry_count"`
	ClusterCount   int   `json:"cluster_count"`
	GlobalClockTick uint64 `json:"global_clock_tick"`
}

// Server is the Stats service's handler; NewServer adapts an
// *engine.Engine to it.
type Server interface {
	Stats(ctx context.Context, req *Request) (*Reply, error)
}

// engineServer adapts an *engine.Engine to Server.
type engineServer struct {
	e *engine.Engine
}

// NewServer returns a Server backed by e.
func NewServer(e *engine.Engine) Server {
	return &engineServer{e: e}
}

func (s *engineServer) Stats(ctx context.Context, req *Request) (*Reply, error) {
	snap := s.e.Snapshot()
	return &Reply{
		DeviceBytes:     snap.DeviceBytes,
		UMBytes:         snap.UMBytes,
		TotalBytes:      snap.TotalBytes,
		EntryCount:      snap.EntryCount,
		ClusterCount:    snap.ClusterCount,
		GlobalClockTick: snap.GlobalClockTick,
	}, nil
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hetmem.Stats/Stats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Stats(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is registered against a *grpc.Server with
// RegisterService(&ServiceDesc, server), the same pattern
// protoc-gen-go would produce, written by hand here because the
// request/response types are JSON structs, not protobuf messages.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "hetmem.Stats",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "statsservice.proto",
}
