/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// Package rpcserver exposes an Engine's decideMapping entry point as a
// JSON-RPC 2.0 service over a Unix domain socket, the server-side
// counterpart of the wire protocol pkg/driver speaks to an
// accelerator daemon.
package rpcserver

import (
	"context"
	"net"
	"net/rpc"
	"os"

	"github.com/pkg/errors"

	"github.com/accelrt/hetmem/pkg/engine"
	"github.com/accelrt/hetmem/pkg/flags"
	"github.com/accelrt/hetmem/pkg/log"
	"github.com/accelrt/hetmem/pkg/mapping"
)

// ArgumentWire is the wire form of engine.Argument.
type ArgumentWire struct {
	HostPtr uintptr `json:"host_ptr"`
	Size    int64   `json:"size"`
	Flags   uint64  `json:"flags"`
}

// DecideMappingArgs is the request body for the DecideMapping method.
type DecideMappingArgs struct {
	ClusterKey uintptr        `json:"cluster_key"`
	TripCount  int64          `json:"trip_count"`
	Arguments  []ArgumentWire `json:"arguments"`
}

// ResultWire is the wire form of engine.Result.
type ResultWire struct {
	Ptr      uintptr `json:"ptr"`
	Location string  `json:"location"`
}

// DecideMappingReply is the response body for the DecideMapping method.
type DecideMappingReply struct {
	Results []ResultWire `json:"results"`
}

// Service adapts an *engine.Engine to the net/rpc calling convention:
// one exported method per RPC verb, each taking (args, *reply) and
// returning error.
type Service struct {
	Engine *engine.Engine
}

// DecideMapping is the RPC entry point mirrored 1:1 from
// engine.Engine.DecideMapping.
func (s *Service) DecideMapping(args DecideMappingArgs, reply *DecideMappingReply) error {
	engineArgs := make([]engine.Argument, len(args.Arguments))
	for i, a := range args.Arguments {
		engineArgs[i] = engine.Argument{HostPtr: a.HostPtr, Size: a.Size, Flags: flags.Word(a.Flags)}
	}
	results, err := s.Engine.DecideMapping(context.Background(), args.ClusterKey, args.TripCount, engineArgs)
	if err != nil {
		return err
	}
	reply.Results = make([]ResultWire, len(results))
	for i, r := range results {
		reply.Results[i] = ResultWire{Ptr: r.Ptr, Location: locationString(r.Location)}
	}
	return nil
}

func locationString(l mapping.Location) string { return l.String() }

// Serve registers e under the name "Engine" and accepts JSON-RPC 2.0
// connections on the Unix domain socket at path until ctx is
// cancelled. It removes any stale socket file left over from a
// previous, uncleanly terminated run before listening.
func Serve(ctx context.Context, path string, e *engine.Engine) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale socket %s", path)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", path)
	}
	defer listener.Close()

	server := rpc.NewServer()
	if err := server.RegisterName("Engine", &Service{Engine: e}); err != nil {
		return errors.Wrap(err, "register Engine service")
	}

	logger := log.L().With("component", "rpcserver")
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		logger.Debugw("accepted connection", "remote", conn.RemoteAddr())
		go server.ServeCodec(newServerCodec(conn))
	}
}
