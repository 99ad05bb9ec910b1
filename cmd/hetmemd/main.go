/*
Copyright 2017 The Kubernetes Authors.
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/accelrt/hetmem/pkg/common"
	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/engine"
	"github.com/accelrt/hetmem/pkg/log"
	"github.com/accelrt/hetmem/pkg/rpcserver"
	"github.com/accelrt/hetmem/pkg/statsservice"
)

var (
	endpoint     = flag.String("endpoint", "/var/run/hetmem/hetmemd.sock", "Unix domain socket the engine's JSON-RPC service listens on")
	statsAddr    = flag.String("stats-endpoint", "tcp://:8999", "gRPC endpoint for the monitoring Stats service, for net.Listen")
	accelDaemon  = flag.String("accel-daemon", "", "Unix domain socket of the accelerator management daemon; empty uses a simulated in-memory driver for demos and tests")
	devID        = flag.Int("device-id", 0, "accelerator device index this daemon manages")
	deviceMemory = flag.Int64("device-memory", 8<<30, "total addressable device memory in bytes")
	gMode        = flag.Int("gmode", 0, "global placement override: 0=auto 1=force-dev 2=force-um 3=force-host 4=force-softdev")
	hybridRatio  = flag.Float64("hybrid-ratio", 0.5, "fraction of a HYB-flagged buffer placed on the device at creation time")
	_            = log.InitSimpleFlags()
)

func main() {
	flag.Parse()
	app := "hetmemd"

	logger := log.NewSimpleLogger(log.NewSimpleConfig())
	log.Set(logger)

	closer, err := common.InitTracer(app)
	if err != nil {
		logger.Fatalf("failed to initialize tracer: %s", err)
	}
	defer closer.Close()

	cap, err := newCapability(*accelDaemon)
	if err != nil {
		logger.Fatalf("failed to initialize driver capability: %s", err)
	}

	e, err := engine.New(
		engine.WithCapability(cap, *devID, *deviceMemory),
		engine.WithGMode(engine.GMode(*gMode)),
		engine.WithHybridRatio(*hybridRatio),
		engine.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("failed to initialize placement engine: %s", err)
	}

	ctx, cancel := context.WithCancel(log.WithLogger(context.Background(), logger))
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("received shutdown signal")
		cancel()
	}()

	statsServer := &common.NonBlockingGRPCServer{Endpoint: *statsAddr}
	if err := statsServer.Start(ctx, func(s *grpc.Server) {
		s.RegisterService(&statsservice.ServiceDesc, statsservice.NewServer(e))
	}); err != nil {
		logger.Fatalf("failed to start stats service: %s", err)
	}
	defer statsServer.ForceStop(ctx)

	if err := rpcserver.Serve(ctx, *endpoint, e); err != nil {
		logger.Fatalf("rpc server failed: %s", err)
	}
}

func newCapability(accelDaemon string) (driver.Capability, error) {
	if accelDaemon == "" {
		log.L().Warn("no -accel-daemon given, using an in-memory simulated driver")
		return driver.NewSimulated(1 << 32), nil
	}
	return driver.NewRemoteCapability(accelDaemon)
}
