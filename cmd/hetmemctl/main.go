/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

// hetmemctl is a small demo and smoke-test client for hetmemd: it
// sends one decideMapping call built from command-line flags and
// prints the resulting residency decisions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/accelrt/hetmem/pkg/driver"
	"github.com/accelrt/hetmem/pkg/log"
	"github.com/accelrt/hetmem/pkg/rpcserver"
)

var (
	endpoint   = flag.String("endpoint", "/var/run/hetmem/hetmemd.sock", "Unix domain socket hetmemd listens on")
	clusterKey = flag.Uint64("cluster", 1, "cluster key identifying the calling compute region")
	tripCount  = flag.Int64("trip-count", 1, "trip count of the compute region's innermost loop")
	rawArgs    = flag.String("arguments", "[]", `JSON array of {"host_ptr":N,"size":N,"flags":N} buffer descriptors`)
)

func main() {
	flag.Parse()
	logger := log.NewSimpleLogger(log.NewSimpleConfig())
	log.Set(logger)

	var wireArgs []rpcserver.ArgumentWire
	if err := json.Unmarshal([]byte(*rawArgs), &wireArgs); err != nil {
		logger.Fatalf("invalid -arguments: %s", err)
	}

	client, err := driver.DialRPC(*endpoint)
	if err != nil {
		logger.Fatalf("failed to connect to %s: %s", *endpoint, err)
	}
	defer client.Close()

	req := rpcserver.DecideMappingArgs{
		ClusterKey: uintptr(*clusterKey),
		TripCount:  *tripCount,
		Arguments:  wireArgs,
	}
	var reply rpcserver.DecideMappingReply
	if err := client.Invoke(context.Background(), "Engine.DecideMapping", req, &reply); err != nil {
		logger.Fatalf("DecideMapping failed: %s", err)
	}

	for i, r := range reply.Results {
		fmt.Fprintf(os.Stdout, "argument %d -> ptr=%#x location=%s\n", i, r.Ptr, r.Location)
	}
}
