/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets hand-written gRPC services use plain JSON-tagged Go
// structs as their request/response types instead of generated
// protobuf messages, via gRPC's content-subtype negotiation
// (clients ask for it with grpc.CallContentSubtype("json")).
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
