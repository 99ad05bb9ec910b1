/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package rpcserver

import (
	"encoding/json"
	"io"
	"net/rpc"
	"sync"
)

// serverCodec is the server-side counterpart of the clientCodec in
// pkg/driver: JSON-RPC 2.0, one params value rather than a list,
// numeric request ids.
type serverCodec struct {
	dec *json.Decoder
	enc *json.Encoder
	c   io.ReadWriteCloser

	req serverRequest

	mutex   sync.Mutex
	pending map[uint64]string
}

func newServerCodec(conn io.ReadWriteCloser) rpc.ServerCodec {
	return &serverCodec{
		dec:     json.NewDecoder(conn),
		enc:     json.NewEncoder(conn),
		c:       conn,
		pending: make(map[uint64]string),
	}
}

type serverRequest struct {
	Version string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params"`
	ID      uint64           `json:"id"`
}

type serverResponse struct {
	ID     uint64      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

func (c *serverCodec) ReadRequestHeader(r *rpc.Request) error {
	c.req = serverRequest{}
	if err := c.dec.Decode(&c.req); err != nil {
		return err
	}
	r.ServiceMethod = c.req.Method
	r.Seq = c.req.ID

	c.mutex.Lock()
	c.pending[r.Seq] = r.ServiceMethod
	c.mutex.Unlock()
	return nil
}

func (c *serverCodec) ReadRequestBody(x interface{}) error {
	if x == nil || c.req.Params == nil {
		return nil
	}
	return json.Unmarshal(*c.req.Params, x)
}

func (c *serverCodec) WriteResponse(r *rpc.Response, x interface{}) error {
	resp := serverResponse{ID: r.Seq}
	if r.Error != "" {
		resp.Error = map[string]interface{}{"code": ErrorInternal, "message": r.Error}
	} else {
		resp.Result = x
	}
	return c.enc.Encode(&resp)
}

func (c *serverCodec) Close() error {
	return c.c.Close()
}

// ErrorInternal is the JSON-RPC 2.0 code used for handler errors; the
// engine never distinguishes finer-grained wire error codes of its
// own.
const ErrorInternal = -32603
