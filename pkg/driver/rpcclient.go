/*
Copyright (C) 2018 Intel Corporation
SPDX-License-Identifier: Apache-2.0

This file contains code from the Go distribution, under:
SPDX-License-Identifier: BSD-3-Clause

More specifically, this file started out as a copy of net/rpc/json/client.go,
updated to encode messages the way an accelerator management daemon
expects them (jsonrpc 2.0, single params value, numeric request id).

The original license text is as follows:
     Copyright 2010 The Go Authors.

     Redistribution and use in source and binary forms, with or without
     modification, are permitted provided that the following conditions are
     met:

        * Redistributions of source code must retain the above copyright
     notice, this list of conditions and the following disclaimer.
        * Redistributions in binary form must reproduce the above
     copyright notice, this list of conditions and the following disclaimer
     in the documentation and/or other materials provided with the
     distribution.
        * Neither the name of Google Inc. nor the names of its
     contributors may be used to endorse or promote products derived from
     this software without specific prior written permission.

     THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
     "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
     LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
     A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
     OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
     SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
     LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
     DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
     THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
     (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
     OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
*/

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"regexp"
	"strconv"
	"sync"

	"github.com/accelrt/hetmem/pkg/log"
)

// Error codes as used by the JSON-RPC 2.0 spec, reused by the
// accelerator daemon for its own failures.
const (
	ErrorParseError     = -32700
	ErrorInvalidRequest = -32600
	ErrorMethodNotFound = -32601
	ErrorInvalidParams  = -32602
	ErrorInternalError  = -32603

	ErrorInvalidState = -1
)

// jsonError matches against errors strings as encoded by ReadResponseHeader.
var jsonError = regexp.MustCompile(`^code: (-?\d+) msg: (.*)$`)

// IsJSONError checks that the error has the expected error code. Use
// code == 0 to check for any JSON-RPC error.
func IsJSONError(err error, code int) bool {
	m := jsonError.FindStringSubmatch(err.Error())
	if m == nil {
		return false
	}
	errorCode, ok := strconv.Atoi(m[1])
	if ok != nil {
		return false
	}
	return code == 0 || errorCode == code
}

type clientCodec struct {
	dec *json.Decoder
	enc *json.Encoder
	c   io.Closer

	req  clientRequest
	resp clientResponse

	// JSON-RPC responses include the request id but not the request method.
	// Package rpc expects both, so the method is remembered here and
	// looked up again by request ID when filling out the rpc Response.
	mutex   sync.Mutex
	pending map[uint64]string
}

func newClientCodec(conn io.ReadWriteCloser) rpc.ClientCodec {
	return &clientCodec{
		dec:     json.NewDecoder(conn),
		enc:     json.NewEncoder(conn),
		c:       conn,
		req:     clientRequest{Version: "2.0"},
		pending: make(map[uint64]string),
	}
}

// clientRequest represents the payload sent to the daemon. Compared to
// net/rpc/json, two changes were made:
//   - add Version (aka jsonrpc)
//   - Params is a single value, not a list, and is a pointer so that nil
//     suppresses the "params" field entirely (some verbs take none).
type clientRequest struct {
	Version string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  *interface{} `json:"params,omitempty"`
	ID      uint64       `json:"id"`
}

func (c *clientCodec) WriteRequest(r *rpc.Request, param interface{}) error {
	c.mutex.Lock()
	c.pending[r.Seq] = r.ServiceMethod
	c.mutex.Unlock()
	c.req.Method = r.ServiceMethod
	if param == nil {
		c.req.Params = nil
	} else {
		c.req.Params = &param
	}
	c.req.ID = r.Seq
	return c.enc.Encode(&c.req)
}

type clientResponse struct {
	ID     uint64           `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  interface{}      `json:"error"`
}

func (r *clientResponse) reset() {
	r.ID = 0
	r.Result = nil
	r.Error = nil
}

// ReadResponseHeader parses a response from the accelerator daemon.
// Returning an error here is treated as a failed connection, so it is
// reserved for actual transport problems.
func (c *clientCodec) ReadResponseHeader(r *rpc.Response) error {
	c.resp.reset()
	if err := c.dec.Decode(&c.resp); err != nil {
		return err
	}

	c.mutex.Lock()
	r.ServiceMethod = c.pending[c.resp.ID]
	delete(c.pending, c.resp.ID)
	c.mutex.Unlock()

	r.Error = ""
	r.Seq = c.resp.ID
	if c.resp.Error != nil || c.resp.Result == nil {
		m, ok := c.resp.Error.(map[string]interface{})
		if ok {
			code, haveCode := m["code"]
			message, haveMessage := m["message"]
			if !haveCode || !haveMessage {
				return fmt.Errorf("invalid error %v", c.resp.Error)
			}
			var codeVal int
			switch v := code.(type) {
			case int:
				codeVal = v
			case float64:
				codeVal = int(v)
			default:
				haveCode = false
			}
			messageVal, haveMessage := message.(string)
			if !haveCode || !haveMessage {
				return fmt.Errorf("invalid error content %v", c.resp.Error)
			}
			// net/rpc only supports a plain string for errors, so the
			// code and message are folded into one and parsed back out
			// by IsJSONError.
			r.Error = fmt.Sprintf("code: %d msg: %s", codeVal, messageVal)
		} else {
			x, ok := c.resp.Error.(string)
			if !ok {
				return fmt.Errorf("invalid error %v", c.resp.Error)
			}
			if x == "" {
				x = "unspecified error"
			}
			r.Error = x
		}
	}
	return nil
}

func (c *clientCodec) ReadResponseBody(x interface{}) error {
	if x == nil {
		return nil
	}
	return json.Unmarshal(*c.resp.Result, x)
}

func (c *clientCodec) Close() error {
	return c.c.Close()
}

// RPCClient talks JSON-RPC 2.0 to an accelerator management daemon over
// a Unix domain socket. It underlies RemoteCapability, which turns the
// five driver verbs into RPCClient.Invoke calls.
type RPCClient struct {
	client *rpc.Client
}

type logConn struct {
	net.Conn
	logger log.Logger
}

func (lc *logConn) Read(b []byte) (int, error) {
	n, err := lc.Conn.Read(b)
	if err == nil {
		lc.logger.Debugw("read", "data", log.LineBuffer(b[:n]))
	} else if err != io.EOF {
		lc.logger.Errorw("read error", "error", err)
	}
	return n, err
}

func (lc *logConn) Write(b []byte) (int, error) {
	lc.logger.Debugw("write", "data", log.LineBuffer(b))
	n, err := lc.Conn.Write(b)
	if err != nil {
		lc.logger.Errorw("write error", "error", err)
	}
	return n, err
}

// DialRPC connects to an accelerator daemon listening on a Unix domain
// socket at path.
func DialRPC(path string) (*RPCClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	logged := &logConn{conn, log.L().With("at", "driver-rpc")}
	client := rpc.NewClientWithCodec(newClientCodec(logged))
	return &RPCClient{client: client}, nil
}

// Close shuts down the connection to the daemon.
func (c *RPCClient) Close() error {
	return c.client.Close()
}

// Invoke calls a single JSON-RPC method and decodes its result into reply.
func (c *RPCClient) Invoke(_ context.Context, method string, args, reply interface{}) error {
	return c.client.Call(method, args, reply)
}
