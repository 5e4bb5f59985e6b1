// Package rpc defines the small request/reply envelope cmd/oio-proxy and
// cmd/oio-meta2 speak when run as separate processes. It preserves the
// status-code-plus-payload semantics of the envelope it replaces, not
// its wire format, so it's hand-written against tinylib/msgp's runtime
// append/read helpers instead of generated from a struct with
// `//go:generate msgp`.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package rpc

import (
	"github.com/tinylib/msgp/msgp"
)

// Request is one META2 operation call: Op names the method (cmd/oio-meta2
// serves "purge", "dedup" and "container_info" and answers any other op
// with CodeBadRequest), ContainerRef/Path address it, and Payload is an
// operation-specific jsoniter-encoded body (kept as an opaque blob here
// since the envelope itself doesn't need to know every operation's shape).
type Request struct {
	Op           string
	ContainerRef string
	Path         string
	Payload      []byte
}

// MarshalMsg appends r's msgpack encoding to b.
func (r *Request) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "op")
	b = msgp.AppendString(b, r.Op)
	b = msgp.AppendString(b, "ref")
	b = msgp.AppendString(b, r.ContainerRef)
	b = msgp.AppendString(b, "path")
	b = msgp.AppendString(b, r.Path)
	b = msgp.AppendString(b, "payload")
	b = msgp.AppendBytes(b, r.Payload)
	return b, nil
}

// UnmarshalMsg decodes r from the head of b, returning the remaining
// bytes.
func (r *Request) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch key {
		case "op":
			r.Op, b, err = msgp.ReadStringBytes(b)
		case "ref":
			r.ContainerRef, b, err = msgp.ReadStringBytes(b)
		case "path":
			r.Path, b, err = msgp.ReadStringBytes(b)
		case "payload":
			r.Payload, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Reply is one META2 operation's result: Status is a cmn.Code* value,
// Message carries an error string when Status != cmn.CodeOK, and Payload
// is the operation's jsoniter-encoded result.
type Reply struct {
	Status  int
	Message string
	Payload []byte
}

func (r *Reply) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 3)
	b = msgp.AppendString(b, "status")
	b = msgp.AppendInt(b, r.Status)
	b = msgp.AppendString(b, "message")
	b = msgp.AppendString(b, r.Message)
	b = msgp.AppendString(b, "payload")
	b = msgp.AppendBytes(b, r.Payload)
	return b, nil
}

func (r *Reply) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch key {
		case "status":
			r.Status, b, err = msgp.ReadIntBytes(b)
		case "message":
			r.Message, b, err = msgp.ReadStringBytes(b)
		case "payload":
			r.Payload, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}
