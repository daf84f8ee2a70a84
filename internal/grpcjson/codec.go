// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package grpcjson registers a JSON grpc codec under the content
// subtype "json". debugrpc uses it instead of protobuf so its service
// methods can be hand-written Go structs rather than protoc-generated
// stubs, since this repository has no .proto toolchain and hand-faked
// generated code is worse than no generated code at all.
package grpcjson

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Name is the grpc content-subtype this codec registers under; clients
// select it with grpc.CallContentSubtype(Name).
const Name = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
