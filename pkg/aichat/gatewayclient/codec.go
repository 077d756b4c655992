// Package gatewayclient implements aichat.GatewayClient over gRPC. The
// gateway speaks a JSON content-subtype rather than protobuf, so the
// package registers a custom grpc-go codec and opens the server-streaming
// call with grpc.CallContentSubtype; the stream contract is otherwise a
// plain Generate-returns-a-channel-of-chunks client.
package gatewayclient

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec, letting grpc-go carry JSON-encoded
// request/response structs over an ordinary gRPC stream in place of a
// protobuf-generated Marshal/Unmarshal pair.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gatewayclient: marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("gatewayclient: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
