package grpc

import (
	"encoding/json"
)

// CodecName is the gRPC content subtype of the JSON codec.
const CodecName = "json"

// JSONCodec carries the api documents over gRPC as JSON instead of protobuf.
//
// The wire format is NOT protobuf: message bodies are encoding/json documents
// of the internal/api types, sent with content-type application/grpc+json.
// Stock protobuf clients (grpcurl with reflection, generated stubs) cannot
// talk to this service; a client must register or force this codec, e.g.
// grpc.ForceCodec(JSONCodec{}) as a call option, which Invoke does.
// Status details (ErrorInfo, RetryInfo) are still protobuf, inside the
// grpc-status-details-bin trailer, as for any gRPC server.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return CodecName
}
