// Package wire registers the msgpack gRPC codec shared by the model client
// and the public transcription service.
package wire

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Name is the gRPC content subtype of the codec.
const Name = "msgpack"

// Codec marshals gRPC messages with msgpack.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (Codec) Name() string {
	return Name
}

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOption selects the msgpack codec for a call.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(Name)
}
