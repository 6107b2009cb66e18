package pb

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype; clients select it with
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}
