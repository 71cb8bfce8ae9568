// Package facetgrpc carries the dispatcher's governance and read
// surface over gRPC, using cramberry for deterministic binary
// serialization.
//
// No protobuf code generation is required. Domain types from
// facetroute/types are serialized directly via cramberry struct tags.
// Callers authenticate with an HS256 bearer token in the
// "authorization" metadata; the token's subject becomes the principal
// the dispatcher checks roles against.
package facetgrpc

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

const codecName = "cramberry"

// MaxMessageSize bounds a single decoded message. The largest payload
// is a State carrying the full live table.
const MaxMessageSize = 16 << 20

var errNilMessage = errors.New("facetgrpc: nil message")

// CramberryCodec implements grpc/encoding.Codec over cramberry. Every
// message of the service is a facetroute/types struct or one of the
// wrappers in wire.go.
type CramberryCodec struct{}

func (CramberryCodec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, errNilMessage
	}
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("facetgrpc: encode %T: %w", v, err)
	}
	return data, nil
}

func (CramberryCodec) Unmarshal(data []byte, v any) error {
	if v == nil {
		return errNilMessage
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("facetgrpc: %T message of %d bytes exceeds %d", v, len(data), MaxMessageSize)
	}
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("facetgrpc: decode %T: %w", v, err)
	}
	return nil
}

func (CramberryCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(CramberryCodec{})
}
