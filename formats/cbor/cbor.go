// Package cbor implements formats.Codec over fxamacker/cbor/v2, the
// compact binary serialization (spec §3, "formats"), grounded on the
// encode/decode shape of the teacher's own cbor package (EncodeFrame /
// DecodeFrame in cbor/codec.go) but carrying an envelope.Envelope instead
// of a capability-relay frame.
package cbor

import (
	cbor "github.com/fxamacker/cbor/v2"

	"github.com/nodebridge/linkmesh/internal/envelope"
)

// Codec is the CBOR formats.Codec. The zero value is ready to use.
type Codec struct{}

// New builds a CBOR Codec.
func New() Codec { return Codec{} }

func (Codec) Name() string { return "cbor" }

func (Codec) Encode(env envelope.Envelope) ([]byte, error) {
	return cbor.Marshal(env)
}

func (Codec) Decode(data []byte) (envelope.Envelope, error) {
	var env envelope.Envelope
	err := cbor.Unmarshal(data, &env)
	return env, err
}
