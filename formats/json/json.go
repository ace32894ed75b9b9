// Package json implements formats.Codec over encoding/json, the
// human-inspectable default serialization (spec §3, "formats").
package json

import (
	"encoding/json"

	"github.com/nodebridge/linkmesh/internal/envelope"
)

// Codec is the JSON formats.Codec. The zero value is ready to use.
type Codec struct{}

// New builds a JSON Codec.
func New() Codec { return Codec{} }

func (Codec) Name() string { return "json" }

func (Codec) Encode(env envelope.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (Codec) Decode(data []byte) (envelope.Envelope, error) {
	var env envelope.Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
