// Package formats defines the wire serialization contract a transport
// plugin negotiates against (spec §3, "formats" — the set of
// serializations a plugin registration may be restricted to). A Codec
// turns one envelope.Envelope into bytes and back; which bytes those are
// is entirely up to the concrete codec (formats/json, formats/cbor).
package formats

import "github.com/nodebridge/linkmesh/internal/envelope"

// Codec serializes and deserializes the message envelope exchanged over
// a Link. Name is the identifier the list of requested formats handed to a
// plugin's Register refers to it by (e.g. "json", "cbor").
type Codec interface {
	Name() string
	Encode(env envelope.Envelope) ([]byte, error)
	Decode(data []byte) (envelope.Envelope, error)
}
