// Package nodeid defines the opaque, totally-ordered node identity used to
// tie-break simultaneous connect races (spec §3, §4.4).
package nodeid

import "bytes"

// ID is an opaque immutable node identifier. Two IDs are compared as raw
// bytes so that the same order is observed independent of which node does
// the comparing — the tie-break in the link manager depends on that.
type ID []byte

// New copies b into a fresh ID so the caller can't mutate it out from under
// the link manager after registration.
func New(b []byte) ID {
	out := make(ID, len(b))
	copy(out, b)
	return out
}

// FromString builds an ID from a UTF-8 string, a common case for tests and
// for nodes that derive their identity from a human-readable name or a
// UUID string.
func FromString(s string) ID {
	return New([]byte(s))
}

// Compare returns -1, 0 or 1 as id is less than, equal to, or greater than
// other, using the same byte-wise order on every node (spec §9, "Tie-break
// symmetry").
func (id ID) Compare(other ID) int {
	return bytes.Compare(id, other)
}

// Equal reports whether id and other denote the same node.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id, other)
}

// String renders the identity for logging. Non-printable identities are
// still rendered — this is a debug aid, not a canonical encoding.
func (id ID) String() string {
	return string(id)
}
