// Package linkerr defines the error kinds of spec §7, modeled the way the
// teacher models its own errors: a small Kind-tagged struct with an
// Error() string, rather than bare sentinel strings (c.f. HostError,
// PluginRepoError in the teacher repo).
package linkerr

import "fmt"

// Kind identifies one of the error kinds named in spec §7.
type Kind string

const (
	// KindUnknownScheme — join/listen for a scheme with no registered transport.
	KindUnknownScheme Kind = "UnknownScheme"
	// KindJoinFailed — plugin reported a failed join.
	KindJoinFailed Kind = "JoinFailed"
	// KindPeerNotFound — directory resolved no URI for a peer.
	KindPeerNotFound Kind = "PeerNotFound"
	// KindLinkNotEstablished — link_check on an unknown peer.
	KindLinkNotEstablished Kind = "LinkNotEstablished"
	// KindPluginRegisterError — one plugin failed to register.
	KindPluginRegisterError Kind = "PluginRegisterError"
)

// Error is the concrete error type raised for every Kind above.
type Error struct {
	Kind    Kind
	Detail  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New builds a new Error of the given Kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a new Error of the given Kind, chaining an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Wrapped: cause}
}

// Is allows kind checks of the form errors.Is(err, linkerr.New(linkerr.KindX, ""))
// — any *Error target with the same Kind matches, whatever its Detail —
// since Kind itself isn't an error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
