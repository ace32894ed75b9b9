// Package listener implements the Listener Set (spec §4.2): starting
// inbound listeners per scheme, using whatever default URIs the caller
// didn't specify.
package listener

import (
	"fmt"

	"github.com/nodebridge/linkmesh/internal/linklog"
	"github.com/nodebridge/linkmesh/internal/registry"
	"github.com/nodebridge/linkmesh/internal/uri"
)

// Set starts listeners across every scheme a Registry knows about.
type Set struct {
	reg *registry.Registry
	log linklog.Logger
}

// New builds a Set bound to reg.
func New(reg *registry.Registry, log linklog.Logger) *Set {
	if log == nil {
		log = linklog.Noop
	}
	return &Set{reg: reg, log: log}
}

// Start starts listeners on uris. If uris is empty, the set defaults to
// "<scheme>:default" for every registered scheme
// (spec §4.2, "If no URIs given, the set is {'<scheme>:default' | scheme
// ∈ registered schemes}"). Unknown schemes are skipped with a warning.
func (s *Set) Start(uris []string) error {
	if len(uris) == 0 {
		for _, scheme := range s.reg.Schemes() {
			uris = append(uris, scheme+":default")
		}
	}

	for _, u := range uris {
		scheme, _, ok := uri.SplitScheme(u)
		if !ok {
			s.log.Warnf("malformed listener uri %q, skipping", u)
			continue
		}

		factory, ok := s.reg.Factory(scheme)
		if !ok {
			s.log.Warnf("unknown scheme %q for listener uri %q, skipping", scheme, u)
			continue
		}

		if err := factory.Listen(u); err != nil {
			return fmt.Errorf("listening on %s: %w", u, err)
		}
	}
	return nil
}
