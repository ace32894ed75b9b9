// Package registry implements the Plugin Registry (spec §4.1): it
// discovers transport-plugin candidates on the filesystem, invokes each
// one's entry point, and merges the returned scheme -> Factory maps,
// isolating any one plugin's failure from the rest.
//
// Plugin discovery is filesystem-based (a directory of plugin modules),
// but a plugin module itself is still ordinary compiled Go code: each
// transport package registers a named constructor from its own init(),
// the way database/sql drivers and image.RegisterFormat register
// themselves — spec §9 explicitly allows this ("A static registration
// table is equivalent [to filesystem scanning] as long as each transport
// contributes a (scheme, factory) pair with the specified callback
// wiring").
package registry

import (
	"fmt"
	"sync"

	"github.com/nodebridge/linkmesh/internal/linklog"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/transport"
)

var (
	constructorsMu sync.RWMutex
	constructors   = map[string]transport.RegisterFunc{}
)

// RegisterPluginConstructor makes a plugin module's entry point available
// to the registry under name. Plugin packages call this from their own
// init(), mirroring how a manifest.json's "name" field selects which
// compiled plugin backs a filesystem directory entry.
func RegisterPluginConstructor(name string, fn transport.RegisterFunc) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[name] = fn
}

func lookupConstructor(name string) (transport.RegisterFunc, bool) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	fn, ok := constructors[name]
	return fn, ok
}

// Registry holds the merged scheme -> Factory table built by Register
// (spec §3, "transports": mapping scheme -> TransportFactory).
type Registry struct {
	mu         sync.RWMutex
	transports map[string]transport.Factory
	log        linklog.Logger
}

// New builds an empty Registry. log may be nil, in which case a no-op
// logger is used.
func New(log linklog.Logger) *Registry {
	if log == nil {
		log = linklog.Noop
	}
	return &Registry{transports: make(map[string]transport.Factory), log: log}
}

// Register enumerates plugin candidates under pluginRoot, invokes each
// one's entry point with local, callbacks, schemes and formats, and merges
// the resulting scheme -> Factory maps into the registry. A later plugin
// wins on scheme collision, but the collision is logged
// (spec §4.1, "a later entry wins on collision but the event is logged").
// One failing plugin never prevents others from registering
// (spec §4.1, §7 "PluginRegisterError").
func (r *Registry) Register(pluginRoot string, local nodeid.ID, callbacks transport.Callbacks, schemes, formats []string) error {
	dirs, err := candidateDirs(pluginRoot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dir := range dirs {
		r.registerOne(dir, local, callbacks, schemes, formats)
	}
	return nil
}

// registerOne loads and invokes a single plugin candidate, isolating any
// panic or error so the caller's loop continues to the next candidate.
// Caller must hold r.mu.
func (r *Registry) registerOne(dir string, local nodeid.ID, callbacks transport.Callbacks, schemes, formats []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warnf("plugin at %s panicked during registration, skipping: %v", dir, rec)
		}
	}()

	manifest, err := loadManifest(dir)
	if err != nil {
		r.log.Debugf("could not load plugin manifest at %s, skipping: %v", dir, err)
		return
	}

	fn, ok := lookupConstructor(manifest.Name)
	if !ok {
		r.log.Debugf("no compiled constructor registered for plugin %q (%s), skipping", manifest.Name, dir)
		return
	}

	factories, err := fn(local, callbacks, schemes, formats)
	if err != nil {
		r.log.Warnf("plugin %q failed to register: %v", manifest.Name, err)
		return
	}

	for scheme, factory := range factories {
		if _, exists := r.transports[scheme]; exists {
			r.log.Infof("plugin %q replaces existing factory for scheme %q", manifest.Name, scheme)
		}
		r.transports[scheme] = factory
	}
}

// RegisterStatic merges factories directly, bypassing filesystem
// discovery — useful for tests and for processes that wire their
// transports at compile time instead of through plugin directories.
func (r *Registry) RegisterStatic(factories map[string]transport.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for scheme, factory := range factories {
		if _, exists := r.transports[scheme]; exists {
			r.log.Infof("static registration replaces existing factory for scheme %q", scheme)
		}
		r.transports[scheme] = factory
	}
}

// Factory returns the Factory bound to scheme, if any.
func (r *Registry) Factory(scheme string) (transport.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.transports[scheme]
	return f, ok
}

// Schemes returns every scheme with a registered Factory.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.transports))
	for scheme := range r.transports {
		out = append(out, scheme)
	}
	return out
}

// Has reports whether scheme has a registered Factory — convenience
// wrapper used by the Link Manager and Listener Set.
func (r *Registry) Has(scheme string) bool {
	_, ok := r.Factory(scheme)
	return ok
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry{schemes=%v}", r.Schemes())
}
