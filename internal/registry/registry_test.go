package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/registry"
	"github.com/nodebridge/linkmesh/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFactory struct{ scheme string }

func (f fakeFactory) Listen(string) error { return nil }
func (f fakeFactory) Join(string) error   { return nil }

func writeManifest(t *testing.T, root, dir, content string) {
	t.Helper()
	full := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, "manifest.json"), []byte(content), 0o644))
}

func TestRegisterMergesAcrossPlugins(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "alpha", `{"name":"test-alpha","schemes":["alpha"]}`)
	writeManifest(t, root, "beta", `{"name":"test-beta","schemes":["beta"]}`)

	registry.RegisterPluginConstructor("test-alpha", func(nodeid.ID, transport.Callbacks, []string, []string) (map[string]transport.Factory, error) {
		return map[string]transport.Factory{"alpha": fakeFactory{"alpha"}}, nil
	})
	registry.RegisterPluginConstructor("test-beta", func(nodeid.ID, transport.Callbacks, []string, []string) (map[string]transport.Factory, error) {
		return map[string]transport.Factory{"beta": fakeFactory{"beta"}}, nil
	})

	reg := registry.New(nil)
	require.NoError(t, reg.Register(root, nodeid.FromString("local"), transport.Callbacks{}, nil, nil))

	assert.True(t, reg.Has("alpha"))
	assert.True(t, reg.Has("beta"))
}

func TestRegisterIsolatesFailingPlugin(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "bad", `{"name":"test-bad","schemes":["bad"]}`)
	writeManifest(t, root, "good", `{"name":"test-good","schemes":["good"]}`)

	registry.RegisterPluginConstructor("test-bad", func(nodeid.ID, transport.Callbacks, []string, []string) (map[string]transport.Factory, error) {
		return nil, errors.New("boom")
	})
	registry.RegisterPluginConstructor("test-good", func(nodeid.ID, transport.Callbacks, []string, []string) (map[string]transport.Factory, error) {
		return map[string]transport.Factory{"good": fakeFactory{"good"}}, nil
	})

	reg := registry.New(nil)
	require.NoError(t, reg.Register(root, nodeid.FromString("local"), transport.Callbacks{}, nil, nil))

	assert.False(t, reg.Has("bad"))
	assert.True(t, reg.Has("good"))
}

func TestRegisterSkipsUnderscorePrefixedDirs(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "_hidden", `{"name":"test-hidden","schemes":["hidden"]}`)

	registered := false
	registry.RegisterPluginConstructor("test-hidden", func(nodeid.ID, transport.Callbacks, []string, []string) (map[string]transport.Factory, error) {
		registered = true
		return map[string]transport.Factory{"hidden": fakeFactory{"hidden"}}, nil
	})

	reg := registry.New(nil)
	require.NoError(t, reg.Register(root, nodeid.FromString("local"), transport.Callbacks{}, nil, nil))

	assert.False(t, registered)
	assert.False(t, reg.Has("hidden"))
}

func TestRegisterRejectsManifestFailingSchema(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "malformed", `{"name":"test-malformed"}`) // missing required "schemes"

	reg := registry.New(nil)
	require.NoError(t, reg.Register(root, nodeid.FromString("local"), transport.Callbacks{}, nil, nil))
	assert.Empty(t, reg.Schemes())
}

func TestRegisterStaticLaterWins(t *testing.T) {
	reg := registry.New(nil)
	first := fakeFactory{"x"}
	second := fakeFactory{"y"}
	reg.RegisterStatic(map[string]transport.Factory{"x": first})
	reg.RegisterStatic(map[string]transport.Factory{"x": second})

	f, ok := reg.Factory("x")
	require.True(t, ok)
	assert.Equal(t, second, f)
}
