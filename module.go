package gojafetchlocation

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
)

// Module installs the fetch and location polyfill into a single
// [goja.Runtime]. It is not safe for concurrent use, the same as the runtime
// it is bound to, with the exception of the process-wide warning flag.
type Module struct {
	runtime    *goja.Runtime
	manifest   *Manifest
	devServer  DevServerLocator
	logger     *logiface.Logger[logiface.Event]
	fetch      goja.Value
	warned     *atomic.Bool
	builtins   []builtinEntry
	production bool
}

// New creates a new [Module] bound to the given [goja.Runtime].
//
// New panics if runtime is nil, as this is a programming error. It returns
// an error if option validation fails.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojafetchlocation: runtime must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Module{
		runtime:    runtime,
		manifest:   cfg.manifest,
		devServer:  cfg.devServer,
		logger:     cfg.logger,
		fetch:      cfg.fetch,
		warned:     &originWarned,
		builtins:   cfg.builtins,
		production: cfg.production,
	}, nil
}

// Runtime returns the [goja.Runtime] this module is bound to.
func (m *Module) Runtime() *goja.Runtime {
	return m.runtime
}

// Manifest returns the manifest in use. It is never nil.
func (m *Module) Manifest() *Manifest {
	return m.manifest
}

// Production reports whether the module runs in production mode.
func (m *Module) Production() bool {
	return m.production
}

// ResolveBaseURL returns the base URL for root-relative requests, with a
// single trailing slash removed. Outside production it is the development
// server address. In production it is the configured origin. The second
// return value is false if no base URL is known.
func (m *Module) ResolveBaseURL() (string, bool) {
	var u string
	if !m.production {
		if m.devServer != nil {
			u = m.devServer.DevServerURL()
		}
	} else if m.manifest.Origin.Mode() == OriginURL {
		u = m.manifest.Origin.URL()
	}
	if u == "" {
		return "", false
	}
	return strings.TrimSuffix(u, "/"), true
}

// Install performs the load-time setup against the runtime's global scope.
//
// Configured builtins are installed first. If the origin setting is
// disabled, the base fetch is defined as the global fetch with no wrapping.
// Otherwise, a location object is installed if none exists and a base URL
// is known, then the global fetch is replaced with [Module.Wrap] of the base
// fetch.
func (m *Module) Install() error {
	for _, b := range m.builtins {
		if _, err := m.InstallBuiltin(b.name, b.factory); err != nil {
			m.logger.Debug().
				Str(`builtin`, b.name).
				Err(err).
				Log(`skipping builtin`)
		}
	}

	base := m.fetch
	if base == nil {
		base = m.runtime.Get("fetch")
	}
	if base == nil || goja.IsUndefined(base) || goja.IsNull(base) {
		return ErrNoFetch
	}
	if _, ok := goja.AssertFunction(base); !ok {
		return ErrNotCallable
	}

	if m.manifest.Origin.Disabled() {
		return m.defineFetch(base)
	}

	if !m.hasLocation() {
		if u, ok := m.ResolveBaseURL(); ok {
			if _, err := m.InstallLocationIfAbsent(u); err != nil {
				return err
			}
		}
	}

	wrapped, err := m.Wrap(base)
	if err != nil {
		return err
	}
	return m.defineFetch(wrapped)
}

func (m *Module) defineFetch(fetch goja.Value) error {
	err := m.runtime.GlobalObject().DefineDataProperty(`fetch`, fetch, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
	if err != nil {
		return fmt.Errorf("gojafetchlocation: define fetch: %w", err)
	}
	return nil
}

// scope returns the object location lives on: window, if it is an object,
// else the global object.
func (m *Module) scope() *goja.Object {
	if w, ok := m.runtime.GlobalObject().Get(`window`).(*goja.Object); ok {
		return w
	}
	return m.runtime.GlobalObject()
}
