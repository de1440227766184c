package gojafetchlocation

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Require returns a [require.ModuleLoader] exposing the module to
// JavaScript, for hosts that prefer to drive installation from script:
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule("fetch-location", gojafetchlocation.Require(
//	    gojafetchlocation.WithManifest(manifest),
//	))
//	registry.Enable(runtime)
//
// Exports:
//   - wrapFetch(fn): [Module.Wrap]
//   - isWrapped(fn): [IsWrapped]
//   - resolveBaseUrl(): [Module.ResolveBaseURL], or null
//   - installLocation(origin): [Module.InstallLocationIfAbsent]
//   - isBuiltin(value): [IsBuiltin]
//   - install(): [Module.Install]
func Require(opts ...Option) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		m, err := New(runtime, opts...)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		exports := module.Get("exports").(*goja.Object)
		m.setupExports(exports)
	}
}

// SetupExports wires the module's JS API onto the given exports object,
// without the require() mechanism.
func (m *Module) SetupExports(exports *goja.Object) {
	m.setupExports(exports)
}

func (m *Module) setupExports(exports *goja.Object) {
	rt := m.runtime
	_ = exports.Set("wrapFetch", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		v, err := m.Wrap(call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		return v
	}))
	_ = exports.Set("isWrapped", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(IsWrapped(call.Argument(0)))
	}))
	_ = exports.Set("resolveBaseUrl", rt.ToValue(func(goja.FunctionCall) goja.Value {
		if u, ok := m.ResolveBaseURL(); ok {
			return rt.ToValue(u)
		}
		return goja.Null()
	}))
	_ = exports.Set("installLocation", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		origin := call.Argument(0)
		if goja.IsUndefined(origin) || goja.IsNull(origin) {
			return rt.ToValue(false)
		}
		ok, err := m.InstallLocationIfAbsent(origin.String())
		if err != nil {
			panic(rt.NewTypeError(err.Error()))
		}
		return rt.ToValue(ok)
	}))
	_ = exports.Set("isBuiltin", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(IsBuiltin(rt, call.Argument(0)))
	}))
	_ = exports.Set("install", rt.ToValue(func(goja.FunctionCall) goja.Value {
		if err := m.Install(); err != nil {
			panic(rt.NewGoError(err))
		}
		return goja.Undefined()
	}))
}
