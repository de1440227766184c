// Package gojafetchlocation installs a fetch and location compatibility
// layer into a [goja] runtime, so that scripts written against a browser
// baseline can issue root-relative requests.
//
// # Overview
//
// A [Module] is bound to one [goja.Runtime]. [Module.Install] replaces the
// global fetch with a wrapper that resolves root-relative targets, i.e.
// fetch("/api/x") or fetch({url: "/api/x"}), against location.origin. If no
// location exists, one is installed from the base URL: the development
// server outside production, or the configured origin in production.
//
// The origin is read from the app config at extra.router.origin:
//
//	{ "expo": { "extra": { "router": { "origin": "https://example.com" } } } }
//
// A string configures the production origin. false disables the layer, in
// which case the base fetch is installed unmodified. An absent value is
// valid: production requests stay host-relative, and a single warning is
// logged the first time a root-relative request is made during
// development.
//
// # Usage
//
//	manifest, _ := gojafetchlocation.LoadManifest("app.json")
//	m, _ := gojafetchlocation.New(rt,
//	    gojafetchlocation.WithManifest(manifest),
//	    gojafetchlocation.WithDevServer(gojafetchlocation.StaticDevServer("http://localhost:8081")),
//	    gojafetchlocation.WithFetch(baseFetch),
//	)
//	if err := m.Install(); err != nil {
//	    log.Fatal(err)
//	}
//
// The [nativefetch] package provides a Go-backed base fetch, and [runner]
// composes both with an event loop.
//
// # Builtins
//
// Globals installed via [Module.InstallBuiltin] are tagged with
// Symbol.for("gojafetchlocation.builtin"), a non-enumerable property, so
// scripts can detect them without affecting iteration:
//
//	ReadableStream[Symbol.for("gojafetchlocation.builtin")] === true
//
// [goja]: github.com/dop251/goja
// [nativefetch]: github.com/joeycumines/goja-fetchlocation/nativefetch
// [runner]: github.com/joeycumines/goja-fetchlocation/runner
package gojafetchlocation
