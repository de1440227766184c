package gojafetchlocation

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
)

// moduleOptions holds configuration for a [Module] instance.
type moduleOptions struct {
	manifest   *Manifest
	devServer  DevServerLocator
	logger     *logiface.Logger[logiface.Event]
	fetch      goja.Value
	builtins   []builtinEntry
	production bool
}

type builtinEntry struct {
	factory BuiltinFactory
	name    string
}

// Option configures a [Module] instance. Options are applied during
// module construction.
type Option interface {
	applyOption(*moduleOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*moduleOptions) error
}

func (o *optionFunc) applyOption(opts *moduleOptions) error {
	return o.fn(opts)
}

// WithManifest configures the manifest the origin setting is read from.
// A nil manifest is equivalent to an empty one (origin unset).
func WithManifest(m *Manifest) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.manifest = m
		return nil
	}}
}

// WithProduction toggles production mode. In production mode the base URL
// comes from the manifest origin, and no advisory warning is emitted.
func WithProduction(enabled bool) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.production = enabled
		return nil
	}}
}

// WithDevServer configures the locator used to find the development server
// in non-production mode.
func WithDevServer(locator DevServerLocator) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.devServer = locator
		return nil
	}}
}

// WithLogger configures the logger receiving the unconfigured origin
// warning, and debug output. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithFetch configures the base fetch function installed by
// [Module.Install]. If unset, the runtime's existing global fetch is used.
func WithFetch(fetch goja.Value) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if fetch == nil || goja.IsUndefined(fetch) || goja.IsNull(fetch) {
			return errors.New("gojafetchlocation: fetch must not be nil")
		}
		opts.fetch = fetch
		return nil
	}}
}

// WithBuiltin registers a global to be installed, if absent, by
// [Module.Install], tagged with the builtin marker. Builtins are installed in
// registration order.
func WithBuiltin(name string, factory BuiltinFactory) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if name == "" {
			return errors.New("gojafetchlocation: builtin name must not be empty")
		}
		if factory == nil {
			return errors.New("gojafetchlocation: builtin factory must not be nil")
		}
		opts.builtins = append(opts.builtins, builtinEntry{name: name, factory: factory})
		return nil
	}}
}

// resolveOptions applies the given options to a default [moduleOptions].
func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.manifest == nil {
		cfg.manifest = &Manifest{}
	}
	return cfg, nil
}
