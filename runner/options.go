package runner

import (
	gojafetchlocation "github.com/joeycumines/goja-fetchlocation"
	"github.com/joeycumines/goja-fetchlocation/nativefetch"
	"github.com/joeycumines/logiface"
)

type runnerOptions struct {
	logger          *logiface.Logger[logiface.Event]
	moduleOpts      []gojafetchlocation.Option
	fetchOpts       []nativefetch.Option
	disableFetch    bool
	disableBuiltins bool
}

// Option configures a [Runner].
type Option interface {
	applyOption(*runnerOptions) error
}

type optionFunc struct {
	fn func(*runnerOptions) error
}

func (o *optionFunc) applyOption(opts *runnerOptions) error {
	return o.fn(opts)
}

// WithModuleOptions appends options for the [gojafetchlocation.Module].
func WithModuleOptions(opts ...gojafetchlocation.Option) Option {
	return &optionFunc{fn: func(o *runnerOptions) error {
		o.moduleOpts = append(o.moduleOpts, opts...)
		return nil
	}}
}

// WithFetchOptions appends options for the [nativefetch.Fetcher].
func WithFetchOptions(opts ...nativefetch.Option) Option {
	return &optionFunc{fn: func(o *runnerOptions) error {
		o.fetchOpts = append(o.fetchOpts, opts...)
		return nil
	}}
}

// WithoutNativeFetch skips installing the native fetch, for hosts that
// supply a base fetch through [gojafetchlocation.WithFetch].
func WithoutNativeFetch() Option {
	return &optionFunc{fn: func(o *runnerOptions) error {
		o.disableFetch = true
		return nil
	}}
}

// WithoutBuiltins skips installing the bundled builtins (ReadableStream).
func WithoutBuiltins() Option {
	return &optionFunc{fn: func(o *runnerOptions) error {
		o.disableBuiltins = true
		return nil
	}}
}

// WithLogger configures the logger shared by the runner, the module and the
// native fetch. Explicit module or fetch logger options take precedence.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(o *runnerOptions) error {
		o.logger = logger
		return nil
	}}
}

func resolveOptions(opts []Option) (*runnerOptions, error) {
	cfg := &runnerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
