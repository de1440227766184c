package nativefetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxBodySize = 32 << 20
)

// fetcherOptions holds configuration for a [Fetcher] instance.
type fetcherOptions struct {
	ctx         context.Context
	client      *http.Client
	logger      *logiface.Logger[logiface.Event]
	maxBodySize int64
}

// Option configures a [Fetcher] instance.
type Option interface {
	applyOption(*fetcherOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*fetcherOptions) error
}

func (o *optionFunc) applyOption(opts *fetcherOptions) error {
	return o.fn(opts)
}

// WithClient configures the HTTP client. Defaults to a client with a 10
// second timeout.
func WithClient(client *http.Client) Option {
	return &optionFunc{fn: func(opts *fetcherOptions) error {
		if client == nil {
			return errors.New("nativefetch: client must not be nil")
		}
		opts.client = client
		return nil
	}}
}

// WithContext configures the parent context of every request. Cancelling it
// aborts requests in flight, rejecting their promises.
func WithContext(ctx context.Context) Option {
	return &optionFunc{fn: func(opts *fetcherOptions) error {
		if ctx == nil {
			return errors.New("nativefetch: context must not be nil")
		}
		opts.ctx = ctx
		return nil
	}}
}

// WithMaxBodySize limits the size of response bodies, which are read fully
// before the fetch promise settles. Defaults to 32 MiB.
func WithMaxBodySize(n int64) Option {
	return &optionFunc{fn: func(opts *fetcherOptions) error {
		if n <= 0 {
			return errors.New("nativefetch: max body size must be positive")
		}
		opts.maxBodySize = n
		return nil
	}}
}

// WithLogger configures a logger for per-request debug output.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *fetcherOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveOptions(opts []Option) (*fetcherOptions, error) {
	cfg := &fetcherOptions{
		ctx:         context.Background(),
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.client == nil {
		cfg.client = &http.Client{Timeout: defaultTimeout}
	}
	return cfg, nil
}
