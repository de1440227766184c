// Package runner executes scripts in a goja runtime with the fetch and
// location polyfill installed, on a goja_nodejs event loop.
//
// The runtime gets the loop's console and timers, the WHATWG URL global,
// a [nativefetch] base fetch, a ReadableStream builtin, and
// [gojafetchlocation.Module.Install].
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	nodeurl "github.com/dop251/goja_nodejs/url"
	gojafetchlocation "github.com/joeycumines/goja-fetchlocation"
	"github.com/joeycumines/goja-fetchlocation/nativefetch"
	"github.com/joeycumines/logiface"
)

// ErrClosed is returned when using a closed [Runner].
var ErrClosed = errors.New("runner: closed")

// RejectionError is returned by [Runner.Run] when the script's promise
// rejects.
type RejectionError struct {
	// Value is the exported rejection reason.
	Value any
	// Message is the reason converted to a string.
	Message string
}

func (e *RejectionError) Error() string {
	return "runner: promise rejected: " + e.Message
}

// Runner owns a started event loop and its runtime.
type Runner struct {
	loop    *eventloop.EventLoop
	runtime *goja.Runtime
	module  *gojafetchlocation.Module
	logger  *logiface.Logger[logiface.Event]
	closed  chan struct{}
	once    sync.Once
}

// New starts an event loop and installs the polyfill on its runtime.
func New(opts ...Option) (*Runner, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		loop:   eventloop.NewEventLoop(),
		logger: cfg.logger,
		closed: make(chan struct{}),
	}
	r.loop.Start()

	err = r.do(context.Background(), func(rt *goja.Runtime) error {
		r.runtime = rt
		nodeurl.Enable(rt)

		if !cfg.disableFetch {
			fetcher, err := nativefetch.New(r.loop, append([]nativefetch.Option{nativefetch.WithLogger(cfg.logger)}, cfg.fetchOpts...)...)
			if err != nil {
				return err
			}
			if err := fetcher.Enable(rt); err != nil {
				return err
			}
		}

		moduleOpts := []gojafetchlocation.Option{gojafetchlocation.WithLogger(cfg.logger)}
		if !cfg.disableBuiltins {
			moduleOpts = append(moduleOpts, gojafetchlocation.WithBuiltin(`ReadableStream`, ReadableStream))
		}
		m, err := gojafetchlocation.New(rt, append(moduleOpts, cfg.moduleOpts...)...)
		if err != nil {
			return err
		}
		r.module = m
		return m.Install()
	})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("runner: setup: %w", err)
	}

	return r, nil
}

// Module returns the installed module.
func (r *Runner) Module() *gojafetchlocation.Module {
	return r.module
}

// Loop returns the event loop.
func (r *Runner) Loop() *eventloop.EventLoop {
	return r.loop
}

// Close stops the event loop. It is safe to call more than once.
func (r *Runner) Close() {
	r.once.Do(func() {
		close(r.closed)
		r.loop.Stop()
	})
}

// Do runs fn on the loop and waits for it to return.
func (r *Runner) Do(ctx context.Context, fn func(rt *goja.Runtime) error) error {
	return r.do(ctx, fn)
}

func (r *Runner) do(ctx context.Context, fn func(rt *goja.Runtime) error) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	errCh := make(chan error, 1)
	r.loop.RunOnLoop(func(rt *goja.Runtime) {
		errCh <- fn(rt)
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closed:
		return ErrClosed
	}
}

type outcome struct {
	value any
	err   error
}

// Run executes source, named name in stack traces. If the completion value
// is a promise, Run waits for it to settle, returning the exported value or
// a [*RejectionError]. Cancelling ctx interrupts the runtime.
func (r *Runner) Run(ctx context.Context, name, source string) (any, error) {
	r.logger.Debug().
		Str(`script`, name).
		Int(`size`, len(source)).
		Log(`running script`)

	done := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	err := r.do(ctx, func(rt *goja.Runtime) error {
		rt.ClearInterrupt()
		v, err := rt.RunScript(name, source)
		if err != nil {
			settle(outcome{err: err})
			return nil
		}
		r.await(rt, v, settle)
		return nil
	})
	if err != nil {
		r.interrupt(err)
		return nil, err
	}

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		r.interrupt(ctx.Err())
		return nil, ctx.Err()
	case <-r.closed:
		return nil, ErrClosed
	}
}

// interrupt stops any script running on the loop, then clears the pending
// interrupt from the loop, so it cannot leak into later work.
func (r *Runner) interrupt(reason error) {
	if r.runtime == nil {
		return
	}
	r.runtime.Interrupt(reason)
	r.loop.RunOnLoop(func(rt *goja.Runtime) {
		rt.ClearInterrupt()
	})
}

// await settles with v, or with the outcome of v if it is a promise.
func (r *Runner) await(rt *goja.Runtime, v goja.Value, settle func(outcome)) {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		settle(outcome{value: v.Export()})
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		settle(outcome{value: p.Result().Export()})
		return
	case goja.PromiseStateRejected:
		settle(outcome{err: newRejectionError(p.Result())})
		return
	}

	then, ok := goja.AssertFunction(v.ToObject(rt).Get(`then`))
	if !ok {
		settle(outcome{err: errors.New("runner: promise has no then method")})
		return
	}
	_, err := then(v,
		rt.ToValue(func(call goja.FunctionCall) goja.Value {
			settle(outcome{value: call.Argument(0).Export()})
			return goja.Undefined()
		}),
		rt.ToValue(func(call goja.FunctionCall) goja.Value {
			settle(outcome{err: newRejectionError(call.Argument(0))})
			return goja.Undefined()
		}),
	)
	if err != nil {
		settle(outcome{err: err})
	}
}

func newRejectionError(reason goja.Value) *RejectionError {
	if reason == nil {
		reason = goja.Undefined()
	}
	return &RejectionError{
		Value:   reason.Export(),
		Message: reason.String(),
	}
}
