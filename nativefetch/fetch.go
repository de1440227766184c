// Package nativefetch implements a Promise-returning fetch for a [goja]
// runtime driven by a goja_nodejs event loop, backed by [net/http].
//
// Requests run on their own goroutine, and the returned promise settles on
// the loop via [eventloop.EventLoop.RunOnLoop]. The response body is read in
// full before the promise resolves, so text(), json() and arrayBuffer() only
// resolve already-buffered data.
//
// Relative URLs are passed to net/http verbatim, and reject with a
// TypeError, as nothing in this package knows an origin.
//
// [goja]: github.com/dop251/goja
package nativefetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/joeycumines/logiface"
)

// Fetcher performs fetch calls for runtimes on a single event loop.
type Fetcher struct {
	ctx         context.Context
	loop        *eventloop.EventLoop
	client      *http.Client
	logger      *logiface.Logger[logiface.Event]
	maxBodySize int64
}

// New creates a [Fetcher] that settles promises on loop.
//
// New panics if loop is nil.
func New(loop *eventloop.EventLoop, opts ...Option) (*Fetcher, error) {
	if loop == nil {
		panic("nativefetch: loop must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		ctx:         cfg.ctx,
		loop:        loop,
		client:      cfg.client,
		logger:      cfg.logger,
		maxBodySize: cfg.maxBodySize,
	}, nil
}

// Function returns the fetch function for runtime, which must be the
// loop's runtime.
func (f *Fetcher) Function(runtime *goja.Runtime) goja.Value {
	return runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		return f.fetch(runtime, call)
	})
}

// Enable sets the global fetch of runtime.
func (f *Fetcher) Enable(runtime *goja.Runtime) error {
	return runtime.Set(`fetch`, f.Function(runtime))
}

// request is a fetch call, decoded on the loop goroutine.
type request struct {
	header http.Header
	method string
	url    string
	body   []byte
}

type response struct {
	header     http.Header
	status     string
	url        string
	body       []byte
	statusCode int
}

func (f *Fetcher) fetch(rt *goja.Runtime, call goja.FunctionCall) goja.Value {
	promise, resolve, reject := rt.NewPromise()

	req, err := decodeRequest(rt, call.Argument(0), call.Argument(1))
	if err != nil {
		_ = reject(rt.NewTypeError(err.Error()))
		return rt.ToValue(promise)
	}

	go func() {
		res, err := f.do(req)
		f.loop.RunOnLoop(func(rt *goja.Runtime) {
			if err != nil {
				f.logger.Debug().
					Str(`method`, req.method).
					Str(`url`, req.url).
					Err(err).
					Log(`fetch failed`)
				_ = reject(rt.NewTypeError("fetch failed: " + err.Error()))
				return
			}
			f.logger.Debug().
				Str(`method`, req.method).
				Str(`url`, req.url).
				Int(`status`, res.statusCode).
				Log(`fetch complete`)
			_ = resolve(newResponseObject(rt, res))
		})
	}()

	return rt.ToValue(promise)
}

func (f *Fetcher) do(req *request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(f.ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}

	httpRes, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpRes.Body.Close()

	b, err := io.ReadAll(io.LimitReader(httpRes.Body, f.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > f.maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}

	return &response{
		header:     httpRes.Header,
		status:     strings.TrimSpace(strings.TrimPrefix(httpRes.Status, fmt.Sprint(httpRes.StatusCode))),
		url:        httpRes.Request.URL.String(),
		body:       b,
		statusCode: httpRes.StatusCode,
	}, nil
}

// decodeRequest reads fetch(input, init). Input is a URL string or an
// object with url, method, headers and body. Init fields override input.
func decodeRequest(rt *goja.Runtime, input, init goja.Value) (*request, error) {
	req := &request{
		method: http.MethodGet,
		header: make(http.Header),
	}

	switch v := input.(type) {
	case *goja.Object:
		u := v.Get(`url`)
		if u == nil || goja.IsUndefined(u) || goja.IsNull(u) {
			req.url = v.String()
		} else {
			req.url = u.String()
		}
		if err := applyInit(rt, req, v); err != nil {
			return nil, err
		}
	default:
		if input == nil || goja.IsUndefined(input) {
			return nil, fmt.Errorf("fetch requires a resource")
		}
		req.url = input.String()
	}

	if obj, ok := init.(*goja.Object); ok {
		if err := applyInit(rt, req, obj); err != nil {
			return nil, err
		}
	}

	req.method = strings.ToUpper(req.method)
	if req.body != nil && (req.method == http.MethodGet || req.method == http.MethodHead) {
		return nil, fmt.Errorf("request with %s method cannot have body", req.method)
	}
	return req, nil
}

func applyInit(rt *goja.Runtime, req *request, obj *goja.Object) error {
	if v := obj.Get(`method`); isSet(v) {
		req.method = v.String()
	}
	if v := obj.Get(`headers`); isSet(v) {
		if err := decodeHeaders(rt, req.header, v); err != nil {
			return err
		}
	}
	if v := obj.Get(`body`); isSet(v) {
		req.body = decodeBody(v)
	}
	return nil
}

// decodeHeaders accepts a plain object, an array of [name, value] pairs, or
// any object with a forEach(value, name) method.
func decodeHeaders(rt *goja.Runtime, dst http.Header, v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return fmt.Errorf("headers must be an object")
	}

	if obj.ClassName() == `Array` {
		var pairs [][]string
		if err := rt.ExportTo(obj, &pairs); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for _, pair := range pairs {
			if len(pair) != 2 {
				return fmt.Errorf("headers: each pair must have exactly two elements")
			}
			dst.Add(pair[0], pair[1])
		}
		return nil
	}

	if forEach, ok := goja.AssertFunction(obj.Get(`forEach`)); ok {
		_, err := forEach(obj, rt.ToValue(func(call goja.FunctionCall) goja.Value {
			dst.Add(call.Argument(1).String(), call.Argument(0).String())
			return goja.Undefined()
		}))
		return err
	}

	for _, key := range obj.Keys() {
		dst.Add(key, obj.Get(key).String())
	}
	return nil
}

func decodeBody(v goja.Value) []byte {
	switch b := v.Export().(type) {
	case goja.ArrayBuffer:
		return bytes.Clone(b.Bytes())
	case []byte:
		return bytes.Clone(b)
	default:
		return []byte(v.String())
	}
}

func isSet(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
