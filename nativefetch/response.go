package nativefetch

import (
	"net/http"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// newResponseObject builds the JS Response for res. Body accessors consume
// the body, and reject on a second read.
func newResponseObject(rt *goja.Runtime, res *response) *goja.Object {
	obj := rt.NewObject()
	_ = obj.Set(`ok`, res.statusCode >= 200 && res.statusCode < 300)
	_ = obj.Set(`status`, res.statusCode)
	_ = obj.Set(`statusText`, res.status)
	_ = obj.Set(`url`, res.url)
	_ = obj.Set(`headers`, newHeadersObject(rt, res.header))
	_ = obj.Set(`bodyUsed`, false)

	consume := func(fn func(body []byte) (goja.Value, error)) goja.Value {
		promise, resolve, reject := rt.NewPromise()
		if obj.Get(`bodyUsed`).ToBoolean() {
			_ = reject(rt.NewTypeError("body stream already read"))
			return rt.ToValue(promise)
		}
		_ = obj.Set(`bodyUsed`, true)
		v, err := fn(res.body)
		if err != nil {
			if ex, ok := err.(*goja.Exception); ok {
				_ = reject(ex.Value())
			} else {
				_ = reject(rt.NewGoError(err))
			}
			return rt.ToValue(promise)
		}
		_ = resolve(v)
		return rt.ToValue(promise)
	}

	_ = obj.Set(`text`, func(goja.FunctionCall) goja.Value {
		return consume(func(body []byte) (goja.Value, error) {
			return rt.ToValue(string(body)), nil
		})
	})
	_ = obj.Set(`json`, func(goja.FunctionCall) goja.Value {
		return consume(func(body []byte) (goja.Value, error) {
			jsonObj := rt.GlobalObject().Get(`JSON`).ToObject(rt)
			parse, _ := goja.AssertFunction(jsonObj.Get(`parse`))
			return parse(jsonObj, rt.ToValue(string(body)))
		})
	})
	_ = obj.Set(`arrayBuffer`, func(goja.FunctionCall) goja.Value {
		return consume(func(body []byte) (goja.Value, error) {
			return rt.ToValue(rt.NewArrayBuffer(body)), nil
		})
	})

	return obj
}

// newHeadersObject exposes a read-only view of h, with case-insensitive
// get and has, and forEach in sorted name order.
func newHeadersObject(rt *goja.Runtime, h http.Header) *goja.Object {
	obj := rt.NewObject()
	_ = obj.Set(`get`, func(call goja.FunctionCall) goja.Value {
		values := h.Values(call.Argument(0).String())
		if len(values) == 0 {
			return goja.Null()
		}
		return rt.ToValue(strings.Join(values, ", "))
	})
	_ = obj.Set(`has`, func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(len(h.Values(call.Argument(0).String())) != 0)
	})
	_ = obj.Set(`forEach`, func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("Headers.forEach requires a function"))
		}
		names := make([]string, 0, len(h))
		for name := range h {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := cb(goja.Undefined(), rt.ToValue(strings.Join(h[name], ", ")), rt.ToValue(strings.ToLower(name)), obj); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	})
	return obj
}
