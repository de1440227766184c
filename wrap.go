package gojafetchlocation

import (
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

// WrappedMarker is the property set on fetch functions returned by
// [Module.Wrap], so that wrapping does not nest.
const WrappedMarker = `__BASE_URL_POLYFILLED`

type targetKind int

const (
	targetNone targetKind = iota
	targetString
	targetDescriptor
)

// requestTarget is the first argument of a fetch call, classified as either
// a URL string or a request descriptor object with a string url.
type requestTarget struct {
	descriptor *goja.Object
	url        string
	kind       targetKind
}

func classifyTarget(v goja.Value) requestTarget {
	if obj, ok := v.(*goja.Object); ok {
		// typeof must be 'object', not 'function'
		if _, callable := goja.AssertFunction(obj); callable {
			return requestTarget{}
		}
		if s, ok := primitiveString(obj.Get(`url`)); ok {
			return requestTarget{kind: targetDescriptor, descriptor: obj, url: s}
		}
		return requestTarget{}
	}
	if s, ok := primitiveString(v); ok {
		return requestTarget{kind: targetString, url: s}
	}
	return requestTarget{}
}

// primitiveString matches typeof v === 'string', so String wrapper objects
// are excluded.
func primitiveString(v goja.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	if _, ok := v.(*goja.Object); ok {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

func (t requestTarget) rootRelative() bool {
	return t.kind != targetNone && strings.HasPrefix(t.url, `/`)
}

// IsWrapped reports whether fetch carries the [WrappedMarker].
func IsWrapped(fetch goja.Value) bool {
	obj, ok := fetch.(*goja.Object)
	if !ok {
		return false
	}
	marker := obj.Get(WrappedMarker)
	return marker != nil && marker.ToBoolean()
}

// Wrap returns a fetch function that rewrites root-relative request targets
// against the ambient location origin, before calling fetch with the same
// arguments and an undefined this value. The result of fetch is returned
// as-is, and exceptions propagate.
//
// If fetch is already wrapped it is returned unchanged.
func (m *Module) Wrap(fetch goja.Value) (goja.Value, error) {
	call, ok := goja.AssertFunction(fetch)
	if !ok {
		return nil, ErrNotCallable
	}
	if IsWrapped(fetch) {
		return fetch, nil
	}

	wrapper := m.runtime.ToValue(func(fc goja.FunctionCall) goja.Value {
		args := fc.Arguments
		if len(args) != 0 {
			if target := classifyTarget(args[0]); target.rootRelative() {
				resolved := m.rewrite(target)
				if target.kind == targetString {
					args = append([]goja.Value{resolved}, args[1:]...)
				}
			}
		}
		result, err := call(goja.Undefined(), args...)
		if err != nil {
			panic(err)
		}
		return result
	}).(*goja.Object)

	if err := wrapper.DefineDataProperty(WrappedMarker, m.runtime.ToValue(true), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}
	return wrapper, nil
}

// rewrite resolves the target, warning first if not in production. A
// descriptor target is mutated in place. Failures are thrown into the
// runtime.
func (m *Module) rewrite(target requestTarget) goja.Value {
	if !m.production {
		m.warnOriginNotConfigured(target.url)
	}
	resolved := m.resolveURL(target.url)
	if target.kind == targetDescriptor {
		if err := target.descriptor.Set(`url`, resolved); err != nil {
			panic(err)
		}
	}
	return resolved
}

// resolveURL resolves path against the ambient location origin, using the
// runtime's URL constructor if there is one.
func (m *Module) resolveURL(path string) goja.Value {
	origin := m.ambientOrigin()

	if ctor, ok := m.runtime.GlobalObject().Get(`URL`).(*goja.Object); ok {
		if _, ok := goja.AssertConstructor(ctor); ok {
			u, err := m.runtime.New(ctor, m.runtime.ToValue(path), origin)
			if err != nil {
				panic(err)
			}
			return m.runtime.ToValue(u.String())
		}
	}

	resolved, err := resolveAgainst(path, originString(origin))
	if err != nil {
		panic(m.runtime.NewTypeError(err.Error()))
	}
	return m.runtime.ToValue(resolved)
}

// ambientOrigin returns location.origin from the ambient scope, or
// undefined.
func (m *Module) ambientOrigin() goja.Value {
	loc, ok := m.scope().Get(`location`).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}
	origin := loc.Get(`origin`)
	if origin == nil {
		return goja.Undefined()
	}
	return origin
}

func originString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

type invalidURLError struct {
	input string
	base  string
}

func (e *invalidURLError) Error() string {
	if e.base == "" {
		return "Invalid URL: " + e.input
	}
	return "Invalid URL: " + e.input + " (base " + e.base + ")"
}

// resolveAgainst resolves ref against an absolute base URL.
func resolveAgainst(ref, base string) (string, error) {
	if base == "" {
		return "", &invalidURLError{input: ref}
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" || b.Host == "" {
		return "", &invalidURLError{input: ref, base: base}
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", &invalidURLError{input: ref, base: base}
	}
	u := b.ResolveReference(r)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
