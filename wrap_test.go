package gojafetchlocation

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	nodeurl "github.com/dop251/goja_nodejs/url"
	"github.com/stretchr/testify/assert"
	testifyrequire "github.com/stretchr/testify/require"
)

func setLocationOrigin(t *testing.T, rt *goja.Runtime, origin string) {
	t.Helper()
	testifyrequire.NoError(t, rt.Set(`location`, map[string]any{`origin`: origin}))
}

func TestWrap_PassesThroughNonRootRelativeStrings(t *testing.T) {
	for _, input := range []string{
		`https://example.com/api/x`,
		`api/x`,
		`./api/x`,
		``,
		`?q=1`,
		`#frag`,
	} {
		t.Run(input, func(t *testing.T) {
			rt := goja.New()
			setLocationOrigin(t, rt, `https://example.com`)
			rec, base := newFetchRecorder(rt)
			m := newTestModule(t, rt)

			wrapped, err := m.Wrap(base)
			testifyrequire.NoError(t, err)
			fn, ok := goja.AssertFunction(wrapped)
			testifyrequire.True(t, ok)

			arg := rt.ToValue(input)
			_, err = fn(goja.Undefined(), arg)
			testifyrequire.NoError(t, err)
			assert.True(t, rec.lastArg(t).StrictEquals(arg))
		})
	}
}

func TestWrap_ResolvesRootRelativeString(t *testing.T) {
	for _, tc := range []struct {
		name   string
		origin string
		input  string
		want   string
	}{
		{`path`, `https://example.com`, `/api/x`, `https://example.com/api/x`},
		{`trailing slash origin`, `https://example.com/`, `/api/x`, `https://example.com/api/x`},
		{`query and fragment`, `https://example.com`, `/api/x?a=1#b`, `https://example.com/api/x?a=1#b`},
		{`port`, `http://localhost:8081`, `/bundle`, `http://localhost:8081/bundle`},
		{`root`, `https://example.com`, `/`, `https://example.com/`},
		{`protocol relative`, `https://example.com`, `//cdn.example.org/a`, `https://cdn.example.org/a`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := goja.New()
			setLocationOrigin(t, rt, tc.origin)
			rec, base := newFetchRecorder(rt)
			m := newTestModule(t, rt, WithProduction(true))

			wrapped, err := m.Wrap(base)
			testifyrequire.NoError(t, err)
			testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

			mustRun(t, rt, `fetch(`+quote(tc.input)+`, {method: 'POST'})`)
			assert.Equal(t, tc.want, rec.lastArg(t).String())
			testifyrequire.Len(t, rec.calls[0], 2)
			assert.Equal(t, `POST`, rec.calls[0][1].ToObject(rt).Get(`method`).String())
		})
	}
}

func TestWrap_RewritesDescriptorInPlace(t *testing.T) {
	rt := goja.New()
	setLocationOrigin(t, rt, `https://host`)
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithProduction(true))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	v := mustRun(t, rt, `
		var req = { url: '/foo', method: 'GET' };
		fetch(req);
		[req.url, req.method];
	`)
	assert.Equal(t, []any{`https://host/foo`, `GET`}, v.Export())

	req := rt.Get(`req`)
	assert.True(t, rec.lastArg(t).StrictEquals(req), "descriptor should be passed by reference")
}

func TestWrap_IgnoresNonQualifyingDescriptors(t *testing.T) {
	for _, src := range []string{
		`({ url: 'https://elsewhere/x' })`,
		`({ url: 42 })`,
		`({ url: new String('/x') })`,
		`({ href: '/x' })`,
		`new String('/x')`,
		`null`,
		`undefined`,
		`42`,
	} {
		t.Run(src, func(t *testing.T) {
			rt := goja.New()
			setLocationOrigin(t, rt, `https://host`)
			rec, base := newFetchRecorder(rt)
			m := newTestModule(t, rt)

			wrapped, err := m.Wrap(base)
			testifyrequire.NoError(t, err)
			fn, _ := goja.AssertFunction(wrapped)

			arg := mustRun(t, rt, src)
			_, err = fn(goja.Undefined(), arg)
			testifyrequire.NoError(t, err)
			assert.True(t, rec.lastArg(t).SameAs(arg))
		})
	}
}

func TestWrap_NoArguments(t *testing.T) {
	rt := goja.New()
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt)

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	fn, _ := goja.AssertFunction(wrapped)

	_, err = fn(goja.Undefined())
	testifyrequire.NoError(t, err)
	testifyrequire.Len(t, rec.calls, 1)
	assert.Empty(t, rec.calls[0])
}

func TestWrap_Idempotent(t *testing.T) {
	rt := goja.New()
	_, base := newFetchRecorder(rt)
	m := newTestModule(t, rt)

	assert.False(t, IsWrapped(base))

	once, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	assert.True(t, IsWrapped(once))

	twice, err := m.Wrap(once)
	testifyrequire.NoError(t, err)
	assert.Same(t, once.(*goja.Object), twice.(*goja.Object))

	// marker is hidden from enumeration
	testifyrequire.NoError(t, rt.Set(`wrapped`, once))
	assert.Equal(t, []any{}, mustRun(t, rt, `Object.keys(wrapped)`).Export())
	assert.Equal(t, true, mustRun(t, rt, `wrapped.`+WrappedMarker).Export())
}

func TestWrap_NotCallable(t *testing.T) {
	rt := goja.New()
	m := newTestModule(t, rt)
	for _, v := range []goja.Value{nil, goja.Undefined(), rt.ToValue(`fetch`), rt.NewObject()} {
		_, err := m.Wrap(v)
		assert.ErrorIs(t, err, ErrNotCallable)
	}
}

func TestWrap_CallsFetchWithUndefinedThis(t *testing.T) {
	rt := goja.New()
	rec, base := newFetchRecorder(rt)
	rec.result = mustRun(t, rt, `Promise.resolve('done')`)
	m := newTestModule(t, rt)

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`wrapped`, wrapped))

	v := mustRun(t, rt, `var self = { fetch: wrapped }; self.fetch('https://a/b')`)
	assert.True(t, v.SameAs(rec.result))
	assert.True(t, goja.IsUndefined(rec.this[0]))

	// a base fetch that rejects foreign receivers still works as a method
	strict := mustRun(t, rt, `(function () {
		'use strict';
		return function (input) {
			if (this !== undefined) throw new TypeError('Illegal invocation');
			return input;
		};
	})()`)
	wrapped, err = m.Wrap(strict)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`wrapped`, wrapped))
	assert.Equal(t, `https://a/c`, mustRun(t, rt, `var other = { fetch: wrapped }; other.fetch('https://a/c')`).Export())
}

func TestWrap_IgnoresFunctionTargets(t *testing.T) {
	rt := goja.New()
	setLocationOrigin(t, rt, `https://host`)
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt)

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	v := mustRun(t, rt, `var target = function () {}; target.url = '/x'; fetch(target); target.url`)
	assert.Equal(t, `/x`, v.Export())
	assert.True(t, rec.lastArg(t).SameAs(rt.Get(`target`)))
	assert.False(t, m.warned.Load())
}

func TestWrap_PropagatesFetchExceptions(t *testing.T) {
	rt := goja.New()
	base := mustRun(t, rt, `(function () { throw new RangeError('boom') })`)
	m := newTestModule(t, rt)

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	v := mustRun(t, rt, `
		var caught;
		try { fetch('https://a/b') } catch (e) { caught = e }
		caught instanceof RangeError && caught.message;
	`)
	assert.Equal(t, `boom`, v.Export())
}

func TestWrap_NoAmbientOriginThrows(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(t *testing.T, rt *goja.Runtime)
	}{
		{`no location`, func(t *testing.T, rt *goja.Runtime) {}},
		{`location without origin`, func(t *testing.T, rt *goja.Runtime) {
			testifyrequire.NoError(t, rt.Set(`location`, rt.NewObject()))
		}},
		{`relative origin`, func(t *testing.T, rt *goja.Runtime) { setLocationOrigin(t, rt, `not-a-url`) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := goja.New()
			tc.setup(t, rt)
			rec, base := newFetchRecorder(rt)
			m := newTestModule(t, rt, WithProduction(true))

			wrapped, err := m.Wrap(base)
			testifyrequire.NoError(t, err)
			testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

			v := mustRun(t, rt, `
				var caught;
				try { fetch('/api') } catch (e) { caught = e }
				caught instanceof TypeError && caught.message;
			`)
			assert.Contains(t, v.String(), `Invalid URL`)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestWrap_UsesRuntimeURLConstructor(t *testing.T) {
	rt := goja.New()
	new(require.Registry).Enable(rt)
	nodeurl.Enable(rt)
	setLocationOrigin(t, rt, `https://example.com`)
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithProduction(true))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	mustRun(t, rt, `fetch('/a/../b?c=1')`)
	assert.Equal(t, `https://example.com/b?c=1`, rec.lastArg(t).String())

	// URL construction failures are thrown by the constructor
	testifyrequire.NoError(t, rt.Set(`location`, rt.NewObject()))
	_, err = rt.RunString(`fetch('/x')`)
	testifyrequire.Error(t, err)
	assert.Len(t, rec.calls, 1)
}

func TestWrap_UsesWindowLocation(t *testing.T) {
	rt := goja.New()
	mustRun(t, rt, `var window = { location: { origin: 'https://window.example' } }; var location = { origin: 'https://global.example' }`)
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithProduction(true))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	fn, _ := goja.AssertFunction(wrapped)

	_, err = fn(goja.Undefined(), rt.ToValue(`/x`))
	testifyrequire.NoError(t, err)
	assert.Equal(t, `https://window.example/x`, rec.lastArg(t).String())
}

func TestWrap_WarnsOnceWithoutOrigin(t *testing.T) {
	var buf bytes.Buffer
	rt := goja.New()
	setLocationOrigin(t, rt, `http://localhost:8081`)
	rec, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithLogger(newTestLogger(&buf)))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	mustRun(t, rt, `fetch('/a'); fetch({ url: '/b' }); fetch('/c')`)

	assert.Len(t, rec.calls, 3)
	assert.Equal(t, 1, countWarnings(&buf))
	assert.Contains(t, buf.String(), `"url":"/a"`)
	assert.True(t, m.warned.Load())

	mustRun(t, rt, `fetch('/d')`)
	assert.Equal(t, 1, countWarnings(&buf))
}

func TestWrap_NoWarningForAbsoluteURLs(t *testing.T) {
	var buf bytes.Buffer
	rt := goja.New()
	_, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithLogger(newTestLogger(&buf)))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	mustRun(t, rt, `fetch('https://a/b'); fetch({ url: 'https://a/c' })`)
	assert.Zero(t, countWarnings(&buf))
	assert.False(t, m.warned.Load())
}

func TestWrap_NoWarningInProduction(t *testing.T) {
	var buf bytes.Buffer
	rt := goja.New()
	setLocationOrigin(t, rt, `https://host`)
	_, base := newFetchRecorder(rt)
	m := newTestModule(t, rt, WithProduction(true), WithLogger(newTestLogger(&buf)))

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	mustRun(t, rt, `fetch('/a')`)
	assert.Zero(t, countWarnings(&buf))
	assert.False(t, m.warned.Load())
}

func TestWrap_NoWarningWhenOriginConfigured(t *testing.T) {
	var buf bytes.Buffer
	rt := goja.New()
	setLocationOrigin(t, rt, `http://localhost:8081`)
	_, base := newFetchRecorder(rt)
	m := newTestModule(t, rt,
		WithManifest(&Manifest{Origin: URLOrigin(`https://example.com`)}),
		WithLogger(newTestLogger(&buf)),
	)

	wrapped, err := m.Wrap(base)
	testifyrequire.NoError(t, err)
	testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

	mustRun(t, rt, `fetch('/a')`)
	assert.Zero(t, countWarnings(&buf))
	assert.True(t, m.warned.Load(), "the first qualifying request consumes the flag")
}

func TestWrap_WarningSharedAcrossModules(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	first := newTestModule(t, goja.New(), WithLogger(logger))
	second := newTestModule(t, goja.New(), WithLogger(logger))
	second.warned = first.warned

	for _, m := range []*Module{first, second} {
		setLocationOrigin(t, m.Runtime(), `http://localhost:8081`)
		_, base := newFetchRecorder(m.Runtime())
		wrapped, err := m.Wrap(base)
		testifyrequire.NoError(t, err)
		testifyrequire.NoError(t, m.Runtime().Set(`fetch`, wrapped))
		mustRun(t, m.Runtime(), `fetch('/a')`)
	}

	assert.Equal(t, 1, countWarnings(&buf))
}

func TestWrap_WarnsOnceAcrossConcurrentRuntimes(t *testing.T) {
	const workers = 16

	var (
		buf    lockedBuffer
		warned atomic.Bool
		start  = make(chan struct{})
		wg     sync.WaitGroup
		errs   = make(chan error, workers)
	)
	logger := newTestLogger(&buf)

	for range workers {
		rt := goja.New()
		setLocationOrigin(t, rt, `http://localhost:8081`)
		_, base := newFetchRecorder(rt)
		m := newTestModule(t, rt, WithLogger(logger))
		m.warned = &warned
		wrapped, err := m.Wrap(base)
		testifyrequire.NoError(t, err)
		testifyrequire.NoError(t, rt.Set(`fetch`, wrapped))

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := rt.RunString(`for (var i = 0; i < 10; i++) fetch('/a' + i)`); err != nil {
				errs <- err
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.True(t, warned.Load())
	assert.Equal(t, 1, strings.Count(buf.String(), originWarningMessage))
}

func TestNew_UsesProcessWideWarningFlag(t *testing.T) {
	m, err := New(goja.New())
	testifyrequire.NoError(t, err)
	assert.Same(t, &originWarned, m.warned)
}

func TestResolveAgainst(t *testing.T) {
	for _, tc := range []struct {
		ref, base, want string
		wantErr         bool
	}{
		{ref: `/x`, base: `https://h`, want: `https://h/x`},
		{ref: `/x`, base: `https://h/`, want: `https://h/x`},
		{ref: `/x`, base: `https://h/deep/path`, want: `https://h/x`},
		{ref: `/x`, base: ``, wantErr: true},
		{ref: `/x`, base: `h`, wantErr: true},
		{ref: `/x`, base: `https://`, wantErr: true},
		{ref: `/%zz`, base: `https://h`, wantErr: true},
	} {
		got, err := resolveAgainst(tc.ref, tc.base)
		if tc.wantErr {
			assert.Error(t, err, "%s against %s", tc.ref, tc.base)
			continue
		}
		testifyrequire.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func quote(s string) string {
	b := []byte{'\''}
	for _, r := range []byte(s) {
		if r == '\'' || r == '\\' {
			b = append(b, '\\')
		}
		b = append(b, r)
	}
	return string(append(b, '\''))
}
