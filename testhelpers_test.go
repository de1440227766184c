package gojafetchlocation

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// fetchRecorder is a base fetch that records its arguments and this value,
// and returns a fixed result.
type fetchRecorder struct {
	result goja.Value
	calls  [][]goja.Value
	this   []goja.Value
}

func newFetchRecorder(rt *goja.Runtime) (*fetchRecorder, goja.Value) {
	r := &fetchRecorder{result: rt.ToValue(`response`)}
	return r, rt.ToValue(func(call goja.FunctionCall) goja.Value {
		r.calls = append(r.calls, append([]goja.Value(nil), call.Arguments...))
		r.this = append(r.this, call.This)
		return r.result
	})
}

func (r *fetchRecorder) lastArg(t *testing.T) goja.Value {
	t.Helper()
	require.NotEmpty(t, r.calls)
	last := r.calls[len(r.calls)-1]
	require.NotEmpty(t, last)
	return last[0]
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(buf io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(buf)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// newTestModule returns a module with its own warning flag, so tests do not
// share the process-wide one.
func newTestModule(t *testing.T, rt *goja.Runtime, opts ...Option) *Module {
	t.Helper()
	m, err := New(rt, opts...)
	require.NoError(t, err)
	m.warned = new(atomic.Bool)
	return m
}

func countWarnings(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), originWarningMessage)
}

func mustRun(t *testing.T, rt *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := rt.RunString(src)
	require.NoError(t, err)
	return v
}
