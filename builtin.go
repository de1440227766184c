package gojafetchlocation

import (
	"fmt"

	"github.com/dop251/goja"
)

// BuiltinSymbolKey is the Symbol.for key of the marker attached to globals
// installed via [Module.InstallBuiltin].
const BuiltinSymbolKey = `gojafetchlocation.builtin`

// BuiltinFactory creates the value of a builtin global. It is only called
// if the global is absent.
type BuiltinFactory func(runtime *goja.Runtime) (goja.Value, error)

// InstallBuiltin defines the global name, if it does not already exist,
// using the value from factory. The value must be an object, and is tagged
// with the builtin marker, which is non-enumerable, non-writable and
// non-configurable. Reports whether the global was installed.
func (m *Module) InstallBuiltin(name string, factory BuiltinFactory) (bool, error) {
	global := m.runtime.GlobalObject()
	if v := global.Get(name); v != nil && !goja.IsUndefined(v) {
		return false, nil
	}

	v, err := factory(m.runtime)
	if err != nil {
		return false, fmt.Errorf("gojafetchlocation: builtin %s: %w", name, err)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return false, fmt.Errorf("gojafetchlocation: builtin %s: value is not an object", name)
	}

	if err := obj.DefineDataPropertySymbol(m.builtinSymbol(), m.runtime.ToValue(true), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return false, fmt.Errorf("gojafetchlocation: builtin %s: %w", name, err)
	}

	if err := global.DefineDataProperty(name, obj, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return false, fmt.Errorf("gojafetchlocation: builtin %s: %w", name, err)
	}
	return true, nil
}

// IsBuiltin reports whether v carries the builtin marker of runtime.
func IsBuiltin(runtime *goja.Runtime, v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	marker := obj.GetSymbol(symbolFor(runtime, BuiltinSymbolKey))
	return marker != nil && marker.ToBoolean()
}

func (m *Module) builtinSymbol() *goja.Symbol {
	return symbolFor(m.runtime, BuiltinSymbolKey)
}

// symbolFor returns the runtime's registered symbol for key, i.e.
// Symbol.for(key), so JS code can look the marker up too.
func symbolFor(runtime *goja.Runtime, key string) *goja.Symbol {
	symbolCtor := runtime.GlobalObject().Get(`Symbol`).ToObject(runtime)
	symFor, ok := goja.AssertFunction(symbolCtor.Get(`for`))
	if !ok {
		panic(runtime.NewTypeError("Symbol.for is not a function"))
	}
	v, err := symFor(symbolCtor, runtime.ToValue(key))
	if err != nil {
		panic(err)
	}
	return v.(*goja.Symbol)
}
