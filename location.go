package gojafetchlocation

import (
	"fmt"
	"net/url"

	"github.com/dop251/goja"
)

// hasLocation reports whether the ambient scope has a truthy location.
func (m *Module) hasLocation() bool {
	v := m.scope().Get(`location`)
	return v != nil && v.ToBoolean()
}

// InstallLocationIfAbsent defines a minimal location object for origin on
// the ambient scope (window, or the global object). It does nothing, and
// returns false, if a location already exists, origin is empty, or the
// manifest disables the origin setting.
func (m *Module) InstallLocationIfAbsent(origin string) (bool, error) {
	if origin == "" || m.manifest.Origin.Disabled() || m.hasLocation() {
		return false, nil
	}

	loc, err := m.newLocation(origin)
	if err != nil {
		return false, err
	}

	if err := m.scope().DefineDataProperty(`location`, loc, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return false, fmt.Errorf("gojafetchlocation: define location: %w", err)
	}

	m.logger.Debug().
		Str(`href`, loc.Get(`href`).String()).
		Log(`installed location`)

	return true, nil
}

// newLocation builds the location object for href, which must be an
// absolute URL.
func (m *Module) newLocation(href string) (*goja.Object, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("gojafetchlocation: invalid location %q: %w", href, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gojafetchlocation: invalid location %q: not an absolute URL", href)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	var (
		rt     = m.runtime
		loc    = rt.NewObject()
		full   = u.String()
		search string
		hash   string
	)
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}

	for _, kv := range [...]struct {
		key string
		val string
	}{
		{`href`, full},
		{`origin`, u.Scheme + "://" + u.Host},
		{`protocol`, u.Scheme + ":"},
		{`host`, u.Host},
		{`hostname`, u.Hostname()},
		{`port`, u.Port()},
		{`pathname`, u.EscapedPath()},
		{`search`, search},
		{`hash`, hash},
	} {
		if err := loc.Set(kv.key, kv.val); err != nil {
			return nil, err
		}
	}

	toString := rt.ToValue(func(goja.FunctionCall) goja.Value {
		return rt.ToValue(full)
	})
	if err := loc.DefineDataProperty(`toString`, toString, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, err
	}

	return loc, nil
}
