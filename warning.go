package gojafetchlocation

import "sync/atomic"

const originWarningMessage = "relative fetch request will not work in production until the router origin " +
	"(extra.router.origin in the app config) is set to the base URL of your web server"

// originWarned is set the first time a root-relative request is seen outside
// production. It is never reset, so the warning fires at most once per process.
var originWarned atomic.Bool

// warnOriginNotConfigured emits the advisory warning, at most once per
// flag. The flag is consumed by the first qualifying request, even if the
// origin is configured and nothing is logged.
func (m *Module) warnOriginNotConfigured(requestURL string) {
	if !m.warned.CompareAndSwap(false, true) {
		return
	}
	if m.manifest.Origin.Configured() {
		return
	}
	m.logger.Warning().
		Str(`url`, requestURL).
		Str(`setting`, `extra.router.origin`).
		Log(originWarningMessage)
}
