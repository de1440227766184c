package gojafetchlocation

import (
	"net/url"
	"os"
)

// DevServerLocator supplies the development server address, e.g.
// "http://localhost:8081/". An empty string means no server is known.
type DevServerLocator interface {
	DevServerURL() string
}

// DevServerFunc adapts a function to [DevServerLocator].
type DevServerFunc func() string

// DevServerURL implements [DevServerLocator].
func (f DevServerFunc) DevServerURL() string { return f() }

// StaticDevServer returns a locator that always reports u.
func StaticDevServer(u string) DevServerLocator {
	return DevServerFunc(func() string { return u })
}

// EnvDevServerLocator returns a locator reading the named environment variable on
// each call.
func EnvDevServerLocator(key string) DevServerLocator {
	return DevServerFunc(func() string { return os.Getenv(key) })
}

// DevServerFromScriptURL derives the dev server from the URL the script
// bundle was loaded from. Only http and https URLs yield a server, returned
// as scheme://host/ (with trailing slash).
func DevServerFromScriptURL(scriptURL string) DevServerLocator {
	var server string
	if u, err := url.Parse(scriptURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		server = u.Scheme + "://" + u.Host + "/"
	}
	return StaticDevServer(server)
}
