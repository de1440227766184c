package gojafetchlocation

import "errors"

var (
	// ErrNotCallable is returned when a value passed as a fetch function is
	// not callable.
	ErrNotCallable = errors.New("gojafetchlocation: fetch is not a function")

	// ErrNoFetch is returned by [Module.Install] when neither [WithFetch]
	// nor a global fetch provides a base fetch function.
	ErrNoFetch = errors.New("gojafetchlocation: no fetch function available")
)
