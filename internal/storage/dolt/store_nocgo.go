//go:build !cgo

package dolt

import "context"

// errNoCGO is returned when embedded-mode Dolt operations are attempted in a
// binary built without CGO. Server mode does not require CGO and is
// implemented directly in store.go, unaffected by this build tag.
var errNoCGO = &noCGOError{}

type noCGOError struct{}

func (*noCGOError) Error() string {
	return "dolt: embedded mode requires CGO; rebuild with CGO_ENABLED=1 or use server mode"
}

// newEmbeddedMode is the non-CGO stand-in for store_embedded.go's embedded
// engine opener.
func newEmbeddedMode(_ context.Context, _ *Config) (*DoltStore, error) {
	return nil, errNoCGO
}
