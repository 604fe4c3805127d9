package domain

import "errors"

// ErrNotFound is returned by stores when no row matches. Callers in the
// resolution and acquisition chains treat it as an empty result, never as
// a failure.
var ErrNotFound = errors.New("not found")
