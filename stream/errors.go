package stream

import "errors"

// ErrPanic is wrapped around recovered panics of processors.
var ErrPanic = errors.New("processor panic")
