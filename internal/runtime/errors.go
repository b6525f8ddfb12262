package runtime

import "errors"

var (
	ErrRuntime   = errors.New("runtime error")
	ErrEmptyArgs = errors.New("empty command line")
)
