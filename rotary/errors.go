package rotary

import "errors"

// ErrConfig reports invalid construction parameters. An embedding is
// never built from a configuration that fails validation.
var ErrConfig = errors.New("rotary: invalid configuration")

// ErrPrecondition reports an Apply call that violates the cache
// contract, such as a position beyond the table or an undersized buffer.
var ErrPrecondition = errors.New("rotary: precondition violated")
