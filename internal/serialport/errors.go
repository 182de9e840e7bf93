package serialport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Outcome kinds for link operations. Every fallible read or write on a Link
// reports one of these (possibly wrapped in an *OpError); callers decide
// whether to keep their previous value.
var (
	// ErrClosed is returned by every operation on a link that is not started.
	ErrClosed = errors.New("serialport: link is closed")

	// ErrNotReady means fewer bytes are buffered than requested.
	ErrNotReady = errors.New("serialport: not enough buffered input")

	// ErrIO wraps a transient read or write failure on an open link.
	ErrIO = errors.New("serialport: i/o failure")

	// ErrDecode means the input is not valid in the configured charset,
	// typically mis-framed bytes right after the port was opened.
	ErrDecode = errors.New("serialport: cannot decode input")

	// ErrEncode means outgoing text is not representable in the charset.
	ErrEncode = errors.New("serialport: cannot encode output")

	// ErrConfig indicates invalid connection parameters.
	ErrConfig = errors.New("serialport: invalid configuration")
)

// OpError carries the failed operation, its outcome kind and the cause.
// errors.Is matches both the kind and the cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func opError(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}
