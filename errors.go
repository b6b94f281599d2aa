package godap

import (
	"fmt"

	"github.com/juju/errors"
)

var (
	// ErrTooManyOperations is returned when a single DAP_Transfer would carry
	// more register operations than a probe accepts.
	ErrTooManyOperations = errors.New("too many register operations for one transfer")

	// ErrInvalidPageSize is returned by Flash for page sizes that do not fit
	// into one probe packet along with the command and length bytes.
	ErrInvalidPageSize = errors.New("invalid flash page size")

	// ErrNotConnected is returned by operations that need an established
	// link-level connection.
	ErrNotConnected = errors.New("probe is not connected")
)

// TransportError reports a failed write or read on the underlying link.
// The core never retries these.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

// ProtocolError reports a response with an unexpected shape.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

func newProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// WaitError is the transient WAIT acknowledge (status 2). Retry policy
// belongs to the caller.
type WaitError struct {
	Executed int
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("transfer wait (executed %d)", e.Executed)
}

// FaultError carries any other non-OK status returned by the probe.
type FaultError struct {
	Code     uint8
	Executed int
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("bad transfer status 0x%02x (executed %d)", e.Code, e.Executed)
}

// TimeoutError is returned when a bounded wait ran out.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return "timeout waiting for " + e.Op
}

func IsTransportError(err error) bool {
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}

func IsProtocolError(err error) bool {
	_, ok := errors.Cause(err).(*ProtocolError)
	return ok
}

func IsWaitError(err error) bool {
	_, ok := errors.Cause(err).(*WaitError)
	return ok
}

func IsFaultError(err error) bool {
	_, ok := errors.Cause(err).(*FaultError)
	return ok
}

func IsTimeoutError(err error) bool {
	_, ok := errors.Cause(err).(*TimeoutError)
	return ok
}

// FaultCode returns the raw status of a FaultError anywhere in the
// annotation chain.
func FaultCode(err error) (uint8, bool) {
	if f, ok := errors.Cause(err).(*FaultError); ok {
		return f.Code, true
	}

	return 0, false
}

// checkTransferStatus converts the status byte of a DAP_Transfer response
// into the error taxonomy.
func checkTransferStatus(status uint8, executed int) error {
	switch status {
	case transferStatusOk:
		return nil

	case transferStatusWait:
		logger.Debugf("transfer wait after %d operations", executed)
		return &WaitError{Executed: executed}

	default:
		logger.Debugf("transfer fault 0x%02x after %d operations", status, executed)
		return &FaultError{Code: status, Executed: executed}
	}
}
