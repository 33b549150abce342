package rudp

import "github.com/pkg/errors"

// ProtocolError marks a wire-format violation: a malformed chunk
// stream, a duplicate type chunk, a sequence chunk without a
// preceding type, an unknown manage_id, or an ack on the none
// discipline. These never self-heal; the host's only recourse is to
// drop the connection (spec.md §7).
type ProtocolError struct {
	cause error
}

func (e *ProtocolError) Error() string { return e.cause.Error() }
func (e *ProtocolError) Unwrap() error { return e.cause }

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{cause: errors.Errorf(format, args...)}
}

// IsProtocolViolation reports whether err is (or wraps) a ProtocolError.
func IsProtocolViolation(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
