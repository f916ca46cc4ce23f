package j1939

import "fmt"

// TPError is the error type returned by the transport protocol engine. It
// carries a stable integer code alongside the Go error chain, so callers
// that need the legacy numeric taxonomy can still get it with Code() while
// everyone else uses errors.Is/errors.As as usual.
type TPError struct {
	code int
	msg  string
}

func (e *TPError) Error() string { return e.msg }

// Code returns the stable integer error code surfaced to callers.
func (e *TPError) Code() int { return e.code }

// Sentinel errors for the TP engine.
var (
	ErrArgs       = &TPError{code: 1, msg: "j1939: invalid argument"}
	ErrTimeout    = &TPError{code: 2, msg: "j1939: timeout waiting for remote"}
	ErrBusy       = &TPError{code: 3, msg: "j1939: remote never engaged (no CTS)"}
	ErrIncomplete = &TPError{code: 4, msg: "j1939: EOM_ACK disagrees with transfer"}
	ErrWrongLen   = &TPError{code: 5, msg: "j1939: data length out of range"}
	ErrNoResource = &TPError{code: 6, msg: "j1939: session or dispatch table full"}
	ErrIO         = &TPError{code: 7, msg: "j1939: CAN collaborator I/O failure"}
)

// wrapIO wraps an underlying collaborator error as ErrIO while preserving it
// in the chain for errors.Is/errors.As/errors.Unwrap.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// AbortReason describes why a remote peer aborted a transfer.
type AbortReason uint8

func (r AbortReason) String() string {
	switch uint8(r) {
	case ReasonBusy:
		return "busy"
	case ReasonNoResource:
		return "no-resource"
	case ReasonTimeout:
		return "timeout"
	case ReasonCTSWhileDT:
		return "cts-while-dt"
	case ReasonIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}
