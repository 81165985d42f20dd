package provisioning

import "errors"

// ErrProvisioningTimeout fires when a per-step 30s timer expires before
// the expected PDU arrives.
var ErrProvisioningTimeout = errors.New("provisioning: step timed out")

// ErrCancelled is the terminal failure reason after Cancel.
var ErrCancelled = errors.New("provisioning: cancelled")

// RemoteFailure wraps the peer's Failed PDU error code.
type RemoteFailure struct {
	Code byte
}

func (e *RemoteFailure) Error() string {
	return "provisioning: device reported failure code " + itoa(e.Code)
}

// LocalFailure wraps a local encryption, PDU-build, or validation error
// encountered mid-flow. Any such failure is terminal for the
// provisioning session (unlike confirmation mismatches, which are
// tolerated and logged).
type LocalFailure struct {
	Detail string
	Err    error
}

func (e *LocalFailure) Error() string {
	if e.Err != nil {
		return "provisioning: " + e.Detail + ": " + e.Err.Error()
	}
	return "provisioning: " + e.Detail
}

func (e *LocalFailure) Unwrap() error { return e.Err }

// ErrUnexpectedPDU is returned when a Handle method is called in a state
// other than the one it handles; the session state is left unchanged. A
// PDU passed to the handler for the current state whose type byte does
// not match fails the session with a *LocalFailure: out-of-order PDUs
// are not ignored.
var ErrUnexpectedPDU = errors.New("provisioning: unexpected PDU for current state")

func itoa(b byte) string {
	const hex = "0123456789abcdef"
	return "0x" + string([]byte{hex[b>>4], hex[b&0xF]})
}
