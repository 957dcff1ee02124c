package bridge

import "fmt"

// Close codes surfaced on the client leg.
const (
	CloseNormal            = 1000
	CloseAuthFailure       = 4001
	CloseProtocolViolation = 4002
	CloseIdleTimeout       = 4008
	CloseUpstreamFailure   = 4011
)

// AuthError is fatal: the session never opens or closes immediately.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ProtocolError marks an out-of-order event. Sequencing is a correctness
// invariant, so protocol errors close the session.
type ProtocolError struct {
	State string
	Msg   string
}

func (e *ProtocolError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("protocol violation: %s", e.Msg)
	}
	return fmt.Sprintf("protocol violation in state %s: %s", e.State, e.Msg)
}

// TransportError wraps a failure on one of the two legs. Fatal on the
// upstream leg; on the client leg it opens the single-reconnect window.
type TransportError struct {
	Leg string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s leg: %v", e.Leg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamAuthError is raised when the upstream credential refresh fails.
// Always fatal.
type UpstreamAuthError struct {
	Err error
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("upstream authorization failed: %v", e.Err)
}

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// IdleTimeoutError closes sessions whose upstream leg went quiet.
type IdleTimeoutError struct {
	Idle string
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("no upstream events within %s", e.Idle)
}
