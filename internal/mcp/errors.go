package mcp

import "fmt"

// TransportKind classifies terminal transport failures.
type TransportKind string

const (
	TransportTimeout TransportKind = "timeout" // request exceeded the transport deadline
	TransportClosed  TransportKind = "closed"  // stream closed before a response line was read
	TransportConnect TransportKind = "connect" // connection could not be established
	TransportFrame   TransportKind = "frame"   // malformed or mis-correlated frame
)

// TransportError is a terminal failure below the protocol envelope:
// connection refused, timeout, malformed frame, stream closed. It is never
// retried automatically.
type TransportError struct {
	Kind  TransportKind
	Cause string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("transport %s: %s", e.Kind, e.Cause)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport %s", e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RPCError is a well-formed response carrying an error object from the
// backend. It is surfaced verbatim.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
