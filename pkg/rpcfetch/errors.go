package rpcfetch

import (
	"context"
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrNoResult is returned when a response carries neither result nor error.
	ErrNoResult = errors.New("response has no result")

	// ErrNoStrategies is returned by the driver when the strategy list is empty.
	ErrNoStrategies = errors.New("no fetch strategies configured")
)

// ErrorKind is the coarse class of a fetch failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindProtocol
	KindRPC
	KindDecode
	KindCanceled
)

// String returns the kind label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindRPC:
		return "rpc"
	case KindDecode:
		return "decode"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TransportError is a connect, timeout, DNS or read failure.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-200 HTTP response.
type ProtocolError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Method, e.StatusCode, e.Body)
}

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// DecodeError is a malformed body, a missing result or a bad blockhash.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// maxErrorBody bounds the response body kept in a ProtocolError.
const maxErrorBody = 256

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var (
		transportErr *TransportError
		protocolErr  *ProtocolError
		rpcErr       *RPCError
		decodeErr    *DecodeError
	)
	switch {
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &rpcErr):
		return KindRPC
	case errors.As(err, &decodeErr):
		return KindDecode
	}
	return KindUnknown
}
