package domain

import "fmt"

// TransportError covers connect, read, and write failures on the socket.
// It always forces a reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed or unexpected frame. The frame is
// skipped; the connection stays open.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Field == "" {
		return "protocol: " + e.Reason
	}
	return fmt.Sprintf("protocol: field %q: %s", e.Field, e.Reason)
}

func NewProtocolError(field, reason string) *ProtocolError {
	return &ProtocolError{Field: field, Reason: reason}
}

// DesyncError signals that a book's completeness can no longer be
// trusted and a fresh snapshot is required for that symbol.
type DesyncError struct {
	Symbol string
	Reason string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("desync: %s: %s", e.Symbol, e.Reason)
}

// PersistenceError wraps a failed store write. It is logged and counted,
// never propagated into the ingestion path.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
