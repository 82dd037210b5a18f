// Package pipeline defines the contracts between the message bus, the per-kind
// event handlers, and the relational store.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Handle identifies a record for acknowledgment. IDs are ordered within a stream
// and are never inspected for content.
type Handle struct {
	Stream string
	ID     string
}

// Record is one stream entry as delivered by the bus. Field values are raw: a
// string or []byte holding structured text.
type Record struct {
	Handle Handle
	Fields map[string]any
}

// Event is a decoded (context, body) pair. It is owned by the handler invocation
// that decoded it.
type Event interface {
	BlockHeight() uint64
}

// Execer is the slice of a connection pool the handlers need. *pgxpool.Pool
// satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Handler decodes and persists one event kind.
type Handler interface {
	// Kind names the event kind, which is also its default stream.
	Kind() string
	// Decode is pure and safe to call repeatedly.
	Decode(fields map[string]any) (Event, error)
	// Handle executes exactly one insert and never retries.
	Handle(ctx context.Context, ev Event, db Execer) error
}

// ErrMissingField is wrapped by a DecodeError for a required field absent from the record.
var ErrMissingField = errors.New("missing field")

// DecodeError reports a record that can never be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FieldBytes returns the raw text of a required record field.
func FieldBytes(fields map[string]any, name string) ([]byte, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, &DecodeError{Field: name, Err: ErrMissingField}
	}
	switch v := v.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, &DecodeError{Field: name, Err: fmt.Errorf("unexpected raw value type %T", v)}
	}
}
