// Package handlers binds each event kind to its decoder and insert statement.
// Every kind runs through the same decode, normalize, persist path; a kind is
// only a descriptor.
package handlers

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ericvolp12/eventsink/pkg/models"
	"github.com/ericvolp12/eventsink/pkg/normalize"
	"github.com/ericvolp12/eventsink/pkg/pipeline"
)

const contextField = "context"

// Body is an event payload that can check its own required fields.
type Body interface {
	Validate() error
}

// Decoded is the (context, body) pair for one record, with the block timestamp
// already split for storage.
type Decoded[B Body] struct {
	Context   models.EventContext
	Body      B
	Timestamp normalize.Timestamp
}

func (d *Decoded[B]) BlockHeight() uint64 { return d.Context.BlockHeight }

// Kind describes one event kind: where its body lives in a record, what its
// envelope must carry, and how it maps onto an insert.
type Kind[B Body] struct {
	Name    string
	Field   string
	Context models.ContextShape
	Insert  string
	// Row returns the insert parameters in column order. It must be pure.
	Row func(*Decoded[B]) []any
}

var _ pipeline.Handler = (*Kind[models.NftMint])(nil)

func (k *Kind[B]) Kind() string { return k.Name }

// Decode reads the context and body fields of a record. Any failure is a
// *pipeline.DecodeError.
func (k *Kind[B]) Decode(fields map[string]any) (pipeline.Event, error) {
	raw, err := pipeline.FieldBytes(fields, contextField)
	if err != nil {
		return nil, err
	}
	var ectx models.EventContext
	if err := json.Unmarshal(raw, &ectx); err != nil {
		return nil, &pipeline.DecodeError{Field: contextField, Err: err}
	}
	if err := ectx.Validate(k.Context); err != nil {
		return nil, &pipeline.DecodeError{Field: contextField, Err: err}
	}
	ts, err := normalize.SplitNanos(ectx.BlockTimestampNanosec)
	if err != nil {
		return nil, &pipeline.DecodeError{Field: contextField, Err: err}
	}

	raw, err = pipeline.FieldBytes(fields, k.Field)
	if err != nil {
		return nil, err
	}
	var body B
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &pipeline.DecodeError{Field: k.Field, Err: err}
	}
	if err := body.Validate(); err != nil {
		return nil, &pipeline.DecodeError{Field: k.Field, Err: err}
	}

	return &Decoded[B]{Context: ectx, Body: body, Timestamp: ts}, nil
}

// Handle runs the kind's insert once. Storage errors are returned as-is, wrapped.
func (k *Kind[B]) Handle(ctx context.Context, ev pipeline.Event, db pipeline.Execer) error {
	d, ok := ev.(*Decoded[B])
	if !ok {
		return fmt.Errorf("%s handler got unexpected event type %T", k.Name, ev)
	}
	if _, err := db.Exec(ctx, k.Insert, k.Row(d)...); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", k.Name, err)
	}
	return nil
}
