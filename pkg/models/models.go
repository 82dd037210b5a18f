package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/ericvolp12/eventsink/pkg/normalize"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid event")

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalid, field)
}

func outOfRange(field string) error {
	return fmt.Errorf("%w: %s overflows bigint", ErrInvalid, field)
}

// checkMillis bounds a millisecond timestamp to what storage accepts.
func checkMillis(field string, ms uint64) error {
	if _, err := normalize.Millis(ms); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	return nil
}

// ContextShape says which optional envelope fields an event kind requires.
type ContextShape struct {
	Transaction bool
	Contract    bool
}

var (
	// ContractContext is the envelope of NFT events.
	ContractContext = ContextShape{Transaction: true, Contract: true}
	// TransactionContext is the envelope of donation and trade events.
	TransactionContext = ContextShape{Transaction: true}
	// ReceiptContext is the envelope of pool snapshots, which are not tied to a transaction.
	ReceiptContext = ContextShape{}
)

// EventContext is the envelope common to every event kind.
type EventContext struct {
	TransactionID         string         `json:"transaction_id"`
	ReceiptID             string         `json:"receipt_id"`
	BlockHeight           uint64         `json:"block_height"`
	BlockTimestampNanosec normalize.Uint `json:"block_timestamp_nanosec"`
	ContractID            string         `json:"contract_id,omitempty"`
}

// Validate checks the fields the given shape requires.
func (c EventContext) Validate(shape ContextShape) error {
	if shape.Transaction && c.TransactionID == "" {
		return missing("transaction_id")
	}
	if c.ReceiptID == "" {
		return missing("receipt_id")
	}
	if !c.BlockTimestampNanosec.IsSet() {
		return missing("block_timestamp_nanosec")
	}
	if c.BlockHeight > math.MaxInt64 {
		return outOfRange("block_height")
	}
	if shape.Contract && c.ContractID == "" {
		return missing("contract_id")
	}
	return nil
}
