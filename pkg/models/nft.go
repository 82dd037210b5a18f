package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ericvolp12/eventsink/pkg/normalize"
)

type NftMint struct {
	OwnerID  string   `json:"owner_id"`
	TokenIDs []string `json:"token_ids"`
	Memo     *string  `json:"memo"`
}

func (e NftMint) Validate() error {
	if e.OwnerID == "" {
		return missing("owner_id")
	}
	if e.TokenIDs == nil {
		return missing("token_ids")
	}
	return nil
}

type NftBurn struct {
	OwnerID  string   `json:"owner_id"`
	TokenIDs []string `json:"token_ids"`
	Memo     *string  `json:"memo"`
}

func (e NftBurn) Validate() error {
	if e.OwnerID == "" {
		return missing("owner_id")
	}
	if e.TokenIDs == nil {
		return missing("token_ids")
	}
	return nil
}

// NftTransfer carries one optional sale price per token, in NEAR.
type NftTransfer struct {
	OldOwnerID      string             `json:"old_owner_id"`
	NewOwnerID      string             `json:"new_owner_id"`
	TokenIDs        []string           `json:"token_ids"`
	Memo            *string            `json:"memo"`
	TokenPricesNear []*decimal.Decimal `json:"token_prices_near"`
}

func (e NftTransfer) Validate() error {
	if e.OldOwnerID == "" {
		return missing("old_owner_id")
	}
	if e.NewOwnerID == "" {
		return missing("new_owner_id")
	}
	if e.TokenIDs == nil {
		return missing("token_ids")
	}
	if e.TokenPricesNear == nil {
		return missing("token_prices_near")
	}
	for i, p := range e.TokenPricesNear {
		if p == nil {
			continue
		}
		if err := normalize.CheckDecimal(*p); err != nil {
			return fmt.Errorf("%w: token_prices_near[%d]: %w", ErrInvalid, i, err)
		}
	}
	return nil
}
