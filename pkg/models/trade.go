package models

import (
	"github.com/goccy/go-json"

	"github.com/ericvolp12/eventsink/pkg/normalize"
)

// TradePool is a single swap through one DEX pool. Amounts are in the smallest
// unit of each token.
type TradePool struct {
	Trader    string         `json:"trader"`
	Pool      string         `json:"pool"`
	TokenIn   string         `json:"token_in"`
	TokenOut  string         `json:"token_out"`
	AmountIn  normalize.Uint `json:"amount_in"`
	AmountOut normalize.Uint `json:"amount_out"`
}

func (e TradePool) Validate() error {
	switch {
	case e.Trader == "":
		return missing("trader")
	case e.Pool == "":
		return missing("pool")
	case e.TokenIn == "":
		return missing("token_in")
	case e.TokenOut == "":
		return missing("token_out")
	case !e.AmountIn.IsSet():
		return missing("amount_in")
	case !e.AmountOut.IsSet():
		return missing("amount_out")
	}
	return nil
}

// TradeSwap is the net effect of a whole (possibly multi-hop) trade on the trader.
type TradeSwap struct {
	Trader         string                   `json:"trader"`
	BalanceChanges map[string]normalize.Int `json:"balance_changes"`
}

func (e TradeSwap) Validate() error {
	if e.Trader == "" {
		return missing("trader")
	}
	if e.BalanceChanges == nil {
		return missing("balance_changes")
	}
	return nil
}

// TradePoolChange is a snapshot of a pool's state after a receipt touched it. The
// pool body is exchange-specific and kept verbatim.
type TradePoolChange struct {
	PoolID string          `json:"pool_id"`
	Pool   json.RawMessage `json:"pool"`
}

func (e TradePoolChange) Validate() error {
	if e.PoolID == "" {
		return missing("pool_id")
	}
	if len(e.Pool) == 0 || string(e.Pool) == "null" {
		return missing("pool")
	}
	return nil
}
