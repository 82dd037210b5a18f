package handlers

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ericvolp12/eventsink/pkg/models"
	"github.com/ericvolp12/eventsink/pkg/normalize"
)

// Stream names. Each is also the kind's table.
const (
	NftMint                   = "nft_mint"
	NftTransfer               = "nft_transfer"
	NftBurn                   = "nft_burn"
	PotlockDonation           = "potlock_donation"
	PotlockPotProjectDonation = "potlock_pot_project_donation"
	PotlockPotDonation        = "potlock_pot_donation"
	TradePool                 = "trade_pool"
	TradeSwap                 = "trade_swap"
	TradePoolChange           = "trade_pool_change"
)

// envelope returns the leading columns every table shares.
func envelope[B Body](d *Decoded[B]) []any {
	return []any{
		d.Timestamp.Time(),
		d.Context.TransactionID,
		d.Context.ReceiptID,
		int64(d.Context.BlockHeight),
	}
}

// mustMillis converts timestamps the models have already range-checked.
func mustMillis(ms uint64) time.Time {
	t, err := normalize.Millis(ms)
	if err != nil {
		panic(fmt.Sprintf("handlers: unchecked millisecond timestamp: %v", err))
	}
	return t
}

// mustJSON marshals values whose encoding cannot fail. The result is bound as
// raw JSONB text.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("handlers: failed to marshal %T: %v", v, err))
	}
	return b
}

// NftMintKind and its siblings below are the registered descriptors.
var NftMintKind = &Kind[models.NftMint]{
	Name:    NftMint,
	Field:   "mint",
	Context: models.ContractContext,
	Insert: `INSERT INTO nft_mint (timestamp, transaction_id, receipt_id, block_height, contract_id, owner_id, token_ids, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	Row: func(d *Decoded[models.NftMint]) []any {
		return append(envelope(d), d.Context.ContractID, d.Body.OwnerID, d.Body.TokenIDs, d.Body.Memo)
	},
}

// NftTransferKind stores a null token price as zero.
var NftTransferKind = &Kind[models.NftTransfer]{
	Name:    NftTransfer,
	Field:   "transfer",
	Context: models.ContractContext,
	Insert: `INSERT INTO nft_transfer (timestamp, transaction_id, receipt_id, block_height, contract_id, old_owner_id, new_owner_id, token_ids, memo, token_prices_near)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	Row: func(d *Decoded[models.NftTransfer]) []any {
		prices := make([]pgtype.Numeric, len(d.Body.TokenPricesNear))
		for i, p := range d.Body.TokenPricesNear {
			prices[i] = normalize.DecimalOrZero(p)
		}
		return append(envelope(d), d.Context.ContractID, d.Body.OldOwnerID, d.Body.NewOwnerID, d.Body.TokenIDs, d.Body.Memo, prices)
	},
}

var NftBurnKind = &Kind[models.NftBurn]{
	Name:    NftBurn,
	Field:   "burn",
	Context: models.ContractContext,
	Insert: `INSERT INTO nft_burn (timestamp, transaction_id, receipt_id, block_height, contract_id, owner_id, token_ids, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	Row: func(d *Decoded[models.NftBurn]) []any {
		return append(envelope(d), d.Context.ContractID, d.Body.OwnerID, d.Body.TokenIDs, d.Body.Memo)
	},
}

var PotlockDonationKind = &Kind[models.PotlockDonation]{
	Name:    PotlockDonation,
	Field:   "donation",
	Context: models.TransactionContext,
	Insert: `INSERT INTO potlock_donation (timestamp, transaction_id, receipt_id, block_height, donation_id, donor_id, total_amount, message, donated_at, project_id, protocol_fee, referrer_id, referrer_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	Row: func(d *Decoded[models.PotlockDonation]) []any {
		b := d.Body
		return append(envelope(d),
			int64(b.DonationID),
			b.DonorID,
			normalize.Fixed(b.TotalAmount),
			b.Message,
			mustMillis(b.DonatedAtMs),
			b.ProjectID,
			normalize.Fixed(b.ProtocolFee),
			b.ReferrerID,
			normalize.OptionalFixed(b.ReferrerFee),
		)
	},
}

var PotlockPotProjectDonationKind = &Kind[models.PotlockPotProjectDonation]{
	Name:    PotlockPotProjectDonation,
	Field:   "donation",
	Context: models.TransactionContext,
	Insert: `INSERT INTO potlock_pot_project_donation (timestamp, transaction_id, receipt_id, block_height, donation_id, pot_id, donor_id, total_amount, net_amount, message, donated_at, project_id, referrer_id, referrer_fee, protocol_fee, chef_id, chef_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
	Row: func(d *Decoded[models.PotlockPotProjectDonation]) []any {
		b := d.Body
		return append(envelope(d),
			int64(b.DonationID),
			b.PotID,
			b.DonorID,
			normalize.Fixed(b.TotalAmount),
			normalize.Fixed(b.NetAmount),
			b.Message,
			mustMillis(b.DonatedAtMs),
			b.ProjectID,
			b.ReferrerID,
			normalize.OptionalFixed(b.ReferrerFee),
			normalize.Fixed(b.ProtocolFee),
			b.ChefID,
			normalize.OptionalFixed(b.ChefFee),
		)
	},
}

var PotlockPotDonationKind = &Kind[models.PotlockPotDonation]{
	Name:    PotlockPotDonation,
	Field:   "donation",
	Context: models.TransactionContext,
	Insert: `INSERT INTO potlock_pot_donation (timestamp, transaction_id, receipt_id, block_height, donation_id, pot_id, donor_id, total_amount, net_amount, message, donated_at, referrer_id, referrer_fee, protocol_fee, chef_id, chef_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
	Row: func(d *Decoded[models.PotlockPotDonation]) []any {
		b := d.Body
		return append(envelope(d),
			int64(b.DonationID),
			b.PotID,
			b.DonorID,
			normalize.Fixed(b.TotalAmount),
			normalize.Fixed(b.NetAmount),
			b.Message,
			mustMillis(b.DonatedAtMs),
			b.ReferrerID,
			normalize.OptionalFixed(b.ReferrerFee),
			normalize.Fixed(b.ProtocolFee),
			b.ChefID,
			normalize.OptionalFixed(b.ChefFee),
		)
	},
}

var TradePoolKind = &Kind[models.TradePool]{
	Name:    TradePool,
	Field:   "swap",
	Context: models.TransactionContext,
	Insert: `INSERT INTO trade_pool (timestamp, transaction_id, receipt_id, block_height, trader, pool, token_in, token_out, amount_in, amount_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	Row: func(d *Decoded[models.TradePool]) []any {
		b := d.Body
		return append(envelope(d), b.Trader, b.Pool, b.TokenIn, b.TokenOut, normalize.Fixed(b.AmountIn), normalize.Fixed(b.AmountOut))
	},
}

// TradeSwapKind stores balance changes as a JSONB object of token id to signed
// integer text, so no amount passes through a JSON number.
var TradeSwapKind = &Kind[models.TradeSwap]{
	Name:    TradeSwap,
	Field:   "swap",
	Context: models.TransactionContext,
	Insert: `INSERT INTO trade_swap (timestamp, transaction_id, receipt_id, block_height, trader, balance_changes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
	Row: func(d *Decoded[models.TradeSwap]) []any {
		return append(envelope(d), d.Body.Trader, mustJSON(d.Body.BalanceChanges))
	},
}

var TradePoolChangeKind = &Kind[models.TradePoolChange]{
	Name:    TradePoolChange,
	Field:   "pool_change",
	Context: models.ReceiptContext,
	Insert: `INSERT INTO trade_pool_change (timestamp, receipt_id, block_height, pool_id, pool)
		VALUES ($1, $2, $3, $4, $5)`,
	Row: func(d *Decoded[models.TradePoolChange]) []any {
		return []any{
			d.Timestamp.Time(),
			d.Context.ReceiptID,
			int64(d.Context.BlockHeight),
			d.Body.PoolID,
			[]byte(d.Body.Pool),
		}
	},
}
