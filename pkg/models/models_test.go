package models

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvolp12/eventsink/pkg/normalize"
)

func validContext(t *testing.T) EventContext {
	ts, err := normalize.ParseUint("1700000000500000000")
	require.NoError(t, err)
	return EventContext{
		TransactionID:         "tx1",
		ReceiptID:             "r1",
		BlockHeight:           100,
		BlockTimestampNanosec: ts,
		ContractID:            "nft.near",
	}
}

func TestEventContextValidate(t *testing.T) {
	ok := validContext(t)
	assert.NoError(t, ok.Validate(ContractContext))

	tests := []struct {
		name  string
		shape ContextShape
		edit  func(*EventContext)
		want  string
	}{
		{"missing transaction", TransactionContext, func(c *EventContext) { c.TransactionID = "" }, "transaction_id"},
		{"missing receipt", ReceiptContext, func(c *EventContext) { c.ReceiptID = "" }, "receipt_id"},
		{"missing timestamp", ReceiptContext, func(c *EventContext) { c.BlockTimestampNanosec = normalize.Uint{} }, "block_timestamp_nanosec"},
		{"height overflow", ReceiptContext, func(c *EventContext) { c.BlockHeight = math.MaxInt64 + 1 }, "block_height"},
		{"missing contract", ContractContext, func(c *EventContext) { c.ContractID = "" }, "contract_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validContext(t)
			tt.edit(&c)
			err := c.Validate(tt.shape)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPoolSnapshotNeedsNoTransaction(t *testing.T) {
	c := validContext(t)
	c.TransactionID = ""
	c.ContractID = ""
	assert.NoError(t, c.Validate(ReceiptContext))
	assert.Error(t, c.Validate(TransactionContext))
}

func TestContextFromJSON(t *testing.T) {
	var c EventContext
	err := json.Unmarshal([]byte(`{
		"transaction_id": "tx1",
		"receipt_id": "r1",
		"block_height": 100,
		"block_timestamp_nanosec": "1700000000500000000",
		"contract_id": "nft.near"
	}`), &c)
	require.NoError(t, err)
	assert.NoError(t, c.Validate(ContractContext))
	assert.Equal(t, "1700000000500000000", c.BlockTimestampNanosec.String())
}

func TestBodyValidate(t *testing.T) {
	amount := normalize.UintFromUint64(10)
	hugePrice := decimal.RequireFromString("1e200000000")
	tests := []struct {
		name string
		body interface{ Validate() error }
		want string
	}{
		{"mint without owner", NftMint{TokenIDs: []string{"1"}}, "owner_id"},
		{"mint without tokens", NftMint{OwnerID: "alice"}, "token_ids"},
		{"burn without tokens", NftBurn{OwnerID: "alice"}, "token_ids"},
		{"transfer without prices", NftTransfer{OldOwnerID: "a", NewOwnerID: "b", TokenIDs: []string{"1"}}, "token_prices_near"},
		{"donation without amount", PotlockDonation{DonorID: "d", DonatedAtMs: 1, ProjectID: "p", ProtocolFee: amount}, "total_amount"},
		{"donation time overflow", PotlockDonation{DonorID: "d", TotalAmount: amount, DonatedAtMs: math.MaxUint64, ProjectID: "p", ProtocolFee: amount}, "donated_at_ms"},
		{"donation id overflow", PotlockPotDonation{DonationID: math.MaxUint64, PotID: "p", DonorID: "d", TotalAmount: amount, NetAmount: amount, DonatedAtMs: 1, ProtocolFee: amount}, "donation_id"},
		{"transfer price beyond numeric", NftTransfer{OldOwnerID: "a", NewOwnerID: "b", TokenIDs: []string{"1"}, TokenPricesNear: []*decimal.Decimal{nil, &hugePrice}}, "token_prices_near[1]"},
		{"pool trade without amount out", TradePool{Trader: "t", Pool: "p", TokenIn: "a", TokenOut: "b", AmountIn: amount}, "amount_out"},
		{"swap without changes", TradeSwap{Trader: "t"}, "balance_changes"},
		{"null pool snapshot", TradePoolChange{PoolID: "1", Pool: json.RawMessage("null")}, "pool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.body.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	assert.NoError(t, NftMint{OwnerID: "alice", TokenIDs: []string{}}.Validate(), "an empty token list is present")
	assert.NoError(t, TradePoolChange{PoolID: "1", Pool: json.RawMessage(`{"ref":{}}`)}.Validate())
}
