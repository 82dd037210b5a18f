package normalize

import (
	"math/big"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUint(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
	}{
		{"0", nil},
		{"1700000000500000000", nil},
		{"340282366920938463463374607431768211455", nil},
		{"340282366920938463463374607431768211456", ErrIntegerRange},
		{"", ErrMalformedInteger},
		{"-1", ErrMalformedInteger},
		{"+1", ErrMalformedInteger},
		{"1_000", ErrMalformedInteger},
		{"0x10", ErrMalformedInteger},
		{"1.5", ErrMalformedInteger},
	}
	for _, tt := range tests {
		u, err := ParseUint(tt.in)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "ParseUint(%q)", tt.in)
			assert.False(t, u.IsSet())
			continue
		}
		require.NoError(t, err, "ParseUint(%q)", tt.in)
		assert.True(t, u.IsSet())
		assert.Equal(t, tt.in, u.String())
	}
}

func TestParseInt(t *testing.T) {
	i, err := ParseInt("-170141183460469231731687303715884105728")
	require.NoError(t, err)
	assert.Equal(t, "-170141183460469231731687303715884105728", i.String())

	_, err = ParseInt("170141183460469231731687303715884105728")
	assert.ErrorIs(t, err, ErrIntegerRange)

	_, err = ParseInt("-")
	assert.ErrorIs(t, err, ErrMalformedInteger)
}

func TestUintJSON(t *testing.T) {
	var v struct {
		A Uint  `json:"a"`
		B Uint  `json:"b"`
		C *Uint `json:"c"`
		D *Uint `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1000000000000000000000000","b":42,"c":null}`), &v))
	assert.Equal(t, "1000000000000000000000000", v.A.String())
	assert.Equal(t, "42", v.B.String())
	assert.Nil(t, v.C)
	assert.Nil(t, v.D)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"12abc"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1.5}`), &v))

	out, err := json.Marshal(UintFromUint64(7))
	require.NoError(t, err)
	assert.JSONEq(t, `"7"`, string(out))
}

func TestSplitNanos(t *testing.T) {
	ts, err := ParseUint("1700000000500000000")
	require.NoError(t, err)

	split, err := SplitNanos(ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), split.Seconds)
	assert.Equal(t, int64(500_000_000), split.Nanos)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 500_000_000, time.UTC), split.Time())

	_, err = SplitNanos(Uint{})
	assert.ErrorIs(t, err, ErrTimestampRange)

	huge, err := ParseUint("340282366920938463463374607431768211455")
	require.NoError(t, err)
	_, err = SplitNanos(huge)
	assert.ErrorIs(t, err, ErrTimestampRange)
}

func TestSplitNanosRecombines(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("seconds*1e9 + nanos == ts whenever seconds fit in int64", prop.ForAll(
		func(hi, lo uint64) bool {
			v := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
			v.Or(v, new(big.Int).SetUint64(lo))
			ts, err := ParseUint(v.String())
			if err != nil {
				return false
			}

			split, err := SplitNanos(ts)
			quo := new(big.Int).Quo(v, bigNanosPerSecond)
			if !quo.IsInt64() {
				return err != nil
			}
			if err != nil || split.Nanos < 0 || split.Nanos >= nanosPerSecond {
				return false
			}

			back := new(big.Int).Mul(big.NewInt(split.Seconds), bigNanosPerSecond)
			back.Add(back, big.NewInt(split.Nanos))
			return back.Cmp(v) == 0
		},
		gen.UInt64Range(0, 1<<31),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestMillis(t *testing.T) {
	got, err := Millis(1_700_000_000_123)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 123_000_000, time.UTC), got)

	_, err = Millis(1 << 63)
	assert.ErrorIs(t, err, ErrTimestampRange)
}

// numericDecimal reads a numeric back out for comparison without going through text.
func numericDecimal(n pgtype.Numeric) decimal.Decimal {
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func TestDecimalRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("normalized decimal text equals source text", prop.ForAll(
		func(mantissa int64, exp int32) bool {
			src := decimal.New(mantissa, exp)
			n := Decimal(src)
			return n.Valid && numericDecimal(n).String() == src.String()
		},
		gen.Int64(),
		gen.Int32Range(-40, 20),
	))

	properties.Property("normalized fixed-point text equals source text", prop.ForAll(
		func(hi, lo uint64) bool {
			v := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
			v.Or(v, new(big.Int).SetUint64(lo))
			u, err := ParseUint(v.String())
			if err != nil {
				return false
			}
			n := Fixed(u)
			return n.Valid && numericDecimal(n).String() == u.String()
		},
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestOptionalAmounts(t *testing.T) {
	assert.False(t, OptionalFixed(nil).Valid)

	d := decimal.RequireFromString("1.5")
	got := DecimalOrZero(&d)
	require.True(t, got.Valid)
	assert.Equal(t, "1.5", numericDecimal(got).String())

	u := UintFromUint64(10)
	fixed := OptionalFixed(&u)
	require.True(t, fixed.Valid)
	assert.Equal(t, "10", numericDecimal(fixed).String())

	zero := DecimalOrZero(nil)
	require.True(t, zero.Valid)
	assert.Equal(t, "0", numericDecimal(zero).String())
}

func TestCheckDecimal(t *testing.T) {
	for _, ok := range []string{"0", "0.000", "1.5", "-2.25", "1e131071", "1e-16383", "123.456e-16380"} {
		assert.NoError(t, CheckDecimal(decimal.RequireFromString(ok)), ok)
	}
	for _, bad := range []string{"1e200000000", "-1e131072", "1e-16384", "1e-200000000", "12e131071", "0e999999999", "0e-200000000"} {
		assert.ErrorIs(t, CheckDecimal(decimal.RequireFromString(bad)), ErrNumericRange, bad)
	}
}

func TestMustNumericPanicsOnNonCanonicalText(t *testing.T) {
	assert.Panics(t, func() { mustNumeric("twelve") })
}
