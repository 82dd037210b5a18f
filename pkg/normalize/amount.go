package normalize

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Limits of an unconstrained Postgres numeric.
const (
	maxNumericIntegerDigits  = 131072
	maxNumericFractionDigits = 16383
)

// ErrNumericRange is returned for decimals a numeric column cannot hold.
var ErrNumericRange = errors.New("decimal out of numeric range")

// CheckDecimal rejects values outside numeric limits. It looks only at the
// coefficient and exponent, so a huge exponent is never expanded into text.
// Zero is checked too: its text still spans the exponent.
func CheckDecimal(d decimal.Decimal) error {
	digits := int64(len(new(big.Int).Abs(d.Coefficient()).String()))
	exp := int64(d.Exponent())
	if digits+exp > maxNumericIntegerDigits {
		return fmt.Errorf("%w: %d integer digits", ErrNumericRange, digits+exp)
	}
	if -exp > maxNumericFractionDigits {
		return fmt.Errorf("%w: %d fractional digits", ErrNumericRange, -exp)
	}
	return nil
}

// Decimal converts a human-scaled decimal into the storage numeric type. The
// value must have passed CheckDecimal.
func Decimal(d decimal.Decimal) pgtype.Numeric {
	return mustNumeric(d.String())
}

// Fixed converts a smallest-unit integer amount into the storage numeric type.
// No scale is applied.
func Fixed(u Uint) pgtype.Numeric {
	return mustNumeric(u.String())
}

// OptionalFixed keeps absence as SQL NULL.
func OptionalFixed(u *Uint) pgtype.Numeric {
	if u == nil {
		return pgtype.Numeric{}
	}
	return Fixed(*u)
}

// DecimalOrZero stores absence as zero. A present value must have passed
// CheckDecimal.
func DecimalOrZero(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return Decimal(decimal.Zero)
	}
	return Decimal(*d)
}

// mustNumeric moves a value between decimal libraries through canonical text.
// A failure here means the two libraries disagree on what canonical decimal text
// looks like, which is a bug rather than bad input.
func mustNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		panic(fmt.Sprintf("normalize: %q does not round-trip into numeric: %v", s, err))
	}
	return n
}
