// Package normalize converts event-supplied amounts and timestamps into
// storage-safe representations without losing precision.
package normalize

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/goccy/go-json"
)

var (
	// ErrMalformedInteger is returned for integer text that is not plain base-10 digits.
	ErrMalformedInteger = errors.New("malformed integer")
	// ErrIntegerRange is returned for integers outside the 128-bit range of their type.
	ErrIntegerRange = errors.New("integer out of 128-bit range")
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxInt128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Uint is an unsigned integer of at most 128 bits, the chain-native representation
// of balances and nanosecond timestamps. It decodes from a JSON string of digits
// or a bare JSON number.
type Uint struct {
	v   big.Int
	set bool
}

// ParseUint parses s as a base-10 unsigned 128-bit integer.
func ParseUint(s string) (Uint, error) {
	var u Uint
	if err := parseInteger(&u.v, s, false); err != nil {
		return Uint{}, err
	}
	if u.v.Cmp(maxUint128) > 0 {
		return Uint{}, fmt.Errorf("%w: %s", ErrIntegerRange, s)
	}
	u.set = true
	return u, nil
}

// UintFromUint64 returns v as a Uint.
func UintFromUint64(v uint64) Uint {
	var u Uint
	u.v.SetUint64(v)
	u.set = true
	return u
}

// IsSet reports whether the value was decoded or constructed, as opposed to left zero.
func (u Uint) IsSet() bool { return u.set }

// Big returns a copy of the value.
func (u Uint) String() string { return u.v.String() }

func (u Uint) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.v.String())
}

func (u *Uint) UnmarshalJSON(b []byte) error {
	s, err := integerText(b)
	if err != nil {
		return err
	}
	parsed, err := ParseUint(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Int is a signed integer of at most 128 bits, used for balance deltas.
type Int struct {
	v   big.Int
	set bool
}

// ParseInt parses s as a base-10 signed 128-bit integer.
func ParseInt(s string) (Int, error) {
	var i Int
	if err := parseInteger(&i.v, s, true); err != nil {
		return Int{}, err
	}
	if i.v.Cmp(maxInt128) > 0 || i.v.Cmp(minInt128) < 0 {
		return Int{}, fmt.Errorf("%w: %s", ErrIntegerRange, s)
	}
	i.set = true
	return i, nil
}

func (i Int) IsSet() bool { return i.set }

func (i Int) String() string { return i.v.String() }

func (i Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.v.String())
}

func (i *Int) UnmarshalJSON(b []byte) error {
	s, err := integerText(b)
	if err != nil {
		return err
	}
	parsed, err := ParseInt(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// integerText accepts either a quoted string or a bare number token.
func integerText(b []byte) (string, error) {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if string(b) == "null" {
		return "", fmt.Errorf("%w: null", ErrMalformedInteger)
	}
	return string(b), nil
}

// parseInteger rejects everything big.Int.SetString would otherwise tolerate
// beyond plain digits: signs on unsigned values, underscores, and base prefixes.
func parseInteger(dst *big.Int, s string, signed bool) error {
	digits := s
	if signed && len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if digits == "" {
		return fmt.Errorf("%w: %q", ErrMalformedInteger, s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return fmt.Errorf("%w: %q", ErrMalformedInteger, s)
		}
	}
	if _, ok := dst.SetString(s, 10); !ok {
		return fmt.Errorf("%w: %q", ErrMalformedInteger, s)
	}
	return nil
}
