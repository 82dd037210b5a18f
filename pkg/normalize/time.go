package normalize

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

const nanosPerSecond = 1_000_000_000

// ErrTimestampRange is returned when a timestamp's whole seconds exceed the signed
// 64-bit range. Chain timestamps are centuries away from that boundary, so this
// only fires on garbage input.
var ErrTimestampRange = errors.New("timestamp out of range")

var bigNanosPerSecond = big.NewInt(nanosPerSecond)

// Timestamp is a block timestamp split into whole seconds since the epoch and the
// nanosecond remainder.
type Timestamp struct {
	Seconds int64
	Nanos   int64
}

// Time returns the timestamp as a UTC time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanos).UTC()
}

// SplitNanos splits a nanosecond count into seconds = floor(ts / 1e9) and
// nanos = ts mod 1e9. The division happens in arbitrary precision, so the full
// 128-bit input range is handled without intermediate overflow.
func SplitNanos(ts Uint) (Timestamp, error) {
	if !ts.IsSet() {
		return Timestamp{}, fmt.Errorf("%w: timestamp not set", ErrTimestampRange)
	}
	sec, rem := new(big.Int).QuoRem(&ts.v, bigNanosPerSecond, new(big.Int))
	if !sec.IsInt64() {
		return Timestamp{}, fmt.Errorf("%w: %s ns", ErrTimestampRange, ts)
	}
	return Timestamp{Seconds: sec.Int64(), Nanos: rem.Int64()}, nil
}

// Millis converts a millisecond count since the epoch into a UTC time.
func Millis(ms uint64) (time.Time, error) {
	if ms > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("%w: %d ms", ErrTimestampRange, ms)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
