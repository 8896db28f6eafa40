package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSize is wrapped by every ParseSize failure.
var ErrInvalidSize = errors.New("not a byte size")

// sizeUnits maps an upper-cased unit to its multiplier. Decimal units are
// powers of 1000, the "i" forms powers of 1024.
var sizeUnits = map[string]int64{
	"":    1,
	"B":   1,
	"KB":  1e3,
	"MB":  1e6,
	"GB":  1e9,
	"TB":  1e12,
	"KIB": 1 << 10,
	"MIB": 1 << 20,
	"GIB": 1 << 30,
	"TIB": 1 << 40,
}

// ParseSize reads a byte count such as "512", "10 MB" or "1.5GiB". Units are
// case-insensitive. Blank input means zero, which config treats as unlimited.
// Fractions are allowed only with a unit.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	split := strings.LastIndexAny(s, "0123456789.") + 1
	number := strings.TrimSpace(s[:split])
	unit := strings.ToUpper(strings.TrimSpace(s[split:]))

	mult, ok := sizeUnits[unit]
	if !ok || number == "" {
		return 0, fmt.Errorf("%w: %q (want e.g. 800KB, 10MiB or a plain byte count)", ErrInvalidSize, s)
	}

	if unit == "" {
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}

		return n, nil
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	return int64(f * float64(mult)), nil
}
