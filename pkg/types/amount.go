package types

import (
	"fmt"
	"sort"
	"strings"
)

// NumberOfDecimalPlaces is the display precision of the coin.
const NumberOfDecimalPlaces = 12

// Coin is one whole coin in atomic units.
const Coin uint64 = 1_000_000_000_000

// prettyAmounts lists every value of the form d*10^k for d in 1..9,
// ascending. Outputs are decomposed into these denominations so that each
// one hides in a pool of equal-amount peers.
var prettyAmounts = buildPrettyAmounts()

func buildPrettyAmounts() []uint64 {
	var out []uint64
	order := uint64(1)
	for k := 0; k < 20; k++ {
		for d := uint64(1); d <= 9; d++ {
			// 2*10^19 and above do not fit in a uint64.
			if k == 19 && d > 1 {
				break
			}
			out = append(out, d*order)
		}
		if k < 19 {
			order *= 10
		}
	}
	return out
}

// DecomposeAmount splits amount into pretty-amount chunks, accumulating
// everything at or below dustThreshold into a single dust value. The chunk
// callback receives denominations smallest-first; the dust callback fires at
// most once.
func DecomposeAmount(amount, dustThreshold uint64, chunk func(uint64), dust func(uint64)) {
	if amount == 0 {
		return
	}

	dustHandled := false
	var dustAcc uint64
	order := uint64(1)
	for amount != 0 {
		c := (amount % 10) * order
		amount /= 10
		order *= 10

		if dustAcc+c <= dustThreshold {
			dustAcc += c
		} else {
			if !dustHandled && dustAcc != 0 {
				dust(dustAcc)
				dustHandled = true
			}
			if c != 0 {
				chunk(c)
			}
		}
	}

	if !dustHandled && dustAcc != 0 {
		dust(dustAcc)
	}
}

// DecomposeAmountIntoDigits returns the pretty-amount chunks of amount with
// no dust threshold. The sum of the result equals amount.
func DecomposeAmountIntoDigits(amount uint64) []uint64 {
	var chunks []uint64
	DecomposeAmount(amount, 0,
		func(c uint64) { chunks = append(chunks, c) },
		func(d uint64) { chunks = append(chunks, d) })
	return chunks
}

// IsValidDecomposedAmount reports whether amount is a pretty amount, i.e. a
// single digit times a power of ten.
func IsValidDecomposedAmount(amount uint64) bool {
	i := sort.Search(len(prettyAmounts), func(i int) bool { return prettyAmounts[i] >= amount })
	return i < len(prettyAmounts) && prettyAmounts[i] == amount
}

// PrettyAmountPowerOfTen returns the power-of-ten bucket of a pretty amount
// and true, or 0 and false if amount is not a pretty amount.
func PrettyAmountPowerOfTen(amount uint64) (uint8, bool) {
	i := sort.Search(len(prettyAmounts), func(i int) bool { return prettyAmounts[i] >= amount })
	if i >= len(prettyAmounts) || prettyAmounts[i] != amount {
		return 0, false
	}
	return uint8(i / 9), true
}

// FormatAmount renders atomic units as a fixed-point decimal string with
// NumberOfDecimalPlaces digits after the point.
func FormatAmount(amount uint64) string {
	whole := amount / Coin
	frac := amount % Coin
	return fmt.Sprintf("%d.%012d", whole, frac)
}

// ParseAmount converts a decimal coin string into atomic units.
// At most NumberOfDecimalPlaces fractional digits are accepted.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	wholePart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		wholePart = s[:i]
		fracPart = s[i+1:]
	}
	if len(fracPart) > NumberOfDecimalPlaces {
		return 0, fmt.Errorf("too many decimal places: %q", s)
	}
	for len(fracPart) < NumberOfDecimalPlaces {
		fracPart += "0"
	}
	if wholePart == "" {
		wholePart = "0"
	}

	var whole uint64
	for _, c := range wholePart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount: %q", s)
		}
		d := uint64(c - '0')
		if whole > (^uint64(0)-d)/10 {
			return 0, fmt.Errorf("amount overflow: %q", s)
		}
		whole = whole*10 + d
	}

	var frac uint64
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount: %q", s)
		}
		frac = frac*10 + uint64(c-'0')
	}

	if whole > (^uint64(0)-frac)/Coin {
		return 0, fmt.Errorf("amount overflow: %q", s)
	}
	return whole*Coin + frac, nil
}
