package types

import (
	"testing"
)

func TestDecomposeAmountIntoDigits_SumsToAmount(t *testing.T) {
	amounts := []uint64{
		0, 1, 9, 10, 99, 1000, 62387455827, 29_900_000_000_000,
		Coin, 123456789012345678, ^uint64(0),
	}
	for _, amount := range amounts {
		chunks := DecomposeAmountIntoDigits(amount)
		var sum uint64
		for _, c := range chunks {
			if !IsValidDecomposedAmount(c) {
				t.Errorf("amount %d: chunk %d is not a pretty amount", amount, c)
			}
			sum += c
		}
		if sum != amount {
			t.Errorf("amount %d: chunks sum to %d", amount, sum)
		}
	}
}

func TestDecomposeAmount_DustHandling(t *testing.T) {
	// 62387455827 with threshold 1000000: dust 455827, chunks above.
	var chunks, dust []uint64
	DecomposeAmount(62387455827, 1000000,
		func(c uint64) { chunks = append(chunks, c) },
		func(d uint64) { dust = append(dust, d) })

	if len(dust) != 1 || dust[0] != 455827 {
		t.Fatalf("dust = %v, want [455827]", dust)
	}
	want := []uint64{7000000, 80000000, 300000000, 2000000000, 60000000000}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %d, want %d", i, chunks[i], want[i])
		}
	}
}

func TestIsValidDecomposedAmount(t *testing.T) {
	valid := []uint64{1, 9, 10, 90, 500, 7000000, 10_000_000_000_000_000_000}
	for _, v := range valid {
		if !IsValidDecomposedAmount(v) {
			t.Errorf("%d should be a pretty amount", v)
		}
	}
	invalid := []uint64{0, 11, 25, 101, 999, 1234, 6000000000000000001}
	for _, v := range invalid {
		if IsValidDecomposedAmount(v) {
			t.Errorf("%d should not be a pretty amount", v)
		}
	}
}

func TestPrettyAmountPowerOfTen(t *testing.T) {
	if p, ok := PrettyAmountPowerOfTen(500); !ok || p != 2 {
		t.Errorf("500: got (%d, %v), want (2, true)", p, ok)
	}
	if _, ok := PrettyAmountPowerOfTen(501); ok {
		t.Error("501 should not be a pretty amount")
	}
}

func TestFormatParseAmount_RoundTrip(t *testing.T) {
	amounts := []uint64{0, 1, 999999999999, Coin, 5*Coin + 250_000_000_000, ^uint64(0)}
	for _, amount := range amounts {
		s := FormatAmount(amount)
		parsed, err := ParseAmount(s)
		if err != nil {
			t.Errorf("parse %q: %v", s, err)
			continue
		}
		if parsed != amount {
			t.Errorf("round trip %d -> %q -> %d", amount, s, parsed)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3", "1.1234567890123", "-5"} {
		if _, err := ParseAmount(s); err == nil {
			t.Errorf("ParseAmount(%q) should fail", s)
		}
	}
}
