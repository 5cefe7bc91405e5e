package types

import (
	"bytes"
	"errors"
	"testing"
)

func TestBase58_RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		{0xff},
		{0x00, 0x00, 0x00},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		bytes.Repeat([]byte{0xab}, 69), // typical address payload length
		bytes.Repeat([]byte{0x00}, 16),
	}
	for _, data := range cases {
		encoded := Base58Encode(data)
		decoded, err := Base58Decode(encoded)
		if err != nil {
			t.Errorf("decode %q: %v", encoded, err)
			continue
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip %x -> %q -> %x", data, encoded, decoded)
		}
	}
}

func TestBase58_BlockLengths(t *testing.T) {
	// 8 input bytes always encode to 11 characters.
	if got := len(Base58Encode(make([]byte, 8))); got != 11 {
		t.Errorf("8-byte block encodes to %d chars, want 11", got)
	}
	if got := len(Base58Encode(make([]byte, 16))); got != 22 {
		t.Errorf("16-byte payload encodes to %d chars, want 22", got)
	}
	if got := len(Base58Encode(make([]byte, 9))); got != 13 {
		t.Errorf("9-byte payload encodes to %d chars, want 13", got)
	}
}

func TestBase58Decode_Invalid(t *testing.T) {
	cases := []string{
		"0",           // not in the alphabet
		"l",           // not in the alphabet
		"1111111111O", // O excluded
		"1",           // impossible remainder length
		"zzzzzzzzzzz", // overflows an 8-byte block
	}
	for _, s := range cases {
		if _, err := Base58Decode(s); !errors.Is(err, ErrBase58) {
			t.Errorf("Base58Decode(%q) = %v, want ErrBase58", s, err)
		}
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	var addr AccountAddress
	for i := range addr.SpendPublicKey {
		addr.SpendPublicKey[i] = byte(i)
		addr.ViewPublicKey[i] = byte(255 - i)
	}

	const prefix = 1118
	encoded := FormatAddress(prefix, addr)

	gotPrefix, gotAddr, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if gotPrefix != prefix {
		t.Errorf("prefix = %d, want %d", gotPrefix, prefix)
	}
	if gotAddr != addr {
		t.Errorf("address mismatch after round trip")
	}

	if _, err := ParseAddressWithPrefix(encoded, prefix); err != nil {
		t.Errorf("ParseAddressWithPrefix: %v", err)
	}
	if _, err := ParseAddressWithPrefix(encoded, prefix+1); !errors.Is(err, ErrAddrPrefix) {
		t.Errorf("wrong prefix: got %v, want ErrAddrPrefix", err)
	}
}

func TestAddress_ChecksumDetectsCorruption(t *testing.T) {
	var addr AccountAddress
	addr.SpendPublicKey[0] = 0x42
	encoded := FormatAddress(1118, addr)

	// Flip one character to another alphabet character.
	corrupted := []byte(encoded)
	if corrupted[5] == '2' {
		corrupted[5] = '3'
	} else {
		corrupted[5] = '2'
	}

	if _, _, err := ParseAddress(string(corrupted)); err == nil {
		t.Error("corrupted address parsed without error")
	}
}
