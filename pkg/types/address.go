package types

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// AccountAddress is the public half of an account: a spend key used to
// derive one-time output keys and a view key used to scan for them.
type AccountAddress struct {
	SpendPublicKey PublicKey `json:"spend_public_key"`
	ViewPublicKey  PublicKey `json:"view_public_key"`
}

// addrChecksumSize is the number of truncated Keccak-256 bytes appended to
// an encoded address.
const addrChecksumSize = 4

// Address format errors.
var (
	ErrAddrChecksum = errors.New("address checksum mismatch")
	ErrAddrPrefix   = errors.New("wrong address prefix")
)

func addrChecksum(data []byte) [addrChecksumSize]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var sum [addrChecksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// varintAppend appends the canonical LEB128 encoding of v.
func varintAppend(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func varintTake(data []byte) (uint64, []byte, error) {
	var v uint64
	var shift uint
	for i, b := range data {
		if shift >= 64 || (shift == 63 && b > 1) {
			return 0, nil, fmt.Errorf("varint overflow")
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if b == 0 && i > 0 {
				return 0, nil, fmt.Errorf("varint not canonical")
			}
			return v, data[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("varint truncated")
}

// FormatAddress encodes an account address under the given base58 prefix:
// base58(varint(prefix) || spend || view || keccak(...)[:4]).
func FormatAddress(prefix uint64, addr AccountAddress) string {
	buf := varintAppend(nil, prefix)
	buf = append(buf, addr.SpendPublicKey[:]...)
	buf = append(buf, addr.ViewPublicKey[:]...)
	sum := addrChecksum(buf)
	buf = append(buf, sum[:]...)
	return Base58Encode(buf)
}

// ParseAddress decodes a base58 address string, returning the embedded
// prefix and keys. Point validity of the keys is the caller's concern.
func ParseAddress(s string) (uint64, AccountAddress, error) {
	data, err := Base58Decode(s)
	if err != nil {
		return 0, AccountAddress{}, err
	}
	if len(data) < addrChecksumSize {
		return 0, AccountAddress{}, fmt.Errorf("address too short")
	}

	body := data[:len(data)-addrChecksumSize]
	sum := addrChecksum(body)
	if !bytes.Equal(sum[:], data[len(data)-addrChecksumSize:]) {
		return 0, AccountAddress{}, ErrAddrChecksum
	}

	prefix, rest, err := varintTake(body)
	if err != nil {
		return 0, AccountAddress{}, fmt.Errorf("address prefix: %w", err)
	}
	if len(rest) != 64 {
		return 0, AccountAddress{}, fmt.Errorf("address body must be 64 bytes, got %d", len(rest))
	}

	var addr AccountAddress
	copy(addr.SpendPublicKey[:], rest[:32])
	copy(addr.ViewPublicKey[:], rest[32:])
	return prefix, addr, nil
}

// ParseAddressWithPrefix decodes an address and requires its prefix to match.
func ParseAddressWithPrefix(s string, wantPrefix uint64) (AccountAddress, error) {
	prefix, addr, err := ParseAddress(s)
	if err != nil {
		return AccountAddress{}, err
	}
	if prefix != wantPrefix {
		return AccountAddress{}, fmt.Errorf("%w: got %d, want %d", ErrAddrPrefix, prefix, wantPrefix)
	}
	return addr, nil
}
