package types

import (
	"encoding/binary"
	"errors"
)

// Block-based base58 as used by CryptoNote addresses: the payload is split
// into 8-byte blocks, each encoded independently into 11 characters so the
// output length is a pure function of the input length.
//
// The bitcoin-style base58 packages on the module path (mr-tron/base58 and
// friends) encode the payload as one big integer and cannot reproduce this
// block layout, so the codec is implemented here.

const (
	b58Alphabet       = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	b58FullBlockSize  = 8
	b58FullEncodedLen = 11
)

// encodedBlockSizes[i] is the number of base58 characters produced by an
// i-byte block.
var encodedBlockSizes = [b58FullBlockSize + 1]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var b58Reverse = buildB58Reverse()

func buildB58Reverse() [256]int8 {
	var rev [256]int8
	for i := range rev {
		rev[i] = -1
	}
	for i := 0; i < len(b58Alphabet); i++ {
		rev[b58Alphabet[i]] = int8(i)
	}
	return rev
}

// ErrBase58 is returned for any malformed base58 input.
var ErrBase58 = errors.New("invalid base58")

func decodedBlockSize(encodedLen int) int {
	for i, n := range encodedBlockSizes {
		if n == encodedLen {
			return i
		}
	}
	return -1
}

func encodeBlock(block []byte, out []byte) {
	var num uint64
	for _, b := range block {
		num = num<<8 | uint64(b)
	}
	n := encodedBlockSizes[len(block)]
	for i := n - 1; i >= 0; i-- {
		out[i] = b58Alphabet[num%58]
		num /= 58
	}
}

func decodeBlock(block []byte, size int) ([]byte, error) {
	var num uint64
	var order uint64 = 1
	for i := len(block) - 1; i >= 0; i-- {
		d := b58Reverse[block[i]]
		if d < 0 {
			return nil, ErrBase58
		}
		if d > 0 {
			if order > ^uint64(0)/uint64(d) {
				return nil, ErrBase58
			}
			product := uint64(d) * order
			if num > ^uint64(0)-product {
				return nil, ErrBase58
			}
			num += product
		}
		if i > 0 {
			if order > ^uint64(0)/58 {
				return nil, ErrBase58
			}
			order *= 58
		}
	}

	// Reject values that do not fit the decoded block width.
	if size < 8 && num >= uint64(1)<<(8*size) {
		return nil, ErrBase58
	}

	var full [8]byte
	binary.BigEndian.PutUint64(full[:], num)
	return full[8-size:], nil
}

// Base58Encode encodes data using the CryptoNote block-based base58 variant.
func Base58Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	fullBlocks := len(data) / b58FullBlockSize
	lastSize := len(data) % b58FullBlockSize
	outLen := fullBlocks*b58FullEncodedLen + encodedBlockSizes[lastSize]

	out := make([]byte, outLen)
	for i := 0; i < fullBlocks; i++ {
		encodeBlock(data[i*b58FullBlockSize:(i+1)*b58FullBlockSize], out[i*b58FullEncodedLen:])
	}
	if lastSize > 0 {
		encodeBlock(data[fullBlocks*b58FullBlockSize:], out[fullBlocks*b58FullEncodedLen:])
	}
	return string(out)
}

// Base58Decode decodes a CryptoNote block-based base58 string.
func Base58Decode(s string) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}

	fullBlocks := len(s) / b58FullEncodedLen
	lastLen := len(s) % b58FullEncodedLen
	lastSize := 0
	if lastLen > 0 {
		lastSize = decodedBlockSize(lastLen)
		if lastSize < 0 {
			return nil, ErrBase58
		}
	}

	out := make([]byte, 0, fullBlocks*b58FullBlockSize+lastSize)
	raw := []byte(s)
	for i := 0; i < fullBlocks; i++ {
		block, err := decodeBlock(raw[i*b58FullEncodedLen:(i+1)*b58FullEncodedLen], b58FullBlockSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	if lastLen > 0 {
		block, err := decodeBlock(raw[fullBlocks*b58FullEncodedLen:], lastSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}
