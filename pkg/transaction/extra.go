package transaction

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/serialize"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Extra field tags.
const (
	extraTagPadding        = 0x00
	extraTagPublicKey      = 0x01
	extraTagNonce          = 0x02
	extraTagMergeMiningTag = 0x03

	extraNoncePaymentID = 0x00

	// maxExtraNonceSize bounds a single nonce field.
	maxExtraNonceSize = 255
)

// ErrExtraNotFound is returned when a requested extra field is absent.
var ErrExtraNotFound = errors.New("extra field not found")

// MergeMiningTag links a merge-mined block to its slot in the parent
// block's merkle tree.
type MergeMiningTag struct {
	Depth      uint64     `json:"depth"`
	MerkleRoot types.Hash `json:"merkle_root"`
}

// AppendTxPublicKeyToExtra appends a transaction public key field.
func AppendTxPublicKeyToExtra(extra []byte, key types.PublicKey) []byte {
	extra = append(extra, extraTagPublicKey)
	return append(extra, key[:]...)
}

// AppendNonceToExtra appends a raw nonce field.
func AppendNonceToExtra(extra, nonce []byte) ([]byte, error) {
	if len(nonce) > maxExtraNonceSize {
		return nil, fmt.Errorf("extra nonce too large: %d bytes", len(nonce))
	}
	extra = append(extra, extraTagNonce, byte(len(nonce)))
	return append(extra, nonce...), nil
}

// AppendPaymentIDToExtra appends a payment id wrapped in a nonce field.
func AppendPaymentIDToExtra(extra []byte, paymentID types.Hash) ([]byte, error) {
	nonce := make([]byte, 0, 33)
	nonce = append(nonce, extraNoncePaymentID)
	nonce = append(nonce, paymentID[:]...)
	return AppendNonceToExtra(extra, nonce)
}

// AppendMergeMiningTagToExtra appends a merge-mining tag field.
func AppendMergeMiningTagToExtra(extra []byte, tag MergeMiningTag) []byte {
	body := serialize.NewWriter()
	body.WriteVarint(tag.Depth)
	body.WriteBytes(tag.MerkleRoot[:])

	extra = append(extra, extraTagMergeMiningTag, byte(body.Len()))
	return append(extra, body.Bytes()...)
}

// parseExtra walks the extra field, invoking the matching callback per
// field. Unknown tags terminate the walk without error, mirroring the
// permissive consensus treatment of extra.
func parseExtra(extra []byte, onKey func(types.PublicKey), onNonce func([]byte), onMM func([]byte)) error {
	i := 0
	for i < len(extra) {
		switch extra[i] {
		case extraTagPadding:
			// Padding runs to the end and must be all zero.
			for ; i < len(extra); i++ {
				if extra[i] != 0 {
					return fmt.Errorf("nonzero padding byte at offset %d", i)
				}
			}

		case extraTagPublicKey:
			if i+1+32 > len(extra) {
				return fmt.Errorf("truncated public key field")
			}
			var key types.PublicKey
			copy(key[:], extra[i+1:i+33])
			if onKey != nil {
				onKey(key)
			}
			i += 33

		case extraTagNonce:
			if i+1 >= len(extra) {
				return fmt.Errorf("truncated nonce field")
			}
			size := int(extra[i+1])
			if i+2+size > len(extra) {
				return fmt.Errorf("truncated nonce body")
			}
			if onNonce != nil {
				onNonce(extra[i+2 : i+2+size])
			}
			i += 2 + size

		case extraTagMergeMiningTag:
			if i+1 >= len(extra) {
				return fmt.Errorf("truncated merge mining field")
			}
			size := int(extra[i+1])
			if i+2+size > len(extra) {
				return fmt.Errorf("truncated merge mining body")
			}
			if onMM != nil {
				onMM(extra[i+2 : i+2+size])
			}
			i += 2 + size

		default:
			// Unknown field: ignore the remainder.
			return nil
		}
	}
	return nil
}

// TxPublicKeyFromExtra extracts the first transaction public key field.
func TxPublicKeyFromExtra(extra []byte) (types.PublicKey, error) {
	var found bool
	var key types.PublicKey
	err := parseExtra(extra, func(k types.PublicKey) {
		if !found {
			key = k
			found = true
		}
	}, nil, nil)
	if err != nil {
		return types.PublicKey{}, err
	}
	if !found {
		return types.PublicKey{}, fmt.Errorf("tx public key: %w", ErrExtraNotFound)
	}
	return key, nil
}

// PaymentIDFromExtra extracts a payment id, if one is embedded in a nonce
// field.
func PaymentIDFromExtra(extra []byte) (types.Hash, error) {
	var found bool
	var id types.Hash
	err := parseExtra(extra, nil, func(nonce []byte) {
		if !found && len(nonce) == 33 && nonce[0] == extraNoncePaymentID {
			copy(id[:], nonce[1:])
			found = true
		}
	}, nil)
	if err != nil {
		return types.Hash{}, err
	}
	if !found {
		return types.Hash{}, fmt.Errorf("payment id: %w", ErrExtraNotFound)
	}
	return id, nil
}

// MergeMiningTagFromExtra extracts the merge-mining tag field.
func MergeMiningTagFromExtra(extra []byte) (MergeMiningTag, error) {
	var found bool
	var body []byte
	err := parseExtra(extra, nil, nil, func(b []byte) {
		if !found {
			body = b
			found = true
		}
	})
	if err != nil {
		return MergeMiningTag{}, err
	}
	if !found {
		return MergeMiningTag{}, fmt.Errorf("merge mining tag: %w", ErrExtraNotFound)
	}

	r := serialize.NewReader(body)
	var tag MergeMiningTag
	if tag.Depth, err = r.ReadVarint(); err != nil {
		return MergeMiningTag{}, fmt.Errorf("merge mining depth: %w", err)
	}
	if err := r.ReadHash32((*[32]byte)(&tag.MerkleRoot)); err != nil {
		return MergeMiningTag{}, fmt.Errorf("merge mining root: %w", err)
	}
	return tag, nil
}
