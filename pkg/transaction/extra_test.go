package transaction

import (
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

func TestExtra_TxPublicKey(t *testing.T) {
	var key types.PublicKey
	key[7] = 0x77

	extra := AppendTxPublicKeyToExtra(nil, key)
	got, err := TxPublicKeyFromExtra(extra)
	if err != nil {
		t.Fatalf("TxPublicKeyFromExtra: %v", err)
	}
	if got != key {
		t.Errorf("got %s, want %s", got, key)
	}

	if _, err := TxPublicKeyFromExtra(nil); !errors.Is(err, ErrExtraNotFound) {
		t.Errorf("empty extra: got %v, want ErrExtraNotFound", err)
	}
}

func TestExtra_PaymentID(t *testing.T) {
	var pid types.Hash
	pid[0] = 0xde
	pid[31] = 0xad

	var key types.PublicKey
	extra := AppendTxPublicKeyToExtra(nil, key)
	extra, err := AppendPaymentIDToExtra(extra, pid)
	if err != nil {
		t.Fatalf("AppendPaymentIDToExtra: %v", err)
	}

	got, err := PaymentIDFromExtra(extra)
	if err != nil {
		t.Fatalf("PaymentIDFromExtra: %v", err)
	}
	if got != pid {
		t.Errorf("got %s, want %s", got, pid)
	}

	// A plain nonce is not a payment id.
	plain, _ := AppendNonceToExtra(nil, []byte{0x01, 0x02})
	if _, err := PaymentIDFromExtra(plain); !errors.Is(err, ErrExtraNotFound) {
		t.Errorf("plain nonce: got %v, want ErrExtraNotFound", err)
	}
}

func TestExtra_MergeMiningTag(t *testing.T) {
	tag := MergeMiningTag{Depth: 3}
	tag.MerkleRoot[4] = 0x99

	extra := AppendMergeMiningTagToExtra(nil, tag)
	got, err := MergeMiningTagFromExtra(extra)
	if err != nil {
		t.Fatalf("MergeMiningTagFromExtra: %v", err)
	}
	if got != tag {
		t.Errorf("got %+v, want %+v", got, tag)
	}
}

func TestExtra_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"truncated pubkey":   {0x01, 0xaa},
		"truncated nonce":    {0x02},
		"short nonce body":   {0x02, 0x05, 0x01},
		"nonzero padding":    {0x00, 0x00, 0x07},
		"truncated mm field": {0x03},
	}
	for name, extra := range cases {
		if err := parseExtra(extra, nil, nil, nil); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}

	// Unknown tags end the walk without error.
	if err := parseExtra([]byte{0x7f, 0x01, 0x02}, nil, nil, nil); err != nil {
		t.Errorf("unknown tag: %v", err)
	}
}

func TestExtra_NonceSizeLimit(t *testing.T) {
	if _, err := AppendNonceToExtra(nil, make([]byte, 256)); err == nil {
		t.Error("oversized nonce accepted")
	}
}
