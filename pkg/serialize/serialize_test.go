package serialize

import (
	"bytes"
	"errors"
	"testing"
)

func TestVarint_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 300, 16383, 16384, 1 << 32, ^uint64(0)}
	for _, v := range values {
		w := NewWriter()
		w.WriteVarint(v)
		if got := VarintLen(v); got != w.Len() {
			t.Errorf("VarintLen(%d) = %d, encoded %d bytes", v, got, w.Len())
		}

		r := NewReader(w.Bytes())
		decoded, err := r.ReadVarint()
		if err != nil {
			t.Errorf("decode %d: %v", v, err)
			continue
		}
		if decoded != v {
			t.Errorf("round trip %d -> %d", v, decoded)
		}
		if !r.Done() {
			t.Errorf("value %d left %d bytes unread", v, r.Remaining())
		}
	}
}

func TestVarint_RejectsNonCanonical(t *testing.T) {
	// 0x80 0x00 encodes zero with a redundant continuation byte.
	r := NewReader([]byte{0x80, 0x00})
	if _, err := r.ReadVarint(); !errors.Is(err, ErrNotCanonical) {
		t.Errorf("got %v, want ErrNotCanonical", err)
	}
}

func TestVarint_RejectsOverflow(t *testing.T) {
	// Ten continuation bytes and a final byte push past 64 bits.
	data := bytes.Repeat([]byte{0xff}, 10)
	data = append(data, 0x02)
	r := NewReader(data)
	if _, err := r.ReadVarint(); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("got %v, want ErrVarintOverflow", err)
	}
}

func TestVarint_Truncated(t *testing.T) {
	r := NewReader([]byte{0x80})
	if _, err := r.ReadVarint(); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want ErrTruncated", err)
	}
}

func TestVarBytes_RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteVarBytes([]byte("hello"))
	w.WriteVarBytes(nil)

	r := NewReader(w.Bytes())
	first, err := r.ReadVarBytes()
	if err != nil || string(first) != "hello" {
		t.Fatalf("first = %q, %v", first, err)
	}
	second, err := r.ReadVarBytes()
	if err != nil || len(second) != 0 {
		t.Fatalf("second = %q, %v", second, err)
	}
	if !r.Done() {
		t.Errorf("%d bytes unread", r.Remaining())
	}
}

func TestReadBytes_Truncated(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadBytes(4); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want ErrTruncated", err)
	}
}

func TestReadCount_Bounded(t *testing.T) {
	w := NewWriter()
	w.WriteVarint(1 << 30)
	r := NewReader(w.Bytes())
	if _, err := r.ReadCount(); err == nil {
		t.Error("oversized count accepted")
	}
}

func TestRewind(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	if _, err := r.ReadBytes(3); err != nil {
		t.Fatal(err)
	}
	r.Rewind(2)
	if r.Offset() != 1 {
		t.Errorf("offset = %d, want 1", r.Offset())
	}
	rest, err := r.ReadBytes(3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rest, []byte{2, 3, 4}) {
		t.Errorf("rest = %v", rest)
	}
}

func FuzzReadVarint(f *testing.F) {
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0x01})
	f.Add(bytes.Repeat([]byte{0xff}, 12))
	f.Fuzz(func(t *testing.T, data []byte) {
		r := NewReader(data)
		v, err := r.ReadVarint()
		if err != nil {
			return
		}
		// Whatever decodes must re-encode to the consumed bytes.
		w := NewWriter()
		w.WriteVarint(v)
		if !bytes.Equal(w.Bytes(), data[:r.Offset()]) {
			t.Errorf("decode/encode mismatch for %x", data[:r.Offset()])
		}
	})
}
