package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/mevanet/mevanet-chain/internal/storage"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixEntry = []byte("b/") // b/<height(8)> -> block entry blob + checksum
	keyTipHash  = []byte("s/tip")
	keyHeight   = []byte("s/height")
)

// Store persists the canonical block sequence. Everything else — output
// index, key images, block index — is rebuilt from it at startup.
type Store struct {
	db storage.DB
}

// NewStore creates a block store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func entryKey(height uint64) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], height)
	return key
}

// sealEntry appends a BLAKE3 checksum so corrupt rows are detected on load
// instead of producing a silently wrong chain state.
func sealEntry(blob []byte) []byte {
	sum := blake3.Sum256(blob)
	out := make([]byte, 0, len(blob)+32)
	out = append(out, blob...)
	return append(out, sum[:]...)
}

func unsealEntry(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("entry row too short: %d bytes", len(data))
	}
	blob := data[:len(data)-32]
	want := data[len(data)-32:]
	sum := blake3.Sum256(blob)
	for i := range want {
		if sum[i] != want[i] {
			return nil, fmt.Errorf("entry checksum mismatch")
		}
	}
	return blob, nil
}

// CommitEntry atomically writes the entry at its height and moves the tip.
func (s *Store) CommitEntry(entry *BlockEntry, tipHash types.Hash) error {
	blob, err := entry.encode()
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", entry.Height, err)
	}

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], entry.Height)

	batch := storage.NewBatch()
	batch.Put(entryKey(entry.Height), sealEntry(blob))
	batch.Put(keyTipHash, tipHash[:])
	batch.Put(keyHeight, heightBuf[:])

	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("commit entry %d: %w", entry.Height, err)
	}
	return nil
}

// PopEntry atomically removes the tail entry and moves the tip back to the
// previous block.
func (s *Store) PopEntry(height uint64, newTipHash types.Hash, newHeight uint64) error {
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], newHeight)

	batch := storage.NewBatch()
	batch.Delete(entryKey(height))
	batch.Put(keyTipHash, newTipHash[:])
	batch.Put(keyHeight, heightBuf[:])

	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("pop entry %d: %w", height, err)
	}
	return nil
}

// GetEntry loads the entry at a height.
func (s *Store) GetEntry(height uint64) (*BlockEntry, error) {
	data, err := s.db.Get(entryKey(height))
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", height, err)
	}
	blob, err := unsealEntry(data)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", height, err)
	}
	return decodeBlockEntry(blob)
}

// TipHeight returns the stored tip height; ok is false for a fresh store.
func (s *Store) TipHeight() (uint64, bool, error) {
	data, err := s.db.Get(keyHeight)
	if err == storage.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("corrupt tip height: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// TipHash returns the stored tip hash.
func (s *Store) TipHash() (types.Hash, error) {
	data, err := s.db.Get(keyTipHash)
	if err != nil {
		return types.Hash{}, err
	}
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt tip hash: %d bytes", len(data))
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}
