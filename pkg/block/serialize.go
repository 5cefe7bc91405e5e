package block

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/serialize"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Codec errors.
var (
	ErrBadVersion   = errors.New("unsupported block major version")
	ErrParentNeeded = errors.New("major versions 2 and 3 require a parent block")
	ErrNoParent     = errors.New("parent block only valid for major versions 2 and 3")
)

// maxTxPerBlock bounds the transaction hash list on decode.
const maxTxPerBlock = 1 << 20

// hasParent reports whether the major version carries a merge-mining
// parent block.
func hasParent(majorVersion uint8) bool {
	return majorVersion == MajorVersion2 || majorVersion == MajorVersion3
}

// hasSignature reports whether the major version reserves the block
// signature field.
func hasSignature(majorVersion uint8) bool {
	return majorVersion >= MajorVersion5
}

// Serialize returns the canonical encoding of the block.
func (b *Block) Serialize() ([]byte, error) {
	w := serialize.NewWriter()
	if err := b.writeHeader(w); err != nil {
		return nil, err
	}

	w.WriteBytes(b.BaseTransaction.Serialize())
	w.WriteVarint(uint64(len(b.TransactionHashes)))
	for _, h := range b.TransactionHashes {
		w.WriteBytes(h[:])
	}

	if hasSignature(b.MajorVersion) {
		var sig types.Signature
		if b.Signature != nil {
			sig = *b.Signature
		}
		w.WriteBytes(sig[:])
	}
	return w.Bytes(), nil
}

func (b *Block) writeHeader(w *serialize.Writer) error {
	if b.MajorVersion < MajorVersion1 || b.MajorVersion > MajorVersion6 {
		return fmt.Errorf("%w: %d", ErrBadVersion, b.MajorVersion)
	}
	w.WriteVarint(uint64(b.MajorVersion))
	w.WriteVarint(uint64(b.MinorVersion))

	if hasParent(b.MajorVersion) {
		if b.Parent == nil {
			return ErrParentNeeded
		}
		// Merge-mined blocks write the same header fields, followed by
		// the parent container.
		w.WriteVarint(b.Timestamp)
		w.WriteBytes(b.PreviousBlockHash[:])
		w.WriteBytes(nonceBytes(b.Nonce))
		return b.writeParent(w)
	}

	if b.Parent != nil {
		return ErrNoParent
	}
	w.WriteVarint(b.Timestamp)
	w.WriteBytes(b.PreviousBlockHash[:])
	w.WriteBytes(nonceBytes(b.Nonce))
	return nil
}

func (b *Block) writeParent(w *serialize.Writer) error {
	p := b.Parent
	w.WriteVarint(uint64(p.MajorVersion))
	w.WriteVarint(uint64(p.MinorVersion))
	w.WriteBytes(p.PreviousBlockHash[:])
	w.WriteVarint(uint64(p.TransactionCount))
	w.WriteVarint(uint64(len(p.BaseTransactionBranch)))
	for _, h := range p.BaseTransactionBranch {
		w.WriteBytes(h[:])
	}
	w.WriteBytes(p.BaseTransaction.Serialize())
	w.WriteVarint(uint64(len(p.BlockchainBranch)))
	for _, h := range p.BlockchainBranch {
		w.WriteBytes(h[:])
	}
	return nil
}

// Deserialize decodes a canonical block encoding.
func Deserialize(data []byte) (*Block, error) {
	r := serialize.NewReader(data)
	var b Block

	major, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("major version: %w", err)
	}
	if major < MajorVersion1 || major > MajorVersion6 {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, major)
	}
	b.MajorVersion = uint8(major)

	minor, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("minor version: %w", err)
	}
	if minor > 0xff {
		return nil, fmt.Errorf("minor version %d out of range", minor)
	}
	b.MinorVersion = uint8(minor)

	if b.Timestamp, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	if err := r.ReadHash32((*[32]byte)(&b.PreviousBlockHash)); err != nil {
		return nil, fmt.Errorf("prev hash: %w", err)
	}
	nb, err := r.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	b.Nonce = uint32(nb[0]) | uint32(nb[1])<<8 | uint32(nb[2])<<16 | uint32(nb[3])<<24

	if hasParent(b.MajorVersion) {
		parent, err := readParent(r)
		if err != nil {
			return nil, fmt.Errorf("parent block: %w", err)
		}
		b.Parent = parent
	}

	baseTx, err := readTransaction(r)
	if err != nil {
		return nil, fmt.Errorf("base transaction: %w", err)
	}
	b.BaseTransaction = *baseTx

	count, err := r.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("transaction count: %w", err)
	}
	if count > maxTxPerBlock {
		return nil, fmt.Errorf("transaction count %d exceeds limit", count)
	}
	b.TransactionHashes = make([]types.Hash, count)
	for i := 0; i < count; i++ {
		if err := r.ReadHash32((*[32]byte)(&b.TransactionHashes[i])); err != nil {
			return nil, fmt.Errorf("transaction hash %d: %w", i, err)
		}
	}

	if hasSignature(b.MajorVersion) {
		sb, err := r.ReadBytes(types.SignatureSize)
		if err != nil {
			return nil, fmt.Errorf("block signature: %w", err)
		}
		var sig types.Signature
		copy(sig[:], sb)
		b.Signature = &sig
	}

	if !r.Done() {
		return nil, fmt.Errorf("%d trailing bytes after block", r.Remaining())
	}
	return &b, nil
}

func readParent(r *serialize.Reader) (*ParentBlock, error) {
	var p ParentBlock

	major, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	p.MajorVersion = uint8(major)
	minor, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	p.MinorVersion = uint8(minor)
	if err := r.ReadHash32((*[32]byte)(&p.PreviousBlockHash)); err != nil {
		return nil, err
	}
	txCount, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if txCount > 0xffff {
		return nil, fmt.Errorf("parent transaction count %d out of range", txCount)
	}
	p.TransactionCount = uint16(txCount)

	branchLen, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	if branchLen > 64 {
		return nil, fmt.Errorf("base transaction branch too deep: %d", branchLen)
	}
	p.BaseTransactionBranch = make([]types.Hash, branchLen)
	for i := range p.BaseTransactionBranch {
		if err := r.ReadHash32((*[32]byte)(&p.BaseTransactionBranch[i])); err != nil {
			return nil, err
		}
	}

	baseTx, err := readTransaction(r)
	if err != nil {
		return nil, err
	}
	p.BaseTransaction = *baseTx

	chainLen, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	if chainLen > 256 {
		return nil, fmt.Errorf("blockchain branch too deep: %d", chainLen)
	}
	p.BlockchainBranch = make([]types.Hash, chainLen)
	for i := range p.BlockchainBranch {
		if err := r.ReadHash32((*[32]byte)(&p.BlockchainBranch[i])); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// readTransaction decodes an embedded transaction by delegating to the
// transaction codec over the remaining bytes, then advancing past it.
func readTransaction(r *serialize.Reader) (*transaction.Transaction, error) {
	rest, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, err
	}
	sub := serialize.NewReader(rest)
	tx, err := transaction.ReadFrom(sub)
	if err != nil {
		return nil, err
	}
	// Rewind the unread tail.
	r.Rewind(sub.Remaining())
	return tx, nil
}

// AuxHeaderHash returns the hash a merge-mined block contributes to the
// parent chain's merkle tree: version, previous hash and transaction root.
// Timestamp and nonce are excluded, so the tag stays stable while the
// miner iterates the nonce.
func (b *Block) AuxHeaderHash() types.Hash {
	w := serialize.NewWriter()
	w.WriteVarint(uint64(b.MajorVersion))
	w.WriteVarint(uint64(b.MinorVersion))
	w.WriteBytes(b.PreviousBlockHash[:])
	root := b.TxTreeHash()
	w.WriteBytes(root[:])
	w.WriteVarint(uint64(1 + len(b.TransactionHashes)))
	return crypto.Hash(w.Bytes())
}

// NeedsParent reports whether this block's major version carries a
// merge-mining parent.
func (b *Block) NeedsParent() bool {
	return hasParent(b.MajorVersion)
}

// HashingBlob returns the byte string whose hash identifies the block and
// feeds the proof of work. The layout depends on the major version:
// versions 2 and 3 splice in the merge-mining parent, version 5 and later
// hash over the reserved signature slot implicitly left out.
func (b *Block) HashingBlob() ([]byte, error) {
	w := serialize.NewWriter()
	if err := b.writeHeader(w); err != nil {
		return nil, err
	}
	root := b.TxTreeHash()
	w.WriteBytes(root[:])
	w.WriteVarint(uint64(1 + len(b.TransactionHashes)))
	return w.Bytes(), nil
}

// Hash computes the block id: the hash of the size-prefixed hashing blob.
func (b *Block) Hash() (types.Hash, error) {
	blob, err := b.HashingBlob()
	if err != nil {
		return types.Hash{}, err
	}
	w := serialize.NewWriter()
	w.WriteVarint(uint64(len(blob)))
	w.WriteBytes(blob)
	return crypto.Hash(w.Bytes()), nil
}

// MustHash is Hash for blocks already known to be well-formed; it panics on
// a malformed block and is meant for blocks produced by this node.
func (b *Block) MustHash() types.Hash {
	h, err := b.Hash()
	if err != nil {
		panic("block: hash: " + err.Error())
	}
	return h
}

func nonceBytes(n uint32) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}
