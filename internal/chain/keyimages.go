package chain

import (
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// KeyImageSet tracks spent key images together with the height at which
// each was spent, so a reorg can discard everything above the fork point
// in one pass.
type KeyImageSet struct {
	spent map[types.KeyImage]uint64
}

// NewKeyImageSet returns an empty set.
func NewKeyImageSet() *KeyImageSet {
	return &KeyImageSet{
		spent: make(map[types.KeyImage]uint64),
	}
}

// Contains reports whether the image has been spent on the main chain.
func (s *KeyImageSet) Contains(image types.KeyImage) bool {
	_, ok := s.spent[image]
	return ok
}

// SpentHeight returns the height at which the image was spent.
func (s *KeyImageSet) SpentHeight(image types.KeyImage) (uint64, bool) {
	h, ok := s.spent[image]
	return h, ok
}

// Insert records the image as spent at height. Returns false if the image
// is already present, which is an invariant breach at the call site.
func (s *KeyImageSet) Insert(image types.KeyImage, height uint64) bool {
	if _, dup := s.spent[image]; dup {
		return false
	}
	s.spent[image] = height
	return true
}

// Remove deletes a single image, returning whether it was present.
func (s *KeyImageSet) Remove(image types.KeyImage) bool {
	if _, ok := s.spent[image]; !ok {
		return false
	}
	delete(s.spent, image)
	return true
}

// RemoveAtOrAbove drops every image spent at or above height and returns
// how many were removed.
func (s *KeyImageSet) RemoveAtOrAbove(height uint64) int {
	removed := 0
	for image, h := range s.spent {
		if h >= height {
			delete(s.spent, image)
			removed++
		}
	}
	return removed
}

// Len returns the number of spent images.
func (s *KeyImageSet) Len() int {
	return len(s.spent)
}
