package challenge

import (
	"encoding/hex"
	"fmt"
	"math/bits"
)

// Mask is the decoded difficulty. Each zero bit is a constraint: the
// digest must carry a zero at that position. Set bits are unconstrained.
type Mask []byte

// ParseMask decodes a hex difficulty string. A malformed string is an
// error; callers treat the challenge as unsatisfiable rather than
// crashing a mining cycle over it.
func ParseMask(difficulty string) (Mask, error) {
	b, err := hex.DecodeString(difficulty)
	if err != nil {
		return nil, fmt.Errorf("decode difficulty %q: %w", difficulty, err)
	}
	return Mask(b), nil
}

// Check reports whether digest satisfies the mask: over the overlapping
// prefix, every constrained (zero) mask bit is zero in the digest.
func (m Mask) Check(digest []byte) bool {
	n := len(m)
	if len(digest) < n {
		n = len(digest)
	}
	for i := 0; i < n; i++ {
		if digest[i]&^m[i] != 0 {
			return false
		}
	}
	return true
}

// RequiredZeroBits counts the constrained bits across the whole mask.
// Fewer constraints means an easier challenge.
func (m Mask) RequiredZeroBits() uint32 {
	var total uint32
	for _, b := range m {
		total += uint32(bits.OnesCount8(^b))
	}
	return total
}

// LeadingZeroBits counts the run of constrained bits from the front,
// stopping inside the first byte that has a set bit. A longer run means
// the constraints are packed at the start, which the selector treats as
// easier than the same number scattered.
func (m Mask) LeadingZeroBits() uint32 {
	var total uint32
	for _, b := range m {
		lz := uint32(bits.LeadingZeros8(b))
		total += lz
		if lz < 8 {
			break
		}
	}
	return total
}
