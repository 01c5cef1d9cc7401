package ashmaize

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the hash output length in bytes.
const DigestSize = 64

// Sum hashes preimage against the ROM. Each of the loops rounds folds
// instrs data-dependent table reads into a BLAKE2b-512 state and then
// re-keys the state, so every digest touches the table at positions the
// caller cannot predict without computing the digest itself. Pure and
// deterministic: the same (preimage, rom, loops, instrs) always yields
// the same digest.
func Sum(preimage []byte, rom *ROM, loops, instrs uint32) [DigestSize]byte {
	state := blake2b.Sum512(preimage)
	words := uint64(len(rom.data) / wordSize)

	for l := uint32(0); l < loops; l++ {
		for k := uint32(0); k < instrs; k++ {
			idx := binary.LittleEndian.Uint64(state[(k*wordSize)%(DigestSize-wordSize):]) % words
			off := int(idx) * wordSize
			j := int(k%8) * wordSize
			for b := 0; b < wordSize; b++ {
				state[j+b] ^= rom.data[off+b]
			}
		}
		state = blake2b.Sum512(state[:])
	}
	return state
}
