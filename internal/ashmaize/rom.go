// Package ashmaize implements the Scavenger Mine memory-hard hash: a
// large keyed read-only table ("ROM") plus a digest routine that walks
// it with data-dependent reads.
package ashmaize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

const wordSize = 8

// Params sizes the ROM. The whitepaper values are 1 GiB table, 16 MiB
// pre-buffer, 4 mixing rounds.
type Params struct {
	Size      int
	PreSize   int
	MixRounds int
}

var (
	ErrBadParams = errors.New("ashmaize: invalid rom parameters")
)

// ROM is an expensive-to-build table keyed by an arbitrary byte string.
// It is immutable after BuildROM returns and safe to share across any
// number of hashing goroutines.
type ROM struct {
	key  string
	data []byte
}

// Key returns the key the table was built from.
func (r *ROM) Key() string { return r.key }

// Size returns the table size in bytes.
func (r *ROM) Size() int { return len(r.data) }

// BuildROM deterministically expands key into a table of p.Size bytes.
// Two steps: a BLAKE2b XOF fills a small pre-buffer, then mixing rounds
// scatter pre-buffer words across the full table so that no prefix of
// the table can be reproduced without materializing all of it.
func BuildROM(key []byte, p Params) (*ROM, error) {
	if p.Size < wordSize || p.Size%wordSize != 0 ||
		p.PreSize < wordSize || p.PreSize%wordSize != 0 ||
		p.PreSize > p.Size || p.MixRounds < 1 {
		return nil, fmt.Errorf("%w: %+v", ErrBadParams, p)
	}

	seed := blake2b.Sum512(key)
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, seed[:32])
	if err != nil {
		return nil, fmt.Errorf("ashmaize: init xof: %w", err)
	}
	xof.Write(key)

	pre := make([]byte, p.PreSize)
	if _, err := io.ReadFull(xof, pre); err != nil {
		return nil, fmt.Errorf("ashmaize: fill pre-buffer: %w", err)
	}

	data := make([]byte, p.Size)
	for off := 0; off < len(data); {
		off += copy(data[off:], pre)
	}

	preWords := uint64(p.PreSize / wordSize)
	for round := 0; round < p.MixRounds; round++ {
		rs := blake2b.Sum512(append(seed[:], byte(round)))
		acc := binary.LittleEndian.Uint64(rs[:wordSize])
		for off := 0; off+wordSize <= len(data); off += wordSize {
			w := binary.LittleEndian.Uint64(data[off:])
			pw := binary.LittleEndian.Uint64(pre[(acc%preWords)*wordSize:])
			w = bits.RotateLeft64(w^pw, int(acc&63)) + acc
			binary.LittleEndian.PutUint64(data[off:], w)
			acc = acc*0x9E3779B97F4A7C15 + w
		}
	}

	return &ROM{key: string(key), data: data}, nil
}
