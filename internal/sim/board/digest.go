package board

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes the full board state in kind order (agent, Wumpus, pits,
// treasures, survivors, pups), so a board reloaded from a save hashes the
// same as the one that was saved. Replays compare it after every turn.
func (b *Board) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	writeI64(h, &tmp, int64(b.side))
	if a := b.agent; a != nil {
		writeElement(h, &tmp, a)
	}
	if w := b.wumpus; w != nil {
		writeElement(h, &tmp, w)
	}
	for _, list := range [][]*Element{b.Pits(), b.treasures, b.survivors, b.pups} {
		writeI64(h, &tmp, int64(len(list)))
		for _, e := range list {
			writeElement(h, &tmp, e)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeElement(h hash.Hash, tmp *[8]byte, e *Element) {
	h.Write([]byte{byte(e.Kind)})
	writeI64(h, tmp, int64(e.Pos.Row))
	writeI64(h, tmp, int64(e.Pos.Col))
	writeI64(h, tmp, int64(len(e.Name)))
	h.Write([]byte(e.Name))
	writeI64(h, tmp, int64(e.Value))
	if e.Alive {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeI64(h, tmp, int64(e.Arrows))
	writeI64(h, tmp, int64(e.Score))
}

func writeI64(h hash.Hash, tmp *[8]byte, v int64) {
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	h.Write(tmp[:])
}
