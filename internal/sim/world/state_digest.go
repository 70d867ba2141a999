package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// stateDigest hashes the tick, the grid size and every live entity in id
// order. Two runs with the same seed, worker count and tuning produce the same
// digest sequence.
func (p *Processor) stateDigest(nowTick uint64) string {
	return digestWorld(p.world, nowTick)
}

func digestWorld(w *World, nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.Width()))
	digestWriteU64(h, &tmp, uint64(w.Height()))
	digestWriteU64(h, &tmp, uint64(w.Len()))
	for id, e := range w.Entities() {
		digestWriteU64(h, &tmp, uint64(id))
		digestWriteU64(h, &tmp, uint64(e.Location.X()))
		digestWriteU64(h, &tmp, uint64(e.Location.Y()))
		h.Write([]byte{byte(e.Facing)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
