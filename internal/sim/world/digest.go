package world

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// StateDigest returns the canonical hash of the world as 16 hex digits.
//
// Encoding (little-endian): tick, sim_time, rng_state, next_entity_id,
// entity count, then per entity in id order: id, kind, state, zone, x, y, z,
// created_at, name length and bytes, amount, health, presence bits. Then zone
// count and per zone in id order: id, loaded, member count, member ids.
// Changing this order changes every recorded digest.
//
// The presence bits and the zone member lists are part of the encoding on
// purpose: an absent property hashes differently from a zero one, and member
// order counts. Digests are therefore only comparable with digests produced
// by this package, never with hashes from other seeyuj servers.
func (w *World) StateDigest() string {
	return fmt.Sprintf("%016x", w.digestSum())
}

func (w *World) digestSum() uint64 {
	h := xxhash.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, w.tick)
	digestWriteU64(h, &tmp, w.simTime)
	digestWriteU64(h, &tmp, w.rngState)
	digestWriteU64(h, &tmp, uint64(w.nextEntityID))
	digestWriteU64(h, &tmp, uint64(w.entities.Len()))
	w.entities.Each(func(id EntityID, e *Entity) {
		digestWriteU64(h, &tmp, uint64(id))
		h.Write([]byte{byte(e.Kind), byte(e.State)})
		digestWriteU32(h, &tmp, uint32(e.Position.Zone))
		digestWriteU32(h, &tmp, uint32(e.Position.Pos.X))
		digestWriteU32(h, &tmp, uint32(e.Position.Pos.Y))
		digestWriteU32(h, &tmp, uint32(e.Position.Pos.Z))
		digestWriteU64(h, &tmp, e.CreatedAt)

		var present byte
		name := ""
		if e.Properties.Name != nil {
			name = *e.Properties.Name
			present |= 1
		}
		digestWriteU32(h, &tmp, uint32(len(name)))
		h.WriteString(name)
		var amount, health uint32
		if e.Properties.Amount != nil {
			amount = *e.Properties.Amount
			present |= 2
		}
		if e.Properties.Health != nil {
			health = *e.Properties.Health
			present |= 4
		}
		digestWriteU32(h, &tmp, amount)
		digestWriteU32(h, &tmp, health)
		h.Write([]byte{present})
	})

	digestWriteU64(h, &tmp, uint64(w.zones.Len()))
	w.zones.Each(func(id ZoneID, z *Zone) {
		digestWriteU32(h, &tmp, uint32(id))
		h.Write([]byte{boolByte(z.Loaded)})
		digestWriteU64(h, &tmp, uint64(len(z.Entities)))
		for _, m := range z.Entities {
			digestWriteU64(h, &tmp, uint64(m))
		}
	})
	return h.Sum64()
}

func digestWriteU64(h *xxhash.Digest, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteU32(h *xxhash.Digest, tmp *[8]byte, v uint32) {
	binary.LittleEndian.PutUint32(tmp[:4], v)
	h.Write(tmp[:4])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
