package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring consistently hashes keys onto the indexes [0, size). Every index owns
// replicas points on the ring to even out the distribution.
type ring struct {
	points *treemap.Map

	// first is the index owning the lowest point, where lookups past the
	// highest point wrap around to
	first int
}

func newRing(size, replicas uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)

	var seed [8]byte
	for index := uint(0); index < size; index++ {
		binary.LittleEndian.PutUint64(seed[:], uint64(index))
		for replica := uint(0); replica < replicas; replica++ {
			points.Put(pointHash(seed[:], uint32(replica)), int(index))
		}
	}

	r := &ring{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

func pointHash(seed []byte, replica uint32) int64 {
	var suffix [4]byte
	binary.LittleEndian.PutUint32(suffix[:], replica)

	h := murmur3.New128()
	_, _ = h.Write(seed)
	_, _ = h.Write(suffix[:])
	lo, _ := h.Sum128()
	return int64(lo)
}

// index returns the index owning key.
func (r *ring) index(key []byte) int {
	lo, _ := murmur3.Sum128(key)
	if _, owner := r.points.Ceiling(int64(lo)); owner != nil {
		return owner.(int)
	}
	return r.first
}
