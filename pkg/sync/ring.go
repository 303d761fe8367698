package sync

import (
	"encoding/binary"
	"strconv"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// stripeRing consistently hashes keys onto stripe indices. Each stripe owns
// replicas points on the ring, which evens out the key space per stripe.
type stripeRing struct {
	points *treemap.Map // int64 point -> int stripe

	// first is the stripe owning the lowest point, which also owns the keys
	// hashing past the highest point.
	first int
}

func newStripeRing(stripes int, replicas uint) *stripeRing {
	points := treemap.NewWith(utils.Int64Comparator)
	for stripe := 0; stripe < stripes; stripe++ {
		stripeHash, _ := murmur3.Sum128([]byte("lock" + strconv.Itoa(stripe)))

		var buf [12]byte
		binary.LittleEndian.PutUint64(buf[:8], stripeHash)
		for replica := uint32(0); replica < uint32(replicas); replica++ {
			binary.LittleEndian.PutUint32(buf[8:], replica)
			point, _ := murmur3.Sum128(buf[:])
			points.Put(int64(point), stripe)
		}
	}

	r := &stripeRing{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

func (r *stripeRing) stripe(key []byte) int {
	hash, _ := murmur3.Sum128(key)
	if _, stripe := r.points.Ceiling(int64(hash)); stripe != nil {
		return stripe.(int)
	}
	return r.first
}
