package registry

import (
	"sync/atomic"

	"github.com/carverauto/astreg/pkg/models"
)

// peerIDTable maps firmware peer IDs to handles. Reads are lock-free; writers
// hold the scope lock of the peer being bound or unbound.
type peerIDTable struct {
	slots []atomic.Uint64
}

func newPeerIDTable(size int) *peerIDTable {
	return &peerIDTable{slots: make([]atomic.Uint64, size)}
}

// Encoded slot: 0 is empty, otherwise gen<<32 | idx+1.
func encodeHandle(h PeerHandle) uint64 {
	return uint64(h.gen)<<32 | uint64(h.idx+1)
}

func decodeHandle(v uint64) (PeerHandle, bool) {
	if v == 0 {
		return PeerHandle{}, false
	}

	return PeerHandle{idx: uint32(v) - 1, gen: uint32(v >> 32)}, true
}

func (t *peerIDTable) inRange(id models.PeerID) bool {
	return int(id) < len(t.slots)
}

func (t *peerIDTable) load(id models.PeerID) (PeerHandle, bool) {
	if !t.inRange(id) {
		return PeerHandle{}, false
	}

	return decodeHandle(t.slots[id].Load())
}

// bind publishes h under id. A slot still naming an ACTIVE peer is left alone
// and reported as occupied; a slot naming a delete-pending or reclaimed peer
// is taken over, since the firmware may reuse an ID once it has unmapped it.
func (t *peerIDTable) bind(id models.PeerID, h PeerHandle, pool *Pool) bool {
	slot := &t.slots[id]
	enc := encodeHandle(h)

	for {
		cur := slot.Load()
		if prev, ok := decodeHandle(cur); ok {
			if rec := pool.peerAt(prev); rec != nil && isActive(rec, prev.gen) {
				return false
			}
		}

		if slot.CompareAndSwap(cur, enc) {
			return true
		}
	}
}

// unbind clears id only while it still names h.
func (t *peerIDTable) unbind(id models.PeerID, h PeerHandle) bool {
	if !t.inRange(id) {
		return false
	}

	return t.slots[id].CompareAndSwap(encodeHandle(h), 0)
}
