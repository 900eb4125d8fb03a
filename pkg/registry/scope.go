package registry

import (
	"sync"

	"github.com/carverauto/astreg/pkg/models"
)

type astKey struct {
	vdev models.VdevID
	mac  models.MACAddress
}

// scope is one radio's share of the registry. mu guards both hash indices,
// the free-pending table and the per-peer AST lists of peers on this pdev.
type scope struct {
	id models.PdevID
	mu sync.RWMutex

	// Chained: a delete-pending peer and its re-associated successor may
	// share a MAC until the former is reclaimed.
	peersByMAC map[models.MACAddress][]PeerHandle

	// Chained by vdev: the same address can be learned on two interfaces of
	// one radio.
	astByMAC map[models.MACAddress][]ASTHandle

	// Entries deleted locally and waiting for the firmware's AST unmap,
	// oldest first.
	freePending map[astKey][]ASTHandle
}

func newScope(id models.PdevID) *scope {
	return &scope{
		id:          id,
		peersByMAC:  make(map[models.MACAddress][]PeerHandle),
		astByMAC:    make(map[models.MACAddress][]ASTHandle),
		freePending: make(map[astKey][]ASTHandle),
	}
}

func (s *scope) addPeer(mac models.MACAddress, h PeerHandle) {
	s.peersByMAC[mac] = append(s.peersByMAC[mac], h)
}

func (s *scope) removePeer(mac models.MACAddress, h PeerHandle) bool {
	chain := s.peersByMAC[mac]
	for i, cur := range chain {
		if cur != h {
			continue
		}

		chain = append(chain[:i], chain[i+1:]...)
		if len(chain) == 0 {
			delete(s.peersByMAC, mac)
		} else {
			s.peersByMAC[mac] = chain
		}

		return true
	}

	return false
}

func (s *scope) addAST(mac models.MACAddress, h ASTHandle) {
	s.astByMAC[mac] = append(s.astByMAC[mac], h)
}

func (s *scope) removeAST(mac models.MACAddress, h ASTHandle) bool {
	chain := s.astByMAC[mac]
	for i, cur := range chain {
		if cur != h {
			continue
		}

		chain = append(chain[:i], chain[i+1:]...)
		if len(chain) == 0 {
			delete(s.astByMAC, mac)
		} else {
			s.astByMAC[mac] = chain
		}

		return true
	}

	return false
}

// findAST returns the entry for mac only if it lives on vdev. Caller holds
// mu.
func (s *scope) findAST(pool *Pool, vdev models.VdevID, mac models.MACAddress) (ASTHandle, *astRecord, bool) {
	for _, h := range s.astByMAC[mac] {
		rec, ok := pool.ast(h)
		if ok && rec.vdev == vdev {
			return h, rec, true
		}
	}

	return ASTHandle{}, nil, false
}

// lookupAST returns the linked entry for mac on this pdev, whatever vdev its
// owner sits on. Caller holds mu.
func (s *scope) lookupAST(pool *Pool, mac models.MACAddress) (ASTHandle, *astRecord, bool) {
	for _, h := range s.astByMAC[mac] {
		if rec, ok := pool.ast(h); ok {
			return h, rec, true
		}
	}

	return ASTHandle{}, nil, false
}

func (s *scope) pushFreePending(key astKey, h ASTHandle) {
	s.freePending[key] = append(s.freePending[key], h)
}

// popFreePending takes the oldest entry waiting on key.
func (s *scope) popFreePending(key astKey) (ASTHandle, bool) {
	queue := s.freePending[key]
	if len(queue) == 0 {
		return ASTHandle{}, false
	}

	h := queue[0]
	if len(queue) == 1 {
		delete(s.freePending, key)
	} else {
		s.freePending[key] = queue[1:]
	}

	return h, true
}

func (s *scope) freePendingCount() int {
	n := 0
	for _, queue := range s.freePending {
		n += len(queue)
	}

	return n
}

func (s *scope) astEntries() int {
	n := 0
	for _, chain := range s.astByMAC {
		n += len(chain)
	}

	return n
}

func removeHandle(list []ASTHandle, h ASTHandle) []ASTHandle {
	for i, cur := range list {
		if cur == h {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}
