package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/astreg/pkg/models"
)

func TestPoolReclaimBumpsGeneration(t *testing.T) {
	p := NewPool(2, 2)

	h1, err := p.AllocatePeer(5, macA, 0, 0)
	require.NoError(t, err)

	rec := p.peerAt(h1)
	require.Equal(t, deleteReclaim, markDelete(rec, h1.gen))
	require.NoError(t, p.ReclaimPeer(h1))

	h2, err := p.AllocatePeer(5, macB, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, h1.idx, h2.idx, "free list is LIFO")
	assert.Equal(t, h1.gen+1, h2.gen)

	_, ok := p.livePeer(h1)
	assert.False(t, ok)
	assert.False(t, tryAcquire(rec, h1.gen), "stale handle must not acquire the reused slot")
	assert.True(t, tryAcquire(rec, h2.gen))
}

func TestPoolPeerCapacity(t *testing.T) {
	p := NewPool(2, 2)

	_, err := p.AllocatePeer(1, macA, 0, 0)
	require.NoError(t, err)
	_, err = p.AllocatePeer(2, macB, 0, 0)
	require.NoError(t, err)

	_, err = p.AllocatePeer(3, macC, 0, 0)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, p.PeersInUse())
}

func TestPoolReclaimRejectsLivePeers(t *testing.T) {
	p := NewPool(2, 2)

	h, err := p.AllocatePeer(1, macA, 0, 0)
	require.NoError(t, err)

	rec := p.peerAt(h)

	require.ErrorIs(t, p.ReclaimPeer(h), ErrInvariantViolation, "active peer")

	require.True(t, tryAcquire(rec, h.gen))
	require.Equal(t, deleteMarked, markDelete(rec, h.gen))
	require.ErrorIs(t, p.ReclaimPeer(h), ErrInvariantViolation, "outstanding reference")

	require.Equal(t, releaseReclaim, releaseRef(rec, h.gen))
	require.NoError(t, p.ReclaimPeer(h))
	require.ErrorIs(t, p.ReclaimPeer(h), ErrInvariantViolation, "stale handle")
}

func TestPoolASTAllocation(t *testing.T) {
	p := NewPool(2, 1)

	peer, err := p.AllocatePeer(1, macA, 3, 1)
	require.NoError(t, err)

	h, err := p.AllocateAST(macX, peer, models.ASTTypeWDS)
	require.NoError(t, err)

	rec, ok := p.ast(h)
	require.True(t, ok)
	assert.Equal(t, models.VdevID(3), rec.vdev)
	assert.Equal(t, models.PdevID(1), rec.pdev)
	assert.Equal(t, models.PeerID(1), rec.peerID)

	_, err = p.AllocateAST(macY, peer, models.ASTTypeWDS)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	require.NoError(t, p.ReclaimAST(h))
	require.ErrorIs(t, p.ReclaimAST(h), ErrInvariantViolation)

	_, ok = p.ast(h)
	assert.False(t, ok)

	_, err = p.AllocateAST(macY, PeerHandle{idx: peer.idx, gen: peer.gen + 1}, models.ASTTypeWDS)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefcountTransitions(t *testing.T) {
	p := NewPool(1, 1)

	h, err := p.AllocatePeer(1, macA, 0, 0)
	require.NoError(t, err)

	rec := p.peerAt(h)

	require.True(t, tryAcquire(rec, h.gen))
	require.True(t, tryAcquire(rec, h.gen))
	assert.Equal(t, 2, stateRefs(rec.state.Load()))

	assert.Equal(t, deleteMarked, markDelete(rec, h.gen))
	assert.Equal(t, deleteAlreadyPending, markDelete(rec, h.gen))
	assert.False(t, tryAcquire(rec, h.gen), "delete-pending peers cannot be acquired")

	assert.Equal(t, releaseOK, releaseRef(rec, h.gen))
	assert.Equal(t, releaseReclaim, releaseRef(rec, h.gen))
	assert.Equal(t, releaseUnderflow, releaseRef(rec, h.gen))
}

func TestPeerIDTableBind(t *testing.T) {
	p := NewPool(4, 1)
	tbl := newPeerIDTable(4)

	h1, err := p.AllocatePeer(2, macA, 0, 0)
	require.NoError(t, err)
	require.True(t, tbl.bind(2, h1, p))

	h2, err := p.AllocatePeer(2, macB, 0, 0)
	require.NoError(t, err)
	assert.False(t, tbl.bind(2, h2, p), "active binding is kept")

	rec1 := p.peerAt(h1)
	require.True(t, tryAcquire(rec1, h1.gen))
	require.Equal(t, deleteMarked, markDelete(rec1, h1.gen))
	assert.True(t, tbl.bind(2, h2, p), "delete-pending binding is taken over")

	assert.False(t, tbl.unbind(2, h1), "displaced handle cannot clear the new binding")

	got, ok := tbl.load(2)
	require.True(t, ok)
	assert.Equal(t, h2, got)

	_, ok = tbl.load(9)
	assert.False(t, ok)
}
