package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/astreg/pkg/models"
)

func TestApplyRoutesDecodedEvents(t *testing.T) {
	r := newTestRegistry(t)

	ev, err := models.NewFirmwareEvent("test", 0, models.EventPeerMap, &models.PeerMapEvent{PeerID: 3, VdevID: 0, MAC: macA})
	require.NoError(t, err)

	payload, err := ev.Decode()
	require.NoError(t, err)
	require.NoError(t, r.Apply(payload))
	assert.True(t, r.Exists(3))

	require.NoError(t, r.Apply(&models.ASTMapEvent{PeerID: 3, VdevID: 0, MAC: macX}))
	require.NoError(t, r.Apply(&models.ASTUpdateEvent{PeerID: 3, VdevID: 0, MAC: macX, NextHop: true}))
	require.NoError(t, r.Apply(&models.ASTUnmapEvent{VdevID: 0, MAC: macX}))
	require.NoError(t, r.Apply(&models.PeerUnmapEvent{PeerID: 3, VdevID: 0, MAC: macA}))
	assert.False(t, r.Exists(3))

	err = r.Apply(&models.PeerInactivityEvent{PeerID: 3})
	require.ErrorIs(t, err, ErrNotFound)

	err = r.Apply("peer.map")
	require.ErrorIs(t, err, models.ErrUnknownEventType)
}

func TestSecurityIndication(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 4, macA, 0)

	require.NoError(t, r.OnSecurityIndication(&models.SecurityIndicationEvent{
		PeerID:     4,
		SecType:    models.SecTypeTKIP,
		Unicast:    true,
		MichaelKey: [2]uint32{0xdead, 0xbeef},
		RxPN:       [4]uint32{1, 2, 3, 4},
	}))
	require.NoError(t, r.OnSecurityIndication(&models.SecurityIndicationEvent{
		PeerID:  4,
		SecType: models.SecTypeAESCCMP,
	}))

	ref, ok := r.FindByID(4)
	require.True(t, ok)
	defer ref.Release()

	ucast := ref.Security(true)
	assert.Equal(t, models.SecTypeTKIP, ucast.Type)
	assert.Equal(t, [2]uint32{0xdead, 0xbeef}, ucast.MichaelKey)
	assert.Equal(t, [4]uint32{1, 2, 3, 4}, ucast.RxPN)

	assert.Equal(t, models.SecTypeAESCCMP, ref.Security(false).Type)

	err := r.OnSecurityIndication(&models.SecurityIndicationEvent{PeerID: 9})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInactivityUpdate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(t, WithClock(func() time.Time { return now }))

	mapPeer(t, r, 4, macA, 0)

	require.NoError(t, r.OnInactivityUpdate(&models.PeerInactivityEvent{PeerID: 4, InactiveSeconds: 30}))

	ref, ok := r.FindByID(4)
	require.True(t, ok)
	defer ref.Release()

	assert.Equal(t, uint32(30), ref.InactiveSeconds())

	stats := r.Stats(true)
	require.Len(t, stats.Peers, 1)
	assert.True(t, now.Add(-30*time.Second).Equal(stats.Peers[0].LastActivity))

	ref.MarkActive()
	assert.Equal(t, uint32(0), ref.InactiveSeconds())
}

func TestLockScopeView(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 1, macA, 0)
	mapPeer(t, r, 2, macB, 1)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 1, MAC: macX, Type: models.ASTTypeWDS}))

	held, ok := r.FindByID(2)
	require.True(t, ok)
	defer held.Release()

	require.NoError(t, r.DeletePeer(2))

	require.NoError(t, r.LockScope(0, func(v ScopeView) {
		assert.Equal(t, models.PdevID(0), v.PdevID())

		info, found := v.PeerByMAC(macA)
		require.True(t, found)
		assert.Equal(t, models.PeerID(1), info.ID)

		_, found = v.PeerByMAC(macB)
		assert.False(t, found, "delete-pending peers are not returned")

		ast, found := v.ASTByVdev(0, macX)
		require.True(t, found)
		assert.Equal(t, models.PeerID(1), ast.PeerID)

		pending := 0
		v.ForEachPeer(func(_ PeerInfo, deletePending bool) {
			if deletePending {
				pending++
			}
		})
		assert.Equal(t, 1, pending)
	}))

	require.ErrorIs(t, r.LockScope(5, func(ScopeView) {}), ErrUnknownPdev)
}

func TestApplyOnRejectsEventsForAnotherPdev(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 3, macA, 0)
	mapPeer(t, r, 4, macB, 2)

	err := r.ApplyOn(1, &models.PeerMapEvent{PeerID: 5, VdevID: 0, MAC: macC})
	require.ErrorIs(t, err, ErrPdevMismatch)
	assert.False(t, r.Exists(5))

	err = r.ApplyOn(1, &models.ASTMapEvent{PeerID: 3, VdevID: 0, MAC: macX})
	require.ErrorIs(t, err, ErrPdevMismatch)

	err = r.ApplyOn(0, &models.ASTMapEvent{PeerID: 4, VdevID: 0, MAC: macX})
	require.ErrorIs(t, err, ErrPdevMismatch, "peer 4 lives on pdev 1")

	_, ok := r.FindASTSoc(macX)
	assert.False(t, ok)

	err = r.ApplyOn(1, &models.ASTUnmapEvent{VdevID: 1, MAC: macX})
	require.ErrorIs(t, err, ErrPdevMismatch)

	err = r.ApplyOn(1, &models.PeerInactivityEvent{PeerID: 3, InactiveSeconds: 5})
	require.ErrorIs(t, err, ErrPdevMismatch)

	err = r.ApplyOn(0, &models.PeerUnmapEvent{PeerID: 4, VdevID: 2, MAC: macB})
	require.ErrorIs(t, err, ErrPdevMismatch)
	assert.True(t, r.Exists(4))

	require.NoError(t, r.ApplyOn(1, &models.PeerInactivityEvent{PeerID: 4, InactiveSeconds: 5}))
	require.NoError(t, r.ApplyOn(0, &models.PeerMapEvent{PeerID: 5, VdevID: 1, MAC: macC}))
	assert.True(t, r.Exists(5))

	// Unknown vdevs and peers are reported by the handler itself.
	require.ErrorIs(t, r.ApplyOn(0, &models.ASTUnmapEvent{VdevID: 7, MAC: macX}), ErrUnknownVdev)
	require.ErrorIs(t, r.ApplyOn(0, &models.SecurityIndicationEvent{PeerID: 9}), ErrNotFound)
}
