package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/astreg/pkg/models"
)

func TestASTCascadeOnPeerDelete(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))

	ast, ok := r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(5), ast.PeerID())
	assert.Equal(t, models.PeerID(5), ast.Peer().ID())
	assert.Equal(t, models.ASTTypeWDS, ast.Type())
	ast.Release()

	peer, ok := r.FindByID(5)
	require.True(t, ok)

	list := r.PeerASTList(peer)
	require.Len(t, list, 2)
	assert.Equal(t, macA, list[0].MAC)
	assert.Equal(t, models.ASTTypeStatic, list[0].Type)
	assert.Equal(t, macX, list[1].MAC)
	peer.Release()

	require.NoError(t, r.DeletePeer(5))

	_, ok = r.FindAST(macX, 0)
	assert.False(t, ok)

	require.NoError(t, r.LockScope(0, func(v ScopeView) {
		_, found := v.AST(macX)
		assert.False(t, found, "entry must leave the index, not only be hidden")
	}))

	assert.Equal(t, 0, r.Stats(false).ASTInUse)
}

func TestASTRoamsBetweenPeers(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 0)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macZ, Type: models.ASTTypeWDS}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macZ, Type: models.ASTTypeWDS}), "re-adding revalidates")
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 6, MAC: macZ, Type: models.ASTTypeWDS, NextHop: true}))

	ast, ok := r.FindAST(macZ, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(6), ast.PeerID())
	assert.True(t, ast.NextHop())
	ast.Release()

	p5, ok := r.FindByID(5)
	require.True(t, ok)
	defer p5.Release()

	_, found := r.PeerASTFind(p5, macZ)
	assert.False(t, found)

	p6, ok := r.FindByID(6)
	require.True(t, ok)
	defer p6.Release()

	info, found := r.PeerASTFind(p6, macZ)
	require.True(t, found)
	assert.Equal(t, models.PeerID(6), info.PeerID)
	assert.Equal(t, 3, r.Stats(false).ASTInUse)
}

func TestStaticASTConflicts(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 0)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macY, Type: models.ASTTypeStatic}))

	err := r.AddAST(ASTRequest{PeerID: 6, MAC: macY, Type: models.ASTTypeWDS})
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	err = r.UpdateAST(ASTRequest{PeerID: 6, MAC: macY})
	require.ErrorIs(t, err, ErrStaticAST)

	err = r.OnASTMap(&models.ASTMapEvent{PeerID: 6, VdevID: 0, MAC: macA})
	require.ErrorIs(t, err, ErrDuplicateIdentity, "a peer's own address cannot roam")

	err = r.DeleteAST(0, macA)
	require.ErrorIs(t, err, ErrStaticAST)

	require.NoError(t, r.DeleteAST(0, macY), "operator static entries can be removed")

	err = r.AddAST(ASTRequest{PeerID: 5, MAC: macZ, Type: models.ASTTypeSelf})
	require.ErrorIs(t, err, ErrInvalidASTType)
}

func TestASTDeleteWaitsForFirmware(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	notifier := NewMockNotifier(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw), WithNotifier(notifier))

	mapPeer(t, r, 5, macA, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).DoAndReturn(func(info ASTInfo) error {
		assert.Equal(t, macX, info.MAC)
		assert.Equal(t, models.PeerID(5), info.PeerID)

		return nil
	})
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))

	fw.EXPECT().DeleteWDSEntry(gomock.Any()).DoAndReturn(func(info ASTInfo) error {
		assert.True(t, info.FreePending)
		return nil
	})
	require.NoError(t, r.DeleteAST(0, macX))

	_, ok := r.FindAST(macX, 0)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Stats(false).ASTFreePending)
	assert.Equal(t, 2, r.Stats(false).ASTInUse)

	notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeSuccess).Do(func(info ASTInfo, _ models.ASTFreeStatus) {
		assert.Equal(t, macX, info.MAC)
	}).Times(1)

	require.NoError(t, r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: 0, MAC: macX}))

	assert.Equal(t, 0, r.Stats(false).ASTFreePending)
	assert.Equal(t, 1, r.Stats(false).ASTInUse)
}

func TestFreePendingASTOutlivedByPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	notifier := NewMockNotifier(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw), WithNotifier(notifier))

	mapPeer(t, r, 5, macA, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).Return(nil)
	fw.EXPECT().DeleteWDSEntry(gomock.Any()).Return(nil)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.DeleteAST(0, macX))

	notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeDeleted).Times(1)
	notifier.EXPECT().PeerReclaimed(gomock.Any()).Times(1)

	require.NoError(t, r.DeletePeer(5))

	err := r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: 0, MAC: macX})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, r.Stats(false).ASTInUse)
}

func TestFirmwareRejectsWDSAdd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw))

	mapPeer(t, r, 5, macA, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).Return(errors.New("wmi queue full"))

	err := r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS})
	require.Error(t, err)

	_, ok := r.FindAST(macX, 0)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Stats(false).ASTInUse)

	// Host-only entry types never reach the firmware.
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macY, Type: models.ASTTypeStatic}))
}

func TestFirmwareDeleteFailureFreesLocally(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	notifier := NewMockNotifier(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw), WithNotifier(notifier))

	mapPeer(t, r, 5, macA, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).Return(nil)
	fw.EXPECT().DeleteWDSEntry(gomock.Any()).Return(errors.New("target asleep"))
	notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeSuccess).Times(1)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.DeleteAST(0, macX))

	assert.Equal(t, 0, r.Stats(false).ASTFreePending)
}

func TestFirmwareASTEvents(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 0)

	require.NoError(t, r.OnPeerMap(&models.PeerMapEvent{PeerID: 5, VdevID: 0, MAC: macX, ASTHash: 0x41, IsWDS: true}))

	ast, ok := r.FindASTByVdev(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.ASTTypeWDS, ast.Type())
	assert.True(t, ast.Info().Mapped)
	assert.Equal(t, uint16(0x41), ast.Info().ASTHash)
	ast.Release()

	require.NoError(t, r.OnASTUpdate(&models.ASTUpdateEvent{PeerID: 6, VdevID: 0, MAC: macX, Type: models.ASTTypeWDSHM, NextHop: true}))

	ast, ok = r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(6), ast.PeerID())
	assert.Equal(t, models.ASTTypeWDSHM, ast.Type())
	assert.True(t, ast.NextHop())
	ast.Release()

	require.NoError(t, r.OnASTMap(&models.ASTMapEvent{PeerID: 5, VdevID: 0, MAC: macX, ASTHash: 0x42}))

	ast, ok = r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(5), ast.PeerID(), "firmware map moves a dynamic entry")
	ast.Release()

	require.NoError(t, r.OnPeerUnmap(&models.PeerUnmapEvent{PeerID: 5, VdevID: 0, MAC: macX, IsWDS: true}))

	_, ok = r.FindAST(macX, 0)
	assert.False(t, ok)
	assert.True(t, r.Exists(5), "a WDS unmap leaves the peer alone")

	err := r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: 0, MAC: macA})
	require.ErrorIs(t, err, ErrStaticAST)

	err = r.OnASTUpdate(&models.ASTUpdateEvent{PeerID: 5, VdevID: 0, MAC: macZ})
	require.ErrorIs(t, err, ErrNotFound)

	err = r.OnASTMap(&models.ASTMapEvent{PeerID: 9, VdevID: 0, MAC: macZ})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindASTScoping(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 1, macA, 0)
	mapPeer(t, r, 2, macB, 1)
	mapPeer(t, r, 3, macC, 2)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 1, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 3, MAC: macX, Type: models.ASTTypeDA}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 3, MAC: macY, Type: models.ASTTypeMEC}))

	byVdev, ok := r.FindASTByVdev(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(1), byVdev.PeerID())
	byVdev.Release()

	_, ok = r.FindASTByVdev(macX, 1)
	assert.False(t, ok)

	_, ok = r.FindAST(macY, 0)
	assert.False(t, ok, "pdev scopes are independent")

	soc, ok := r.FindASTSoc(macY)
	require.True(t, ok)
	assert.Equal(t, models.PdevID(1), soc.PdevID())
	soc.Release()

	// The same address behind a peer on another radio is a separate entry.
	other, ok := r.FindAST(macX, 1)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(3), other.PeerID())
	other.Release()

	// Deleting the owner drops its entries from the chain.
	owner, ok := r.FindByID(1)
	require.True(t, ok)
	require.NoError(t, r.DeletePeer(1))

	_, ok = r.FindAST(macX, 0)
	assert.False(t, ok)

	kept, ok := r.FindAST(macX, 1)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(3), kept.PeerID())
	kept.Release()
	owner.Release()
}

func TestASTRoamsAcrossVdevs(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 1)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	inUse := r.Stats(false).ASTInUse

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 6, MAC: macX, Type: models.ASTTypeWDS}))

	ast, ok := r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(6), ast.PeerID())
	assert.Equal(t, models.VdevID(1), ast.Info().VdevID)
	ast.Release()

	assert.Equal(t, inUse, r.Stats(false).ASTInUse, "a roam re-points the entry instead of adding one")

	_, ok = r.FindASTByVdev(macX, 0)
	assert.False(t, ok)

	// Firmware maps on another vdev move the entry back.
	require.NoError(t, r.OnASTMap(&models.ASTMapEvent{PeerID: 5, VdevID: 0, MAC: macX, ASTHash: 7}))

	ast, ok = r.FindASTByVdev(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(5), ast.PeerID())
	ast.Release()

	require.NoError(t, r.OnASTUpdate(&models.ASTUpdateEvent{PeerID: 6, VdevID: 1, MAC: macX}))

	ast, ok = r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(6), ast.PeerID())
	ast.Release()

	assert.Equal(t, inUse, r.Stats(false).ASTInUse)

	// A station associating directly takes over the learned entry.
	mapPeer(t, r, 7, macX, 0)

	ast, ok = r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(7), ast.PeerID())
	assert.Equal(t, models.VdevID(0), ast.Info().VdevID)
	ast.Release()

	assert.Equal(t, inUse, r.Stats(false).ASTInUse, "the peer reuses the learned entry as its own")
}

func TestStaticASTConflictsAcrossVdevs(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 1)

	err := r.AddAST(ASTRequest{PeerID: 6, MAC: macA, Type: models.ASTTypeWDS})
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	err = r.OnASTMap(&models.ASTMapEvent{PeerID: 6, VdevID: 1, MAC: macA})
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	err = r.OnASTUpdate(&models.ASTUpdateEvent{PeerID: 6, VdevID: 1, MAC: macA})
	require.ErrorIs(t, err, ErrStaticAST)

	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macY, Type: models.ASTTypeStatic}))

	err = r.OnPeerMap(&models.PeerMapEvent{PeerID: 7, VdevID: 1, MAC: macY})
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.False(t, r.Exists(7))

	ast, ok := r.FindAST(macA, 0)
	require.True(t, ok)
	assert.Equal(t, models.PeerID(5), ast.PeerID())
	ast.Release()
}

func TestPeerDeleteSendsWDSDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	notifier := NewMockNotifier(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw), WithNotifier(notifier))

	mapPeer(t, r, 5, macA, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).Return(nil)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macY, Type: models.ASTTypeStatic}))

	held, ok := r.FindByID(5)
	require.True(t, ok)

	fw.EXPECT().DeleteWDSEntry(gomock.Any()).DoAndReturn(func(info ASTInfo) error {
		assert.Equal(t, macX, info.MAC)
		assert.Equal(t, models.PeerID(5), info.PeerID)
		assert.True(t, info.FreePending)

		return nil
	}).Times(1)

	require.NoError(t, r.DeletePeer(5))

	_, ok = r.FindAST(macX, 0)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Stats(false).ASTFreePending)
	assert.Equal(t, 1, r.Stats(false).ASTInUse, "only the WDS entry waits on the firmware")

	notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeSuccess).Do(func(info ASTInfo, _ models.ASTFreeStatus) {
		assert.Equal(t, macX, info.MAC)
	}).Times(1)

	require.NoError(t, r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: 0, MAC: macX}))
	assert.Equal(t, 0, r.Stats(false).ASTFreePending)

	notifier.EXPECT().PeerReclaimed(gomock.Any()).Times(1)
	held.Release()

	assert.Equal(t, 0, r.Stats(false).ASTInUse)
}

func TestPeerReclaimFinishesWDSDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fw := NewMockFirmwareOps(ctrl)
	notifier := NewMockNotifier(ctrl)
	r := newTestRegistry(t, WithFirmwareOps(fw), WithNotifier(notifier))

	mapPeer(t, r, 5, macA, 0)
	mapPeer(t, r, 6, macB, 0)

	fw.EXPECT().AddWDSEntry(gomock.Any()).Return(nil).Times(2)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 6, MAC: macY, Type: models.ASTTypeMEC}))

	gomock.InOrder(
		fw.EXPECT().DeleteWDSEntry(gomock.Any()).Return(nil),
		notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeDeleted).Do(func(info ASTInfo, _ models.ASTFreeStatus) {
			assert.Equal(t, macX, info.MAC)
		}),
		notifier.EXPECT().PeerReclaimed(gomock.Any()),
	)

	require.NoError(t, r.DeletePeer(5))

	err := r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: 0, MAC: macX})
	require.ErrorIs(t, err, ErrNotFound)

	// The firmware refusing the delete frees the entry here instead.
	gomock.InOrder(
		fw.EXPECT().DeleteWDSEntry(gomock.Any()).Return(errors.New("target asleep")),
		notifier.EXPECT().ASTFreed(gomock.Any(), models.ASTFreeSuccess),
		notifier.EXPECT().PeerReclaimed(gomock.Any()),
	)

	require.NoError(t, r.DeletePeer(6))

	assert.Equal(t, 0, r.Stats(false).ASTFreePending)
	assert.Equal(t, 0, r.Stats(false).ASTInUse)
}

func TestASTChangeRacingPeerDelete(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)

	// A reference taken just before the delete must not let new entries
	// attach to the dying peer.
	ref, ok := r.FindByID(5)
	require.True(t, ok)

	require.NoError(t, r.DeletePeer(5))

	err := r.addAST(ref, ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS})
	require.ErrorIs(t, err, ErrNotFound)

	err = r.mapAST(ref, &models.ASTMapEvent{PeerID: 5, VdevID: 0, MAC: macY}, models.ASTTypeWDS)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.LockScope(0, func(v ScopeView) {
		_, found := v.AST(macX)
		assert.False(t, found)

		_, found = v.AST(macY)
		assert.False(t, found)
	}))

	ref.Release()

	assert.Equal(t, 0, r.Stats(false).ASTInUse)
}

func TestFlushPeerAST(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macY, Type: models.ASTTypeMEC}))

	n, err := r.FlushPeerAST(5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	peer, ok := r.FindByID(5)
	require.True(t, ok)
	defer peer.Release()

	list := r.PeerASTList(peer)
	require.Len(t, list, 1)
	assert.Equal(t, macA, list[0].MAC)

	_, err = r.FlushPeerAST(9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetASTType(t *testing.T) {
	r := newTestRegistry(t)

	mapPeer(t, r, 5, macA, 0)
	require.NoError(t, r.AddAST(ASTRequest{PeerID: 5, MAC: macX, Type: models.ASTTypeWDS}))

	require.NoError(t, r.SetASTType(0, macX, models.ASTTypeWDSHMSec))

	ast, ok := r.FindAST(macX, 0)
	require.True(t, ok)
	assert.Equal(t, models.ASTTypeWDSHMSec, ast.Type())
	ast.Release()

	require.ErrorIs(t, r.SetASTType(0, macA, models.ASTTypeWDS), ErrStaticAST)
	require.ErrorIs(t, r.SetASTType(0, macX, models.ASTTypeStatic), ErrInvalidASTType)
	require.ErrorIs(t, r.SetASTType(0, macZ, models.ASTTypeWDS), ErrNotFound)
	require.ErrorIs(t, r.SetASTType(7, macX, models.ASTTypeWDS), ErrUnknownVdev)
}
