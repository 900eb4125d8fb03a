package registry

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/carverauto/astreg/pkg/registry Notifier,FirmwareOps

import (
	"time"

	"github.com/carverauto/astreg/pkg/models"
)

// Notifier receives asynchronous completions. Calls are made after the
// registry has dropped its locks, from whichever goroutine completed the
// operation.
type Notifier interface {
	// PeerReclaimed fires once per peer, after its slot returned to the pool.
	PeerReclaimed(info PeerInfo)
	// ASTFreed fires when an AST entry's storage has been released.
	ASTFreed(info ASTInfo, status models.ASTFreeStatus)
}

// FirmwareOps issues WDS table commands for host-initiated AST changes. It is
// called with the scope lock held and must not block or call back into the
// registry.
type FirmwareOps interface {
	AddWDSEntry(info ASTInfo) error
	UpdateWDSEntry(info ASTInfo) error
	DeleteWDSEntry(info ASTInfo) error
}

// PeerInfo is a copy of a peer's identity.
type PeerInfo struct {
	ID       models.PeerID     `json:"peer_id"`
	MAC      models.MACAddress `json:"mac"`
	VdevID   models.VdevID     `json:"vdev_id"`
	PdevID   models.PdevID     `json:"pdev_id"`
	HWPeerID uint16            `json:"hw_peer_id"`
	ASTHash  uint16            `json:"ast_hash"`
	MappedAt time.Time         `json:"mapped_at"`
}

// ASTInfo is a copy of an AST entry.
type ASTInfo struct {
	MAC         models.MACAddress `json:"mac"`
	PdevID      models.PdevID     `json:"pdev_id"`
	VdevID      models.VdevID     `json:"vdev_id"`
	PeerID      models.PeerID     `json:"peer_id"`
	Type        models.ASTType    `json:"type"`
	ASTHash     uint16            `json:"ast_hash"`
	Mapped      bool              `json:"mapped"`
	NextHop     bool              `json:"next_hop"`
	FreePending bool              `json:"free_pending,omitempty"`
}

// SecurityInfo is the last cipher state the firmware indicated for one
// direction of a peer.
type SecurityInfo struct {
	Type       models.SecType `json:"sec_type"`
	MichaelKey [2]uint32      `json:"michael_key"`
	RxPN       [4]uint32      `json:"rx_pn"`
}

func (rec *astRecord) info() ASTInfo {
	return ASTInfo{
		MAC:         rec.mac,
		PdevID:      rec.pdev,
		VdevID:      rec.vdev,
		PeerID:      rec.peerID,
		Type:        rec.typ,
		ASTHash:     rec.astHash,
		Mapped:      rec.mapped,
		NextHop:     rec.nextHop,
		FreePending: rec.freePending,
	}
}

// info reads identity fields; the caller holds a reference or the scope lock.
func (rec *peerRecord) info() PeerInfo {
	fw := rec.fwIndex.Load()

	return PeerInfo{
		ID:       rec.id,
		MAC:      rec.mac,
		VdevID:   rec.vdev,
		PdevID:   rec.pdev,
		HWPeerID: uint16(fw >> 16),
		ASTHash:  uint16(fw),
		MappedAt: rec.mappedAt,
	}
}

func packFWIndex(hwPeerID, astHash uint16) uint32 {
	return uint32(hwPeerID)<<16 | uint32(astHash)
}
