package models

import "time"

// RegistryStats is the diagnostics dump of the peer/AST registry.
type RegistryStats struct {
	GeneratedAt    time.Time    `json:"generated_at"`
	PeerCapacity   int          `json:"peer_capacity"`
	PeersInUse     int          `json:"peers_in_use"`
	ASTCapacity    int          `json:"ast_capacity"`
	ASTInUse       int          `json:"ast_in_use"`
	ASTFreePending int          `json:"ast_free_pending"`
	Scopes         []ScopeStats `json:"scopes"`
	Peers          []PeerStats  `json:"peers,omitempty"`
}

// ScopeStats is the occupancy of one radio scope.
type ScopeStats struct {
	PdevID             PdevID         `json:"pdev_id"`
	ActivePeers        int            `json:"active_peers"`
	DeletePendingPeers int            `json:"delete_pending_peers"`
	ASTEntries         int            `json:"ast_entries"`
	ASTByType          map[string]int `json:"ast_by_type,omitempty"`
}

// PeerStats reports one peer's outstanding references and age.
type PeerStats struct {
	PeerID          PeerID     `json:"peer_id"`
	MAC             MACAddress `json:"mac"`
	VdevID          VdevID     `json:"vdev_id"`
	PdevID          PdevID     `json:"pdev_id"`
	RefCount        int        `json:"ref_count"`
	DeletePending   bool       `json:"delete_pending"`
	PendingForMs    int64      `json:"pending_for_ms,omitempty"`
	ASTCount        int        `json:"ast_count"`
	MappedAt        time.Time  `json:"mapped_at"`
	LastActivity    time.Time  `json:"last_activity"`
	InactiveSeconds uint32     `json:"inactive_seconds"`
}
