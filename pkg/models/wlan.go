package models

import (
	"fmt"
	"strings"
)

// PeerID is the firmware-assigned dense peer index.
type PeerID uint16

// InvalidPeerID marks an unbound peer slot.
const InvalidPeerID PeerID = 0xffff

// PdevID identifies a physical radio. MAC and AST lookups are partitioned by it.
type PdevID uint8

// VdevID identifies a virtual interface. IDs are unique across radios.
type VdevID uint8

// ASTType is the closed set of address-translation entry kinds.
type ASTType uint8

const (
	ASTTypeNone ASTType = iota
	ASTTypeStatic
	ASTTypeSelf
	ASTTypeWDS
	ASTTypeMEC
	ASTTypeWDSHM
	ASTTypeSTABSS
	ASTTypeDA
	ASTTypeWDSHMSec
	astTypeMax
)

//nolint:gochecknoglobals // lookup table
var astTypeNames = [...]string{
	ASTTypeNone:     "none",
	ASTTypeStatic:   "static",
	ASTTypeSelf:     "self",
	ASTTypeWDS:      "wds",
	ASTTypeMEC:      "mec",
	ASTTypeWDSHM:    "wds_hm",
	ASTTypeSTABSS:   "sta_bss",
	ASTTypeDA:       "da",
	ASTTypeWDSHMSec: "wds_hm_sec",
}

func (t ASTType) String() string {
	if t < astTypeMax {
		return astTypeNames[t]
	}

	return fmt.Sprintf("ast_type(%d)", uint8(t))
}

func (t ASTType) Valid() bool {
	return t < astTypeMax
}

// IsStatic reports whether the entry is pinned to its peer. Static entries are
// never re-pointed by roaming or update requests.
func (t ASTType) IsStatic() bool {
	return t == ASTTypeStatic || t == ASTTypeSelf || t == ASTTypeSTABSS
}

// NeedsFirmwareCleanup reports whether removing the entry requires a WDS
// delete round-trip with the firmware before storage can be released.
func (t ASTType) NeedsFirmwareCleanup() bool {
	switch t {
	case ASTTypeWDS, ASTTypeMEC, ASTTypeWDSHM, ASTTypeWDSHMSec, ASTTypeDA:
		return true
	default:
		return false
	}
}

func ParseASTType(s string) (ASTType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range astTypeNames {
		if n == name {
			return ASTType(i), nil
		}
	}

	return ASTTypeNone, fmt.Errorf("unknown AST type %q", s)
}

func (t ASTType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ASTType) UnmarshalText(text []byte) error {
	parsed, err := ParseASTType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// ASTFreeStatus is reported to the notifier when an AST entry's storage is released.
type ASTFreeStatus uint8

const (
	// ASTFreeSuccess: the firmware acknowledged the delete.
	ASTFreeSuccess ASTFreeStatus = iota
	// ASTFreeDeleted: the entry went away with its peer before the firmware answered.
	ASTFreeDeleted
)

func (s ASTFreeStatus) String() string {
	if s == ASTFreeDeleted {
		return "deleted"
	}

	return "success"
}

// SecType is the cipher reported by a firmware security indication.
type SecType uint8

const (
	SecTypeNone SecType = iota
	SecTypeWEP
	SecTypeTKIP
	SecTypeTKIPNoMIC
	SecTypeAESCCMP
	SecTypeWAPI
	SecTypeAESCCMP256
	SecTypeAESGCMP
	SecTypeAESGCMP256
)
