package registry

import (
	"errors"
	"fmt"

	"github.com/carverauto/astreg/pkg/models"
)

const (
	DefaultMaxPeers      = 1024
	DefaultMaxASTEntries = 4096
	DefaultNumPdevs      = 3

	maxPdevs = 256
)

// Config sizes the registry. Capacities are fixed for the registry's lifetime.
type Config struct {
	MaxPeers      int `json:"max_peers"`
	MaxASTEntries int `json:"max_ast_entries"`
	NumPdevs      int `json:"num_pdevs"`

	// StrictInvariants panics on an invariant violation (double release,
	// reclaim with outstanding references). When false the violation is logged,
	// counted and the offending operation is skipped.
	StrictInvariants bool `json:"strict_invariants"`
}

func DefaultConfig() *Config {
	return &Config{
		MaxPeers:      DefaultMaxPeers,
		MaxASTEntries: DefaultMaxASTEntries,
		NumPdevs:      DefaultNumPdevs,
	}
}

// ApplyDefaults fills zero-valued sizes.
func (c *Config) ApplyDefaults() {
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}

	if c.MaxASTEntries == 0 {
		c.MaxASTEntries = DefaultMaxASTEntries
	}

	if c.NumPdevs == 0 {
		c.NumPdevs = DefaultNumPdevs
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.MaxPeers <= 0 || c.MaxPeers > int(models.InvalidPeerID) {
		errs = append(errs, fmt.Errorf("max_peers must be in [1, %d], got %d", int(models.InvalidPeerID), c.MaxPeers))
	}

	if c.MaxASTEntries <= 0 {
		errs = append(errs, fmt.Errorf("max_ast_entries must be positive, got %d", c.MaxASTEntries))
	}

	if c.NumPdevs <= 0 || c.NumPdevs > maxPdevs {
		errs = append(errs, fmt.Errorf("num_pdevs must be in [1, %d], got %d", maxPdevs, c.NumPdevs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}
