// Package registry tracks wireless peers and their address-translation (AST)
// entries as the firmware maps and unmaps them.
//
// Peers live in a fixed pool and are looked up by firmware peer ID or by MAC
// within a radio (pdev). Every successful lookup returns a counted reference
// that the caller must Release. Deleting a peer only marks it delete-pending:
// its storage is reclaimed, and its ID and MAC index entries removed, when the
// last reference is released.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

type vdevInfo struct {
	pdev    models.PdevID
	selfMAC models.MACAddress
	peers   int
}

// Registry is safe for concurrent use.
type Registry struct {
	cfg    Config
	logger logger.Logger
	pool   *Pool
	ids    *peerIDTable
	scopes []*scope

	// Lock order: scope.mu before vdevMu.
	vdevMu sync.RWMutex
	vdevs  map[models.VdevID]*vdevInfo

	notifier Notifier
	fw       FirmwareOps
	now      func() time.Time
	metrics  *registryMetrics
}

type Option func(*Registry)

func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

func WithFirmwareOps(fw FirmwareOps) Option {
	return func(r *Registry) { r.fw = fw }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(cfg *Config, log logger.Logger, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := *cfg
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	r := &Registry{
		cfg:    c,
		logger: log.WithComponent("registry"),
		pool:   NewPool(c.MaxPeers, c.MaxASTEntries),
		ids:    newPeerIDTable(c.MaxPeers),
		scopes: make([]*scope, c.NumPdevs),
		vdevs:  make(map[models.VdevID]*vdevInfo),
		now:    time.Now,
	}

	for i := range r.scopes {
		r.scopes[i] = newScope(models.PdevID(i))
	}

	for _, opt := range opts {
		opt(r)
	}

	r.pool.now = r.now
	r.metrics = newRegistryMetrics(r)

	return r, nil
}

// Config returns the effective configuration.
func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) scope(pdev models.PdevID) (*scope, error) {
	if int(pdev) >= len(r.scopes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPdev, pdev)
	}

	return r.scopes[pdev], nil
}

// AttachVdev registers a virtual interface on a radio. selfMAC is the
// interface's own address; the peer mapped with it gets a SELF AST entry.
func (r *Registry) AttachVdev(vdev models.VdevID, pdev models.PdevID, selfMAC models.MACAddress) error {
	if int(pdev) >= len(r.scopes) {
		return fmt.Errorf("%w: %d", ErrUnknownPdev, pdev)
	}

	r.vdevMu.Lock()
	defer r.vdevMu.Unlock()

	if v, ok := r.vdevs[vdev]; ok {
		if v.pdev != pdev && v.peers > 0 {
			return fmt.Errorf("%w: vdev %d has %d peers on pdev %d", ErrVdevBusy, vdev, v.peers, v.pdev)
		}

		v.pdev = pdev
		v.selfMAC = selfMAC

		return nil
	}

	r.vdevs[vdev] = &vdevInfo{pdev: pdev, selfMAC: selfMAC}

	r.logger.Info().
		Uint8("vdev_id", uint8(vdev)).
		Uint8("pdev_id", uint8(pdev)).
		Str("self_mac", selfMAC.String()).
		Msg("vdev attached")

	return nil
}

// DetachVdev forgets a virtual interface. It fails while any peer, including
// a delete-pending one, still belongs to it.
func (r *Registry) DetachVdev(vdev models.VdevID) error {
	r.vdevMu.Lock()
	defer r.vdevMu.Unlock()

	v, ok := r.vdevs[vdev]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVdev, vdev)
	}

	if v.peers > 0 {
		return fmt.Errorf("%w: vdev %d has %d peers", ErrVdevBusy, vdev, v.peers)
	}

	delete(r.vdevs, vdev)

	r.logger.Info().Uint8("vdev_id", uint8(vdev)).Msg("vdev detached")

	return nil
}

func (r *Registry) lookupVdev(vdev models.VdevID) (vdevInfo, error) {
	r.vdevMu.RLock()
	defer r.vdevMu.RUnlock()

	v, ok := r.vdevs[vdev]
	if !ok {
		return vdevInfo{}, fmt.Errorf("%w: %d", ErrUnknownVdev, vdev)
	}

	return *v, nil
}

// adjustVdevPeers is called with the scope lock held.
func (r *Registry) adjustVdevPeers(vdev models.VdevID, delta int) error {
	r.vdevMu.Lock()
	defer r.vdevMu.Unlock()

	v, ok := r.vdevs[vdev]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVdev, vdev)
	}

	v.peers += delta

	return nil
}

// violation applies the invariant policy: panic in strict mode, otherwise log,
// count and hand the error back so the caller can skip the operation.
func (r *Registry) violation(err error) error {
	r.metrics.recordViolation()

	if r.cfg.StrictInvariants {
		panic(err)
	}

	r.logger.Error().Err(err).Msg("registry invariant violation")

	return err
}

// completion is a notifier call deferred until locks are dropped.
type completion struct {
	peer      *PeerInfo
	ast       *ASTInfo
	astStatus models.ASTFreeStatus
}

func (r *Registry) deliver(done []completion) {
	if r.notifier == nil {
		return
	}

	for _, c := range done {
		switch {
		case c.peer != nil:
			r.notifier.PeerReclaimed(*c.peer)
		case c.ast != nil:
			r.notifier.ASTFreed(*c.ast, c.astStatus)
		}
	}
}

func validKeyMAC(mac models.MACAddress) error {
	if mac.IsZero() || mac.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrInvalidMAC, mac)
	}

	return nil
}
