package conscience

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

// TypeConfig is how one service type is declared at startup, the
// moral equivalent of conscience_srvtype_init's defaults plus whatever a
// deployment overrides via config.
type TypeConfig struct {
	Type                string
	ScoreExpr           string
	ScoreExpiration     time.Duration
	ScoreVariationBound int32
	AlertFrequencyLimit time.Duration
}

// Conscience owns one Registry per declared service type and runs the
// periodic expiry sweep, mirroring how the source's conscience_s fans out
// per-type work across its srvtype registries.
type Conscience struct {
	mu         sync.RWMutex
	registries map[string]*Registry

	st       *stats.Registry
	running  atomic.Bool
	stopCh   chan struct{}
	sweepTick time.Duration
}

func New(st *stats.Registry, sweepTick time.Duration) *Conscience {
	if sweepTick <= 0 {
		sweepTick = 10 * time.Second
	}
	return &Conscience{
		registries: make(map[string]*Registry),
		st:         st,
		sweepTick:  sweepTick,
		stopCh:     make(chan struct{}),
	}
}

// DeclareType registers a new service type, parsing its score expression
// once up front so a malformed config fails at startup, not on the first
// registration.
func (c *Conscience) DeclareType(tc TypeConfig) error {
	expr, err := ParseScoreExpr(tc.ScoreExpr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.registries[tc.Type]; exists {
		return fmt.Errorf("conscience: type %q already declared", tc.Type)
	}
	c.registries[tc.Type] = NewRegistry(tc.Type, expr, tc.ScoreExpiration, tc.ScoreVariationBound, tc.AlertFrequencyLimit, c.st)
	glog.Infof("conscience: declared type %q vars=%v", tc.Type, expr.Vars())
	return nil
}

func (c *Conscience) registryFor(typ string) (*Registry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.registries[typ]
	return r, ok
}

func (c *Conscience) Register(info ServiceInfo, keepScore bool) (*Snapshot, error) {
	r, ok := c.registryFor(info.ID.Type)
	if !ok {
		return nil, cmn.ErrBadRequest("conscience: unknown service type %q", info.ID.Type)
	}
	return r.Register(info, keepScore), nil
}

func (c *Conscience) Lock(id ServiceID) error {
	r, ok := c.registryFor(id.Type)
	if !ok || !r.Lock(id) {
		return cmn.ErrContentNotFound("conscience: service %s not found", id)
	}
	return nil
}

func (c *Conscience) Unlock(id ServiceID) error {
	r, ok := c.registryFor(id.Type)
	if !ok || !r.Unlock(id) {
		return cmn.ErrContentNotFound("conscience: service %s not found", id)
	}
	return nil
}

func (c *Conscience) List(typ string, includeExpired bool) ([]*Snapshot, error) {
	r, ok := c.registryFor(typ)
	if !ok {
		return nil, cmn.ErrBadRequest("conscience: unknown service type %q", typ)
	}
	return r.List(includeExpired), nil
}

func (c *Conscience) Best(typ string) (*Snapshot, error) {
	r, ok := c.registryFor(typ)
	if !ok {
		return nil, cmn.ErrBadRequest("conscience: unknown service type %q", typ)
	}
	best, found := r.Best()
	if !found {
		return nil, cmn.ErrNSImpossible("conscience: no available service of type %q", typ)
	}
	return best, nil
}

// Run starts the background expiry sweep; it blocks until Stop is called.
func (c *Conscience) Run() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(c.sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Conscience) sweepOnce() {
	c.mu.RLock()
	regs := make([]*Registry, 0, len(c.registries))
	for _, r := range c.registries {
		regs = append(regs, r)
	}
	c.mu.RUnlock()
	for _, r := range regs {
		if n := r.RemoveExpired(); n > 0 {
			glog.Infof("conscience: %s: expired %d services", r.Type, n)
		}
	}
}

func (c *Conscience) Stop() {
	if c.running.CompareAndSwap(true, false) {
		close(c.stopCh)
	}
}
