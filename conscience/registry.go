package conscience

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/GuillaumeDelaporte/oio-sds/cmn/debug"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

// Registry tracks every registered instance of one service type, the way
// conscience_srvtype_s does: a name, a scoring expression, and the knobs
// (score_expiration, score_variation_bound, alert_frequency_limit) that
// shape how raw tag reports become a stable, comparable score.
type Registry struct {
	Type string

	mu       sync.RWMutex
	services map[ServiceID]*trackedService

	scoreExpr        *ScoreExpr
	scoreExpiration  time.Duration
	variationBound   int32
	alertFreqLimit   time.Duration

	st *stats.Registry
}

func NewRegistry(typ string, expr *ScoreExpr, scoreExpiration time.Duration, variationBound int32, alertFreqLimit time.Duration, st *stats.Registry) *Registry {
	return &Registry{
		Type:            typ,
		services:        make(map[ServiceID]*trackedService),
		scoreExpr:       expr,
		scoreExpiration: scoreExpiration,
		variationBound:  variationBound,
		alertFreqLimit:  alertFreqLimit,
		st:              st,
	}
}

// Register creates or refreshes a service. keepScore mirrors
// conscience_srvtype_refresh's keep_score flag: when true the existing
// score is preserved and only lastUpdate advances (used for a
// lock/unlock notification that carries no fresh tags).
func (r *Registry) Register(info ServiceInfo, keepScore bool) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ts, ok := r.services[info.ID]
	if !ok {
		ts = &trackedService{info: info, lastUpdate: now}
		r.services[info.ID] = ts
		if r.st != nil {
			r.st.ConscienceRegister.Inc()
		}
	} else {
		ts.info = info
		ts.lastUpdate = now
		if r.st != nil {
			r.st.ConscienceRegister.Inc()
		}
	}

	if !keepScore {
		next := r.scoreExpr.Eval(info.Tags)
		clamped := clampVariation(ts.score, next, r.variationBound)
		if r.st != nil {
			delta := clamped - ts.score
			if delta < 0 {
				delta = -delta
			}
			r.st.ConscienceScoreBump.Observe(float64(delta))
		}
		debug.Assertf(clamped >= 0 && clamped <= 100, "clamped score %d out of range", clamped)
		ts.score = clamped
	}

	if ts.score == 0 && now.Sub(ts.lastAlert) >= r.alertFreqLimit {
		glog.Warningf("conscience: %s scored 0", info.ID)
		ts.lastAlert = now
	}

	return snapshotOf(ts)
}

func snapshotOf(ts *trackedService) *Snapshot {
	return &Snapshot{ID: ts.info.ID, Score: ts.score, Locked: ts.locked, LastUpdate: ts.lastUpdate}
}

// Lock/Unlock implement administrative exclusion from selection without
// touching the service's score or tags - the registry still tracks it for
// expiry purposes.
func (r *Registry) Lock(id ServiceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.services[id]
	if !ok {
		return false
	}
	ts.locked = true
	return true
}

func (r *Registry) Unlock(id ServiceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.services[id]
	if !ok {
		return false
	}
	ts.locked = false
	return true
}

func (r *Registry) Get(id ServiceID) (*Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.services[id]
	if !ok {
		return nil, false
	}
	return snapshotOf(ts), true
}

// List returns every tracked service, optionally excluding ones whose
// score_expiration has elapsed.
func (r *Registry) List(includeExpired bool) []*Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	out := make([]*Snapshot, 0, len(r.services))
	for _, ts := range r.services {
		if !includeExpired && ts.expired(r.scoreExpiration, now) {
			continue
		}
		out = append(out, snapshotOf(ts))
	}
	return out
}

// RemoveExpired deletes every service whose score_expiration has elapsed
// and returns how many were removed - conscience_srvtype_remove_expired.
func (r *Registry) RemoveExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, ts := range r.services {
		if ts.expired(r.scoreExpiration, now) {
			delete(r.services, id)
			removed++
		}
	}
	if removed > 0 && r.st != nil {
		r.st.ConscienceExpire.Add(float64(removed))
	}
	return removed
}

func (r *Registry) Remove(id ServiceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, id)
}

func (r *Registry) Count(includeExpired bool) int {
	return len(r.List(includeExpired))
}

// Best returns the highest-scored unlocked, unexpired service - the
// selection every resolver/gateway lookup ultimately needs.
func (r *Registry) Best() (*Snapshot, bool) {
	candidates := r.List(false)
	var best *Snapshot
	for _, c := range candidates {
		if c.Locked {
			continue
		}
		if best == nil || c.Score > best.Score {
			best = c
		}
	}
	return best, best != nil
}
