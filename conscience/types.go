// Package conscience implements the service registry and scoring plane:
// services of a given type register themselves with raw
// metrics, a per-type expression turns those metrics into a 0-100 score,
// and the gateway/resolver consult the registry to pick a live, healthy
// service. Grounded on original_source/cluster/conscience/conscience_srvtype.h
// (per-type RWLock registry, score_expr/score_variation_bound/
// alert_frequency_limit) and metautils/lib/utils_score.c.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package conscience

import "time"

// ServiceID uniquely names one instance of one service type.
type ServiceID struct {
	Type string
	Addr string
}

func (id ServiceID) String() string { return id.Type + "/" + id.Addr }

// ServiceInfo is what a service reports on each registration: raw tag
// values the score expression reduces to a single number.
type ServiceInfo struct {
	ID   ServiceID
	Tags map[string]float64
}

// trackedService is the registry's internal record for one service,
// mirroring conscience_srv_s: a cached score, the tick it was last
// refreshed on, and whether it has already triggered a zero-score alert.
type trackedService struct {
	info       ServiceInfo
	score      int32
	lastUpdate time.Time
	lastAlert  time.Time
	locked     bool // administratively locked out of selection
}

func (s *trackedService) expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(s.lastUpdate) > ttl
}

// Snapshot is the read-only view Registry.List and Conscience.List return.
type Snapshot struct {
	ID         ServiceID
	Score      int32
	Locked     bool
	LastUpdate time.Time
}
