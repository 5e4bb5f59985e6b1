package layout

import (
	"fmt"
	"strings"

	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

// Candidate is one storage service layout placement can choose from -
// typically backed by a conscience.Snapshot, kept decoupled here so
// layout has no import-time dependency on the conscience package.
type Candidate struct {
	Addr     string
	Location string // rack/host-ish string used for distance_between_location
	Score    int32
}

// ChunkPlacement is the result for a single chunk position: its index in
// the layout (0-based; for RAIN, 0..K-1 are data and K..K+M-1 are parity)
// and the service it's assigned to.
type ChunkPlacement struct {
	Position int
	Service  Candidate
	Parity   bool
}

// Layout is the full placement computed for one piece of content.
type Layout struct {
	Policy     *Policy
	Placements []ChunkPlacement
}

// Generate selects services for every chunk position the policy requires,
// honoring the distance constraint the way
// storage_policy.h's distance_between_location does: two chunks must not
// share a placement whose Location differs by less than Policy.Distance
// levels of the '.'-separated location string. Candidates are
// expected already sorted best-score-first (conscience.Registry.List
// ordering is the caller's job).
func (p *Policy) Generate(candidates []Candidate, st *stats.Registry) (*Layout, error) {
	n := p.ChunkCount()
	if len(candidates) < n {
		return nil, fmt.Errorf("layout: policy %q needs %d services, only %d available", p.Name, n, len(candidates))
	}

	chosen := make([]Candidate, 0, n)
	for _, c := range candidates {
		if len(chosen) == n {
			break
		}
		if farEnough(chosen, c, p.Distance) {
			chosen = append(chosen, c)
		}
	}
	if len(chosen) < n {
		return nil, fmt.Errorf("layout: policy %q: could not satisfy distance=%d constraint with %d candidates", p.Name, p.Distance, len(candidates))
	}

	placements := make([]ChunkPlacement, n)
	for i, c := range chosen {
		placements[i] = ChunkPlacement{
			Position: i,
			Service:  c,
			Parity:   p.Type == RAIN && i >= p.K,
		}
	}
	if st != nil {
		st.LayoutGenerated.WithLabelValues(p.Type.String()).Inc()
	}
	return &Layout{Policy: p, Placements: placements}, nil
}

// farEnough reports whether candidate c's location differs from every
// already-chosen placement by at least `distance` levels of its
// dot-separated location hierarchy (e.g. "dc1.rack2.host3").
func farEnough(chosen []Candidate, c Candidate, distance int) bool {
	if distance <= 0 {
		return true
	}
	for _, picked := range chosen {
		if locationDistance(picked.Location, c.Location) < distance {
			return false
		}
	}
	return true
}

// locationDistance counts how many hierarchy levels differ, starting
// from the most significant (leftmost) component, mirroring
// distance_between_location's common-prefix comparison.
func locationDistance(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	shared := 0
	for i := 0; i < n; i++ {
		var ca, cb string
		if i < len(pa) {
			ca = pa[i]
		}
		if i < len(pb) {
			cb = pb[i]
		}
		if ca != cb {
			break
		}
		shared++
	}
	return n - shared
}
