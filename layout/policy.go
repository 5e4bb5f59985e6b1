// Package layout implements the Chunk Layout Generator: given
// a storage policy and a content size, it produces the chunk placement -
// which services hold which chunk, and how many copies or parity
// fragments exist. Grounded on
// original_source/metautils/lib/storage_policy.h's data_security_e enum
// (DUPLI/RAIN/NONE) and its DS_KEY_DISTANCE/DS_KEY_COPY_COUNT/DS_KEY_K/
// DS_KEY_M parameters.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/reedsolomon"
)

// Type is the data-security family a Policy applies - data_security_e.
type Type int

const (
	None Type = iota
	Dupli
	RAIN
)

func (t Type) String() string {
	switch t {
	case Dupli:
		return "DUPLI"
	case RAIN:
		return "RAIN"
	default:
		return "NONE"
	}
}

// Policy is a parsed storage policy: which Type applies, and its
// type-specific parameters (nb_copy for DUPLI; k, m, algo for RAIN;
// distance is shared by both since it constrains service placement
// regardless of family).
type Policy struct {
	Name     string
	Type     Type
	Distance int

	CopyCount int // DUPLI

	K    int    // RAIN data fragments
	M    int    // RAIN parity fragments
	Algo string // RAIN erasure-coding algorithm name
}

// ParsePolicy decodes a policy spec of the form
// "name:type:k1=v1,k2=v2,...", e.g. "THREECOPIES:DUPLI:nb_copy=3,distance=1"
// or "EC21:RAIN:k=2,m=1,distance=4,algo=reedsolomon".
func ParsePolicy(spec string) (*Policy, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("layout: malformed policy spec %q", spec)
	}
	p := &Policy{Name: parts[0]}
	switch strings.ToUpper(parts[1]) {
	case "NONE", "":
		p.Type = None
		p.CopyCount = 1
		return p, nil
	case "DUPLI":
		p.Type = Dupli
		p.CopyCount = 2
	case "RAIN":
		p.Type = RAIN
		p.Algo = "reedsolomon"
	default:
		return nil, fmt.Errorf("layout: unknown data security type %q", parts[1])
	}

	if len(parts) == 3 {
		for _, kv := range strings.Split(parts[2], ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			pair := strings.SplitN(kv, "=", 2)
			if len(pair) != 2 {
				return nil, fmt.Errorf("layout: malformed parameter %q in %q", kv, spec)
			}
			key, val := strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])
			if err := p.setParam(key, val); err != nil {
				return nil, err
			}
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) setParam(key, val string) error {
	switch key {
	case "distance":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("layout: bad distance %q: %w", val, err)
		}
		p.Distance = n
	case "nb_copy":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("layout: bad nb_copy %q: %w", val, err)
		}
		p.CopyCount = n
	case "k":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("layout: bad k %q: %w", val, err)
		}
		p.K = n
	case "m":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("layout: bad m %q: %w", val, err)
		}
		p.M = n
	case "algo":
		p.Algo = val
	default:
		return fmt.Errorf("layout: unknown parameter %q", key)
	}
	return nil
}

// Validate enforces the per-family invariants.
// RAIN's k/m pair is additionally validated against what the wired
// erasure-coding library can actually support.
func (p *Policy) Validate() error {
	switch p.Type {
	case None:
		p.CopyCount = 1
	case Dupli:
		if p.CopyCount < 2 {
			return fmt.Errorf("layout: DUPLI policy %q needs nb_copy >= 2, got %d", p.Name, p.CopyCount)
		}
	case RAIN:
		if p.K <= 0 || p.M <= 0 {
			return fmt.Errorf("layout: RAIN policy %q needs k > 0 and m > 0 (got k=%d m=%d)", p.Name, p.K, p.M)
		}
		if _, err := reedsolomon.New(p.K, p.M); err != nil {
			return fmt.Errorf("layout: RAIN policy %q has unsatisfiable k=%d/m=%d: %w", p.Name, p.K, p.M, err)
		}
	}
	return nil
}

// ChunkCount is how many chunks one position of the layout produces:
// CopyCount for DUPLI/NONE, K+M for RAIN.
func (p *Policy) ChunkCount() int {
	if p.Type == RAIN {
		return p.K + p.M
	}
	return p.CopyCount
}

// MinSuccesses is how many of ChunkCount's destinations must actually
// receive the upload for the content to be considered written: RAIN
// tolerates up to M missing fragments, DUPLI tolerates all but one copy,
// NONE tolerates none.
func (p *Policy) MinSuccesses() int {
	switch p.Type {
	case RAIN:
		return p.K
	case Dupli:
		return 1
	default:
		return p.ChunkCount()
	}
}
