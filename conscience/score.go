package conscience

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScoreExpr is a parsed weighted-sum scoring expression, e.g.
// "cpu:50,space:30,io:20" - score = sum(tag_value * weight) / sum(weight),
// clamped to [0,100]. This is a deliberately simplified re-expression of
// the original score_expr_str/score_expr AST (arbitrary arithmetic over
// tag variables): the grammar itself is out of scope (see DESIGN.md), but
// the role it plays - reducing raw per-service tags to one comparable
// number - is preserved exactly.
type ScoreExpr struct {
	weights map[string]float64
	total   float64
}

// ParseScoreExpr parses "tag:weight,tag:weight,...". Weights must be
// positive; at least one term is required.
func ParseScoreExpr(expr string) (*ScoreExpr, error) {
	terms := strings.Split(expr, ",")
	se := &ScoreExpr{weights: make(map[string]float64, len(terms))}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts := strings.SplitN(t, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("conscience: bad score term %q in %q", t, expr)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("conscience: bad weight in term %q: %v", t, err)
		}
		name := strings.TrimSpace(parts[0])
		se.weights[name] = w
		se.total += w
	}
	if len(se.weights) == 0 {
		return nil, fmt.Errorf("conscience: empty score expression %q", expr)
	}
	return se, nil
}

// Eval reduces tags to a score in [0,100]. A tag named by the expression
// but absent from tags contributes 0.
func (se *ScoreExpr) Eval(tags map[string]float64) int32 {
	var sum float64
	for name, w := range se.weights {
		sum += tags[name] * w
	}
	raw := sum / se.total
	if raw < 0 {
		raw = 0
	}
	if raw > 100 {
		raw = 100
	}
	return int32(raw)
}

// Vars returns the expression's tag names, sorted, for diagnostics.
func (se *ScoreExpr) Vars() []string {
	out := make([]string, 0, len(se.weights))
	for name := range se.weights {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// clampVariation bounds the move from prev to next to +/-bound, the way
// conscience_srvtype_s.score_variation_bound limits a single tick's swing
// before the [0,100] range clamp is applied. The variation-bound clamp
// runs first, range clamp second, so a bound larger than the remaining
// headroom to 0/100 cannot be used to jump further than the raw range
// clamp alone would allow.
func clampVariation(prev, next, bound int32) int32 {
	if bound <= 0 {
		return next
	}
	if delta := next - prev; delta > bound {
		next = prev + bound
	} else if delta < -bound {
		next = prev - bound
	}
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	return next
}
