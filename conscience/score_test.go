package conscience

import "testing"

func TestParseScoreExprWeights(t *testing.T) {
	se, err := ParseScoreExpr("cpu:50, space:30,io:20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score := se.Eval(map[string]float64{"cpu": 100, "space": 100, "io": 100})
	if score != 100 {
		t.Fatalf("expected 100, got %d", score)
	}
	score = se.Eval(map[string]float64{"cpu": 0, "space": 0, "io": 0})
	if score != 0 {
		t.Fatalf("expected 0, got %d", score)
	}
}

func TestParseScoreExprMissingTag(t *testing.T) {
	se, err := ParseScoreExpr("cpu:100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score := se.Eval(map[string]float64{}); score != 0 {
		t.Fatalf("expected 0 for missing tag, got %d", score)
	}
}

func TestParseScoreExprInvalid(t *testing.T) {
	cases := []string{"", "cpu", "cpu:abc", "cpu:-5"}
	for _, c := range cases {
		if _, err := ParseScoreExpr(c); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestClampVariation(t *testing.T) {
	cases := []struct {
		prev, next, bound, want int32
	}{
		{50, 60, 5, 55},
		{50, 40, 5, 45},
		{50, 52, 5, 52},
		{98, 150, 5, 100},
		{2, -150, 5, 0},
		{50, 60, 0, 60},
	}
	for _, c := range cases {
		if got := clampVariation(c.prev, c.next, c.bound); got != c.want {
			t.Errorf("clampVariation(%d,%d,%d) = %d, want %d", c.prev, c.next, c.bound, got, c.want)
		}
	}
}
