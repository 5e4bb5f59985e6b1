package layout

import "testing"

func TestParsePolicyNone(t *testing.T) {
	p, err := ParsePolicy("SINGLE:NONE")
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkCount() != 1 {
		t.Fatalf("expected chunk count 1, got %d", p.ChunkCount())
	}
}

func TestParsePolicyDupli(t *testing.T) {
	p, err := ParsePolicy("THREECOPIES:DUPLI:nb_copy=3,distance=1")
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkCount() != 3 {
		t.Fatalf("expected chunk count 3, got %d", p.ChunkCount())
	}
	if p.Distance != 1 {
		t.Fatalf("expected distance 1, got %d", p.Distance)
	}
}

func TestParsePolicyDupliRejectsSingleCopy(t *testing.T) {
	if _, err := ParsePolicy("BAD:DUPLI:nb_copy=1"); err == nil {
		t.Fatal("expected error for nb_copy=1")
	}
}

func TestParsePolicyRAIN(t *testing.T) {
	p, err := ParsePolicy("EC21:RAIN:k=2,m=1,distance=2")
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkCount() != 3 {
		t.Fatalf("expected chunk count 3 (k+m), got %d", p.ChunkCount())
	}
}

func TestParsePolicyRAINRejectsBadKM(t *testing.T) {
	if _, err := ParsePolicy("BAD:RAIN:k=0,m=0"); err == nil {
		t.Fatal("expected error for k=0,m=0")
	}
}

func TestGenerateRespectsDistance(t *testing.T) {
	p, err := ParsePolicy("THREECOPIES:DUPLI:nb_copy=3,distance=1")
	if err != nil {
		t.Fatal(err)
	}
	candidates := []Candidate{
		{Addr: "a", Location: "dc1.rack1", Score: 100},
		{Addr: "b", Location: "dc1.rack1", Score: 90},
		{Addr: "c", Location: "dc1.rack2", Score: 80},
		{Addr: "d", Location: "dc1.rack3", Score: 70},
	}
	l, err := p.Generate(candidates, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Placements) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(l.Placements))
	}
	seen := map[string]bool{}
	for _, pl := range l.Placements {
		if seen[pl.Service.Location] {
			t.Fatalf("two chunks placed in same location %q violating distance", pl.Service.Location)
		}
		seen[pl.Service.Location] = true
	}
}

func TestGenerateInsufficientCandidates(t *testing.T) {
	p, err := ParsePolicy("THREECOPIES:DUPLI:nb_copy=3")
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Generate([]Candidate{{Addr: "a", Location: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error with insufficient candidates")
	}
}

func TestGenerateRAINMarksParity(t *testing.T) {
	p, err := ParsePolicy("EC21:RAIN:k=2,m=1")
	if err != nil {
		t.Fatal(err)
	}
	candidates := []Candidate{
		{Addr: "a", Location: "a"}, {Addr: "b", Location: "b"}, {Addr: "c", Location: "c"},
	}
	l, err := p.Generate(candidates, nil)
	if err != nil {
		t.Fatal(err)
	}
	parityCount := 0
	for _, pl := range l.Placements {
		if pl.Parity {
			parityCount++
		}
	}
	if parityCount != 1 {
		t.Fatalf("expected 1 parity chunk, got %d", parityCount)
	}
}
