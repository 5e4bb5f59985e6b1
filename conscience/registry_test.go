package conscience

import (
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	se, err := ParseScoreExpr("cpu:100")
	if err != nil {
		t.Fatal(err)
	}
	return NewRegistry("rawx", se, 50*time.Millisecond, 20, time.Second, nil)
}

func TestRegistryRegisterAndBest(t *testing.T) {
	r := newTestRegistry(t)
	a := ServiceID{Type: "rawx", Addr: "10.0.0.1:6200"}
	b := ServiceID{Type: "rawx", Addr: "10.0.0.2:6200"}

	r.Register(ServiceInfo{ID: a, Tags: map[string]float64{"cpu": 100}}, false)
	r.Register(ServiceInfo{ID: b, Tags: map[string]float64{"cpu": 10}}, false)

	best, ok := r.Best()
	if !ok || best.ID != a {
		t.Fatalf("expected %s to be best, got %+v", a, best)
	}
}

func TestRegistryLockExcludesFromBest(t *testing.T) {
	r := newTestRegistry(t)
	a := ServiceID{Type: "rawx", Addr: "10.0.0.1:6200"}
	b := ServiceID{Type: "rawx", Addr: "10.0.0.2:6200"}
	r.Register(ServiceInfo{ID: a, Tags: map[string]float64{"cpu": 100}}, false)
	r.Register(ServiceInfo{ID: b, Tags: map[string]float64{"cpu": 10}}, false)

	if !r.Lock(a) {
		t.Fatal("lock should succeed for registered service")
	}
	best, ok := r.Best()
	if !ok || best.ID != b {
		t.Fatalf("expected %s to be best once %s is locked, got %+v", b, a, best)
	}
}

func TestRegistryRemoveExpired(t *testing.T) {
	r := newTestRegistry(t)
	a := ServiceID{Type: "rawx", Addr: "10.0.0.1:6200"}
	r.Register(ServiceInfo{ID: a, Tags: map[string]float64{"cpu": 100}}, false)

	time.Sleep(80 * time.Millisecond)
	n := r.RemoveExpired()
	if n != 1 {
		t.Fatalf("expected 1 expired service removed, got %d", n)
	}
	if r.Count(true) != 0 {
		t.Fatalf("expected registry empty after expiry sweep")
	}
}

func TestRegistryScoreVariationBound(t *testing.T) {
	r := newTestRegistry(t)
	a := ServiceID{Type: "rawx", Addr: "10.0.0.1:6200"}
	r.Register(ServiceInfo{ID: a, Tags: map[string]float64{"cpu": 0}}, false)
	snap := r.Register(ServiceInfo{ID: a, Tags: map[string]float64{"cpu": 100}}, false)
	if snap.Score != 20 {
		t.Fatalf("expected score bounded to 20 on first jump, got %d", snap.Score)
	}
}
