package resolver

import (
	"fmt"
	"testing"
	"time"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn/oiourl"
)

func newTestResolver(t *testing.T, dirCalls, svcCalls *int) *Resolver {
	t.Helper()
	cfg := cmn.ResolverConfig{
		CSM0TTL:     50 * time.Millisecond,
		CSM0Max:     10,
		ServicesTTL: 50 * time.Millisecond,
		ServicesMax: 10,
	}
	dirLookup := func(ref string) ([]string, error) {
		*dirCalls++
		return []string{"10.0.0.1:6001"}, nil
	}
	svcLookup := func(ref, srvtype string) ([]string, error) {
		*svcCalls++
		return []string{"10.0.0.2:6200"}, nil
	}
	r, err := New(cfg, dirLookup, svcLookup, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func mustURL(t *testing.T, raw string) *oiourl.URL {
	t.Helper()
	u, err := oiourl.New(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestResolverCachesDirectoryLookup(t *testing.T) {
	var dirCalls, svcCalls int
	r := newTestResolver(t, &dirCalls, &svcCalls)
	u := mustURL(t, "NS/account/user/obj")

	for i := 0; i < 5; i++ {
		if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
			t.Fatal(err)
		}
	}
	if dirCalls != 1 {
		t.Fatalf("expected exactly 1 upstream lookup, got %d", dirCalls)
	}
}

func TestResolverNoCacheBypasses(t *testing.T) {
	var dirCalls, svcCalls int
	r := newTestResolver(t, &dirCalls, &svcCalls)
	u := mustURL(t, "NS/account/user/obj")

	for i := 0; i < 3; i++ {
		if _, err := r.ResolveReferenceDirectory(u, cmn.NoCache); err != nil {
			t.Fatal(err)
		}
	}
	if dirCalls != 3 {
		t.Fatalf("expected 3 upstream lookups with NoCache, got %d", dirCalls)
	}
}

func TestResolverDecacheForcesRefresh(t *testing.T) {
	var dirCalls, svcCalls int
	r := newTestResolver(t, &dirCalls, &svcCalls)
	u := mustURL(t, "NS/account/user/obj")

	if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
		t.Fatal(err)
	}
	r.DecacheReference(u)
	if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
		t.Fatal(err)
	}
	if dirCalls != 2 {
		t.Fatalf("expected 2 upstream lookups after decache, got %d", dirCalls)
	}
}

func TestResolverTTLExpiry(t *testing.T) {
	var dirCalls, svcCalls int
	r := newTestResolver(t, &dirCalls, &svcCalls)
	u := mustURL(t, "NS/account/user/obj")

	if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
		t.Fatal(err)
	}
	if dirCalls != 2 {
		t.Fatalf("expected cache entry to expire and re-trigger lookup, got %d calls", dirCalls)
	}
}

func TestResolverPurgeEvictsOldest(t *testing.T) {
	var dirCalls, svcCalls int
	r := newTestResolver(t, &dirCalls, &svcCalls)
	for i := 0; i < 20; i++ {
		u := mustURL(t, fmt.Sprintf("NS/account/user%d/obj", i))
		if _, err := r.ResolveReferenceDirectory(u, cmn.ResolveDefault); err != nil {
			t.Fatal(err)
		}
	}
	evicted, _ := r.Purge()
	if evicted != 10 {
		t.Fatalf("expected 10 entries evicted down to max=10, got %d", evicted)
	}
	if info := r.Info(); info.CSM0Count != 10 {
		t.Fatalf("expected 10 entries remaining, got %d", info.CSM0Count)
	}
}
