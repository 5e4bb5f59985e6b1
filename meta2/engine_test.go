package meta2

import (
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewMemEngine(nil)
}

func TestPutCreatesFirstVersion(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Put("c1", "foo.txt", Content{ID: "content-1", Size: 10, Policy: "NONE", Checksum: "aaa"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("expected version 0, got %d", v)
	}
}

func TestPutDisabledVersioningRejectsSecondPut(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-1", Size: 10, Policy: "NONE", Checksum: "aaa"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-2", Size: 20, Policy: "NONE", Checksum: "bbb"}, nil); err == nil {
		t.Fatal("expected ErrContentExists with versioning disabled")
	}
}

func TestPutLimitedVersioningKeepsHistory(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(5)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.Put("c1", "foo.txt", Content{ID: idOf(i), Size: 10, Policy: "NONE", Checksum: idOf(i)}, nil); err != nil {
			t.Fatal(err)
		}
	}
	aliases, err := e.ListAliases("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(aliases))
	}
}

func TestPutSuspendedVersioningPurgesPrevious(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningSuspended); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.Put("c1", "foo.txt", Content{ID: idOf(i), Size: 10, Policy: "NONE", Checksum: idOf(i)}, nil); err != nil {
			t.Fatal(err)
		}
	}
	aliases, err := e.ListAliases("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 1 {
		t.Fatalf("expected suspended versioning to keep only 1 alias, got %d", len(aliases))
	}
	if aliases[0].Version != 2 {
		t.Fatalf("expected version counter to keep incrementing to 2, got %d", aliases[0].Version)
	}
}

func TestGetReturnsLatestByDefault(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(5)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.Put("c1", "foo.txt", Content{ID: idOf(i), Size: 10, Policy: "NONE"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	alias, content, _, err := e.Get("c1", "foo.txt", GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if alias.Version != 2 || content.ID != idOf(2) {
		t.Fatalf("expected latest version 2/content-2, got version=%d content=%s", alias.Version, content.ID)
	}
}

func TestGetExplicitVersion(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(5)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.Put("c1", "foo.txt", Content{ID: idOf(i), Size: 10, Policy: "NONE"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	alias, content, _, err := e.Get("c1", "foo.txt", GetOptions{Version: 1, HasVersion: true})
	if err != nil {
		t.Fatal(err)
	}
	if alias.Version != 1 || content.ID != idOf(1) {
		t.Fatalf("expected version 1/content-1, got version=%d content=%s", alias.Version, content.ID)
	}
}

func TestDeleteSoftThenHides(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(5)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-0", Size: 10, Policy: "NONE"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete("c1", "foo.txt", nil); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := e.Get("c1", "foo.txt", GetOptions{}); err == nil {
		t.Fatal("expected not-found after soft delete")
	}
	aliases, err := e.ListAliases("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 2 {
		t.Fatalf("expected tombstone to be appended as a new version, got %d aliases", len(aliases))
	}
}

func TestDeleteDisabledVersioningIsHard(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-0", Size: 10, Policy: "NONE"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete("c1", "foo.txt", nil); err != nil {
		t.Fatal(err)
	}
	aliases, err := e.ListAliases("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 0 {
		t.Fatalf("expected hard delete to leave no alias rows, got %d", len(aliases))
	}
}

func TestCopySharesContent(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-0", Size: 10, Policy: "NONE"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Copy("c1", "foo.txt", "bar.txt"); err != nil {
		t.Fatal(err)
	}
	_, content, _, err := e.Get("c1", "bar.txt", GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if content.ID != "content-0" {
		t.Fatalf("expected copy to share content-0, got %s", content.ID)
	}
}

func TestAppendGrowsContent(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-0", Size: 10, Policy: "NONE"},
		[]Chunk{{ID: "chunk-0", Position: 0, Size: 10}}); err != nil {
		t.Fatal(err)
	}
	if err := e.Append("c1", "foo.txt", []Chunk{{ID: "chunk-1", Size: 5}}); err != nil {
		t.Fatal(err)
	}
	_, content, chunks, err := e.Get("c1", "foo.txt", GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if content.Size != 15 {
		t.Fatalf("expected content size 15 after append, got %d", content.Size)
	}
	if len(chunks) != 2 || chunks[1].Position != 1 {
		t.Fatalf("expected appended chunk at position 1, got %+v", chunks)
	}
}

func TestPurgeRemovesExcessVersions(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(2)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.Put("c1", "foo.txt", Content{ID: idOf(i), Size: 1, Policy: "NONE"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	res, err := e.Purge("c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.VersionsRemoved != 3 {
		t.Fatalf("expected 3 excess versions purged, got %d", res.VersionsRemoved)
	}
	aliases, err := e.ListAliases("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 2 {
		t.Fatalf("expected 2 versions left after purge, got %d", len(aliases))
	}
}

func TestDeduplicateMergesSameChecksum(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetVersioningPolicy("c1", VersioningPolicy(5)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Put("c1", "a.txt", Content{ID: "content-a", Size: 10, Policy: "NONE", Checksum: "same"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Put("c1", "b.txt", Content{ID: "content-b", Size: 10, Policy: "NONE", Checksum: "same"}, nil); err != nil {
		t.Fatal(err)
	}
	merged, err := e.Deduplicate("c1")
	if err != nil {
		t.Fatal(err)
	}
	if merged != 1 {
		t.Fatalf("expected 1 merge, got %d", merged)
	}
	_, ca, _, err := e.Get("c1", "a.txt", GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_, cb, _, err := e.Get("c1", "b.txt", GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ca.ID != cb.ID {
		t.Fatalf("expected both aliases to share one content id after dedup, got %s vs %s", ca.ID, cb.ID)
	}
}

func TestPropSetGetDel(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("c1", "foo.txt", Content{ID: "content-0", Size: 10, Policy: "NONE"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.PropSet("c1", "foo.txt", "owner", "alice"); err != nil {
		t.Fatal(err)
	}
	props, err := e.PropGet("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if props["owner"] != "alice" {
		t.Fatalf("expected owner=alice, got %v", props)
	}
	if err := e.PropDel("c1", "foo.txt", "owner"); err != nil {
		t.Fatal(err)
	}
	props, err = e.PropGet("c1", "foo.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := props["owner"]; ok {
		t.Fatal("expected owner property to be gone after PropDel")
	}
}

func idOf(i int) string {
	return "content-" + string(rune('0'+i))
}
