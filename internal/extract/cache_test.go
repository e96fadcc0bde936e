package extract

import (
	"fmt"
	"testing"
	"time"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(time.Minute, 10)
	raw := spec.RawExtraction{ProjectSummary: "a todo app"}

	key := Fingerprint("build a todo app")
	c.Put(key, raw)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ProjectSummary != "a todo app" {
		t.Fatalf("summary = %q", got.ProjectSummary)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(time.Minute, 10)
	if _, ok := c.Get(Fingerprint("never stored")); ok {
		t.Fatal("unexpected hit")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute, 10)
	clk := time.Unix(1000, 0)
	c.now = func() time.Time { return clk }

	c.Put("k", spec.RawExtraction{ProjectSummary: "x"})

	clk = clk.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}

	clk = clk.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry did not expire")
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d after expiry, want 0", c.Len())
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(time.Minute, 3)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), spec.RawExtraction{})
	}

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Fatal("oldest entry was not evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCachePutRefreshesExisting(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", spec.RawExtraction{ProjectSummary: "v1"})
	c.Put("b", spec.RawExtraction{})
	c.Put("a", spec.RawExtraction{ProjectSummary: "v2"})
	c.Put("c", spec.RawExtraction{})

	// "b" is the oldest after the refresh of "a".
	if _, ok := c.Get("b"); ok {
		t.Fatal("refreshed entry order not honoured")
	}
	got, ok := c.Get("a")
	if !ok || got.ProjectSummary != "v2" {
		t.Fatalf("a = %+v ok=%v, want v2", got, ok)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("same transcript")
	b := Fingerprint("same transcript")
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}
	if a == Fingerprint("other transcript") {
		t.Fatal("distinct transcripts share a fingerprint")
	}
}
