package archive

import (
	"context"
	"testing"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

func TestMemoryStoreSaveAndLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id1, err := store.SaveSpec(ctx, "sess-1", &spec.ProjectSpec{ProjectSummary: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := store.SaveSpec(ctx, "sess-1", &spec.ProjectSpec{ProjectSummary: "v2"})
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatalf("record ids collide: %d", id1)
	}

	latest, err := store.LatestSpec(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Spec.ProjectSummary != "v2" {
		t.Fatalf("latest = %+v, want v2", latest)
	}
}

func TestMemoryStoreLatestUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	latest, err := store.LatestSpec(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("latest = %+v, want nil", latest)
	}
}

func TestMemoryStoreListSpecs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.SaveSpec(ctx, "sess-1", &spec.ProjectSpec{})
	}
	store.SaveSpec(ctx, "sess-2", &spec.ProjectSpec{})

	records, err := store.ListSpecs(ctx, "sess-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	// Newest first.
	if records[0].ID < records[1].ID {
		t.Fatal("records not newest first")
	}
}

func TestMemoryStoreSaveSpecCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sp := &spec.ProjectSpec{ProjectSummary: "before"}
	store.SaveSpec(ctx, "sess-1", sp)
	sp.ProjectSummary = "after"

	latest, _ := store.LatestSpec(ctx, "sess-1")
	if latest.Spec.ProjectSummary != "before" {
		t.Fatal("archived spec aliases caller memory")
	}
}

func TestMemoryStoreSaveProject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.SaveProject(ctx, "sess-1", &spec.GeneratedProject{ProjectName: "app"})
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("zero record id")
	}
}
