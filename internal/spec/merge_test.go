package spec

import (
	"reflect"
	"testing"
)

func TestMergeAssignsFreshIDs(t *testing.T) {
	raw := RawExtraction{
		ProjectSummary: "a todo app",
		Requirements: []Requirement{
			{ID: 0, Description: "task list", Status: StatusActive},
			{ID: -3, Description: "dark mode", Status: StatusActive},
		},
	}

	got, nextID := Merge(nil, raw, "build a todo app", 1)

	if got.Requirements[0].ID != 1 || got.Requirements[1].ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", got.Requirements[0].ID, got.Requirements[1].ID)
	}
	if nextID != 3 {
		t.Fatalf("nextID = %d, want 3", nextID)
	}
}

func TestMergeRepairsDuplicateIDs(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "first", Status: StatusActive},
			{ID: 1, Description: "duplicate", Status: StatusActive},
			{ID: 5, Description: "high", Status: StatusActive},
		},
	}

	got, nextID := Merge(nil, raw, "", 2)

	// The duplicate gets a fresh id beyond the highest id in play.
	if got.Requirements[1].ID != 6 {
		t.Fatalf("duplicate id = %d, want 6", got.Requirements[1].ID)
	}
	if got.Requirements[0].ID != 1 || got.Requirements[2].ID != 5 {
		t.Fatalf("valid ids changed: %d, %d", got.Requirements[0].ID, got.Requirements[2].ID)
	}
	if nextID != 7 {
		t.Fatalf("nextID = %d, want 7", nextID)
	}
}

func TestMergeAdvancesCounterPastMaxID(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{{ID: 42, Description: "x", Status: StatusActive}},
	}

	_, nextID := Merge(nil, raw, "", 3)
	if nextID != 43 {
		t.Fatalf("nextID = %d, want 43", nextID)
	}
}

func TestMergeClearsDanglingSupersedes(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "x", Status: StatusActive, Supersedes: 99},
		},
	}

	got, _ := Merge(nil, raw, "", 2)
	if got.Requirements[0].Supersedes != 0 {
		t.Fatalf("dangling supersedes not cleared: %d", got.Requirements[0].Supersedes)
	}
}

func TestMergeClearsSelfSupersedes(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "x", Status: StatusActive, Supersedes: 1},
		},
	}

	got, _ := Merge(nil, raw, "", 2)
	if got.Requirements[0].Supersedes != 0 {
		t.Fatalf("self supersedes not cleared: %d", got.Requirements[0].Supersedes)
	}
}

func TestMergeForcesTargetSuperseded(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "blue theme", Status: StatusActive},
			{ID: 2, Description: "red theme", Status: StatusActive, Supersedes: 1},
		},
	}

	got, _ := Merge(nil, raw, "", 3)

	if got.Requirements[0].Status != StatusSuperseded {
		t.Fatalf("target status = %q, want superseded", got.Requirements[0].Status)
	}
	if got.Requirements[1].Status != StatusActive {
		t.Fatalf("superseding requirement status = %q, want active", got.Requirements[1].Status)
	}

	active := got.ActiveRequirements()
	if len(active) != 1 || active[0].ID != 2 {
		t.Fatalf("active = %+v, want only id 2", active)
	}
}

func TestMergeBreaksSupersessionCycle(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "a", Status: StatusActive, Supersedes: 2},
			{ID: 2, Description: "b", Status: StatusActive, Supersedes: 3},
			{ID: 3, Description: "c", Status: StatusActive, Supersedes: 1},
		},
	}

	got, _ := Merge(nil, raw, "", 4)

	cleared := 0
	for _, r := range got.Requirements {
		if r.Supersedes == 0 {
			cleared++
		}
	}
	if cleared == 0 {
		t.Fatal("cycle not broken, no supersedes reference cleared")
	}
	// At least one requirement must remain active after cycle breaking.
	if len(got.ActiveRequirements()) == 0 {
		t.Fatal("no active requirement survived cycle breaking")
	}
}

func TestMergeNormalisesStatus(t *testing.T) {
	raw := RawExtraction{
		Requirements: []Requirement{
			{ID: 1, Description: "x", Status: "pending"},
			{ID: 2, Description: "y", Status: ""},
		},
	}

	got, _ := Merge(nil, raw, "", 3)
	for _, r := range got.Requirements {
		if r.Status != StatusActive {
			t.Fatalf("requirement %d status = %q, want active", r.ID, r.Status)
		}
	}
}

func TestMergeSetsTranscriptSnapshot(t *testing.T) {
	got, _ := Merge(nil, RawExtraction{}, "the full transcript", 1)
	if got.RawTranscriptSnapshot != "the full transcript" {
		t.Fatalf("snapshot = %q", got.RawTranscriptSnapshot)
	}
}

func TestMergeDoesNotMutatePrev(t *testing.T) {
	prev := &ProjectSpec{
		ProjectSummary: "old summary",
		Requirements:   []Requirement{{ID: 1, Description: "old", Status: StatusActive}},
		TechStack:      []string{"react"},
	}
	before := prev.Clone()

	raw := RawExtraction{
		ProjectSummary: "new summary",
		Requirements: []Requirement{
			{ID: 1, Description: "old", Status: StatusSuperseded},
			{ID: 2, Description: "new", Status: StatusActive, Supersedes: 1},
		},
		TechStack: []string{"vue"},
	}
	got, _ := Merge(prev, raw, "t", 2)

	if !reflect.DeepEqual(prev, before) {
		t.Fatalf("prev mutated: %+v", prev)
	}
	if got.ProjectSummary != "new summary" {
		t.Fatalf("summary = %q", got.ProjectSummary)
	}
}

func TestMergeKeepsPrevSummaryWhenExtractionOmitsIt(t *testing.T) {
	prev := &ProjectSpec{ProjectSummary: "a recipe manager"}
	got, _ := Merge(prev, RawExtraction{}, "", 1)
	if got.ProjectSummary != "a recipe manager" {
		t.Fatalf("summary = %q, want previous summary retained", got.ProjectSummary)
	}
}

func TestMergeDeduplicatesStacks(t *testing.T) {
	raw := RawExtraction{
		TechStack:     []string{"react", "react", "", "tailwind"},
		UIPreferences: []string{"dark mode", "dark mode"},
	}

	got, _ := Merge(nil, raw, "", 1)

	if want := []string{"react", "tailwind"}; !reflect.DeepEqual(got.TechStack, want) {
		t.Fatalf("tech stack = %v, want %v", got.TechStack, want)
	}
	if want := []string{"dark mode"}; !reflect.DeepEqual(got.UIPreferences, want) {
		t.Fatalf("ui preferences = %v, want %v", got.UIPreferences, want)
	}
}
