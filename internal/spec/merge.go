package spec

// Merge folds a raw extraction into the previous specification and returns
// the next specification plus the advanced requirement-ID counter.
//
// The extraction backend receives the previous specification verbatim and is
// instructed to preserve ids, add new active requirements, and mark overridden
// ones superseded. Correctness of that contract depends on a non-deterministic
// external model, so Merge re-validates every structural invariant instead of
// trusting the output:
//
//   - ids must be positive and unique; missing or duplicate ids are repaired
//     with fresh ids from the session counter
//   - a supersedes reference must resolve to an existing requirement; dangling
//     and self references are cleared
//   - a resolvable supersedes reference forces its target to status
//     "superseded"
//   - transitive supersession cycles are broken by clearing the closing edge
//   - unknown status strings normalise to "active"
//
// prev is never mutated; the result is a fresh value with
// RawTranscriptSnapshot set to transcript.
func Merge(prev *ProjectSpec, raw RawExtraction, transcript string, nextID int) (*ProjectSpec, int) {
	reqs := append([]Requirement(nil), raw.Requirements...)

	// First pass: find all well-formed, non-duplicate ids and the highest id
	// in play so repaired ids never collide with ids later in the list.
	seen := make(map[int]bool, len(reqs))
	for _, r := range reqs {
		if r.ID > 0 && !seen[r.ID] {
			seen[r.ID] = true
			if r.ID >= nextID {
				nextID = r.ID + 1
			}
		}
	}

	// Second pass: repair ids and normalise statuses.
	assigned := make(map[int]bool, len(reqs))
	for i := range reqs {
		r := &reqs[i]
		if r.ID <= 0 || assigned[r.ID] {
			r.ID = nextID
			nextID++
		}
		assigned[r.ID] = true

		if r.Status != StatusActive && r.Status != StatusSuperseded {
			r.Status = StatusActive
		}
	}

	// Third pass: clear unresolvable and self supersedes references.
	byID := make(map[int]int, len(reqs))
	for i, r := range reqs {
		byID[r.ID] = i
	}
	for i := range reqs {
		r := &reqs[i]
		if r.Supersedes == 0 {
			continue
		}
		if _, ok := byID[r.Supersedes]; !ok || r.Supersedes == r.ID {
			r.Supersedes = 0
		}
	}

	// Fourth pass: break supersession cycles. Each requirement has at most
	// one outgoing edge, so walking the chain from each node and clearing the
	// edge that returns into the current path is sufficient.
	for i := range reqs {
		path := map[int]bool{reqs[i].ID: true}
		cur := i
		for reqs[cur].Supersedes != 0 {
			next := byID[reqs[cur].Supersedes]
			if path[reqs[next].ID] {
				reqs[cur].Supersedes = 0
				break
			}
			path[reqs[next].ID] = true
			cur = next
		}
	}

	// Final pass: a superseded requirement must actually carry the status.
	for _, r := range reqs {
		if r.Supersedes != 0 {
			reqs[byID[r.Supersedes]].Status = StatusSuperseded
		}
	}

	summary := raw.ProjectSummary
	if summary == "" && prev != nil {
		summary = prev.ProjectSummary
	}

	return &ProjectSpec{
		ProjectSummary:        summary,
		Requirements:          reqs,
		TechStack:             dedupe(raw.TechStack),
		UIPreferences:         dedupe(raw.UIPreferences),
		RawTranscriptSnapshot: transcript,
	}, nextID
}

// dedupe removes duplicate strings while preserving first-occurrence order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
