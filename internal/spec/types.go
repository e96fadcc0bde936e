// Package spec defines the project-specification data model and the merge
// function that folds freshly extracted requirements into prior state.
//
// A ProjectSpec is immutable once produced: every merge yields a new value,
// and superseded requirements are retained rather than deleted so the full
// decision history of a conversation survives.
package spec

// Requirement statuses.
const (
	StatusActive     = "active"
	StatusSuperseded = "superseded"
)

// Requirement is a single extracted project requirement. Requirements are
// never deleted; when the client changes their mind the old requirement is
// marked superseded and the new one records a back-reference.
type Requirement struct {
	// ID is unique within a specification's lifetime and never reused.
	ID int `json:"id"`

	// Description is the concrete, actionable requirement text.
	Description string `json:"description"`

	// Status is "active" or "superseded".
	Status string `json:"status"`

	// Supersedes, when non-zero, is the ID of the requirement this one
	// replaces. The target must exist in the same specification and carry
	// status "superseded".
	Supersedes int `json:"supersedes,omitempty"`
}

// ProjectSpec is the structured specification accumulated over one capture
// session. It is owned exclusively by the session controller and discarded
// when the session ends or a new capture starts.
type ProjectSpec struct {
	// ProjectSummary is a one-sentence description of what is being built.
	ProjectSummary string `json:"project_summary"`

	// Requirements is the ordered requirement history, active and superseded.
	Requirements []Requirement `json:"requirements"`

	// TechStack lists requested technologies.
	TechStack []string `json:"tech_stack"`

	// UIPreferences lists requested UI/UX properties.
	UIPreferences []string `json:"ui_preferences"`

	// RawTranscriptSnapshot is the full transcript the latest merge was
	// computed from.
	RawTranscriptSnapshot string `json:"raw_transcript_snapshot,omitempty"`
}

// RawExtraction is the payload returned by an extraction backend: the model's
// view of the updated specification, before structural validation by Merge.
type RawExtraction struct {
	ProjectSummary string        `json:"project_summary"`
	Requirements   []Requirement `json:"requirements"`
	TechStack      []string      `json:"tech_stack"`
	UIPreferences  []string      `json:"ui_preferences"`
}

// GeneratedFile is a single file of a generated project.
type GeneratedFile struct {
	// Path is the file path, unique within the project.
	Path string `json:"path"`

	// Content is the full file content.
	Content string `json:"content"`
}

// GeneratedProject is the final output of the generation pipeline. It is
// produced once per generation request and never versioned or merged.
type GeneratedProject struct {
	ProjectName   string          `json:"project_name"`
	Files         []GeneratedFile `json:"files"`
	SetupCommands []string        `json:"setup_commands"`
	Description   string          `json:"description"`
}

// ActiveRequirements returns the requirements of s with status "active",
// in order. Used by the generation pipeline, which builds from the current
// decision state only.
func (s *ProjectSpec) ActiveRequirements() []Requirement {
	var active []Requirement
	for _, r := range s.Requirements {
		if r.Status == StatusActive {
			active = append(active, r)
		}
	}
	return active
}

// Clone returns a deep copy of s, or nil when s is nil. Merge never mutates
// its input; callers that hand a spec to another goroutine should clone it.
func (s *ProjectSpec) Clone() *ProjectSpec {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Requirements = append([]Requirement(nil), s.Requirements...)
	cp.TechStack = append([]string(nil), s.TechStack...)
	cp.UIPreferences = append([]string(nil), s.UIPreferences...)
	return &cp
}
