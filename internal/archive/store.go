// Package archive persists finished specifications and generated projects.
//
// Archiving is strictly best-effort: a session or generation request never
// fails because the archive is down. Callers log archive errors and move on.
package archive

import (
	"context"
	"time"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

// SpecRecord is one archived specification.
type SpecRecord struct {
	ID         int64
	SessionID  string
	Spec       *spec.ProjectSpec
	ArchivedAt time.Time
}

// ProjectRecord is one archived generated project.
type ProjectRecord struct {
	ID         int64
	SessionID  string
	Project    *spec.GeneratedProject
	ArchivedAt time.Time
}

// Store persists session outcomes. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveSpec archives a specification under a session identifier and
	// returns the record id.
	SaveSpec(ctx context.Context, sessionID string, s *spec.ProjectSpec) (int64, error)

	// SaveProject archives a generated project.
	SaveProject(ctx context.Context, sessionID string, p *spec.GeneratedProject) (int64, error)

	// LatestSpec returns the most recently archived specification for a
	// session, or nil when none exists.
	LatestSpec(ctx context.Context, sessionID string) (*SpecRecord, error)

	// ListSpecs returns up to limit archived specifications for a session,
	// newest first.
	ListSpecs(ctx context.Context, sessionID string, limit int) ([]SpecRecord, error)
}
