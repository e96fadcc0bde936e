package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/devdraft-ai/devdraft/internal/generate"
	"github.com/devdraft-ai/devdraft/internal/spec"
)

// maxGenerateBody caps the /api/generate request body.
const maxGenerateBody = 1 << 20

type generateRequest struct {
	// SessionID optionally links the generated project to a capture session
	// in the archive.
	SessionID string `json:"session_id"`

	// ProjectSpec is the specification to generate from.
	ProjectSpec *spec.ProjectSpec `json:"project_spec"`
}

type generateResponse struct {
	Success       bool                 `json:"success"`
	ProjectName   string               `json:"project_name,omitempty"`
	Files         []spec.GeneratedFile `json:"files"`
	SetupCommands []string             `json:"setup_commands,omitempty"`
	Description   string               `json:"description,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func failure(msg string) generateResponse {
	return generateResponse{Success: false, Files: []spec.GeneratedFile{}, Error: msg}
}

// handleGenerate runs the two-phase generation pipeline for a finished
// specification. Pipeline failures answer 200 with success=false so the
// client can surface the message and retry; only malformed requests get a
// 4xx.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
		return
	}
	if req.ProjectSpec == nil {
		writeJSON(w, http.StatusBadRequest, failure("project_spec is required"))
		return
	}

	if s.cfg.Generator == nil {
		writeJSON(w, http.StatusOK, failure("code generation backend unavailable"))
		return
	}

	ctx := r.Context()
	log := slog.With("session_id", req.SessionID)

	var clientMsg string
	progress := func(status, message string) {
		log.Info("generation progress", "status", status)
		if status == generate.StatusError {
			clientMsg = message
		}
	}

	start := time.Now()
	project, err := s.cfg.Generator.Generate(ctx, req.ProjectSpec, progress)
	s.cfg.Metrics.RecordGeneration(ctx, "total", time.Since(start), err)

	if err != nil {
		log.Error("generation failed", "error", err)
		if clientMsg == "" {
			clientMsg = "code generation failed"
		}
		writeJSON(w, http.StatusOK, failure(clientMsg))
		return
	}

	if s.cfg.Archive != nil {
		if _, aerr := s.cfg.Archive.SaveProject(ctx, req.SessionID, project); aerr != nil {
			log.Warn("failed to archive generated project", "error", aerr)
		}
	}

	files := project.Files
	if files == nil {
		files = []spec.GeneratedFile{}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Success:       true,
		ProjectName:   project.ProjectName,
		Files:         files,
		SetupCommands: project.SetupCommands,
		Description:   project.Description,
	})
}
