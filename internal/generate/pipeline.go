// Package generate builds a runnable project scaffold from a finished
// specification in two model calls: a free-form planning pass followed by a
// structured build pass that emits the file tree as JSON.
//
// Splitting the work keeps the creative part (architecture, component
// breakdown) away from the strict-output part. The plan pass runs hot and is
// never parsed; the build pass runs cooler and must produce schema-valid
// JSON.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devdraft-ai/devdraft/internal/spec"
	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
)

// Progress statuses delivered through the callback, in order.
const (
	StatusPlanning         = "planning"
	StatusPlanningComplete = "planning_complete"
	StatusBuilding         = "building"
	StatusComplete         = "complete"
	StatusError            = "error"
)

// Defaults applied to a build result that omits optional fields.
const (
	defaultProjectName = "devdraft-project"
	defaultDescription = "Generated project"
)

var defaultSetupCommands = []string{"npm install", "npm run dev"}

const (
	planTemperature  = 0.9
	buildTemperature = 0.7
	planMaxTokens    = 4096
	buildMaxTokens   = 16384
)

// ErrMalformedOutput marks build output that is not valid JSON.
var ErrMalformedOutput = errors.New("generated output is not valid JSON")

// ErrMissingFiles marks build output that parsed as JSON but lacks the files
// array. Kept separate from ErrMalformedOutput so the two failure modes stay
// distinguishable in events and logs.
var ErrMissingFiles = errors.New("generated output missing files array")

const planSystemPrompt = `You are a senior software architect. Given project requirements, produce a concise implementation blueprint for a React + Tailwind CSS single-page application.

Describe, in plain prose:
- the pages/views and the component tree
- state shape and data flow
- the full file list the project will need, including build configuration
- any tricky requirement and how to satisfy it

Do NOT write code. Do NOT output JSON. Keep the blueprint under 600 words.`

const buildSystemPrompt = `You are an expert full-stack developer specializing in modern React applications with Tailwind CSS. Your job is to generate complete, production-ready code based on project requirements and an implementation blueprint.

CRITICAL RULES:
1. **COMPLETE CODE ONLY**: Generate fully working code with NO placeholders, TODOs, or "implement here" comments.
2. **MODERN STACK**: Use React 18 with functional components and hooks + Tailwind CSS for styling.
3. **TAILWIND CSS**: You MUST use Tailwind CSS. Include all configuration files needed for Tailwind to work.
4. **DEPENDENCIES**: Include all required dependencies in package.json including tailwindcss, postcss, autoprefixer.
5. **WORKING CODE**: Every file must be syntactically correct and runnable with ` + "`npm install && npm run dev`" + `.
6. **FOLLOW THE BLUEPRINT**: Implement the file list and architecture from the blueprint you are given.

OUTPUT FORMAT:
Return ONLY a valid JSON object with this exact structure:
{
  "project_name": "my-app",
  "files": [
    {"path": "package.json", "content": "..."}
  ],
  "setup_commands": ["npm install", "npm run dev"],
  "description": "Brief description of what was built"
}

REQUIRED FILES (YOU MUST INCLUDE ALL OF THESE):
1. package.json with devDependencies tailwindcss, postcss, autoprefixer
2. vite.config.js with the standard Vite React config
3. tailwind.config.js with content: ["./index.html", "./src/**/*.{js,jsx}"]
4. postcss.config.js exporting { plugins: { tailwindcss: {}, autoprefixer: {} } }
5. index.html with <div id="root"></div>
6. src/main.jsx importing './index.css' before React
7. src/App.jsx as the main application component
8. src/index.css containing the @tailwind base/components/utilities directives`

// ProgressFunc receives phase transitions. message is empty except for
// StatusError, where it carries a client-safe description.
type ProgressFunc func(status, message string)

// Pipeline generates projects from specifications. Safe for concurrent use.
type Pipeline struct {
	backend llm.Provider
}

// New creates a Pipeline over the given backend. The backend is typically a
// resilience.LLMFallback so generation survives a flaky provider.
func New(backend llm.Provider) *Pipeline {
	return &Pipeline{backend: backend}
}

// Generate runs both phases and returns the finished project. progress may be
// nil. Only active requirements of s feed the prompts; superseded history is
// deliberately invisible to the model.
func (p *Pipeline) Generate(ctx context.Context, s *spec.ProjectSpec, progress ProgressFunc) (*spec.GeneratedProject, error) {
	if progress == nil {
		progress = func(string, string) {}
	}

	progress(StatusPlanning, "")
	blueprint, err := p.plan(ctx, s)
	if err != nil {
		progress(StatusError, "planning failed")
		return nil, fmt.Errorf("generate: plan phase: %w", err)
	}
	progress(StatusPlanningComplete, "")

	progress(StatusBuilding, "")
	project, err := p.build(ctx, s, blueprint)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFiles):
			progress(StatusError, "generated project has no files")
		case errors.Is(err, ErrMalformedOutput):
			progress(StatusError, "failed to parse generated code, please try again")
		default:
			progress(StatusError, "code generation failed")
		}
		return nil, fmt.Errorf("generate: build phase: %w", err)
	}
	progress(StatusComplete, "")

	slog.Info("project generated",
		"project_name", project.ProjectName,
		"files", len(project.Files))
	return project, nil
}

// plan runs the free-form blueprint pass.
func (p *Pipeline) plan(ctx context.Context, s *spec.ProjectSpec) (string, error) {
	resp, err := p.backend.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: planSystemPrompt,
		Messages:     []llm.Message{llm.UserMessage(requirementsPrompt(s))},
		Temperature:  planTemperature,
		MaxTokens:    planMaxTokens,
	})
	if err != nil {
		return "", err
	}
	blueprint := strings.TrimSpace(resp.Content)
	if blueprint == "" {
		return "", errors.New("empty blueprint")
	}
	return blueprint, nil
}

// build runs the structured code pass against the blueprint.
func (p *Pipeline) build(ctx context.Context, s *spec.ProjectSpec, blueprint string) (*spec.GeneratedProject, error) {
	userPrompt := requirementsPrompt(s) +
		"\n\n## Implementation Blueprint\n" + blueprint +
		"\n\nGenerate the complete project now. Remember to output ONLY valid JSON with the file structure."

	resp, err := p.backend.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt,
		Messages:     []llm.Message{llm.UserMessage(userPrompt)},
		Temperature:  buildTemperature,
		MaxTokens:    buildMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return decodeProject(resp.Content)
}

// requirementsPrompt renders the specification for either phase's user prompt.
func requirementsPrompt(s *spec.ProjectSpec) string {
	var b strings.Builder

	b.WriteString("Generate a complete React application based on these requirements:\n\n")
	b.WriteString("## Project Summary\n")
	if s.ProjectSummary != "" {
		b.WriteString(s.ProjectSummary)
	} else {
		b.WriteString("A web application")
	}

	b.WriteString("\n\n## Features/Requirements\n")
	for _, r := range s.ActiveRequirements() {
		b.WriteString("- ")
		b.WriteString(r.Description)
		b.WriteString("\n")
	}

	b.WriteString("\n## Tech Stack Preferences\n")
	if len(s.TechStack) > 0 {
		b.WriteString(strings.Join(s.TechStack, ", "))
	} else {
		b.WriteString("React with Vite, modern CSS")
	}

	b.WriteString("\n\n## UI/UX Preferences\n")
	if len(s.UIPreferences) > 0 {
		b.WriteString(strings.Join(s.UIPreferences, ", "))
	} else {
		b.WriteString("Modern, clean, professional design")
	}

	return b.String()
}

// buildResult mirrors the build phase JSON. Files is a pointer so a present
// but empty array is distinguishable from an absent field.
type buildResult struct {
	ProjectName   string                `json:"project_name"`
	Files         *[]spec.GeneratedFile `json:"files"`
	SetupCommands []string              `json:"setup_commands"`
	Description   string                `json:"description"`
}

// decodeProject parses the build output and applies defaults for the
// optional fields.
func decodeProject(content string) (*spec.GeneratedProject, error) {
	cleaned := stripCodeFences(content)

	var res buildResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if res.Files == nil {
		return nil, ErrMissingFiles
	}

	project := &spec.GeneratedProject{
		ProjectName:   res.ProjectName,
		Files:         *res.Files,
		SetupCommands: res.SetupCommands,
		Description:   res.Description,
	}
	if project.ProjectName == "" {
		project.ProjectName = defaultProjectName
	}
	if len(project.SetupCommands) == 0 {
		project.SetupCommands = append([]string(nil), defaultSetupCommands...)
	}
	if project.Description == "" {
		project.Description = defaultDescription
	}
	return project, nil
}

// stripCodeFences removes Markdown fence markers around JSON output.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
