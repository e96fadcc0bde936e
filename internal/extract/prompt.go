package extract

import (
	"encoding/json"
	"strings"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

// defaultRecentWindowWords is how many trailing words of the transcript are
// highlighted as recent context for change detection.
const defaultRecentWindowWords = 200

const systemPrompt = `You are a Senior Product Manager and Requirements Engineer. Your job is to analyze client conversation transcripts and extract structured technical project requirements.

CRITICAL RULES:
1. **Instruction Hierarchy (Latest Trumps Previous)**: If a user changes their mind during the conversation (e.g., "Actually, use a sidebar instead of a navbar"), the latest instruction is the ABSOLUTE TRUTH. Mark the old requirement as "superseded" and create a new "active" requirement.

2. **Requirement Tracking**: Each requirement needs a unique numeric ID. When a requirement supersedes another, include "supersedes": <old_id> in the new requirement.

3. **Context Awareness**: I will provide the full transcript. Prioritize the most recent ~200 words for detecting active changes, but use the full history to understand the overall project.

4. **Output Format**: Strictly valid JSON matching this schema:
{
    "project_summary": "<One sentence describing what is being built>",
    "requirements": [
        {"id": 1, "description": "<requirement text>", "status": "active"},
        {"id": 2, "description": "<superseding requirement>", "status": "active", "supersedes": 3},
        {"id": 3, "description": "<old requirement>", "status": "superseded"}
    ],
    "tech_stack": ["<technology1>", "<technology2>"],
    "ui_preferences": ["<preference1>", "<preference2>"]
}

5. **Incremental Updates**: If I provide a previous specification, merge your new findings with it. Maintain existing IDs and only add new requirements or supersede old ones.

6. **Be Specific**: Extract concrete, actionable requirements. Avoid vague statements.`

// jsonOnlyDirective is the system message for backends that have no native
// JSON response mode.
const jsonOnlyDirective = "You are a JSON-only API. Output valid JSON and nothing else."

// recentWindow returns the last n whitespace-separated words of transcript,
// rejoined with single spaces.
func recentWindow(transcript string, n int) string {
	words := strings.Fields(transcript)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// buildPrompt assembles the user prompt for one extraction call. prev may be
// nil on the first extraction of a session.
func buildPrompt(prev *spec.ProjectSpec, transcript string, recentWords int) string {
	if recentWords <= 0 {
		recentWords = defaultRecentWindowWords
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")

	if prev != nil {
		encoded, err := json.MarshalIndent(prev, "", "  ")
		if err == nil {
			b.WriteString("PREVIOUS SPECIFICATION (maintain and update):\n")
			b.Write(encoded)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("FULL TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\n")
	b.WriteString("RECENT CONTEXT (prioritize for changes):\n")
	b.WriteString(recentWindow(transcript, recentWords))
	b.WriteString("\n\n")
	b.WriteString("Analyze the transcript and output the updated project specification as JSON. Output ONLY the JSON, no other text.")

	return b.String()
}

// stripCodeFences removes Markdown code fence markers that chat models wrap
// around JSON output despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
