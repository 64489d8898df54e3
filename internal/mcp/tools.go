package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Tool names.
const (
	ToolNoteList            = "note_list"
	ToolNoteView            = "note_view"
	ToolNoteCreate          = "note_create"
	ToolNoteEdit            = "note_edit"
	ToolHighlightToggle     = "highlight_toggle"
	ToolHighlightsReconcile = "highlights_reconcile"
	ToolQuizStatus          = "quiz_status"
)

// ToolDefinitions returns every tool the server mounts.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        ToolNoteList,
			Description: "Notes tool. List notes in display order with title, a short plain-text preview, and the number of highlights and tiles. Use note_view to read a complete note.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolNoteView,
			Description: "Notes tool. Read a note or tile one token per line (tab-separated, numbered by token index, which is the index highlights use). Highlighted tokens are prefixed with '*'. Optionally pass token_range as [start, end] (0-indexed, inclusive; end=-1 means the last token). The response includes total_tokens and the highlight list.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note or tile to read",
					},
					"token_range": map[string]any{
						"type":        "array",
						"description": "Optional [start, end] token range (0-indexed, inclusive). end=-1 means the last token.",
						"items":       map[string]any{"type": "integer"},
						"minItems":    2,
						"maxItems":    2,
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteCreate,
			Description: "Notes tool. Create a note with a title and optional content. The note is appended after the existing notes. Returns the assigned id, title, token count, and creation timestamp.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The title of the note (required)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The content of the note (optional)",
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        ToolNoteEdit,
			Description: "Notes tool. Make a surgical text edit within a note using find-and-replace. The edit fails if old_string is not found, or matches several locations while replace_all is false. Highlights follow their words to the new content; highlights whose word no longer appears are dropped. Returns the replacement count and the highlight counts before and after.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note to edit",
					},
					"old_string": map[string]any{
						"type":        "string",
						"description": "The exact text to find in the note content",
					},
					"new_string": map[string]any{
						"type":        "string",
						"description": "The replacement text",
					},
					"replace_all": map[string]any{
						"type":        "boolean",
						"description": "Replace all occurrences of old_string (default false)",
					},
				},
				"required": []string{"id", "old_string", "new_string"},
			},
		},
		{
			Name:        ToolHighlightToggle,
			Description: "Highlights tool. Toggle the highlight on one token of a note or tile. Pass the word and its token index as shown by note_view. Toggling an unhighlighted token adds a highlight, toggling a highlighted one removes it. Returns the full highlight list.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note or tile",
					},
					"word": map[string]any{
						"type":        "string",
						"description": "The token text (compared lowercased)",
					},
					"index": map[string]any{
						"type":        "integer",
						"description": "The token index from note_view",
					},
				},
				"required": []string{"id", "word", "index"},
			},
		},
		{
			Name:        ToolHighlightsReconcile,
			Description: "Highlights tool. Preview how highlights would move onto new content without saving anything. Each highlight keeps its id and moves to the occurrence of its word nearest the old index; highlights whose word is gone are dropped.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The new content",
					},
					"highlights": map[string]any{
						"type":        "array",
						"description": "Highlights as returned by note_view",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"word":  map[string]any{"type": "string"},
								"index": map[string]any{"type": "integer"},
								"id":    map[string]any{"type": "string"},
							},
							"required": []string{"word", "index"},
						},
					},
				},
				"required": []string{"content", "highlights"},
			},
		},
		{
			Name:        ToolQuizStatus,
			Description: "Quiz tool. Report the quiz state of a note or tile: phase (inactive, active, finished), revealed highlights, answer statistics, and the open question if one is selected.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The id of the note or tile",
					},
				},
				"required": []string{"id"},
			},
		},
	}
}
