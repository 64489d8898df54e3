package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/quiz"
)

// Handler implements MCP tool call handling.
type Handler struct {
	notes *notes.Service
	quiz  *quiz.Service
}

// NewHandler creates a handler. A nil service disables the tools that need it.
func NewHandler(notesSvc *notes.Service, quizSvc *quiz.Service) *Handler {
	return &Handler{notes: notesSvc, quiz: quizSvc}
}

// toolErrorPayload is the body of every IsError tool result.
type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// createToolHandler returns a tool handler function for the given tool name.
// Failures become IsError results, never transport errors.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		result, err := h.HandleToolCall(ctx, name, args)
		if err != nil {
			obs.From(ctx).Warn("mcp.tool_failed",
				"tool", name,
				"code", string(errs.CodeOf(err)),
				"error", obs.Truncate(err.Error(), 300),
				"duration_ms", time.Since(start).Milliseconds())
			return newToolResultError(err), nil, nil
		}
		obs.From(ctx).Info("mcp.tool_completed", "tool", name, "duration_ms", time.Since(start).Milliseconds())
		return result, nil, nil
	}
}

// HandleToolCall routes tool calls to appropriate handlers.
func (h *Handler) HandleToolCall(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case ToolNoteList:
		return h.handleNoteList(ctx, args)
	case ToolNoteView:
		return h.handleNoteView(ctx, args)
	case ToolNoteCreate:
		return h.handleNoteCreate(ctx, args)
	case ToolNoteEdit:
		return h.handleNoteEdit(ctx, args)
	case ToolHighlightToggle:
		return h.handleHighlightToggle(ctx, args)
	case ToolHighlightsReconcile:
		return h.handleHighlightsReconcile(args)
	case ToolQuizStatus:
		return h.handleQuizStatus(ctx, args)
	default:
		return nil, errs.New(errs.NotFound, fmt.Sprintf("unknown tool: %s", name))
	}
}

func (h *Handler) requireNotes() (*notes.Service, error) {
	if h.notes == nil {
		return nil, errs.New(errs.FailedPrecondition, "notes tools are unavailable on this MCP endpoint")
	}
	return h.notes, nil
}

func (h *Handler) requireQuiz() (*quiz.Service, error) {
	if h.quiz == nil {
		return nil, errs.New(errs.FailedPrecondition, "quiz tools are unavailable on this MCP endpoint")
	}
	return h.quiz, nil
}

// decodeToolArgs decodes tool arguments into dst, rejecting unknown fields.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments must be a JSON object", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result carrying the error's code and message.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{Code: string(errs.CodeOf(err)), Message: errs.MessageOf(err)}
	text := string(marshalAny(payload))
	if text == "" {
		text = payload.Message
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// marshalAny returns indented JSON, or nil when value cannot be encoded.
func marshalAny(value any) []byte {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return data
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	data := marshalAny(value)
	if data == nil {
		return nil, errs.New(errs.Internal, "failed to marshal response")
	}
	return newToolResultText(string(data)), nil
}

type noteViewResult struct {
	ID          string                `json:"id"`
	Kind        notes.OwnerKind       `json:"kind"`
	Title       string                `json:"title"`
	Content     string                `json:"content"`
	TotalTokens int                   `json:"total_tokens"`
	TokenRange  *[2]int               `json:"token_range,omitempty"`
	Highlights  []highlight.Highlight `json:"highlights"`
}

type noteCreateResult struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	TotalTokens int       `json:"total_tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

type noteEditResult struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	TotalTokens      int       `json:"total_tokens"`
	ReplacementsMade int       `json:"replacements_made"`
	HighlightsBefore int       `json:"highlights_before"`
	HighlightsAfter  int       `json:"highlights_after"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type highlightsResult struct {
	Highlights []highlight.Highlight `json:"highlights"`
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct{}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	items, err := svc.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(struct {
		Notes      []notes.NoteListItem `json:"notes"`
		TotalCount int                  `json:"total_count"`
	}{Notes: items, TotalCount: len(items)})
}

func (h *Handler) handleNoteView(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID         string `json:"id"`
		TokenRange []int  `json:"token_range"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, errs.New(errs.InvalidArgument, "id is required")
	}

	start, end := 0, -1
	var tokenRange *[2]int
	if in.TokenRange != nil {
		if len(in.TokenRange) != 2 {
			return nil, errs.New(errs.InvalidArgument, "token_range must be [start, end]")
		}
		start, end = in.TokenRange[0], in.TokenRange[1]
		if start < 0 || (end >= 0 && end < start) {
			return nil, errs.New(errs.InvalidArgument, "token_range start must be >= 0 and end must be -1 or >= start")
		}
		tokenRange = &[2]int{start, end}
	}

	owner, err := svc.Owner(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	formatted, total := notes.FormatTokens(owner.Content, owner.Highlights, start, end)
	return jsonResult(noteViewResult{
		ID:          owner.ID,
		Kind:        owner.Kind,
		Title:       owner.Title,
		Content:     formatted,
		TotalTokens: total,
		TokenRange:  tokenRange,
		Highlights:  owner.Highlights,
	})
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in notes.CreateNoteParams
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, err := svc.CreateNote(ctx, in)
	if err != nil {
		return nil, err
	}
	return jsonResult(noteCreateResult{
		ID:          note.ID,
		Title:       note.Title,
		TotalTokens: notes.CountTokens(note.Content),
		CreatedAt:   note.CreatedAt,
	})
}

func (h *Handler) handleNoteEdit(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID         string  `json:"id"`
		OldString  *string `json:"old_string"`
		NewString  *string `json:"new_string"`
		ReplaceAll bool    `json:"replace_all"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.OldString == nil || in.NewString == nil {
		return nil, errs.New(errs.InvalidArgument, "old_string and new_string are required")
	}

	note, meta, err := svc.StrReplace(ctx, in.ID, *in.OldString, *in.NewString, in.ReplaceAll)
	if err != nil {
		return nil, err
	}
	return jsonResult(noteEditResult{
		ID:               note.ID,
		Title:            note.Title,
		TotalTokens:      notes.CountTokens(note.Content),
		ReplacementsMade: meta.ReplacementsMade,
		HighlightsBefore: meta.HighlightsBefore,
		HighlightsAfter:  meta.HighlightsAfter,
		UpdatedAt:        note.UpdatedAt,
	})
}

func (h *Handler) handleHighlightToggle(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireNotes()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID    string `json:"id"`
		Word  string `json:"word"`
		Index *int   `json:"index"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Index == nil {
		return nil, errs.New(errs.InvalidArgument, "index is required")
	}
	hs, err := svc.ToggleHighlight(obs.WithOwner(ctx, in.ID), in.ID, in.Word, *in.Index)
	if err != nil {
		return nil, err
	}
	return jsonResult(highlightsResult{Highlights: hs})
}

func (h *Handler) handleHighlightsReconcile(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		Content    string                `json:"content"`
		Highlights []highlight.Highlight `json:"highlights"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	return jsonResult(highlightsResult{Highlights: highlight.Reconcile(in.Content, in.Highlights)})
}

func (h *Handler) handleQuizStatus(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, err := h.requireQuiz()
	if err != nil {
		return nil, err
	}
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	sess, err := svc.State(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return jsonResult(sess)
}
