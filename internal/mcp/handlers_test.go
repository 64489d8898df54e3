package mcp

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/quiz"
	"github.com/kuitang/studynotes/internal/statestore"
	"github.com/kuitang/studynotes/internal/testdb"
)

func toolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "unexpected content type: %T", result.Content[0])
	return text.Text
}

func parseToolErrorPayload(t *testing.T, result *mcp.CallToolResult) toolErrorPayload {
	t.Helper()
	require.True(t, result.IsError, "expected IsError result")
	var payload toolErrorPayload
	require.NoError(t, json.Unmarshal([]byte(toolResultText(t, result)), &payload))
	return payload
}

func newTestHandler(t *testing.T) (*Handler, *notes.Service, *quiz.Service) {
	t.Helper()
	d := testdb.New(t)
	notesSvc := notes.NewService(d)
	quizSvc := quiz.NewService(notesSvc, statestore.NewMemory(), rand.New(rand.NewPCG(3, 4)))
	return NewHandler(notesSvc, quizSvc), notesSvc, quizSvc
}

// call invokes a tool the way the SDK does and decodes a successful result.
func call[T any](t *testing.T, h *Handler, name string, args map[string]any) T {
	t.Helper()
	result, _, err := h.createToolHandler(name)(context.Background(), &mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	require.False(t, result.IsError, toolResultText(t, result))
	var out T
	require.NoError(t, json.Unmarshal([]byte(toolResultText(t, result)), &out))
	return out
}

func callErr(t *testing.T, h *Handler, name string, args map[string]any) toolErrorPayload {
	t.Helper()
	result, _, err := h.createToolHandler(name)(context.Background(), &mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	return parseToolErrorPayload(t, result)
}

func testDecodeToolArgs_UnknownFieldsRejected(t *rapid.T) {
	field := rapid.StringMatching(`[a-z]{3,10}`).Filter(func(s string) bool { return s != "id" }).Draw(t, "field")
	var decoded struct {
		ID string `json:"id"`
	}
	err := decodeToolArgs(map[string]any{"id": "note-1", field: "unexpected"}, &decoded)
	if errs.CodeOf(err) != errs.InvalidArgument {
		t.Fatalf("unknown field %q: got code %q", field, errs.CodeOf(err))
	}
}

func TestDecodeToolArgs_UnknownFieldsRejected(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testDecodeToolArgs_UnknownFieldsRejected)
}

func TestDecodeToolArgs_NilMapBehavesAsEmptyObject(t *testing.T) {
	t.Parallel()
	var decoded struct {
		Optional string `json:"optional,omitempty"`
	}
	require.NoError(t, decodeToolArgs(nil, &decoded))
}

func TestMarshalAny_InvalidValue_DoesNotPanic(t *testing.T) {
	t.Parallel()
	require.Nil(t, marshalAny(map[string]any{"bad": make(chan int)}))
}

func TestNewToolResultError_UsesStableJSONShape(t *testing.T) {
	t.Parallel()
	payload := parseToolErrorPayload(t, newToolResultError(errs.New(errs.InvalidArgument, "bad input")))
	require.Equal(t, toolErrorPayload{Code: string(errs.InvalidArgument), Message: "bad input"}, payload)
}

func TestCreateToolHandler_UnknownTool(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)
	payload := callErr(t, h, "tool_that_does_not_exist", map[string]any{})
	require.Equal(t, string(errs.NotFound), payload.Code)
	require.Contains(t, strings.ToLower(payload.Message), "unknown tool")
}

func TestCreateToolHandler_ServicesUnavailable(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)

	payload := callErr(t, h, ToolNoteList, map[string]any{})
	require.Equal(t, string(errs.FailedPrecondition), payload.Code)
	require.Contains(t, payload.Message, "notes tools are unavailable")

	payload = callErr(t, h, ToolQuizStatus, map[string]any{"id": "n1"})
	require.Equal(t, string(errs.FailedPrecondition), payload.Code)

	// Reconcile needs no stored state.
	out := call[highlightsResult](t, h, ToolHighlightsReconcile, map[string]any{"content": "", "highlights": []any{}})
	require.Empty(t, out.Highlights)
}

func TestToolDefinitions_AllRouted(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)
	for _, tool := range ToolDefinitions() {
		_, err := h.HandleToolCall(context.Background(), tool.Name, map[string]any{})
		require.NotEqual(t, errs.NotFound, errs.CodeOf(err), tool.Name)
	}
}

func TestNoteTools(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)

	created := call[noteCreateResult](t, h, ToolNoteCreate, map[string]any{
		"title":   "Curie",
		"content": "Marie Curie discovered radium. Curie won twice.",
	})
	require.Equal(t, "Curie", created.Title)
	require.Equal(t, 7, created.TotalTokens)

	toggled := call[highlightsResult](t, h, ToolHighlightToggle, map[string]any{"id": created.ID, "word": "Curie", "index": 4})
	require.Len(t, toggled.Highlights, 1)
	require.Equal(t, "curie", toggled.Highlights[0].Word)

	view := call[noteViewResult](t, h, ToolNoteView, map[string]any{"id": created.ID})
	require.Equal(t, notes.OwnerNote, view.Kind)
	require.Equal(t, 7, view.TotalTokens)
	require.Contains(t, view.Content, "     4\t*Curie")
	require.Contains(t, view.Content, "     1\tCurie")

	view = call[noteViewResult](t, h, ToolNoteView, map[string]any{"id": created.ID, "token_range": []int{1, 2}})
	require.Equal(t, "     1\tCurie\n     2\tdiscovered", view.Content)
	require.Equal(t, &[2]int{1, 2}, view.TokenRange)

	edited := call[noteEditResult](t, h, ToolNoteEdit, map[string]any{
		"id":         created.ID,
		"old_string": "Marie ",
		"new_string": "",
	})
	require.Equal(t, 1, edited.ReplacementsMade)
	require.Equal(t, 1, edited.HighlightsAfter)

	view = call[noteViewResult](t, h, ToolNoteView, map[string]any{"id": created.ID})
	require.Equal(t, []highlight.Highlight{{Word: "curie", Index: 3, ID: toggled.Highlights[0].ID}}, view.Highlights)

	list := call[struct {
		Notes      []notes.NoteListItem `json:"notes"`
		TotalCount int                  `json:"total_count"`
	}](t, h, ToolNoteList, nil)
	require.Equal(t, 1, list.TotalCount)
	require.Equal(t, 1, list.Notes[0].Highlights)
}

func TestNoteTools_Errors(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)
	created := call[noteCreateResult](t, h, ToolNoteCreate, map[string]any{"title": "t", "content": "a a b"})

	cases := []struct {
		name string
		tool string
		args map[string]any
		code errs.Code
	}{
		{"view missing id", ToolNoteView, map[string]any{}, errs.InvalidArgument},
		{"view unknown note", ToolNoteView, map[string]any{"id": "nope"}, errs.NotFound},
		{"view bad range", ToolNoteView, map[string]any{"id": created.ID, "token_range": []int{3, 1}}, errs.InvalidArgument},
		{"view short range", ToolNoteView, map[string]any{"id": created.ID, "token_range": []int{1}}, errs.InvalidArgument},
		{"create blank title", ToolNoteCreate, map[string]any{"title": " "}, errs.InvalidArgument},
		{"create unknown field", ToolNoteCreate, map[string]any{"title": "x", "visibility": "public"}, errs.InvalidArgument},
		{"edit no match", ToolNoteEdit, map[string]any{"id": created.ID, "old_string": "zzz", "new_string": "y"}, errs.InvalidArgument},
		{"edit ambiguous", ToolNoteEdit, map[string]any{"id": created.ID, "old_string": "a", "new_string": "c"}, errs.InvalidArgument},
		{"edit missing new_string", ToolNoteEdit, map[string]any{"id": created.ID, "old_string": "b"}, errs.InvalidArgument},
		{"toggle missing index", ToolHighlightToggle, map[string]any{"id": created.ID, "word": "a"}, errs.InvalidArgument},
		{"toggle wrong word", ToolHighlightToggle, map[string]any{"id": created.ID, "word": "b", "index": 0}, errs.InvalidArgument},
		{"quiz missing id", ToolQuizStatus, map[string]any{}, errs.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := callErr(t, h, tc.tool, tc.args)
			require.Equal(t, string(tc.code), payload.Code, payload.Message)
			require.NotEmpty(t, payload.Message)
		})
	}
}

func TestHighlightsReconcileTool(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)
	out := call[highlightsResult](t, h, ToolHighlightsReconcile, map[string]any{
		"content": "the cat sat on the mat",
		"highlights": []map[string]any{
			{"word": "mat", "index": 1, "id": "m"},
			{"word": "dog", "index": 2, "id": "d"},
		},
	})
	require.Equal(t, []highlight.Highlight{{Word: "mat", Index: 5, ID: "m"}}, out.Highlights)
}

func TestQuizStatusTool(t *testing.T) {
	t.Parallel()
	h, notesSvc, quizSvc := newTestHandler(t)
	ctx := context.Background()

	note, err := notesSvc.CreateNote(ctx, notes.CreateNoteParams{Title: "t", Content: "Marie Curie discovered radium"})
	require.NoError(t, err)
	_, err = notesSvc.ToggleHighlight(ctx, note.ID, "curie", 1)
	require.NoError(t, err)

	sess := call[quiz.Session](t, h, ToolQuizStatus, map[string]any{"id": note.ID})
	require.Equal(t, quiz.Inactive, sess.Phase)

	_, err = quizSvc.Enable(ctx, note.ID)
	require.NoError(t, err)
	_, err = quizSvc.Select(ctx, note.ID, "curie", 1)
	require.NoError(t, err)

	sess = call[quiz.Session](t, h, ToolQuizStatus, map[string]any{"id": note.ID})
	require.Equal(t, quiz.Active, sess.Phase)
	require.NotNil(t, sess.Question)
	require.Equal(t, "curie", sess.Question.Word)
}
