package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/studynotes/internal/errs"
)

func TestParseTerms(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"object", `{"terms": ["Marie Curie", "radium", "1898"]}`, []string{"marie curie", "radium", "1898"}},
		{"fenced", "```json\n{\"terms\": [\"Paris\"]}\n```", []string{"paris"}},
		{"bare array", `["Nobel Prize", "nobel  prize", "Poland"]`, []string{"nobel prize", "poland"}},
		{"empty terms", `{"terms": []}`, []string{}},
		{"missing key", `{"keywords": ["x"]}`, []string{}},
		{"blank entries", `{"terms": ["", "  ", "ok"]}`, []string{"ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTerms(tt.reply)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseTerms_Malformed(t *testing.T) {
	for _, reply := range []string{"", "no json here", `{"terms": [1, 2]}`, `{"terms": "x"`} {
		_, err := ParseTerms(reply)
		require.True(t, errs.Is(err, errs.Unavailable), "reply %q: %v", reply, err)
	}
}

// =============================================================================
// Property: parsed terms are lowercase, trimmed and distinct
// =============================================================================

func testParseTerms_Normalized_Properties(t *rapid.T) {
	raw := rapid.SliceOfN(rapid.StringMatching(`[ A-Za-z0-9]{0,20}`), 0, 20).Draw(t, "terms")
	data, err := json.Marshal(map[string][]string{"terms": raw})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ParseTerms(string(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	seen := map[string]bool{}
	for _, term := range got {
		if term == "" || term != strings.ToLower(term) || term != strings.TrimSpace(term) {
			t.Fatalf("term not normalized: %q", term)
		}
		if seen[term] {
			t.Fatalf("duplicate term %q in %v", term, got)
		}
		seen[term] = true
	}
}

func TestParseTerms_Normalized_Properties(t *testing.T) {
	rapid.Check(t, testParseTerms_Normalized_Properties)
}

func FuzzParseTerms_Normalized_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testParseTerms_Normalized_Properties))
}

func TestRenderReply(t *testing.T) {
	t.Run("html kept and wrapped", func(t *testing.T) {
		out := RenderReply("<h1>Topic</h1><ul><li><strong>Curie</strong> found <mark>1898</mark></li></ul>")
		require.True(t, strings.HasPrefix(out, "<div>"), out)
		require.Contains(t, out, "<h1>Topic</h1>")
		require.Contains(t, out, "<mark>1898</mark>")
		require.Contains(t, out, "<strong>Curie</strong>")
	})

	t.Run("existing div not double wrapped", func(t *testing.T) {
		out := RenderReply("  <div><p>hi</p></div>  ")
		require.Equal(t, "<div><p>hi</p></div>", out)
	})

	t.Run("markdown converted", func(t *testing.T) {
		out := RenderReply("# Radium\n\n- discovered **1898**\n")
		require.True(t, strings.HasPrefix(out, "<div>"), out)
		require.Contains(t, out, "<h1")
		require.Contains(t, out, "<li>")
		require.Contains(t, out, "<strong>1898</strong>")
	})

	t.Run("scripts stripped", func(t *testing.T) {
		out := RenderReply(`<div><p onclick="x()">ok</p><script>alert(1)</script></div>`)
		require.NotContains(t, out, "script")
		require.NotContains(t, out, "onclick")
		require.Contains(t, out, "ok")
	})

	t.Run("empty", func(t *testing.T) {
		require.Empty(t, RenderReply("  "))
	})
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := Mock{}

	terms, err := m.ExtractTerms(ctx, "<p>Marie Curie discovered radium and polonium in Paris.</p>")
	require.NoError(t, err)
	require.Equal(t, []string{"discovered", "polonium", "radium", "curie", "marie"}, terms)

	again, err := m.ExtractTerms(ctx, "<p>Marie Curie discovered radium and polonium in Paris.</p>")
	require.NoError(t, err)
	require.Equal(t, terms, again)

	out, err := m.Format(ctx, "radium <b>glows</b>")
	require.NoError(t, err)
	require.Equal(t, "<div><h1>Topic: radium glows</h1><p>radium glows</p></div>", out)

	_, err = m.ExtractTerms(ctx, "   ")
	require.True(t, errs.Is(err, errs.InvalidArgument))

	boom := errs.New(errs.Unavailable, "down")
	_, err = Mock{Err: boom}.Format(ctx, "x")
	require.ErrorIs(t, err, boom)
}

// fakeResponses serves the Responses API with a canned output text.
type fakeResponses struct {
	mu     sync.Mutex
	status int
	text   string
	bodies []map[string]any
}

func (f *fakeResponses) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !strings.HasSuffix(r.URL.Path, "/responses") {
		http.NotFound(w, r)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)
	f.bodies = append(f.bodies, body)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream down", "type": "server_error"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "resp_test",
		"object": "response",
		"status": "completed",
		"model":  "test-model",
		"output": []any{map[string]any{
			"type":   "message",
			"id":     "msg_1",
			"role":   "assistant",
			"status": "completed",
			"content": []any{map[string]any{
				"type":        "output_text",
				"text":        f.text,
				"annotations": []any{},
			}},
		}},
	})
}

func newTestOpenAI(t *testing.T, fake *fakeResponses) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewOpenAI("test-key", "test-model", option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
}

func TestOpenAI_ExtractTerms(t *testing.T) {
	fake := &fakeResponses{text: `{"terms": ["Marie Curie", "Radium"]}`}
	client := newTestOpenAI(t, fake)

	terms, err := client.ExtractTerms(context.Background(), "Marie Curie discovered radium.")
	require.NoError(t, err)
	require.Equal(t, []string{"marie curie", "radium"}, terms)

	require.Len(t, fake.bodies, 1)
	require.Equal(t, "test-model", fake.bodies[0]["model"])
	require.Equal(t, "Marie Curie discovered radium.", fake.bodies[0]["input"])
	require.Contains(t, fake.bodies[0]["instructions"], `{"terms": [...]}`)
}

func TestOpenAI_Format(t *testing.T) {
	fake := &fakeResponses{text: "## Overview\n\n- Curie won **two** Nobel prizes"}
	client := newTestOpenAI(t, fake)

	out, err := client.Format(context.Background(), "curie")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "<div>"), out)
	require.Contains(t, out, "<strong>two</strong>")
}

func TestOpenAI_FailureIsUnavailable(t *testing.T) {
	client := newTestOpenAI(t, &fakeResponses{status: http.StatusInternalServerError})

	_, err := client.ExtractTerms(context.Background(), "text")
	require.True(t, errs.Is(err, errs.Unavailable), "got %v", err)

	client = newTestOpenAI(t, &fakeResponses{text: ""})
	_, err = client.Format(context.Background(), "text")
	require.True(t, errs.Is(err, errs.Unavailable), "got %v", err)
}

func TestOpenAI_ValidatesInput(t *testing.T) {
	fake := &fakeResponses{}
	client := newTestOpenAI(t, fake)

	_, err := client.ExtractTerms(context.Background(), "")
	require.True(t, errs.Is(err, errs.InvalidArgument))
	_, err = client.Format(context.Background(), strings.Repeat("a", MaxInputBytes+1))
	require.True(t, errs.Is(err, errs.InvalidArgument))
	require.Empty(t, fake.bodies)
	require.False(t, errors.Is(err, context.Canceled))
}
