package ai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/obs"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-mini"

const termsInstructions = `You extract key terms from study notes. Reply with ONLY a JSON object of the form {"terms": [...]} listing the important terms that should be highlighted: names, dates, events, locations and other significant information. Each term is lowercase and copied from the text. Example: {"terms": ["john smith", "january 15", "conference", "stanford university"]}`

const formatInstructions = `You help students turn text into structured study notes. Reply in HTML wrapped in a single <div> using this layout:

<div>
  <h1>Topic: [Main Topic Title]</h1>
  <h2>1. Overview</h2>
  <ul><li>Key point</li></ul>
  <h2>2. Key Dates / Timeline</h2>
  <ul><li>Year - Event description</li></ul>
  <h2>3. Key People</h2>
  <ul><li>Name - Role or contribution</li></ul>
  <h2>4. Key Concepts</h2>
  <ul><li>Concept - Brief explanation</li></ul>
  <h2>5. Impact / Outcome</h2>
  <ul><li>Impact point</li></ul>
  <h2>6. Fast Facts</h2>
  <ul><li>Quick fact</li></ul>
</div>

Keep bullet points concise. Use <strong> for important terms and <mark> for key dates or numbers.`

// OpenAI implements TextService with the OpenAI Responses API.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates a client for apiKey. Extra request options are applied
// after the key, so tests can point the client at a local server.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{
		client:  openai.NewClient(all...),
		model:   model,
		timeout: 60 * time.Second,
	}
}

func (o *OpenAI) respond(ctx context.Context, instructions, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        shared.ResponsesModel(o.model),
		Instructions: openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(input),
		},
	})
	if err != nil {
		obs.From(ctx).Warn("ai.request_failed", "model", o.model, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", errs.Wrap(errs.Unavailable, "AI service unavailable", err)
	}
	text := resp.OutputText()
	obs.From(ctx).Info("ai.request_completed", "model", o.model, "response_id", resp.ID,
		"output_bytes", len(text), "duration_ms", time.Since(start).Milliseconds())
	if text == "" {
		return "", errs.New(errs.Unavailable, "AI returned an empty response")
	}
	return text, nil
}

func (o *OpenAI) ExtractTerms(ctx context.Context, text string) ([]string, error) {
	if err := validateInput(text); err != nil {
		return nil, err
	}
	reply, err := o.respond(ctx, termsInstructions, text)
	if err != nil {
		return nil, err
	}
	return ParseTerms(reply)
}

func (o *OpenAI) Format(ctx context.Context, text string) (string, error) {
	if err := validateInput(text); err != nil {
		return "", err
	}
	reply, err := o.respond(ctx, formatInstructions, text)
	if err != nil {
		return "", err
	}
	return RenderReply(reply), nil
}
