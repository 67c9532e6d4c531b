package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"divination-ai/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Chat Completions API. The same adapter serves
// the "openai" cloud provider and any OpenAI-compatible local server
// (ollama, llama.cpp, vLLM) through a custom base URL.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	maxOut int
}

// NewOpenAIAdapter builds the cloud adapter; an api key is required.
func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...), model: model, maxOut: maxOut}, nil
}

// NewLocalAdapter targets a local OpenAI-compatible server. Local servers
// usually ignore the key, so a placeholder is sent.
func NewLocalAdapter(baseURL, model string, maxOut int) (*OpenAIAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("local model base url empty")
	}
	if model == "" {
		return nil, errors.New("local model name empty")
	}
	c := openai.NewClient(option.WithAPIKey("local"), option.WithBaseURL(baseURL))
	return &OpenAIAdapter{client: c, model: model, maxOut: maxOut}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	iter := o.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		out = append(out, iter.Current().ID)
	}
	if err := iter.Err(); err != nil || len(out) == 0 {
		return []string{o.model}, nil
	}
	return out, nil
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	model = modelOrDefault(model, o.model)
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", adapter.Usage{}, errors.New("openai: empty choices")
	}
	text := resp.Choices[0].Message.Content

	u := adapter.Usage{
		Model:            model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	if u.TotalTokens == 0 {
		u = estimateUsage(model, messages, text)
	}
	if strings.TrimSpace(text) == "" {
		return "", u, errors.New("openai: empty response")
	}
	return text, u, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant", "model":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// estimateUsage counts tokens locally for servers that report no usage.
// Unknown model names fall back to the cl100k_base encoding.
func estimateUsage(model string, messages []adapter.Message, reply string) adapter.Usage {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return adapter.Usage{Model: model}
		}
	}
	prompt := 0
	for _, m := range messages {
		prompt += len(enc.Encode(m.Content, nil, nil))
	}
	completion := len(enc.Encode(reply, nil, nil))
	return adapter.Usage{
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
