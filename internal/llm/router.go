package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/pkg/anthropic"
)

// ErrNoProvider is returned when no LLM provider can serve a request. It is
// fatal: research cannot proceed without extraction.
var ErrNoProvider = eris.New("llm: no provider available")

// DefaultRequestTimeout bounds a single completion call.
const DefaultRequestTimeout = 120 * time.Second

// Request is a provider-agnostic completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// Response is a provider-agnostic completion result.
type Response struct {
	Text         string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// Client is the completion interface the pipeline talks to. The router and
// both concrete providers implement it.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Router dispatches completions to the primary provider and falls back to the
// secondary. Billing failures retire the primary for the rest of the process;
// timeouts and transient errors divert only the current call.
type Router struct {
	primary   Client
	secondary Client
	state     *ProviderState
	timeout   time.Duration
}

// NewRouter builds a router. Either provider may be nil.
func NewRouter(primary, secondary Client, state *ProviderState, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Router{primary: primary, secondary: secondary, state: state, timeout: timeout}
}

func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	var primaryErr error

	if r.primary != nil && !r.state.LLMPrimaryDead() {
		resp, err := r.complete(ctx, r.primary, req)
		if err == nil {
			return resp, nil
		}
		primaryErr = err

		if isBillingError(err) {
			r.state.MarkLLMPrimaryDead()
			zap.L().Warn("llm: primary provider billing failure, retiring it for the rest of the run",
				zap.Error(err))
		} else {
			zap.L().Warn("llm: primary provider failed, falling back for this call",
				zap.Error(err))
		}
	}

	if r.secondary != nil {
		resp, err := r.complete(ctx, r.secondary, req)
		if err != nil {
			return nil, eris.Wrap(err, "llm: secondary provider")
		}
		return resp, nil
	}

	if primaryErr != nil {
		return nil, primaryErr
	}
	return nil, ErrNoProvider
}

func (r *Router) complete(ctx context.Context, client Client, req Request) (*Response, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return client.Complete(cctx, req)
}

// isBillingError reports whether an error means the account cannot pay, which
// is unrecoverable for the life of the process.
func isBillingError(err error) bool {
	if err == nil {
		return false
	}

	status := anthropic.StatusCode(err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	switch status {
	case 401, 402:
		return true
	}

	// A 400 is billing only when the message says so; a malformed or
	// oversized request diverts just the current call.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"credit", "balance", "billing"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// DefaultMaxTokens caps a completion when neither the request nor the
// provider configuration sets a limit.
const DefaultMaxTokens = 4096

// AnthropicProvider adapts pkg/anthropic to the Client interface.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider wraps an Anthropic client with a default model and
// per-call token cap. A maxTokens of 0 falls back to DefaultMaxTokens.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   int64(maxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         resp.Text,
		Model:        resp.Model,
		Provider:     "anthropic",
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// chatCompleter is the slice of go-openai the provider needs; tests fake it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts go-openai chat completions to the Client interface.
type OpenAIProvider struct {
	api       chatCompleter
	model     string
	maxTokens int
}

// NewOpenAIProvider wraps an OpenAI client with a default model and per-call
// token cap. A maxTokens of 0 falls back to DefaultMaxTokens.
func NewOpenAIProvider(client *openai.Client, model string, maxTokens int) *OpenAIProvider {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIProvider{api: client, model: model, maxTokens: maxTokens}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	chatReq := openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  toChatMessages(req),
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	resp, err := p.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, eris.Wrap(err, "llm: openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("llm: openai returned no choices")
	}

	return &Response{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:        resp.Model,
		Provider:     "openai",
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func toChatMessages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return msgs
}
