package llm

import (
	"context"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	calls int
	resp  *Response
	err   error
}

func (f *fakeProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.Provider = f.name
	return &resp, nil
}

func TestRouter_PrimaryFirst(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "anthropic", resp: &Response{Text: "ok"}}
	secondary := &fakeProvider{name: "openai", resp: &Response{Text: "fallback"}}
	router := NewRouter(primary, secondary, NewProviderState(), 0)

	resp, err := router.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Zero(t, secondary.calls)
}

func TestRouter_BillingFailureIsPermanent(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "anthropic", err: &openai.APIError{
		HTTPStatusCode: 402,
		Message:        "insufficient credit balance",
	}}
	secondary := &fakeProvider{name: "openai", resp: &Response{Text: "fallback"}}
	state := NewProviderState()
	router := NewRouter(primary, secondary, state, 0)

	resp, err := router.Complete(context.Background(), Request{Prompt: "one"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.True(t, state.LLMPrimaryDead())

	// The primary is never consulted again.
	_, err = router.Complete(context.Background(), Request{Prompt: "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, secondary.calls)
}

func TestRouter_TransientFailureFallsBackPerCall(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "anthropic", err: &openai.APIError{
		HTTPStatusCode: 529,
		Message:        "overloaded",
	}}
	secondary := &fakeProvider{name: "openai", resp: &Response{Text: "fallback"}}
	state := NewProviderState()
	router := NewRouter(primary, secondary, state, 0)

	resp, err := router.Complete(context.Background(), Request{Prompt: "one"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.False(t, state.LLMPrimaryDead())

	// Next call retries the primary.
	router.Complete(context.Background(), Request{Prompt: "two"}) //nolint:errcheck
	assert.Equal(t, 2, primary.calls)
}

func TestRouter_NoProviderIsFatal(t *testing.T) {
	t.Parallel()

	state := NewProviderState()
	state.MarkLLMPrimaryDead()
	router := NewRouter(&fakeProvider{name: "anthropic"}, nil, state, 0)

	_, err := router.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestRouter_PrimaryErrorSurfacesWithoutSecondary(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "anthropic", err: &openai.APIError{HTTPStatusCode: 529, Message: "overloaded"}}
	router := NewRouter(primary, nil, NewProviderState(), 0)

	_, err := router.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoProvider)
}

func TestIsBillingError(t *testing.T) {
	t.Parallel()

	assert.False(t, isBillingError(nil))
	assert.True(t, isBillingError(&openai.APIError{HTTPStatusCode: 401, Message: "bad key"}))
	assert.True(t, isBillingError(&openai.APIError{HTTPStatusCode: 402, Message: "payment required"}))
	assert.True(t, isBillingError(&openai.APIError{HTTPStatusCode: 500, Message: "credit balance exhausted"}))
	assert.True(t, isBillingError(&openai.APIError{HTTPStatusCode: 400, Message: "your credit balance is too low"}))
	assert.False(t, isBillingError(&openai.APIError{HTTPStatusCode: 400, Message: "max_tokens exceeds model limit"}))
	assert.False(t, isBillingError(assert.AnError))
}

func TestRouter_BadRequestDoesNotRetirePrimary(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "anthropic", err: &openai.APIError{
		HTTPStatusCode: 400,
		Message:        "max_tokens exceeds model limit",
	}}
	secondary := &fakeProvider{name: "openai", resp: &Response{Text: "fallback"}}
	state := NewProviderState()
	router := NewRouter(primary, secondary, state, 0)

	resp, err := router.Complete(context.Background(), Request{Prompt: "one"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.False(t, state.LLMPrimaryDead())

	// Only the failing call diverts; the primary is tried again next time.
	router.Complete(context.Background(), Request{Prompt: "two"}) //nolint:errcheck
	assert.Equal(t, 2, primary.calls)
}

type capturingChat struct {
	req openai.ChatCompletionRequest
}

func (c *capturingChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.req = req
	return openai.ChatCompletionResponse{
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}, nil
}

func TestProviders_MaxTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMaxTokens, NewOpenAIProvider(nil, "gpt-4o-mini", 0).maxTokens)
	assert.Equal(t, DefaultMaxTokens, NewAnthropicProvider(nil, "claude-sonnet", 0).maxTokens)
	assert.Equal(t, 8192, NewAnthropicProvider(nil, "claude-sonnet", 8192).maxTokens)

	api := &capturingChat{}
	p := &OpenAIProvider{api: api, model: "gpt-4o-mini", maxTokens: 2048}

	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2048, api.req.MaxTokens)

	// A per-request cap wins over the configured one.
	_, err = p.Complete(context.Background(), Request{Prompt: "hi", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, api.req.MaxTokens)
}

func TestProviderState_Concurrency(t *testing.T) {
	t.Parallel()

	state := NewProviderState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.MarkSearchFallback()
			state.MarkLLMPrimaryDead()
			_ = state.SearchUsesFallback()
			_ = state.LLMPrimaryDead()
		}()
	}
	wg.Wait()
	assert.True(t, state.SearchUsesFallback())
	assert.True(t, state.LLMPrimaryDead())
}
