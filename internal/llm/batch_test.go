package llm

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatchAPI struct {
	submitted  *openai.CreateBatchWithUploadFileRequest
	statuses   []string
	polls      int
	cancelled  bool
	output     string
	submitErr  error
	retrieveErr error
}

func (f *fakeBatchAPI) CreateBatchWithUploadFile(_ context.Context, req openai.CreateBatchWithUploadFileRequest) (openai.BatchResponse, error) {
	f.submitted = &req
	if f.submitErr != nil {
		return openai.BatchResponse{}, f.submitErr
	}
	return openai.BatchResponse{Batch: openai.Batch{ID: "batch_1", Status: "validating"}}, nil
}

func (f *fakeBatchAPI) RetrieveBatch(_ context.Context, batchID string) (openai.BatchResponse, error) {
	if f.retrieveErr != nil {
		return openai.BatchResponse{}, f.retrieveErr
	}
	status := f.statuses[min(f.polls, len(f.statuses)-1)]
	f.polls++
	outputID := "file_out"
	resp := openai.BatchResponse{Batch: openai.Batch{ID: batchID, Status: status}}
	if status == "completed" {
		resp.OutputFileID = &outputID
	}
	return resp, nil
}

func (f *fakeBatchAPI) CancelBatch(_ context.Context, batchID string) (openai.BatchResponse, error) {
	f.cancelled = true
	return openai.BatchResponse{Batch: openai.Batch{ID: batchID, Status: "cancelling"}}, nil
}

func (f *fakeBatchAPI) GetFileContent(_ context.Context, _ string) (openai.RawResponse, error) {
	return openai.RawResponse{ReadCloser: io.NopCloser(strings.NewReader(f.output))}, nil
}

func fastBatchClient(api batchAPI, opts ...BatchOption) *BatchClient {
	base := []BatchOption{WithPollInterval(time.Millisecond), WithBatchTimeout(time.Second)}
	return newBatchClient(api, "gpt-4o-mini", append(base, opts...)...)
}

func TestBatchRun_SubmitPollDemux(t *testing.T) {
	t.Parallel()

	api := &fakeBatchAPI{
		statuses: []string{"validating", "in_progress", "completed"},
		output: `{"custom_id":"acme capital:overview","response":{"status_code":200,"body":{"choices":[{"message":{"content":"{\"summary\":\"lender\"}"}}]}}}
{"custom_id":"acme capital:fit","response":{"status_code":200,"body":{"choices":[]}}}
{"custom_id":"fundco:overview","error":{"message":"rate limited"}}`,
	}

	items := []BatchItem{
		{CustomID: "acme capital:overview", Request: Request{Prompt: "p1"}},
		{CustomID: "acme capital:fit", Request: Request{Prompt: "p2"}},
		{CustomID: "fundco:overview", Request: Request{Prompt: "p3"}},
		{CustomID: "fundco:fit", Request: Request{Prompt: "p4"}},
	}
	results, err := fastBatchClient(api).Run(context.Background(), items)
	require.NoError(t, err)

	// One result per submitted item; failures and absent lines are "".
	require.Len(t, results, 4)
	assert.Equal(t, `{"summary":"lender"}`, results["acme capital:overview"])
	assert.Empty(t, results["acme capital:fit"])
	assert.Empty(t, results["fundco:overview"])
	assert.Empty(t, results["fundco:fit"])

	// The submitted request carried one JSONL line per item.
	require.NotNil(t, api.submitted)
	assert.Len(t, api.submitted.Lines, 4)
	assert.Equal(t, "24h", api.submitted.CompletionWindow)
}

func TestBatchRun_MaxTokensPerLine(t *testing.T) {
	t.Parallel()

	api := &fakeBatchAPI{
		statuses: []string{"completed"},
		output:   `{"custom_id":"a:overview","response":{"status_code":200,"body":{"choices":[{"message":{"content":"x"}}]}}}`,
	}
	client := fastBatchClient(api, WithMaxTokens(1234))

	_, err := client.Run(context.Background(), []BatchItem{
		{CustomID: "a:overview", Request: Request{Prompt: "p"}},
		{CustomID: "a:fit", Request: Request{Prompt: "p", MaxTokens: 50}},
	})
	require.NoError(t, err)

	// The configured cap applies only to lines that set none themselves.
	require.NotNil(t, api.submitted)
	require.Len(t, api.submitted.Lines, 2)
	first := api.submitted.Lines[0].(openai.BatchChatCompletionRequest)
	second := api.submitted.Lines[1].(openai.BatchChatCompletionRequest)
	assert.Equal(t, 1234, first.Body.MaxTokens)
	assert.Equal(t, 50, second.Body.MaxTokens)
}

func TestBatchRun_TimeoutCancels(t *testing.T) {
	t.Parallel()

	api := &fakeBatchAPI{statuses: []string{"in_progress"}}
	client := fastBatchClient(api, WithBatchTimeout(5*time.Millisecond))

	_, err := client.Run(context.Background(), []BatchItem{{CustomID: "a:overview", Request: Request{Prompt: "p"}}})
	require.ErrorIs(t, err, ErrBatchTimeout)
	assert.True(t, api.cancelled)
}

func TestBatchRun_TerminalFailureStatus(t *testing.T) {
	t.Parallel()

	api := &fakeBatchAPI{statuses: []string{"failed"}}
	_, err := fastBatchClient(api).Run(context.Background(), []BatchItem{{CustomID: "a:overview"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.False(t, api.cancelled)
}

func TestBatchRun_SubmitError(t *testing.T) {
	t.Parallel()

	api := &fakeBatchAPI{submitErr: assert.AnError}
	_, err := fastBatchClient(api).Run(context.Background(), []BatchItem{{CustomID: "a:overview"}})
	require.Error(t, err)
}

func TestBatchRun_EmptyItems(t *testing.T) {
	t.Parallel()

	results, err := fastBatchClient(&fakeBatchAPI{}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCorrelationID(t *testing.T) {
	t.Parallel()

	id := CorrelationID("acme capital", "overview")
	assert.Equal(t, "acme capital:overview", id)

	entity, area := SplitCorrelationID(id)
	assert.Equal(t, "acme capital", entity)
	assert.Equal(t, "overview", area)

	entity, area = SplitCorrelationID("bare")
	assert.Equal(t, "bare", entity)
	assert.Empty(t, area)
}
