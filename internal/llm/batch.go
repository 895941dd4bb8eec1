package llm

import (
	"bufio"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBatchTimeout is returned when a batch job does not reach a terminal
// status within the configured window. The job is cancelled before returning
// so it stops accruing cost.
var ErrBatchTimeout = eris.New("llm: batch timed out")

const (
	defaultPollInterval = 30 * time.Second
	defaultBatchTimeout = 3600 * time.Second

	batchFileName = "company-research-batch.jsonl"
)

// BatchItem is one prompt in a batch job, keyed by a correlation id of the
// form "<entity-key>:<area>" so results demux back to their entities.
type BatchItem struct {
	CustomID string
	Request  Request
}

// CorrelationID builds the "<entity-key>:<area>" custom id for a batch line.
func CorrelationID(entityKey, area string) string {
	return entityKey + ":" + area
}

// SplitCorrelationID splits a custom id back into entity key and area. The
// area never contains a colon, so the split is on the last one.
func SplitCorrelationID(id string) (entityKey, area string) {
	if idx := strings.LastIndex(id, ":"); idx >= 0 {
		return id[:idx], id[idx+1:]
	}
	return id, ""
}

// batchAPI is the slice of go-openai the batch client needs; tests fake it.
type batchAPI interface {
	CreateBatchWithUploadFile(ctx context.Context, request openai.CreateBatchWithUploadFileRequest) (openai.BatchResponse, error)
	RetrieveBatch(ctx context.Context, batchID string) (openai.BatchResponse, error)
	CancelBatch(ctx context.Context, batchID string) (openai.BatchResponse, error)
	GetFileContent(ctx context.Context, fileID string) (openai.RawResponse, error)
}

// BatchClient submits all prompts for a phase as one OpenAI batch job, polls
// it to completion, and demuxes the output file by correlation id. Batch jobs
// trade latency for roughly half the per-token price.
type BatchClient struct {
	api          batchAPI
	model        string
	maxTokens    int
	pollInterval time.Duration
	timeout      time.Duration
}

// BatchOption tunes token caps, poll cadence, and timeout.
type BatchOption func(*BatchClient)

// WithPollInterval overrides the 30s poll cadence.
func WithPollInterval(d time.Duration) BatchOption {
	return func(c *BatchClient) { c.pollInterval = d }
}

// WithBatchTimeout overrides the one hour completion deadline.
func WithBatchTimeout(d time.Duration) BatchOption {
	return func(c *BatchClient) { c.timeout = d }
}

// WithMaxTokens overrides the per-line token cap for items that set none.
func WithMaxTokens(n int) BatchOption {
	return func(c *BatchClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewBatchClient builds a batch client over go-openai.
func NewBatchClient(client *openai.Client, model string, opts ...BatchOption) *BatchClient {
	return newBatchClient(client, model, opts...)
}

func newBatchClient(api batchAPI, model string, opts ...BatchOption) *BatchClient {
	c := &BatchClient{
		api:          api,
		model:        model,
		maxTokens:    DefaultMaxTokens,
		pollInterval: defaultPollInterval,
		timeout:      defaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run submits items as one batch job and blocks until results are available.
// Every submitted CustomID is present in the returned map; items whose output
// line is missing or malformed map to the empty string rather than an error.
func (c *BatchClient) Run(ctx context.Context, items []BatchItem) (map[string]string, error) {
	if len(items) == 0 {
		return map[string]string{}, nil
	}

	lines := make([]openai.BatchLineItem, 0, len(items))
	for _, item := range items {
		maxTokens := item.Request.MaxTokens
		if maxTokens == 0 {
			maxTokens = c.maxTokens
		}
		lines = append(lines, openai.BatchChatCompletionRequest{
			CustomID: item.CustomID,
			Method:   "POST",
			URL:      openai.BatchEndpointChatCompletions,
			Body: openai.ChatCompletionRequest{
				Model:     c.model,
				MaxTokens: maxTokens,
				Messages:  toChatMessages(item.Request),
			},
		})
	}

	batch, err := c.api.CreateBatchWithUploadFile(ctx, openai.CreateBatchWithUploadFileRequest{
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: "24h",
		UploadBatchFileRequest: openai.UploadBatchFileRequest{
			FileName: batchFileName,
			Lines:    lines,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: submit batch")
	}

	zap.L().Info("llm: batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("items", len(items)),
	)

	final, err := c.poll(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	if final.OutputFileID == nil || *final.OutputFileID == "" {
		return nil, eris.Errorf("llm: batch %s completed without an output file", final.ID)
	}
	results, err := c.download(ctx, *final.OutputFileID)
	if err != nil {
		return nil, err
	}

	// Every submitted id resolves, even when its line is absent.
	for _, item := range items {
		if _, ok := results[item.CustomID]; !ok {
			results[item.CustomID] = ""
		}
	}
	return results, nil
}

func (c *BatchClient) poll(ctx context.Context, batchID string) (*openai.BatchResponse, error) {
	deadline := time.Now().Add(c.timeout)

	for {
		batch, err := c.api.RetrieveBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrap(err, "llm: poll batch")
		}

		switch batch.Status {
		case "completed":
			return &batch, nil
		case "failed", "expired", "cancelled":
			return nil, eris.Errorf("llm: batch %s reached status %q", batchID, batch.Status)
		}

		if time.Now().After(deadline) {
			c.cancel(batchID)
			return nil, ErrBatchTimeout
		}

		zap.L().Debug("llm: batch pending",
			zap.String("batch_id", batchID),
			zap.String("status", string(batch.Status)),
		)
		// Jitter spreads polls from concurrent runs.
		wait := c.pollInterval + time.Duration(rand.Int63n(int64(c.pollInterval/6+1)))
		select {
		case <-ctx.Done():
			c.cancel(batchID)
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// cancel uses a fresh context so a timed-out or cancelled run can still stop
// the remote job.
func (c *BatchClient) cancel(batchID string) {
	cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.api.CancelBatch(cctx, batchID); err != nil {
		zap.L().Warn("llm: cancel batch failed", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// batchOutputLine is one JSONL record in a batch output file.
type batchOutputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int                           `json:"status_code"`
		Body       openai.ChatCompletionResponse `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *BatchClient) download(ctx context.Context, fileID string) (map[string]string, error) {
	raw, err := c.api.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "llm: download batch output")
	}
	defer raw.Close()

	results := make(map[string]string)
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var out batchOutputLine
		if err := json.Unmarshal(line, &out); err != nil {
			zap.L().Warn("llm: undecodable batch output line, skipping", zap.Error(err))
			continue
		}
		if out.CustomID == "" {
			continue
		}

		// A per-line failure or an empty choice list yields "" so one bad
		// prompt never fails the whole batch.
		text := ""
		if out.Response != nil && len(out.Response.Body.Choices) > 0 {
			text = out.Response.Body.Choices[0].Message.Content
		} else if out.Error != nil {
			zap.L().Warn("llm: batch line failed",
				zap.String("custom_id", out.CustomID),
				zap.String("message", out.Error.Message),
			)
		}
		results[out.CustomID] = text
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "llm: read batch output")
	}
	return results, nil
}
