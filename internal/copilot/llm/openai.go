package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parallels/devops-copilot/common/redact"
	"github.com/parallels/devops-copilot/common/retry"
)

const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultModel         = "gpt-4o-mini"
	defaultHeaderTimeout = 30 * time.Second
	defaultMaxTokens     = 1024
	maxSSELine           = 1 << 20
)

// Overrides returns per-request model and endpoint values. Empty strings keep
// the configured defaults. It lets operators retarget the engine at runtime
// without a restart.
type Overrides func(ctx context.Context) (model, baseURL string)

// Config configures the OpenAI-compatible engine.
type Config struct {
	// APIKey is sent as a bearer token. Local endpoints (Ollama, LM Studio)
	// usually accept any value.
	APIKey string

	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string

	// Model defaults to gpt-4o-mini.
	Model string

	// MaxTokens caps each completion. Defaults to 1024.
	MaxTokens int

	// Temperature is passed through when non-zero.
	Temperature float64

	// HeaderTimeout bounds the wait for response headers. The body of a
	// streamed completion is only bounded by the caller's context.
	HeaderTimeout time.Duration

	// Retry governs reconnect attempts on transport errors and 5xx answers.
	Retry retry.Config

	// Overrides is consulted on every Submit when set.
	Overrides Overrides
}

// OpenAI streams chat completions from an OpenAI-compatible endpoint. It is
// safe for concurrent use.
type OpenAI struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI returns an engine for cfg, filling in defaults.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaultHeaderTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HeaderTimeout
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

// --- OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// oaiChunk covers both a streamed chunk (delta) and a non-streamed body
// (message); servers that ignore "stream": true send the latter.
type oaiChunk struct {
	Choices []struct {
		Delta        oaiMessage `json:"delta"`
		Message      oaiMessage `json:"message"`
		FinishReason *string    `json:"finish_reason"`
	} `json:"choices"`
	Error *oaiError `json:"error,omitempty"`
}

// Submit posts messages and returns the streamed completion.
func (o *OpenAI) Submit(ctx context.Context, messages []Message) (Stream, error) {
	model, baseURL := o.cfg.Model, o.cfg.BaseURL
	if o.cfg.Overrides != nil {
		m, u := o.cfg.Overrides(ctx)
		if m != "" {
			model = m
		}
		if u != "" {
			baseURL = u
		}
	}

	body := oaiRequest{
		Model:       model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Stream:      true,
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, oaiMessage{Role: string(m.Role), Content: m.Content})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	var resp *http.Response
	err = retry.Do(ctx, o.cfg.Retry, func() error {
		r, err := o.post(ctx, strings.TrimRight(baseURL, "/")+"/chat/completions", data)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		defer resp.Body.Close()
		var chunk oaiChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return nil, fmt.Errorf("llm: decode response: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("llm: API error (%s): %s", chunk.Error.Type, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			return nil, fmt.Errorf("llm: no choices returned")
		}
		return NewSliceStream(chunk.Choices[0].Message.Content), nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

// post performs one attempt. Non-retryable failures are wrapped with
// retry.Permanent.
func (o *OpenAI) post(ctx context.Context, url string, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("llm: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %s", redact.String(err.Error(), o.cfg.APIKey))
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(raw))
	var apiErr oaiChunk
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil {
		detail = apiErr.Error.Message
	}
	slog.Warn("llm: completion request rejected", "status", resp.StatusCode, "detail", redact.String(detail, o.cfg.APIKey))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.Permanent(ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("llm: server error (HTTP %d): %s", resp.StatusCode, detail)
	default:
		return nil, retry.Permanent(fmt.Errorf("llm: request rejected (HTTP %d): %s", resp.StatusCode, detail))
	}
}

// sseStream decodes "data:" lines of a server-sent event stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseStream) Recv() (string, error) {
	for !s.done && s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			break
		}

		var chunk oaiChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("llm: decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("llm: API error (%s): %s", chunk.Error.Type, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
	if err := s.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
