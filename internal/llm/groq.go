package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mindviza/mindviza/internal/httpkit"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient is a client for the Groq OpenAI-compatible chat API.
type GroqClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGroqClient creates a new Groq client. baseURL may be empty to use
// the hosted endpoint; model is the default model for all requests.
func NewGroqClient(apiKey, baseURL, model string, logger *slog.Logger) *GroqClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	// Completions can take significant time before sending headers on
	// long prompts. Use a custom transport with a generous response
	// header timeout; overall deadlines come from the caller's context.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &GroqClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		logger:  logger.With("provider", "groq"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Groq request/response types (OpenAI chat completions wire format)

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created"`
	Choices []groqChoice `json:"choices"`
	Usage   groqUsage    `json:"usage"`
}

type groqChoice struct {
	Index        int         `json:"index"`
	Message      groqMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type groqUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Complete sends a chat completion request. The system prompt, if
// non-empty, is prepended as a system-role message.
func (c *GroqClient) Complete(ctx context.Context, system string, messages []Message) (*Completion, error) {
	msgs := make([]groqMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, groqMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		msgs = append(msgs, groqMessage{Role: m.Role, Content: m.Content})
	}

	req := groqRequest{
		Model:    c.model,
		Messages: msgs,
	}

	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(msgs),
		"system_len", len(system),
	)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, errBody)
	}

	var gr groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices")
	}

	result := &Completion{
		Model:        gr.Model,
		CreatedAt:    time.Unix(gr.Created, 0),
		Content:      gr.Choices[0].Message.Content,
		InputTokens:  gr.Usage.PromptTokens,
		OutputTokens: gr.Usage.CompletionTokens,
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"content_len", len(result.Content),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Content)

	return result, nil
}

// Ping checks if the Groq API is reachable. The models listing is the
// cheapest authenticated endpoint available.
func (c *GroqClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from Groq API: %d", resp.StatusCode)
	}
	return nil
}
