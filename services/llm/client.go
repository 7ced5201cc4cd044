// Package llmsvc talks to a hosted chat-completion API (OpenRouter by default)
// to grade open-ended answers and to write quizzes from lesson plans.
package llmsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alyxedu/alyx/core"
)

const serviceName = "llm"

var (
	ErrMissingAPIKey = errors.New("OPENROUTER_API_KEY not configured")
	ErrEmptyResponse = errors.New("no choices in model response")
)

// HTTPError is a non-2xx answer of the completion endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm http error: status=%d body=%s", e.StatusCode, e.Body)
}

type (
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}

	chatResponse struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
)

type Client struct {
	baseURL            string
	apiKey             string
	model              string
	gradingTemperature float64
	quizTemperature    float64
	httpClient         *http.Client
	logger             core.Logger
}

func NewClient(conf *core.Config, logger core.Logger) *Client {
	timeout := conf.LLM.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:            strings.TrimRight(conf.LLM.BaseURL, "/"),
		apiKey:             strings.TrimSpace(conf.LLM.APIKey),
		model:              conf.LLM.Model,
		gradingTemperature: conf.LLM.GradingTemperature,
		quizTemperature:    conf.LLM.QuizTemperature,
		// no retries: a failed call is reported to the caller once
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Complete sends one user message and returns the content of the first choice.
// Every failure is a *core.ExternalServiceError.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", core.NewExternalServiceError(serviceName, ErrMissingAPIKey)
	}

	raw, err := c.doOnce(ctx, http.MethodPost, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
	})
	if err != nil {
		extErr := &core.ExternalServiceError{Service: serviceName, Err: err}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			extErr.StatusCode = httpErr.StatusCode
		}
		return "", extErr
	}

	var resp chatResponse
	if err = json.Unmarshal(raw, &resp); err != nil {
		return "", core.NewExternalServiceError(serviceName, fmt.Errorf("decoding response: %w", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", core.NewExternalServiceError(serviceName, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	return raw, nil
}

// stripFence removes a markdown code fence (```json ... ```) around content.
func stripFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
