package hookfinder

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

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipsmith/internal/config"
	"clipsmith/internal/pipeline"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultWindowSec   = 15
	defaultLabel       = "Opening"

	systemPrompt = `You are a short-form video editor. Given a transcript, pick the single
most gripping continuous moment to open a clip with. Respond with JSON only:
{"start_sec": <number>, "end_sec": <number>, "label": "<short title>"}.`
)

// Client selects a hook window from a transcript via an OpenAI-compatible
// chat completion endpoint. Without a credential it degrades to a fixed
// default window so the pipeline keeps working in unconfigured installs.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	defaultWindow float64
	httpClient    *http.Client
	titleCaser    cases.Caser
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs the hook selector from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.HookFinder.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.HookFinder.TimeoutSeconds) * time.Second
	}
	window := float64(cfg.HookFinder.DefaultWindow)
	if window <= 0 {
		window = defaultWindowSec
	}
	client := &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.HookFinder.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.HookFinder.APIKey),
		model:         strings.TrimSpace(cfg.HookFinder.Model),
		defaultWindow: window,
		httpClient:    &http.Client{Timeout: timeout},
		titleCaser:    cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// DefaultWindow is the fallback hook window used when no credential is
// configured.
func (c *Client) DefaultWindow() pipeline.HookWindow {
	return pipeline.HookWindow{StartSec: 0, EndSec: c.defaultWindow, Label: defaultLabel}
}

// SelectHook asks the model for the hook window. With no API key configured
// it returns the default window instead of failing.
func (c *Client) SelectHook(ctx context.Context, transcript string) (pipeline.HookWindow, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return pipeline.HookWindow{}, errors.New("select hook: transcript required")
	}
	if c.apiKey == "" {
		return c.DefaultWindow(), nil
	}

	content, err := c.completeJSON(ctx, transcript)
	if err != nil {
		return pipeline.HookWindow{}, err
	}

	var parsed struct {
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Label    string  `json:"label"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return pipeline.HookWindow{}, fmt.Errorf("select hook: parse payload: %w", err)
	}
	if parsed.StartSec < 0 || parsed.EndSec <= parsed.StartSec {
		return pipeline.HookWindow{}, fmt.Errorf("select hook: model returned invalid window %g-%g", parsed.StartSec, parsed.EndSec)
	}

	label := strings.TrimSpace(parsed.Label)
	if label == "" {
		label = defaultLabel
	}
	return pipeline.HookWindow{
		StartSec: parsed.StartSec,
		EndSec:   parsed.EndSec,
		Label:    c.titleCaser.String(label),
	}, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) completeJSON(ctx context.Context, transcript string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: transcript},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("select hook: encode body: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("select hook: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("select hook: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("select hook: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("select hook: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("select hook: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("select hook: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("select hook: empty completion")
}

// decodeModelJSON tolerates the usual model formatting quirks: code fences
// and prose wrapped around the JSON object.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	if strings.HasPrefix(trimmed, "```") {
		body := strings.TrimPrefix(trimmed, "```")
		body = strings.TrimSpace(strings.TrimPrefix(body, "json"))
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			body = body[:idx]
		}
		trimmed = strings.TrimSpace(body)
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return json.Unmarshal([]byte(trimmed), target)
}
