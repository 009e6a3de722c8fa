package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the gateway client is constructed. It is passed in
// explicitly rather than read from ambient process state so tests can inject
// a fake gateway.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a thin facade over the generation gateway. It posts an assembled
// Request and hands back the raw step/content structure for extraction.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs a gateway client with sane defaults. A nil HTTP client
// gets a reusable one with a generous timeout; image generation is slow.
func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://ai-gateway.vercel.sh/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "google/gemini-3-pro-image"
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     cfg.Logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type wireContent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type generateRequest struct {
	Model              string        `json:"model"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	Messages           []wireMessage `json:"messages"`
}

// FilePart is a generated file returned by the gateway.
type FilePart struct {
	Base64Data string `json:"base64Data"`
	MediaType  string `json:"mediaType"`
}

type stepContent struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *FilePart `json:"file,omitempty"`
}

type step struct {
	Content []stepContent `json:"content"`
}

// Response is the gateway's step/content structure.
type Response struct {
	Steps []step `json:"steps"`
}

type gatewayError struct {
	Error struct {
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// Generate posts the request with image response modality and extracts the
// generated image. Failures are not retried; retry policy belongs to the
// caller.
func (c *Client) Generate(ctx context.Context, req Request) (FilePart, error) {
	payload := generateRequest{
		Model:              c.model,
		ResponseModalities: []string{"IMAGE"},
		Messages: []wireMessage{{
			Role:    "user",
			Content: toWireContent(req.Parts),
		}},
	}

	var resp Response
	if err := c.invoke(ctx, "/generate", payload, &resp); err != nil {
		return FilePart{}, err
	}
	return ExtractImage(resp)
}

func toWireContent(parts []Part) []wireContent {
	out := make([]wireContent, len(parts))
	for i, p := range parts {
		switch p.Kind {
		case PartText:
			out[i] = wireContent{Type: "text", Text: p.Text}
		case PartFile:
			out[i] = wireContent{Type: "file", MediaType: p.MediaType, Data: p.Data}
		}
	}
	return out
}

// ExtractImage walks the first generation step and returns its first
// file-typed content item. Absence of one is a terminal error.
func ExtractImage(resp Response) (FilePart, error) {
	if len(resp.Steps) == 0 {
		return FilePart{}, ErrNoImageReturned
	}
	for _, content := range resp.Steps[0].Content {
		if content.Type == "file" && content.File != nil && content.File.Base64Data != "" {
			file := *content.File
			if file.MediaType == "" {
				file.MediaType = "image/png"
			}
			return file, nil
		}
	}
	return FilePart{}, ErrNoImageReturned
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: invoke gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr gatewayError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("genai: gateway status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("genai: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("genai: gateway status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode gateway response: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("duration", time.Since(started)).
		Msg("gateway call completed")
	return nil
}
