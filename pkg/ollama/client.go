package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultTimeout bounds a request when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// SimpleQuery performs a free-form query with an image
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.chat(ctx, model, prompt, imgB64, nil)
}

// Query sends a structured prompt and returns the raw reply. Sampling is
// kept cool so the model sticks to the requested JSON layout.
func (c *Client) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	options := map[string]any{
		"temperature": 0.2,
	}

	// MiniCPM-V 4.x needs a larger context to fit the image tokens
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}

	reply, err := c.chat(ctx, model, prompt, imgB64, options)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return reply, nil
}

func (c *Client) chat(ctx context.Context, model, prompt, imgB64 string, options map[string]any) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	msg := api.Message{
		Role:    "user",
		Content: prompt,
	}
	if imgB64 != "" {
		imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
		if err != nil {
			return "", fmt.Errorf("failed to decode base64 image: %w", err)
		}
		msg.Images = []api.ImageData{api.ImageData(imgBytes)}
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{msg},
		Stream:   &streamFalse,
		Options:  options,
	}

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return content.String(), nil
}
