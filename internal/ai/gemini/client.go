// Package gemini wraps the Google GenAI client for content generation and
// text embeddings.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/logger"
)

const (
	generateTimeout = 90 * time.Second
	embedTimeout    = 20 * time.Second
)

// Client provides prompt-based generation and embeddings against the
// Gemini API backend.
type Client struct {
	client     *genai.Client
	model      string
	embedModel string
	logger     *zap.Logger
}

// New creates a Client configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model, embedModel string, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client:     client,
		model:      model,
		embedModel: embedModel,
		logger:     logger,
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the concatenated
// textual response. Failures are surfaced as transient errors.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", errs.Transient("gemini generate", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errs.Transient("gemini generate", errors.New("empty response"))
	}

	c.logger.Debug("gemini response",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(prompt)),
		zap.String("preview", logger.Truncate(output, 200)),
	)

	return output, nil
}

// EmbedText returns the embedding vector for a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts returns one embedding vector per input text, in input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, nil)
	if err != nil {
		return nil, errs.Transient("gemini embed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, errs.Transient("gemini embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errs.Transient("gemini embed", fmt.Errorf("empty embedding at index %d", i))
		}
		vecs[i] = emb.Values
	}

	c.logger.Debug("embedded texts",
		zap.Int("count", len(texts)),
		zap.Int("dimensions", len(vecs[0])),
	)

	return vecs, nil
}

// Model returns the configured generation model name.
func (c *Client) Model() string { return c.model }
