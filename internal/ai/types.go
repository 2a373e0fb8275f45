package ai

import (
	"context"
)

// Request represents a single chat-completion call against a vision model.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// Vision fields
	ImageBase64 string // Base64 encoded image
	ImageMIME   string // Image MIME type (image/png)
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for OpenAI-compatible providers.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

// StreamClient is a Client that can also deliver the completion incrementally.
type StreamClient interface {
	Client
	Stream(ctx context.Context, req Request, onDelta func(string)) (Response, error)
}
