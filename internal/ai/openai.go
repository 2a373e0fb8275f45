package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 16 << 20

// OpenAIClient talks to any server exposing the OpenAI chat-completions API (vLLM, llama.cpp, OpenAI).
type OpenAIClient struct {
	http    *http.Client
	chatURL string
	apiKey  string
	timeout time.Duration
}

// Options configures an OpenAIClient.
type Options struct {
	ChatURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OpenAIClient{http: hc, chatURL: opts.ChatURL, apiKey: opts.APIKey, timeout: opts.Timeout}
}

func (c *OpenAIClient) Name() string { return "openai-compatible" }

type openAIMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]interface{} `json:"content"`
}

type openAIChatReq struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DataURI builds the image_url payload for base64 image bytes.
func DataURI(mime, b64 string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, b64)
}

func buildPayload(req Request, stream bool) openAIChatReq {
	var messages []openAIMessage

	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{
			Role: "system",
			Content: []map[string]interface{}{
				{"type": "text", "text": req.SystemPrompt},
			},
		})
	}

	// image part first, instruction second
	var userContent []map[string]interface{}
	if req.ImageBase64 != "" {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		userContent = append(userContent, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": DataURI(mime, req.ImageBase64)},
		})
	}
	userContent = append(userContent, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})

	messages = append(messages, openAIMessage{Role: "user", Content: userContent})

	return openAIChatReq{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func (c *OpenAIClient) post(ctx context.Context, payload openAIChatReq) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return c.http.Do(httpReq)
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// transportErr separates a caller abort from our own deadline and from network failures.
func (c *OpenAIClient) transportErr(parent context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("request aborted: %w", perr)
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return &TimeoutError{After: c.timeout}
	}
	return &NetworkError{Err: err}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(cctx, buildPayload(req, false))
	if err != nil {
		return Response{}, c.transportErr(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, c.transportErr(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var r openAIChatResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, &MalformedResponseError{Body: string(raw)}
	}
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return Response{}, &MalformedResponseError{Body: string(raw)}
	}

	return Response{
		Text:      *r.Choices[0].Message.Content,
		TokensIn:  r.Usage.PromptTokens,
		TokensOut: r.Usage.CompletionTokens,
	}, nil
}

// Stream requests a server-sent-events completion and calls onDelta for every content chunk.
// The returned Response carries the concatenated text.
func (c *OpenAIClient) Stream(ctx context.Context, req Request, onDelta func(string)) (Response, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(cctx, buildPayload(req, true))
	if err != nil {
		return Response{}, c.transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var sb strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return Response{Text: sb.String()}, nil
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return Response{Text: sb.String()}, &MalformedResponseError{Body: data}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := sc.Err(); err != nil {
		return Response{Text: sb.String()}, c.transportErr(ctx, err)
	}
	// stream closed without [DONE]; keep what arrived
	return Response{Text: sb.String()}, nil
}
