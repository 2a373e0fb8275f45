package statuscheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/metrics"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader is satisfied by the results uploader.
type BucketHeader interface {
	HeadBucket(ctx context.Context) error
}

// Checker aggregates health checks for the inference endpoint and the optional sinks.
type Checker struct {
	chatURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	redis      RedisPinger
	bucket     BucketHeader
}

// Options configures the Checker.
type Options struct {
	ChatURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Redis      RedisPinger
	Bucket     BucketHeader
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message"`
	URL     string   `json:"url,omitempty"`
	Models  []string `json:"models,omitempty"`
}

// Summary bundles all subsystem statuses for the status command.
type Summary struct {
	Endpoint Status `json:"endpoint"`
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		chatURL:    opts.ChatURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		timeout:    timeout,
		httpClient: client,
		redis:      opts.Redis,
		bucket:     opts.Bucket,
	}
}

// ModelsURL derives the sibling models-listing endpoint from a chat-completions URL.
func ModelsURL(chatURL string) string {
	u := strings.TrimRight(chatURL, "/")
	if strings.HasSuffix(u, "/chat/completions") {
		return strings.TrimSuffix(u, "/chat/completions") + "/models"
	}
	if strings.HasSuffix(u, "/v1") {
		return u + "/models"
	}
	return u + "/v1/models"
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Endpoint: c.CheckEndpoint(ctx),
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
	}
}

type modelsResp struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// CheckEndpoint issues one GET against the models listing with the bearer token attached.
// Only a 200 counts as reachable.
func (c *Checker) CheckEndpoint(ctx context.Context) Status {
	url := ModelsURL(c.chatURL)
	st := c.checkEndpoint(ctx, url)
	st.URL = url
	metrics.IncProbe(st.OK)
	return st
}

func (c *Checker) checkEndpoint(ctx context.Context, url string) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, trimString(strings.TrimSpace(string(body))))}
	}

	var mr modelsResp
	if err := json.Unmarshal(body, &mr); err != nil {
		log.Debug().Err(err).Str("url", url).Msg("models listing is not JSON")
	}
	st := Status{OK: true, Message: "Available"}
	for _, m := range mr.Data {
		st.Models = append(st.Models, m.ID)
	}
	return st
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.bucket == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.bucket.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return trimString(err.Error())
}

func trimString(msg string) string {
	if len(msg) > 200 {
		return msg[:200]
	}
	return msg
}
