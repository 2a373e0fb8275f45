package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/local/visionbatch/internal/ai"
	cfgpkg "github.com/local/visionbatch/internal/config"
	"github.com/local/visionbatch/internal/imagerender"
	"github.com/local/visionbatch/internal/keygen"
	logpkg "github.com/local/visionbatch/internal/logger"
	"github.com/local/visionbatch/internal/statuscheck"
	"github.com/local/visionbatch/internal/store"
)

// complete runs one request, streaming deltas to stdout when asked.
func (c *CLI) complete(ctx context.Context, cfg cfgpkg.Config, req ai.Request, stream bool) error {
	client := newClient(cfg)
	if stream {
		fmt.Fprint(c.stdout, "Streaming: ")
		_, err := client.Stream(ctx, req, func(delta string) { fmt.Fprint(c.stdout, delta) })
		fmt.Fprintln(c.stdout)
		return err
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Response: %s\n", resp.Text)
	return nil
}

func (c *CLI) runDescribe(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("describe")
	endpointFlags(fs, &cfg)
	fs.StringVar(&cfg.Describe.Prompt, "prompt", cfg.Describe.Prompt, "Instruction sent with the image")
	fs.IntVar(&cfg.Describe.MaxTokens, "max-tokens", cfg.Describe.MaxTokens, "Completion token limit")
	fs.StringVar(&cfg.OCR.MIMEMode, "mime", cfg.OCR.MIMEMode, "Data URI media type: detect or png")
	stream := fs.Bool("stream", false, "Print the answer as it is generated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: describe takes exactly one image path", errUsage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.initLogging(cfg, "", c.stderr); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logpkg.Close()

	path := fs.Arg(0)
	fmt.Fprintf(c.stdout, "Testing image chat with %s...\n", path)
	enc, err := imagerender.EncodeFile(path, imagerender.EncodeOptions{
		MaxBytes:  cfg.OCR.MaxImageBytes,
		LegacyPNG: cfg.OCR.MIMEMode == "png",
	})
	if err != nil {
		return err
	}
	return c.complete(ctx, cfg, ai.Request{
		Model:       cfg.Endpoint.Model,
		Prompt:      cfg.Describe.Prompt,
		MaxTokens:   cfg.Describe.MaxTokens,
		ImageBase64: enc.Base64,
		ImageMIME:   enc.MIME,
	}, *stream)
}

func (c *CLI) runChat(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("chat")
	endpointFlags(fs, &cfg)
	maxTokens := fs.Int("max-tokens", 100, "Completion token limit")
	system := fs.String("system", "", "Optional system prompt")
	stream := fs.Bool("stream", false, "Print the answer as it is generated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("%w: chat needs a prompt", errUsage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.initLogging(cfg, "", c.stderr); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logpkg.Close()

	return c.complete(ctx, cfg, ai.Request{
		Model:        cfg.Endpoint.Model,
		Prompt:       prompt,
		SystemPrompt: *system,
		MaxTokens:    *maxTokens,
	}, *stream)
}

// runStatus prints the endpoint and archive health as JSON. It fails when the endpoint is down.
func (c *CLI) runStatus(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("status")
	fs.StringVar(&cfg.Endpoint.ChatURL, "api-url", cfg.Endpoint.ChatURL, "Chat-completions URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.initLogging(cfg, "", c.stderr); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logpkg.Close()

	opts := statuscheck.Options{
		ChatURL: cfg.Endpoint.ChatURL,
		APIKey:  cfg.Endpoint.APIKey,
		Timeout: cfg.Endpoint.ProbeTimeout,
	}
	if cfg.Archive.RedisURL != "" {
		if rs, err := store.NewRunStore(cfg.Archive.RedisURL); err == nil {
			defer rs.Close()
			opts.Redis = rs
		} else {
			opts.Redis = failedPing{err}
		}
	}
	if cfg.Archive.S3Bucket != "" {
		if up, err := newUploader(ctx, cfg); err == nil {
			opts.Bucket = up
		} else {
			opts.Bucket = failedHead{err}
		}
	}

	sum := statuscheck.New(opts).Summary(ctx)
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return err
	}
	if !sum.Endpoint.OK {
		return fmt.Errorf("endpoint %s: %s", sum.Endpoint.URL, sum.Endpoint.Message)
	}
	return nil
}

// failedPing and failedHead report setup errors through the status summary.
type failedPing struct{ err error }

func (f failedPing) Ping(context.Context) error { return f.err }

type failedHead struct{ err error }

func (f failedHead) HeadBucket(context.Context) error { return f.err }

func (c *CLI) runShow(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("show")
	runID := fs.String("run", "", "Run ID printed in the results header")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return fmt.Errorf("%w: show needs -run", errUsage)
	}
	if cfg.Archive.RedisURL == "" {
		return fmt.Errorf("%w: REDIS_URL is not set", errUsage)
	}

	rs, err := store.NewRunStore(cfg.Archive.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rs.Close()

	st, ok, err := rs.Get(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", *runID)
	}
	fmt.Fprintf(c.stdout, "Run: %s\nStatus: %s\nSuccess: %d/%d\nFailed: %d/%d\n", *runID, st.Status, st.Success, st.Total, st.Failure, st.Total)
	if st.AbortReason != "" {
		fmt.Fprintf(c.stdout, "Abort reason: %s\n", st.AbortReason)
	}
	for i := 1; i <= st.Done; i++ {
		r, ok, err := rs.GetRecord(ctx, *runID, i)
		if err != nil {
			return err
		}
		if ok && !r.OK {
			fmt.Fprintf(c.stdout, "  [%d] %s: ERROR: %s\n", i, r.Name, r.Reason)
		}
	}
	text, err := rs.AggregateText(ctx, *runID, st.Done)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s\n%s\n", logpkg.Rule('-'), text)
	return nil
}

func (c *CLI) runFetch(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("fetch")
	key := fs.String("key", "", "Object key, e.g. ocr-runs/<run id>/logs.txt.enc")
	out := fs.String("out", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("%w: fetch needs -key", errUsage)
	}
	if cfg.Archive.S3Bucket == "" {
		return fmt.Errorf("%w: RESULTS_S3_BUCKET is not set", errUsage)
	}

	up, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}
	data, err := up.Download(ctx, *key)
	if err != nil {
		return err
	}
	if *out != "" {
		return os.WriteFile(*out, data, 0o644)
	}
	_, err = c.stdout.Write(data)
	return err
}

func (c *CLI) runKeygen(args []string) error {
	fs := c.flagSet("keygen")
	length := fs.Int("length", keygen.DefaultLength, "Number of random characters after the prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := keygen.Generate(*length)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Generated API Key: %s\n\nAdd this to your .env file:\nVLLM_API_KEY=%s\n", key, key)
	return nil
}
