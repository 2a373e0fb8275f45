package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/ai"
	"github.com/local/visionbatch/internal/batch"
	cfgpkg "github.com/local/visionbatch/internal/config"
	logpkg "github.com/local/visionbatch/internal/logger"
	"github.com/local/visionbatch/internal/metrics"
	"github.com/local/visionbatch/internal/statuscheck"
	"github.com/local/visionbatch/internal/storage"
	"github.com/local/visionbatch/internal/store"
)

const usage = `Usage: app [command] [flags]

Commands:
  ocr       OCR every image in a folder into a results log (default)
  describe  Describe one image
  chat      Send a text-only prompt
  status    Check the inference endpoint and the optional archives
  show      Print an archived run from Redis
  fetch     Download an archived log from S3
  keygen    Generate an API key for the inference server

Run "app <command> -h" for the flags of a command.
`

// errUsage marks bad invocations; they exit with code 2.
var errUsage = errors.New("usage")

type CLI struct {
	cfg    cfgpkg.Config
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

func NewCLI(cfg cfgpkg.Config) *CLI {
	return &CLI{cfg: cfg, stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}
}

// Run dispatches to a subcommand and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	cmd := "ocr"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "ocr":
		err = c.runOCR(ctx, args)
	case "describe":
		err = c.runDescribe(ctx, args)
	case "chat":
		err = c.runChat(ctx, args)
	case "status":
		err = c.runStatus(ctx, args)
	case "show":
		err = c.runShow(ctx, args)
	case "fetch":
		err = c.runFetch(ctx, args)
	case "keygen":
		err = c.runKeygen(args)
	case "help":
		fmt.Fprint(c.stdout, usage)
		return 0
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(c.stderr, "%v\n", err)
		return 2
	default:
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
}

func (c *CLI) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func endpointFlags(fs *flag.FlagSet, cfg *cfgpkg.Config) {
	fs.StringVar(&cfg.Endpoint.ChatURL, "api-url", cfg.Endpoint.ChatURL, "Chat-completions URL")
	fs.StringVar(&cfg.Endpoint.Model, "model", cfg.Endpoint.Model, "Model name")
	fs.DurationVar(&cfg.Endpoint.RequestTimeout, "timeout", cfg.Endpoint.RequestTimeout, "Per-request timeout")
}

// initLogging sets up the global logger. errorLog is empty for commands without an error log.
func (c *CLI) initLogging(cfg cfgpkg.Config, errorLog string, console io.Writer) error {
	return logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		ErrorLogFile: errorLog,
		Console:      console,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
}

func newClient(cfg cfgpkg.Config) *ai.OpenAIClient {
	return ai.NewOpenAIClient(ai.Options{
		ChatURL: cfg.Endpoint.ChatURL,
		APIKey:  cfg.Endpoint.APIKey,
		Timeout: cfg.Endpoint.RequestTimeout,
	})
}

func (c *CLI) runOCR(ctx context.Context, args []string) error {
	cfg := c.cfg
	fs := c.flagSet("ocr")
	endpointFlags(fs, &cfg)
	fs.StringVar(&cfg.OCR.ImageDir, "images", cfg.OCR.ImageDir, "Directory containing images to process")
	fs.StringVar(&cfg.OCR.ResultsFile, "output", cfg.OCR.ResultsFile, "Results log file (overwritten)")
	fs.StringVar(&cfg.Logging.ErrorLogFile, "errors", cfg.Logging.ErrorLogFile, "Error log file (overwritten)")
	fs.StringVar(&cfg.OCR.Prompt, "prompt", cfg.OCR.Prompt, "Instruction sent with every image")
	fs.StringVar(&cfg.OCR.MIMEMode, "mime", cfg.OCR.MIMEMode, "Data URI media type: detect or png")
	fs.BoolVar(&cfg.OCR.IncludePDF, "include-pdf", cfg.OCR.IncludePDF, "Also OCR every page of PDF files")
	fs.BoolVar(&cfg.OCR.PauseOnExit, "pause", cfg.OCR.PauseOnExit, "Wait for Enter before exiting on failure")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := c.initLogging(cfg, cfg.Logging.ErrorLogFile, nil); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logpkg.Close()
	metrics.Init()
	metrics.Serve(ctx, cfg.Metrics.Addr)

	logBanner(cfg)

	sinks, closeArchives := openArchives(ctx, cfg)
	defer closeArchives()

	checker := statuscheck.New(statuscheck.Options{
		ChatURL: cfg.Endpoint.ChatURL,
		APIKey:  cfg.Endpoint.APIKey,
		Timeout: cfg.Endpoint.ProbeTimeout,
	})

	sum, err := batch.New(cfg, batch.Dependencies{
		Client: newClient(cfg),
		Prober: checker,
		Sinks:  sinks,
	}).Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", sum.RunID).Str("reason", sum.AbortReason).Msg("Run aborted")
		if cfg.OCR.PauseOnExit {
			c.pause()
		}
		return err
	}
	return nil
}

func logBanner(cfg cfgpkg.Config) {
	log.Info().Msg(logpkg.Rule('='))
	log.Info().Msg("Batch OCR Processing Started")
	log.Info().Msg(logpkg.Rule('='))
	log.Info().Msgf("Go version: %s", runtime.Version())
	log.Info().Msgf("API URL: %s", cfg.Endpoint.ChatURL)
	log.Info().Msgf("API KEY: %s", cfg.MaskedAPIKey())
	log.Info().Msgf("Model: %s", cfg.Endpoint.Model)
	log.Info().Msgf("Image Folder: %s", cfg.OCR.ImageDir)
	log.Info().Msgf("Output File: %s", cfg.OCR.ResultsFile)
	log.Info().Msgf("Error Log File: %s", cfg.Logging.ErrorLogFile)
	log.Info().Msg(logpkg.Rule('='))
}

// openArchives connects the optional sinks. A sink that cannot be reached is skipped with a warning.
func openArchives(ctx context.Context, cfg cfgpkg.Config) ([]batch.Sink, func()) {
	var sinks []batch.Sink
	closeFn := func() {}

	if cfg.Archive.RedisURL != "" {
		s, err := store.NewRunStore(cfg.Archive.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis archive disabled")
		} else {
			sinks = append(sinks, s)
			closeFn = func() { _ = s.Close() }
		}
	}
	if cfg.Archive.S3Bucket != "" {
		u, err := newUploader(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("s3 archive disabled")
		} else {
			sinks = append(sinks, u)
		}
	}
	return sinks, closeFn
}

func newUploader(ctx context.Context, cfg cfgpkg.Config) (*storage.ResultsUploader, error) {
	return storage.NewResultsUploader(ctx, storage.Options{
		Bucket:    cfg.Archive.S3Bucket,
		Prefix:    cfg.Archive.S3Prefix,
		Region:    cfg.Archive.S3Region,
		AccessKey: cfg.Archive.S3AccessKey,
		SecretKey: cfg.Archive.S3SecretKey,
		Password:  cfg.Archive.EncryptionPassword,
	}, cfg.OCR.ResultsFile, cfg.Logging.ErrorLogFile)
}

func (c *CLI) pause() {
	fmt.Fprint(c.stdout, "\nPress Enter to exit...")
	_, _ = bufio.NewReader(c.stdin).ReadString('\n')
}
