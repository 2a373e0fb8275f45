package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// ErrorLogFile receives warn+ events as plain text. It is truncated on Init.
	ErrorLogFile string

	// Console overrides stdout, mostly for tests.
	Console io.Writer

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var (
	global   zerolog.Logger
	ax       *axiomClient
	errorLog *errorLogWriter
)

// Init sets up global logger: file rotation, console, error log, optional Axiom forwarding.
func Init(opts Options) error {
	Close()

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	var writers []io.Writer

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05"})
	} else {
		writers = append(writers, console)
	}

	if opts.ErrorLogFile != "" {
		w, err := openErrorLog(opts.ErrorLogFile, time.Now())
		if err != nil {
			return err
		}
		errorLog = w
		writers = append(writers, w)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = client
			writers = append(writers, &axiomWriter{client: client})
		}
	}

	out := zerolog.MultiLevelWriter(writers...)

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = global
	return nil
}

// Close flushes buffered external loggers and closes the error log.
func Close() {
	if ax != nil {
		_ = ax.Close()
		ax = nil
	}
	if errorLog != nil {
		_ = errorLog.Close()
		errorLog = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// errorLogWriter keeps the human-readable warning/error log next to the results.
type errorLogWriter struct {
	mu sync.Mutex
	f  *os.File
	cw zerolog.ConsoleWriter
}

func openErrorLog(path string, now time.Time) (*errorLogWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create error log dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	header := fmt.Sprintf("Error Log - %s\n%s\n\n", now.Format("2006-01-02 15:04:05"), Rule('='))
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write error log header: %w", err)
	}
	w := &errorLogWriter{f: f}
	w.cw = zerolog.ConsoleWriter{
		Out:     f,
		NoColor: true,
		FormatTimestamp: func(i interface{}) string {
			s, _ := i.(string)
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				s = t.Local().Format("2006-01-02 15:04:05")
			}
			return "[" + s + "]"
		},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return "[" + levelName(s) + "]"
		},
	}
	return w, nil
}

func levelName(s string) string {
	switch s {
	case "warn":
		return "WARNING"
	case "error":
		return "ERROR"
	case "fatal":
		return "FATAL"
	case "panic":
		return "PANIC"
	}
	return s
}

func (w *errorLogWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w *errorLogWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.WarnLevel || l == zerolog.NoLevel {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.cw.Write(p); err != nil {
		return 0, err
	}
	return len(p), w.f.Sync()
}

func (w *errorLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Rule returns an 80-character separator line.
func Rule(c byte) string {
	b := make([]byte, 80)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct{ client *axiomClient }

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if lvl, ok := ev["level"].(string); ok && lvl == "debug" {
		return len(p), nil
	}
	ev["service"] = "visionbatch"
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.client.Send(axiom.Event(ev))
	return len(p), nil
}

// Minimal Axiom batching client
type axiomClient struct {
	client  *axiom.Client
	dataset string
	ch      chan axiom.Event
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
	if dataset == "" {
		dataset = "dev_visionbatch"
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ac := &axiomClient{
		client:  c,
		dataset: dataset,
		ch:      make(chan axiom.Event, 1000),
		ctx:     ctx,
		cancel:  cancel,
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ac.wg.Add(1)
	go ac.loop(flushEvery)
	return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.ch <- ev:
	default:
		// drop if buffer full
	}
}

func (a *axiomClient) loop(flushEvery time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, 200)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, _ = a.client.IngestEvents(ctx, a.dataset, batch)
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-a.ctx.Done():
			for {
				select {
				case ev := <-a.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-a.ch:
			batch = append(batch, ev)
			if len(batch) >= 200 {
				flush()
			}
		}
	}
}

func (a *axiomClient) Close() error {
	a.cancel()
	a.wg.Wait()
	return nil
}
