package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level        string
	Pretty       bool
	File         string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Compress     bool
	ErrorLogFile string
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EndpointConfig describes the OpenAI-compatible inference server.
type EndpointConfig struct {
	ChatURL        string
	APIKey         string
	Model          string
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
}

// OCRConfig drives the batch run.
type OCRConfig struct {
	ImageDir      string
	ResultsFile   string
	Prompt        string
	MaxTokens     int
	Temperature   float64
	MaxImageBytes int64
	MIMEMode      string // "detect"|"png"
	IncludePDF    bool
	PDFDPI        int
	PDFQuality    int
	PauseOnExit   bool
}

// DescribeConfig holds defaults for the describe and chat commands.
type DescribeConfig struct {
	Prompt    string
	MaxTokens int
}

// ArchiveConfig configures the optional result sinks.
type ArchiveConfig struct {
	RedisURL           string
	S3Bucket           string
	S3Prefix           string
	S3Region           string
	S3AccessKey        string
	S3SecretKey        string
	EncryptionPassword string
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	Addr string
}

// Config is the top-level configuration. It is built once at startup and passed by value.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Endpoint EndpointConfig
	OCR      OCRConfig
	Describe DescribeConfig
	Archive  ArchiveConfig
	Metrics  MetricsConfig
}

const (
	DefaultChatURL        = "http://localhost:8000/v1/chat/completions"
	DefaultModel          = "Qwen/Qwen2.5-VL-7B-Instruct"
	DefaultOCRPrompt      = "Extract all text from this image exactly. Output only the OCR result."
	DefaultDescribePrompt = "Describe this image in detail."
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:        getEnv("LOG_LEVEL", "info"),
		Pretty:       parseBool(getEnv("LOG_PRETTY", "true")),
		File:         getEnv("LOG_FILE", "logs/visionbatch.log"),
		MaxSizeMB:    parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups:   parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays:   parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:     parseBool(getEnv("LOG_COMPRESS", "true")),
		ErrorLogFile: getEnv("ERROR_LOG_FILE", "error_logs.txt"),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_visionbatch",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Endpoint = EndpointConfig{
		ChatURL:        getEnv("API_URL", DefaultChatURL),
		APIKey:         getEnv("VLLM_API_KEY", ""),
		Model:          getEnv("MODEL", DefaultModel),
		ProbeTimeout:   parseDuration(getEnv("PROBE_TIMEOUT", "10s"), 10*time.Second),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "120s"), 120*time.Second),
	}

	cfg.OCR = OCRConfig{
		ImageDir:      getEnv("IMAGE_FOLDER", "images"),
		ResultsFile:   getEnv("OUTPUT_FILE", "logs.txt"),
		Prompt:        getEnv("OCR_PROMPT", DefaultOCRPrompt),
		MaxTokens:     parseInt(getEnv("OCR_MAX_TOKENS", "2000"), 2000),
		Temperature:   parseFloat(getEnv("OCR_TEMPERATURE", "0.1"), 0.1),
		MaxImageBytes: int64(parseInt(getEnv("MAX_IMAGE_BYTES", "20971520"), 20<<20)),
		MIMEMode:      strings.ToLower(getEnv("MIME_MODE", "detect")),
		IncludePDF:    parseBool(getEnv("INCLUDE_PDF", "false")),
		PDFDPI:        parseInt(getEnv("PDF_DPI", "150"), 150),
		PDFQuality:    parseInt(getEnv("PDF_JPEG_QUALITY", "85"), 85),
		PauseOnExit:   parseBool(getEnv("PAUSE_ON_EXIT", "false")),
	}

	cfg.Describe = DescribeConfig{
		Prompt:    getEnv("DESCRIBE_PROMPT", DefaultDescribePrompt),
		MaxTokens: parseInt(getEnv("DESCRIBE_MAX_TOKENS", "200"), 200),
	}

	cfg.Archive = ArchiveConfig{
		RedisURL:           getEnv("REDIS_URL", ""),
		S3Bucket:           getEnv("RESULTS_S3_BUCKET", ""),
		S3Prefix:           getEnv("RESULTS_S3_PREFIX", "ocr-runs"),
		S3Region:           getEnv("AWS_REGION", ""),
		S3AccessKey:        getEnv("RESULTS_S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("RESULTS_S3_SECRET_KEY", ""),
		EncryptionPassword: getEnv("RESULTS_ENCRYPTION_PASSWORD", ""),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnv("METRICS_ADDR", ""),
	}

	return cfg
}

var (
	ErrMissingAPIURL = errors.New("API_URL is empty")
	ErrMissingAPIKey = errors.New("VLLM_API_KEY is empty")
)

// Validate reports configuration that would make every request fail.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint.ChatURL) == "" {
		errs = append(errs, ErrMissingAPIURL)
	}
	if strings.TrimSpace(c.Endpoint.APIKey) == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.OCR.MIMEMode != "detect" && c.OCR.MIMEMode != "png" {
		errs = append(errs, fmt.Errorf("MIME_MODE %q: want detect or png", c.OCR.MIMEMode))
	}
	return errors.Join(errs...)
}

// MaskedAPIKey returns the first ten characters of the key for display.
func (c Config) MaskedAPIKey() string {
	k := c.Endpoint.APIKey
	if len(k) > 10 {
		k = k[:10]
	}
	return k + "... (hidden)"
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}
