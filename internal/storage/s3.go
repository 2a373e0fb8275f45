package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/visionbatch/internal/batch"
)

const (
	gcmMagic         = "GCM3NCR0"
	pbkdf2Iterations = 100000
	saltLen          = 16
	nonceLen         = 12
)

var ErrDecrypt = errors.New("decrypt archive")

// Options configures the results uploader.
type Options struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string // empty uses the default credential chain
	SecretKey string
	Password  string // non-empty seals every object with AES-GCM
}

// ResultsUploader copies the results and error logs of a run to S3. It implements batch.Sink.
type ResultsUploader struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	password string
	files    []string
}

// NewResultsUploader creates the S3 client. files are uploaded when the run finishes.
func NewResultsUploader(ctx context.Context, opts Options, files ...string) (*ResultsUploader, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &ResultsUploader{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		password: opts.Password,
		files:    files,
	}, nil
}

func (u *ResultsUploader) Name() string { return "s3" }

// Record is a no-op; logs are uploaded whole in Finish.
func (u *ResultsUploader) Record(ctx context.Context, runID string, idx int, t batch.ImageTask, out batch.Outcome) error {
	return nil
}

// Finish uploads every configured file under <prefix>/<runID>/.
func (u *ResultsUploader) Finish(ctx context.Context, sum batch.RunSummary) error {
	var errs []error
	for _, f := range u.files {
		if err := u.uploadFile(ctx, sum, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *ResultsUploader) uploadFile(ctx context.Context, sum batch.RunSummary, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("file", file).Msg("nothing to upload")
			return nil
		}
		return fmt.Errorf("read %s: %w", file, err)
	}

	encrypted := u.password != ""
	if encrypted {
		if data, err = Seal(data, u.password); err != nil {
			return fmt.Errorf("seal %s: %w", file, err)
		}
	}

	key := ObjectKey(u.prefix, sum.RunID, filepath.Base(file), encrypted)
	meta := map[string]string{
		"run-id":    sum.RunID,
		"name":      filepath.Base(file),
		"total":     strconv.Itoa(sum.Total),
		"success":   strconv.Itoa(sum.Success),
		"failure":   strconv.Itoa(sum.Failure),
		"aborted":   strconv.FormatBool(sum.Aborted),
		"encrypted": strconv.FormatBool(encrypted),
	}
	if encrypted {
		meta["encryption-format"] = gcmMagic
	}

	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata:    meta,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", u.bucket).Str("key", key).Str("location", out.Location).Bool("encrypted", encrypted).Msg("uploaded run log to S3")
	return nil
}

// Download fetches an archived object and opens it with the uploader's password.
func (u *ResultsUploader) Download(ctx context.Context, key string) ([]byte, error) {
	result, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return Open(data, u.password)
}

// HeadBucket satisfies statuscheck.BucketHeader.
func (u *ResultsUploader) HeadBucket(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)})
	return err
}

// ObjectKey is <prefix>/<runID>/<name>[.enc].
func ObjectKey(prefix, runID, name string, encrypted bool) string {
	if encrypted {
		name += ".enc"
	}
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}

// Seal encrypts data as magic(8) + salt(16) + nonce(12) + ciphertext + tag(16),
// with the key derived from password by PBKDF2-SHA256.
func Seal(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+saltLen+nonceLen+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Open reverses Seal. Data without the magic prefix was uploaded in the clear and is returned as is.
func Open(data []byte, password string) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(gcmMagic)) {
		return data, nil
	}
	if len(data) < len(gcmMagic)+saltLen+nonceLen+16 {
		return nil, fmt.Errorf("%w: GCM data too short: %d bytes", ErrDecrypt, len(data))
	}
	if password == "" {
		return nil, fmt.Errorf("%w: object is encrypted and no password is configured", ErrDecrypt)
	}

	salt := data[8:24]
	nonce := data[24:36]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
