package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/ai"
	"github.com/local/visionbatch/internal/imagerender"
	"github.com/local/visionbatch/internal/metrics"
)

// Issuer turns one ImageTask into exactly one Outcome.
type Issuer struct {
	Client      ai.Client
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Encode      imagerender.EncodeOptions
	PDFDPI      int
	PDFQuality  int
}

// Issue encodes the image and sends a single chat-completion request. The returned error is
// non-nil only when ctx was cancelled; in that case the Outcome must be discarded.
func (is Issuer) Issue(ctx context.Context, t ImageTask) (Outcome, error) {
	l := log.With().Str("file", t.Name).Logger()

	l.Debug().Msg("encoding image")
	enc, err := is.encode(t)
	if err != nil {
		l.Error().Err(err).Msg("failed to encode image")
		metrics.IncProcessed("failure")
		return Failure(fmt.Sprintf("Failed to encode image: %v", err)), nil
	}
	metrics.ObserveImageBytes(enc.Size)
	l.Debug().Int("size", enc.Size).Int("base64_len", len(enc.Base64)).Str("mime", enc.MIME).Msg("sending API request")

	start := time.Now()
	resp, err := is.Client.Do(ctx, ai.Request{
		Model:       is.Model,
		Prompt:      is.Prompt,
		MaxTokens:   is.MaxTokens,
		Temperature: is.Temperature,
		ImageBase64: enc.Base64,
		ImageMIME:   enc.MIME,
	})
	kind := ai.Classify(err)
	if kind == ai.KindNone {
		metrics.ObserveRequest(is.Model, "ok", time.Since(start))
	} else {
		metrics.ObserveRequest(is.Model, string(kind), time.Since(start))
	}

	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		reason := failureReason(kind, err)
		l.Error().Str("kind", string(kind)).Msg(reason)
		metrics.IncProcessed("failure")
		return Failure(reason), nil
	}

	l.Info().Int("chars", len(resp.Text)).Int("tokens_out", resp.TokensOut).Msg("success")
	metrics.IncProcessed("success")
	return Success(resp.Text), nil
}

func (is Issuer) encode(t ImageTask) (imagerender.Encoded, error) {
	if t.Page > 0 {
		return imagerender.EncodePDFPage(t.Path, t.Page, is.PDFDPI, is.PDFQuality, is.Encode)
	}
	return imagerender.EncodeFile(t.Path, is.Encode)
}

func failureReason(kind ai.Kind, err error) string {
	switch kind {
	case ai.KindTimeout:
		var te *ai.TimeoutError
		if errors.As(err, &te) {
			return fmt.Sprintf("Request timeout after %s", te.After)
		}
		return "Request timeout"
	case ai.KindHTTP:
		var he *ai.HTTPError
		errors.As(err, &he)
		return fmt.Sprintf("API returned status %d: %s", he.StatusCode, he.Body)
	case ai.KindNetwork:
		var ne *ai.NetworkError
		errors.As(err, &ne)
		return fmt.Sprintf("Request failed: %v", ne.Err)
	case ai.KindMalformed:
		var me *ai.MalformedResponseError
		errors.As(err, &me)
		return fmt.Sprintf("Unexpected response format: %s", me.Body)
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
