package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/ai"
	"github.com/local/visionbatch/internal/config"
	"github.com/local/visionbatch/internal/imagerender"
	"github.com/local/visionbatch/internal/logger"
	"github.com/local/visionbatch/internal/statuscheck"
)

// Prober is the pre-run connectivity check.
type Prober interface {
	CheckEndpoint(ctx context.Context) statuscheck.Status
}

// Sink receives a copy of every record after it has been written to the results log.
// Sink failures are logged and never change the run outcome.
type Sink interface {
	Name() string
	Record(ctx context.Context, runID string, idx int, t ImageTask, out Outcome) error
	Finish(ctx context.Context, s RunSummary) error
}

type Dependencies struct {
	Client ai.Client
	Prober Prober
	Sinks  []Sink
	Now    func() time.Time
}

// Processor drives one batch run: probe, enumerate, process sequentially, finalize.
type Processor struct {
	cfg    config.Config
	deps   Dependencies
	issuer Issuer
	state  State
}

func New(cfg config.Config, deps Dependencies) *Processor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Processor{
		cfg:  cfg,
		deps: deps,
		issuer: Issuer{
			Client:      deps.Client,
			Model:       cfg.Endpoint.Model,
			Prompt:      cfg.OCR.Prompt,
			MaxTokens:   cfg.OCR.MaxTokens,
			Temperature: cfg.OCR.Temperature,
			Encode: imagerender.EncodeOptions{
				MaxBytes:  cfg.OCR.MaxImageBytes,
				LegacyPNG: cfg.OCR.MIMEMode == "png",
			},
			PDFDPI:     cfg.OCR.PDFDPI,
			PDFQuality: cfg.OCR.PDFQuality,
		},
		state: StateIdle,
	}
}

func (p *Processor) State() State { return p.state }

func (p *Processor) setState(s State) {
	log.Debug().Str("from", p.state.String()).Str("to", s.String()).Msg("batch state")
	p.state = s
}

// Run executes the whole batch. A non-nil error means the run was aborted; the returned
// summary still carries whatever was counted before the abort.
func (p *Processor) Run(ctx context.Context) (RunSummary, error) {
	sum := RunSummary{RunID: uuid.NewString()}

	log.Info().Msg("Testing API connection...")
	st := p.deps.Prober.CheckEndpoint(ctx)
	if ctx.Err() != nil {
		return p.abort(sum, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
	}
	if !st.OK {
		log.Error().Str("url", st.URL).Str("reason", st.Message).Msg("API server is not reachable")
		return p.abort(sum, fmt.Errorf("%w: %s", ErrConnectivity, st.Message))
	}
	log.Info().Str("url", st.URL).Strs("models", st.Models).Msg("API server is reachable")
	p.setState(StateConnectivityChecked)

	p.setState(StateEnumerating)
	dir := p.cfg.OCR.ImageDir
	listing, err := Enumerate(dir, p.cfg.OCR.IncludePDF)
	if err != nil {
		log.Error().Err(err).Str("folder", dir).Msg("cannot read image folder")
		return p.abort(sum, err)
	}
	log.Info().Str("folder", dir).Int("total_files", listing.TotalFiles).Int("image_files", len(listing.Tasks)).Msg("folder scanned")
	for _, t := range listing.Tasks {
		log.Info().Msgf("  - %s", t.Name)
	}
	if len(listing.Tasks) == 0 {
		log.Warn().Str("folder", dir).Msg("No image files found")
		return p.abort(sum, fmt.Errorf("%w in %s", ErrNoImages, dir))
	}

	sum.Total = len(listing.Tasks)
	rl, err := CreateResultsLog(p.cfg.OCR.ResultsFile)
	if err != nil {
		log.Error().Err(err).Str("file", p.cfg.OCR.ResultsFile).Msg("cannot create results file")
		return p.abort(sum, err)
	}
	defer rl.Close()
	if err := rl.WriteHeader(sum.RunID, sum.Total, p.deps.Now()); err != nil {
		log.Error().Err(err).Msg("cannot write results header")
		return p.abort(sum, err)
	}

	log.Info().Int("images", sum.Total).Str("run_id", sum.RunID).Msg("Starting OCR processing")
	p.setState(StateProcessing)
	for i, t := range listing.Tasks {
		idx := i + 1
		if ctx.Err() != nil {
			return p.interrupted(ctx, sum)
		}
		log.Info().Msgf("[%d/%d] Processing: %s", idx, sum.Total, t.Name)

		out, err := p.issuer.Issue(ctx, t)
		if err != nil {
			// in-flight request abandoned, nothing recorded for it
			return p.interrupted(ctx, sum)
		}

		if err := rl.WriteRecord(idx, sum.Total, t, out); err != nil {
			log.Error().Err(err).Str("file", rl.Path()).Int("record", idx).Msg("Error writing output file")
			return p.abort(sum, err)
		}
		if out.OK() {
			sum.Success++
		} else {
			sum.Failure++
		}
		p.record(ctx, sum.RunID, idx, t, out)
	}

	p.setState(StateFinalizing)
	sum.GeneratedAt = p.deps.Now()
	if err := rl.WriteFooter(sum); err != nil {
		log.Error().Err(err).Str("file", rl.Path()).Msg("Error writing output file")
		return p.abort(sum, err)
	}

	log.Info().Msg(logger.Rule('='))
	log.Info().Msg("All processing complete!")
	log.Info().Msgf("Results saved to: %s", p.cfg.OCR.ResultsFile)
	log.Info().Msgf("Error logs saved to: %s", p.cfg.Logging.ErrorLogFile)
	log.Info().Msgf("Success: %d/%d", sum.Success, sum.Total)
	log.Info().Msgf("Failed: %d/%d", sum.Failure, sum.Total)
	log.Info().Msg(logger.Rule('='))

	p.finish(ctx, sum)
	p.setState(StateDone)
	return sum, nil
}

func (p *Processor) interrupted(ctx context.Context, sum RunSummary) (RunSummary, error) {
	log.Warn().Int("done", sum.Success+sum.Failure).Int("total", sum.Total).Msg("Process interrupted by user")
	return p.abort(sum, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
}

func (p *Processor) abort(sum RunSummary, err error) (RunSummary, error) {
	sum.Aborted = true
	sum.AbortReason = abortReason(err)
	sum.GeneratedAt = p.deps.Now()
	if sum.Total > 0 {
		// partial runs are still archived
		p.finish(context.Background(), sum)
	}
	p.setState(StateDone)
	return sum, err
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrDirectory):
		return "directory"
	case errors.Is(err, ErrNoImages):
		return "no_images"
	case errors.Is(err, ErrOutputWrite):
		return "output_write"
	default:
		return "error"
	}
}

func (p *Processor) record(ctx context.Context, runID string, idx int, t ImageTask, out Outcome) {
	for _, s := range p.deps.Sinks {
		if err := s.Record(ctx, runID, idx, t, out); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Int("record", idx).Msg("sink record failed")
		}
	}
}

func (p *Processor) finish(ctx context.Context, sum RunSummary) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range p.deps.Sinks {
		if err := s.Finish(ctx, sum); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("sink finish failed")
		}
	}
}
