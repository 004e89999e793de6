package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"categorizer/internal/domain"
	"categorizer/internal/taxonomy"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCanceled  = "canceled"
	RunStatusFailed    = "failed"
)

var ErrResumeMismatch = errors.New("checkpoint does not match the question list")

type Classifier interface {
	Classify(ctx context.Context, q domain.QuestionRecord) domain.ClassifyOutcome
}

type ResultWriter interface {
	WriteResults(path string, results []domain.CategorizedQuestion) error
}

// History records runs for later analysis. Failures are logged, never fatal.
type History interface {
	StartRun(ctx context.Context, run domain.RunRecord) error
	RecordClassification(ctx context.Context, rec domain.ClassificationRecord) error
	FinishRun(ctx context.Context, run domain.RunRecord) error
}

type Progress interface {
	Report(done, total int, rate float64, eta time.Duration)
	Saved(count int)
}

type Deps struct {
	Classifier Classifier
	Taxonomy   *taxonomy.Taxonomy
	Writer     ResultWriter
	History    History
	Progress   Progress
	Logger     *zap.Logger
	Now        func() time.Time
}

type Options struct {
	Interval       int
	CheckpointPath string
	FinalPath      string
	// Prior holds results from an earlier checkpoint. They must match the
	// leading questions by name and are kept as is.
	Prior []domain.CategorizedQuestion
	// Provider and Model are stored with the run history.
	Provider string
	Model    string
}

type Result struct {
	RunID    string
	Results  []domain.CategorizedQuestion
	Failures []domain.ItemFailure
	Resumed  int
	Usage    domain.LLMUsage
	Elapsed  time.Duration
	Stats    domain.RunStatistics
}

// Run classifies questions one at a time in order. Every Interval records
// the whole result set is rewritten to CheckpointPath; at the end it is
// written to FinalPath. Classification failures yield empty labels and are
// collected in Result.Failures. Write failures abort the run.
func Run(ctx context.Context, questions []domain.QuestionRecord, deps Deps, opts Options) (Result, error) {
	if deps.Classifier == nil || deps.Writer == nil || deps.Taxonomy == nil {
		return Result{}, fmt.Errorf("pipeline: classifier, writer and taxonomy are required")
	}
	if opts.Interval < 1 {
		return Result{}, fmt.Errorf("pipeline: checkpoint interval must be >= 1, got %d", opts.Interval)
	}
	if opts.CheckpointPath == "" || opts.FinalPath == "" {
		return Result{}, fmt.Errorf("pipeline: checkpoint and final paths are required")
	}
	if opts.CheckpointPath == opts.FinalPath {
		return Result{}, fmt.Errorf("pipeline: checkpoint and final paths must differ")
	}
	if err := checkPrior(questions, opts.Prior); err != nil {
		return Result{}, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	total := len(questions)
	res := Result{
		RunID:   uuid.NewString(),
		Results: make([]domain.CategorizedQuestion, 0, total),
		Resumed: len(opts.Prior),
	}
	res.Results = append(res.Results, opts.Prior...)

	run := domain.RunRecord{
		ID:          res.RunID,
		StartedAt:   now(),
		LLMProvider: opts.Provider,
		LLMModel:    opts.Model,
		Total:       total,
		Status:      RunStatusRunning,
	}
	hist := historian{h: deps.History, logger: logger}
	hist.start(ctx, run)
	logger.Info("categorization started",
		zap.String("run_id", res.RunID),
		zap.Int("questions", total),
		zap.Int("resumed", res.Resumed))

	started := now()
	finish := func(status string) {
		res.Elapsed = now().Sub(started)
		res.Stats = Summarize(res.Results, deps.Taxonomy)
		run.FinishedAt = now()
		run.Processed = len(res.Results)
		run.Failures = len(res.Failures)
		run.InputTokens = res.Usage.InputTokens
		run.OutputTokens = res.Usage.OutputTokens
		run.Status = status
		hist.finish(ctx, run)
	}

	for i := res.Resumed; i < total; i++ {
		if ctx.Err() != nil {
			err := interrupted(ctx, deps, opts, &res, finish, logger)
			return res, err
		}

		q := questions[i]
		out := deps.Classifier.Classify(ctx, q)
		if out.Kind == domain.OutcomeExhausted && ctx.Err() != nil {
			// The interrupted question is left for the next run.
			err := interrupted(ctx, deps, opts, &res, finish, logger)
			return res, err
		}

		res.Results = append(res.Results, q.Categorize(out.Labels))
		res.Usage.Add(out.Usage)
		rec := domain.ClassificationRecord{
			RunID:        res.RunID,
			Position:     i,
			QuestionName: q.Name,
			Labels:       out.Labels,
			RawLabels:    out.RawLabels,
			Attempts:     out.Attempts,
			LLMProvider:  opts.Provider,
			LLMModel:     opts.Model,
			ClassifiedAt: now(),
		}
		if out.Kind == domain.OutcomeExhausted {
			res.Failures = append(res.Failures, domain.ItemFailure{
				Position:     i,
				QuestionName: q.Name,
				Attempts:     out.Attempts,
				Err:          out.Err,
			})
			if out.Err != nil {
				rec.Error = out.Err.Error()
			}
		}
		hist.record(ctx, rec)

		done := i + 1
		if done%opts.Interval == 0 || done == total {
			if deps.Progress != nil {
				rate, eta := throughput(done-res.Resumed, total-done, now().Sub(started))
				deps.Progress.Report(done, total, rate, eta)
			}
		}
		if done%opts.Interval == 0 {
			if err := deps.Writer.WriteResults(opts.CheckpointPath, res.Results); err != nil {
				finish(RunStatusFailed)
				return res, fmt.Errorf("writing checkpoint after %d questions: %w", done, err)
			}
			if deps.Progress != nil {
				deps.Progress.Saved(done)
			}
			logger.Debug("checkpoint written", zap.Int("questions", done), zap.String("path", opts.CheckpointPath))
		}
	}

	if err := deps.Writer.WriteResults(opts.FinalPath, res.Results); err != nil {
		finish(RunStatusFailed)
		return res, fmt.Errorf("writing final results: %w", err)
	}
	finish(RunStatusCompleted)

	logger.Info("categorization finished",
		zap.String("run_id", res.RunID),
		zap.Int("questions", len(res.Results)),
		zap.Int("failures", len(res.Failures)),
		zap.Int64("tokens_in", res.Usage.InputTokens),
		zap.Int64("tokens_out", res.Usage.OutputTokens),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// interrupted saves what has been processed so far and reports the
// cancellation.
func interrupted(ctx context.Context, deps Deps, opts Options, res *Result, finish func(string), logger *zap.Logger) error {
	cause := ctx.Err()
	if err := deps.Writer.WriteResults(opts.CheckpointPath, res.Results); err != nil {
		logger.Error("checkpoint on cancel failed", zap.Error(err))
	} else if deps.Progress != nil {
		deps.Progress.Saved(len(res.Results))
	}
	finish(RunStatusCanceled)
	logger.Warn("categorization interrupted", zap.Int("questions", len(res.Results)), zap.Error(cause))
	return fmt.Errorf("categorization interrupted after %d questions: %w", len(res.Results), cause)
}

func checkPrior(questions []domain.QuestionRecord, prior []domain.CategorizedQuestion) error {
	if len(prior) > len(questions) {
		return fmt.Errorf("%w: checkpoint has %d entries, corpus has %d", ErrResumeMismatch, len(prior), len(questions))
	}
	for i, p := range prior {
		if p.Name != questions[i].Name {
			return fmt.Errorf("%w: entry %d is %q, corpus has %q", ErrResumeMismatch, i, p.Name, questions[i].Name)
		}
	}
	return nil
}

// throughput returns questions per second and the estimated time left.
func throughput(processed, remaining int, elapsed time.Duration) (float64, time.Duration) {
	if processed <= 0 || elapsed <= 0 {
		return 0, 0
	}
	rate := float64(processed) / elapsed.Seconds()
	eta := time.Duration(float64(remaining) / rate * float64(time.Second))
	return rate, eta
}

// historian forwards to an optional History and logs its errors. Writes
// ignore cancellation so an interrupted run is still closed out.
type historian struct {
	h      History
	logger *zap.Logger
}

func (w historian) start(ctx context.Context, run domain.RunRecord) {
	if w.h == nil {
		return
	}
	if err := w.h.StartRun(context.WithoutCancel(ctx), run); err != nil {
		w.logger.Warn("history write failed", zap.String("op", "start_run"), zap.Error(err))
	}
}

func (w historian) record(ctx context.Context, rec domain.ClassificationRecord) {
	if w.h == nil {
		return
	}
	if err := w.h.RecordClassification(context.WithoutCancel(ctx), rec); err != nil {
		w.logger.Warn("history write failed", zap.String("op", "record_classification"), zap.String("question", rec.QuestionName), zap.Error(err))
	}
}

func (w historian) finish(ctx context.Context, run domain.RunRecord) {
	if w.h == nil {
		return
	}
	if err := w.h.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		w.logger.Warn("history write failed", zap.String("op", "finish_run"), zap.Error(err))
	}
}
