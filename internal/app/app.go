package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"categorizer/internal/checkpoint"
	"categorizer/internal/config"
	"categorizer/internal/corpus"
	"categorizer/internal/domain"
	"categorizer/internal/generate"
	"categorizer/internal/httpx"
	"categorizer/internal/integrations/llm"
	slackbot "categorizer/internal/integrations/slack"
	"categorizer/internal/pipeline"
	"categorizer/internal/report"
	"categorizer/internal/schedule"
	"categorizer/internal/storage/sqlite"
	"categorizer/internal/taxonomy"
)

// App carries state shared by the subcommands.
type App struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
	out    io.Writer

	// newCompleter builds the model client; tests replace it.
	newCompleter func(ctx context.Context, cfg config.Config) (llm.Completer, error)
	now          func() time.Time
}

func New(out io.Writer) *App {
	return &App{
		out:          out,
		newCompleter: llm.NewCompleter,
		now:          time.Now,
	}
}

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := New(os.Stdout).RootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "categorizer",
		Short: "Label quant interview questions against a fixed category vocabulary",
		Long: `categorizer sends every question of a scraped corpus to a hosted LLM,
keeps only labels from the configured vocabulary, and writes the labeled
corpus with periodic checkpoints.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(a.categorizeCommand())
	root.AddCommand(a.generateCommand())
	root.AddCommand(a.statsCommand())
	root.AddCommand(a.scheduleCommand())
	root.AddCommand(a.vocabularyCommand())
	return root
}

func (a *App) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		zcfg := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level '%s': %w", cfg.LogLevel, err)
		}
		if a.verbose {
			level = zapcore.DebugLevel
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
		a.logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	a.logger.Debug("config loaded",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.LLMModel),
		zap.String("questions", cfg.QuestionsPath),
		zap.Int("checkpoint_interval", cfg.CheckpointInterval),
		zap.Bool("history", cfg.HistoryEnabled()),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("external_http_timeout", applied))
	return nil
}

func (a *App) categorizeCommand() *cobra.Command {
	var resume bool
	var limit int
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Classify every question and write the labeled corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.runCategorize(cmd.Context(), resume, limit)
			return err
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue after the entries already in the checkpoint file")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only process the first N questions (0 = all)")
	return cmd
}

func (a *App) runCategorize(ctx context.Context, resume bool, limit int) (pipeline.Result, error) {
	cfg := a.cfg
	writer := checkpoint.NewWriter()

	tax, err := taxonomy.Load(cfg.VocabularyPath)
	if err != nil {
		return pipeline.Result{}, err
	}
	if err := writer.WriteJSON(cfg.VocabularyOutputPath, tax.Labels); err != nil {
		return pipeline.Result{}, fmt.Errorf("writing vocabulary: %w", err)
	}

	questions, err := corpus.Load(cfg.QuestionsPath)
	if err != nil {
		return pipeline.Result{}, err
	}
	if limit > 0 && limit < len(questions) {
		questions = questions[:limit]
	}
	a.logger.Info("questions loaded", zap.Int("count", len(questions)), zap.String("path", cfg.QuestionsPath))

	var prior []domain.CategorizedQuestion
	if resume {
		prior, err = checkpoint.LoadResults(cfg.CheckpointPath)
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Info("no checkpoint to resume from, starting fresh", zap.String("path", cfg.CheckpointPath))
			prior, err = nil, nil
		}
		if err != nil {
			return pipeline.Result{}, err
		}
	}

	completer, err := a.newCompleter(ctx, cfg)
	if err != nil {
		return pipeline.Result{}, err
	}
	classifier := llm.NewClassifier(completer, tax, llm.ClassifierOptions{
		Model:          cfg.LLMModel,
		Temperature:    cfg.LLMTemperature,
		MaxTokens:      cfg.LLMMaxTokens,
		MaxAttempts:    cfg.LLMMaxRetries,
		MaxChars:       cfg.LLMQuestionMaxChars,
		RateLimitDelay: cfg.RateLimitDelay(),
	}, a.logger)

	deps := pipeline.Deps{
		Classifier: classifier,
		Taxonomy:   tax,
		Writer:     writer,
		Progress:   pipeline.NewConsoleProgress(a.out),
		Logger:     a.logger,
		Now:        a.now,
	}
	if cfg.HistoryEnabled() {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			a.logger.Warn("history disabled", zap.Error(err))
		} else {
			defer store.Close()
			deps.History = store
		}
	}

	color.New(color.Bold).Fprintf(a.out, "Categorizing %d questions with %s/%s\n", len(questions), classifier.Provider(), classifier.Model())
	res, err := pipeline.Run(ctx, questions, deps, pipeline.Options{
		Interval:       cfg.CheckpointInterval,
		CheckpointPath: cfg.CheckpointPath,
		FinalPath:      cfg.FinalOutputPath,
		Prior:          prior,
		Provider:       classifier.Provider(),
		Model:          classifier.Model(),
	})
	if err != nil {
		return res, err
	}

	fmt.Fprintf(a.out, "\nCategorization complete in %.1f minutes (%d failures)\n", res.Elapsed.Minutes(), len(res.Failures))
	fmt.Fprintf(a.out, "Saved final results to %s\n\n", cfg.FinalOutputPath)
	report.Print(a.out, res.Stats)

	info := report.RunInfo{
		RunID:    res.RunID,
		Provider: classifier.Provider(),
		Model:    classifier.Model(),
		Elapsed:  res.Elapsed,
		Failures: len(res.Failures),
		Usage:    res.Usage,
	}
	a.publish(ctx, res.Stats, info)
	return res, nil
}

// publish writes the markdown report and posts to Slack. Failures here do
// not fail the run.
func (a *App) publish(ctx context.Context, stats domain.RunStatistics, info report.RunInfo) {
	path, err := report.WriteReportFile(report.Markdown(stats, info), a.cfg.ReportOutputDir, a.now().In(a.cfg.Location), "category_analysis")
	if err != nil {
		a.logger.Warn("report file not written", zap.Error(err))
	} else {
		a.logger.Info("report written", zap.String("path", path))
	}

	if !a.cfg.SlackConfigured() {
		return
	}
	n := slackbot.NewNotifier(a.cfg.SlackBotToken, a.cfg.ReportChannelID, httpx.ExternalHTTPClient(), a.logger)
	if err := n.NotifyRun(ctx, stats, info); err != nil {
		a.logger.Warn("slack notification failed", zap.Error(err))
	}
}

func (a *App) generateCommand() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Propose a category set from a random sample of the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd.Context(), seed)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed (0 = random)")
	return cmd
}

func (a *App) runGenerate(ctx context.Context, seed int64) error {
	cfg := a.cfg
	questions, err := corpus.Load(cfg.QuestionsPath)
	if err != nil {
		return err
	}
	completer, err := a.newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = a.now().UnixNano()
	}

	fmt.Fprintf(a.out, "Generating category set with %s (this may take a minute)\n", cfg.LLMGenerationModel)
	res, err := generate.Generate(ctx, completer, questions, generate.Options{
		Model:        cfg.LLMGenerationModel,
		SampleSize:   cfg.GenerateSampleSize,
		PreviewCount: cfg.GeneratePreviewCount,
		PreviewChars: cfg.GeneratePreviewChars,
		Rand:         rand.New(rand.NewSource(seed)),
	}, a.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Generated %d categories from %d sampled questions:\n", len(res.Categories), len(res.Sample))
	for i, c := range res.Categories {
		fmt.Fprintf(a.out, "  %2d. %s\n", i+1, c)
	}
	if err := generate.WriteOutputs(checkpoint.NewWriter(), cfg.GeneratedCategoriesPath, cfg.GenerationVerificationPath, res); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved categories to %s and verification data to %s\n", cfg.GeneratedCategoriesPath, cfg.GenerationVerificationPath)
	return nil
}

// historyQuery narrows what `stats --history` reads from the run history.
type historyQuery struct {
	runID    string
	since    string
	question string
	failed   bool
	limit    int
}

func (q historyQuery) listsRows() bool {
	return q.failed || q.question != ""
}

func (a *App) statsCommand() *cobra.Command {
	var input string
	var history bool
	var q historyQuery
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the category analysis of a result file or the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if history {
				return a.runHistoryStats(cmd.Context(), q)
			}
			return a.runStats(input)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Result file (default: final_output_path)")
	cmd.Flags().BoolVar(&history, "history", false, "Read the history database instead of a result file")
	cmd.Flags().StringVar(&q.runID, "run", "", "Restrict --history to one run ID and print its details")
	cmd.Flags().StringVar(&q.since, "since", "", "Only count classifications at or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&q.question, "question", "", "List the recorded classifications of one question")
	cmd.Flags().BoolVar(&q.failed, "failed", false, "List classifications whose retries were exhausted")
	cmd.Flags().IntVar(&q.limit, "limit", 0, "Maximum rows for --failed / --question (0 = all)")
	return cmd
}

func (a *App) runStats(input string) error {
	if strings.TrimSpace(input) == "" {
		input = a.cfg.FinalOutputPath
	}
	tax, err := taxonomy.Load(a.cfg.VocabularyPath)
	if err != nil {
		return err
	}
	results, err := checkpoint.LoadResults(input)
	if err != nil {
		return err
	}
	report.Print(a.out, pipeline.Summarize(results, tax))
	return nil
}

func (a *App) runHistoryStats(ctx context.Context, q historyQuery) error {
	if !a.cfg.HistoryEnabled() {
		return fmt.Errorf("history is disabled (db_path=%s)", a.cfg.DBPath)
	}
	since, err := parseSince(q.since, a.cfg.Location)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if q.runID != "" {
		run, err := store.GetRun(ctx, q.runID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %s not found", q.runID)
		}
		if err != nil {
			return fmt.Errorf("reading run: %w", err)
		}
		a.printRunDetails(run)
	} else {
		runs, err := store.ListRuns(ctx, 5)
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}
		for _, r := range runs {
			fmt.Fprintf(a.out, "%s  %s  %s/%s  %d/%d processed, %d failures\n",
				r.StartedAt.In(a.cfg.Location).Format("2006-01-02 15:04"), r.Status, r.LLMProvider, r.LLMModel, r.Processed, r.Total, r.Failures)
		}
		if len(runs) > 0 {
			fmt.Fprintln(a.out)
		}
	}

	if q.listsRows() {
		records, err := store.ListClassifications(ctx, sqlite.ClassificationFilter{
			RunID:        q.runID,
			QuestionName: q.question,
			Since:        since,
			FailedOnly:   q.failed,
			Limit:        q.limit,
		})
		if err != nil {
			return fmt.Errorf("reading classifications: %w", err)
		}
		report.PrintClassifications(a.out, records, a.cfg.Location)
		return nil
	}

	counts, err := store.LabelCounts(ctx, sqlite.LabelCountFilter{RunID: q.runID, Since: since})
	if err != nil {
		return fmt.Errorf("reading label totals: %w", err)
	}
	report.PrintHistory(a.out, counts)
	return nil
}

func (a *App) printRunDetails(run domain.RunRecord) {
	fmt.Fprintf(a.out, "Run %s\n", run.ID)
	fmt.Fprintf(a.out, "  Status:   %s\n", run.Status)
	fmt.Fprintf(a.out, "  Model:    %s/%s\n", run.LLMProvider, run.LLMModel)
	fmt.Fprintf(a.out, "  Started:  %s\n", run.StartedAt.In(a.cfg.Location).Format("2006-01-02 15:04:05"))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(a.out, "  Finished: %s\n", run.FinishedAt.In(a.cfg.Location).Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(a.out, "  Progress: %d/%d processed, %d failures\n", run.Processed, run.Total, run.Failures)
	fmt.Fprintf(a.out, "  Tokens:   %d in / %d out\n\n", run.InputTokens, run.OutputTokens)
}

// parseSince accepts a calendar date in loc or an RFC3339 timestamp.
func parseSince(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since '%s': use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

func (a *App) scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Re-run categorization on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(a.cfg.Schedule) == "" {
				return fmt.Errorf("schedule is not set (schedule / CATEGORIZE_SCHEDULE)")
			}
			err := schedule.Start(cmd.Context(), a.cfg.Schedule, a.cfg.Location, func(ctx context.Context) error {
				_, err := a.runCategorize(ctx, false, 0)
				return err
			}, a.logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func (a *App) vocabularyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vocabulary",
		Short: "Write the label vocabulary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tax, err := taxonomy.Load(a.cfg.VocabularyPath)
			if err != nil {
				return err
			}
			if err := checkpoint.NewWriter().WriteJSON(a.cfg.VocabularyOutputPath, tax.Labels); err != nil {
				return fmt.Errorf("writing vocabulary: %w", err)
			}
			fmt.Fprintf(a.out, "Saved %d categories to %s\n", tax.Len(), a.cfg.VocabularyOutputPath)
			return nil
		},
	}
}
