package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"categorizer/internal/corpus"
	"categorizer/internal/domain"
	"categorizer/internal/taxonomy"
)

const userInstructions = `**INSTRUCTIONS:**
1. Read the problem carefully and understand what it's asking
2. Think about HOW you would solve it - what methods/techniques?
3. Assign categories ONLY if you're confident the problem actually uses those concepts
4. If the content seems incomplete or unclear, be conservative
5. Return [] if no categories fit confidently

Assign this question to appropriate categories (or return [] if none fit).`

type ClassifierOptions struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	MaxAttempts    int
	MaxChars       int
	RateLimitDelay time.Duration
}

// Classifier assigns vocabulary labels to one question at a time.
type Classifier struct {
	completer Completer
	taxonomy  *taxonomy.Taxonomy
	opts      ClassifierOptions
	system    string
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

func NewClassifier(completer Completer, tax *taxonomy.Taxonomy, opts ClassifierOptions, logger *zap.Logger) *Classifier {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.MaxChars < 1 {
		opts.MaxChars = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		completer: completer,
		taxonomy:  tax,
		opts:      opts,
		system:    tax.SystemPrompt(),
		logger:    logger,
		sleep:     sleepContext,
	}
}

func (c *Classifier) Provider() string { return c.completer.Provider() }
func (c *Classifier) Model() string    { return c.opts.Model }

// Classify never fails the run: after the last failed attempt it returns an
// exhausted outcome with no labels.
func (c *Classifier) Classify(ctx context.Context, q domain.QuestionRecord) domain.ClassifyOutcome {
	userPrompt := BuildUserPrompt(q, c.opts.MaxChars)
	var usage LLMUsage

	labels, attempts, err := Retry(ctx, c.opts.MaxAttempts, func(ctx context.Context, attempt int) ([]string, error) {
		resp, err := c.completer.Complete(ctx, Request{
			Model:       c.opts.Model,
			System:      c.system,
			User:        userPrompt,
			Temperature: Float(c.opts.Temperature),
			MaxTokens:   c.opts.MaxTokens,
		})
		usage.Add(resp.Usage)
		if err != nil {
			c.logger.Debug("llm call failed", zap.String("question", q.Name), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		raw, err := ParseLabels(resp.Text)
		if err != nil {
			c.logger.Debug("llm reply rejected", zap.String("question", q.Name), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		c.logger.Warn("classification exhausted",
			zap.String("question", q.Name),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return domain.ClassifyOutcome{
			Kind:     domain.OutcomeExhausted,
			Labels:   []string{},
			Attempts: attempts,
			Err:      err,
			Usage:    usage,
		}
	}

	valid := c.taxonomy.Validate(labels)
	if len(valid) != len(labels) {
		c.logger.Debug("labels filtered",
			zap.String("question", q.Name),
			zap.Strings("raw", labels),
			zap.Strings("kept", valid))
	}
	c.sleep(ctx, c.opts.RateLimitDelay)

	return domain.ClassifyOutcome{
		Kind:      domain.OutcomeLabeled,
		Labels:    valid,
		RawLabels: labels,
		Attempts:  attempts,
		Usage:     usage,
	}
}

// BuildUserPrompt renders the per-question message. The question body is
// stripped of markup and cut to maxChars characters.
func BuildUserPrompt(q domain.QuestionRecord, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question Name: %s\n", q.Name)
	fmt.Fprintf(&sb, "Existing Tags: %s\n", strings.Join(q.Tags, ", "))
	fmt.Fprintf(&sb, "Difficulty: %s\n\n", q.Difficulty)
	sb.WriteString("Question Text:\n")
	sb.WriteString(corpus.Truncate(corpus.PlainText(q.QuestionText), maxChars))
	sb.WriteString("\n\n")
	sb.WriteString(userInstructions)
	return sb.String()
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
