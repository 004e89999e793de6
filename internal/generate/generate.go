package generate

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"go.uber.org/zap"

	"categorizer/internal/corpus"
	"categorizer/internal/domain"
	"categorizer/internal/integrations/llm"
)

const verificationNote = "Review these sample questions to verify that categories match what's actually in the questions"

const verificationPreviewChars = 300

type Options struct {
	Model        string
	SampleSize   int
	PreviewCount int
	PreviewChars int
	Rand         *rand.Rand
}

type Result struct {
	Categories []string
	Sample     []domain.QuestionRecord
	Usage      domain.LLMUsage
}

// SampleQuestion is one entry of the verification file.
type SampleQuestion struct {
	Name        string   `json:"name"`
	Difficulty  string   `json:"difficulty"`
	Tags        []string `json:"tags"`
	TextPreview string   `json:"text_preview"`
}

// Verification lets a reviewer check the generated set against its input.
type Verification struct {
	GeneratedCategories     []string         `json:"generated_categories"`
	SampleQuestionsAnalyzed []SampleQuestion `json:"sample_questions_analyzed"`
	Note                    string           `json:"note"`
}

type JSONWriter interface {
	WriteJSON(path string, v any) error
}

// Generate asks a model to propose a category set from a random sample of
// the corpus. There is no retry: any failure is returned.
func Generate(ctx context.Context, c llm.Completer, questions []domain.QuestionRecord, opts Options, logger *zap.Logger) (Result, error) {
	if len(questions) == 0 {
		return Result{}, fmt.Errorf("no questions to sample")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	sample := corpus.Sample(questions, opts.SampleSize, rng)
	logger.Info("generating categories",
		zap.String("model", opts.Model),
		zap.Int("sample", len(sample)),
		zap.Int("corpus", len(questions)))

	resp, err := c.Complete(ctx, llm.Request{
		Model: opts.Model,
		User:  BuildPrompt(sample, opts.PreviewCount, opts.PreviewChars),
	})
	if err != nil {
		return Result{Sample: sample}, fmt.Errorf("generating categories: %w", err)
	}
	categories, err := llm.ParseLabels(resp.Text)
	if err != nil {
		return Result{Sample: sample, Usage: resp.Usage}, fmt.Errorf("generating categories: %w", err)
	}
	sort.Strings(categories)

	logger.Info("categories generated",
		zap.Int("count", len(categories)),
		zap.Int64("tokens_in", resp.Usage.InputTokens),
		zap.Int64("tokens_out", resp.Usage.OutputTokens))
	return Result{Categories: categories, Sample: sample, Usage: resp.Usage}, nil
}

// BuildPrompt renders the instruction followed by a preview of the first
// previewCount sampled questions.
func BuildPrompt(sample []domain.QuestionRecord, previewCount, previewChars int) string {
	var sb strings.Builder
	sb.WriteString("Sample of questions to analyze:\n\n")
	shown := sample
	if previewCount >= 0 && len(shown) > previewCount {
		shown = shown[:previewCount]
	}
	for i, q := range shown {
		fmt.Fprintf(&sb, "%d. %s [%s] - Tags: %s\n", i+1, q.Name, q.Difficulty, strings.Join(q.Tags, ", "))
		fmt.Fprintf(&sb, "   Text: %s...\n\n", corpus.Truncate(q.QuestionText, previewChars))
	}
	if rest := len(sample) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "\n... and %d more questions with similar variety.\n", rest)
	}
	return generationPrompt + "\n\n" + sb.String() + "\n\nGenerate comprehensive category set:"
}

func NewVerification(res Result) Verification {
	v := Verification{
		GeneratedCategories:     res.Categories,
		SampleQuestionsAnalyzed: make([]SampleQuestion, 0, len(res.Sample)),
		Note:                    verificationNote,
	}
	if v.GeneratedCategories == nil {
		v.GeneratedCategories = []string{}
	}
	for _, q := range res.Sample {
		tags := q.Tags
		if tags == nil {
			tags = []string{}
		}
		v.SampleQuestionsAnalyzed = append(v.SampleQuestionsAnalyzed, SampleQuestion{
			Name:        q.Name,
			Difficulty:  q.Difficulty,
			Tags:        tags,
			TextPreview: corpus.Truncate(q.QuestionText, verificationPreviewChars),
		})
	}
	return v
}

// WriteOutputs stores the sorted category list and the verification file.
func WriteOutputs(w JSONWriter, categoriesPath, verificationPath string, res Result) error {
	categories := res.Categories
	if categories == nil {
		categories = []string{}
	}
	if err := w.WriteJSON(categoriesPath, categories); err != nil {
		return err
	}
	return w.WriteJSON(verificationPath, NewVerification(res))
}
