package domain

import "time"

type OutcomeKind int

const (
	// OutcomeLabeled means the classifier returned a parseable label list,
	// possibly empty.
	OutcomeLabeled OutcomeKind = iota
	// OutcomeExhausted means every attempt failed. Labels is empty.
	OutcomeExhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLabeled:
		return "labeled"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ClassifyOutcome is the tagged result of classifying one question.
type ClassifyOutcome struct {
	Kind   OutcomeKind
	Labels []string
	// RawLabels is the parsed model reply before vocabulary validation.
	RawLabels []string
	Attempts  int
	Err       error
	Usage     LLMUsage
}

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

type ClassificationRecord struct {
	ID           int64
	RunID        string
	Position     int
	QuestionName string
	Labels       []string
	RawLabels    []string
	Attempts     int
	Error        string
	LLMProvider  string
	LLMModel     string
	ClassifiedAt time.Time
}

type RunRecord struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	LLMProvider  string
	LLMModel     string
	Total        int
	Processed    int
	Failures     int
	InputTokens  int64
	OutputTokens int64
	Status       string
}

// ItemFailure records a question whose classification was exhausted.
type ItemFailure struct {
	Position     int
	QuestionName string
	Attempts     int
	Err          error
}

type LabelCount struct {
	Label string
	Count int
}

// RunStatistics summarizes a result set.
type RunStatistics struct {
	Total             int
	Unlabeled         int
	UnlabeledFraction float64
	MeanLabels        float64
	MaxLabels         int
	// LabelCounts follows vocabulary order; labels outside the vocabulary
	// follow in lexical order.
	LabelCounts []LabelCount
}

func (s RunStatistics) Labeled() int {
	return s.Total - s.Unlabeled
}

func (s RunStatistics) Count(label string) int {
	for _, lc := range s.LabelCounts {
		if lc.Label == label {
			return lc.Count
		}
	}
	return 0
}
