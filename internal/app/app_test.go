package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"categorizer/internal/checkpoint"
	"categorizer/internal/config"
	"categorizer/internal/integrations/llm"
	"categorizer/internal/storage/sqlite"
)

type replyByName struct {
	replies map[string]string
	calls   int
}

func (r *replyByName) Provider() string { return "stub" }

func (r *replyByName) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	r.calls++
	for name, reply := range r.replies {
		if strings.Contains(req.User, "Question Name: "+name+"\n") {
			return llm.Response{Text: reply}, nil
		}
	}
	return llm.Response{Text: "[]"}, nil
}

const corpusJSON = `[
  {"name": "Fair Coin", "tags": ["Probability"], "difficulty": "Easy", "questionText": "Flip a fair coin 10 times.", "url": "https://example.com/1"},
  {"name": "Gaussian Tail", "tags": [], "difficulty": "Hard", "questionText": "Let X ~ N(0,1)."},
  {"name": "Mystery", "tags": [], "difficulty": "Medium", "questionText": "A riddle."}
]`

func setupEnv(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	questions := filepath.Join(dir, "questions.json")
	require.NoError(t, os.WriteFile(questions, []byte(corpusJSON), 0o644))

	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LLM_RATE_LIMIT_DELAY_MS", "0")
	t.Setenv("CHECKPOINT_INTERVAL", "2")
	t.Setenv("QUESTIONS_PATH", questions)
	t.Setenv("VOCABULARY_OUTPUT_PATH", filepath.Join(dir, "fixed_categories.json"))
	t.Setenv("CHECKPOINT_PATH", filepath.Join(dir, "progress.json"))
	t.Setenv("FINAL_OUTPUT_PATH", filepath.Join(dir, "final.json"))
	t.Setenv("GENERATED_CATEGORIES_PATH", filepath.Join(dir, "generated.json"))
	t.Setenv("GENERATION_VERIFICATION_PATH", filepath.Join(dir, "verification.json"))
	t.Setenv("DB_PATH", filepath.Join(dir, "history.db"))
	t.Setenv("REPORT_OUTPUT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("SLACK_BOT_TOKEN", "")
	return dir
}

func newTestApp(c llm.Completer) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	a := New(&out)
	a.logger = zap.NewNop()
	a.now = func() time.Time { return time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC) }
	a.newCompleter = func(ctx context.Context, cfg config.Config) (llm.Completer, error) { return c, nil }
	return a, &out
}

func execute(t *testing.T, a *App, args ...string) error {
	t.Helper()
	root := a.RootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.out)
	return root.ExecuteContext(context.Background())
}

func TestCategorizeCommand(t *testing.T) {
	dir := setupEnv(t)
	stub := &replyByName{replies: map[string]string{
		"Fair Coin":     `["Coins", "Binomial Random Variables"]`,
		"Gaussian Tail": "```json\n[\"Continuous Random Variables\", \"Normal Random Variables\", \"Discrete Random Variables\"]\n```",
	}}
	a, out := newTestApp(stub)

	require.NoError(t, execute(t, a, "categorize"))

	final, err := checkpoint.LoadResults(filepath.Join(dir, "final.json"))
	require.NoError(t, err)
	require.Len(t, final, 3)
	require.Equal(t, []string{"Coins", "Binomial Random Variables"}, final[0].AssignedLabels)
	require.Equal(t, []string{"Normal Random Variables"}, final[1].AssignedLabels)
	require.Equal(t, []string{}, final[2].AssignedLabels)

	raw, err := os.ReadFile(filepath.Join(dir, "final.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"url": "https://example.com/1"`)

	progress, err := checkpoint.LoadResults(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)
	require.Len(t, progress, 2)

	var vocab []string
	data, err := os.ReadFile(filepath.Join(dir, "fixed_categories.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &vocab))
	require.Len(t, vocab, 22)

	text := out.String()
	require.Contains(t, text, "Categorizing 3 questions with stub/gpt-4o-mini")
	require.Contains(t, text, "Progress: 2/3")
	require.Contains(t, text, "Progress saved (2 questions)")
	require.Contains(t, text, "Total questions: 3")
	require.Contains(t, text, "Questions with NO categories: 1 (33.3%)")

	reports, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "category_analysis_20260306.md", reports[0].Name())

	store, err := sqlite.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "completed", runs[0].Status)
	require.Equal(t, 3, runs[0].Processed)
}

func TestCategorizeResume(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("DB_PATH", "off")

	first, _ := newTestApp(&replyByName{replies: map[string]string{"Fair Coin": `["Coins"]`, "Gaussian Tail": `["Calculus"]`}})
	require.NoError(t, execute(t, first, "categorize", "--limit", "2"))

	stub := &replyByName{replies: map[string]string{"Mystery": `["Game Theory"]`}}
	second, _ := newTestApp(stub)
	require.NoError(t, execute(t, second, "categorize", "--resume"))
	require.Equal(t, 1, stub.calls, "only the question after the checkpoint is classified")

	final, err := checkpoint.LoadResults(filepath.Join(dir, "final.json"))
	require.NoError(t, err)
	require.Len(t, final, 3)
	require.Equal(t, []string{"Coins"}, final[0].AssignedLabels)
	require.Equal(t, []string{"Game Theory"}, final[2].AssignedLabels)
}

func TestCategorizeMissingCorpusFails(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("QUESTIONS_PATH", filepath.Join(dir, "nope.json"))
	stub := &replyByName{}
	a, _ := newTestApp(stub)

	err := execute(t, a, "categorize")
	require.Error(t, err)
	require.Zero(t, stub.calls)
}

func TestStatsCommand(t *testing.T) {
	setupEnv(t)
	a, _ := newTestApp(&replyByName{replies: map[string]string{"Fair Coin": `["Coins", "Dice"]`}})
	require.NoError(t, execute(t, a, "categorize"))

	b, out := newTestApp(&replyByName{})
	require.NoError(t, execute(t, b, "stats"))
	require.Contains(t, out.String(), "Max categories on one question: 2")
	require.Contains(t, out.String(), "✓ Dice")

	c, out := newTestApp(&replyByName{})
	require.NoError(t, execute(t, c, "stats", "--history"))
	require.Contains(t, out.String(), "Coins")
	require.Contains(t, out.String(), "completed")
}

func TestVocabularyCommand(t *testing.T) {
	dir := setupEnv(t)
	vocabFile := filepath.Join(dir, "vocab.yaml")
	require.NoError(t, os.WriteFile(vocabFile, []byte("labels:\n  - Dice\n  - Coins\n"), 0o644))
	t.Setenv("VOCABULARY_PATH", vocabFile)

	a, out := newTestApp(&replyByName{})
	require.NoError(t, execute(t, a, "vocabulary"))
	require.Contains(t, out.String(), "Saved 2 categories")

	var vocab []string
	data, err := os.ReadFile(filepath.Join(dir, "fixed_categories.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &vocab))
	require.Equal(t, []string{"Dice", "Coins"}, vocab)
}

func TestGenerateCommand(t *testing.T) {
	dir := setupEnv(t)
	a, out := newTestApp(llmReply(`["Dice", "Coins"]`))
	require.NoError(t, execute(t, a, "generate", "--seed", "7"))
	require.Contains(t, out.String(), "Generated 2 categories from 3 sampled questions")

	var cats []string
	data, err := os.ReadFile(filepath.Join(dir, "generated.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cats))
	require.Equal(t, []string{"Coins", "Dice"}, cats)
	_, err = os.Stat(filepath.Join(dir, "verification.json"))
	require.NoError(t, err)
}

func TestScheduleRequiresCronExpression(t *testing.T) {
	setupEnv(t)
	t.Setenv("CATEGORIZE_SCHEDULE", "")
	a, _ := newTestApp(&replyByName{})
	err := execute(t, a, "schedule")
	require.Error(t, err)
	require.Contains(t, err.Error(), "schedule is not set")
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	setupEnv(t)
	t.Setenv("LLM_PROVIDER", "cohere")
	stub := &replyByName{}
	a, _ := newTestApp(stub)
	require.Error(t, execute(t, a, "categorize"))
	require.Zero(t, stub.calls)
}

type llmReply string

func (r llmReply) Provider() string { return "stub" }

func (r llmReply) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: string(r)}, nil
}

func TestStatsHistoryQueries(t *testing.T) {
	dir := setupEnv(t)
	a, _ := newTestApp(&replyByName{replies: map[string]string{
		"Fair Coin":     `["Coins", "Dice"]`,
		"Gaussian Tail": `["Continuous Random Variables", "Normal Random Variables"]`,
		"Mystery":       "I cannot categorize this.",
	}})
	require.NoError(t, execute(t, a, "categorize"))

	store, err := sqlite.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	runID := runs[0].ID

	stats := func(args ...string) string {
		t.Helper()
		app, out := newTestApp(&replyByName{})
		require.NoError(t, execute(t, app, append([]string{"stats", "--history"}, args...)...))
		return out.String()
	}

	out := stats("--run", runID)
	require.Contains(t, out, "Run "+runID)
	require.Contains(t, out, "Status:   completed")
	require.Contains(t, out, "Model:    stub/gpt-4o-mini")
	require.Contains(t, out, "Progress: 3/3 processed, 1 failures")
	require.Contains(t, out, "Coins")

	out = stats("--failed")
	require.Contains(t, out, "Recorded classifications (1)")
	require.Contains(t, out, "Mystery: failed after 3 attempts")
	require.NotContains(t, out, "Fair Coin:")

	out = stats("--question", "Gaussian Tail")
	require.Contains(t, out, "Gaussian Tail: [Normal Random Variables] (model said [Continuous Random Variables, Normal Random Variables])")

	out = stats("--since", "2026-03-06")
	require.Contains(t, out, "Coins")
	out = stats("--since", "2026-03-07")
	require.Contains(t, out, "No classifications recorded.")
	out = stats("--since", "2026-03-06T13:00:00+01:00")
	require.Contains(t, out, "Dice")

	missing, _ := newTestApp(&replyByName{})
	err = execute(t, missing, "stats", "--history", "--run", "no-such-run")
	require.ErrorContains(t, err, "run no-such-run not found")

	bad, _ := newTestApp(&replyByName{})
	require.ErrorContains(t, execute(t, bad, "stats", "--history", "--since", "last week"), "invalid --since")
}
