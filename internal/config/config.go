package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// HistoryDisabled turns off the sqlite run history when used as db_path.
const HistoryDisabled = "off"

type Config struct {
	EnvFile string `yaml:"env_file"`

	LLMProvider          string  `yaml:"llm_provider"`
	LLMModel             string  `yaml:"llm_model"`
	LLMGenerationModel   string  `yaml:"llm_generation_model"`
	LLMTemperature       float64 `yaml:"llm_temperature"`
	LLMMaxTokens         int     `yaml:"llm_max_tokens"`
	LLMMaxRetries        int     `yaml:"llm_max_retries"`
	LLMRateLimitDelayMS  int     `yaml:"llm_rate_limit_delay_ms"`
	LLMQuestionMaxChars  int     `yaml:"llm_question_max_chars"`
	AnthropicAPIKey      string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey         string  `yaml:"openai_api_key"`
	OpenAIBaseURL        string  `yaml:"openai_base_url"`
	GeminiAPIKey         string  `yaml:"gemini_api_key"`
	temperatureExplicit  bool
	rateDelayExplicit    bool

	QuestionsPath        string `yaml:"questions_path"`
	VocabularyPath       string `yaml:"vocabulary_path"`
	VocabularyOutputPath string `yaml:"vocabulary_output_path"`
	CheckpointPath       string `yaml:"checkpoint_path"`
	FinalOutputPath      string `yaml:"final_output_path"`
	CheckpointInterval   int    `yaml:"checkpoint_interval"`

	GenerateSampleSize         int    `yaml:"generate_sample_size"`
	GeneratePreviewCount       int    `yaml:"generate_preview_count"`
	GeneratePreviewChars       int    `yaml:"generate_preview_chars"`
	GeneratedCategoriesPath    string `yaml:"generated_categories_path"`
	GenerationVerificationPath string `yaml:"generation_verification_path"`

	DBPath                     string `yaml:"db_path"`
	ReportOutputDir            string `yaml:"report_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads path (or CONFIG_PATH, or ./config.yaml when both are
// empty), applies environment overrides and defaults, and validates.
// A missing config file is not an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if path != "" {
		configPath = path
	}
	if data, err := os.ReadFile(configPath); err == nil {
		var raw map[string]any
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		_ = yaml.Unmarshal(data, &raw)
		_, cfg.temperatureExplicit = raw["llm_temperature"]
		_, cfg.rateDelayExplicit = raw["llm_rate_limit_delay_ms"]
	} else if path != "" {
		return Config{}, fmt.Errorf("reading %s: %w", configPath, err)
	}

	envOverride(&cfg.EnvFile, "ENV_FILE")
	if cfg.EnvFile == "" {
		cfg.EnvFile = ".env.local"
	}
	if err := loadDotEnv(cfg.EnvFile); err != nil {
		return Config{}, fmt.Errorf("reading env file %s: %w", cfg.EnvFile, err)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMGenerationModel, "LLM_GENERATION_MODEL")
	if set, err := envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE"); err != nil {
		return Config{}, err
	} else if set {
		cfg.temperatureExplicit = true
	}
	if _, err := envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"); err != nil {
		return Config{}, err
	}
	if _, err := envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES"); err != nil {
		return Config{}, err
	}
	if set, err := envOverrideInt(&cfg.LLMRateLimitDelayMS, "LLM_RATE_LIMIT_DELAY_MS"); err != nil {
		return Config{}, err
	} else if set {
		cfg.rateDelayExplicit = true
	}
	if _, err := envOverrideInt(&cfg.LLMQuestionMaxChars, "LLM_QUESTION_MAX_CHARS"); err != nil {
		return Config{}, err
	}
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.QuestionsPath, "QUESTIONS_PATH")
	envOverride(&cfg.VocabularyPath, "VOCABULARY_PATH")
	envOverride(&cfg.VocabularyOutputPath, "VOCABULARY_OUTPUT_PATH")
	envOverride(&cfg.CheckpointPath, "CHECKPOINT_PATH")
	envOverride(&cfg.FinalOutputPath, "FINAL_OUTPUT_PATH")
	if _, err := envOverrideInt(&cfg.CheckpointInterval, "CHECKPOINT_INTERVAL"); err != nil {
		return Config{}, err
	}
	if _, err := envOverrideInt(&cfg.GenerateSampleSize, "GENERATE_SAMPLE_SIZE"); err != nil {
		return Config{}, err
	}
	if _, err := envOverrideInt(&cfg.GeneratePreviewCount, "GENERATE_PREVIEW_COUNT"); err != nil {
		return Config{}, err
	}
	if _, err := envOverrideInt(&cfg.GeneratePreviewChars, "GENERATE_PREVIEW_CHARS"); err != nil {
		return Config{}, err
	}
	envOverride(&cfg.GeneratedCategoriesPath, "GENERATED_CATEGORIES_PATH")
	envOverride(&cfg.GenerationVerificationPath, "GENERATION_VERIFICATION_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	if _, err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.Schedule, "CATEGORIZE_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderOpenAI
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = DefaultModel(cfg.LLMProvider)
	}
	if cfg.LLMGenerationModel == "" {
		if cfg.LLMProvider == ProviderOpenAI {
			cfg.LLMGenerationModel = "o1-mini"
		} else {
			cfg.LLMGenerationModel = cfg.LLMModel
		}
	}
	if cfg.LLMTemperature == 0 && !cfg.temperatureExplicit {
		cfg.LLMTemperature = 0.3
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 1000
	}
	if cfg.LLMMaxRetries == 0 {
		cfg.LLMMaxRetries = 3
	}
	if cfg.LLMRateLimitDelayMS == 0 && !cfg.rateDelayExplicit {
		cfg.LLMRateLimitDelayMS = 100
	}
	if cfg.LLMQuestionMaxChars == 0 {
		cfg.LLMQuestionMaxChars = 1000
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.QuestionsPath == "" {
		cfg.QuestionsPath = "../all-questions-content.json"
	}
	if cfg.VocabularyOutputPath == "" {
		cfg.VocabularyOutputPath = "fixed_categories.json"
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = "categorized_questions_progress.json"
	}
	if cfg.FinalOutputPath == "" {
		cfg.FinalOutputPath = "categorized_questions_final.json"
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 10
	}
	if cfg.GenerateSampleSize == 0 {
		cfg.GenerateSampleSize = 200
	}
	if cfg.GeneratePreviewCount == 0 {
		cfg.GeneratePreviewCount = 30
	}
	if cfg.GeneratePreviewChars == 0 {
		cfg.GeneratePreviewChars = 200
	}
	if cfg.GeneratedCategoriesPath == "" {
		cfg.GeneratedCategoriesPath = "generated_categories_v2.json"
	}
	if cfg.GenerationVerificationPath == "" {
		cfg.GenerationVerificationPath = "category_generation_verification_v2.json"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./categorizer.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks ranges and that the selected provider has a key.
func (cfg *Config) Validate() error {
	switch cfg.LLMProvider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	default:
		return fmt.Errorf("llm_provider must be 'openai', 'anthropic' or 'gemini', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return fmt.Errorf("invalid llm_temperature '%g': must be between 0 and 2", cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens < 1 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 1", cfg.LLMMaxTokens)
	}
	if cfg.LLMMaxRetries < 1 {
		return fmt.Errorf("invalid llm_max_retries '%d': must be >= 1", cfg.LLMMaxRetries)
	}
	if cfg.LLMRateLimitDelayMS < 0 {
		return fmt.Errorf("invalid llm_rate_limit_delay_ms '%d': must be >= 0", cfg.LLMRateLimitDelayMS)
	}
	if cfg.LLMQuestionMaxChars < 1 {
		return fmt.Errorf("invalid llm_question_max_chars '%d': must be >= 1", cfg.LLMQuestionMaxChars)
	}
	if cfg.CheckpointInterval < 1 {
		return fmt.Errorf("invalid checkpoint_interval '%d': must be >= 1", cfg.CheckpointInterval)
	}
	if cfg.CheckpointPath == cfg.FinalOutputPath {
		return fmt.Errorf("checkpoint_path and final_output_path must differ, both are '%s'", cfg.CheckpointPath)
	}
	if cfg.GenerateSampleSize < 1 {
		return fmt.Errorf("invalid generate_sample_size '%d': must be >= 1", cfg.GenerateSampleSize)
	}
	if cfg.GeneratePreviewCount < 1 {
		return fmt.Errorf("invalid generate_preview_count '%d': must be >= 1", cfg.GeneratePreviewCount)
	}
	if cfg.GeneratePreviewChars < 1 {
		return fmt.Errorf("invalid generate_preview_chars '%d': must be >= 1", cfg.GeneratePreviewChars)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	return nil
}

func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-5-20250929"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return "gpt-4o-mini"
	}
}

func (c Config) HistoryEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.DBPath), HistoryDisabled)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func (c Config) RateLimitDelay() time.Duration {
	return time.Duration(c.LLMRateLimitDelayMS) * time.Millisecond
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) (bool, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return false, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
	}
	*field = parsed
	return true, nil
}

func envOverrideFloat(field *float64, envKey string) (bool, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return false, nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return false, fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
	}
	*field = parsed
	return true, nil
}

// loadDotEnv sets KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is ignored.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				val = val[1 : len(val)-1]
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
	}
	return s.Err()
}
