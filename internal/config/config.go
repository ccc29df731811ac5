package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Gamma    GammaConfig    `mapstructure:"gamma"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Judge    JudgeConfig    `mapstructure:"judge"`
	Decider  DeciderConfig  `mapstructure:"decider"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	NewsFeed NewsFeedConfig `mapstructure:"news_feed"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type CronConfig struct {
	Cleanup string `mapstructure:"cleanup"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	JudgeModel     string        `mapstructure:"judge_model"`
	DecisionModel  string        `mapstructure:"decision_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type GammaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VenueConfig struct {
	Mode    string        `mapstructure:"mode"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MatcherConfig struct {
	TopK          int           `mapstructure:"top_k"`
	MinScore      float64       `mapstructure:"min_score"`
	VectorWeight  float64       `mapstructure:"vector_weight"`
	LexicalWeight float64       `mapstructure:"lexical_weight"`
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
}

// RetryConfig is the shared bounded-retry shape applied at every
// external-call boundary (oracles and venue).
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type JudgeConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type DeciderConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type ExecutorConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	SpikeThresholdPct float64       `mapstructure:"spike_threshold_pct"`
	EvalDeadline      time.Duration `mapstructure:"eval_deadline"`
}

type NewsFeedConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Feeds           []FeedSource  `mapstructure:"feeds"`
	MaxItemsPerFeed int           `mapstructure:"max_items_per_feed"`
	Retention       time.Duration `mapstructure:"retention"`
}

type FeedSource struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("openai.judge_model", "gpt-4o-mini")
	v.SetDefault("openai.decision_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.timeout", "20s")
	v.SetDefault("gamma.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("gamma.timeout", "15s")
	v.SetDefault("venue.mode", "paper")
	v.SetDefault("venue.base_url", "")
	v.SetDefault("venue.timeout", "15s")
	v.SetDefault("matcher.top_k", 5)
	v.SetDefault("matcher.min_score", 0.5)
	v.SetDefault("matcher.vector_weight", 0.7)
	v.SetDefault("matcher.lexical_weight", 0.3)
	// Default window: long enough to avoid re-judging the same pair on every
	// poll, short enough that a developing story can re-qualify the next day.
	v.SetDefault("matcher.dedup_window", "24h")
	v.SetDefault("judge.retry.max_attempts", 3)
	v.SetDefault("judge.retry.base_delay", "500ms")
	v.SetDefault("judge.retry.multiplier", 2.0)
	v.SetDefault("judge.retry.timeout", "20s")
	v.SetDefault("decider.retry.max_attempts", 3)
	v.SetDefault("decider.retry.base_delay", "500ms")
	v.SetDefault("decider.retry.multiplier", 2.0)
	v.SetDefault("decider.retry.timeout", "30s")
	v.SetDefault("executor.retry.max_attempts", 3)
	v.SetDefault("executor.retry.base_delay", "1s")
	v.SetDefault("executor.retry.multiplier", 2.0)
	v.SetDefault("executor.retry.timeout", "15s")
	v.SetDefault("monitor.interval", "1m")
	v.SetDefault("monitor.spike_threshold_pct", 0.15)
	v.SetDefault("monitor.eval_deadline", "48h")
	v.SetDefault("news_feed.poll_interval", "2m")
	v.SetDefault("news_feed.max_items_per_feed", 10)
	v.SetDefault("news_feed.retention", "72h")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("cron.cleanup", "0 0 * * * *")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
