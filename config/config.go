// Package config loads the service configuration with viper and holds the
// runtime-mutable chat settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"procure-agent/logging"
	"procure-agent/model"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderSidecar  = "sidecar"
)

// Providers is the fixed set of selectable model backends.
var Providers = []string{ProviderOpenAI, ProviderDeepSeek, ProviderSidecar}

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	LLM     LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Chat    ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Intent  IntentConfig   `mapstructure:"intent" yaml:"intent"`
	Store   StoreConfig    `mapstructure:"store" yaml:"store"`
	Sidecar SidecarConfig  `mapstructure:"sidecar" yaml:"sidecar"`
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// RateLimit is requests per second allowed for a single user, 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

type LLMConfig struct {
	Provider  string                    `mapstructure:"provider" yaml:"provider"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

type ProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model    string        `mapstructure:"model" yaml:"model,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type ChatConfig struct {
	SystemPrompt       string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	UseWebSearch       bool          `mapstructure:"use_web_search" yaml:"use_web_search"`
	UseIntentDetection bool          `mapstructure:"use_intent_detection" yaml:"use_intent_detection"`
	UseRetrieval       bool          `mapstructure:"use_retrieval" yaml:"use_retrieval"`
	MaxAttempts        int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RetrievalTopK      int           `mapstructure:"retrieval_top_k" yaml:"retrieval_top_k"`
	RetrievalThreshold float64       `mapstructure:"retrieval_threshold" yaml:"retrieval_threshold"`
	PersistTimeout     time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
}

type IntentConfig struct {
	DomainDictPath           string         `mapstructure:"domain_dict_path" yaml:"domain_dict_path"`
	RiskMode                 model.RiskMode `mapstructure:"risk_mode" yaml:"risk_mode"`
	RiskRulesPath            string         `mapstructure:"risk_rules_path" yaml:"risk_rules_path"`
	AuditSeasonMonths        []int          `mapstructure:"audit_season_months" yaml:"audit_season_months"`
	ConfusionThreshold       float64        `mapstructure:"confusion_threshold" yaml:"confusion_threshold"`
	AdjustOnPolicyUpdateOnly bool           `mapstructure:"adjust_on_policy_update_only" yaml:"adjust_on_policy_update_only"`
	ClassifierProvider       string         `mapstructure:"classifier_provider" yaml:"classifier_provider"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SQLitePath    string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type SidecarConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	OCREndpoint    string        `mapstructure:"ocr_endpoint" yaml:"ocr_endpoint"`
	OCRAPIKey      string        `mapstructure:"ocr_api_key" yaml:"ocr_api_key"`
	PolicyEndpoint string        `mapstructure:"policy_endpoint" yaml:"policy_endpoint"`
	PolicyAPIKey   string        `mapstructure:"policy_api_key" yaml:"policy_api_key"`
	PolicyCron     string        `mapstructure:"policy_cron" yaml:"policy_cron"`
	// AttachmentDir is the upload root; attachment paths are relative to it.
	AttachmentDir  string        `mapstructure:"attachment_dir" yaml:"attachment_dir"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.providers.openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.deepseek.endpoint", "https://api.deepseek.com/v1")
	v.SetDefault("llm.providers.deepseek.model", "deepseek-chat")
	v.SetDefault("llm.providers.sidecar.endpoint", "http://127.0.0.1:8000")

	v.SetDefault("chat.system_prompt", DefaultSystemPrompt)
	v.SetDefault("chat.use_web_search", false)
	v.SetDefault("chat.use_intent_detection", true)
	v.SetDefault("chat.use_retrieval", true)
	v.SetDefault("chat.max_attempts", 3)
	v.SetDefault("chat.retry_base_delay", time.Second)
	v.SetDefault("chat.request_timeout", 60*time.Second)
	v.SetDefault("chat.retrieval_top_k", 3)
	v.SetDefault("chat.retrieval_threshold", 0.5)
	v.SetDefault("chat.persist_timeout", 10*time.Second)

	v.SetDefault("intent.domain_dict_path", "config/domain_terms.yaml")
	v.SetDefault("intent.risk_mode", string(model.RiskModeLocal))
	v.SetDefault("intent.risk_rules_path", "config/risk_rules.yaml")
	v.SetDefault("intent.audit_season_months", []int{3, 6, 9, 12})
	v.SetDefault("intent.confusion_threshold", 0.15)

	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.ttl", 7*24*time.Hour)
	v.SetDefault("store.sqlite_path", "data/procure-agent.db")

	v.SetDefault("sidecar.base_url", "http://127.0.0.1:8000")
	v.SetDefault("sidecar.policy_cron", "@every 30m")
	v.SetDefault("sidecar.attachment_dir", "data/uploads")
	v.SetDefault("sidecar.timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
}

// DefaultSystemPrompt is used when no override is configured.
const DefaultSystemPrompt = "你是一个专业的采购招投标领域AI助手，请用简洁、专业的中文回答问题。" +
	"回答需符合《中华人民共和国政府采购法》《招标投标法》等法规要求，涉及具体数值时请直接引用。"

// Load reads the config file (optional) and environment overrides.
// An empty path searches ./config/app.yaml and ./app.yaml.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PROCURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.applyEnvCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

var apiKeyEnv = map[string]string{
	ProviderOpenAI:   "OPENAI_API_KEY",
	ProviderDeepSeek: "DEEPSEEK_API_KEY",
}

// applyEnvCredentials fills empty provider API keys from the conventional env vars.
func (c *Config) applyEnvCredentials() {
	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range apiKeyEnv {
		pc := c.LLM.Providers[name]
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(env)
		}
		c.LLM.Providers[name] = pc
	}
}

// HasCredentials reports whether the named provider can be constructed.
func (c *Config) HasCredentials(name string) bool {
	pc, ok := c.LLM.Providers[name]
	switch name {
	case ProviderOpenAI, ProviderDeepSeek:
		return ok && pc.APIKey != ""
	case ProviderSidecar:
		return (ok && pc.Endpoint != "") || c.Sidecar.BaseURL != ""
	default:
		return false
	}
}

func (c *Config) Validate() error {
	if !IsKnownProvider(c.LLM.Provider) {
		return fmt.Errorf("%w: unknown llm.provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.Intent.RiskMode != model.RiskModeLocal && c.Intent.RiskMode != model.RiskModeRemote {
		return fmt.Errorf("%w: intent.risk_mode must be LOCAL or REMOTE, got %q", ErrInvalidConfig, c.Intent.RiskMode)
	}
	if c.Chat.MaxAttempts <= 0 {
		return fmt.Errorf("%w: chat.max_attempts must be positive", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("%w: store.driver must be redis or sqlite, got %q", ErrInvalidConfig, c.Store.Driver)
	}
	return nil
}

func IsKnownProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Default returns the built-in defaults without reading any file or env var.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	return cfg
}
