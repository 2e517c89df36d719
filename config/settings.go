package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"procure-agent/model"
)

var ErrInvalidSetting = errors.New("invalid setting")

// RuntimeSettings is a point-in-time copy of the toggles a request reads.
type RuntimeSettings struct {
	ModelProvider      string         `json:"model_provider"`
	SystemPrompt       string         `json:"system_prompt"`
	UseWebSearch       bool           `json:"use_web_search"`
	UseIntentDetection bool           `json:"use_intent_detection"`
	UseRetrieval       bool           `json:"use_retrieval"`
	RiskMode           model.RiskMode `json:"risk_mode"`
}

// SettingsPatch carries optional updates; nil fields are left untouched.
type SettingsPatch struct {
	ModelProvider      *string `json:"modelProvider,omitempty"`
	SystemPrompt       *string `json:"systemPrompt,omitempty"`
	UseWebSearch       *bool   `json:"useWebSearch,omitempty"`
	UseIntentDetection *bool   `json:"useIntentDetection,omitempty"`
	UseRetrieval       *bool   `json:"useRetrieval,omitempty"`
	RiskMode           *string `json:"riskMode,omitempty"`
}

// Settings holds the runtime-mutable chat settings. Every mutation goes
// through Update so the provider and risk mode are always valid.
type Settings struct {
	mu        sync.RWMutex
	cur       RuntimeSettings
	available map[string]bool

	// fileBase is the last set of values read from the config file.
	fileBase RuntimeSettings
}

func NewSettings(cfg *Config) *Settings {
	available := make(map[string]bool, len(Providers))
	for _, p := range Providers {
		available[p] = cfg.HasCredentials(p)
	}
	cur := runtimeFromConfig(cfg)
	return &Settings{
		cur:       cur,
		available: available,
		fileBase:  cur,
	}
}

func runtimeFromConfig(cfg *Config) RuntimeSettings {
	return RuntimeSettings{
		ModelProvider:      cfg.LLM.Provider,
		SystemPrompt:       cfg.Chat.SystemPrompt,
		UseWebSearch:       cfg.Chat.UseWebSearch,
		UseIntentDetection: cfg.Chat.UseIntentDetection,
		UseRetrieval:       cfg.Chat.UseRetrieval,
		RiskMode:           cfg.Intent.RiskMode,
	}
}

func (s *Settings) Snapshot() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update validates the whole patch first and applies it atomically.
func (s *Settings) Update(p SettingsPatch) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	if p.ModelProvider != nil {
		name := *p.ModelProvider
		if !IsKnownProvider(name) {
			return s.cur, fmt.Errorf("%w: 模型提供商必须是 %v 之一, got %q", ErrInvalidSetting, Providers, name)
		}
		if !s.available[name] {
			return s.cur, fmt.Errorf("%w: provider %q has no credentials configured", ErrInvalidSetting, name)
		}
		next.ModelProvider = name
	}
	if p.SystemPrompt != nil {
		next.SystemPrompt = *p.SystemPrompt
	}
	if p.UseWebSearch != nil {
		next.UseWebSearch = *p.UseWebSearch
	}
	if p.UseIntentDetection != nil {
		next.UseIntentDetection = *p.UseIntentDetection
	}
	if p.UseRetrieval != nil {
		next.UseRetrieval = *p.UseRetrieval
	}
	if p.RiskMode != nil {
		mode := model.RiskMode(*p.RiskMode)
		if mode != model.RiskModeLocal && mode != model.RiskModeRemote {
			return s.cur, fmt.Errorf("%w: risk mode must be LOCAL or REMOTE, got %q", ErrInvalidSetting, *p.RiskMode)
		}
		next.RiskMode = mode
	}

	s.cur = next
	return s.cur, nil
}

// applyFile patches only the fields whose file value differs from the
// previous file read, so runtime updates to other fields survive a file edit.
func (s *Settings) applyFile(file RuntimeSettings) (RuntimeSettings, bool, error) {
	s.mu.RLock()
	base := s.fileBase
	s.mu.RUnlock()

	var p SettingsPatch
	changed := false
	if file.ModelProvider != base.ModelProvider {
		p.ModelProvider, changed = &file.ModelProvider, true
	}
	if file.SystemPrompt != base.SystemPrompt {
		p.SystemPrompt, changed = &file.SystemPrompt, true
	}
	if file.UseWebSearch != base.UseWebSearch {
		p.UseWebSearch, changed = &file.UseWebSearch, true
	}
	if file.UseIntentDetection != base.UseIntentDetection {
		p.UseIntentDetection, changed = &file.UseIntentDetection, true
	}
	if file.UseRetrieval != base.UseRetrieval {
		p.UseRetrieval, changed = &file.UseRetrieval, true
	}
	if file.RiskMode != base.RiskMode {
		mode := string(file.RiskMode)
		p.RiskMode, changed = &mode, true
	}
	if !changed {
		return s.Snapshot(), false, nil
	}

	updated, err := s.Update(p)
	if err != nil {
		return updated, false, err
	}
	s.mu.Lock()
	s.fileBase = file
	s.mu.Unlock()
	return updated, true, nil
}

// Watch re-applies the runtime toggles that changed in the config file.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, s *Settings, logger zerolog.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Error().Err(err).Str("file", e.Name).Msg("[Settings] 配置文件重新解析失败")
			return
		}
		updated, changed, err := s.applyFile(runtimeFromConfig(&cfg))
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("[Settings] 配置变更未生效")
			return
		}
		if !changed {
			logger.Debug().Str("file", e.Name).Msg("[Settings] 运行时配置项未变化")
			return
		}
		logger.Info().
			Str("provider", updated.ModelProvider).
			Bool("intent", updated.UseIntentDetection).
			Bool("retrieval", updated.UseRetrieval).
			Msg("[Settings] 配置已热更新")
	})
	v.WatchConfig()
}
