package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procure-agent/model"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newTestSettings() *Settings {
	cfg := Default()
	cfg.LLM.Providers[ProviderOpenAI] = ProviderConfig{Endpoint: "https://api.openai.com/v1", APIKey: "sk"}
	return NewSettings(cfg)
}

func TestSettingsSnapshotFromConfig(t *testing.T) {
	s := newTestSettings()
	snap := s.Snapshot()
	assert.Equal(t, ProviderOpenAI, snap.ModelProvider)
	assert.Equal(t, DefaultSystemPrompt, snap.SystemPrompt)
	assert.True(t, snap.UseIntentDetection)
	assert.Equal(t, model.RiskModeLocal, snap.RiskMode)
}

func TestSettingsUpdate(t *testing.T) {
	s := newTestSettings()

	updated, err := s.Update(SettingsPatch{
		ModelProvider:      strPtr(ProviderSidecar),
		UseWebSearch:       boolPtr(true),
		UseIntentDetection: boolPtr(false),
		RiskMode:           strPtr("REMOTE"),
		SystemPrompt:       strPtr("自定义提示"),
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderSidecar, updated.ModelProvider)
	assert.True(t, updated.UseWebSearch)
	assert.False(t, updated.UseIntentDetection)
	assert.Equal(t, model.RiskModeRemote, updated.RiskMode)
	assert.Equal(t, updated, s.Snapshot())
}

func TestSettingsUpdateValidation(t *testing.T) {
	tests := []struct {
		name  string
		patch SettingsPatch
	}{
		{"unknown provider", SettingsPatch{ModelProvider: strPtr("claude")}},
		{"provider without credentials", SettingsPatch{ModelProvider: strPtr(ProviderDeepSeek)}},
		{"bad risk mode", SettingsPatch{RiskMode: strPtr("local")}},
		{"valid field with invalid one", SettingsPatch{UseWebSearch: boolPtr(true), RiskMode: strPtr("??")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSettings()
			before := s.Snapshot()
			_, err := s.Update(tt.patch)
			assert.ErrorIs(t, err, ErrInvalidSetting)
			assert.Equal(t, before, s.Snapshot(), "rejected patch must not be partially applied")
		})
	}
}

func TestSettingsConcurrentAccess(t *testing.T) {
	s := newTestSettings()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(SettingsPatch{UseRetrieval: boolPtr(i%2 == 0)})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
}

func TestSettingsFileEditKeepsRuntimeUpdates(t *testing.T) {
	s := newTestSettings()
	file := s.Snapshot()

	_, err := s.Update(SettingsPatch{
		ModelProvider: strPtr(ProviderSidecar),
		SystemPrompt:  strPtr("运行时提示"),
	})
	require.NoError(t, err)

	// unrelated edit: only the retrieval toggle changed in the file
	file.UseRetrieval = false
	updated, changed, err := s.applyFile(file)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, updated.UseRetrieval)
	assert.Equal(t, ProviderSidecar, updated.ModelProvider)
	assert.Equal(t, "运行时提示", updated.SystemPrompt)

	// saving the file again without changes touches nothing
	_, changed, err = s.applyFile(file)
	require.NoError(t, err)
	assert.False(t, changed)

	file.SystemPrompt = "文件提示"
	updated, _, err = s.applyFile(file)
	require.NoError(t, err)
	assert.Equal(t, "文件提示", updated.SystemPrompt)
	assert.Equal(t, ProviderSidecar, updated.ModelProvider)
}

func TestSettingsFileEditInvalid(t *testing.T) {
	s := newTestSettings()
	file := s.Snapshot()

	file.RiskMode = "SOMETIMES"
	_, changed, err := s.applyFile(file)
	assert.ErrorIs(t, err, ErrInvalidSetting)
	assert.False(t, changed)
	assert.Equal(t, model.RiskModeLocal, s.Snapshot().RiskMode)
}
