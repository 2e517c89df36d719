package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"procure-agent/config"
)

type settingsSource interface {
	Snapshot() config.RuntimeSettings
}

// settingsView is the camelCase shape the front end reads and writes.
type settingsView struct {
	ModelProvider      string `json:"modelProvider"`
	SystemPrompt       string `json:"systemPrompt"`
	UseWebSearch       bool   `json:"useWebSearch"`
	UseIntentDetection bool   `json:"useIntentDetection"`
	UseRetrieval       bool   `json:"useRetrieval"`
	RiskMode           string `json:"riskMode"`
}

func toView(s config.RuntimeSettings) settingsView {
	return settingsView{
		ModelProvider:      s.ModelProvider,
		SystemPrompt:       s.SystemPrompt,
		UseWebSearch:       s.UseWebSearch,
		UseIntentDetection: s.UseIntentDetection,
		UseRetrieval:       s.UseRetrieval,
		RiskMode:           string(s.RiskMode),
	}
}

func GetSettingsHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, toView(settings.Snapshot()))
	}
}

func UpdateSettingsHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch config.SettingsPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}

		updated, err := settings.Update(patch)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, config.ErrInvalidSetting) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, toView(updated))
	}
}
