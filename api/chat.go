package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"procure-agent/dao"
	"procure-agent/model"
	"procure-agent/service"
)

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, dao.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, dao.ErrInvalidParam), errors.Is(err, service.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func ChatHandler(chatSvc *service.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ChatRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}

		resp, err := chatSvc.HandleChat(c.Request.Context(), c.Param("conversation_id"), req)
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func HistoryHandler(chatSvc *service.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.Query("user_id"))
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		msgs, err := chatSvc.History(c.Request.Context(), c.Param("conversation_id"), userID)
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		if msgs == nil {
			msgs = []model.Message{}
		}

		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

// IntentRecognitionHandler exposes the decision pipeline without calling
// the answer model.
func IntentRecognitionHandler(decisions *service.DecisionLayer, settings settingsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.IntentRecognitionRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}

		d := decisions.Decide(c.Request.Context(), service.ClassifyRequest{
			Text:        req.Message,
			Attachments: req.Attachments,
			RiskMode:    settings.Snapshot().RiskMode,
		})

		c.JSON(http.StatusOK, model.IntentRecognitionResponse{
			Intent:    d.Intent(),
			Path:      string(d.Classification.Path),
			Steps:     d.Steps,
			Query:     d.Query,
			Reasoning: d.Reasoning,
		})
	}
}
