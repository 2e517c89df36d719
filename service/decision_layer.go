package service

import (
	"context"

	"github.com/rs/zerolog"

	"procure-agent/model"
)

// Decision is everything the orchestrator derives from the user text before
// retrieval and prompt assembly.
type Decision struct {
	Classification Classification
	Steps          []model.ReasoningStep
	Query          string
	Reasoning      string
}

// Intent returns the classified result.
func (d Decision) Intent() model.IntentResult {
	return d.Classification.Result
}

// DecisionLayer chains classification, reasoning and query composition.
type DecisionLayer struct {
	classifier *IntentClassifier
	composer   *QueryComposer
	logger     zerolog.Logger
}

// 创建决策层
func NewDecisionLayer(classifier *IntentClassifier, logger zerolog.Logger) *DecisionLayer {
	return &DecisionLayer{
		classifier: classifier,
		composer:   NewQueryComposer(Templates, NewReasoningStepBuilder()),
		logger:     logger,
	}
}

// Decide 核心决策方法
func (d *DecisionLayer) Decide(ctx context.Context, req ClassifyRequest) Decision {
	cls := d.classifier.Classify(ctx, req)
	intent := cls.Result

	comp := d.composer.Compose(req.Text, intent)
	query := d.composer.Enhance(comp.Query, intent)

	d.logger.Info().
		Str("core", string(intent.CoreIntent)).
		Str("path", string(cls.Path)).
		Bool("adjusted", cls.Adjusted).
		Str("risk", string(intent.RiskLevel)).
		Msg("[DecisionLayer] 意图决策完成")

	return Decision{
		Classification: cls,
		Steps:          comp.Steps,
		Query:          query,
		Reasoning:      comp.Reasoning,
	}
}
