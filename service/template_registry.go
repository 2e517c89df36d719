package service

import (
	"procure-agent/model"
	"procure-agent/service/templates"
)

// TemplateFunc wraps the raw user text with intent-specific instructions.
type TemplateFunc func(text string) string

// TemplateRegistry maps every core intent to its query template.
type TemplateRegistry map[model.CoreIntent]TemplateFunc

var Templates = TemplateRegistry{
	model.IntentGenerateBid:        templates.GenerateBid,
	model.IntentEvaluateBid:        templates.EvaluateBid,
	model.IntentProcurementConsult: templates.ProcurementConsult,
	model.IntentSupplierReview:     templates.SupplierReview,
	model.IntentProductCompare:     templates.ProductCompare,
	model.IntentLawInterpret:       templates.LawInterpret,
	model.IntentRiskAlert:          templates.RiskAlert,
	model.IntentCostCalculate:      templates.CostCalculate,
	model.IntentTemplateGenerate:   templates.TemplateGenerate,
	model.IntentDataVerify:         templates.DataVerify,
	model.IntentProcessTrace:       templates.ProcessTrace,
	model.IntentEmergencyHandle:    templates.EmergencyHandle,
}

func identity(text string) string {
	return text
}

// Lookup returns the template for intent, or the identity function when
// the intent has no entry.
func (r TemplateRegistry) Lookup(intent model.CoreIntent) TemplateFunc {
	if fn, ok := r[intent]; ok && fn != nil {
		return fn
	}
	return identity
}
