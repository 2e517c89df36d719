package service

import (
	"strings"

	"procure-agent/model"
)

// guidanceBlock is appended by Enhance when its condition holds.
type guidanceBlock struct {
	applies    func(model.IntentResult) bool
	transition string
	bullets    []string
}

// guidanceBlocks are evaluated in this fixed order.
var guidanceBlocks = []guidanceBlock{
	{
		applies:    func(r model.IntentResult) bool { return r.HasAux(model.AuxEnhancedSearch) },
		transition: "此外，该问题需要检索增强：",
		bullets: []string{
			"优先引用最新的政策文件与市场数据，并注明来源",
			"对比时列出关键差异项，避免笼统结论",
		},
	},
	{
		applies:    func(r model.IntentResult) bool { return r.HasAux(model.AuxUncertaintyDeclare) },
		transition: "同时，问题中存在相互矛盾的信息：",
		bullets: []string{
			"明确指出信息冲突之处",
			"对无法确定的结论给出不确定性声明",
			"说明需要用户补充确认的信息",
		},
	},
	{
		applies:    func(r model.IntentResult) bool { return r.HasAux(model.AuxDeepReasoning) },
		transition: "另外，用户要求深入说明：",
		bullets: []string{
			"给出完整的推导过程，每一步注明依据",
			"在结尾总结关键结论",
		},
	},
	{
		applies:    func(r model.IntentResult) bool { return r.RiskLevel == model.RiskHigh },
		transition: "特别提示，该问题风险等级较高：",
		bullets: []string{
			"严格依据法律法规作答，引用具体条款",
			"提示可能的法律责任与合规风险",
			"建议在必要时咨询监管部门或专业律师",
		},
	},
}

// QueryComposer turns the user text into an intent-specific task prompt.
type QueryComposer struct {
	templates TemplateRegistry
	reasoning *ReasoningStepBuilder
}

func NewQueryComposer(templates TemplateRegistry, reasoning *ReasoningStepBuilder) *QueryComposer {
	if templates == nil {
		templates = Templates
	}
	if reasoning == nil {
		reasoning = NewReasoningStepBuilder()
	}
	return &QueryComposer{templates: templates, reasoning: reasoning}
}

// Composition is the templated query plus the reasoning chain behind it.
type Composition struct {
	Query     string
	Steps     []model.ReasoningStep
	Reasoning string
}

// Compose applies the core-intent template and renders the reasoning chain.
func (q *QueryComposer) Compose(text string, intent model.IntentResult) Composition {
	steps := q.reasoning.Build(text, intent)
	return Composition{
		Query:     q.templates.Lookup(intent.CoreIntent)(text),
		Steps:     steps,
		Reasoning: q.reasoning.Explain(steps),
	}
}

// Enhance appends guidance for each active aux intent and for high risk.
// With no active condition the query is returned unchanged.
func (q *QueryComposer) Enhance(query string, intent model.IntentResult) string {
	var sb strings.Builder
	for _, b := range guidanceBlocks {
		if !b.applies(intent) {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(b.transition)
		for _, bullet := range b.bullets {
			sb.WriteString("\n- ")
			sb.WriteString(bullet)
		}
	}
	if sb.Len() == 0 {
		return query
	}
	return query + sb.String()
}
