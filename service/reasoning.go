package service

import (
	"fmt"
	"strings"

	"procure-agent/model"
)

const defaultStrategy = "通用咨询方案（general consultation approach）：梳理问题背景，给出流程性指引与注意事项"

// strategyRules are matched against the core intent identifier in order.
var strategyRules = []struct {
	keyword  string
	strategy string
}{
	{"Risk", "风险优先方案：先识别违规线索与证据要求，再给出防控与处置建议"},
	{"Emergency", "应急处置方案：先止损与保全证据，再明确上报路径和时限"},
	{"Law", "法规解读方案：定位适用条款，逐条解释并结合案例说明适用边界"},
	{"Bid", "招投标文件方案：按文件结构逐项生成或评审，确保要件齐全、评分可追溯"},
	{"Compare", "量化对比方案：建立评价维度与权重，逐项打分后给出选型结论"},
	{"Cost", "成本测算方案：拆分成本构成，列明计算口径与假设条件"},
	{"Supplier", "资格审查方案：对照资格条件清单逐项核验，标注缺失材料"},
	{"Template", "模板生成方案：按标准章节输出模板，并标注需填写的字段"},
	{"Verify", "数据核验方案：交叉比对数据来源，指出不一致项及可信度"},
	{"Trace", "流程追溯方案：按时间线还原各环节，标明责任主体与留痕材料"},
}

const executionPlan = "按照上述方案组织回答：先给出结论，再分点展开依据与操作步骤，最后提示合规注意事项。"

// ReasoningStepBuilder produces the three-step reasoning chain for a request.
type ReasoningStepBuilder struct{}

func NewReasoningStepBuilder() *ReasoningStepBuilder {
	return &ReasoningStepBuilder{}
}

// Build always returns exactly three steps numbered 1, 2, 3.
func (b *ReasoningStepBuilder) Build(text string, intent model.IntentResult) []model.ReasoningStep {
	auxLabels := make([]string, 0, len(intent.AuxIntents))
	for _, a := range intent.AuxIntents {
		auxLabels = append(auxLabels, a.Label())
	}
	auxDesc := "无"
	if len(auxLabels) > 0 {
		auxDesc = strings.Join(auxLabels, "、")
	}

	return []model.ReasoningStep{
		{
			StepNumber:  1,
			StepName:    "问题界定",
			Description: "识别用户问题的核心意图与辅助意图",
			Reasoning: fmt.Sprintf("用户问题「%s」的核心意图为%s（%s），辅助意图：%s，风险等级：%s",
				summarize(text, 60), intent.CoreIntent.Label(), intent.CoreIntent, auxDesc, intent.RiskLevel),
			Conclusion: "明确问题类型为" + intent.CoreIntent.Label(),
		},
		{
			StepNumber:  2,
			StepName:    "方案设计",
			Description: "根据核心意图选择解决策略",
			Reasoning:   fmt.Sprintf("依据核心意图%s匹配处理策略", intent.CoreIntent),
			Conclusion:  strategyFor(intent.CoreIntent),
		},
		{
			StepNumber:  3,
			StepName:    "执行计划",
			Description: "确定回答的组织方式",
			Reasoning:   executionPlan,
		},
	}
}

func strategyFor(core model.CoreIntent) string {
	name := string(core)
	for _, r := range strategyRules {
		if strings.Contains(name, r.keyword) {
			return r.strategy
		}
	}
	return defaultStrategy
}

var stepTransitions = []string{"首先", "接着", "然后"}

// Explain renders the steps as prose. The output is embedded in the final
// prompt, so ordering and transition words are stable.
func (b *ReasoningStepBuilder) Explain(steps []model.ReasoningStep) string {
	var sb strings.Builder
	for i, s := range steps {
		transition := stepTransitions[len(stepTransitions)-1]
		if i < len(stepTransitions) {
			transition = stepTransitions[i]
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s，%s（第%d步）：%s", transition, s.StepName, s.StepNumber, s.Reasoning)
		if s.Conclusion != "" {
			fmt.Fprintf(&sb, "。结论：%s", s.Conclusion)
		}
		sb.WriteString("。")
	}
	return sb.String()
}

func summarize(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
