package templates

import "fmt"

// ==================== 风险与应急类模板 ====================

// 风险预警
func RiskAlert(text string) string {
	return fmt.Sprintf(`以下内容可能涉及采购风险：
%s

请：
1. 识别可能存在的违法违规行为（如围标、串标、弄虚作假）
2. 说明相关法律责任与认定依据
3. 给出防范措施与处置建议`, text)
}

// 应急处理
func EmergencyHandle(text string) string {
	return fmt.Sprintf(`出现以下采购突发情况：
%s

请给出应急处理步骤：立即措施、需通知的相关方、证据保全要求以及后续补救流程。`, text)
}

// 成本测算
func CostCalculate(text string) string {
	return fmt.Sprintf(`请对以下事项进行成本测算：
%s

请列出成本构成、计算公式与假设条件，并给出测算结果区间。`, text)
}
