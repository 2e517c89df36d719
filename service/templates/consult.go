package templates

import "fmt"

// ==================== 咨询与法规类模板 ====================

// 采购流程咨询
func ProcurementConsult(text string) string {
	return fmt.Sprintf(`用户咨询采购流程相关问题：
%s

请说明适用的采购方式、主要流程节点及各节点的时限要求。`, text)
}

// 法规条款解读
func LawInterpret(text string) string {
	return fmt.Sprintf(`请解读以下法规相关问题：
%s

要求：
1. 指出适用的法律法规名称及具体条款
2. 逐条解释条款含义与适用条件
3. 结合典型场景说明实务中的注意事项`, text)
}

// 流程追溯
func ProcessTrace(text string) string {
	return fmt.Sprintf(`请对以下采购事项进行流程追溯：
%s

请按时间线列出各环节，标明责任主体、应留存的材料以及可能存在的程序瑕疵。`, text)
}
