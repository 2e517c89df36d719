package templates

import "fmt"

// ==================== 招投标文件类模板 ====================

// 项目招标信息生成
func GenerateBid(text string) string {
	return fmt.Sprintf(`请根据以下需求生成项目招标信息：
%s

请按以下结构输出：
1. 项目概况（项目名称、预算金额、采购方式）
2. 供应商资格要求
3. 采购需求与技术参数
4. 评标方法与评分标准
5. 时间安排（公告期、投标截止、开标时间）`, text)
}

// 投标文件评估：三维度评分
func EvaluateBid(text string) string {
	return fmt.Sprintf(`请对以下投标文件内容进行评估：
%s

请从三个维度打分（每项满分100分）并说明理由：
- 商务响应度：资格文件、报价合理性、商务条款偏离
- 技术响应度：技术参数符合性、实施方案可行性
- 合规性：是否存在废标条款、签章与格式问题
最后给出综合评价与改进建议。`, text)
}

// 文档模板生成
func TemplateGenerate(text string) string {
	return fmt.Sprintf(`请生成以下采购文档模板：
%s

要求：
- 按标准章节组织，章节编号清晰
- 需要填写的内容用【】标注
- 在末尾列出使用该模板的注意事项`, text)
}
