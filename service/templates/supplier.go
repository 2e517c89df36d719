package templates

import "fmt"

// ==================== 供应商与商品类模板 ====================

// 供应商资格审查
func SupplierReview(text string) string {
	return fmt.Sprintf(`请对以下供应商信息进行资格审查：
%s

请逐项核验：营业执照与经营范围、财务状况、纳税与社保缴纳记录、近三年重大违法记录、特定资质要求。
对不满足或无法确认的项目单独列出。`, text)
}

// 商品对比与选型：加权对比
func ProductCompare(text string) string {
	return fmt.Sprintf(`请对以下商品进行对比与选型：
%s

请按以下权重建立对比表：
- 价格（30%%）
- 技术参数与性能（30%%）
- 质量与售后服务（20%%）
- 供货周期与履约能力（20%%）
给出加权得分并推荐最优方案。`, text)
}

// 数据验证
func DataVerify(text string) string {
	return fmt.Sprintf(`请对以下数据进行验证：
%s

请检查数据的完整性、一致性与计算正确性，指出异常值并说明可能原因。`, text)
}
