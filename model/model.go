package model

type CoreIntent string

const (
	IntentGenerateBid        CoreIntent = "GenerateBid"
	IntentEvaluateBid        CoreIntent = "EvaluateBid"
	IntentProcurementConsult CoreIntent = "ProcurementConsult"
	IntentSupplierReview     CoreIntent = "SupplierReview"
	IntentProductCompare     CoreIntent = "ProductCompare"
	IntentLawInterpret       CoreIntent = "LawInterpret"
	IntentRiskAlert          CoreIntent = "RiskAlert"
	IntentCostCalculate      CoreIntent = "CostCalculate"
	IntentTemplateGenerate   CoreIntent = "TemplateGenerate"
	IntentDataVerify         CoreIntent = "DataVerify"
	IntentProcessTrace       CoreIntent = "ProcessTrace"
	IntentEmergencyHandle    CoreIntent = "EmergencyHandle"
)

// CoreIntents lists every core intent in declaration order.
var CoreIntents = []CoreIntent{
	IntentGenerateBid,
	IntentEvaluateBid,
	IntentProcurementConsult,
	IntentSupplierReview,
	IntentProductCompare,
	IntentLawInterpret,
	IntentRiskAlert,
	IntentCostCalculate,
	IntentTemplateGenerate,
	IntentDataVerify,
	IntentProcessTrace,
	IntentEmergencyHandle,
}

var coreIntentLabels = map[CoreIntent]string{
	IntentGenerateBid:        "项目招标信息生成",
	IntentEvaluateBid:        "投标文件评估",
	IntentProcurementConsult: "采购流程咨询",
	IntentSupplierReview:     "供应商资格审查",
	IntentProductCompare:     "商品对比与选型",
	IntentLawInterpret:       "法规条款解读",
	IntentRiskAlert:          "风险预警",
	IntentCostCalculate:      "成本测算",
	IntentTemplateGenerate:   "文档模板生成",
	IntentDataVerify:         "数据验证",
	IntentProcessTrace:       "流程追溯",
	IntentEmergencyHandle:    "应急处理",
}

// Label returns the Chinese display name used in prompts.
func (c CoreIntent) Label() string {
	if l, ok := coreIntentLabels[c]; ok {
		return l
	}
	return string(c)
}

func (c CoreIntent) Valid() bool {
	_, ok := coreIntentLabels[c]
	return ok
}

type AuxIntent string

const (
	AuxEnhancedSearch     AuxIntent = "EnhancedSearch"
	AuxUncertaintyDeclare AuxIntent = "UncertaintyDeclare"
	AuxDeepReasoning      AuxIntent = "DeepReasoning"
)

// AuxIntents is the fixed evaluation order for auxiliary intents.
var AuxIntents = []AuxIntent{
	AuxEnhancedSearch,
	AuxUncertaintyDeclare,
	AuxDeepReasoning,
}

var auxIntentLabels = map[AuxIntent]string{
	AuxEnhancedSearch:     "信息检索增强",
	AuxUncertaintyDeclare: "不确定性声明",
	AuxDeepReasoning:      "深度推理请求",
}

func (a AuxIntent) Label() string {
	if l, ok := auxIntentLabels[a]; ok {
		return l
	}
	return string(a)
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

type RiskMode string

const (
	RiskModeLocal  RiskMode = "LOCAL"
	RiskModeRemote RiskMode = "REMOTE"
)

// IntentResult is produced once per request and never mutated afterwards.
type IntentResult struct {
	CoreIntent      CoreIntent  `json:"core_intent"`
	AuxIntents      []AuxIntent `json:"aux_intents"`
	ConfidenceScore float64     `json:"confidence_score"`
	RiskLevel       RiskLevel   `json:"risk_level"`
}

// HasAux reports whether aux is among the detected auxiliary intents.
func (r IntentResult) HasAux(aux AuxIntent) bool {
	for _, a := range r.AuxIntents {
		if a == aux {
			return true
		}
	}
	return false
}

// FallbackIntentResult is returned whenever classification cannot complete.
func FallbackIntentResult() IntentResult {
	return IntentResult{
		CoreIntent:      IntentProcurementConsult,
		AuxIntents:      []AuxIntent{AuxUncertaintyDeclare},
		ConfidenceScore: 0.5,
		RiskLevel:       RiskHigh,
	}
}

type ReasoningStep struct {
	StepNumber  int    `json:"step_number"`
	StepName    string `json:"step_name"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
	Conclusion  string `json:"conclusion,omitempty"`
}

type Message struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	IsUser    bool   `json:"is_user"`
	CreatedAt string `json:"created_at,omitempty"`
}

type RetrievedDocument struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type Attachment struct {
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

type FileStatus string

const (
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
)

type ChatRequest struct {
	UserID      string       `json:"user_id" binding:"required"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type IntentRecognitionRequest struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type IntentRecognitionResponse struct {
	Intent    IntentResult    `json:"intent"`
	Path      string          `json:"path"`
	Steps     []ReasoningStep `json:"steps"`
	Query     string          `json:"query"`
	Reasoning string          `json:"reasoning"`
}
