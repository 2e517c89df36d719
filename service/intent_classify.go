package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"procure-agent/internal/aiclient"
	"procure-agent/metrics"
	"procure-agent/model"
	"procure-agent/utils"
)

// ClassifyPath records which branch produced the core intent.
type ClassifyPath string

const (
	PathRule          ClassifyPath = "rule"
	PathModel         ClassifyPath = "model"
	PathModelFallback ClassifyPath = "model_fallback"
	PathFailure       ClassifyPath = "failure"
)

const (
	baseConfidence   = 0.85
	auxConfidenceInc = 0.05
	maxBaseScore     = 0.95
	riskBonusPerHit  = 0.15
	maxRiskBonus     = 0.45

	uncertaintyThreshold = 0.3
)

// Classification wraps the IntentResult with how it was reached, so callers
// and tests can tell a model answer from a fallback.
type Classification struct {
	Result   model.IntentResult
	Path     ClassifyPath
	Adjusted bool
	Features map[string]float64
	Risk     RiskAssessment
	Err      error
}

type ClassifyRequest struct {
	Text        string
	Attachments []model.Attachment
	RiskMode    model.RiskMode
}

// AttachmentReader converts attachments to text.
type AttachmentReader interface {
	OCREnabled() bool
	OCR(ctx context.Context, att model.Attachment) (string, error)
}

// PolicySignal reports whether the policy monitor saw a regulation update.
type PolicySignal interface {
	PolicyUpdated() bool
}

type ClassifierOptions struct {
	AuditSeasonMonths        []int
	ConfusionThreshold       float64
	AdjustOnPolicyUpdateOnly bool
}

type IntentClassifier struct {
	lexicon *DomainLexicon
	labeler LabelClassifier
	risk    riskAssessors
	ocr     AttachmentReader
	policy  PolicySignal
	opts    ClassifierOptions
	now     func() time.Time
	logger  zerolog.Logger
}

type ClassifierDeps struct {
	Lexicon    *DomainLexicon
	Labeler    LabelClassifier
	LocalRisk  RiskAssessor
	RemoteRisk RiskAssessor
	OCR        AttachmentReader
	Policy     PolicySignal
	Now        func() time.Time
}

func NewIntentClassifier(deps ClassifierDeps, opts ClassifierOptions, logger zerolog.Logger) *IntentClassifier {
	if deps.Lexicon == nil {
		deps.Lexicon = FallbackLexicon()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if len(opts.AuditSeasonMonths) == 0 {
		opts.AuditSeasonMonths = []int{3, 6, 9, 12}
	}
	if opts.ConfusionThreshold == 0 {
		opts.ConfusionThreshold = 0.15
	}
	return &IntentClassifier{
		lexicon: deps.Lexicon,
		labeler: deps.Labeler,
		risk:    riskAssessors{local: deps.LocalRisk, remote: deps.RemoteRisk, logger: logger},
		ocr:     deps.OCR,
		policy:  deps.Policy,
		opts:    opts,
		now:     deps.Now,
		logger:  logger,
	}
}

// Classify never fails: any fault inside the pipeline yields the fallback
// result with Path == PathFailure.
func (c *IntentClassifier) Classify(ctx context.Context, req ClassifyRequest) (out Classification) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("intent pipeline panic: %v", r)
			c.logger.Error().Err(err).Msg("[IntentClassifier] 意图识别流程异常，使用默认结果")
			out = Classification{Result: model.FallbackIntentResult(), Path: PathFailure, Err: err}
		}
		metrics.IntentClassifications.WithLabelValues(string(out.Result.CoreIntent), string(out.Path)).Inc()
	}()

	text := req.Text
	if len(req.Attachments) > 0 {
		if ocrText := c.readAttachments(ctx, req.Attachments); ocrText != "" {
			text = strings.TrimSpace(text + " " + ocrText)
		}
	}
	if strings.TrimSpace(text) == "" {
		return Classification{
			Result: model.FallbackIntentResult(),
			Path:   PathFailure,
			Err:    fmt.Errorf("empty input"),
		}
	}

	features := c.ExtractFeatures(text)
	core, path := c.classifyCore(ctx, text, features)
	aux := c.DetectAuxIntents(text)

	adjusted := false
	if path != PathRule && c.shouldAdjust() {
		next := c.adjustWeights(core, aux)
		if next != core {
			c.logger.Info().
				Str("from", string(core)).
				Str("to", string(next)).
				Msg("[IntentClassifier] 动态权重调整改写核心意图")
			core, adjusted = next, true
		}
	}

	risk := c.risk.assess(ctx, req.RiskMode, text)

	result := model.IntentResult{
		CoreIntent:      core,
		AuxIntents:      aux,
		ConfidenceScore: c.confidence(text, len(aux)),
		RiskLevel:       risk.Level,
	}

	c.logger.Debug().
		Str("core", string(result.CoreIntent)).
		Interface("aux", result.AuxIntents).
		Float64("confidence", result.ConfidenceScore).
		Str("risk", string(result.RiskLevel)).
		Str("path", string(path)).
		Msg("[IntentClassifier] 意图识别完成")

	return Classification{
		Result:   result,
		Path:     path,
		Adjusted: adjusted,
		Features: features,
		Risk:     risk,
	}
}

func (c *IntentClassifier) readAttachments(ctx context.Context, atts []model.Attachment) string {
	if c.ocr == nil || !c.ocr.OCREnabled() {
		c.logger.Debug().Msg("[IntentClassifier] 未配置OCR服务，跳过附件处理")
		return ""
	}
	var parts []string
	for _, att := range atts {
		text, err := c.ocr.OCR(ctx, att)
		if errors.Is(err, aiclient.ErrAttachmentPath) {
			c.logger.Warn().Err(err).Str("path", att.Path).Msg("[IntentClassifier] 附件路径非法，跳过该附件")
			continue
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("path", att.Path).Msg("[IntentClassifier] OCR处理失败，跳过该附件")
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractFeatures returns lexicon match counts plus legal-citation and
// numeric indicators, normalized to sum to 1 when any is nonzero.
func (c *IntentClassifier) ExtractFeatures(text string) map[string]float64 {
	features := make(map[string]float64)
	for _, category := range c.lexicon.Categories() {
		weight := 1.0
		if category == CategoryCoreTerms {
			weight = 2.0
		}
		features["term_"+category] = float64(utils.CountMatches(text, c.lexicon.Terms(category))) * weight
	}

	features["law_ref"] = 0
	if hasLawReference(text) {
		features["law_ref"] = 1
	}

	digits := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	features["numeric_count"] = float64(digits)

	total := 0.0
	for _, v := range features {
		total += v
	}
	if total == 0 {
		return features
	}
	for k, v := range features {
		features[k] = v / total
	}
	return features
}

var lawArticle = regexp.MustCompile(`第[一二三四五六七八九十百零〇0-9]+条`)

func hasLawReference(text string) bool {
	return strings.Contains(text, "§") || lawArticle.MatchString(text)
}

func (c *IntentClassifier) classifyCore(ctx context.Context, text string, features map[string]float64) (model.CoreIntent, ClassifyPath) {
	if utils.ContainsAny(text, c.lexicon.RiskKeywords()...) {
		return model.IntentRiskAlert, PathRule
	}

	if c.labeler == nil {
		return model.IntentProcurementConsult, PathModelFallback
	}

	fs, _ := json.Marshal(features)
	prompt := fmt.Sprintf("文本内容：%s\n\n特征信息：%s", text, fs)
	out, err := c.labeler.ClassifyLabel(ctx, c.systemPrompt(), prompt)
	if err != nil {
		c.logger.Warn().Err(err).Msg("[IntentClassifier] 模型分类异常，回退到采购流程咨询")
		return model.IntentProcurementConsult, PathModelFallback
	}

	intent, ok := ParseCoreIntent(out)
	if !ok {
		c.logger.Warn().Str("label", out).Msg("[IntentClassifier] 模型返回未知意图，回退到采购流程咨询")
		return model.IntentProcurementConsult, PathModelFallback
	}
	return intent, PathModel
}

// ParseCoreIntent accepts either the identifier or the Chinese label.
func ParseCoreIntent(s string) (model.CoreIntent, bool) {
	s = strings.Trim(strings.TrimSpace(s), "\"'`。.")
	if s == "" {
		return "", false
	}
	for _, it := range model.CoreIntents {
		if strings.EqualFold(s, string(it)) || s == it.Label() {
			return it, true
		}
	}
	for _, it := range model.CoreIntents {
		if strings.Contains(s, it.Label()) || strings.Contains(s, string(it)) {
			return it, true
		}
	}
	return "", false
}

func (c *IntentClassifier) systemPrompt() string {
	var core strings.Builder
	for _, it := range model.CoreIntents {
		fmt.Fprintf(&core, "%s (%s)\n", it.Label(), it)
	}
	season := "非审计季"
	if c.isAuditSeason() {
		season = "审计季"
	}
	return "您是一个采购招投标领域专业意图识别引擎。请严格按以下规则处理：\n\n" +
		"一、核心意图分类（单选）\n" + core.String() + "\n" +
		"二、处理规则：\n" +
		"1. 法律条款引用检测：当文本包含§、第...条等法律符号时，优先匹配 LawInterpret\n" +
		"2. 当前为" + season + "，合规类意图优先\n\n" +
		"三、输出要求：只输出一个意图标识（如 ProcurementConsult），不要输出其他内容。"
}

var (
	enhancedSearchKeywords = []string{"对比", "推荐", "比较", "top", "排名"}
	deepReasoningKeywords  = []string{"详细说明", "推导过程", "深入分析", "详细解释", "一步步"}
)

type conflictPattern struct {
	re    *regexp.Regexp
	score float64
}

var conflictPatterns = []conflictPattern{
	{regexp.MustCompile(`(虽然|尽管).*?(但是|然而)`), 0.3},
	{regexp.MustCompile(`\d+%?[^-]{0,20}不同[^-]{0,20}\d+%?`), 0.4},
	{regexp.MustCompile(`(应当|必须).*?(禁止|不得)`), 0.5},
	{regexp.MustCompile(`前者.*?后者`), 0.2},
}

// ConflictRatio scores contradictory phrasing in the text, capped at 1.
func ConflictRatio(text string) float64 {
	total := 0.0
	for _, p := range conflictPatterns {
		if p.re.MatchString(text) {
			total += p.score
		}
	}
	if total > 1 {
		return 1
	}
	return total
}

// DetectAuxIntents evaluates each trigger independently, in the fixed
// EnhancedSearch, UncertaintyDeclare, DeepReasoning order.
func (c *IntentClassifier) DetectAuxIntents(text string) []model.AuxIntent {
	aux := make([]model.AuxIntent, 0, len(model.AuxIntents))
	lower := utils.NormalizeString(text)

	if utils.ContainsAny(lower, enhancedSearchKeywords...) {
		aux = append(aux, model.AuxEnhancedSearch)
	}
	if ConflictRatio(text) > uncertaintyThreshold {
		aux = append(aux, model.AuxUncertaintyDeclare)
	}
	if utils.ContainsAny(text, deepReasoningKeywords...) {
		aux = append(aux, model.AuxDeepReasoning)
	}
	return aux
}

func (c *IntentClassifier) shouldAdjust() bool {
	if !c.opts.AdjustOnPolicyUpdateOnly {
		return true
	}
	return c.policy != nil && c.policy.PolicyUpdated()
}

func (c *IntentClassifier) isAuditSeason() bool {
	month := int(c.now().Month())
	for _, m := range c.opts.AuditSeasonMonths {
		if m == month {
			return true
		}
	}
	return false
}

func (c *IntentClassifier) adjustWeights(core model.CoreIntent, aux []model.AuxIntent) model.CoreIntent {
	if c.isAuditSeason() && (core == model.IntentProcurementConsult || core == model.IntentLawInterpret) {
		core = model.IntentLawInterpret
	}
	if c.ConfusionScore(core, aux) > c.opts.ConfusionThreshold {
		return model.IntentProcurementConsult
	}
	return core
}

// ConfusionScore averages the conflict-rule weights of core against each aux.
func (c *IntentClassifier) ConfusionScore(core model.CoreIntent, aux []model.AuxIntent) float64 {
	if len(aux) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range aux {
		sum += c.lexicon.ConflictWeight(string(core) + "-" + string(a))
	}
	score := sum / float64(len(aux))
	if score > 1 {
		return 1
	}
	return score
}

func (c *IntentClassifier) confidence(text string, auxCount int) float64 {
	base := baseConfidence + auxConfidenceInc*float64(auxCount)
	if base > maxBaseScore {
		base = maxBaseScore
	}
	bonus := riskBonusPerHit * float64(utils.CountMatches(text, c.lexicon.RiskKeywords()))
	if bonus > maxRiskBonus {
		bonus = maxRiskBonus
	}
	score := base + bonus
	if score > 1 {
		score = 1
	}
	return utils.Round2(score)
}
