package service

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"procure-agent/metrics"
	"procure-agent/model"
)

// complianceCredit is subtracted for every fully satisfied compliance rule.
const complianceCredit = 0.3

const (
	riskHighThreshold   = 0.75
	riskMediumThreshold = 0.45
)

// RiskAssessment is the outcome of one assessment. FailSafe marks a level
// that was forced to high because the strategy itself failed.
type RiskAssessment struct {
	Level    model.RiskLevel
	FailSafe bool
	Err      error
}

type RiskAssessor interface {
	Mode() model.RiskMode
	Assess(ctx context.Context, text string) RiskAssessment
}

func failSafe(err error) RiskAssessment {
	return RiskAssessment{Level: model.RiskHigh, FailSafe: true, Err: err}
}

type AbnormalPattern struct {
	MatchCondition string          `yaml:"match_condition"`
	RiskLevel      model.RiskLevel `yaml:"risk_level"`
}

type ComplianceRule struct {
	Name        string   `yaml:"name"`
	CheckPoints []string `yaml:"check_points"`
}

type RiskRules struct {
	RiskWeights      map[model.RiskLevel]float64 `yaml:"risk_weights"`
	AbnormalPatterns []AbnormalPattern           `yaml:"bid_abnormal_patterns"`
	ComplianceRules  []ComplianceRule            `yaml:"compliance_rules"`
}

type compiledPattern struct {
	re     *regexp.Regexp
	weight float64
}

// LocalRiskAssessor scores text against a rule file.
type LocalRiskAssessor struct {
	patterns   []compiledPattern
	compliance []ComplianceRule
	loadErr    error
	logger     zerolog.Logger
}

// NewLocalRiskAssessor compiles rules up front. A load or compile failure is
// kept and every later Assess fails safe to high.
func NewLocalRiskAssessor(path string, logger zerolog.Logger) *LocalRiskAssessor {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("[Risk] 风险规则文件加载失败，风险评估将固定为 high")
		return &LocalRiskAssessor{loadErr: fmt.Errorf("load risk rules: %w", err), logger: logger}
	}

	var rules RiskRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("[Risk] 风险规则文件解析失败，风险评估将固定为 high")
		return &LocalRiskAssessor{loadErr: fmt.Errorf("parse risk rules: %w", err), logger: logger}
	}
	return NewLocalRiskAssessorFromRules(rules, logger)
}

func NewLocalRiskAssessorFromRules(rules RiskRules, logger zerolog.Logger) *LocalRiskAssessor {
	a := &LocalRiskAssessor{logger: logger}
	for _, p := range rules.AbnormalPatterns {
		re, err := regexp.Compile(p.MatchCondition)
		if err != nil {
			logger.Error().Err(err).Str("pattern", p.MatchCondition).Msg("[Risk] 风险规则正则无效")
			a.loadErr = fmt.Errorf("compile pattern %q: %w", p.MatchCondition, err)
			return a
		}
		a.patterns = append(a.patterns, compiledPattern{re: re, weight: rules.RiskWeights[p.RiskLevel]})
	}
	a.compliance = rules.ComplianceRules
	return a
}

func (a *LocalRiskAssessor) Mode() model.RiskMode {
	return model.RiskModeLocal
}

func (a *LocalRiskAssessor) Assess(_ context.Context, text string) RiskAssessment {
	if a.loadErr != nil {
		return failSafe(a.loadErr)
	}
	return RiskAssessment{Level: levelForScore(a.Score(text))}
}

// Score sums matched pattern weights and subtracts compliance credits.
func (a *LocalRiskAssessor) Score(text string) float64 {
	score := 0.0
	for _, p := range a.patterns {
		if p.re.MatchString(text) {
			score += p.weight
		}
	}
	for _, rule := range a.compliance {
		if len(rule.CheckPoints) > 0 && allPresent(text, rule.CheckPoints) {
			score -= complianceCredit
		}
	}
	return score
}

func allPresent(text string, points []string) bool {
	for _, p := range points {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}

func levelForScore(score float64) model.RiskLevel {
	switch {
	case score >= riskHighThreshold:
		return model.RiskHigh
	case score >= riskMediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

const remoteRiskPrompt = "您正在评估采购招投标文本的风险等级。请根据文本内容，判断其风险等级，只输出 low、medium、high 之一。"

// RemoteRiskAssessor asks the model for one of the three labels.
type RemoteRiskAssessor struct {
	labeler LabelClassifier
}

func NewRemoteRiskAssessor(labeler LabelClassifier) *RemoteRiskAssessor {
	return &RemoteRiskAssessor{labeler: labeler}
}

func (a *RemoteRiskAssessor) Mode() model.RiskMode {
	return model.RiskModeRemote
}

func (a *RemoteRiskAssessor) Assess(ctx context.Context, text string) RiskAssessment {
	if a.labeler == nil {
		return failSafe(fmt.Errorf("remote risk classifier not configured"))
	}
	out, err := a.labeler.ClassifyLabel(ctx, remoteRiskPrompt, text)
	if err != nil {
		return failSafe(err)
	}

	label := strings.ToLower(strings.TrimSpace(out))
	switch {
	case strings.Contains(label, string(model.RiskHigh)):
		return RiskAssessment{Level: model.RiskHigh}
	case strings.Contains(label, string(model.RiskMedium)):
		return RiskAssessment{Level: model.RiskMedium}
	case strings.Contains(label, string(model.RiskLow)):
		return RiskAssessment{Level: model.RiskLow}
	default:
		return failSafe(fmt.Errorf("unexpected risk label %q", out))
	}
}

// riskAssessors selects the strategy named by the current settings.
type riskAssessors struct {
	local  RiskAssessor
	remote RiskAssessor
	logger zerolog.Logger
}

func (r riskAssessors) assess(ctx context.Context, mode model.RiskMode, text string) RiskAssessment {
	assessor := r.local
	if mode == model.RiskModeRemote {
		assessor = r.remote
	}
	if assessor == nil {
		return failSafe(fmt.Errorf("risk assessor for mode %q not configured", mode))
	}

	res := assessor.Assess(ctx, text)
	if res.FailSafe {
		r.logger.Warn().Err(res.Err).Str("mode", string(assessor.Mode())).Msg("[Risk] 风险评估失败，按 high 处理")
	}
	metrics.RiskAssessments.WithLabelValues(string(assessor.Mode()), string(res.Level), fmt.Sprint(res.FailSafe)).Inc()
	return res
}
