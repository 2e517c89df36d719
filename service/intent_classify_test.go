package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procure-agent/internal/aiclient"
	"procure-agent/logging"
	"procure-agent/model"
)

func testLexicon() *DomainLexicon {
	return NewDomainLexicon(map[string][]string{
		CategoryCoreTerms:    {"招标", "投标", "评标", "采购", "供应商"},
		"law_terms":          {"政府采购法", "招标投标法"},
		CategoryRiskKeywords: {"围标", "串标", "恶意低价", "资质造假"},
	}, map[string]float64{
		"EmergencyHandle-DeepReasoning": 0.3,
		"LawInterpret-EnhancedSearch":   0.1,
	})
}

type classifierFixture struct {
	labeler LabelClassifier
	remote  LabelClassifier
	month   time.Month
	policy  PolicySignal
	ocr     AttachmentReader
	opts    ClassifierOptions
}

func newTestClassifier(f classifierFixture) *IntentClassifier {
	if f.month == 0 {
		f.month = time.January
	}
	logger := logging.Nop()
	deps := ClassifierDeps{
		Lexicon:   testLexicon(),
		Labeler:   f.labeler,
		LocalRisk: NewLocalRiskAssessorFromRules(testRiskRules(), logger),
		Policy:    f.policy,
		OCR:       f.ocr,
		Now:       fixedClock(f.month),
	}
	if f.remote != nil {
		deps.RemoteRisk = NewRemoteRiskAssessor(f.remote)
	}
	return NewIntentClassifier(deps, f.opts, logger)
}

func TestClassifyRiskKeywordIsDeterministic(t *testing.T) {
	labeler := &stubLabeler{label: "LawInterpret"}
	c := newTestClassifier(classifierFixture{labeler: labeler})

	for i := 0; i < 5; i++ {
		got := c.Classify(context.Background(), ClassifyRequest{
			Text:     "这次招标中发现有几家供应商围标，怎么处理？",
			RiskMode: model.RiskModeLocal,
		})
		assert.Equal(t, model.IntentRiskAlert, got.Result.CoreIntent)
		assert.Equal(t, PathRule, got.Path)
		assert.Equal(t, model.RiskHigh, got.Result.RiskLevel)
		assert.GreaterOrEqual(t, got.Result.ConfidenceScore, 0.85)
	}
	assert.Zero(t, labeler.calls.Load(), "rule path must not consult the model")
}

func TestClassifyRiskKeywordSkipsAuditSeasonAdjustment(t *testing.T) {
	c := newTestClassifier(classifierFixture{month: time.March})

	got := c.Classify(context.Background(), ClassifyRequest{Text: "发现串标行为", RiskMode: model.RiskModeLocal})
	assert.Equal(t, model.IntentRiskAlert, got.Result.CoreIntent)
	assert.False(t, got.Adjusted)
}

func TestClassifyNeverFails(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		labeler LabelClassifier
	}{
		{"empty", "", &stubLabeler{label: "GenerateBid"}},
		{"whitespace", " \n\t ", &stubLabeler{label: "GenerateBid"}},
		{"model error", "帮我写一份招标公告", &stubLabeler{err: errors.New("timeout")}},
		{"unknown label", "帮我写一份招标公告", &stubLabeler{label: "SomethingElse"}},
		{"labeler panics", "帮我写一份招标公告", &stubLabeler{panic: true}},
		{"no labeler", "帮我写一份招标公告", nil},
		{"long mixed input", "虽然报价接近，但是 123456 第三条 § 恶意低价 对比 详细说明", &stubLabeler{label: "DataVerify"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(classifierFixture{labeler: tt.labeler})
			var got Classification
			require.NotPanics(t, func() {
				got = c.Classify(context.Background(), ClassifyRequest{Text: tt.text, RiskMode: model.RiskModeLocal})
			})
			assert.True(t, got.Result.CoreIntent.Valid())
			assert.True(t, got.Result.RiskLevel.Valid())
			assert.GreaterOrEqual(t, got.Result.ConfidenceScore, 0.0)
			assert.LessOrEqual(t, got.Result.ConfidenceScore, 1.0)
		})
	}
}

func TestClassifyFallbackPaths(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		got := newTestClassifier(classifierFixture{}).Classify(context.Background(), ClassifyRequest{Text: "  "})
		assert.Equal(t, PathFailure, got.Path)
		assert.Equal(t, model.FallbackIntentResult(), got.Result)
		assert.Error(t, got.Err)
	})

	t.Run("panic recovered", func(t *testing.T) {
		c := newTestClassifier(classifierFixture{labeler: &stubLabeler{panic: true}})
		got := c.Classify(context.Background(), ClassifyRequest{Text: "采购流程是什么"})
		assert.Equal(t, PathFailure, got.Path)
		assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
		assert.Equal(t, model.RiskHigh, got.Result.RiskLevel)
	})

	t.Run("model error", func(t *testing.T) {
		c := newTestClassifier(classifierFixture{labeler: &stubLabeler{err: errors.New("boom")}})
		got := c.Classify(context.Background(), ClassifyRequest{Text: "供应商资格怎么审查"})
		assert.Equal(t, PathModelFallback, got.Path)
		assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
	})
}

func TestClassifyModelPath(t *testing.T) {
	c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "供应商资格审查"}})
	got := c.Classify(context.Background(), ClassifyRequest{Text: "供应商资格怎么审查", RiskMode: model.RiskModeLocal})
	assert.Equal(t, PathModel, got.Path)
	assert.Equal(t, model.IntentSupplierReview, got.Result.CoreIntent)
	assert.Equal(t, model.RiskLow, got.Result.RiskLevel)
	assert.Equal(t, 0.85, got.Result.ConfidenceScore)
}

func TestClassifyAuditSeasonReroute(t *testing.T) {
	text := "政府采购的一般流程是什么"

	c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "ProcurementConsult"}, month: time.March})
	got := c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentLawInterpret, got.Result.CoreIntent)
	assert.True(t, got.Adjusted)

	c = newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "ProcurementConsult"}, month: time.January})
	got = c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
	assert.False(t, got.Adjusted)
}

func TestClassifyConfusionReverts(t *testing.T) {
	c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "EmergencyHandle"}})
	got := c.Classify(context.Background(), ClassifyRequest{Text: "开标现场停电了，请详细说明怎么办"})
	assert.Equal(t, []model.AuxIntent{model.AuxDeepReasoning}, got.Result.AuxIntents)
	assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
	assert.True(t, got.Adjusted)
}

func TestClassifyAdjustOnlyAfterPolicyUpdate(t *testing.T) {
	text := "开标现场停电了，请详细说明怎么办"

	c := newTestClassifier(classifierFixture{
		labeler: &stubLabeler{label: "EmergencyHandle"},
		policy:  stubPolicy(false),
		opts:    ClassifierOptions{AdjustOnPolicyUpdateOnly: true},
	})
	got := c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentEmergencyHandle, got.Result.CoreIntent)

	c = newTestClassifier(classifierFixture{
		labeler: &stubLabeler{label: "EmergencyHandle"},
		policy:  stubPolicy(true),
		opts:    ClassifierOptions{AdjustOnPolicyUpdateOnly: true},
	})
	got = c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
}

func TestClassifyAdjustmentFollowsLatestPoll(t *testing.T) {
	text := "开标现场停电了，请详细说明怎么办"
	checker := &stubPolicyChecker{enabled: true, update: &aiclient.PolicyUpdate{HasUpdate: true, UpdateSummary: "新规"}}
	monitor, err := NewPolicyMonitor(checker, "@every 30m", time.Second, logging.Nop())
	require.NoError(t, err)

	c := newTestClassifier(classifierFixture{
		labeler: &stubLabeler{label: "EmergencyHandle"},
		policy:  monitor,
		opts:    ClassifierOptions{AdjustOnPolicyUpdateOnly: true},
	})

	require.NoError(t, monitor.Check(context.Background()))
	got := c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentProcurementConsult, got.Result.CoreIntent)
	assert.True(t, got.Adjusted)

	checker.update = &aiclient.PolicyUpdate{}
	for i := 0; i < 3; i++ {
		require.NoError(t, monitor.Check(context.Background()))
	}
	got = c.Classify(context.Background(), ClassifyRequest{Text: text})
	assert.Equal(t, model.IntentEmergencyHandle, got.Result.CoreIntent)
	assert.False(t, got.Adjusted)
}

type stubOCR struct {
	enabled bool
	texts   map[string]string
	errs    map[string]error
	calls   []string
}

func (o *stubOCR) OCREnabled() bool { return o.enabled }

func (o *stubOCR) OCR(_ context.Context, att model.Attachment) (string, error) {
	o.calls = append(o.calls, att.Path)
	if err := o.errs[att.Path]; err != nil {
		return "", err
	}
	return o.texts[att.Path], nil
}

func TestClassifyAttachments(t *testing.T) {
	attachments := []model.Attachment{{Path: "broken.png"}, {Path: "scan.png"}}
	newOCR := func(enabled bool) *stubOCR {
		return &stubOCR{
			enabled: enabled,
			texts:   map[string]string{"scan.png": "经核查发现围标"},
			errs:    map[string]error{"broken.png": errors.New("ocr status 500")},
		}
	}

	tests := []struct {
		name      string
		text      string
		ocr       *stubOCR
		wantCore  model.CoreIntent
		wantPath  ClassifyPath
		wantCalls int
	}{
		{"failed attachment skipped, text appended", "这个项目的标书有问题吗", newOCR(true), model.IntentRiskAlert, PathRule, 2},
		{"attachment only", "", newOCR(true), model.IntentRiskAlert, PathRule, 2},
		{"ocr disabled", "这个项目的标书有问题吗", newOCR(false), model.IntentDataVerify, PathModel, 0},
		{"ocr disabled, attachment only", "", newOCR(false), model.IntentProcurementConsult, PathFailure, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "DataVerify"}, ocr: tt.ocr})
			var got Classification
			require.NotPanics(t, func() {
				got = c.Classify(context.Background(), ClassifyRequest{
					Text:        tt.text,
					Attachments: attachments,
					RiskMode:    model.RiskModeLocal,
				})
			})
			assert.Equal(t, tt.wantCore, got.Result.CoreIntent)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Len(t, tt.ocr.calls, tt.wantCalls)
			if tt.wantPath == PathRule {
				assert.Equal(t, model.RiskHigh, got.Result.RiskLevel)
			}
		})
	}
}

func TestClassifyDoesNotUploadFilesOutsideUploadDir(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			body, _ := io.ReadAll(f)
			_ = f.Close()
			received = append(received, string(body))
		}
		_, _ = w.Write([]byte(`{"text":"发现围标"}`))
	}))
	defer srv.Close()

	base := t.TempDir()
	uploads := filepath.Join(base, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	secret := filepath.Join(base, "secret.env")
	require.NoError(t, os.WriteFile(secret, []byte("DB_PASSWORD=hunter2"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "bid.png"), []byte("bid-scan"), 0o644))

	client := aiclient.NewClient("http://unused", aiclient.WithOCR(srv.URL, "k"), aiclient.WithAttachmentDir(uploads))
	c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "DataVerify"}, ocr: client})

	got := c.Classify(context.Background(), ClassifyRequest{
		Text:        "请核对附件",
		Attachments: []model.Attachment{{Path: secret}, {Path: "/etc/passwd"}, {Path: "../secret.env"}},
	})
	assert.Empty(t, received)
	assert.Equal(t, model.IntentDataVerify, got.Result.CoreIntent)

	got = c.Classify(context.Background(), ClassifyRequest{
		Text:        "请核对附件",
		Attachments: []model.Attachment{{Path: "bid.png"}},
	})
	assert.Equal(t, []string{"bid-scan"}, received)
	assert.Equal(t, model.IntentRiskAlert, got.Result.CoreIntent)
}

func TestClassifyRemoteRisk(t *testing.T) {
	tests := []struct {
		name     string
		remote   *stubLabeler
		want     model.RiskLevel
		failSafe bool
	}{
		{"medium", &stubLabeler{label: "Medium"}, model.RiskMedium, false},
		{"low with noise", &stubLabeler{label: "风险等级：low"}, model.RiskLow, false},
		{"unexpected label", &stubLabeler{label: "不确定"}, model.RiskHigh, true},
		{"remote error", &stubLabeler{err: errors.New("502")}, model.RiskHigh, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "CostCalculate"}, remote: tt.remote})
			got := c.Classify(context.Background(), ClassifyRequest{Text: "项目预算怎么测算", RiskMode: model.RiskModeRemote})
			assert.Equal(t, tt.want, got.Result.RiskLevel)
			assert.Equal(t, tt.failSafe, got.Risk.FailSafe)
		})
	}
}

func TestClassifyRemoteRiskNotConfigured(t *testing.T) {
	c := newTestClassifier(classifierFixture{labeler: &stubLabeler{label: "CostCalculate"}})
	got := c.Classify(context.Background(), ClassifyRequest{Text: "项目预算怎么测算", RiskMode: model.RiskModeRemote})
	assert.Equal(t, model.RiskHigh, got.Result.RiskLevel)
	assert.True(t, got.Risk.FailSafe)
}

func TestDetectAuxIntentsOrder(t *testing.T) {
	c := newTestClassifier(classifierFixture{})

	tests := []struct {
		text string
		want []model.AuxIntent
	}{
		{"招标文件怎么写", []model.AuxIntent{}},
		{"推荐几款性价比高的服务器", []model.AuxIntent{model.AuxEnhancedSearch}},
		{"请给出TOP 5 供应商", []model.AuxIntent{model.AuxEnhancedSearch}},
		{"请一步步推导评分", []model.AuxIntent{model.AuxDeepReasoning}},
		{
			"请对比两家供应商并详细说明，虽然A报价低，但是质量一般；采购人应当公开信息，不得隐瞒",
			[]model.AuxIntent{model.AuxEnhancedSearch, model.AuxUncertaintyDeclare, model.AuxDeepReasoning},
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetectAuxIntents(tt.text))
		})
	}
}

func TestConflictRatio(t *testing.T) {
	assert.Zero(t, ConflictRatio("普通问题"))
	assert.InDelta(t, 0.3, ConflictRatio("虽然价格高，但是质量好"), 1e-9)
	assert.InDelta(t, 0.8, ConflictRatio("虽然价格高，但是质量好；应当公开，不得隐瞒"), 1e-9)
	assert.InDelta(t, 1.0, ConflictRatio("虽然A，但是B；应当C，不得D；前者E后者F；30%不同于50%"), 1e-9)
}

func TestParseCoreIntent(t *testing.T) {
	tests := []struct {
		in   string
		want model.CoreIntent
		ok   bool
	}{
		{"GenerateBid", model.IntentGenerateBid, true},
		{"  evaluatebid\n", model.IntentEvaluateBid, true},
		{"\"RiskAlert\"", model.IntentRiskAlert, true},
		{"法规条款解读", model.IntentLawInterpret, true},
		{"意图：商品对比与选型。", model.IntentProductCompare, true},
		{"", "", false},
		{"chat", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCoreIntent(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtractFeaturesNormalized(t *testing.T) {
	c := newTestClassifier(classifierFixture{})

	f := c.ExtractFeatures("依据政府采购法第二十条，招标预算为100万")
	sum := 0.0
	for _, v := range f {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, f["law_ref"], 0.0)
	assert.Greater(t, f["term_"+CategoryCoreTerms], f["term_law_terms"])

	empty := c.ExtractFeatures("你好")
	for k, v := range empty {
		assert.Zero(t, v, k)
	}
}

func TestConfidenceCappedAtOne(t *testing.T) {
	c := newTestClassifier(classifierFixture{})
	got := c.Classify(context.Background(), ClassifyRequest{
		Text: "围标、串标、恶意低价、资质造假，请对比并详细说明",
	})
	assert.Equal(t, 1.0, got.Result.ConfidenceScore)
}
