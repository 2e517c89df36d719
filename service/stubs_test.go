package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"procure-agent/internal/aiclient"
	"procure-agent/internal/llm"
	"procure-agent/model"
)

type stubProvider struct {
	name    string
	calls   atomic.Int32
	respond func(call int) (any, error)

	mu       sync.Mutex
	requests []*llm.Request
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(_ context.Context, req *llm.Request) (any, error) {
	n := int(p.calls.Add(1))
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return p.respond(n)
}

func (p *stubProvider) lastRequest() *llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func fixedAnswer(name string, answer any) *stubProvider {
	return &stubProvider{name: name, respond: func(int) (any, error) { return answer, nil }}
}

type stubLabeler struct {
	label string
	err   error
	panic bool
	calls atomic.Int32
}

func (l *stubLabeler) ClassifyLabel(context.Context, string, string) (string, error) {
	l.calls.Add(1)
	if l.panic {
		panic("labeler exploded")
	}
	return l.label, l.err
}

type stubPolicy bool

func (p stubPolicy) PolicyUpdated() bool { return bool(p) }

type stubSearcher struct {
	docs []model.RetrievedDocument
	err  error
}

func (s stubSearcher) Search(context.Context, aiclient.SearchRequest) ([]model.RetrievedDocument, error) {
	return s.docs, s.err
}

var errProvider = errors.New("provider unavailable")

func fixedClock(month time.Month) func() time.Time {
	return func() time.Time {
		return time.Date(2024, month, 15, 10, 0, 0, 0, time.UTC)
	}
}

func testRiskRules() RiskRules {
	return RiskRules{
		RiskWeights: map[model.RiskLevel]float64{
			model.RiskHigh:   0.8,
			model.RiskMedium: 0.5,
			model.RiskLow:    0.2,
		},
		AbnormalPatterns: []AbnormalPattern{
			{MatchCondition: "围标|串标|陪标", RiskLevel: model.RiskHigh},
			{MatchCondition: "恶意低价|低于成本", RiskLevel: model.RiskMedium},
			{MatchCondition: "报价.{0,10}(异常|雷同|接近)", RiskLevel: model.RiskLow},
		},
		ComplianceRules: []ComplianceRule{
			{Name: "评标委员会组成", CheckPoints: []string{"评标委员会", "专家", "随机抽取"}},
		},
	}
}
