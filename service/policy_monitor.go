package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"procure-agent/internal/aiclient"
)

// PolicyChecker is the regulation-update feed.
type PolicyChecker interface {
	PolicyMonitorEnabled() bool
	CheckPolicyUpdates(ctx context.Context, lastCheck time.Time) (*aiclient.PolicyUpdate, error)
}

// PolicyMonitor polls the policy feed on a cron schedule and raises a flag
// when regulations changed. The classifier reads the flag per request.
type PolicyMonitor struct {
	cron    *cron.Cron
	checker PolicyChecker
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	updated atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	summary   string
}

func NewPolicyMonitor(checker PolicyChecker, spec string, timeout time.Duration, logger zerolog.Logger) (*PolicyMonitor, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := &PolicyMonitor{
		cron:    cron.New(),
		checker: checker,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
	m.lastCheck = m.now()
	if _, err := m.cron.AddFunc(spec, m.runCheck); err != nil {
		return nil, fmt.Errorf("invalid policy cron %q: %w", spec, err)
	}
	return m, nil
}

func (m *PolicyMonitor) Start() {
	if m.checker == nil || !m.checker.PolicyMonitorEnabled() {
		m.logger.Info().Msg("[PolicyMonitor] 未配置政策监控服务，跳过启动")
		return
	}
	m.cron.Start()
	m.logger.Info().Msg("[PolicyMonitor] 政策监控已启动")
}

func (m *PolicyMonitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *PolicyMonitor) PolicyUpdated() bool {
	return m.updated.Load()
}

// Summary returns the text of the most recent update, if any.
func (m *PolicyMonitor) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *PolicyMonitor) runCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.Check(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("[PolicyMonitor] 政策更新检查失败")
	}
}

// Check runs one poll. The flag mirrors the latest successful poll; a failed
// poll leaves it unchanged.
func (m *PolicyMonitor) Check(ctx context.Context) error {
	if m.checker == nil {
		return nil
	}
	m.mu.Lock()
	since := m.lastCheck
	m.mu.Unlock()

	now := m.now()
	upd, err := m.checker.CheckPolicyUpdates(ctx, since)
	if err != nil {
		return err
	}

	hasUpdate := upd != nil && upd.HasUpdate
	m.mu.Lock()
	m.lastCheck = now
	if hasUpdate {
		m.summary = upd.UpdateSummary
	} else {
		m.summary = ""
	}
	m.mu.Unlock()

	if m.updated.Swap(hasUpdate) && !hasUpdate {
		m.logger.Info().Msg("[PolicyMonitor] 政策更新窗口结束")
	}
	if hasUpdate {
		m.logger.Info().Str("summary", upd.UpdateSummary).Msg("[PolicyMonitor] 检测到政策法规更新")
	}
	return nil
}
