package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"procure-agent/config"
	"procure-agent/dao"
	"procure-agent/internal/llm"
	"procure-agent/logging"
	"procure-agent/metrics"
	"procure-agent/model"
	"procure-agent/utils"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrEmptyInput       = errors.New("empty input")
)

// GenerationError is the only failure GenerateResponse returns once all
// attempts are used up.
type GenerationError struct {
	Attempts int
	Last     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Last}
}

const webSearchPrompt = "当知识库文档不足以回答问题时，你可以使用联网搜索工具获取最新的政策与市场信息，并注明来源。"

// ConversationStore is the persistence the chat flow needs.
type ConversationStore interface {
	GetMessages(ctx context.Context, conversationID, userScope string) ([]model.Message, error)
	AppendMessage(ctx context.Context, conversationID, userScope, content string, isUser bool) (model.Message, error)
}

type ChatOptions struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	PersistTimeout time.Duration
}

func ChatOptionsFromConfig(c config.ChatConfig) ChatOptions {
	return ChatOptions{
		MaxAttempts:    c.MaxAttempts,
		RetryBaseDelay: c.RetryBaseDelay,
		RequestTimeout: c.RequestTimeout,
		PersistTimeout: c.PersistTimeout,
	}
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay < 0 {
		o.RetryBaseDelay = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 10 * time.Second
	}
	return o
}

// ChatService orchestrates one answer per request: decide, retrieve,
// assemble the prompt, call the model and retry on failure.
type ChatService struct {
	providers *llm.Registry
	settings  *config.Settings
	decisions *DecisionLayer
	retrieval *RetrievalAugmenter
	store     ConversationStore
	opts      ChatOptions
	logger    zerolog.Logger

	persistWG sync.WaitGroup
}

type ChatDeps struct {
	Providers *llm.Registry
	Settings  *config.Settings
	Decisions *DecisionLayer
	Retrieval *RetrievalAugmenter
	Store     ConversationStore
}

// NewChatService fails when the active provider cannot be resolved, so a
// missing credential surfaces at startup instead of on the first request.
func NewChatService(deps ChatDeps, opts ChatOptions, logger zerolog.Logger) (*ChatService, error) {
	if deps.Providers == nil || deps.Settings == nil {
		return nil, fmt.Errorf("%w: chat service requires providers and settings", llm.ErrMissingCredentials)
	}
	active := deps.Settings.Snapshot().ModelProvider
	if _, err := deps.Providers.Get(active); err != nil {
		return nil, fmt.Errorf("%w: provider %q: %v", llm.ErrMissingCredentials, active, err)
	}
	return &ChatService{
		providers: deps.Providers,
		settings:  deps.Settings,
		decisions: deps.Decisions,
		retrieval: deps.Retrieval,
		store:     deps.Store,
		opts:      opts.withDefaults(),
		logger:    logger,
	}, nil
}

type generateInput struct {
	text        string
	history     []llm.Message
	userScope   string
	attachments []model.Attachment
}

// GenerateResponse produces the answer text for userInput. Each attempt
// re-reads settings and re-runs the whole pipeline.
func (s *ChatService) GenerateResponse(ctx context.Context, userInput string, history []model.Message, userScope string, attachments ...model.Attachment) (string, error) {
	if strings.TrimSpace(userInput) == "" && len(attachments) == 0 {
		return "", ErrEmptyInput
	}
	in := generateInput{
		text:        userInput,
		history:     FormatHistory(history),
		userScope:   userScope,
		attachments: attachments,
	}

	start := time.Now()
	var last error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		answer, provider, err := s.attempt(ctx, in)
		if err == nil {
			metrics.GenerationAttempts.WithLabelValues(provider, "success").Inc()
			metrics.GenerationLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
			s.logger.Info().
				Str("provider", provider).
				Int("attempt", attempt).
				Dur("elapsed", logging.Since(start)).
				Msg("[ChatService] 回答生成成功")
			return answer, nil
		}

		last = err
		metrics.GenerationAttempts.WithLabelValues(provider, "failure").Inc()
		s.logger.Warn().
			Err(err).
			Str("provider", provider).
			Int("attempt", attempt).
			Int("max_attempts", s.opts.MaxAttempts).
			Msg("[ChatService] 回答生成失败")

		if attempt == s.opts.MaxAttempts {
			break
		}
		delay := s.opts.RetryBaseDelay * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return "", &GenerationError{Attempts: attempt, Last: ctx.Err()}
		case <-time.After(delay):
		}
	}

	s.logger.Error().Err(last).Int("attempts", s.opts.MaxAttempts).Msg("[ChatService] 重试次数已用尽")
	return "", &GenerationError{Attempts: s.opts.MaxAttempts, Last: last}
}

func (s *ChatService) attempt(parent context.Context, in generateInput) (string, string, error) {
	ctx, cancel := context.WithTimeout(parent, s.opts.RequestTimeout)
	defer cancel()

	snap := s.settings.Snapshot()
	provider, err := s.providers.Get(snap.ModelProvider)
	if err != nil {
		return "", snap.ModelProvider, err
	}

	// classification and retrieval are independent and both finish before
	// the prompt is assembled
	var (
		decision  *Decision
		retrieved Retrieval
		g         errgroup.Group
	)
	if snap.UseIntentDetection && s.decisions != nil {
		g.Go(func() error {
			d := s.decisions.Decide(ctx, ClassifyRequest{
				Text:        in.text,
				Attachments: in.attachments,
				RiskMode:    snap.RiskMode,
			})
			decision = &d
			return nil
		})
	}
	if snap.UseRetrieval && in.userScope != "" {
		g.Go(func() error {
			retrieved = s.retrieval.Fetch(ctx, in.text, in.userScope)
			return nil
		})
	}
	_ = g.Wait()

	query := in.text
	if decision != nil {
		query = decision.Query
		if decision.Reasoning != "" {
			query += "\n\n推理过程：\n" + decision.Reasoning
		}
	}
	query = s.retrieval.Construct(query, retrieved.Docs)

	raw, err := provider.Complete(ctx, &llm.Request{
		SystemPrompt: systemPrompt(snap),
		History:      in.history,
		Query:        query,
	})
	if err != nil {
		return "", provider.Name(), err
	}
	answer, err := extractAnswer(raw)
	if err != nil {
		return "", provider.Name(), err
	}
	answer = utils.NormalizeAnswer(answer)
	if answer == "" {
		return "", provider.Name(), ErrEmptyAnswer
	}
	return answer, provider.Name(), nil
}

func systemPrompt(snap config.RuntimeSettings) string {
	prompt := strings.TrimSpace(snap.SystemPrompt)
	if prompt == "" {
		prompt = config.DefaultSystemPrompt
	}
	if snap.UseWebSearch {
		prompt += "\n" + webSearchPrompt
	}
	return prompt
}

// FormatHistory converts stored messages to role-tagged model messages,
// dropping empty and whitespace-only entries.
func FormatHistory(history []model.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := llm.RoleAssistant
		if m.IsUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// HandleChat answers one message of a stored conversation. The exchange is
// saved in the background after the answer is returned.
func (s *ChatService) HandleChat(ctx context.Context, conversationID string, req model.ChatRequest) (*model.ChatResponse, error) {
	history, err := s.History(ctx, conversationID, req.UserID)
	if err != nil {
		if errors.Is(err, dao.ErrForbidden) || errors.Is(err, dao.ErrInvalidParam) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("[ChatService] 读取会话历史失败，按空历史处理")
		history = nil
	}

	answer, err := s.GenerateResponse(ctx, req.Message, history, req.UserID, req.Attachments...)
	if err != nil {
		return nil, err
	}

	s.persistAsync(conversationID, req.UserID, questionText(req), answer)
	return &model.ChatResponse{Response: answer}, nil
}

// History returns the stored messages, or none when no store is configured.
func (s *ChatService) History(ctx context.Context, conversationID, userScope string) ([]model.Message, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.GetMessages(ctx, conversationID, userScope)
}

// questionText is what gets stored for the user turn; attachment-only
// requests are recorded by file name.
func questionText(req model.ChatRequest) string {
	if strings.TrimSpace(req.Message) != "" || len(req.Attachments) == 0 {
		return req.Message
	}
	names := make([]string, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		names = append(names, filepath.Base(att.Path))
	}
	return "[附件] " + strings.Join(names, ", ")
}

func (s *ChatService) persistAsync(conversationID, userScope, question, answer string) {
	if s.store == nil {
		return
	}
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
		defer cancel()

		if _, err := s.store.AppendMessage(ctx, conversationID, userScope, question, true); err != nil {
			s.persistFailed(conversationID, err)
			return
		}
		if _, err := s.store.AppendMessage(ctx, conversationID, userScope, answer, false); err != nil {
			s.persistFailed(conversationID, err)
		}
	}()
}

func (s *ChatService) persistFailed(conversationID string, err error) {
	metrics.PersistFailures.Inc()
	s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("[ChatService] 保存会话消息失败")
}

// Wait blocks until background persistence has finished.
func (s *ChatService) Wait() {
	s.persistWG.Wait()
}
