package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"procure-agent/config"
	"procure-agent/internal/aiclient"
	"procure-agent/internal/llm"
	"procure-agent/logging"
	"procure-agent/service"
)

// core is the part of the process shared by serve and classify.
type core struct {
	cfg          *config.Config
	viper        *viper.Viper
	logger       zerolog.Logger
	settings     *config.Settings
	providers    *llm.Registry
	providersErr error
	aiClient     *aiclient.Client
	policy       *service.PolicyMonitor
	decisions    *service.DecisionLayer
}

func buildCore(path string) (*core, error) {
	cfg, v, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging)
	settings := config.NewSettings(cfg)

	providers, providersErr := llm.NewRegistry(cfg)
	if providersErr != nil {
		logger.Warn().Err(providersErr).Msg("[Main] 模型提供商初始化失败")
	}

	lexicon, err := service.LoadDomainLexicon(cfg.Intent.DomainDictPath)
	if err != nil {
		logger.Warn().Err(err).Msg("[Main] 领域词典加载失败，使用内置风险关键词")
	}
	logger.Info().Int("terms", lexicon.TermCount()).Msg("[Main] 领域词典加载完成")

	aiClient := aiclient.NewClient(cfg.Sidecar.BaseURL,
		aiclient.WithTimeout(cfg.Sidecar.Timeout),
		aiclient.WithOCR(cfg.Sidecar.OCREndpoint, cfg.Sidecar.OCRAPIKey),
		aiclient.WithAttachmentDir(cfg.Sidecar.AttachmentDir),
		aiclient.WithPolicyMonitor(cfg.Sidecar.PolicyEndpoint, cfg.Sidecar.PolicyAPIKey),
	)

	policy, err := service.NewPolicyMonitor(aiClient, cfg.Sidecar.PolicyCron, cfg.Sidecar.Timeout,
		logging.Component(logger, "policy"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	var labeler service.LabelClassifier
	if providers != nil {
		labeler = service.NewProviderLabeler(func() (llm.Provider, error) {
			name := cfg.Intent.ClassifierProvider
			if name == "" {
				name = settings.Snapshot().ModelProvider
			}
			return providers.Get(name)
		}, 64)
	}

	classifier := service.NewIntentClassifier(service.ClassifierDeps{
		Lexicon:    lexicon,
		Labeler:    labeler,
		LocalRisk:  service.NewLocalRiskAssessor(cfg.Intent.RiskRulesPath, logging.Component(logger, "risk")),
		RemoteRisk: service.NewRemoteRiskAssessor(labeler),
		OCR:        aiClient,
		Policy:     policy,
	}, service.ClassifierOptions{
		AuditSeasonMonths:        cfg.Intent.AuditSeasonMonths,
		ConfusionThreshold:       cfg.Intent.ConfusionThreshold,
		AdjustOnPolicyUpdateOnly: cfg.Intent.AdjustOnPolicyUpdateOnly,
	}, logging.Component(logger, "intent"))

	return &core{
		cfg:          cfg,
		viper:        v,
		logger:       logger,
		settings:     settings,
		providers:    providers,
		providersErr: providersErr,
		aiClient:     aiClient,
		policy:       policy,
		decisions:    service.NewDecisionLayer(classifier, logging.Component(logger, "decision")),
	}, nil
}
