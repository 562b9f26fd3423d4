// Package app wires configuration into a ready chat pipeline.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/adapters/documents"
	"github.com/0xcro3dile/shodobot-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/shodobot-go/internal/adapters/httpclient"
	"github.com/0xcro3dile/shodobot-go/internal/adapters/llm"
	"github.com/0xcro3dile/shodobot-go/internal/adapters/workspace"
	"github.com/0xcro3dile/shodobot-go/internal/config"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
	"github.com/0xcro3dile/shodobot-go/internal/domain/router"
	"github.com/0xcro3dile/shodobot-go/internal/domain/usecases"
	"github.com/0xcro3dile/shodobot-go/internal/metrics"
)

// App holds the long-lived components shared by every command.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Router   *router.Router
	Pipeline *usecases.ChatPipeline
	reloader *filewatcher.KeywordReloader
}

// New builds the pipeline and its adapters from cfg. Adapters are created
// lazily on the first turn that needs them.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kw, err := config.LoadKeywords(cfg.Router.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("loading router keywords: %w", err)
	}
	r := router.New(kw)

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	backoffMin, backoffMax := cfg.GetBackoff()
	clientOpt := httpclient.Options{
		Retry:              cfg.HTTPClient.Retry,
		BackoffMin:         backoffMin,
		BackoffMax:         backoffMax,
		MaxConsecutiveFail: cfg.HTTPClient.MaxConsecutiveFailures,
		CircuitOpen:        cfg.GetCircuitOpen(),
	}

	factories := usecases.Factories{
		Completion: func() (ports.CompletionService, error) {
			return llm.New(cfg.LLM, cfg.GetLLMTimeout())
		},
		Workspace: func() ports.WorkspaceSearcher {
			opt := clientOpt
			opt.Timeout = cfg.GetNotionTimeout()
			client := httpclient.New(opt, logger.Named("notion"))
			return workspace.NewNotionSearcher(workspace.Options{
				Enabled: cfg.Notion.Enabled,
				APIKey:  cfg.Notion.APIKey,
				BaseURL: cfg.Notion.BaseURL,
				Version: cfg.Notion.Version,
				Timeout: cfg.GetNotionTimeout(),
			}, client, logger.Named("notion"))
		},
		Documents: func() ports.DocumentRetriever {
			opt := clientOpt
			opt.Timeout = cfg.GetLeannTimeout()
			client := httpclient.New(opt, logger.Named("leann"))
			return documents.NewLeannRetriever(documents.Options{
				Enabled:       cfg.Leann.Enabled,
				BaseURL:       cfg.Leann.APIURL,
				SearchTimeout: cfg.GetLeannTimeout(),
				AskTimeout:    cfg.GetLeannAskTimeout(),
				ProbeTimeout:  cfg.GetLeannProbeTimeout(),
				Threshold:     cfg.Leann.Threshold,
				ContextLimit:  cfg.Leann.ContextLimit,
			}, client, logger.Named("leann"))
		},
	}

	pipeline := usecases.NewChatPipeline(usecases.ChatOptions{
		MaxHistorySize:  cfg.Agent.MaxHistorySize,
		Persona:         cfg.Agent.Persona,
		OnFailure:       cfg.Agent.OnFailure,
		WorkspaceErrors: cfg.Agent.WorkspaceErrors,
		WorkspaceLimit:  cfg.Agent.WorkspaceLimit,
		DocumentLimit:   cfg.Agent.DocumentLimit,
	}, factories, r, rec, logger.Named("pipeline"))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Router:   r,
		Pipeline: pipeline,
	}

	if cfg.Router.Watch && cfg.Router.KeywordsFile != "" {
		a.reloader, err = filewatcher.NewKeywordReloader(cfg.Router.KeywordsFile, r, logger.Named("keywords"))
		if err != nil {
			return nil, fmt.Errorf("watching router keywords: %w", err)
		}
	}
	return a, nil
}

// Watch runs the keyword reloader until ctx is done. It returns at once
// when hot reload is disabled.
func (a *App) Watch(ctx context.Context) error {
	if a.reloader == nil {
		return nil
	}
	return a.reloader.Run(ctx)
}

// Close tears down the knowledge-source adapters and the keyword watcher.
func (a *App) Close() error {
	var stopErr error
	if a.reloader != nil {
		stopErr = a.reloader.Stop()
	}
	return errors.Join(a.Pipeline.Close(), stopErr)
}
