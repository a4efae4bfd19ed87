package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/agent"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/bridge"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/config"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/llm"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/sandbox"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/session"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/store"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/window"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/workspace"
)

// app holds the wired engine shared by the serve and chat commands.
type app struct {
	cfg      *config.Config
	repo     *store.SQLiteStore
	sessions *session.Manager
	surface  *bridge.SurfaceHub
	shell    *window.Hub
	windows  *window.Controller
	model    *llm.OpenAIModel
	service  *agent.Service

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.repo, err = store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, a.repo.Close)
	if err := a.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	a.sessions, err = session.NewManager(ctx, a.repo)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.WorkspaceDir)
	if err != nil {
		return nil, err
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}
	if d, ok := runner.(*sandbox.DockerRunner); ok {
		a.closers = append(a.closers, func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(d.Stop(stopCtx), d.Close())
		})
	}

	a.surface = bridge.NewSurfaceHub(cfg.BridgeTimeout, cfg.FrontendURL, cfg.IsDevelopment())
	a.shell = window.NewHub(cfg.SSE.ReplayQueueSize, cfg.SSE.KeepaliveInterval, cfg.SSE.RetryDelay)
	a.windows = window.NewController(a.shell)

	execLog := timeline.NewExecLog(cfg.ExecLogSize)
	caps := &tools.Capabilities{
		Files:     ws,
		Processes: runner,
		Windows:   a.windows,
		Browser:   a.surface.Bridge(),
		Memory:    store.NewMemoryKV(a.repo),
		Log:       execLog,
	}
	dispatcher := tools.NewDispatcher(tools.NewDefaultRegistry(), cfg.ToolTimeout)

	a.model, err = llm.NewOpenAIModel(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize model: %w", err)
	}
	slog.Info("Model initialized", "model", a.model.Name())

	controller := agent.NewController(a.model, dispatcher, caps, agent.Config{
		MaxIterations:          cfg.Agent.MaxIterations,
		MaxConsecutiveFailures: cfg.Agent.MaxConsecutiveFailures,
		HistoryWindow:          cfg.Agent.HistoryWindow,
		Instructions:           cfg.Agent.Instructions,
	})

	convLog, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize conversation logger: %w", err)
	}

	a.service = agent.NewService(controller, a.sessions, execLog, convLog)
	return a, nil
}

// newRunner picks the Docker sandbox when an image is configured and the
// host shell otherwise.
func newRunner(cfg *config.Config) (tools.ProcessRunner, error) {
	if cfg.Sandbox.Image == "" {
		slog.Warn("SANDBOX_IMAGE not set, commands run on the host inside the workspace", "workspace", cfg.WorkspaceDir)
		return sandbox.NewLocalRunner(cfg.WorkspaceDir, cfg.ToolTimeout, cfg.Sandbox.OutputLimit)
	}
	return sandbox.NewDockerRunner(sandbox.DockerConfig{
		Image:          cfg.Sandbox.Image,
		Runtime:        cfg.Sandbox.Runtime,
		WorkspaceDir:   cfg.WorkspaceDir,
		MemoryMB:       cfg.Sandbox.MemoryMB,
		NanoCPUs:       cfg.Sandbox.NanoCPUs,
		DisableNetwork: cfg.Sandbox.DisableNetwork,
		Timeout:        cfg.ToolTimeout,
		OutputLimit:    cfg.Sandbox.OutputLimit,
	})
}

// Close aborts running turns and releases resources in reverse order.
func (a *app) Close() {
	if a.service != nil {
		a.service.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("Failed to release resource", "error", err)
		}
	}
}
