package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentsocial/agentsocial/internal/agent/credentials"
	"github.com/agentsocial/agentsocial/internal/agent/executor"
	"github.com/agentsocial/agentsocial/internal/agent/registry"
	"github.com/agentsocial/agentsocial/internal/api"
	"github.com/agentsocial/agentsocial/internal/bot"
	"github.com/agentsocial/agentsocial/internal/common/config"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/events/bus"
	"github.com/agentsocial/agentsocial/internal/lifecycle"
	"github.com/agentsocial/agentsocial/internal/lifecycle/store"
	"github.com/agentsocial/agentsocial/internal/platform/feishu"
	"github.com/agentsocial/agentsocial/internal/queue"
	"github.com/agentsocial/agentsocial/internal/workspace"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting AgentSocial service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Connect the event bus (in-memory when no NATS URL is configured)
	eventBus, err := bus.New(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect event bus", zap.Error(err))
	}
	defer eventBus.Close()

	// 4. Open the command history store
	var commandStore store.Store
	if cfg.Store.Path != "" {
		commandStore, err = store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			log.Fatal("Failed to open command store", zap.Error(err))
		}
	} else {
		commandStore = store.NewMemoryStore()
	}
	defer commandStore.Close()

	// 5. Load the agent registry and select the configured profile
	reg := registry.NewRegistry(log)
	reg.LoadDefaults()
	profile, err := reg.Get(cfg.Agent.Type)
	if err != nil {
		log.Fatal("Unknown agent type", zap.String("type", cfg.Agent.Type), zap.Error(err))
	}
	if cfg.Agent.Executable != "" {
		profile.Executable = cfg.Agent.Executable
	}
	log.Info("Loaded agent registry",
		zap.Int("agent_types", len(reg.List())),
		zap.String("agent", profile.ID))

	// 6. Workspace isolation and credential projection
	resolver := workspace.NewResolver(cfg.Sessions.Root, log)
	credentialDir := cfg.Agent.CredentialDir
	if credentialDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal("Cannot determine home directory", zap.Error(err))
		}
		credentialDir = filepath.Join(home, profile.StateDirName)
	}
	projector := workspace.NewProjector(credentialDir, profile.StateDirName, profile.CredentialArtifacts, log)

	// 7. Agent executor and per-conversation queue
	exec := executor.New(profile, resolver, projector, cfg.Agent.MaxRunDurationTime(), log)
	exec.UseEnvCredentials(credentials.NewEnvProvider("AGENTSOCIAL_"))
	taskQueue := queue.New(exec, log)

	// 8. Command lifecycle manager
	manager := lifecycle.NewManager(taskQueue, exec, commandStore, eventBus, log)
	hub := bot.NewHub(log)
	manager.SetListener(hub)

	// 9. One bot per configured chat app
	g, gctx := errgroup.WithContext(ctx)
	for _, app := range cfg.Apps {
		client := feishu.NewClient(app.AppID, app.AppSecret, log)
		listener := feishu.NewEventListener(client, log)
		b := bot.New(client, listener, manager, resolver, app.ProjectPath, log)
		hub.Register(b)
		g.Go(func() error {
			return b.Run(gctx)
		})
	}
	if len(cfg.Apps) == 0 {
		log.Warn("No chat apps configured, serving the HTTP API only")
	}

	// 10. Operational HTTP API
	router := api.NewRouter(commandStore, exec, taskQueue, eventBus, reg, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	<-ctx.Done()
	log.Info("Shutting down AgentSocial service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("Bot shutdown error", zap.Error(err))
	}

	taskQueue.Close()
	exec.Dispose(shutdownCtx)

	log.Info("AgentSocial service stopped")
}
