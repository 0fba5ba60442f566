package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/goatkit/goatchat/internal/agents"
	"github.com/goatkit/goatchat/internal/ai"
	v1 "github.com/goatkit/goatchat/internal/api/v1"
	"github.com/goatkit/goatchat/internal/chat"
	"github.com/goatkit/goatchat/internal/config"
	"github.com/goatkit/goatchat/internal/database"
	"github.com/goatkit/goatchat/internal/messaging"
	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/queue"
	"github.com/goatkit/goatchat/internal/realtime"
	"github.com/goatkit/goatchat/internal/repository"
	"github.com/goatkit/goatchat/internal/runner"
	"github.com/goatkit/goatchat/internal/runner/tasks"
)

// publisherFunc adapts a closure to the Publisher interfaces. The hub is
// constructed after the services that publish through it, so publishing is
// late-bound.
type publisherFunc func(models.EventEnvelope)

func (f publisherFunc) Publish(env models.EventEnvelope) { f(env) }

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(configPath string) error {
	logger := log.New(log.Writer(), "[GOATCHAT] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bridge *realtime.RedisBridge
	var hubOpts []realtime.HubOption
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		bridge = realtime.NewRedisBridge(client)
		hubOpts = append(hubOpts, realtime.WithBridge(bridge))
	}

	sessions := repository.NewSessionRepository(db)
	messages := repository.NewMessageRepository(db)
	registry := agents.NewRegistry()
	waiting := queue.NewManager()
	evaluator := ai.NewRuleEvaluator()

	var hub *realtime.Hub
	publish := publisherFunc(func(env models.EventEnvelope) {
		if hub != nil {
			hub.Publish(env)
		}
	})

	router := messaging.NewRouter(sessions, messages, publish)
	service := chat.NewService(sessions, router, waiting, registry, evaluator, publish,
		chat.WithAITimeout(cfg.Chat.AITurnTimeout))
	restored, err := service.RestoreQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore waiting queue: %w", err)
	}
	if restored > 0 {
		logger.Printf("restored %d waiting sessions into the queue", restored)
	}

	hub = realtime.NewHub(v1.NewMembershipResolver(service), hubOpts...)
	typing := realtime.NewTypingTracker(cfg.Chat.TypingTTL, hub.Publish)

	go hub.Run(ctx)
	go typing.Run(ctx)
	if bridge != nil {
		go bridge.Run(ctx, hub)
	}

	tasksRunner := runner.New()
	if cfg.Runner.SessionReaper.Enabled {
		if err := tasksRunner.Register(tasks.NewChatReaperTask(service)); err != nil {
			return fmt.Errorf("failed to register reaper task: %w", err)
		}
	}
	tasksRunner.Start()
	defer tasksRunner.Stop()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	v1.NewAPIRouter(service, router, registry, hub, typing).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
