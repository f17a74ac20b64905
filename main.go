package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "auratask/app/configs"
	"auratask/app/core/conversation"
	"auratask/app/core/extraction"
	"auratask/app/core/interaction/cli"
	"auratask/app/core/interaction/gateway"
	httpserver "auratask/app/core/interaction/http"
	"auratask/app/core/interaction/telegram"
	"auratask/app/core/orchestrator/command"
	"auratask/app/core/orchestrator/db"
	"auratask/app/core/orchestrator/taskstore"
	"auratask/app/core/queue"
	"auratask/app/core/scheduler"
	"auratask/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("AuraTask starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	database, err := db.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	store := taskstore.NewStore(database)
	commands := command.NewExecutor(store)

	completer := extraction.NewClient(extraction.ClientConfig{
		APIKey:      os.Getenv("GROQ_API_KEY"),
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		JSONMode:    cfg.Completion.JSONMode,
		Timeout:     time.Duration(cfg.Completion.TimeoutSec) * time.Second,
	})

	assistant := conversation.NewService(cfg.Agent.Name, cfg.Agent.Greeting, completer, store, commands)

	gw := gateway.NewGateway(assistant)

	execQueue := queue.New(64)
	gw.SetExecutionQueue(execQueue, gateway.QueueOptions{
		Enabled:        true,
		EnqueueTimeout: 5 * time.Second,
		AttemptTimeout: time.Duration(cfg.Completion.TimeoutSec+10) * time.Second,
	})

	cliChannel := cli.NewCLIChannel(cfg.Agent.CLIUserID, cfg.Agent.Name)
	gw.RegisterChannel(cliChannel)

	// Mirror the web client's live list in the terminal.
	unsubscribe := store.Subscribe(cfg.Agent.CLIUserID, func(items []taskstore.Task) {
		lines := make([]string, 0, len(items))
		for _, t := range items {
			lines = append(lines, command.FormatTask(t))
		}
		cliChannel.ShowTasks(lines)
	})
	defer unsubscribe()

	if cfg.Telegram.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			logger.Error("Telegram enabled but TELEGRAM_BOT_TOKEN is not set, skipping channel")
		} else {
			gw.RegisterChannel(telegram.NewChannel(telegram.Config{
				BotToken:     token,
				PollInterval: time.Duration(cfg.Telegram.PollIntervalSec) * time.Second,
			}))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := execQueue.Start(ctx, 1); err != nil {
		logger.Error("Failed to start queue: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := execQueue.Stop(3 * time.Second); err != nil {
			logger.Error("Queue shutdown timeout: %v", err)
		}
	}()

	jobScheduler := scheduler.New()
	registerJobs(jobScheduler, assistant, database, cfg)
	if err := jobScheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobScheduler.Stop(3 * time.Second); err != nil {
			logger.Error("Scheduler shutdown timeout: %v", err)
		}
	}()

	apiServer := httpserver.NewServer(cfg.Server.Port, completer, store)
	apiServer.SetStatusProvider(func(context.Context) map[string]interface{} {
		return map[string]interface{}{
			"gateway":  gw.Health(),
			"jobs":     jobScheduler.Status(),
			"sessions": assistant.SessionCount(),
		}
	})
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("Gateway crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("AuraTask is ready to serve.")
	fmt.Println("- CLI Interface:  Interactive")
	fmt.Printf("- HTTP Interface: http://localhost:%d/api/process-task (POST)\n", cfg.Server.Port)
	fmt.Printf("- Task API:       http://localhost:%d/api/tasks (GET)\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. AuraTask shutting down...", sig)
	cancel()
}

func registerJobs(s *scheduler.Scheduler, assistant *conversation.Service, database *db.DB, cfg config.Config) {
	sweepInterval := time.Duration(cfg.Session.SweepIntervalMin) * time.Minute
	idleTTL := time.Duration(cfg.Session.IdleTTLMin) * time.Minute
	if err := s.Register(scheduler.JobSpec{
		Name:     "session-sweep",
		Interval: sweepInterval,
		Timeout:  10 * time.Second,
		Run: func(context.Context) error {
			if removed := assistant.SweepIdle(idleTTL); removed > 0 {
				logger.Info("[Scheduler] Swept %d idle sessions", removed)
			}
			return nil
		},
	}); err != nil {
		logger.Error("Failed to register session-sweep job: %v", err)
	}

	if err := s.Register(scheduler.JobSpec{
		Name:     "wal-checkpoint",
		Interval: 15 * time.Minute,
		Timeout:  30 * time.Second,
		Run: func(context.Context) error {
			return database.Checkpoint()
		},
	}); err != nil {
		logger.Error("Failed to register wal-checkpoint job: %v", err)
	}
}
