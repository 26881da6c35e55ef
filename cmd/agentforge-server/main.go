package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	server "github.com/kazz187/agentforge/internal"
	"github.com/kazz187/agentforge/internal/config"
	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/internal/metrics"
	"github.com/kazz187/agentforge/internal/pushnotification"
	"github.com/kazz187/agentforge/internal/scheduler"
	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/internal/workflow"
	"github.com/kazz187/agentforge/pkg/clog"
	"github.com/kazz187/agentforge/pkg/githost"
	"github.com/kazz187/agentforge/pkg/llm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("agentforge-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	setupLogger(config.BaseEnvFromEnv(env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	repos, err := newRepositories(ctx, config.StorageEnvFromEnv(env))
	if err != nil {
		return err
	}
	defer repos.close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	// Adapters
	llmEnv := config.LLMEnvFromEnv(env)
	textGen, err := llm.NewClient(llm.Config{
		Primary: llm.ProviderConfig{
			Name:    "primary",
			APIKey:  llmEnv.PrimaryAPIKey,
			BaseURL: llmEnv.PrimaryBaseURL,
			Model:   llmEnv.PrimaryModel,
		},
		Secondary: llm.ProviderConfig{
			Name:    "secondary",
			APIKey:  llmEnv.SecondaryAPIKey,
			BaseURL: llmEnv.SecondaryBaseURL,
			Model:   llmEnv.SecondaryModel,
		},
		MaxTokens: llmEnv.MaxTokens,
	})
	if err != nil {
		return err
	}
	githubEnv := config.GitHubEnvFromEnv(env)
	gh, err := githost.New(githost.Config{
		Token:  githubEnv.Token,
		Owner:  githubEnv.Owner,
		Repo:   githubEnv.Repo,
		APIURL: githubEnv.APIURL,
	})
	if err != nil {
		return err
	}

	// Engine
	schedEnv := config.SchedulerEnvFromEnv(env)
	h := hub.New(
		hub.WithHeartbeatInterval(schedEnv.HeartbeatInterval),
		hub.WithMaxMissedPongs(schedEnv.MaxMissedPongs),
		hub.WithMetrics(m),
	)
	machine := workflow.NewMachine(workflow.Config{
		BaseBranch:       githubEnv.BaseBranch,
		CIPollInterval:   schedEnv.CIPollInterval,
		CIMaxAttempts:    schedEnv.CIMaxAttempts,
		ExecutionTimeout: schedEnv.ExecutionTimeout,
	}, repos.execution, repos.executionLog, repos.task, textGen, gh, gh, h)
	sched := scheduler.New(scheduler.Config{
		MaxConcurrentTasks: schedEnv.MaxConcurrentTasks,
		ExecutionTimeout:   schedEnv.ExecutionTimeout,
	}, repos.task, repos.execution, repos.executionLog, machine, h, m)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// Push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, repos.pushSub)
	pushDispatcher := pushnotification.NewDispatcher(h, pushSender)

	srv := server.NewServer(
		config.BaseEnvFromEnv(env),
		task.NewServer(repos.task),
		execution.NewServer(sched),
		pushnotification.NewServer(vapidEnv, repos.pushSub),
		hub.NewWSHandler(h),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	go h.Run(ctx)
	go pushDispatcher.Start(ctx)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown error", "error", err)
	}
	h.Close()
	return nil
}

func setupLogger(env *config.BaseEnv) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.IsLocal() {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}
