// Command inferkit is an interactive chat client for a local LLM backend,
// with the full resilience pipeline in front of every call: response cache,
// rate limiter, retries and a circuit breaker. A diagnostics HTTP server
// exposes the pipeline's counters.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/inferkit/inferkit/config"
	"github.com/inferkit/inferkit/diag"
	apperrors "github.com/inferkit/inferkit/errors"
	"github.com/inferkit/inferkit/llm"
	"github.com/inferkit/inferkit/llm/ollama"
	"github.com/inferkit/inferkit/logger"
	"github.com/inferkit/inferkit/observability"
	"github.com/inferkit/inferkit/version"
)

const serviceName = "inferkit"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inferkit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := pflag.String("config", "", "path to config.yml")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		info := version.Get()
		fmt.Printf("inferkit %s (%s, %s)\n", info.Version, info.GitCommit, info.GoVersion)
		return nil
	}

	var cfg config.Config
	if err := config.Load(serviceName, &cfg, config.WithConfigFile(*configFile)); err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Logging, cfg.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.GuardMetrics
	if !cfg.Metrics.Disabled {
		meterCfg := observability.DefaultMeterConfig(cfg.Name)
		meterCfg.ServiceVersion = version.Get().Version
		meterCfg.Endpoint = cfg.Metrics.Endpoint
		meterCfg.Interval = cfg.Metrics.Interval

		mp, err := observability.InitMeter(ctx, meterCfg)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err = observability.NewGuardMetrics(observability.Meter(cfg.Name))
		if err != nil {
			return fmt.Errorf("create instruments: %w", err)
		}

		tracerCfg := observability.DefaultTracerConfig(cfg.Name)
		tracerCfg.ServiceVersion = version.Get().Version
		tracerCfg.Endpoint = cfg.Metrics.Endpoint

		tp, err := observability.InitTracer(ctx, tracerCfg)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	provider := ollama.New(cfg.Ollama)
	guard, err := llm.NewGuard(provider, cfg.Guard,
		llm.WithLogger(log),
		llm.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	if !cfg.Diag.Disabled {
		registry := diag.NewRegistry()
		registry.Register(guard)

		srv := diag.New(cfg.Diag, registry, log)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	return chatLoop(ctx, guard, cfg)
}

// chatLoop reads prompts from stdin and prints guarded completions until
// EOF or interrupt. Conversation history accumulates across turns.
func chatLoop(ctx context.Context, guard *llm.Guard, cfg config.Config) error {
	fmt.Printf("inferkit %s, chatting with %s (ctrl-d to exit)\n", version.Get().Version, guard.Provider().Name())

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}

		history = append(history, llm.Message{Role: "user", Content: prompt})
		resp, err := guard.Complete(ctx, llm.CompletionRequest{
			Model:    cfg.Ollama.Model,
			Messages: history,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// Failed turns are dropped from history so a transient
			// outage does not poison the conversation.
			history = history[:len(history)-1]
			fmt.Println(apperrors.UserMessage(err))
			continue
		}

		history = append(history, llm.Message{Role: "assistant", Content: resp.Content})
		fmt.Println(resp.Content)
	}

	return scanner.Err()
}
