package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/config"
	"github.com/capitalize-ai/traychat/internal/llm"
	natsclient "github.com/capitalize-ai/traychat/internal/nats"
	"github.com/capitalize-ai/traychat/internal/service"
	"github.com/capitalize-ai/traychat/internal/settings"
	"github.com/capitalize-ai/traychat/pkg/logger"
	"github.com/capitalize-ai/traychat/pkg/tracing"
)

// app holds the components shared by the bridge and the CLI commands.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *settings.Store
	broker *service.Broker

	natsClient *natsclient.Client
	streams    *natsclient.StreamManager

	closers []func()
}

func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { log.Sync() })

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "traychat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { tracing.Shutdown(context.Background(), tp) })
		}
	}

	a.store = settings.NewStore(cfg.SettingsPath, log)
	return a, nil
}

// connectMirror connects to NATS and ensures the transcript stream exists.
// It is a no-op when no NATS URL is configured.
func (a *app) connectMirror(ctx context.Context) error {
	if !a.cfg.NATSEnabled() {
		return nil
	}

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      a.cfg.NATSURL,
		CAFile:   a.cfg.NATSCAFile,
		CertFile: a.cfg.NATSCertFile,
		KeyFile:  a.cfg.NATSKeyFile,
		Token:    a.cfg.NATSToken,
	}, a.log)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	streams := natsclient.NewStreamManager(client)
	if err := streams.EnsureStream(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	a.natsClient = client
	a.streams = streams
	a.closers = append(a.closers, client.Close)
	return nil
}

// buildBroker wires the conversation, transport and optional mirror.
func (a *app) buildBroker() error {
	policy, err := a.cfg.ContentPolicy()
	if err != nil {
		return err
	}

	transport := llm.NewHTTPTransport(a.cfg.CompletionURL, llm.WithTimeout(a.cfg.CompletionTimeout))

	opts := []service.BrokerOption{
		service.WithLogger(a.log),
		service.WithContentPolicy(policy),
		service.WithSerializedCalls(a.cfg.SerializeCalls),
	}
	if a.streams != nil {
		opts = append(opts, service.WithTurnSink(a.streams))
	}

	a.broker = service.NewBroker(
		service.NewConversationService(service.DefaultPreamble),
		transport,
		llm.EnvKey(a.cfg.APIKeyEnv),
		opts...,
	)
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
