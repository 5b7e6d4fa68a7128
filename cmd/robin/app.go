package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/robin-osint/robin/internal/engine"
	"github.com/robin-osint/robin/internal/scrape"
	"github.com/robin-osint/robin/internal/search"
	"github.com/robin-osint/robin/internal/service"
	"github.com/robin-osint/robin/internal/subagent"
	"github.com/robin-osint/robin/internal/tools"
	"github.com/robin-osint/robin/pkg/config"
	"github.com/robin-osint/robin/pkg/observability"
	"github.com/robin-osint/robin/pkg/store"
	"github.com/robin-osint/robin/pkg/transport"
)

// app holds everything a command needs after bootstrap.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    *service.Service
	store  store.Backend
	tor    *transport.TorClient
}

// newApp loads configuration and wires the full stack.
func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}

	observability.InitMetrics()
	if err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "robin",
		Exporter:     cfg.Observability.TraceExporter,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	}); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	tor, err := transport.NewTorClient(transport.Config{
		ProxyAddr:         cfg.Tor.ProxyAddr,
		Timeout:           cfg.Tor.Timeout.Std(),
		RequestsPerSecond: cfg.Tor.RequestsPerSec,
	})
	if err != nil {
		return nil, fmt.Errorf("tor client: %w", err)
	}

	roster, err := parseRoster(cfg.Engines)
	if err != nil {
		return nil, err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewDefaultRegistry(tools.Deps{
		Searcher:          search.NewSearcher(tor, roster),
		Retriever:         scrape.NewRetriever(tor),
		Delegator:         subagent.NewPool(buildCompleter(cfg, eng), cfg.AnalystConcurrency),
		ReportDir:         cfg.ReportDir,
		SearchConcurrency: cfg.SearchConcurrency,
		ScrapeConcurrency: cfg.ScrapeConcurrency,
	})
	if err != nil {
		return nil, err
	}

	backend, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(service.Options{
		Engine:   eng,
		Tools:    registry,
		Store:    backend,
		Logger:   logger,
		Model:    cfg.Model,
		MaxTurns: cfg.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		store:  backend,
		tor:    tor,
	}, nil
}

// Close flushes the logger and releases backend resources.
func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = observability.ShutdownTracing(context.Background())
	_ = a.logger.Sync()
}

func buildLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func buildEngine(cfg *config.Config) (engine.Engine, error) {
	ec := map[string]any{}
	switch cfg.Provider {
	case "openai":
		ec["api_key"] = cfg.OpenAIKey
	case "gemini":
		ec["api_key"] = cfg.GoogleKey
	}
	eng, err := engine.New(cfg.Provider, ec)
	if err != nil {
		return nil, fmt.Errorf("create %s engine: %w", cfg.Provider, err)
	}
	return eng, nil
}

// buildCompleter picks the analysis worker backend. The OpenAI provider
// gets a direct completion client; anything else goes through the engine
// so workers follow the configured provider.
func buildCompleter(cfg *config.Config, eng engine.Engine) subagent.Completer {
	if cfg.Provider == "openai" {
		model := cfg.Model
		if model == "" {
			model = openai.GPT4o
		}
		return subagent.NewOpenAICompleter(openai.NewClient(cfg.OpenAIKey), model)
	}
	return &engineCompleter{eng: eng, model: cfg.Model}
}

func buildStore(cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisBackend(store.RedisConfig{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			RecordTTL: cfg.Store.Redis.TTL.Std(),
		})
	default:
		return store.NewFileBackend(cfg.Store.FileDir)
	}
}

// parseRoster converts "Name|URLTemplate" config entries into engines.
func parseRoster(entries []string) ([]search.Engine, error) {
	var roster []search.Engine
	for _, entry := range entries {
		name, tmpl, ok := strings.Cut(entry, "|")
		if !ok || name == "" || !strings.Contains(tmpl, "%s") {
			return nil, fmt.Errorf("invalid engine entry %q: want \"Name|URL with %%s placeholder\"", entry)
		}
		roster = append(roster, search.Engine{Name: name, Template: tmpl})
	}
	return roster, nil
}

// engineCompleter runs single-shot completions through the reasoning
// engine, for providers without a dedicated completion client.
type engineCompleter struct {
	eng   engine.Engine
	model string
}

func (c *engineCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	stream, err := c.eng.Query(ctx, engine.Request{
		Prompt:       prompt,
		Model:        c.model,
		SystemPrompt: system,
		MaxTurns:     1,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if msg.Type == engine.MessageText {
			sb.WriteString(msg.Text)
		}
	}
	return sb.String(), nil
}
