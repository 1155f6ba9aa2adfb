package cmd

import (
	"fmt"
	"strings"

	"github.com/temporal-agent/temporal-agent-mcp/internal/config"
	"github.com/temporal-agent/temporal-agent-mcp/internal/dispatch"
	"github.com/temporal-agent/temporal-agent-mcp/internal/ratelimit"
	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store/sqldb"
	"github.com/temporal-agent/temporal-agent-mcp/internal/tools"
)

// app holds the wired service graph shared by serve and worker.
type app struct {
	cfg       *config.Config
	repo      store.Repository
	eval      *schedule.Evaluator
	validator *safety.URLValidator
	signer    *safety.Signer
	router    *dispatch.Router
	registry  *tools.Registry
	limiter   *ratelimit.Limiter
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	repo, err := sqldb.Open(cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		return nil, err
	}
	// SQLite dev mode bootstraps its own schema; Postgres comes migrated.
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres") {
		if err := repo.EnsureSchema(); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	eval := schedule.NewEvaluator()
	validator := safety.NewURLValidator(cfg.Production, cfg.AllowedDomains)
	signer := safety.NewSigner(cfg.HMACSecret)

	sender := safety.NewSender(validator, cfg.WebhookTimeout, "temporal-agent-mcp/"+Version, 10, 20)
	router := dispatch.NewRouter(
		dispatch.NewWebhookDispatcher(sender, signer),
		dispatch.NewChatDispatcher(validator),
		dispatch.NewEmailDispatcher(dispatch.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}),
		dispatch.NewStoreDispatcher(repo),
	)

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, &tools.Deps{
		Repo:            repo,
		Eval:            eval,
		Validator:       validator,
		MaxActiveTasks:  cfg.MaxActiveTasks,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	})

	return &app{
		cfg:       cfg,
		repo:      repo,
		eval:      eval,
		validator: validator,
		signer:    signer,
		router:    router,
		registry:  registry,
		limiter:   ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow),
	}, nil
}

// watchConfig hot-reloads the webhook domain allowlist when the config file
// changes. No-op without a config file.
func (a *app) watchConfig() (*config.Watcher, error) {
	if configPath == "" {
		return nil, nil
	}
	w, err := config.NewWatcher(configPath)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(cfg *config.Config) {
		a.validator.SetAllowedDomains(cfg.AllowedDomains)
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}
