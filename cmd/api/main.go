/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/example/standup-pilot/internal/adapters/jira"
    openaiadapter "github.com/example/standup-pilot/internal/adapters/openai"
    "github.com/example/standup-pilot/internal/agent"
    "github.com/example/standup-pilot/internal/config"
    "github.com/example/standup-pilot/internal/domain"
    apphttp "github.com/example/standup-pilot/internal/http"
    "github.com/example/standup-pilot/internal/jobs"
    "github.com/example/standup-pilot/internal/logger"
    "github.com/example/standup-pilot/internal/repo"
    "github.com/example/standup-pilot/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    store, err := repo.New(ctx, cfg.DBDSN)
    if err != nil {
        log.Fatal().Err(err).Msg("db connect failed")
    }
    defer store.Close()
    if err := store.Migrate(ctx); err != nil {
        log.Fatal().Err(err).Msg("migrate failed")
    }

    // Adapters
    oauth := jira.NewOAuth(cfg.JiraClientID, cfg.JiraClientSecret, cfg.JiraRedirectURL, cfg.JiraScopes)
    llm := openaiadapter.New(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAITimeout, log)
    gateway := func(cred *domain.Credential) services.JiraAPI {
        return jira.NewClient(cred.CloudID, cred.AccessToken, cfg.HTTPTimeout, log)
    }

    // Services
    guard := services.NewGuard(store, oauth, log)
    svc := services.New(guard, store, gateway, llm, log)
    ag := agent.New(svc, llm, cfg.AgentMaxSteps, log)

    // Maintenance cron
    sched, err := jobs.NewScheduler(cfg, store, log)
    if err != nil {
        log.Fatal().Err(err).Str("spec", cfg.MaintenanceCron).Msg("cron spec invalid")
    }
    sched.Start()
    defer sched.Stop()

    // HTTP server (Gin)
    h := &apphttp.Handlers{Agent: ag, OAuth: oauth, Store: store, Log: log}
    router := apphttp.NewRouter(cfg, log, h)

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
    select {
    case err := <-errCh:
        log.Error().Err(err).Msg("http server stopped")
    case sig := <-sigCh:
        log.Info().Str("signal", sig.String()).Msg("shutting down")
    }
}
