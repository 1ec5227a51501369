package jobs

import (
    "context"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/example/standup-pilot/internal/config"
)

// maintenanceLockKey serializes the prune job across replicas.
const maintenanceLockKey int64 = 7_431_002

// MaintenanceStore is what the weekly job needs from persistence.
type MaintenanceStore interface {
    WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
    PruneSupersededDrafts(ctx context.Context) (int64, error)
    PruneStaleRefs(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Scheduler struct {
    c     *cron.Cron
    store MaintenanceStore
    cfg   config.Config
    log   zerolog.Logger
}

func NewScheduler(cfg config.Config, store MaintenanceStore, log zerolog.Logger) (*Scheduler, error) {
    loc, err := time.LoadLocation(cfg.TZ)
    if err != nil { loc = time.Local }
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    s := &Scheduler{c: c, store: store, cfg: cfg, log: log}
    if _, err := c.AddFunc(cfg.MaintenanceCron, s.runMaintenance); err != nil {
        return nil, err
    }
    return s, nil
}

func (s *Scheduler) Start() { s.c.Start() }

func (s *Scheduler) Stop() {
    ctx := s.c.Stop()
    <-ctx.Done()
}

// runMaintenance prunes superseded update drafts and stale issue refs. One
// replica wins the advisory lock; the rest skip quietly.
func (s *Scheduler) runMaintenance() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
    defer cancel()

    ran, err := s.store.WithAdvisoryLock(ctx, maintenanceLockKey, func(ctx context.Context) error {
        drafts, err := s.store.PruneSupersededDrafts(ctx)
        if err != nil {
            s.log.Error().Err(err).Msg("draft prune failed")
        }
        refs, err := s.store.PruneStaleRefs(ctx, s.cfg.RefCacheMaxAge)
        if err != nil {
            s.log.Error().Err(err).Msg("ref prune failed")
        }
        s.log.Info().Int64("drafts_removed", drafts).Int64("refs_removed", refs).Msg("maintenance done")
        return nil
    })
    if err != nil {
        s.log.Error().Err(err).Msg("maintenance lock failed")
        return
    }
    if !ran {
        s.log.Info().Msg("maintenance already running elsewhere")
    }
}
