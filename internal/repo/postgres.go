package repo

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/standup-pilot/internal/domain"
)

var ErrNotFound = errors.New("repo: not found")

type Store struct {
    Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil { return nil, fmt.Errorf("parse dsn: %w", err) }
    cfg.MaxConns = 8
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil { return nil, fmt.Errorf("connect: %w", err) }
    if err := pool.Ping(ctx); err != nil {
        pool.Close()
        return nil, fmt.Errorf("ping: %w", err)
    }
    return &Store{Pool: pool}, nil
}

func (s *Store) Close() { s.Pool.Close() }

func (s *Store) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS jira_credentials (
            user_id       TEXT PRIMARY KEY,
            access_token  TEXT NOT NULL,
            refresh_token TEXT NOT NULL,
            cloud_id      TEXT NOT NULL,
            site_url      TEXT NOT NULL,
            expires_at    TIMESTAMPTZ NOT NULL,
            updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE TABLE IF NOT EXISTS issue_refs (
            user_id    TEXT NOT NULL,
            issue_key  TEXT NOT NULL,
            issue_id   TEXT NOT NULL DEFAULT '',
            title      TEXT NOT NULL DEFAULT '',
            status     TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (user_id, issue_key)
        )`,
        `CREATE TABLE IF NOT EXISTS update_drafts (
            id          UUID PRIMARY KEY,
            user_id     TEXT NOT NULL,
            project_key TEXT NOT NULL DEFAULT '',
            issues      JSONB NOT NULL DEFAULT '[]',
            payload     JSONB NOT NULL,
            created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE INDEX IF NOT EXISTS idx_update_drafts_user ON update_drafts (user_id, created_at DESC)`,
    }
    for _, q := range stmts {
        if _, err := s.Pool.Exec(ctx, q); err != nil { return fmt.Errorf("migrate: %w", err) }
    }
    return nil
}

// ---- credentials ----

func (s *Store) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
    var c domain.Credential
    err := s.Pool.QueryRow(ctx,
        `SELECT user_id, access_token, refresh_token, cloud_id, site_url, expires_at
           FROM jira_credentials WHERE user_id = $1`, userID).
        Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.CloudID, &c.SiteURL, &c.ExpiresAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    return &c, nil
}

// UpsertCredential replaces the whole row. Refresh tokens rotate, so partial
// updates would strand a dead token.
func (s *Store) UpsertCredential(ctx context.Context, c *domain.Credential) error {
    _, err := s.Pool.Exec(ctx,
        `INSERT INTO jira_credentials (user_id, access_token, refresh_token, cloud_id, site_url, expires_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, now())
         ON CONFLICT (user_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            cloud_id = EXCLUDED.cloud_id,
            site_url = EXCLUDED.site_url,
            expires_at = EXCLUDED.expires_at,
            updated_at = now()`,
        c.UserID, c.AccessToken, c.RefreshToken, c.CloudID, c.SiteURL, c.ExpiresAt)
    return err
}

func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
    _, err := s.Pool.Exec(ctx, `DELETE FROM jira_credentials WHERE user_id = $1`, userID)
    return err
}

// ---- issue refs (for @-mention pickers) ----

func (s *Store) UpsertIssueRefs(ctx context.Context, userID string, refs []domain.IssueRef) error {
    for _, r := range refs {
        _, err := s.Pool.Exec(ctx,
            `INSERT INTO issue_refs (user_id, issue_key, issue_id, title, status, updated_at)
             VALUES ($1, $2, $3, $4, $5, now())
             ON CONFLICT (user_id, issue_key) DO UPDATE SET
                issue_id = EXCLUDED.issue_id,
                title = EXCLUDED.title,
                status = EXCLUDED.status,
                updated_at = now()`,
            userID, r.IssueKey, r.IssueID, r.Title, r.Status)
        if err != nil { return err }
    }
    return nil
}

func (s *Store) ListIssueRefs(ctx context.Context, userID string, limit int) ([]domain.IssueRef, error) {
    if limit <= 0 { limit = 50 }
    rows, err := s.Pool.Query(ctx,
        `SELECT user_id, issue_key, issue_id, title, status FROM issue_refs
          WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`, userID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.IssueRef
    for rows.Next() {
        var r domain.IssueRef
        if err := rows.Scan(&r.UserID, &r.IssueKey, &r.IssueID, &r.Title, &r.Status); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (s *Store) PruneStaleRefs(ctx context.Context, olderThan time.Duration) (int64, error) {
    tag, err := s.Pool.Exec(ctx,
        `DELETE FROM issue_refs WHERE updated_at < now() - $1::interval`,
        fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
    if err != nil { return 0, err }
    return tag.RowsAffected(), nil
}

// ---- personal update drafts ----

// CreateDraft stores a new draft alongside the issue snapshot it was written
// from. The newest row per user supersedes all prior ones.
func (s *Store) CreateDraft(ctx context.Context, d *domain.UpdateDraft) error {
    if d.ID == "" { d.ID = uuid.NewString() }
    issues, err := json.Marshal(d.Issues)
    if err != nil { return err }
    payload, err := json.Marshal(d.Update)
    if err != nil { return err }
    _, err = s.Pool.Exec(ctx,
        `INSERT INTO update_drafts (id, user_id, project_key, issues, payload, created_at)
         VALUES ($1, $2, $3, $4, $5, now())`,
        d.ID, d.UserID, d.ProjectKey, issues, payload)
    return err
}

func (s *Store) LatestDraft(ctx context.Context, userID string) (*domain.UpdateDraft, error) {
    var d domain.UpdateDraft
    var issues, payload []byte
    err := s.Pool.QueryRow(ctx,
        `SELECT id, user_id, project_key, issues, payload, created_at
           FROM update_drafts WHERE user_id = $1
          ORDER BY created_at DESC LIMIT 1`, userID).
        Scan(&d.ID, &d.UserID, &d.ProjectKey, &issues, &payload, &d.CreatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    if err := json.Unmarshal(issues, &d.Issues); err != nil { return nil, err }
    if err := json.Unmarshal(payload, &d.Update); err != nil { return nil, err }
    return &d, nil
}

// PruneSupersededDrafts deletes every draft except each user's newest.
func (s *Store) PruneSupersededDrafts(ctx context.Context) (int64, error) {
    tag, err := s.Pool.Exec(ctx,
        `DELETE FROM update_drafts d
          WHERE d.created_at < (
            SELECT max(created_at) FROM update_drafts q WHERE q.user_id = d.user_id)`)
    if err != nil { return 0, err }
    return tag.RowsAffected(), nil
}

// ---- advisory locks for cross-replica jobs ----

// WithAdvisoryLock runs fn while holding a session advisory lock. Lock and
// unlock go through one acquired connection; through the pool they could land
// on different sessions and the unlock would miss. Returns false when another
// session holds the lock.
func (s *Store) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error) {
    conn, err := s.Pool.Acquire(ctx)
    if err != nil { return false, err }
    defer conn.Release()
    var got bool
    if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
        return false, err
    }
    if !got { return false, nil }
    defer func() { _, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key) }()
    return true, fn(ctx)
}
