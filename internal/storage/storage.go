// Package storage persists moderation cases and the audit trail in sqlite.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	CaseWarn = "warn"
	CaseMute = "mute"
	CaseKick = "kick"
	CaseBan  = "ban"
)

// Case is one moderation case created by the automod engine, tagged with the
// rule that produced it.
type Case struct {
	ID        int64
	GuildID   string
	UserID    string
	Type      string
	Reason    string
	RuleName  string
	Duration  time.Duration
	CreatedAt time.Time
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	RuleName  string
	Event     string
	Details   string
	CreatedAt time.Time
}

type Store struct {
	db   *sql.DB
	node *snowflake.Node
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &Store{db: db, node: node}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// AddCase inserts a case and returns its generated id.
func (s *Store) AddCase(ctx context.Context, c Case) (int64, error) {
	id := s.node.Generate().Int64()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (id, guild_id, user_id, type, reason, rule_name, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.GuildID, c.UserID, c.Type, c.Reason, c.RuleName, int64(c.Duration.Seconds()), c.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListCases returns a guild's cases, newest first, optionally filtered by
// user. limit <= 0 means no limit.
func (s *Store) ListCases(ctx context.Context, guildID, userID string, limit int) ([]Case, error) {
	query := `
		SELECT id, guild_id, user_id, type, reason, rule_name, duration_seconds, created_at
		FROM cases WHERE guild_id = ?`
	args := []any{guildID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		var c Case
		var seconds, created int64
		if err := rows.Scan(&c.ID, &c.GuildID, &c.UserID, &c.Type, &c.Reason, &c.RuleName, &seconds, &created); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(seconds) * time.Second
		c.CreatedAt = time.Unix(created, 0)
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, rule_name, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.RuleName, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, rule_name, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.RuleName, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CleanupBefore drops audit logs and cases older than the cutoff.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE created_at < ?`, cutoff.Unix())
	return err
}
