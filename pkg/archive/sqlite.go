package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/cricket/pkg/turns"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite archive: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite archive: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retired_turns (
			session_id TEXT NOT NULL,
			turn_id INTEGER NOT NULL,
			reason TEXT NOT NULL,
			summary_id INTEGER NOT NULL DEFAULT 0,
			retired_at_ms INTEGER NOT NULL,
			role TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			has_code INTEGER NOT NULL DEFAULT 0,
			has_attachment INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, turn_id)
		);`,
		`CREATE INDEX IF NOT EXISTS retired_turns_by_session ON retired_turns(session_id, retired_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS retired_turns_by_reason ON retired_turns(reason, retired_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite archive: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) RecordRetired(ctx context.Context, rt RetiredTurn) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite archive: ctx is nil")
	}
	if strings.TrimSpace(rt.SessionID) == "" {
		return errors.New("sqlite archive: sessionID is empty")
	}
	if !rt.Reason.Valid() {
		return errors.Errorf("sqlite archive: invalid reason %q", rt.Reason)
	}
	if rt.RetiredAtMs <= 0 {
		rt.RetiredAtMs = time.Now().UnixMilli()
	}

	payload, err := yaml.Marshal(rt.Turn)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: marshal turn payload")
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO retired_turns(
			session_id, turn_id, reason, summary_id, retired_at_ms, role, token_count, has_code, has_attachment, payload
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, turn_id) DO UPDATE SET
			reason = excluded.reason,
			summary_id = excluded.summary_id,
			retired_at_ms = excluded.retired_at_ms,
			payload = excluded.payload
	`, rt.SessionID, rt.Turn.ID, string(rt.Reason), rt.SummaryID, rt.RetiredAtMs,
		string(rt.Turn.Role), rt.Turn.TokenCount, rt.Turn.HasCode, rt.Turn.HasAttachment, string(payload)); err != nil {
		return errors.Wrap(err, "sqlite archive: insert retired turn")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]RetiredTurn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite archive: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite archive: ctx is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.SessionID); v != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(string(q.Reason)); v != "" {
		clauses = append(clauses, "reason = ?")
		args = append(args, v)
	}
	if q.SinceMs > 0 {
		clauses = append(clauses, "retired_at_ms >= ?")
		args = append(args, q.SinceMs)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT session_id, reason, summary_id, retired_at_ms, payload
		FROM retired_turns
		%s
		ORDER BY retired_at_ms DESC, turn_id DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: query")
	}
	defer func() { _ = rows.Close() }()

	items := []RetiredTurn{}
	for rows.Next() {
		var (
			item    RetiredTurn
			reason  string
			payload string
		)
		if err := rows.Scan(&item.SessionID, &reason, &item.SummaryID, &item.RetiredAtMs, &payload); err != nil {
			return nil, err
		}
		item.Reason = RetireReason(reason)
		var t turns.Turn
		if err := yaml.Unmarshal([]byte(payload), &t); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: parse turn payload")
		}
		item.Turn = t
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
