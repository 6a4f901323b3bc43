package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"council-ai/internal/domain"
)

// SQLiteStore implements domain.HistoryStore and domain.StatsStore in one
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open council db: %w", err)
	}
	// One writer at a time; Record runs read-modify-write in a transaction.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate council db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			seq     INTEGER PRIMARY KEY AUTOINCREMENT,
			message TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS agent_stats (
			agent_id TEXT PRIMARY KEY,
			total    INTEGER NOT NULL DEFAULT 0,
			accepted INTEGER NOT NULL DEFAULT 0,
			partial  INTEGER NOT NULL DEFAULT 0,
			rejected INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// History returns the store as a domain.HistoryStore.
func (s *SQLiteStore) History() domain.HistoryStore { return sqliteHistory{s} }

// Stats returns the store as a domain.StatsStore.
func (s *SQLiteStore) Stats() domain.StatsStore { return sqliteStats{s} }

type sqliteHistory struct{ s *SQLiteStore }

func (h sqliteHistory) Load(ctx context.Context) ([]domain.Message, error) {
	rows, err := h.s.db.QueryContext(ctx, `SELECT message FROM history ORDER BY seq`)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.Load", domain.ErrStore, err.Error())
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.NewDomainError("SQLiteStore.Load", domain.ErrStore, err.Error())
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, domain.NewDomainError("SQLiteStore.Load", domain.ErrStore, fmt.Sprintf("decode message: %v", err))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLiteStore.Load", domain.ErrStore, err.Error())
	}
	return out, nil
}

// Append inserts all messages in one transaction.
func (h sqliteHistory) Append(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := h.s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.Append", domain.ErrStore, err.Error())
	}
	defer tx.Rollback()

	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return domain.NewDomainError("SQLiteStore.Append", domain.ErrStore, err.Error())
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO history (message) VALUES (?)`, string(raw)); err != nil {
			return domain.NewDomainError("SQLiteStore.Append", domain.ErrStore, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewDomainError("SQLiteStore.Append", domain.ErrStore, err.Error())
	}
	return nil
}

func (h sqliteHistory) DropOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := h.s.db.ExecContext(ctx,
		`DELETE FROM history WHERE seq IN (SELECT seq FROM history ORDER BY seq LIMIT ?)`, n)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.DropOldest", domain.ErrStore, err.Error())
	}
	return nil
}

func (h sqliteHistory) Clear(ctx context.Context) error {
	if _, err := h.s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return domain.NewDomainError("SQLiteStore.Clear", domain.ErrStore, err.Error())
	}
	return nil
}

type sqliteStats struct{ s *SQLiteStore }

const selectStats = `SELECT agent_id, total, accepted, partial, rejected FROM agent_stats`

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(row scanner) (domain.AgentStats, error) {
	var st domain.AgentStats
	err := row.Scan(&st.AgentID, &st.Total, &st.Accepted, &st.Partial, &st.Rejected)
	return st, err
}

// Get returns zero counters for an agent that has never been scored.
func (st sqliteStats) Get(ctx context.Context, agentID string) (domain.AgentStats, error) {
	stats, err := scanStats(st.s.db.QueryRowContext(ctx, selectStats+` WHERE agent_id = ?`, agentID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AgentStats{AgentID: agentID}, nil
	}
	if err != nil {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Get", domain.ErrStore, err.Error())
	}
	return stats, nil
}

func (st sqliteStats) All(ctx context.Context) ([]domain.AgentStats, error) {
	rows, err := st.s.db.QueryContext(ctx, selectStats+` ORDER BY agent_id`)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.All", domain.ErrStore, err.Error())
	}
	defer rows.Close()

	var out []domain.AgentStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, domain.NewDomainError("SQLiteStore.All", domain.ErrStore, err.Error())
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLiteStore.All", domain.ErrStore, err.Error())
	}
	return out, nil
}

func (st sqliteStats) Record(ctx context.Context, agentID string, v domain.Verdict) (domain.AgentStats, error) {
	if agentID == "" {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Record", domain.ErrInvalidInput, "empty agent id")
	}
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Record", domain.ErrStore, err.Error())
	}
	defer tx.Rollback()

	stats, err := scanStats(tx.QueryRowContext(ctx, selectStats+` WHERE agent_id = ?`, agentID))
	if errors.Is(err, sql.ErrNoRows) {
		stats, err = domain.AgentStats{AgentID: agentID}, nil
	}
	if err != nil {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Record", domain.ErrStore, err.Error())
	}
	stats.Apply(v)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_stats (agent_id, total, accepted, partial, rejected)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			total = excluded.total,
			accepted = excluded.accepted,
			partial = excluded.partial,
			rejected = excluded.rejected`,
		stats.AgentID, stats.Total, stats.Accepted, stats.Partial, stats.Rejected,
	)
	if err != nil {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Record", domain.ErrStore, err.Error())
	}
	if err := tx.Commit(); err != nil {
		return domain.AgentStats{}, domain.NewDomainError("SQLiteStore.Record", domain.ErrStore, err.Error())
	}
	return stats, nil
}

func (st sqliteStats) Reset(ctx context.Context) error {
	if _, err := st.s.db.ExecContext(ctx, `DELETE FROM agent_stats`); err != nil {
		return domain.NewDomainError("SQLiteStore.Reset", domain.ErrStore, err.Error())
	}
	return nil
}
