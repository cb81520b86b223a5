// Package audit implements AuditDb (spec §4.6): an append-only event log
// backed by an embedded relational store, with a field-name sanitizer that
// mechanically keeps key material out of every row. The teacher's own raw
// KV engine (tosdb) cannot express the GROUP BY / multi-column-index
// queries this package needs (see DESIGN.md), so the backing store here is
// database/sql over github.com/mattn/go-sqlite3, the embedded-relational
// dependency the rest of the example pack's wallet repos reach for.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tos-network/agentwallet/internal/apperr"
)

// Event kinds (spec §3 AuditEvent / §4.6).
const (
	EventTxAttempt         = "tx_attempt"
	EventTxConfirmed       = "tx_confirmed"
	EventTxFailed          = "tx_failed"
	EventTxTimeout         = "tx_timeout"
	EventAgentAction       = "agent_action"
	EventAgentNoop         = "agent_noop"
	EventAgentStart        = "agent_start"
	EventAgentStop         = "agent_stop"
	EventAgentError        = "agent_error"
	EventLimitBreach       = "limit_breach"
	EventSystemStopRequest = "system_stop_request"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	event TEXT NOT NULL,
	wallet_pk TEXT NOT NULL,
	signature TEXT,
	status TEXT,
	details_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_agent_ts ON events(agent_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_event_ts ON events(event, ts);
CREATE INDEX IF NOT EXISTS idx_events_wallet_ts ON events(wallet_pk, ts);
`

// Event is one append-only row (spec §3 AuditEvent).
type Event struct {
	ID        int64
	Timestamp string
	AgentID   string
	Event     string
	WalletPK  string
	Signature string
	Status    string
	Details   map[string]interface{}
}

// Query parameterizes AuditDb.Query (spec §4.6).
type Query struct {
	AgentID  string
	WalletPK string
	Event    string
	Before   string
	Limit    int
}

// Summary is one row of AuditDb.Summarise's (agent_id, event, count) triples.
type Summary struct {
	AgentID string
	Event   string
	Count   int64
}

// Db is the append-only audit store. No update or delete operation is
// exposed, by contract.
type Db struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the sqlite-backed audit store at
// path, in WAL/NORMAL mode, and ensures the schema exists.
func Open(path string) (*Db, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRPCError, "open audit database failed", err)
	}
	db.SetMaxOpenConns(1) // one writer; sqlite3 driver is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.CodeSchemaMismatch, "apply audit schema failed", err)
	}
	return &Db{sql: db}, nil
}

// Append inserts one sanitized event row and returns its assigned id.
func (d *Db) Append(ctx context.Context, e Event) (int64, error) {
	if d.sql == nil {
		return 0, apperr.New(apperr.CodeClosedStore, "audit store is closed")
	}
	clean := Sanitize(e.Details)
	raw, err := marshalDetails(clean)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeSchemaMismatch, "marshal audit details failed", err)
	}
	if err := AssertNoKeyMaterial(raw); err != nil {
		return 0, err
	}

	ts := e.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339Nano)
	}

	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO events (ts, agent_id, event, wallet_pk, signature, status, details_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, e.AgentID, e.Event, e.WalletPK, nullableString(e.Signature), nullableString(e.Status), string(raw))
	if err != nil {
		return 0, classifyWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeRPCError, "read inserted audit row id failed", err)
	}
	return id, nil
}

// Query returns matching rows in descending timestamp order, most recent
// first, bounded by Limit (defaulting to 50).
func (d *Db) Query(ctx context.Context, q Query) ([]Event, error) {
	if d.sql == nil {
		return nil, apperr.New(apperr.CodeClosedStore, "audit store is closed")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	clause, args := "", []interface{}{}
	add := func(cond string, arg interface{}) {
		if clause == "" {
			clause = "WHERE " + cond
		} else {
			clause += " AND " + cond
		}
		args = append(args, arg)
	}
	if q.AgentID != "" {
		add("agent_id = ?", q.AgentID)
	}
	if q.WalletPK != "" {
		add("wallet_pk = ?", q.WalletPK)
	}
	if q.Event != "" {
		add("event = ?", q.Event)
	}
	if q.Before != "" {
		add("ts < ?", q.Before)
	}

	stmt := fmt.Sprintf(`SELECT id, ts, agent_id, event, wallet_pk, COALESCE(signature, ''), COALESCE(status, ''), details_json
		FROM events %s ORDER BY ts DESC LIMIT ?`, clause)
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRPCError, "query audit events failed", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var detailsJSON string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AgentID, &e.Event, &e.WalletPK, &e.Signature, &e.Status, &detailsJSON); err != nil {
			return nil, apperr.Wrap(apperr.CodeRPCError, "scan audit event failed", err)
		}
		e.Details, err = unmarshalDetails(detailsJSON)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeSchemaMismatch, "unmarshal audit details failed", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summarise returns (agent_id, event, count) triples across all rows.
func (d *Db) Summarise(ctx context.Context) ([]Summary, error) {
	if d.sql == nil {
		return nil, apperr.New(apperr.CodeClosedStore, "audit store is closed")
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT agent_id, event, COUNT(*) FROM events GROUP BY agent_id, event ORDER BY agent_id, event`)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRPCError, "summarise audit events failed", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.AgentID, &s.Event, &s.Count); err != nil {
			return nil, apperr.Wrap(apperr.CodeRPCError, "scan audit summary failed", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of rows matching the optional agentID/walletPK
// filters (either may be empty to mean "any").
func (d *Db) Count(ctx context.Context, agentID, walletPK string) (int64, error) {
	if d.sql == nil {
		return 0, apperr.New(apperr.CodeClosedStore, "audit store is closed")
	}
	clause, args := "", []interface{}{}
	add := func(cond string, arg interface{}) {
		if clause == "" {
			clause = "WHERE " + cond
		} else {
			clause += " AND " + cond
		}
		args = append(args, arg)
	}
	if agentID != "" {
		add("agent_id = ?", agentID)
	}
	if walletPK != "" {
		add("wallet_pk = ?", walletPK)
	}

	var count int64
	row := d.sql.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM events %s`, clause), args...)
	if err := row.Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.CodeRPCError, "count audit events failed", err)
	}
	return count, nil
}

// Close checkpoints the WAL journal and closes the store. Any write
// attempted afterward returns closed_store.
func (d *Db) Close() error {
	if d.sql == nil {
		return nil
	}
	_, _ = d.sql.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	err := d.sql.Close()
	d.sql = nil
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func classifyWriteError(err error) error {
	return apperr.Wrap(apperr.CodeRPCError, "insert audit event failed", err)
}
