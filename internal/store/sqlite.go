package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Stats summarizes database counters for admin dashboards.
type Stats struct {
	Total     int64
	ByKind    map[types.Kind]int64
	Messages  int64
	Requests  int64
	Dimension int
}

// MCPRequestLog captures one incoming MCP request handled by the server.
type MCPRequestLog struct {
	ID         int64
	RequestID  string
	Method     string
	ToolName   string
	Success    bool
	ErrorText  string
	DurationMS int64
	CreatedAt  time.Time
}

// RecentMemory is a compact summary row for admin dashboards.
type RecentMemory struct {
	ID         int64
	Kind       types.Kind
	Topic      string
	Content    string
	Confidence float64
	CreatedAt  time.Time
}

// Store represents persistence operations used by the memory service.
type Store interface {
	InsertMessage(ctx context.Context, role types.Role, content string) error
	InsertMemory(ctx context.Context, in types.NewMemory) (int64, error)
	ListMemories(ctx context.Context, kinds ...types.Kind) ([]types.MemoryRecord, error)
	MemoriesSince(ctx context.Context, since time.Time, kinds ...types.Kind) ([]types.MemoryRecord, error)
	LastMessages(ctx context.Context, limit int) ([]types.Message, error)
	DecaySnapshot(ctx context.Context, model decay.Model, halfLifeDays float64, kinds ...types.Kind) ([]types.DecayedRecord, error)
	AppendTruth(ctx context.Context, topic string, build BuildFunc) (types.MemoryRecord, error)
	Close() error
}

// BuildFunc derives the next temporal_truth row from the prior rows of the
// same topic. It runs inside the write transaction and must not block.
type BuildFunc func(prior []types.MemoryRecord) (types.NewMemory, error)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the insertion clock.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// SQLiteStore is a SQLite-backed memory store. One instance owns the
// database handle; writes are serialized through writeMu.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time

	writeMu       sync.Mutex
	dim           int
	lastMemoryAt  float64
	lastMessageAt float64
}

// OpenSQLite opens and initializes the SQLite store.
func OpenSQLite(ctx context.Context, dbPath string, logger *log.Logger, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(errs.ErrStorageUnavailable, "mkdir db dir", goerr.V("path", dbPath), goerr.V("cause", err.Error()))
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "open sqlite", goerr.V("path", dbPath), goerr.V("cause", err.Error()))
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "init sqlite", goerr.V("path", dbPath), goerr.V("cause", err.Error()))
	}
	logger.Debug("memory db ready", "path", dbPath, "dimension", s.dim)
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, stmt := range splitSQLStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run schema stmt: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&integrity); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("database corrupt: %s", integrity)
	}

	var first []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM memories ORDER BY id LIMIT 1`).Scan(&first)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load embedding dimension: %w", err)
	default:
		vec, err := decodeEmbedding(first)
		if err != nil {
			return err
		}
		s.dim = len(vec)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM memories`).Scan(&s.lastMemoryAt); err != nil {
		return fmt.Errorf("load memory watermark: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM messages`).Scan(&s.lastMessageAt); err != nil {
		return fmt.Errorf("load message watermark: %w", err)
	}
	return nil
}

func splitSQLStatements(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p+";")
	}
	return out
}

// Dimension returns the embedding length fixed by the first stored record,
// or 0 for an empty store.
func (s *SQLiteStore) Dimension() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.dim
}

// InsertMessage appends a turn to the message log.
func (s *SQLiteStore) InsertMessage(ctx context.Context, role types.Role, content string) error {
	if !role.Valid() {
		return goerr.Wrap(errs.ErrInvalidConfig, "unknown message role", goerr.V("role", string(role)))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.stamp(&s.lastMessageAt)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(role, content, created_at) VALUES (?, ?, ?)`,
		string(role), content, ts,
	); err != nil {
		return goerr.Wrap(errs.ErrStorageUnavailable, "insert message", goerr.V("cause", err.Error()))
	}
	s.lastMessageAt = ts
	return nil
}

// InsertMemory validates and persists one record, returning its id.
func (s *SQLiteStore) InsertMemory(ctx context.Context, in types.NewMemory) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, goerr.Wrap(errs.ErrStorageUnavailable, "begin insert", goerr.V("cause", err.Error()))
	}
	defer func() { _ = tx.Rollback() }()

	rec, ts, err := s.insertMemoryTx(ctx, tx, in)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, goerr.Wrap(errs.ErrStorageUnavailable, "commit insert", goerr.V("cause", err.Error()))
	}
	s.commitWatermarks(rec, ts)
	s.logger.Debug("added memory", "id", rec.ID, "kind", rec.Kind)
	return rec.ID, nil
}

// AppendTruth reads every temporal_truth row of topic and inserts the row
// produced by build in the same transaction, so concurrent callers never
// observe the same prior set.
func (s *SQLiteStore) AppendTruth(ctx context.Context, topic string, build BuildFunc) (types.MemoryRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.MemoryRecord{}, goerr.Wrap(errs.ErrStorageUnavailable, "begin truth append", goerr.V("cause", err.Error()))
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectMemoryCols+` WHERE kind = ? AND topic = ? ORDER BY id`,
		string(types.KindTemporalTruth), topic)
	if err != nil {
		return types.MemoryRecord{}, goerr.Wrap(errs.ErrStorageUnavailable, "query truth history", goerr.V("cause", err.Error()))
	}
	prior, err := collectMemories(rows)
	if err != nil {
		return types.MemoryRecord{}, err
	}

	in, err := build(prior)
	if err != nil {
		return types.MemoryRecord{}, err
	}
	if in.Kind != types.KindTemporalTruth || in.Topic != topic {
		return types.MemoryRecord{}, goerr.Wrap(errs.ErrInvalidConfig, "truth builder returned a foreign record",
			goerr.V("kind", string(in.Kind)), goerr.V("topic", in.Topic))
	}

	rec, ts, err := s.insertMemoryTx(ctx, tx, in)
	if err != nil {
		return types.MemoryRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.MemoryRecord{}, goerr.Wrap(errs.ErrStorageUnavailable, "commit truth append", goerr.V("cause", err.Error()))
	}
	s.commitWatermarks(rec, ts)
	return rec, nil
}

// insertMemoryTx must be called with writeMu held.
func (s *SQLiteStore) insertMemoryTx(ctx context.Context, tx *sql.Tx, in types.NewMemory) (types.MemoryRecord, float64, error) {
	if !in.Kind.Persisted() {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrInvalidConfig, "unknown memory kind", goerr.V("kind", string(in.Kind)))
	}
	if !(in.Confidence >= 0 && in.Confidence <= 1) {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrInvalidConfig, "confidence out of range", goerr.V("confidence", in.Confidence))
	}
	if len(in.Embedding) == 0 {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrInvalidConfig, "embedding must not be empty")
	}
	if s.dim != 0 && len(in.Embedding) != s.dim {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrInvalidConfig, "embedding dimension mismatch",
			goerr.V("want", s.dim), goerr.V("got", len(in.Embedding)))
	}

	embJSON, err := json.Marshal(in.Embedding)
	if err != nil {
		return types.MemoryRecord{}, 0, goerr.Wrap(err, "marshal embedding")
	}
	metaJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return types.MemoryRecord{}, 0, goerr.Wrap(err, "marshal metadata")
	}

	ts := s.stamp(&s.lastMemoryAt)
	res, err := tx.ExecContext(ctx, `INSERT INTO memories(
		kind, content, embedding, created_at, source, confidence, topic, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(in.Kind),
		in.Content,
		embJSON,
		ts,
		in.Source,
		in.Confidence,
		nullableText(in.Topic),
		string(metaJSON),
	)
	if err != nil {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrStorageUnavailable, "insert memory", goerr.V("cause", err.Error()))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.MemoryRecord{}, 0, goerr.Wrap(errs.ErrStorageUnavailable, "insert memory id", goerr.V("cause", err.Error()))
	}

	return types.MemoryRecord{
		ID:         id,
		Kind:       in.Kind,
		Content:    in.Content,
		Embedding:  append([]float32(nil), in.Embedding...),
		CreatedAt:  fromEpoch(ts),
		Source:     in.Source,
		Confidence: in.Confidence,
		Topic:      in.Topic,
		Metadata:   in.Metadata,
	}, ts, nil
}

func (s *SQLiteStore) commitWatermarks(rec types.MemoryRecord, ts float64) {
	if s.dim == 0 {
		s.dim = len(rec.Embedding)
	}
	s.lastMemoryAt = ts
}

// stamp returns the current time as epoch seconds, never earlier than the
// watermark so ids and timestamps stay in the same order.
func (s *SQLiteStore) stamp(watermark *float64) float64 {
	ts := toEpoch(s.now())
	if ts < *watermark {
		ts = *watermark
	}
	return ts
}

// ListMemories returns every record whose kind is in kinds, ordered by id.
func (s *SQLiteStore) ListMemories(ctx context.Context, kinds ...types.Kind) ([]types.MemoryRecord, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	where, args, err := kindFilter(kinds)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectMemoryCols+" WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "list memories", goerr.V("cause", err.Error()))
	}
	return collectMemories(rows)
}

// MemoriesSince returns records created at or after since. With no kinds
// every persisted kind is included.
func (s *SQLiteStore) MemoriesSince(ctx context.Context, since time.Time, kinds ...types.Kind) ([]types.MemoryRecord, error) {
	if len(kinds) == 0 {
		kinds = types.PersistedKinds
	}
	where, args, err := kindFilter(kinds)
	if err != nil {
		return nil, err
	}
	args = append(args, toEpoch(since))
	rows, err := s.db.QueryContext(ctx, selectMemoryCols+" WHERE "+where+" AND created_at >= ? ORDER BY id", args...)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "list memories since", goerr.V("cause", err.Error()))
	}
	return collectMemories(rows)
}

// LastMessages returns the newest limit messages in chronological order.
func (s *SQLiteStore) LastMessages(ctx context.Context, limit int) ([]types.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "list messages", goerr.V("cause", err.Error()))
	}
	defer rows.Close()

	items := make([]types.Message, 0, limit)
	for rows.Next() {
		var (
			msg  types.Message
			role string
			ts   float64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts); err != nil {
			return nil, goerr.Wrap(errs.ErrStorageUnavailable, "scan message", goerr.V("cause", err.Error()))
		}
		msg.Role = types.Role(role)
		if !msg.Role.Valid() {
			return nil, goerr.Wrap(errs.ErrInvalidConfig, "stored message has unknown role", goerr.V("id", msg.ID), goerr.V("role", role))
		}
		msg.CreatedAt = fromEpoch(ts)
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "iterate messages", goerr.V("cause", err.Error()))
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// DecaySnapshot pairs every matching record with its decayed confidence.
// Storage is not modified.
func (s *SQLiteStore) DecaySnapshot(ctx context.Context, model decay.Model, halfLifeDays float64, kinds ...types.Kind) ([]types.DecayedRecord, error) {
	if err := decay.ValidateHalfLife(halfLifeDays); err != nil {
		return nil, err
	}
	recs, err := s.ListMemories(ctx, kinds...)
	if err != nil {
		return nil, err
	}
	out := make([]types.DecayedRecord, 0, len(recs))
	for _, rec := range recs {
		d, err := model.Decay(rec.Confidence, rec.CreatedAt, halfLifeDays)
		if err != nil {
			return nil, err
		}
		out = append(out, types.DecayedRecord{Record: rec, Decayed: d})
	}
	return out, nil
}

// Stats returns per-kind counters.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByKind: map[types.Kind]int64{}}
	rows, err := s.db.QueryContext(ctx, `SELECT kind, count(*) FROM memories GROUP BY kind`)
	if err != nil {
		return st, goerr.Wrap(errs.ErrStorageUnavailable, "count memories", goerr.V("cause", err.Error()))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return st, goerr.Wrap(errs.ErrStorageUnavailable, "scan counts", goerr.V("cause", err.Error()))
		}
		st.ByKind[types.Kind(kind)] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, goerr.Wrap(errs.ErrStorageUnavailable, "iterate counts", goerr.V("cause", err.Error()))
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages`).Scan(&st.Messages); err != nil {
		return st, goerr.Wrap(errs.ErrStorageUnavailable, "count messages", goerr.V("cause", err.Error()))
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM mcp_requests`).Scan(&st.Requests); err != nil {
		return st, goerr.Wrap(errs.ErrStorageUnavailable, "count requests", goerr.V("cause", err.Error()))
	}
	st.Dimension = s.Dimension()
	return st, nil
}

// InsertMCPRequestLog stores one request event for admin observability.
func (s *SQLiteStore) InsertMCPRequestLog(ctx context.Context, rec MCPRequestLog) error {
	ts := rec.CreatedAt.UTC()
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	success := 0
	if rec.Success {
		success = 1
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO mcp_requests (
		request_id, method, tool_name, success, error_text, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(rec.RequestID),
		strings.TrimSpace(rec.Method),
		strings.TrimSpace(rec.ToolName),
		success,
		strings.TrimSpace(rec.ErrorText),
		rec.DurationMS,
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert mcp request log: %w", err)
	}
	return nil
}

// RecentMCPRequestLogs returns most recent request events in newest-first order.
func (s *SQLiteStore) RecentMCPRequestLogs(ctx context.Context, limit int) ([]MCPRequestLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, request_id, method, tool_name, success, error_text, duration_ms, created_at
FROM mcp_requests
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list mcp request logs: %w", err)
	}
	defer rows.Close()

	items := make([]MCPRequestLog, 0, limit)
	for rows.Next() {
		var (
			row            MCPRequestLog
			successAsInt   int
			createdAtValue string
		)
		if err := rows.Scan(
			&row.ID,
			&row.RequestID,
			&row.Method,
			&row.ToolName,
			&successAsInt,
			&row.ErrorText,
			&row.DurationMS,
			&createdAtValue,
		); err != nil {
			return nil, fmt.Errorf("scan mcp request log: %w", err)
		}
		row.Success = successAsInt == 1
		if ts, err := time.Parse(time.RFC3339Nano, createdAtValue); err == nil {
			row.CreatedAt = ts
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// RecentMemories returns compact memory rows in newest-first order.
func (s *SQLiteStore) RecentMemories(ctx context.Context, limit int) ([]RecentMemory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, COALESCE(topic, ''), content, confidence, created_at
FROM memories
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	defer rows.Close()

	items := make([]RecentMemory, 0, limit)
	for rows.Next() {
		var (
			row  RecentMemory
			kind string
			ts   float64
		)
		if err := rows.Scan(&row.ID, &kind, &row.Topic, &row.Content, &row.Confidence, &ts); err != nil {
			return nil, fmt.Errorf("scan recent memory: %w", err)
		}
		row.Kind = types.Kind(kind)
		row.CreatedAt = fromEpoch(ts)
		items = append(items, row)
	}
	return items, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
