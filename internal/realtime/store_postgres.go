package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Uses per-scope transactional advisory locks to guarantee gap-free,
//   strictly monotonic sequence allocation under concurrent appends.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "chunkmeet").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chunkmeet",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Append appends a message with monotonic per-scope sequence allocation.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (StoredMessage, error) {
	if s == nil || s.pool == nil {
		return StoredMessage{}, errors.New("realtime: nil store")
	}
	if !in.Scope.Valid() {
		return StoredMessage{}, ErrInvalidScope
	}
	if in.Sender == "" || in.Body == "" {
		return StoredMessage{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	serverMsgID, err := NewServerMsgID(now)
	if err != nil {
		return StoredMessage{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return StoredMessage{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cursors := pgIdent(s.schema, "scope_cursors")
	messages := pgIdent(s.schema, "messages")

	// Serialize all writes per scope so seq allocation stays gap-free and
	// strictly monotonic under concurrency.
	//
	// hashtextextended reduces collision risk vs hashtext (still a hash, but better).
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.Scope.lockKey()); err != nil {
		return StoredMessage{}, fmt.Errorf("advisory lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+cursors+` (scope_kind, scope_key, next_seq)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (scope_kind, scope_key) DO NOTHING`,
		in.Scope.Kind, in.Scope.Key,
	); err != nil {
		return StoredMessage{}, err
	}

	var seq int64
	if err := tx.QueryRow(ctx,
		`UPDATE `+cursors+`
		    SET next_seq = next_seq + 1,
		        updated_at = now()
		  WHERE scope_kind = $1 AND scope_key = $2
		RETURNING (next_seq - 1)`,
		in.Scope.Kind, in.Scope.Key,
	).Scan(&seq); err != nil {
		return StoredMessage{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (
		     scope_kind, scope_key, seq, server_msg_id, sender, sender_name, body, server_ts
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.Scope.Kind, in.Scope.Key, seq, serverMsgID, in.Sender, in.SenderName, in.Body, now,
	); err != nil {
		return StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}

	out := StoredMessage{
		Scope:       in.Scope,
		ServerMsgID: serverMsgID,
		Seq:         seq,
		Sender:      in.Sender,
		SenderName:  in.SenderName,
		Body:        in.Body,
		ServerTS:    now,
	}

	if err := tx.Commit(ctx); err != nil {
		return StoredMessage{}, err
	}
	return out, nil
}

// History returns messages ordered by seq ASC, with optional paging by AfterSeq.
func (s *PostgresStore) History(ctx context.Context, in HistoryInput) (HistoryResult, error) {
	if s == nil || s.pool == nil {
		return HistoryResult{}, errors.New("realtime: nil store")
	}
	if !in.Scope.Valid() {
		return HistoryResult{}, ErrInvalidScope
	}
	if err := ctx.Err(); err != nil {
		return HistoryResult{}, err
	}

	limit := clampHistoryLimit(in.Limit)
	fetch := limit + 1

	messages := pgIdent(s.schema, "messages")

	var (
		rows pgx.Rows
		err  error
	)

	if in.AfterSeq == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT scope_kind, scope_key, seq, server_msg_id, sender, sender_name, body, server_ts
			   FROM `+messages+`
			  WHERE scope_kind = $1 AND scope_key = $2
			  ORDER BY seq ASC
			  LIMIT $3`,
			in.Scope.Kind, in.Scope.Key, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT scope_kind, scope_key, seq, server_msg_id, sender, sender_name, body, server_ts
			   FROM `+messages+`
			  WHERE scope_kind = $1 AND scope_key = $2 AND seq > $3
			  ORDER BY seq ASC
			  LIMIT $4`,
			in.Scope.Kind, in.Scope.Key, *in.AfterSeq, fetch,
		)
	}
	if err != nil {
		return HistoryResult{}, err
	}
	defer rows.Close()

	msgs := make([]StoredMessage, 0, fetch)
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(
			&m.Scope.Kind,
			&m.Scope.Key,
			&m.Seq,
			&m.ServerMsgID,
			&m.Sender,
			&m.SenderName,
			&m.Body,
			&m.ServerTS,
		); err != nil {
			return HistoryResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return HistoryResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	return HistoryResult{Messages: msgs, HasMore: hasMore}, nil
}

// MarkRead advances the reader's cursor; an older timestamp never wins.
func (s *PostgresStore) MarkRead(ctx context.Context, scope Scope, reader string, now time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("realtime: nil store")
	}
	if !scope.Valid() {
		return ErrInvalidScope
	}
	if reader == "" {
		return errors.New("missing reader")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cursors := pgIdent(s.schema, "read_cursors")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+cursors+` (scope_kind, scope_key, reader, read_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scope_kind, scope_key, reader)
		 DO UPDATE SET read_at = EXCLUDED.read_at
		 WHERE `+cursors+`.read_at < EXCLUDED.read_at`,
		scope.Kind, scope.Key, reader, now,
	)
	return err
}

// Participants returns the sorted roster of a group.
func (s *PostgresStore) Participants(ctx context.Context, groupID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	if groupID == "" {
		return nil, errors.New("missing group id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := pgIdent(s.schema, "group_members")
	rows, err := s.pool.Query(ctx,
		`SELECT member
		   FROM `+members+`
		  WHERE group_id = $1
		  ORDER BY member ASC`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
