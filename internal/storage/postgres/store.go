package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zapkit/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS zap_attempts (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL,
	generation BIGINT NOT NULL,
	operation TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	account TEXT NOT NULL,
	pool TEXT NOT NULL,
	token TEXT NOT NULL,
	amount NUMERIC NOT NULL,
	minimum_out NUMERIC,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	tx_hash TEXT,
	summary TEXT,
	error TEXT,
	at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS zap_attempts_account_at ON zap_attempts (account, at DESC);
CREATE TABLE IF NOT EXISTS pending_transactions (
	hash TEXT PRIMARY KEY,
	chain_id BIGINT NOT NULL,
	session_id BIGINT NOT NULL,
	operation TEXT NOT NULL,
	summary TEXT NOT NULL,
	status TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for the zap journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Record inserts one transition.
func (s *Store) Record(ctx context.Context, record model.ZapRecord) error {
	return s.InsertAttempts(ctx, []model.ZapRecord{record})
}

const insertAttempt = `
	INSERT INTO zap_attempts (
		session_id, generation, operation, chain_id, account, pool, token, amount,
		minimum_out, from_state, to_state, tx_hash, summary, error, at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::TEXT::NUMERIC,NULLIF($9::TEXT,'')::NUMERIC,$10,$11,NULLIF($12::TEXT,''),NULLIF($13::TEXT,''),NULLIF($14::TEXT,''),$15)
`

// InsertAttempts writes records in one batch.
func (s *Store) InsertAttempts(ctx context.Context, records []model.ZapRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		amount := r.Amount
		if amount == "" {
			amount = "0"
		}
		batch.Queue(insertAttempt,
			int64(r.SessionID),
			int64(r.Generation),
			r.Operation,
			int64(r.ChainID),
			r.Account,
			r.Pool,
			r.Token,
			amount,
			r.MinimumOut,
			r.From,
			r.To,
			r.TxHash,
			r.Summary,
			r.Error,
			r.At,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert zap attempt: %w", err)
		}
	}
	return nil
}

// RecentAttempts returns the latest transitions of account, newest first.
func (s *Store) RecentAttempts(ctx context.Context, account string, limit int) ([]model.ZapRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, generation, operation, chain_id, account, pool, token, amount::TEXT,
			COALESCE(minimum_out::TEXT, ''), from_state, to_state, COALESCE(tx_hash, ''),
			COALESCE(summary, ''), COALESCE(error, ''), at
		FROM zap_attempts
		WHERE account = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ZapRecord
	for rows.Next() {
		var (
			r                          model.ZapRecord
			sessionID, generation, cid int64
		)
		if err := rows.Scan(&sessionID, &generation, &r.Operation, &cid, &r.Account, &r.Pool, &r.Token, &r.Amount,
			&r.MinimumOut, &r.From, &r.To, &r.TxHash, &r.Summary, &r.Error, &r.At); err != nil {
			return nil, err
		}
		r.SessionID, r.Generation, r.ChainID = uint64(sessionID), uint64(generation), uint64(cid)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertPending inserts or updates broadcast transactions.
func (s *Store) UpsertPending(ctx context.Context, txs []model.PendingTx) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tx := range txs {
		updated := tx.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO pending_transactions (
				hash, chain_id, session_id, operation, summary, status, sent_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (hash)
			DO UPDATE SET
				status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at
		`,
			tx.Hash,
			int64(tx.ChainID),
			int64(tx.SessionID),
			tx.Operation,
			tx.Summary,
			tx.Status,
			tx.SentAt,
			updated,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range txs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert pending transaction: %w", err)
		}
	}
	return nil
}
