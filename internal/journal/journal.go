// Package journal keeps a history of lottery actions in Postgres.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one finished action.
type Entry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Account     string    `json:"account"`
	NetworkID   string    `json:"network_id"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	ValueWei    string    `json:"value_wei,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Noop drops entries.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error { return nil }

func (Noop) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Record inserts e. Recording the same action id twice is a no-op.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.DB.Exec(ctx, `
		insert into lottery_actions
			(id, kind, account, network_id, tx_hash, outcome, error, value_wei, block_number, gas_used, started_at, finished_at)
		values ($1::uuid, $2, $3, $4, nullif($5, ''), $6, nullif($7, ''), nullif($8, '')::numeric, nullif($9::bigint, 0), $10, $11, $12)
	`, e.ID, e.Kind, e.Account, e.NetworkID, e.TxHash, e.Outcome, e.Error, e.ValueWei,
		int64(e.BlockNumber), int64(e.GasUsed), e.StartedAt, e.FinishedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("record action %s: %w", e.ID, err)
	}
	return nil
}

// Recent lists the newest entries, optionally only those of account.
func (s *Store) Recent(ctx context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
		select id::text, kind, account, network_id, coalesce(tx_hash, ''), outcome, coalesce(error, ''),
		       coalesce(value_wei::text, ''), coalesce(block_number, 0), gas_used, started_at, finished_at
		from lottery_actions
		where $1 = '' or lower(account) = lower($1)
		order by finished_at desc, id desc
		limit $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e            Entry
			block, spent int64
		)
		err := row.Scan(&e.ID, &e.Kind, &e.Account, &e.NetworkID, &e.TxHash, &e.Outcome, &e.Error,
			&e.ValueWei, &block, &spent, &e.StartedAt, &e.FinishedAt)
		e.BlockNumber = uint64(block)
		e.GasUsed = uint64(spent)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan actions: %w", err)
	}
	return entries, nil
}
