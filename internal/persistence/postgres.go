package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresStore implements Store on database/sql. Batch writes use
// multi-row INSERT ... ON CONFLICT as a portable alternative to the COPY
// protocol; switch to pgx CopyFrom if write volume ever demands it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertEvents writes per-event rows. Height and results may legitimately
// change when the unconfirmed suffix reorganizes, so conflicts update.
func (s *PostgresStore) UpsertEvents(ctx context.Context, rows []EventRecord) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO swap.events
		(event, inscription_id, txid, height, inscription_number, from_addr, to_addr, block_time, op, results)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)
	for i, r := range rows {
		base := i * 10
		values = append(values, placeholders(base, 10))
		args = append(args,
			r.Event, r.InscriptionID, r.TxID, r.Height, r.InscriptionNumber,
			r.From, r.To, r.BlockTime, r.Op, r.Results,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (event, inscription_id, txid) DO UPDATE SET
		height = EXCLUDED.height,
		inscription_number = EXCLUDED.inscription_number,
		results = EXCLUDED.results`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) UpsertCommitCalls(ctx context.Context, rows []CommitCallRecord) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO swap.commit_calls
		(txid, call_index, inscription_id, height, func, address, params, error, outputs)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)
	for i, r := range rows {
		base := i * 9
		values = append(values, placeholders(base, 9))
		args = append(args,
			r.TxID, r.CallIndex, r.InscriptionID, r.Height,
			r.Func, r.Address, r.Params, r.Error, r.Outputs,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (txid, call_index) DO UPDATE SET
		height = EXCLUDED.height,
		error = EXCLUDED.error,
		outputs = EXCLUDED.outputs`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) UpsertCommitBookkeeping(ctx context.Context, row CommitBookkeeping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swap.commits (txid, inscription_id, height, call_count, invalid_calls, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (txid) DO UPDATE SET
			height = EXCLUDED.height,
			call_count = EXCLUDED.call_count,
			invalid_calls = EXCLUDED.invalid_calls,
			updated_at = NOW()
	`, row.TxID, row.InscriptionID, row.Height, row.CallCount, row.InvalidCalls)
	return err
}

func (s *PostgresStore) UpsertDeposits(ctx context.Context, rows []DepositRecord) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO swap.deposits
		(inscription_id, txid, address, tick, amount, height, block_time)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)
	for i, r := range rows {
		base := i * 7
		values = append(values, placeholders(base, 7))
		args = append(args, r.InscriptionID, r.TxID, r.Address, r.Tick, r.Amount, r.Height, r.BlockTime)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (inscription_id, txid) DO UPDATE SET height = EXCLUDED.height`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) UpsertMatchedDeposits(ctx context.Context, rows []MatchedDepositRecord) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO swap.matched_deposits
		(inscription_id, txid, transfer_id, from_addr, to_addr, tick, amount, height)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)
	for i, r := range rows {
		base := i * 8
		values = append(values, placeholders(base, 8))
		args = append(args, r.InscriptionID, r.TxID, r.TransferID, r.From, r.To, r.Tick, r.Amount, r.Height)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (inscription_id, txid) DO UPDATE SET height = EXCLUDED.height`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// SaveCheckpointBatch persists one confirmed batch in a single
// transaction: every row is a marker, the tail row carries the snapshot.
func (s *PostgresStore) SaveCheckpointBatch(ctx context.Context, rows []CheckpointRecord) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	batchID := uuid.New()
	for _, r := range rows {
		var snapData []byte
		if r.Snapshot != nil {
			snapData, err = json.Marshal(r.Snapshot)
			if err != nil {
				return fmt.Errorf("marshal snapshot at seq %d: %w", r.Seq, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO swap.checkpoints (seq, batch_id, event, inscription_id, txid, height, snapshot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (seq) DO NOTHING
		`, r.Seq, batchID, r.Event, r.InscriptionID, r.TxID, r.Height, snapData, r.CreatedAt); err != nil {
			return fmt.Errorf("insert checkpoint seq %d: %w", r.Seq, err)
		}
	}

	return tx.Commit()
}

// LoadLatestCheckpoint returns the newest snapshot-bearing checkpoint row,
// or nil on a cold start.
func (s *PostgresStore) LoadLatestCheckpoint(ctx context.Context) (*CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, event, inscription_id, txid, height, snapshot, created_at
		FROM swap.checkpoints
		WHERE snapshot IS NOT NULL
		ORDER BY seq DESC
		LIMIT 1
	`)

	var (
		rec      CheckpointRecord
		snapData []byte
	)
	if err := row.Scan(&rec.Seq, &rec.Event, &rec.InscriptionID, &rec.TxID, &rec.Height, &snapData, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if err := json.Unmarshal(snapData, &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint snapshot seq %d: %w", rec.Seq, err)
	}
	return &rec, nil
}

// MaxCheckpointSeq returns the highest checkpoint sequence (0 when empty).
func (s *PostgresStore) MaxCheckpointSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM swap.checkpoints`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func (s *PostgresStore) UpsertPools(ctx context.Context, rows []PoolRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO projections.pools
		(pair, tick0, tick1, reserve0, reserve1, lp_supply, k_last, updated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)
	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, r.Pair, r.Tick0, r.Tick1, r.Reserve0, r.Reserve1, r.LpSupply, r.KLast)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (pair) DO UPDATE SET
		reserve0 = EXCLUDED.reserve0,
		reserve1 = EXCLUDED.reserve1,
		lp_supply = EXCLUDED.lp_supply,
		k_last = EXCLUDED.k_last,
		updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func placeholders(base, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

var _ Store = (*PostgresStore)(nil)
