package persistence

import (
	"context"
	"time"

	"SwapLedger/internal/core"
)

// EventRecord is the durable per-event row. Keyed by the event's natural
// identity so rebuild re-derivation upserts instead of duplicating.
type EventRecord struct {
	Event             string
	InscriptionID     string
	TxID              string
	Height            int64
	InscriptionNumber int64
	From              string
	To                string
	BlockTime         int64
	Op                []byte // JSON op payload
	Results           []byte // JSON []core.CallResult
}

// CommitCallRecord is one batched sub-operation of a commit event.
type CommitCallRecord struct {
	TxID          string
	CallIndex     int
	InscriptionID string
	Height        int64
	Func          string
	Address       string
	Params        []byte // JSON params array
	Error         string
	Outputs       []byte // JSON outputs map
}

// CommitBookkeeping summarizes one processed commit event.
type CommitBookkeeping struct {
	TxID          string
	InscriptionID string
	Height        int64
	CallCount     int
	InvalidCalls  int
}

// DepositRecord is a direct deposit derived from a transfer event.
type DepositRecord struct {
	InscriptionID string
	TxID          string
	Address       string
	Tick          string
	Amount        string // internal units, decimal string
	Height        int64
	BlockTime     int64
}

// MatchedDepositRecord is a deposit matched against a conditional approval.
type MatchedDepositRecord struct {
	InscriptionID string
	TxID          string
	TransferID    string
	From          string
	To            string
	Tick          string
	Amount        string
	Height        int64
}

// CheckpointRecord is one confirmed-event row. Within a checkpoint batch only
// the tail row carries a snapshot; the others mark event identity. The
// newest snapshot-bearing row is the sole replay starting point.
type CheckpointRecord struct {
	Seq           int64
	Event         string
	InscriptionID string
	TxID          string
	Height        int64
	Snapshot      *core.SnapshotData
	CreatedAt     time.Time
}

// PoolRow is the read-optimized pool projection.
type PoolRow struct {
	Pair     string
	Tick0    string
	Tick1    string
	Reserve0 string
	Reserve1 string
	LpSupply string
	KLast    string
}

// Store is the document-store contract the builder writes through. All
// writes are idempotent upserts by natural key: a crashed tick's partial
// writes are superseded by the next tick's full re-derivation.
type Store interface {
	UpsertEvents(ctx context.Context, rows []EventRecord) error
	UpsertCommitCalls(ctx context.Context, rows []CommitCallRecord) error
	UpsertCommitBookkeeping(ctx context.Context, row CommitBookkeeping) error
	UpsertDeposits(ctx context.Context, rows []DepositRecord) error
	UpsertMatchedDeposits(ctx context.Context, rows []MatchedDepositRecord) error

	SaveCheckpointBatch(ctx context.Context, rows []CheckpointRecord) error
	LoadLatestCheckpoint(ctx context.Context) (*CheckpointRecord, error)
	MaxCheckpointSeq(ctx context.Context) (int64, error)

	UpsertPools(ctx context.Context, rows []PoolRow) error
}
