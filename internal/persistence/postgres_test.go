package persistence

import (
	"context"
	"testing"
	"time"

	"SwapLedger/internal/contract"
	"SwapLedger/internal/core"
	fpmath "SwapLedger/internal/math"
	"SwapLedger/internal/testutil"
)

func setupStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestUpsertEventsIdempotent(t *testing.T) {
	store, ctx := setupStore(t)

	rows := []EventRecord{
		{
			Event: "transfer", InscriptionID: "i0", TxID: "t0", Height: 10,
			InscriptionNumber: 1, From: "bc1qalice", BlockTime: time.Now().Unix(),
			Op: []byte(`{"tick":"aaaa","amt":"100"}`), Results: []byte(`[]`),
		},
		{
			Event: "commit", InscriptionID: "i1", TxID: "t1", Height: 11,
			InscriptionNumber: 2, From: "bc1qalice", BlockTime: time.Now().Unix(),
			Op: []byte(`{}`), Results: []byte(`[]`),
		},
	}
	if err := store.UpsertEvents(ctx, rows); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// A replayed range rewrites the same rows; the height of the
	// unconfirmed suffix may shift.
	rows[1].Height = 12
	if err := store.UpsertEvents(ctx, rows); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM swap.events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("events = %d, want 2", count)
	}

	var height int64
	if err := store.db.QueryRowContext(ctx,
		`SELECT height FROM swap.events WHERE txid = 't1'`).Scan(&height); err != nil {
		t.Fatalf("select: %v", err)
	}
	if height != 12 {
		t.Errorf("height = %d after conflict update", height)
	}
}

func TestCheckpointBatchRoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	registry := fpmath.NewRegistry(nil)
	registry.Set("aaaa", 18)
	snapshot := core.NewSpace("mod-1", contract.Config{}, registry).Snapshot()

	rows := []CheckpointRecord{
		{Seq: 1, Event: "transfer", InscriptionID: "i0", TxID: "t0", Height: 10, CreatedAt: time.Now()},
		{Seq: 2, Event: "transfer", InscriptionID: "i1", TxID: "t1", Height: 10, CreatedAt: time.Now()},
		{Seq: 3, Event: "commit", InscriptionID: "i2", TxID: "t2", Height: 11, Snapshot: snapshot, CreatedAt: time.Now()},
	}
	if err := store.SaveCheckpointBatch(ctx, rows); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A crashed-and-retried batch lands on the same seqs.
	if err := store.SaveCheckpointBatch(ctx, rows); err != nil {
		t.Fatalf("retry save: %v", err)
	}

	cp, err := store.LoadLatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp == nil {
		t.Fatal("no checkpoint loaded")
	}
	if cp.Seq != 3 || cp.TxID != "t2" || cp.Height != 11 {
		t.Errorf("checkpoint = %+v", cp)
	}
	if cp.Snapshot == nil || cp.Snapshot.ModuleID != "mod-1" {
		t.Errorf("snapshot = %+v", cp.Snapshot)
	}

	maxSeq, err := store.MaxCheckpointSeq(ctx)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 3 {
		t.Errorf("max seq = %d", maxSeq)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM swap.checkpoints`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("checkpoint rows = %d after retry", count)
	}
}

func TestLoadCheckpointEmpty(t *testing.T) {
	store, ctx := setupStore(t)

	cp, err := store.LoadLatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp != nil {
		t.Errorf("checkpoint = %+v on empty table", cp)
	}
	maxSeq, err := store.MaxCheckpointSeq(ctx)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 0 {
		t.Errorf("max seq = %d on empty table", maxSeq)
	}
}

func TestUpsertPoolsConverges(t *testing.T) {
	store, ctx := setupStore(t)

	row := PoolRow{
		Pair: "aaaa/bbbb", Tick0: "aaaa", Tick1: "bbbb",
		Reserve0: "100", Reserve1: "100", LpSupply: "100", KLast: "10000",
	}
	if err := store.UpsertPools(ctx, []PoolRow{row}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	row.Reserve0, row.Reserve1 = "150", "70"
	if err := store.UpsertPools(ctx, []PoolRow{row}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var r0, r1 string
	if err := store.db.QueryRowContext(ctx,
		`SELECT reserve0, reserve1 FROM projections.pools WHERE pair = 'aaaa/bbbb'`).Scan(&r0, &r1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if r0 != "150" || r1 != "70" {
		t.Errorf("reserves = %s / %s", r0, r1)
	}
}

func TestCommitRecords(t *testing.T) {
	store, ctx := setupStore(t)

	calls := []CommitCallRecord{
		{TxID: "t2", CallIndex: 0, InscriptionID: "i2", Height: 11, Func: "deployPool",
			Address: "bc1qalice", Params: []byte(`["aaaa","bbbb"]`), Outputs: []byte(`{"pair":"aaaa/bbbb"}`)},
		{TxID: "t2", CallIndex: 1, InscriptionID: "i2", Height: 11, Func: "swap",
			Address: "bc1qalice", Params: []byte(`[]`), Error: "pool not found"},
	}
	if err := store.UpsertCommitCalls(ctx, calls); err != nil {
		t.Fatalf("calls: %v", err)
	}
	if err := store.UpsertCommitBookkeeping(ctx, CommitBookkeeping{
		TxID: "t2", InscriptionID: "i2", Height: 11, CallCount: 2, InvalidCalls: 1,
	}); err != nil {
		t.Fatalf("bookkeeping: %v", err)
	}

	var invalid int
	if err := store.db.QueryRowContext(ctx,
		`SELECT invalid_calls FROM swap.commits WHERE txid = 't2'`).Scan(&invalid); err != nil {
		t.Fatalf("select: %v", err)
	}
	if invalid != 1 {
		t.Errorf("invalid calls = %d", invalid)
	}
}
