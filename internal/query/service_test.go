package query

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"SwapLedger/internal/builder"
	"SwapLedger/internal/contract"
	"SwapLedger/internal/event"
	"SwapLedger/internal/indexer"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
)

var testMetrics = observability.NewMetrics()

// fakeSource serves a fixed event range in one page.
type fakeSource struct {
	events     []*event.OpEvent
	bestHeight int64
}

func (f *fakeSource) EventList(ctx context.Context, moduleID string, startHeight int64, cursor, size int64) (*indexer.EventPage, error) {
	total := int64(len(f.events))
	if cursor >= total {
		return &indexer.EventPage{Total: total}, nil
	}
	return &indexer.EventPage{List: f.events[cursor:], Total: total}, nil
}

func (f *fakeSource) TickInfo(ctx context.Context, tick string) (*indexer.TickInfo, error) {
	return &indexer.TickInfo{Ticker: tick, Decimal: 18}, nil
}

func (f *fakeSource) BestHeight(ctx context.Context) (int64, error) {
	return f.bestHeight, nil
}

// nopStore discards all writes; the read side never consults the store.
type nopStore struct{}

func (nopStore) UpsertEvents(ctx context.Context, rows []persistence.EventRecord) error { return nil }
func (nopStore) UpsertCommitCalls(ctx context.Context, rows []persistence.CommitCallRecord) error {
	return nil
}
func (nopStore) UpsertCommitBookkeeping(ctx context.Context, row persistence.CommitBookkeeping) error {
	return nil
}
func (nopStore) UpsertDeposits(ctx context.Context, rows []persistence.DepositRecord) error {
	return nil
}
func (nopStore) UpsertMatchedDeposits(ctx context.Context, rows []persistence.MatchedDepositRecord) error {
	return nil
}
func (nopStore) SaveCheckpointBatch(ctx context.Context, rows []persistence.CheckpointRecord) error {
	return nil
}
func (nopStore) LoadLatestCheckpoint(ctx context.Context) (*persistence.CheckpointRecord, error) {
	return nil, nil
}
func (nopStore) MaxCheckpointSeq(ctx context.Context) (int64, error) { return 0, nil }
func (nopStore) UpsertPools(ctx context.Context, rows []persistence.PoolRow) error {
	return nil
}

var _ persistence.Store = nopStore{}

func newTestBuilder(t *testing.T, ticked bool) *builder.OpBuilder {
	t.Helper()
	registry := fpmath.NewRegistry(nil)
	registry.Set("aaaa", 18)
	registry.Set("bbbb", 18)

	source := &fakeSource{
		bestHeight: 12,
		events: []*event.OpEvent{
			{
				Event: event.KindTransfer, Height: 10, From: "bc1qalice",
				InscriptionID: "i0", TxID: "t0",
				Op: event.TransferOp{Tick: "aaaa", Amount: "100"},
			},
			{
				Event: event.KindTransfer, Height: 10, From: "bc1qalice",
				InscriptionID: "i1", TxID: "t1",
				Op: event.TransferOp{Tick: "bbbb", Amount: "100"},
			},
			{
				Event: event.KindCommit, Height: 12, From: "bc1qalice",
				InscriptionID: "i2", TxID: "t2",
				Op: event.CommitOp{Module: "mod-1", Calls: []event.ContractCall{
					{Func: event.FuncDeployPool, Params: []string{"aaaa", "bbbb"}, Address: "bc1qalice"},
					{Func: event.FuncAddLiq, Params: []string{"aaaa", "bbbb", "50", "50", "0", "0"}, Address: "bc1qalice"},
				}},
			},
		},
	}

	b := builder.NewOpBuilder(
		builder.Config{
			ModuleID:            "mod-1",
			ConfirmationDepth:   6,
			CheckpointBatchSize: 1000,
			PageSize:            100,
			Contract:            contract.Config{},
		},
		source, nopStore{}, registry, nil, zerolog.Nop(), testMetrics,
	)
	ctx := context.Background()
	if err := b.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if ticked {
		if err := b.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	return b
}

func TestStatusReflectsHead(t *testing.T) {
	svc := NewService(newTestBuilder(t, true))

	info, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.ModuleID != "mod-1" {
		t.Errorf("module = %s", info.ModuleID)
	}
	if info.BestHeight != 12 {
		t.Errorf("best height = %d", info.BestHeight)
	}
	if info.LatestTxID != "t2" || info.LatestCommitTxID != "t2" {
		t.Errorf("latest = %s / %s", info.LatestTxID, info.LatestCommitTxID)
	}
	if info.State != "idle" {
		t.Errorf("state = %s", info.State)
	}
}

func TestPoolLookupEitherOrder(t *testing.T) {
	svc := NewService(newTestBuilder(t, true))
	ctx := context.Background()

	want := ledger.GetPairStr("aaaa", "bbbb")
	for _, ticks := range [][2]string{{"aaaa", "bbbb"}, {"bbbb", "aaaa"}} {
		pool, err := svc.Pool(ctx, ticks[0], ticks[1])
		if err != nil {
			t.Fatalf("pool(%v): %v", ticks, err)
		}
		if pool.Pair != want {
			t.Errorf("pair = %s, want %s", pool.Pair, want)
		}
		if pool.Reserve0 != "50" || pool.Reserve1 != "50" {
			t.Errorf("reserves = %s / %s", pool.Reserve0, pool.Reserve1)
		}
		if pool.LpSupply != "50" {
			t.Errorf("lp supply = %s", pool.LpSupply)
		}
	}

	if _, err := svc.Pool(ctx, "aaaa", "zzzz"); !errors.Is(err, ledger.ErrPoolNotFound) {
		t.Errorf("unknown pool err = %v", err)
	}

	pools, err := svc.Pools(ctx)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools) != 1 || pools[0].Pair != want {
		t.Errorf("pools = %+v", pools)
	}
}

func TestBalancesSkipZero(t *testing.T) {
	svc := NewService(newTestBuilder(t, true))

	balances, err := svc.Balances(context.Background(), "bc1qalice")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	got := make(map[string]string, len(balances))
	for _, b := range balances {
		if b.Class != string(ledger.AssetSwap) {
			t.Errorf("unexpected class %s", b.Class)
		}
		got[b.Tick] = b.Balance
	}
	if got["aaaa"] != "50" || got["bbbb"] != "50" {
		t.Errorf("token balances = %v", got)
	}
	// First liquidity: the minimum stays locked, so the holder is short of
	// the full geometric mean by 1000 base units.
	pair := ledger.GetPairStr("aaaa", "bbbb")
	if got[pair] != "49.999999999999999" {
		t.Errorf("lp balance = %s", got[pair])
	}

	empty, err := svc.Balances(context.Background(), "bc1qnobody")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("stranger balances = %+v", empty)
	}
}

func TestQuoteBothLegs(t *testing.T) {
	svc := NewService(newTestBuilder(t, true))
	ctx := context.Background()

	q, err := svc.Quote(ctx, "aaaa", "bbbb", "10", "exactIn")
	if err != nil {
		t.Fatalf("quote exactIn: %v", err)
	}
	if q.AmountIn != "10" {
		t.Errorf("amountIn = %s", q.AmountIn)
	}
	// 10*50/(50+10) with the fraction rounded down.
	if q.AmountOut != "8.333333333333333333" {
		t.Errorf("amountOut = %s", q.AmountOut)
	}

	q, err = svc.Quote(ctx, "aaaa", "bbbb", "10", "exactOut")
	if err != nil {
		t.Fatalf("quote exactOut: %v", err)
	}
	if q.AmountOut != "10" {
		t.Errorf("amountOut = %s", q.AmountOut)
	}
	// 10*50/(50-10) rounded up by one base unit.
	if q.AmountIn != "12.500000000000000001" {
		t.Errorf("amountIn = %s", q.AmountIn)
	}

	if _, err := svc.Quote(ctx, "aaaa", "bbbb", "10", "bogus"); err == nil {
		t.Error("bogus exact type accepted")
	}
	if _, err := svc.Quote(ctx, "aaaa", "zzzz", "10", "exactIn"); !errors.Is(err, ledger.ErrPoolNotFound) {
		t.Errorf("unknown pool err = %v", err)
	}
}

func TestNotReadyBeforeFirstHead(t *testing.T) {
	registry := fpmath.NewRegistry(nil)
	b := builder.NewOpBuilder(
		builder.Config{ModuleID: "mod-1"},
		&fakeSource{}, nopStore{}, registry, nil, zerolog.Nop(), testMetrics,
	)
	svc := NewService(b)

	if _, err := svc.Status(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("status before init = %v", err)
	}
	if _, err := svc.Pools(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("pools before init = %v", err)
	}
}
