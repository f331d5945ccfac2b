package core

import (
	"context"
	"errors"
	"testing"

	"SwapLedger/internal/contract"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
)

func newTestSpace(t *testing.T) *Space {
	t.Helper()
	registry := fpmath.NewRegistry(nil)
	registry.Set("aaaa", 18)
	registry.Set("bbbb", 18)
	return NewSpace("mod-1", contract.Config{}, registry)
}

func transferEvent(from, inscID, txid, tick, amount string) *event.OpEvent {
	return &event.OpEvent{
		Event:         event.KindTransfer,
		Op:            event.TransferOp{Tick: tick, Amount: amount},
		From:          from,
		InscriptionID: inscID,
		TxID:          txid,
		Height:        100,
	}
}

func commitEvent(txid string, calls ...event.ContractCall) *event.OpEvent {
	return &event.OpEvent{
		Event:         event.KindCommit,
		Op:            event.CommitOp{Module: "mod-1", Calls: calls},
		From:          "bc1qalice",
		InscriptionID: txid + "i0",
		TxID:          txid,
		Height:        101,
	}
}

func mustHandle(t *testing.T, s *Space, ev *event.OpEvent) []CallResult {
	t.Helper()
	results, err := s.HandleOpEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle %s: %v", ev.Identity(), err)
	}
	return results
}

func requireOK(t *testing.T, results []CallResult) {
	t.Helper()
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("call %d (%s) failed: %s", r.Index, r.Func, r.Error)
		}
	}
}

func TestTransferDeposit(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "5")))

	got := s.Assets().BalanceOf(ledger.AssetSwap, "aaaa", "bc1qalice")
	if got.String() != "5000000000000000000" {
		t.Errorf("balance = %s", got)
	}
}

func TestTransferInvalidAmountRecordedNotFatal(t *testing.T) {
	s := newTestSpace(t)
	results, err := s.HandleOpEvent(context.Background(), transferEvent("bc1qalice", "i0", "t0", "aaaa", "not-a-number"))
	if err != nil {
		t.Fatalf("malformed payload must not abort the tick: %v", err)
	}
	if len(results) != 1 || results[0].OK() {
		t.Fatalf("results = %+v", results)
	}
}

func TestResolveFailureAbortsTick(t *testing.T) {
	resolveErr := errors.New("indexer unreachable")
	registry := fpmath.NewRegistry(func(ctx context.Context, tick string) (int32, error) {
		return 0, resolveErr
	})
	s := NewSpace("mod-1", contract.Config{}, registry)

	_, err := s.HandleOpEvent(context.Background(), transferEvent("bc1qalice", "i0", "t0", "unknown", "5"))
	if err == nil {
		t.Fatal("metadata resolution failure must abort the tick")
	}
}

func TestCommitPipeline(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "100")))
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i1", "t1", "bbbb", "100")))

	results := mustHandle(t, s, commitEvent("c0",
		event.ContractCall{Func: event.FuncDeployPool, Params: []string{"aaaa", "bbbb"}, Address: "bc1qalice"},
		event.ContractCall{Func: event.FuncAddLiq, Params: []string{"aaaa", "bbbb", "100", "100", "0", "0"}, Address: "bc1qalice"},
		event.ContractCall{Func: event.FuncSwap, Params: []string{"aaaa", "bbbb", "1", "exactIn", "0", "10"}, Address: "bc1qalice"},
	))
	requireOK(t, results)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	pair := ledger.GetPairStr("aaaa", "bbbb")
	if results[0].Outputs["pair"] != pair {
		t.Errorf("deployPool outputs = %v", results[0].Outputs)
	}
	if results[1].Outputs["lp"] == "" {
		t.Errorf("addLiq outputs = %v", results[1].Outputs)
	}
	if results[2].Outputs["amountOut"] == "" {
		t.Errorf("swap outputs = %v", results[2].Outputs)
	}
	if err := s.Assets().CheckSupply(); err != nil {
		t.Errorf("CheckSupply: %v", err)
	}
}

func TestCommitCallIsolation(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "100")))
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i1", "t1", "bbbb", "100")))

	// Call 1 fails (bad param count), call 2 fails (unknown func); the
	// valid siblings around them still apply.
	results := mustHandle(t, s, commitEvent("c0",
		event.ContractCall{Func: event.FuncDeployPool, Params: []string{"aaaa", "bbbb"}, Address: "bc1qalice"},
		event.ContractCall{Func: event.FuncAddLiq, Params: []string{"aaaa"}, Address: "bc1qalice"},
		event.ContractCall{Func: "mintPool", Params: nil, Address: "bc1qalice"},
		event.ContractCall{Func: event.FuncAddLiq, Params: []string{"aaaa", "bbbb", "100", "100", "0", "0"}, Address: "bc1qalice"},
	))
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].OK() || results[1].OK() || results[2].OK() || !results[3].OK() {
		t.Fatalf("result pattern = %+v", results)
	}

	pair := ledger.GetPairStr("aaaa", "bbbb")
	if s.Engine().PoolLp(pair).Sign() <= 0 {
		t.Error("valid addLiq after failed siblings should have applied")
	}
}

func TestFinancialRuleFailureRecordedPerCall(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "1")))

	// Swap on a pool that does not exist: a financial-rule failure.
	results := mustHandle(t, s, commitEvent("c0",
		event.ContractCall{Func: event.FuncSwap, Params: []string{"aaaa", "bbbb", "1", "exactIn", "0", "0"}, Address: "bc1qalice"},
	))
	if results[0].OK() {
		t.Fatal("swap against missing pool should fail")
	}
}

func TestApproveTwoPhase(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "10")))

	// Phase 1: inscribe (to == from) reserves the balance.
	reserve := &event.OpEvent{
		Event:         event.KindApprove,
		Op:            event.ApproveOp{Tick: "aaaa", Amount: "4"},
		From:          "bc1qalice",
		To:            "bc1qalice",
		InscriptionID: "a0",
		TxID:          "ta0",
	}
	requireOK(t, mustHandle(t, s, reserve))

	if got := s.Assets().BalanceOf(ledger.AssetApprove, "aaaa", "bc1qalice").String(); got != "4000000000000000000" {
		t.Fatalf("approve balance = %s", got)
	}

	// Phase 2: transfer out burns the reserved balance.
	exit := &event.OpEvent{
		Event:         event.KindApprove,
		Op:            event.ApproveOp{Tick: "aaaa", Amount: "4"},
		From:          "bc1qalice",
		To:            "bc1qelsewhere",
		InscriptionID: "a0",
		TxID:          "ta1",
	}
	requireOK(t, mustHandle(t, s, exit))

	if got := s.Assets().BalanceOf(ledger.AssetApprove, "aaaa", "bc1qalice").Sign(); got != 0 {
		t.Errorf("approve balance after exit: sign %d", got)
	}
}

func TestConditionalApproveMatch(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "10")))

	reserve := &event.OpEvent{
		Event:         event.KindConditionalApprove,
		Op:            event.ConditionalApproveOp{Tick: "aaaa", Amount: "10"},
		From:          "bc1qalice",
		InscriptionID: "ca0",
		TxID:          "tc0",
	}
	requireOK(t, mustHandle(t, s, reserve))

	// Matched against an incoming transfer: funds route to the receiver's
	// swappable balance instead of leaving the module.
	match := &event.OpEvent{
		Event:         event.KindConditionalApprove,
		Op:            event.ConditionalApproveOp{Tick: "aaaa", Amount: "10", Transfer: "i9"},
		From:          "bc1qalice",
		To:            "bc1qbob",
		InscriptionID: "ca0",
		TxID:          "tc1",
	}
	requireOK(t, mustHandle(t, s, match))

	if got := s.Assets().BalanceOf(ledger.AssetSwap, "aaaa", "bc1qbob").String(); got != "10000000000000000000" {
		t.Errorf("bob balance = %s", got)
	}
	if got := s.Assets().BalanceOf(ledger.AssetConditionalApprove, "aaaa", "bc1qalice").Sign(); got != 0 {
		t.Errorf("reserved balance remains: sign %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "100")))
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i1", "t1", "bbbb", "100")))
	requireOK(t, mustHandle(t, s, commitEvent("c0",
		event.ContractCall{Func: event.FuncDeployPool, Params: []string{"aaaa", "bbbb"}, Address: "bc1qalice"},
		event.ContractCall{Func: event.FuncAddLiq, Params: []string{"aaaa", "bbbb", "50", "50", "0", "0"}, Address: "bc1qalice"},
	)))

	snap := s.Snapshot()
	restored, err := NewSpaceFromSnapshot(snap, contract.Config{}, fpmath.NewRegistry(nil))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got := ComputeAssetsCheck(restored.Assets()); got != snap.AssetsCheck {
		t.Errorf("assets check mismatch: %s != %s", got, snap.AssetsCheck)
	}
	pair := ledger.GetPairStr("aaaa", "bbbb")
	if restored.Engine().KLast(pair).Cmp(s.Engine().KLast(pair)) != 0 {
		t.Error("kLast not restored")
	}

	// The restored space continues replay identically.
	ev := commitEvent("c1",
		event.ContractCall{Func: event.FuncSwap, Params: []string{"aaaa", "bbbb", "1", "exactIn", "0", "10"}, Address: "bc1qalice"},
	)
	res1 := mustHandle(t, s, ev)
	res2 := mustHandle(t, restored, ev)
	requireOK(t, res1)
	requireOK(t, res2)
	if res1[0].Outputs["amountOut"] != res2[0].Outputs["amountOut"] {
		t.Errorf("divergent replay: %v vs %v", res1[0].Outputs, res2[0].Outputs)
	}
}

func TestSnapshotRestoreRejectsCorruption(t *testing.T) {
	s := newTestSpace(t)
	requireOK(t, mustHandle(t, s, transferEvent("bc1qalice", "i0", "t0", "aaaa", "100")))

	snap := s.Snapshot()
	ts := snap.Assets[ledger.AssetSwap]["aaaa"]
	ts.Supply = "999"
	snap.Assets[ledger.AssetSwap]["aaaa"] = ts

	if _, err := NewSpaceFromSnapshot(snap, contract.Config{}, fpmath.NewRegistry(nil)); err == nil {
		t.Error("corrupted supply must be rejected")
	}
}

func TestComputeRangeHashOrderSensitive(t *testing.T) {
	a := transferEvent("x", "i0", "t0", "aaaa", "1")
	b := transferEvent("x", "i1", "t1", "aaaa", "1")

	h1 := ComputeRangeHash([]*event.OpEvent{a, b})
	h2 := ComputeRangeHash([]*event.OpEvent{a, b})
	h3 := ComputeRangeHash([]*event.OpEvent{b, a})

	if h1 != h2 {
		t.Error("range hash must be deterministic")
	}
	if h1 == h3 {
		t.Error("range hash must be order sensitive")
	}
	if h1 == ComputeRangeHash(nil) {
		t.Error("empty range must hash differently")
	}
}
