package builder

import (
	"context"
	"encoding/json"
	"fmt"

	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/persistence"
)

// persistEvents writes the per-event rows and every derived record for the
// replayed range. All writes are keyed by natural event identity, so a
// range replayed twice lands on the same rows.
func (b *OpBuilder) persistEvents(ctx context.Context, events []*event.OpEvent, results [][]core.CallResult) error {
	if len(events) == 0 {
		return nil
	}

	eventRows := make([]persistence.EventRecord, 0, len(events))
	var (
		callRows    []persistence.CommitCallRecord
		bookRows    []persistence.CommitBookkeeping
		depositRows []persistence.DepositRecord
		matchedRows []persistence.MatchedDepositRecord
	)

	for i, ev := range events {
		row, err := buildEventRecord(ev, results[i])
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.Identity(), err)
		}
		eventRows = append(eventRows, row)

		switch op := ev.Op.(type) {
		case event.CommitOp:
			calls, book := b.buildCommitRecords(ev, op, results[i])
			callRows = append(callRows, calls...)
			bookRows = append(bookRows, book)
		case event.TransferOp:
			dep, ok := b.buildDepositRecord(ctx, ev, op, results[i])
			if ok {
				depositRows = append(depositRows, dep)
			}
		case event.ConditionalApproveOp:
			matched, ok := b.buildMatchedDeposit(ctx, ev, op, results[i])
			if ok {
				matchedRows = append(matchedRows, matched)
			}
		}
	}

	if err := b.store.UpsertEvents(ctx, eventRows); err != nil {
		return fmt.Errorf("upsert events: %w", err)
	}
	if err := b.store.UpsertCommitCalls(ctx, callRows); err != nil {
		return fmt.Errorf("upsert commit calls: %w", err)
	}
	for _, book := range bookRows {
		if err := b.store.UpsertCommitBookkeeping(ctx, book); err != nil {
			return fmt.Errorf("upsert commit bookkeeping %s: %w", book.TxID, err)
		}
	}
	if err := b.store.UpsertDeposits(ctx, depositRows); err != nil {
		return fmt.Errorf("upsert deposits: %w", err)
	}
	if err := b.store.UpsertMatchedDeposits(ctx, matchedRows); err != nil {
		return fmt.Errorf("upsert matched deposits: %w", err)
	}
	return nil
}

func buildEventRecord(ev *event.OpEvent, results []core.CallResult) (persistence.EventRecord, error) {
	opJSON, err := event.MarshalOp(ev.Op)
	if err != nil {
		return persistence.EventRecord{}, err
	}
	resJSON, err := json.Marshal(results)
	if err != nil {
		return persistence.EventRecord{}, err
	}
	return persistence.EventRecord{
		Event:             string(ev.Event),
		InscriptionID:     ev.InscriptionID,
		TxID:              ev.TxID,
		Height:            ev.Height,
		InscriptionNumber: ev.InscriptionNumber,
		From:              ev.From,
		To:                ev.To,
		BlockTime:         ev.BlockTime,
		Op:                opJSON,
		Results:           resJSON,
	}, nil
}

func (b *OpBuilder) buildCommitRecords(ev *event.OpEvent, op event.CommitOp, results []core.CallResult) ([]persistence.CommitCallRecord, persistence.CommitBookkeeping) {
	rows := make([]persistence.CommitCallRecord, 0, len(results))
	invalid := 0
	for _, r := range results {
		row := persistence.CommitCallRecord{
			TxID:          ev.TxID,
			CallIndex:     r.Index,
			InscriptionID: ev.InscriptionID,
			Height:        ev.Height,
			Func:          r.Func,
			Address:       r.Address,
			Error:         r.Error,
		}
		if r.Index < len(op.Calls) {
			if params, err := json.Marshal(op.Calls[r.Index].Params); err == nil {
				row.Params = params
			}
		}
		if len(r.Outputs) > 0 {
			if outputs, err := json.Marshal(r.Outputs); err == nil {
				row.Outputs = outputs
			}
		}
		if !r.OK() {
			invalid++
		}
		rows = append(rows, row)
	}
	book := persistence.CommitBookkeeping{
		TxID:          ev.TxID,
		InscriptionID: ev.InscriptionID,
		Height:        ev.Height,
		CallCount:     len(results),
		InvalidCalls:  invalid,
	}
	return rows, book
}

func (b *OpBuilder) buildDepositRecord(ctx context.Context, ev *event.OpEvent, op event.TransferOp, results []core.CallResult) (persistence.DepositRecord, bool) {
	if len(results) == 0 || !results[0].OK() {
		return persistence.DepositRecord{}, false
	}
	units, err := b.registry.FromHuman(ctx, op.Tick, op.Amount)
	if err != nil {
		// Decimals were resolved during replay; a miss here means the
		// apply itself failed and was recorded, nothing to derive.
		return persistence.DepositRecord{}, false
	}
	return persistence.DepositRecord{
		InscriptionID: ev.InscriptionID,
		TxID:          ev.TxID,
		Address:       ev.From,
		Tick:          op.Tick,
		Amount:        units.String(),
		Height:        ev.Height,
		BlockTime:     ev.BlockTime,
	}, true
}

func (b *OpBuilder) buildMatchedDeposit(ctx context.Context, ev *event.OpEvent, op event.ConditionalApproveOp, results []core.CallResult) (persistence.MatchedDepositRecord, bool) {
	// Only the matched leg (second phase, transfer reference set) derives
	// a row; the inscribe leg is bookkept in the event record alone.
	if op.Transfer == "" || len(results) == 0 || !results[0].OK() {
		return persistence.MatchedDepositRecord{}, false
	}
	units, err := b.registry.FromHuman(ctx, op.Tick, op.Amount)
	if err != nil {
		return persistence.MatchedDepositRecord{}, false
	}
	return persistence.MatchedDepositRecord{
		InscriptionID: ev.InscriptionID,
		TxID:          ev.TxID,
		TransferID:    op.Transfer,
		From:          ev.From,
		To:            ev.To,
		Tick:          op.Tick,
		Amount:        units.String(),
		Height:        ev.Height,
	}, true
}
