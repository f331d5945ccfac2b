package builder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"SwapLedger/internal/contract"
	"SwapLedger/internal/core"
	"SwapLedger/internal/event"
	"SwapLedger/internal/indexer"
	fpmath "SwapLedger/internal/math"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/projection"
)

// State of the rebuild state machine.
type State int32

const (
	StateInitializing State = iota
	StateIdle
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateRebuilding:
		return "rebuilding"
	}
	return "unknown"
}

// ErrBusy is returned when a tick is requested while the previous one is
// still in flight. The polling driver treats it as a skip, not a failure.
var ErrBusy = errors.New("rebuild already in flight")

// errStaleRange marks deep-reorg detection: the refetched range no longer
// contains the checkpoint tail the replay was meant to resume from.
var errStaleRange = errors.New("checkpoint tail missing from refetched range")

// Config parameterizes the builder per module.
type Config struct {
	ModuleID string

	// ConfirmationDepth is the block depth after which an event is final
	// and eligible for checkpointing.
	ConfirmationDepth int64

	// CheckpointBatchSize is how many confirmed-but-uncheckpointed events
	// accumulate before a checkpoint batch is persisted.
	CheckpointBatchSize int

	// PageSize is the cursor page size for log-source fetches.
	PageSize int64

	Contract contract.Config
}

// Head is the published read state. It is replaced wholesale at the end of
// a successful rebuild; readers capture the pointer once per use and never
// observe a partially-rebuilt Space.
type Head struct {
	Space             *core.Space
	LatestEvent       *event.OpEvent
	LatestCommitEvent *event.OpEvent
	BestHeight        int64
	ConfirmedSeq      int64
	RebuiltAt         time.Time
}

// HeadNotice is the outbound notification emitted after a head swap.
type HeadNotice struct {
	ModuleID   string `json:"moduleId"`
	Height     int64  `json:"height"`
	EventCount int    `json:"eventCount"`
	LatestTxID string `json:"latestTxid,omitempty"`
	RangeHash  string `json:"rangeHash"`
}

// CommitNotice is emitted when a rebuild applies a commit event not seen
// by the previous head.
type CommitNotice struct {
	ModuleID      string `json:"moduleId"`
	TxID          string `json:"txid"`
	InscriptionID string `json:"inscriptionId"`
	Height        int64  `json:"height"`
	CallCount     int    `json:"callCount"`
	InvalidCalls  int    `json:"invalidCalls"`
}

// Notifier publishes head advances and applied commits to downstream
// consumers. Failures are non-fatal: downstreams can always query the
// store directly.
type Notifier interface {
	PublishHeadAdvanced(ctx context.Context, notice HeadNotice) error
	PublishCommitApplied(ctx context.Context, notice CommitNotice) error
}

// OpBuilder reconstructs ledger state by replaying the module op log from
// the last confirmed checkpoint. Single logical writer: at most one rebuild
// is in flight, enforced by the state machine rather than a lock around the
// whole tick.
type OpBuilder struct {
	cfg      Config
	source   indexer.Source
	store    persistence.Store
	registry *fpmath.Registry
	notifier Notifier
	logger   zerolog.Logger
	metrics  *observability.Metrics

	state    atomic.Int32
	head     atomic.Pointer[Head]
	failures atomic.Int64
	lastTick atomic.Int64

	// Rebuild bookkeeping: owned by the single in-flight tick.
	lastCheckpoint *persistence.CheckpointRecord
	checkpointSeq  int64
	lastRangeHash  string
	lastBestHeight int64
}

func NewOpBuilder(
	cfg Config,
	source indexer.Source,
	store persistence.Store,
	registry *fpmath.Registry,
	notifier Notifier,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *OpBuilder {
	b := &OpBuilder{
		cfg:      cfg,
		source:   source,
		store:    store,
		registry: registry,
		notifier: notifier,
		logger:   logger.With().Str("component", "builder").Logger(),
		metrics:  metrics,
	}
	b.state.Store(int32(StateInitializing))
	return b
}

// State returns the current state machine position.
func (b *OpBuilder) State() State {
	return State(b.state.Load())
}

// Failures returns the rebuild failure counter.
func (b *OpBuilder) Failures() int64 {
	return b.failures.Load()
}

// Head returns the current published head (nil before Init completes).
func (b *OpBuilder) Head() *Head {
	return b.head.Load()
}

// LastTick returns when the last successful tick finished. Skipped
// rebuilds count: an unchanged range is still a healthy poll.
func (b *OpBuilder) LastTick() time.Time {
	return time.Unix(0, b.lastTick.Load())
}

// Init loads the last confirmed checkpoint and publishes the initial head.
// Must complete before the first Tick.
func (b *OpBuilder) Init(ctx context.Context) error {
	cp, err := b.store.LoadLatestCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load latest checkpoint: %w", err)
	}

	maxSeq, err := b.store.MaxCheckpointSeq(ctx)
	if err != nil {
		return fmt.Errorf("max checkpoint seq: %w", err)
	}

	var space *core.Space
	if cp != nil {
		space, err = core.NewSpaceFromSnapshot(cp.Snapshot, b.cfg.Contract, b.registry)
		if err != nil {
			return fmt.Errorf("restore checkpoint seq %d: %w", cp.Seq, err)
		}
		b.logger.Info().Int64("seq", cp.Seq).Int64("height", cp.Height).Msg("restored from checkpoint")
	} else {
		space = core.NewSpace(b.cfg.ModuleID, b.cfg.Contract, b.registry)
		b.logger.Info().Msg("no checkpoint found, cold start from genesis")
	}

	b.lastCheckpoint = cp
	b.checkpointSeq = maxSeq
	b.lastTick.Store(time.Now().UnixNano())
	b.head.Store(&Head{
		Space:        space,
		ConfirmedSeq: maxSeq,
		RebuiltAt:    time.Now(),
	})
	b.state.Store(int32(StateIdle))
	return nil
}

// Run drives the polling loop until ctx is cancelled. A tick that finds the
// previous one still running is skipped, never queued.
func (b *OpBuilder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.Tick(ctx); err != nil {
				if errors.Is(err, ErrBusy) || errors.Is(err, context.Canceled) {
					continue
				}
				b.logger.Warn().Err(err).Int64("failures", b.failures.Load()).Msg("rebuild tick failed")
			}
		}
	}
}

// Tick runs one rebuild pass. On failure the previously published head and
// the confirmed-checkpoint pointer are untouched, so the next tick retries
// the identical work — rebuild is idempotent and safe to retry forever.
func (b *OpBuilder) Tick(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateIdle), int32(StateRebuilding)) {
		return ErrBusy
	}
	defer b.state.Store(int32(StateIdle))

	start := time.Now()
	b.metrics.RebuildsStarted.Inc()

	err := b.rebuild(ctx, start)
	if err != nil {
		b.failures.Add(1)
		b.metrics.RebuildsFailed.Inc()
		return err
	}

	b.lastTick.Store(time.Now().UnixNano())
	b.metrics.RebuildsSucceeded.Inc()
	b.metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (b *OpBuilder) rebuild(ctx context.Context, start time.Time) error {
	bestHeight, err := b.source.BestHeight(ctx)
	if err != nil {
		return fmt.Errorf("best height: %w", err)
	}

	events, err := b.fetchRange(ctx)
	if err != nil {
		return fmt.Errorf("fetch range: %w", err)
	}

	rangeHash := core.ComputeRangeHash(events)
	if rangeHash == b.lastRangeHash && bestHeight == b.lastBestHeight {
		// Nothing new arrived and the head did not move: skip the rebuild.
		b.metrics.RebuildsSkipped.Inc()
		return nil
	}

	space, results, err := b.replay(ctx, events)
	if err != nil {
		return fmt.Errorf("replay %d events: %w", len(events), err)
	}

	confirmedHeight := bestHeight - b.cfg.ConfirmationDepth
	lastConfirmedIdx := -1
	for i, ev := range events {
		if ev.Height <= confirmedHeight {
			lastConfirmedIdx = i
		}
	}

	// The confirmed-boundary snapshot is captured by replaying the
	// confirmed prefix into a second fresh Space. Replay is deterministic,
	// so this equals the state right after the last confirmed event.
	var confirmedSnapshot *core.SnapshotData
	if lastConfirmedIdx >= 0 {
		confirmedSpace, _, err := b.replay(ctx, events[:lastConfirmedIdx+1])
		if err != nil {
			return fmt.Errorf("replay confirmed prefix: %w", err)
		}
		confirmedSnapshot = confirmedSpace.Snapshot()
	}

	// Durable per-event rows and derived records go first: the checkpoint
	// pointer must never advance past events whose rows are not yet
	// written, or they would be lost to future replays.
	persistStart := time.Now()
	if err := b.persistEvents(ctx, events, results); err != nil {
		return fmt.Errorf("persist event records: %w", err)
	}
	b.metrics.PersistBatchDur.Observe(time.Since(persistStart).Seconds())

	if lastConfirmedIdx+1 >= b.cfg.CheckpointBatchSize && confirmedSnapshot != nil {
		if err := b.writeCheckpointBatch(ctx, events[:lastConfirmedIdx+1], confirmedSnapshot); err != nil {
			return fmt.Errorf("write checkpoint batch: %w", err)
		}
	}

	head := b.buildHead(space, events, bestHeight, start)
	if err := b.project(ctx, head); err != nil {
		// Projections are rebuilt on the next tick; log and continue.
		b.logger.Warn().Err(err).Msg("pool projection update failed")
	}

	prev := b.head.Load()
	b.head.Store(head)
	b.lastRangeHash = rangeHash
	b.lastBestHeight = bestHeight
	b.metrics.HeadHeight.Set(float64(bestHeight))
	b.metrics.EventsReplayed.Add(float64(len(events)))

	b.notify(ctx, prev, head, events, results, rangeHash)
	return nil
}

// fetchRange pulls the full event range since the last confirmed
// checkpoint, cursor page by cursor page, then strips everything up to and
// including the checkpoint tail event.
func (b *OpBuilder) fetchRange(ctx context.Context) ([]*event.OpEvent, error) {
	var startHeight int64
	if b.lastCheckpoint != nil {
		// Fetch from the tail's own height: other events may share it.
		startHeight = b.lastCheckpoint.Height
	}

	var (
		events []*event.OpEvent
		cursor int64
	)
	for {
		fetchStart := time.Now()
		page, err := b.source.EventList(ctx, b.cfg.ModuleID, startHeight, cursor, b.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		b.metrics.FetchPages.Inc()
		b.metrics.FetchLatency.Observe(time.Since(fetchStart).Seconds())

		events = append(events, page.List...)
		cursor += int64(len(page.List))
		if cursor >= page.Total || len(page.List) == 0 {
			break
		}
	}

	if b.lastCheckpoint == nil {
		return events, nil
	}

	tail := b.lastCheckpoint
	for i, ev := range events {
		if ev.Event == event.Kind(tail.Event) && ev.InscriptionID == tail.InscriptionID && ev.TxID == tail.TxID {
			return events[i+1:], nil
		}
	}
	return nil, fmt.Errorf("%w: seq %d txid %s", errStaleRange, tail.Seq, tail.TxID)
}

// replay applies events, in fetch order, into a fresh Space seeded from the
// last confirmed snapshot.
func (b *OpBuilder) replay(ctx context.Context, events []*event.OpEvent) (*core.Space, [][]core.CallResult, error) {
	var (
		space *core.Space
		err   error
	)
	if b.lastCheckpoint != nil {
		space, err = core.NewSpaceFromSnapshot(b.lastCheckpoint.Snapshot, b.cfg.Contract, b.registry)
		if err != nil {
			return nil, nil, err
		}
	} else {
		space = core.NewSpace(b.cfg.ModuleID, b.cfg.Contract, b.registry)
	}

	results := make([][]core.CallResult, 0, len(events))
	for _, ev := range events {
		res, err := space.HandleOpEvent(ctx, ev)
		if err != nil {
			return nil, nil, fmt.Errorf("apply %s: %w", ev.Identity(), err)
		}
		for _, r := range res {
			if !r.OK() {
				b.metrics.CallsInvalid.Inc()
			}
		}
		results = append(results, res)
	}
	return space, results, nil
}

func (b *OpBuilder) writeCheckpointBatch(ctx context.Context, confirmed []*event.OpEvent, snapshot *core.SnapshotData) error {
	rows := make([]persistence.CheckpointRecord, 0, len(confirmed))
	now := time.Now()
	for i, ev := range confirmed {
		row := persistence.CheckpointRecord{
			Seq:           b.checkpointSeq + int64(i) + 1,
			Event:         string(ev.Event),
			InscriptionID: ev.InscriptionID,
			TxID:          ev.TxID,
			Height:        ev.Height,
			CreatedAt:     now,
		}
		if i == len(confirmed)-1 {
			row.Snapshot = snapshot
		}
		rows = append(rows, row)
	}

	if err := b.store.SaveCheckpointBatch(ctx, rows); err != nil {
		return err
	}

	tail := rows[len(rows)-1]
	b.lastCheckpoint = &tail
	b.checkpointSeq = tail.Seq
	b.metrics.CheckpointBatches.Inc()
	b.metrics.ConfirmedHeight.Set(float64(tail.Height))
	b.logger.Info().
		Int64("seq", tail.Seq).
		Int64("height", tail.Height).
		Int("events", len(rows)).
		Msg("checkpoint batch persisted")
	return nil
}

func (b *OpBuilder) buildHead(space *core.Space, events []*event.OpEvent, bestHeight int64, start time.Time) *Head {
	prev := b.head.Load()
	head := &Head{
		Space:        space,
		BestHeight:   bestHeight,
		ConfirmedSeq: b.checkpointSeq,
		RebuiltAt:    start,
	}
	if prev != nil {
		head.LatestEvent = prev.LatestEvent
		head.LatestCommitEvent = prev.LatestCommitEvent
	}
	for _, ev := range events {
		head.LatestEvent = ev
		if ev.Event == event.KindCommit {
			head.LatestCommitEvent = ev
		}
	}
	return head
}

func (b *OpBuilder) project(ctx context.Context, head *Head) error {
	rows := projection.CollectPools(head.Space)
	return b.store.UpsertPools(ctx, rows)
}

func (b *OpBuilder) notify(ctx context.Context, prev, head *Head, events []*event.OpEvent, results [][]core.CallResult, rangeHash string) {
	if b.notifier == nil {
		return
	}

	notice := HeadNotice{
		ModuleID:   b.cfg.ModuleID,
		Height:     head.BestHeight,
		EventCount: len(events),
		RangeHash:  rangeHash,
	}
	if head.LatestEvent != nil {
		notice.LatestTxID = head.LatestEvent.TxID
	}
	if err := b.notifier.PublishHeadAdvanced(ctx, notice); err != nil {
		b.metrics.NotifyFailures.Inc()
		b.logger.Warn().Err(err).Msg("head notification failed")
	}

	commit := head.LatestCommitEvent
	if commit == nil {
		return
	}
	if prev != nil && prev.LatestCommitEvent != nil && prev.LatestCommitEvent.Identity() == commit.Identity() {
		return
	}
	commitNotice := CommitNotice{
		ModuleID:      b.cfg.ModuleID,
		TxID:          commit.TxID,
		InscriptionID: commit.InscriptionID,
		Height:        commit.Height,
	}
	for i, ev := range events {
		if ev == commit {
			commitNotice.CallCount = len(results[i])
			for _, r := range results[i] {
				if !r.OK() {
					commitNotice.InvalidCalls++
				}
			}
			break
		}
	}
	if err := b.notifier.PublishCommitApplied(ctx, commitNotice); err != nil {
		b.metrics.NotifyFailures.Inc()
		b.logger.Warn().Err(err).Msg("commit notification failed")
	}
}
