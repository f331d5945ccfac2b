package indexer

import (
	"context"

	"SwapLedger/internal/event"
)

// EventPage is one page of the module op log.
type EventPage struct {
	List  []*event.OpEvent
	Total int64
}

// TickInfo is the indexer's metadata for one tick.
type TickInfo struct {
	Ticker  string
	Decimal int32
}

// Source is the log-source contract the builder replays from. Total may
// grow between calls (the log is append-only from the source's view within
// a polling session), and the relative order of unconfirmed events may
// differ between fetch passes after a reorg.
type Source interface {
	// EventList returns one cursor page of events for a module at or above
	// startHeight. Cursor is a server-defined offset.
	EventList(ctx context.Context, moduleID string, startHeight int64, cursor, size int64) (*EventPage, error)

	// TickInfo resolves tick metadata (feeds the decimal registry).
	TickInfo(ctx context.Context, tick string) (*TickInfo, error)

	// BestHeight returns the current chain head height.
	BestHeight(ctx context.Context) (int64, error)
}
