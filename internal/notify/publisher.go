// Package notify publishes head-advance notifications to NATS JetStream so
// downstream consumers (withdrawal processors, analytics) learn about new
// state without polling the query API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SwapLedger/internal/builder"
)

const streamName = "SWAP_LEDGER_HEADS"

// Publisher emits one message per published head to
// swap.ledger.heads.{moduleId}. Publishing is best-effort: a failed publish
// is logged and counted, never retried — the next head supersedes it.
type Publisher struct {
	js     jetstream.JetStream
	logger zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, logger zerolog.Logger) *Publisher {
	return &Publisher{
		js:     js,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// PublishHeadAdvanced implements builder.Notifier.
func (p *Publisher) PublishHeadAdvanced(ctx context.Context, notice builder.HeadNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal head notice: %w", err)
	}

	subject := fmt.Sprintf("swap.ledger.heads.%s", notice.ModuleID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().
		Str("subject", subject).
		Int64("height", notice.Height).
		Int("events", notice.EventCount).
		Msg("head notice published")
	return nil
}

// PublishCommitApplied implements builder.Notifier.
func (p *Publisher) PublishCommitApplied(ctx context.Context, notice builder.CommitNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal commit notice: %w", err)
	}

	subject := fmt.Sprintf("swap.ledger.commits.%s", notice.ModuleID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("txid", notice.TxID).
		Int("calls", notice.CallCount).
		Msg("commit notice published")
	return nil
}

// EnsureStream creates the head-notice stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"swap.ledger.heads.>", "swap.ledger.commits.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

var _ builder.Notifier = (*Publisher)(nil)
