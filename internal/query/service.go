// Package query is the read side: every answer comes from the builder's
// published head, captured once per request so results stay self-consistent
// while a rebuild swaps the head underneath.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"SwapLedger/internal/builder"
	"SwapLedger/internal/contract"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
)

// ErrNotReady is returned before the builder publishes its first head.
var ErrNotReady = errors.New("ledger head not yet available")

// Service answers read queries against the latest published head.
type Service struct {
	builder *builder.OpBuilder
}

func NewService(b *builder.OpBuilder) *Service {
	return &Service{builder: b}
}

// StatusInfo summarizes the module and rebuild position.
type StatusInfo struct {
	ModuleID         string    `json:"moduleId"`
	State            string    `json:"state"`
	BestHeight       int64     `json:"bestHeight"`
	ConfirmedSeq     int64     `json:"confirmedSeq"`
	Failures         int64     `json:"failures"`
	RebuiltAt        time.Time `json:"rebuiltAt"`
	LatestTxID       string    `json:"latestTxid,omitempty"`
	LatestCommitTxID string    `json:"latestCommitTxid,omitempty"`
}

// PoolInfo is one pool with human-unit amounts.
type PoolInfo struct {
	Pair     string `json:"pair"`
	Tick0    string `json:"tick0"`
	Tick1    string `json:"tick1"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
	LpSupply string `json:"lpSupply"`
}

// BalanceInfo is one (asset class, tick) balance of an address.
type BalanceInfo struct {
	Class   string `json:"class"`
	Tick    string `json:"tick"`
	Balance string `json:"balance"`
}

// QuoteResult prices a hypothetical swap against current reserves.
type QuoteResult struct {
	Pair      string `json:"pair"`
	TickIn    string `json:"tickIn"`
	TickOut   string `json:"tickOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

func (s *Service) head() (*builder.Head, error) {
	head := s.builder.Head()
	if head == nil || head.Space == nil {
		return nil, ErrNotReady
	}
	return head, nil
}

// Status reports the module identity and rebuild position.
func (s *Service) Status(ctx context.Context) (StatusInfo, error) {
	head, err := s.head()
	if err != nil {
		return StatusInfo{}, err
	}
	info := StatusInfo{
		ModuleID:     head.Space.ModuleID(),
		State:        s.builder.State().String(),
		BestHeight:   head.BestHeight,
		ConfirmedSeq: head.ConfirmedSeq,
		Failures:     s.builder.Failures(),
		RebuiltAt:    head.RebuiltAt,
	}
	if head.LatestEvent != nil {
		info.LatestTxID = head.LatestEvent.TxID
	}
	if head.LatestCommitEvent != nil {
		info.LatestCommitTxID = head.LatestCommitEvent.TxID
	}
	return info, nil
}

// Pools lists every deployed pool, sorted by pair key.
func (s *Service) Pools(ctx context.Context) ([]PoolInfo, error) {
	head, err := s.head()
	if err != nil {
		return nil, err
	}

	var pools []PoolInfo
	for _, tick := range head.Space.Assets().Ticks(ledger.AssetSwap) {
		if !strings.Contains(tick, "/") {
			continue
		}
		info, err := s.poolInfo(ctx, head, tick)
		if err != nil {
			return nil, err
		}
		pools = append(pools, info)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Pair < pools[j].Pair })
	return pools, nil
}

// Pool returns one pool by its tick pair, in either order.
func (s *Service) Pool(ctx context.Context, tick0, tick1 string) (PoolInfo, error) {
	head, err := s.head()
	if err != nil {
		return PoolInfo{}, err
	}
	pair := ledger.GetPairStr(tick0, tick1)
	if !head.Space.Assets().IsExist(pair) {
		return PoolInfo{}, fmt.Errorf("pool %s: %w", pair, ledger.ErrPoolNotFound)
	}
	return s.poolInfo(ctx, head, pair)
}

func (s *Service) poolInfo(ctx context.Context, head *builder.Head, pair string) (PoolInfo, error) {
	tick0, tick1, err := ledger.DecodePairStr(pair)
	if err != nil {
		return PoolInfo{}, err
	}
	r0, r1, err := head.Space.Engine().Reserves(pair)
	if err != nil {
		return PoolInfo{}, err
	}

	registry := head.Space.Registry()
	h0, err := registry.ToHuman(ctx, tick0, r0)
	if err != nil {
		return PoolInfo{}, err
	}
	h1, err := registry.ToHuman(ctx, tick1, r1)
	if err != nil {
		return PoolInfo{}, err
	}
	lp, err := registry.ToHuman(ctx, pair, head.Space.Engine().PoolLp(pair))
	if err != nil {
		return PoolInfo{}, err
	}

	return PoolInfo{
		Pair:     pair,
		Tick0:    tick0,
		Tick1:    tick1,
		Reserve0: h0,
		Reserve1: h1,
		LpSupply: lp,
	}, nil
}

// Balances lists every non-zero balance of addr across all asset classes.
func (s *Service) Balances(ctx context.Context, addr string) ([]BalanceInfo, error) {
	head, err := s.head()
	if err != nil {
		return nil, err
	}

	assets := head.Space.Assets()
	registry := head.Space.Registry()

	var out []BalanceInfo
	for _, class := range ledger.AllAssetClasses {
		for _, tick := range assets.Ticks(class) {
			bal := assets.BalanceOf(class, tick, addr)
			if bal.Sign() == 0 {
				continue
			}
			human, err := registry.ToHuman(ctx, tick, bal)
			if err != nil {
				return nil, err
			}
			out = append(out, BalanceInfo{
				Class:   string(class),
				Tick:    tick,
				Balance: human,
			})
		}
	}
	return out, nil
}

// Quote prices a swap of amount (human units) against current reserves
// without mutating state. exactType selects which leg amount fixes.
func (s *Service) Quote(ctx context.Context, tickIn, tickOut, amount, exactType string) (QuoteResult, error) {
	head, err := s.head()
	if err != nil {
		return QuoteResult{}, err
	}

	pair := ledger.GetPairStr(tickIn, tickOut)
	if !head.Space.Assets().IsExist(pair) {
		return QuoteResult{}, fmt.Errorf("pool %s: %w", pair, ledger.ErrPoolNotFound)
	}

	engine := head.Space.Engine()
	registry := head.Space.Registry()

	r0, r1, err := engine.Reserves(pair)
	if err != nil {
		return QuoteResult{}, err
	}
	tick0, _ := ledger.SortTicks(tickIn, tickOut)
	reserveIn, reserveOut := r0, r1
	if tickIn != tick0 {
		reserveIn, reserveOut = r1, r0
	}

	result := QuoteResult{Pair: pair, TickIn: tickIn, TickOut: tickOut}
	switch contract.ExactType(exactType) {
	case contract.ExactIn:
		in, err := registry.FromHuman(ctx, tickIn, amount)
		if err != nil {
			return QuoteResult{}, err
		}
		out, err := engine.GetAmountOut(in, reserveIn, reserveOut)
		if err != nil {
			return QuoteResult{}, err
		}
		result.AmountIn = amount
		result.AmountOut, err = registry.ToHuman(ctx, tickOut, out)
		if err != nil {
			return QuoteResult{}, err
		}
	case contract.ExactOut:
		out, err := registry.FromHuman(ctx, tickOut, amount)
		if err != nil {
			return QuoteResult{}, err
		}
		in, err := engine.GetAmountIn(out, reserveIn, reserveOut)
		if err != nil {
			return QuoteResult{}, err
		}
		result.AmountOut = amount
		result.AmountIn, err = registry.ToHuman(ctx, tickIn, in)
		if err != nil {
			return QuoteResult{}, err
		}
	default:
		return QuoteResult{}, fmt.Errorf("unknown exact type %q", exactType)
	}
	return result, nil
}

// Commit inspects the latest applied commit event, if any.
func (s *Service) LatestCommit(ctx context.Context) (*event.OpEvent, error) {
	head, err := s.head()
	if err != nil {
		return nil, err
	}
	return head.LatestCommitEvent, nil
}
