package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"SwapLedger/internal/contract"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
)

// LpDecimals is the fixed precision of synthetic LP-share ticks.
const LpDecimals = 18

// errResolveTick marks a failure to resolve tick metadata from the indexer.
// Unlike payload validation failures it is transient infrastructure trouble:
// it aborts the rebuild tick instead of invalidating the sub-operation.
var errResolveTick = errors.New("resolve tick metadata")

// Space is the aggregate root: the full ledger plus contract status plus
// the decimal registry. One Space holds the state of one module; a rebuild
// always constructs a fresh Space and replays into it, never mutates a
// published one.
type Space struct {
	moduleID string
	assets   *ledger.Assets
	engine   *contract.Engine
	registry *fpmath.Registry
}

// CallResult records the outcome of one sub-operation. Commit events carry
// one per batched contract call; other kinds carry exactly one.
type CallResult struct {
	Index   int               `json:"index"`
	Func    string            `json:"func"`
	Address string            `json:"address,omitempty"`
	Error   string            `json:"error,omitempty"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

// OK reports whether the sub-operation applied cleanly.
func (r CallResult) OK() bool { return r.Error == "" }

func NewSpace(moduleID string, cfg contract.Config, registry *fpmath.Registry) *Space {
	assets := ledger.NewAssets()
	return &Space{
		moduleID: moduleID,
		assets:   assets,
		engine:   contract.NewEngine(assets, cfg),
		registry: registry,
	}
}

func (s *Space) ModuleID() string           { return s.moduleID }
func (s *Space) Assets() *ledger.Assets     { return s.assets }
func (s *Space) Engine() *contract.Engine   { return s.engine }
func (s *Space) Registry() *fpmath.Registry { return s.registry }

// HandleOpEvent applies one chain event and returns one CallResult per
// sub-operation. Failures inside a sub-operation are recorded in its
// CallResult and do not abort sibling sub-operations; the ledger is left
// untouched by the failing call. Only infrastructure failures (indexer
// unreachable while resolving tick decimals) return an error, aborting the
// surrounding rebuild tick.
func (s *Space) HandleOpEvent(ctx context.Context, ev *event.OpEvent) ([]CallResult, error) {
	switch op := ev.Op.(type) {
	case event.DeployOp:
		// Module genesis: the empty ledger constructed with the Space is
		// the deployed state.
		return []CallResult{{Func: "deploy", Address: ev.From}}, nil

	case event.TransferOp:
		return s.applySimple(ctx, ev, "transfer", op.Tick, op.Amount, s.applyTransfer)

	case event.ApproveOp:
		return s.applySimple(ctx, ev, "approve", op.Tick, op.Amount, s.applyApprove)

	case event.ConditionalApproveOp:
		apply := func(ev *event.OpEvent, tick string, units *big.Int) error {
			return s.applyConditionalApprove(ev, op, tick, units)
		}
		return s.applySimple(ctx, ev, "conditionalApprove", op.Tick, op.Amount, apply)

	case event.CommitOp:
		return s.applyCommit(ctx, ev, op)

	case nil:
		return nil, fmt.Errorf("event %s has no op payload", ev.Identity())
	default:
		return nil, fmt.Errorf("event %s has unhandled op kind %s", ev.Identity(), ev.Op.OpKind())
	}
}

type simpleApply func(ev *event.OpEvent, tick string, units *big.Int) error

func (s *Space) applySimple(ctx context.Context, ev *event.OpEvent, fn, tick, amount string, apply simpleApply) ([]CallResult, error) {
	res := CallResult{Func: fn, Address: ev.From}

	units, err := s.toUnits(ctx, tick, amount)
	if err == nil {
		err = apply(ev, tick, units)
	}
	if err != nil {
		if errors.Is(err, errResolveTick) {
			return nil, err
		}
		res.Error = err.Error()
	}
	return []CallResult{res}, nil
}

// applyTransfer credits a direct deposit into the sender's swappable
// balance.
func (s *Space) applyTransfer(ev *event.OpEvent, tick string, units *big.Int) error {
	s.assets.TryCreate(tick)
	return s.assets.Mint(ledger.AssetSwap, tick, ev.From, units)
}

// applyApprove moves a balance toward withdrawal. The inscription fires
// twice in an approval's life: once when inscribed (reserve the balance)
// and once when transferred out (the funds leave the module).
func (s *Space) applyApprove(ev *event.OpEvent, tick string, units *big.Int) error {
	s.assets.TryCreate(tick)
	if ev.To == "" || ev.To == ev.From {
		return s.assets.Convert(tick, ev.From, ev.From, units, ledger.AssetSwap, ledger.AssetApprove)
	}
	return s.assets.Burn(ledger.AssetApprove, tick, ev.From, units)
}

// applyConditionalApprove reserves a conditional withdrawal, or — when the
// event carries a matching transfer reference — settles it as a deposit to
// the receiving address instead of an exit.
func (s *Space) applyConditionalApprove(ev *event.OpEvent, op event.ConditionalApproveOp, tick string, units *big.Int) error {
	s.assets.TryCreate(tick)
	if op.Transfer == "" {
		return s.assets.Convert(tick, ev.From, ev.From, units, ledger.AssetSwap, ledger.AssetConditionalApprove)
	}
	to := ev.To
	if to == "" {
		to = ev.From
	}
	return s.assets.Convert(tick, ev.From, to, units, ledger.AssetConditionalApprove, ledger.AssetSwap)
}

func (s *Space) applyCommit(ctx context.Context, ev *event.OpEvent, op event.CommitOp) ([]CallResult, error) {
	results := make([]CallResult, 0, len(op.Calls))
	for i, call := range op.Calls {
		res := CallResult{Index: i, Func: call.Func, Address: call.Address}

		outputs, err := s.applyCall(ctx, call)
		switch {
		case err == nil:
			res.Outputs = outputs
		case errors.Is(err, errResolveTick):
			return nil, err
		default:
			// Invalid sub-operation: record and continue with siblings.
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Space) applyCall(ctx context.Context, call event.ContractCall) (map[string]string, error) {
	switch call.Func {
	case event.FuncDeployPool:
		if len(call.Params) != 2 {
			return nil, fmt.Errorf("deployPool wants 2 params, got %d", len(call.Params))
		}
		tick0, tick1 := call.Params[0], call.Params[1]
		if err := s.engine.DeployPool(tick0, tick1); err != nil {
			return nil, err
		}
		pair := ledger.GetPairStr(tick0, tick1)
		s.registry.Set(pair, LpDecimals)
		return map[string]string{"pair": pair}, nil

	case event.FuncAddLiq:
		if len(call.Params) != 6 {
			return nil, fmt.Errorf("addLiq wants 6 params, got %d", len(call.Params))
		}
		tick0, tick1 := call.Params[0], call.Params[1]
		amount0, err := s.toUnits(ctx, tick0, call.Params[2])
		if err != nil {
			return nil, err
		}
		amount1, err := s.toUnits(ctx, tick1, call.Params[3])
		if err != nil {
			return nil, err
		}
		expectLp, err := scaleLp(call.Params[4])
		if err != nil {
			return nil, err
		}
		slippage, err := parseSlippage(call.Params[5])
		if err != nil {
			return nil, err
		}
		lp, err := s.engine.AddLiq(contract.AddLiqParams{
			Tick0:      tick0,
			Tick1:      tick1,
			Amount0:    amount0,
			Amount1:    amount1,
			ExpectLp:   expectLp,
			SlippageBp: slippage,
			Address:    call.Address,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"pair": ledger.GetPairStr(tick0, tick1),
			"lp":   lp.String(),
		}, nil

	case event.FuncRemoveLiq:
		if len(call.Params) != 6 {
			return nil, fmt.Errorf("removeLiq wants 6 params, got %d", len(call.Params))
		}
		tick0, tick1 := call.Params[0], call.Params[1]
		lp, err := scaleLp(call.Params[2])
		if err != nil {
			return nil, err
		}
		min0, err := s.toUnits(ctx, tick0, call.Params[3])
		if err != nil {
			return nil, err
		}
		min1, err := s.toUnits(ctx, tick1, call.Params[4])
		if err != nil {
			return nil, err
		}
		slippage, err := parseSlippage(call.Params[5])
		if err != nil {
			return nil, err
		}
		amt0, amt1, err := s.engine.RemoveLiq(contract.RemoveLiqParams{
			Tick0:      tick0,
			Tick1:      tick1,
			Lp:         lp,
			MinAmount0: min0,
			MinAmount1: min1,
			SlippageBp: slippage,
			Address:    call.Address,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"pair":    ledger.GetPairStr(tick0, tick1),
			"amount0": amt0.String(),
			"amount1": amt1.String(),
		}, nil

	case event.FuncSwap:
		if len(call.Params) != 6 {
			return nil, fmt.Errorf("swap wants 6 params, got %d", len(call.Params))
		}
		tickIn, tickOut := call.Params[0], call.Params[1]
		exactType := contract.ExactType(call.Params[3])

		var amountTick, expectTick string
		switch exactType {
		case contract.ExactIn:
			amountTick, expectTick = tickIn, tickOut
		case contract.ExactOut:
			amountTick, expectTick = tickOut, tickIn
		default:
			return nil, fmt.Errorf("unknown exact type %q", call.Params[3])
		}

		amount, err := s.toUnits(ctx, amountTick, call.Params[2])
		if err != nil {
			return nil, err
		}
		expect, err := s.toUnits(ctx, expectTick, call.Params[4])
		if err != nil {
			return nil, err
		}
		slippage, err := parseSlippage(call.Params[5])
		if err != nil {
			return nil, err
		}
		in, out, err := s.engine.Swap(contract.SwapParams{
			TickIn:     tickIn,
			TickOut:    tickOut,
			Amount:     amount,
			ExactType:  exactType,
			Expect:     expect,
			SlippageBp: slippage,
			Address:    call.Address,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"amountIn":  in.String(),
			"amountOut": out.String(),
		}, nil

	case event.FuncSend:
		if len(call.Params) != 3 {
			return nil, fmt.Errorf("send wants 3 params, got %d", len(call.Params))
		}
		tick, to := call.Params[0], call.Params[1]
		amount, err := s.toUnits(ctx, tick, call.Params[2])
		if err != nil {
			return nil, err
		}
		if err := s.engine.Send(tick, call.Address, to, amount); err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String()}, nil
	}

	return nil, fmt.Errorf("unknown contract function %q", call.Func)
}

// toUnits converts a human amount to internal units for a tick. Metadata
// resolution failures are wrapped in errResolveTick; scaling failures are
// payload validation errors.
func (s *Space) toUnits(ctx context.Context, tick, amount string) (*big.Int, error) {
	decimals, err := s.registry.Decimals(ctx, tick)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errResolveTick, err)
	}
	units, err := fpmath.ScaleToUnits(amount, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return units, nil
}

func scaleLp(amount string) (*big.Int, error) {
	units, err := fpmath.ScaleToUnits(amount, LpDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return units, nil
}

func parseSlippage(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ledger.ErrInvalidSlippage, s)
	}
	return v, nil
}
