package rpcfetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// Tier identifies the protocol tier that satisfied a poll.
type Tier int

const (
	// TierNone marks a poll that no tier satisfied.
	TierNone Tier = iota
	TierPreferred
	TierFallback
	TierMinimal
)

// String returns the tier label.
func (t Tier) String() string {
	switch t {
	case TierPreferred:
		return "preferred"
	case TierFallback:
		return "fallback"
	case TierMinimal:
		return "minimal"
	default:
		return "failed"
	}
}

// ChainState is the chain position reported by an endpoint.
type ChainState struct {
	Slot      uint64
	Blockhash string

	// Latency is the effective time spent obtaining the state.
	Latency time.Duration

	// Partial is set when only part of the state was obtained.
	Partial bool
}

// Strategy fetches chain state from an endpoint using one protocol tier.
type Strategy interface {
	Tier() Tier
	Attempt(ctx context.Context, ep types.Endpoint) (ChainState, error)
}

// AttemptResult records the outcome of running the strategy list.
type AttemptResult struct {
	// Tier is the tier that succeeded, or TierNone.
	Tier  Tier
	State ChainState

	// Errs holds the failure of each tier tried before success.
	Errs []TierError
}

// TierError is a failure of a single tier.
type TierError struct {
	Tier Tier
	Err  error
}

// Ok reports whether a tier succeeded.
func (r AttemptResult) Ok() bool {
	return r.Tier != TierNone
}

// concurrentStrategy issues getSlot and getLatestBlockhash in parallel.
type concurrentStrategy struct {
	tier Tier
	rpc  *rpcClient
}

// NewConcurrentStrategy returns a strategy that issues both calls at once on
// httpClient. Its latency is the slower of the two calls.
func NewConcurrentStrategy(tier Tier, httpClient *http.Client, commitment string) Strategy {
	return &concurrentStrategy{tier: tier, rpc: newRPCClient(httpClient, commitment)}
}

func (s *concurrentStrategy) Tier() Tier { return s.tier }

func (s *concurrentStrategy) Attempt(ctx context.Context, ep types.Endpoint) (ChainState, error) {
	var (
		wg                    sync.WaitGroup
		slot                  uint64
		blockhash             string
		slotTook, hashTook    time.Duration
		slotErr, blockhashErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		slot, slotTook, slotErr = s.rpc.GetSlot(ctx, ep.URL)
	}()
	go func() {
		defer wg.Done()
		blockhash, hashTook, blockhashErr = s.rpc.GetLatestBlockhash(ctx, ep.URL)
	}()
	wg.Wait()

	if err := errors.Join(slotErr, blockhashErr); err != nil {
		return ChainState{}, err
	}

	return ChainState{
		Slot:      slot,
		Blockhash: blockhash,
		Latency:   max(slotTook, hashTook),
	}, nil
}

// sequentialStrategy issues the calls one after the other and keeps
// whatever it obtained.
type sequentialStrategy struct {
	rpc *rpcClient
}

// NewSequentialStrategy returns the last-resort strategy. On failure it
// still returns the partial state obtained before the error.
func NewSequentialStrategy(httpClient *http.Client, commitment string) Strategy {
	return &sequentialStrategy{rpc: newRPCClient(httpClient, commitment)}
}

func (s *sequentialStrategy) Tier() Tier { return TierMinimal }

func (s *sequentialStrategy) Attempt(ctx context.Context, ep types.Endpoint) (ChainState, error) {
	state := ChainState{Blockhash: types.BlockhashUnavailable}

	slot, slotTook, slotErr := s.rpc.GetSlot(ctx, ep.URL)
	if slotErr == nil {
		state.Slot = slot
	}

	blockhash, hashTook, blockhashErr := s.rpc.GetLatestBlockhash(ctx, ep.URL)
	if blockhashErr == nil {
		state.Blockhash = blockhash
	}

	state.Latency = slotTook + hashTook

	if err := errors.Join(slotErr, blockhashErr); err != nil {
		state.Partial = slotErr == nil || blockhashErr == nil
		return state, err
	}
	return state, nil
}

// attempt runs the strategies in order until one succeeds. On total failure
// the state is degraded: the blockhash is unavailable and the slot is zero
// unless the last tier obtained it.
func attempt(ctx context.Context, strategies []Strategy, ep types.Endpoint) AttemptResult {
	result := AttemptResult{
		State: ChainState{Blockhash: types.BlockhashUnavailable},
	}
	if len(strategies) == 0 {
		result.Errs = append(result.Errs, TierError{Tier: TierNone, Err: ErrNoStrategies})
		return result
	}

	for _, s := range strategies {
		if ctx.Err() != nil {
			result.Errs = append(result.Errs, TierError{Tier: s.Tier(), Err: ctx.Err()})
			break
		}

		state, err := s.Attempt(ctx, ep)
		if err == nil {
			result.Tier = s.Tier()
			result.State = state
			return result
		}

		result.Errs = append(result.Errs, TierError{Tier: s.Tier(), Err: err})
		if state.Partial {
			result.State = state
		}
	}

	return result
}
