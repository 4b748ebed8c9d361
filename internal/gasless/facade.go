package gasless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/openharvest/harvestd/internal/domain"
)

// NonceSource reads the forwarder's replay counter for a signer. Implemented
// by chain.Forwarder.
type NonceSource interface {
	Nonces(ctx context.Context, signer common.Address) (*big.Int, error)
}

// Submitter posts a signed request to the relay endpoint. Implemented by
// relay.Client.
type Submitter interface {
	Submit(ctx context.Context, req domain.ForwardRequest, sig []byte) (common.Hash, error)
}

// Confirmer waits for a relayed transaction to be mined and decodes revert
// reasons. Implemented by chain.Forwarder.
type Confirmer interface {
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	RevertReason(ctx context.Context, receipt *types.Receipt) (string, error)
}

// Options tune the facade's retry and settle behavior. Zero values select the
// defaults noted per field.
type Options struct {
	// MaxAttempts caps submission attempts across rate-limit and
	// nonce-conflict retries. Default 4.
	MaxAttempts int

	// RateLimitBackoff is the wait after HTTP 429 before retrying from a
	// fresh nonce read. Default 60s.
	RateLimitBackoff time.Duration

	// NonceConflictBackoff is the wait after a nonce conflict before
	// retrying from a fresh nonce read. Default 10s.
	NonceConflictBackoff time.Duration

	// SettleDelay is applied after successful confirmation, before the
	// caller is told to refresh dependent reads, to tolerate the RPC node
	// lagging the canonical head. Default 2s.
	SettleDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = 60 * time.Second
	}
	if o.NonceConflictBackoff <= 0 {
		o.NonceConflictBackoff = 10 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	return o
}

// Result is the successful outcome of a gasless operation.
type Result struct {
	OperationID string
	TxHash      common.Hash
	Receipt     *types.Receipt
}

// Facade is the single entry point every feature calls to execute a contract
// write gaslessly. It threads chain guard → nonce read → request build →
// signature → relay submission → confirmation, normalizing every failure
// into the domain error taxonomy.
//
// Per invocation the operation moves through
//
//	idle → checking-chain → reading-nonce → awaiting-signature →
//	submitting → confirming → {succeeded | failed}
//
// Failed is terminal for the invocation; callers re-invoke Execute to start
// over from idle. Concurrent invocations from the same signer are not
// serialized: each reads its own nonce, and a lost race is detected and
// retried through the relay's nonce-conflict response, not prevented by a
// client-side lock.
type Facade struct {
	signer  Signer
	guard   *ChainGuard
	nonces  NonceSource
	builder *Builder
	relay   Submitter
	chain   Confirmer

	opts    Options
	store   domain.OperationStore           // optional audit trail
	limiter domain.RateLimiter              // optional pre-throttle
	onEvent func(domain.OperationEvent)     // optional dashboard broadcast
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	// rateLimit is the per-signer submission budget consulted via limiter.
	rateLimitPerMin int
}

// New creates a Facade. store, limiter, and onEvent may be nil.
func New(
	signer Signer,
	guard *ChainGuard,
	nonces NonceSource,
	builder *Builder,
	relay Submitter,
	chain Confirmer,
	opts Options,
	logger *slog.Logger,
) *Facade {
	return &Facade{
		signer:          signer,
		guard:           guard,
		nonces:          nonces,
		builder:         builder,
		relay:           relay,
		chain:           chain,
		opts:            opts.withDefaults(),
		logger:          logger.With(slog.String("component", "gasless")),
		sleep:           sleepCtx,
		rateLimitPerMin: 30,
	}
}

// WithAudit records every operation in the given store.
func (f *Facade) WithAudit(store domain.OperationStore) *Facade {
	f.store = store
	return f
}

// WithRateLimiter pre-throttles submissions per signer before the relay's
// own 429 kicks in.
func (f *Facade) WithRateLimiter(limiter domain.RateLimiter, perMinute int) *Facade {
	f.limiter = limiter
	if perMinute > 0 {
		f.rateLimitPerMin = perMinute
	}
	return f
}

// WithEvents broadcasts every state transition, e.g. to the dashboard
// WebSocket hub.
func (f *Facade) WithEvents(fn func(domain.OperationEvent)) *Facade {
	f.onEvent = fn
	return f
}

// Execute runs one gasless operation end to end and returns its transaction
// hash and receipt, or the terminal error classified per the domain
// taxonomy. Transient relay failures (rate limit, nonce conflict) are
// retried internally — always from a fresh nonce read and a fresh signature,
// never by resending a stale envelope — until Options.MaxAttempts is
// exhausted.
func (f *Facade) Execute(ctx context.Context, call Call) (Result, error) {
	op := &operation{
		Operation: domain.Operation{
			ID:        uuid.New().String(),
			Target:    call.Target,
			Function:  call.Function,
			State:     domain.OpIdle,
			StartedAt: time.Now().UTC(),
		},
		facade: f,
	}

	if f.signer == nil || f.signer.Address() == (common.Address{}) {
		return Result{}, op.fail(ctx, fmt.Errorf("gasless: %w", domain.ErrNotConnected))
	}
	from := f.signer.Address()
	op.Signer = from.Hex()
	op.record(ctx)

	log := f.logger.With(
		slog.String("op_id", op.ID),
		slog.String("signer", op.Signer),
		slog.String("target", string(call.Target)),
		slog.String("function", call.Function),
	)

	// 1. Chain affinity. Failing here means no signature prompt was wasted.
	op.transition(ctx, domain.OpCheckingChain)
	if err := f.guard.Ensure(ctx, f.signer); err != nil {
		return Result{}, op.fail(ctx, err)
	}

	var txHash common.Hash
	for attempt := 1; ; attempt++ {
		op.Attempts = attempt

		// 2. Fresh nonce. Never reused across attempts: any transaction
		// from this signer landing in between (including from a parallel
		// client) invalidates the previous value.
		op.transition(ctx, domain.OpReadingNonce)
		nonce, err := f.nonces.Nonces(ctx, from)
		if err != nil {
			return Result{}, op.fail(ctx, fmt.Errorf("gasless: read nonce: %w", err))
		}

		req, err := f.builder.Build(from, nonce, call)
		if err != nil {
			return Result{}, op.fail(ctx, err)
		}

		// 3. Signature. The request is immutable from here on; a retry
		// builds and signs a brand-new one.
		op.transition(ctx, domain.OpAwaitingSignature)
		sig, err := f.signer.SignForwardRequest(ctx, req)
		if err != nil {
			return Result{}, op.fail(ctx, err)
		}

		// 4. Submission, with the local pre-throttle ahead of the wire.
		op.transition(ctx, domain.OpSubmitting)
		if wait, err := f.preThrottle(ctx, from); err != nil {
			return Result{}, op.fail(ctx, err)
		} else if wait {
			if attempt >= f.opts.MaxAttempts {
				return Result{}, op.fail(ctx, fmt.Errorf("gasless: local throttle after %d attempts: %w",
					attempt, domain.ErrRelayRateLimited))
			}
			if err := f.sleep(ctx, f.opts.RateLimitBackoff); err != nil {
				return Result{}, op.fail(ctx, err)
			}
			continue
		}

		txHash, err = f.relay.Submit(ctx, req, sig)
		if err == nil {
			break
		}

		var backoff time.Duration
		switch {
		case errors.Is(err, domain.ErrRelayRateLimited):
			backoff = f.opts.RateLimitBackoff
		case errors.Is(err, domain.ErrRelayNonceConflict):
			backoff = f.opts.NonceConflictBackoff
		default:
			return Result{}, op.fail(ctx, err)
		}

		if attempt >= f.opts.MaxAttempts {
			return Result{}, op.fail(ctx, fmt.Errorf("gasless: giving up after %d attempts: %w", attempt, err))
		}
		log.Warn("relay submission deferred, retrying with fresh nonce",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("reason", err.Error()),
		)
		if err := f.sleep(ctx, backoff); err != nil {
			return Result{}, op.fail(ctx, err)
		}
	}

	op.TxHash = txHash.Hex()

	// 5. Confirmation. From here the operation cannot be cancelled; we can
	// only wait for its terminal outcome.
	op.transition(ctx, domain.OpConfirming)
	receipt, err := f.chain.WaitMined(ctx, txHash)
	if err != nil {
		return Result{}, op.fail(ctx, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason, reasonErr := f.chain.RevertReason(ctx, receipt)
		if reasonErr != nil {
			log.Debug("revert reason unavailable", slog.String("error", reasonErr.Error()))
		}
		return Result{}, op.fail(ctx, &domain.RevertError{Reason: reason, TxHash: txHash.Hex()})
	}

	// 6. Settle delay: give the RPC node time to catch up to the canonical
	// head before dependent reads are refreshed.
	if err := f.sleep(ctx, f.opts.SettleDelay); err != nil {
		return Result{}, op.fail(ctx, err)
	}

	op.succeed(ctx)
	log.Info("gasless operation confirmed",
		slog.String("tx", txHash.Hex()),
		slog.Int("attempts", op.Attempts),
	)

	return Result{OperationID: op.ID, TxHash: txHash, Receipt: receipt}, nil
}

// preThrottle consults the optional local rate limiter. It returns
// wait=true when the submission should back off before hitting the wire.
func (f *Facade) preThrottle(ctx context.Context, signer common.Address) (wait bool, err error) {
	if f.limiter == nil {
		return false, nil
	}
	allowed, err := f.limiter.Allow(ctx, "relay:"+signer.Hex(), f.rateLimitPerMin, time.Minute)
	if err != nil {
		// A broken limiter must not block submissions; the relay enforces
		// its own limit anyway.
		f.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return false, nil
	}
	return !allowed, nil
}

// --------------------------------------------------------------------------
// Operation bookkeeping: audit store plus event broadcast, both best-effort.
// --------------------------------------------------------------------------

type operation struct {
	domain.Operation
	facade *Facade
}

func (op *operation) record(ctx context.Context) {
	if op.facade.store == nil {
		return
	}
	if err := op.facade.store.Create(ctx, op.Operation); err != nil {
		op.facade.logger.Warn("operation audit create failed",
			slog.String("op_id", op.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (op *operation) transition(ctx context.Context, state domain.OperationState) {
	op.State = state
	op.emit("")
	if op.facade.store == nil {
		return
	}
	if err := op.facade.store.UpdateState(ctx, op.ID, state, op.Attempts); err != nil {
		op.facade.logger.Warn("operation audit update failed",
			slog.String("op_id", op.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (op *operation) succeed(ctx context.Context) {
	op.State = domain.OpSucceeded
	op.emit("")
	op.complete(ctx, domain.ErrKindNone, "")
}

// fail finalizes the operation and returns the error unchanged so call sites
// can `return op.fail(ctx, err)`.
func (op *operation) fail(ctx context.Context, err error) error {
	op.State = domain.OpFailed
	op.ErrorKind = classifyKind(err)
	op.ErrorDetail = err.Error()
	op.emit(err.Error())
	op.complete(ctx, op.ErrorKind, op.ErrorDetail)
	return err
}

func (op *operation) complete(ctx context.Context, kind domain.ErrorKind, detail string) {
	if op.facade.store == nil {
		return
	}
	if err := op.facade.store.Complete(ctx, op.ID, op.State, op.TxHash, kind, detail); err != nil {
		op.facade.logger.Warn("operation audit complete failed",
			slog.String("op_id", op.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (op *operation) emit(errMsg string) {
	if op.facade.onEvent == nil {
		return
	}
	op.facade.onEvent(domain.OperationEvent{
		OperationID: op.ID,
		Signer:      op.Signer,
		Target:      op.Target,
		Function:    op.Function,
		State:       op.State,
		Attempt:     op.Attempts,
		TxHash:      op.TxHash,
		ErrorKind:   op.ErrorKind,
		Error:       errMsg,
		At:          time.Now().UTC(),
	})
}

// classifyKind maps a terminal error to its taxonomy bucket for the audit
// record.
func classifyKind(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return domain.ErrKindNotConnected
	case errors.Is(err, domain.ErrChainMismatch):
		return domain.ErrKindChainMismatch
	case errors.Is(err, domain.ErrSignatureCancelled):
		return domain.ErrKindSignatureCancelled
	case errors.Is(err, domain.ErrSigningFailed):
		return domain.ErrKindSigningFailed
	case errors.Is(err, domain.ErrRelayRateLimited):
		return domain.ErrKindRelayRateLimited
	case errors.Is(err, domain.ErrRelayNonceConflict):
		return domain.ErrKindRelayNonceConflict
	case errors.Is(err, domain.ErrRelayRejected):
		return domain.ErrKindRelayRejected
	case errors.Is(err, domain.ErrOnChainReverted):
		return domain.ErrKindOnChainReverted
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return domain.ErrKindConfirmationTimeout
	case errors.Is(err, domain.ErrUnknownTarget):
		return domain.ErrKindUnknownTarget
	default:
		return domain.ErrKindRelayRejected
	}
}

// sleepCtx sleeps for d, returning early with the context's error if it is
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
