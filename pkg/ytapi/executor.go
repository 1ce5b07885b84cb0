package ytapi

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
)

// DefaultMaxRetries bounds the retry loop for retryable failures.
const DefaultMaxRetries = 3

// Executor runs one logical call through the full quota cycle:
// select credential → reserve units → send → classify → commit →
// retry or fail. Credentials are re-selected between attempts so an
// exhausted or erroring key is naturally avoided.
type Executor struct {
	ledger     *quota.Ledger
	client     *Client
	maxRetries int

	// sleep waits between retries, honoring ctx. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires an executor to its ledger and transport.
func NewExecutor(ledger *quota.Ledger, client *Client) *Executor {
	return &Executor{
		ledger:     ledger,
		client:     client,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepCtx,
	}
}

// SetMaxRetries overrides the retry bound.
func (e *Executor) SetMaxRetries(n int) {
	if n >= 0 {
		e.maxRetries = n
	}
}

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

// Do performs one physical call against ep. It reserves ep.FixedCost
// units before sending and always commits the reservation, success or
// error; a failed remote call still consumes the units reserved for it.
// Having no eligible credential at all is immediately fatal and never
// enters the retry loop.
func (e *Executor) Do(ctx context.Context, ep Endpoint, params url.Values) ([]byte, error) {
	cost := ep.FixedCost

	var lastErr *APIError
	for attempt := 0; ; attempt++ {
		res, cred, err := e.acquire(ep, cost)
		if err != nil {
			if lastErr != nil {
				// Retried into exhaustion: surface the error that got us here.
				return nil, lastErr
			}
			return nil, err
		}

		body, apiErr := e.client.Get(ctx, ep, cred.Secret, params)

		if apiErr == nil {
			e.ledger.Commit(res, quota.OutcomeSuccess)
			return body, nil
		}

		// The call happened; commit regardless of outcome, and before any
		// backoff so cancellation can never strand reserved units.
		e.ledger.Commit(res, commitOutcome(apiErr))

		apiErr.Endpoint = ep.Name
		apiErr.Credential = cred.Name
		apiErr.Attempts = attempt + 1
		lastErr = apiErr

		switch apiErr.Kind {
		case KindAuth:
			// Bad key: pull it from rotation immediately.
			e.ledger.Deactivate(cred.Name)
			return nil, apiErr
		case KindQuota:
			// Provider says this key is spent even though the ledger
			// disagreed. Drain it and swap credentials without backoff.
			e.ledger.MarkExhausted(cred.Name)
			if attempt < e.maxRetries {
				continue
			}
			return nil, apiErr
		}

		if !apiErr.Retryable() || attempt >= e.maxRetries {
			return nil, apiErr
		}

		delay := RetryDelay(apiErr, attempt+1)
		log.Warn().
			Str("endpoint", ep.Name).
			Str("credential", cred.Name).
			Str("kind", string(apiErr.Kind)).
			Dur("delay", delay).
			Int("attempt", attempt+1).
			Msg("Retrying after classified failure")

		if err := e.sleep(ctx, delay); err != nil {
			return nil, apiErr
		}
	}
}

// acquire picks the best eligible credential and reserves cost units on
// it. If another caller consumed the slot between selection and
// reservation, it re-selects once before reporting exhaustion.
func (e *Executor) acquire(ep Endpoint, cost int64) (*quota.Reservation, quota.Credential, error) {
	for i := 0; i < 2; i++ {
		cred, ok := e.ledger.SelectBestCredential(ep.Name, cost)
		if !ok {
			return nil, quota.Credential{}, &APIError{
				Kind:     KindQuotaExhausted,
				Message:  "no credential can cover the required units",
				Endpoint: ep.Name,
			}
		}
		res, err := e.ledger.Reserve(cred.Name, ep.Name, cost)
		if err == nil {
			return res, cred, nil
		}
		if !errors.Is(err, quota.ErrInsufficientQuota) && !errors.Is(err, quota.ErrInactiveCred) {
			return nil, quota.Credential{}, err
		}
		// Lost the race for this credential's remaining units; try once more.
	}
	return nil, quota.Credential{}, &APIError{
		Kind:     KindQuotaExhausted,
		Message:  "credential pool exhausted during reservation",
		Endpoint: ep.Name,
	}
}

// commitOutcome maps a failed attempt to the ledger outcome. Not-found,
// caller mistakes and caller-side cancellation are terminal for the call
// but not credential faults, so they never feed the consecutive-error
// counter.
func commitOutcome(err *APIError) quota.Outcome {
	switch err.Kind {
	case KindNotFound, KindInvalidRequest:
		return quota.OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return quota.OutcomeSuccess
	}
	return quota.OutcomeError
}
