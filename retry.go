package ferry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/strategy"
)

// failureClass drives the retry decision for one failed attempt.
type failureClass int

const (
	// failurePermanent stops the job immediately. Authorization denials,
	// rejected paths, missing sources, store failures, and cancellation all
	// land here.
	failurePermanent failureClass = iota

	// failureTransient is a momentary transport fault, retried with backoff
	// up to the retry budget.
	failureTransient

	// failureIntegrity is a checksum mismatch, re-read once with a degraded
	// plan and permanent on the second mismatch.
	failureIntegrity
)

// classify maps a failed attempt onto the retry policy.
func classify(err error) failureClass {
	switch ferryerrors.KindOf(err) {
	case ferryerrors.KindTransientTransport:
		return failureTransient
	case ferryerrors.KindIntegrity:
		return failureIntegrity
	default:
		return failurePermanent
	}
}

// stream runs attempts until one succeeds, a failure is permanent, or the
// retry budget is spent. Every retry degrades the plan first, so a rerun is
// never a blind repeat of the attempt that just failed.
func (j *job) stream(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = j.engine.retryBase
	bo.MaxInterval = maxRetryDelay
	bo.MaxElapsedTime = 0

	integrityRetried := false
	for {
		j.attempts++
		j.final = j.strategy

		err := j.attempt(ctx)
		if err == nil {
			return nil
		}

		kind := ferryerrors.KindOf(err)
		j.logger.WarnContext(ctx, "attempt failed",
			"attempt", j.attempts,
			"error_kind", kind.String(),
			"error", err,
		)

		switch classify(err) {
		case failurePermanent:
			return err
		case failureIntegrity:
			if integrityRetried {
				return err
			}
			integrityRetried = true
		case failureTransient:
			if j.attempts > maxRetries {
				return err
			}
		}

		j.strategy = strategy.Degrade(j.strategy)
		wait := bo.NextBackOff()
		j.logger.InfoContext(ctx, "retrying with degraded plan",
			"attempt", j.attempts+1,
			"chunk_size", j.strategy.ChunkSize,
			"parallelism", j.strategy.Parallelism,
			"backoff", wait,
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ferryerrors.NewError("ferry.retry", ferryerrors.KindCancelled, context.Cause(ctx)).
				WithRequestID(j.req.RequestID)
		}
	}
}
