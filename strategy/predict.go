package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

const (
	// DefaultSampleLimit caps how many recent records a prediction reads.
	DefaultSampleLimit = 100

	// minComparableSamples is the size-filtered sample count below which the
	// prediction widens to all records for the protocol.
	minComparableSamples = 20

	// highConfidenceSamples is the filtered sample count for high confidence.
	highConfidenceSamples = 50

	// fallbackSuccessRate and fallbackThroughput produce the conservative
	// estimate used when no history exists at all.
	fallbackSuccessRate = 0.85
	fallbackThroughput  = 10 * 1024 * 1024 // bytes per second
)

// Learner predicts transfer outcomes from history and records new outcomes
// into it. Predictions are advisory: they inform logs and tickets, never
// whether a transfer runs.
type Learner struct {
	history History
	limit   int
	now     func() time.Time
	logger  *slog.Logger
}

// LearnerOption configures a Learner.
type LearnerOption func(*Learner)

// WithSampleLimit overrides how many recent records predictions read.
func WithSampleLimit(n int) LearnerOption {
	return func(l *Learner) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) LearnerOption {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LearnerOption {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLearner builds a Learner over the given history store.
func NewLearner(history History, opts ...LearnerOption) (*Learner, error) {
	if history == nil {
		return nil, ferryerrors.NewError("strategy.new", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("history store is required")
	}
	l := &Learner{
		history: history,
		limit:   DefaultSampleLimit,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Predict estimates the outcome of transferring sizeBytes over the protocol.
//
// It reads the most recent records for the protocol and keeps those within
// ±50% of the object size. Fewer than 20 comparable records widens the
// sample to everything read and pins confidence to low. An empty sample
// returns the fixed conservative estimate.
func (l *Learner) Predict(ctx context.Context, protocol ferrytypes.Protocol, sizeBytes int64) (ferrytypes.Prediction, error) {
	records, err := l.history.Recent(ctx, protocol, l.limit)
	if err != nil {
		return ferrytypes.Prediction{}, ferryerrors.NewError("strategy.predict", ferryerrors.KindHistoryStore, err)
	}

	widened := false
	sample := filterBySize(records, sizeBytes)
	if len(sample) < minComparableSamples {
		sample = records
		widened = true
	}
	if len(sample) == 0 {
		return ferrytypes.Prediction{
			SuccessRate:      fallbackSuccessRate,
			ExpectedDuration: estimateDuration(sizeBytes),
			Confidence:       ferrytypes.ConfidenceLow,
			SampleSize:       0,
		}, nil
	}

	var (
		successes       int
		successDuration time.Duration
	)
	for _, rec := range sample {
		if rec.Success {
			successes++
			successDuration += rec.Duration
		}
	}

	expected := estimateDuration(sizeBytes)
	if successes > 0 {
		expected = successDuration / time.Duration(successes)
	}

	confidence := ferrytypes.ConfidenceLow
	if !widened {
		confidence = ferrytypes.ConfidenceMedium
		if len(sample) >= highConfidenceSamples {
			confidence = ferrytypes.ConfidenceHigh
		}
	}

	return ferrytypes.Prediction{
		SuccessRate:      float64(successes) / float64(len(sample)),
		ExpectedDuration: expected,
		Confidence:       confidence,
		SampleSize:       len(sample),
	}, nil
}

// Record appends one outcome. Missing bookkeeping fields are filled in; the
// caller's fields are never overwritten.
func (l *Learner) Record(ctx context.Context, rec ferrytypes.TransferRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now()
	}
	if rec.SizeBucket == "" {
		rec.SizeBucket = ferrytypes.BucketFor(rec.SizeBytes)
	}

	if err := l.history.Append(ctx, rec); err != nil {
		return ferryerrors.NewError("strategy.record", ferryerrors.KindHistoryStore, err)
	}
	l.logger.DebugContext(ctx, "outcome recorded",
		"record_id", rec.ID,
		"protocol", rec.Protocol,
		"size_bucket", rec.SizeBucket,
		"success", rec.Success,
		"attempts", rec.Attempts,
	)
	return nil
}

// filterBySize keeps records whose size is within ±50% of sizeBytes,
// bounds inclusive.
func filterBySize(records []ferrytypes.TransferRecord, sizeBytes int64) []ferrytypes.TransferRecord {
	lo := sizeBytes / 2
	hi := sizeBytes + sizeBytes/2
	out := make([]ferrytypes.TransferRecord, 0, len(records))
	for _, rec := range records {
		if rec.SizeBytes >= lo && rec.SizeBytes <= hi {
			out = append(out, rec)
		}
	}
	return out
}

// estimateDuration is the no-history duration estimate at the fallback
// throughput.
func estimateDuration(sizeBytes int64) time.Duration {
	if sizeBytes <= 0 {
		return 0
	}
	return time.Duration(float64(sizeBytes) / fallbackThroughput * float64(time.Second))
}
