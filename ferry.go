package ferry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/transfer"
	"github.com/fileferry/ferry/internal/validation"
	"github.com/fileferry/ferry/sink"
	"github.com/fileferry/ferry/source"
	"github.com/fileferry/ferry/strategy"
)

// Execute runs one transfer request through its full lifecycle and returns
// the terminal result. The result is always populated, success or failure;
// the error carries the classified cause when the state is Failed.
//
// The call is synchronous and owns the request end to end: authorization,
// planning, the chunked copy with retries, verification, and the terminal
// bookkeeping (grant revocation, outcome recording, notification).
func (e *Engine) Execute(ctx context.Context, req ferrytypes.TransferRequest) (result *ferrytypes.TransferResult, err error) {
	if err := validation.ValidateRequest(req); err != nil {
		// Nothing entered the pipeline, so there is no grant to revoke and
		// no outcome to record.
		return &ferrytypes.TransferResult{
			State:     ferrytypes.StateFailed,
			ErrorKind: ferryerrors.KindOf(err).String(),
		}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.jobTimeout)
	defer cancel()

	j := &job{
		engine:  e,
		req:     req,
		logger:  e.logger.With("request_id", req.RequestID),
		started: e.now(),
	}

	j.logger.InfoContext(ctx, "transfer accepted",
		"source", req.Source.String(),
		"dest", req.Dest.Addr(),
		"protocol", req.Dest.Protocol,
	)
	j.mark(ctx, ferrytypes.StatePending)

	// A collaborator panicking inside the terminal bookkeeping must still
	// not escape the public boundary. The bookkeeping state is unknown at
	// that point, so this only synthesizes the failed result.
	defer func() {
		if r := recover(); r != nil {
			j.logger.ErrorContext(ctx, "panic contained", "panic", r)
			result = &ferrytypes.TransferResult{
				State:     ferrytypes.StateFailed,
				ErrorKind: ferryerrors.KindInternal.String(),
			}
			err = ferryerrors.NewError("ferry.execute", ferryerrors.KindInternal, fmt.Errorf("panic: %v", r)).
				WithRequestID(req.RequestID)
		}
	}()

	return j.finish(ctx, j.runContained(ctx))
}

// job carries the state of one Execute call across its phases.
type job struct {
	engine  *Engine
	req     ferrytypes.TransferRequest
	logger  *slog.Logger
	started time.Time

	grantID    string
	src        source.Source
	info       *source.ObjectInfo
	strategy   ferrytypes.TransferStrategy
	final      ferrytypes.TransferStrategy
	prediction ferrytypes.Prediction
	sinkCreds  ferrytypes.SinkCredentials
	remotePath string
	attempts   int
	copied     *transfer.Result
}

// runContained executes the pipeline and converts a collaborator panic into
// an internal-kind error, so the terminal bookkeeping still runs and the
// caller sees a classified failure instead of an unwinding stack.
func (j *job) runContained(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.ErrorContext(ctx, "collaborator panic contained", "panic", r)
			err = ferryerrors.NewError("ferry.execute", ferryerrors.KindInternal, fmt.Errorf("panic: %v", r)).
				WithRequestID(j.req.RequestID)
		}
	}()
	return j.run(ctx)
}

func (j *job) run(ctx context.Context) error {
	j.mark(ctx, ferrytypes.StateAuthorizing)
	if err := j.authorize(ctx); err != nil {
		return err
	}

	j.mark(ctx, ferrytypes.StatePlanning)
	if err := j.plan(ctx); err != nil {
		return err
	}

	return j.stream(ctx)
}

// authorize obtains a valid grant and captures the source credentials
// exactly once. A pre-issued grant on the request is validity-checked
// instead of authenticating again; either way the grant is revoked when the
// job ends.
func (j *job) authorize(ctx context.Context) error {
	const op = "ferry.authorize"
	e := j.engine

	grantID := j.req.GrantID
	if grantID != "" {
		if !e.session.IsValid(ctx, grantID) {
			return ferryerrors.NewError(op, ferryerrors.KindAuthorization, ferryerrors.ErrGrantNotFound).
				WithMessage("pre-issued grant is not valid").
				WithRequestID(j.req.RequestID)
		}
	} else {
		grant, err := e.session.Authenticate(ctx, j.req.RequesterID, j.req.RequestID, e.region)
		if err != nil {
			return err
		}
		grantID = grant.ID
	}
	j.grantID = grantID

	credentials, err := e.session.CredentialsFor(ctx, grantID)
	if err != nil {
		return err
	}

	src, err := e.sources(ctx, credentials)
	if err != nil {
		return ferryerrors.NewError(op, ferryerrors.KindInternal, err).
			WithMessage("building source client").
			WithRequestID(j.req.RequestID)
	}
	j.src = src

	j.logger.DebugContext(ctx, "transfer authorized", "grant_id", grantID)
	return nil
}

// plan stats the object once, derives the strategy from its size, gates
// compression on content type, attaches the advisory prediction, and
// resolves the destination account credentials.
func (j *job) plan(ctx context.Context) error {
	e := j.engine

	info, err := j.src.Stat(ctx, j.req.Source)
	if err != nil {
		return err
	}
	j.info = info

	strat := strategy.Select(info.Size)
	if strat.Compress {
		contentType := info.ContentType
		if contentType == "" || contentType == "application/octet-stream" {
			sniffed, err := source.Sniff(ctx, j.src, j.req.Source, info.Size)
			if err != nil {
				j.logger.WarnContext(ctx, "content type detection failed", "error", err)
			} else if sniffed != "" {
				contentType = sniffed
			}
		}
		if !strategy.Compressible(contentType) {
			strat.Compress = false
		}
	}
	j.strategy = strat
	j.final = strat

	// The prediction is advisory. A failing history store downgrades it to
	// the zero value; it never stops the transfer.
	prediction, err := e.learner.Predict(ctx, j.req.Dest.Protocol, info.Size)
	if err != nil {
		j.logger.WarnContext(ctx, "prediction unavailable", "error", err)
	} else {
		j.prediction = prediction
	}

	sinkCreds, err := e.resolver.Resolve(ctx, j.req.Dest)
	if err != nil {
		return err
	}
	j.sinkCreds = sinkCreds

	j.remotePath = j.req.Dest.Path
	if strat.Compress {
		j.remotePath += ".gz"
	}

	j.logger.InfoContext(ctx, "transfer planned",
		"size", humanize.IBytes(uint64(info.Size)),
		"chunk_size", strat.ChunkSize,
		"parallelism", strat.Parallelism,
		"compress", strat.Compress,
		"risk", strat.Risk,
		"estimated_duration", strat.EstimatedDuration,
		"predicted_success_rate", j.prediction.SuccessRate,
		"predicted_duration", j.prediction.ExpectedDuration,
		"prediction_confidence", j.prediction.Confidence,
	)
	return nil
}

// attempt executes one streaming pass: connect, prepare the remote path,
// run the chunked copy under the grant store watchdog, and verify the
// accumulated digest against the source ETag.
func (j *job) attempt(ctx context.Context) error {
	e := j.engine

	j.mark(ctx, ferrytypes.StateStreaming)

	snk, err := e.sinks(j.req.Dest.Protocol)
	if err != nil {
		return err
	}
	defer snk.Close()

	if err := snk.Connect(ctx, j.req.Dest, j.sinkCreds); err != nil {
		return err
	}
	if err := snk.Prepare(ctx, j.remotePath); err != nil {
		return err
	}

	var onProgress func(transferred, total int64)
	if e.progress != nil {
		onProgress = e.progress.Update
	}
	copier, err := transfer.New(transfer.Config{
		Plan: transfer.Plan{
			ChunkSize:   j.strategy.ChunkSize,
			Parallelism: j.strategy.Parallelism,
			Compress:    j.strategy.Compress,
		},
		Total:      j.info.Size,
		Source:     &objectRange{src: j.src, ref: j.req.Source},
		Dest:       &sinkWriter{snk: snk, path: j.remotePath},
		NewHash:    e.newHash,
		OnProgress: onProgress,
	})
	if err != nil {
		return ferryerrors.NewError("ferry.stream", ferryerrors.KindInternal, err).
			WithRequestID(j.req.RequestID)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopWatch := j.watchGrantStore(runCtx, cancel)

	res, err := copier.Run(runCtx)
	stopWatch()
	if err != nil {
		return j.normalize(err)
	}

	j.mark(ctx, ferrytypes.StateVerifying)
	if !transfer.MatchesETag(res.Checksum, j.info.ETag) {
		return ferryerrors.NewError("ferry.verify", ferryerrors.KindIntegrity, ferryerrors.ErrChecksumMismatch).
			WithMessage(fmt.Sprintf("digest %s does not match source etag %s",
				res.Checksum, transfer.NormalizeETag(j.info.ETag))).
			WithRequestID(j.req.RequestID).
			WithSource(j.req.Source.String())
	}
	j.copied = res
	return nil
}

// watchGrantStore pings the grant store while the copy streams and cancels
// the attempt when the store stops answering. An unreachable store means
// grant validity can no longer be established, so the job stops at the next
// chunk boundary rather than keep moving bytes. The returned func stops the
// watchdog and must be called before the attempt returns.
func (j *job) watchGrantStore(ctx context.Context, cancel context.CancelCauseFunc) func() {
	interval := j.engine.watchdog
	if interval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := j.engine.session.Ping(ctx); err != nil {
					j.logger.WarnContext(ctx, "grant store unreachable, stopping transfer", "error", err)
					cancel(ferryerrors.NewError("ferry.watchdog", ferryerrors.KindCancelled, ferryerrors.ErrCancelled).
						WithMessage("grant store unreachable during streaming").
						WithRequestID(j.req.RequestID))
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// normalize folds raw copy errors into the classified taxonomy. Classified
// errors pass through untouched, context expiry reads as cancellation, and
// anything else is treated as a transport fault eligible for retry.
func (j *job) normalize(err error) error {
	var ferr *ferryerrors.Error
	if errors.As(err, &ferr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ferryerrors.NewError("ferry.stream", ferryerrors.KindCancelled, err).
			WithRequestID(j.req.RequestID)
	}
	return ferryerrors.NewError("ferry.stream", ferryerrors.KindTransientTransport, err).
		WithRequestID(j.req.RequestID)
}

// finish performs the terminal bookkeeping and builds the result. It runs
// on a context stripped of cancellation so revocation, recording, and
// notification still happen when the job deadline has already expired.
func (j *job) finish(ctx context.Context, jobErr error) (*ferrytypes.TransferResult, error) {
	e := j.engine

	result := &ferrytypes.TransferResult{
		State:      ferrytypes.StateCompleted,
		RemotePath: j.remotePath,
		Duration:   e.now().Sub(j.started),
		Attempts:   j.attempts,
		Strategy:   j.final,
		Prediction: j.prediction,
	}
	if j.copied != nil {
		result.BytesTransferred = j.copied.BytesRead
		result.Checksum = j.copied.Checksum
	}
	if jobErr != nil {
		result.State = ferrytypes.StateFailed
		result.ErrorKind = ferryerrors.KindOf(jobErr).String()
	}

	ctx = context.WithoutCancel(ctx)

	if j.grantID != "" {
		if err := e.session.Revoke(ctx, j.grantID); err != nil {
			j.logger.WarnContext(ctx, "grant revocation failed",
				"grant_id", j.grantID, "error", err)
		}
	}

	rec := ferrytypes.TransferRecord{
		Protocol:    j.req.Dest.Protocol,
		Success:     jobErr == nil,
		Duration:    result.Duration,
		ChunkSize:   j.final.ChunkSize,
		Parallelism: j.final.Parallelism,
		Attempts:    j.attempts,
		ErrorClass:  result.ErrorKind,
	}
	if j.info != nil {
		rec.SizeBytes = j.info.Size
	}
	if err := e.learner.Record(ctx, rec); err != nil {
		j.logger.WarnContext(ctx, "outcome not recorded", "error", err)
	}

	if e.notifier != nil {
		summary := ferrytypes.OutcomeSummary{
			RequestID: j.req.RequestID,
			Outcome:   result.State,
			Bytes:     result.BytesTransferred,
			Duration:  result.Duration,
			Checksum:  result.Checksum,
			ErrorKind: result.ErrorKind,
		}
		if err := e.notifier.Notify(ctx, summary); err != nil {
			j.logger.WarnContext(ctx, "outcome notification failed", "error", err)
		}
	}

	j.mark(ctx, result.State)

	if e.progress != nil {
		if jobErr != nil {
			e.progress.Error(jobErr)
		} else {
			e.progress.Complete()
		}
	}

	if jobErr != nil {
		j.logger.ErrorContext(ctx, "transfer failed",
			"error_kind", result.ErrorKind,
			"attempts", j.attempts,
			"duration", result.Duration,
			"error", jobErr,
		)
		return result, jobErr
	}

	j.logger.InfoContext(ctx, "transfer completed",
		"bytes", humanize.IBytes(uint64(result.BytesTransferred)),
		"checksum", result.Checksum,
		"remote_path", result.RemotePath,
		"attempts", j.attempts,
		"duration", result.Duration,
	)
	return result, nil
}

// mark records a lifecycle transition with the external observer. Observer
// failures never change the job's course.
func (j *job) mark(ctx context.Context, state ferrytypes.TransferState) {
	j.logger.DebugContext(ctx, "state change", "state", state)
	if j.engine.stateFn == nil {
		return
	}
	if err := j.engine.stateFn(ctx, j.req.RequestID, state); err != nil {
		j.logger.WarnContext(ctx, "state not tracked", "state", state, "error", err)
	}
}

// objectRange binds a source object reference to the copier's range reader.
type objectRange struct {
	src source.Source
	ref ferrytypes.ObjectRef
}

func (o *objectRange) ReadRange(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	return o.src.ReadRange(ctx, o.ref, start, end)
}

// sinkWriter binds a remote path to the copier's chunk writer.
type sinkWriter struct {
	snk  sink.Sink
	path string
}

func (s *sinkWriter) WriteAt(ctx context.Context, offset int64, r io.Reader) (int64, error) {
	return s.snk.WriteAt(ctx, s.path, offset, r)
}
