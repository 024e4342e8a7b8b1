package ferry

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/session"
	"github.com/fileferry/ferry/sink"
	"github.com/fileferry/ferry/source"
)

// memSource serves one in-memory object.
type memSource struct {
	mu          sync.Mutex
	data        []byte
	etag        string
	contentType string
	stats       int
	reads       int
	statErr     error
}

func (s *memSource) Stat(context.Context, ferrytypes.ObjectRef) (*source.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats++
	if s.statErr != nil {
		return nil, s.statErr
	}
	return &source.ObjectInfo{
		Size:         int64(len(s.data)),
		ETag:         s.etag,
		ContentType:  s.contentType,
		LastModified: time.Now(),
	}, nil
}

func (s *memSource) ReadRange(_ context.Context, _ ferrytypes.ObjectRef, start, end int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return io.NopCloser(bytes.NewReader(s.data[start:end])), nil
}

// memSink lands writes in memory. Failure hooks fire per WriteAt call so
// tests can script one attempt failing and the next succeeding.
type memSink struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	dest       ferrytypes.Destination
	creds      ferrytypes.SinkCredentials
	prepared   []string
	files      map[string][]byte
	writes     int
	connectErr error
	writeHook  func(call int) error
	blockWrite bool
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string][]byte)}
}

func (s *memSink) Connect(_ context.Context, dest ferrytypes.Destination, creds ferrytypes.SinkCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	s.dest = dest
	s.creds = creds
	return nil
}

func (s *memSink) Prepare(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ferryerrors.ErrNotConnected
	}
	s.prepared = append(s.prepared, path)
	s.files[path] = nil
	return nil
}

func (s *memSink) WriteAt(ctx context.Context, path string, offset int64, r io.Reader) (int64, error) {
	if s.blockWrite {
		<-ctx.Done()
		return 0, context.Cause(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ferryerrors.ErrNotConnected
	}
	s.writes++
	if s.writeHook != nil {
		if err := s.writeHook(s.writes); err != nil {
			return 0, err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	file := s.files[path]
	if need := offset + int64(len(data)); int64(len(file)) < need {
		grown := make([]byte, need)
		copy(grown, file)
		file = grown
	}
	copy(file[offset:], data)
	s.files[path] = file
	return int64(len(data)), nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) content(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path]
}

// sinkRig builds one fresh memSink per attempt, scripted by attempt number.
type sinkRig struct {
	mu    sync.Mutex
	sinks []*memSink
	setup func(attempt int, s *memSink)
}

func (r *sinkRig) factory(ferrytypes.Protocol) (sink.Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := newMemSink()
	if r.setup != nil {
		r.setup(len(r.sinks)+1, s)
	}
	r.sinks = append(r.sinks, s)
	return s, nil
}

func (r *sinkRig) last() *memSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sinks) == 0 {
		return nil
	}
	return r.sinks[len(r.sinks)-1]
}

func (r *sinkRig) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// stubSessions is a function-free session manager for engine tests.
type stubSessions struct {
	mu            sync.Mutex
	authenticated []string
	credCalls     int
	revoked       []string
	pings         int
	valid         map[string]bool
	authErr       error
	credErr       error
	pingErr       error
}

func newStubSessions() *stubSessions {
	return &stubSessions{valid: make(map[string]bool)}
}

func (s *stubSessions) Authenticate(_ context.Context, requesterID, requestID, region string) (*session.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authErr != nil {
		return nil, s.authErr
	}
	s.authenticated = append(s.authenticated, requestID)
	now := time.Now()
	grant := &session.Grant{
		ID:          "grant-" + requestID,
		RequestID:   requestID,
		RequesterID: requesterID,
		Region:      region,
		IssuedAt:    now,
		ExpiresAt:   now.Add(10 * time.Second),
	}
	s.valid[grant.ID] = true
	return grant, nil
}

func (s *stubSessions) IsValid(_ context.Context, grantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid[grantID]
}

func (s *stubSessions) CredentialsFor(context.Context, string) (ferrytypes.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credCalls++
	if s.credErr != nil {
		return ferrytypes.Credentials{}, s.credErr
	}
	return ferrytypes.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "token",
	}, nil
}

func (s *stubSessions) Revoke(_ context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, grantID)
	delete(s.valid, grantID)
	return nil
}

func (s *stubSessions) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *stubSessions) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// stubLearner serves a fixed prediction and journals recorded outcomes.
type stubLearner struct {
	mu         sync.Mutex
	prediction ferrytypes.Prediction
	predictErr error
	recordErr  error
	records    []ferrytypes.TransferRecord
}

func (l *stubLearner) Predict(context.Context, ferrytypes.Protocol, int64) (ferrytypes.Prediction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.predictErr != nil {
		return ferrytypes.Prediction{}, l.predictErr
	}
	return l.prediction, nil
}

func (l *stubLearner) Record(_ context.Context, rec ferrytypes.TransferRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *stubLearner) recorded() []ferrytypes.TransferRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ferrytypes.TransferRecord(nil), l.records...)
}

// stateLog journals lifecycle transitions.
type stateLog struct {
	mu     sync.Mutex
	states []ferrytypes.TransferState
}

func (l *stateLog) fn(_ context.Context, _ string, state ferrytypes.TransferState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
	return nil
}

func (l *stateLog) seen() []ferrytypes.TransferState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ferrytypes.TransferState(nil), l.states...)
}

// stubNotifier journals terminal summaries.
type stubNotifier struct {
	mu        sync.Mutex
	summaries []ferrytypes.OutcomeSummary
}

func (n *stubNotifier) Notify(_ context.Context, summary ferrytypes.OutcomeSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *stubNotifier) sent() []ferrytypes.OutcomeSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ferrytypes.OutcomeSummary(nil), n.summaries...)
}

func etagFor(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func testRequest() ferrytypes.TransferRequest {
	return ferrytypes.TransferRequest{
		Source: ferrytypes.ObjectRef{Bucket: "data-lake", Key: "reports/q1.csv"},
		Dest: ferrytypes.Destination{
			Protocol: ferrytypes.ProtocolSFTP,
			Host:     "drop.example.com",
			Path:     "exports/q1.csv",
			Username: "deliver",
			Password: "hunter2",
		},
		RequesterID: "analyst-7",
		RequestID:   "REQ-1001",
	}
}

// rig assembles an engine over in-memory collaborators.
type rig struct {
	src      *memSource
	sessions *stubSessions
	learner  *stubLearner
	sinks    *sinkRig
	states   *stateLog
	notes    *stubNotifier
	engine   *Engine

	mu       sync.Mutex
	srcCreds []ferrytypes.Credentials
}

func newRig(t *testing.T, payload []byte, opts ...Option) *rig {
	t.Helper()

	r := &rig{
		src: &memSource{
			data:        payload,
			etag:        etagFor(payload),
			contentType: "text/csv",
		},
		sessions: newStubSessions(),
		learner:  &stubLearner{},
		sinks:    &sinkRig{},
		states:   &stateLog{},
		notes:    &stubNotifier{},
	}

	sources := func(_ context.Context, credentials ferrytypes.Credentials) (source.Source, error) {
		r.mu.Lock()
		r.srcCreds = append(r.srcCreds, credentials)
		r.mu.Unlock()
		return r.src, nil
	}

	base := []Option{
		WithSinkFactory(r.sinks.factory),
		WithStateFunc(r.states.fn),
		WithNotifier(r.notes),
		WithRetryBaseDelay(time.Millisecond),
		WithWatchdogInterval(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	engine, err := New(sources, r.sessions, r.learner, append(base, opts...)...)
	require.NoError(t, err)
	r.engine = engine
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	sources := func(context.Context, ferrytypes.Credentials) (source.Source, error) {
		return &memSource{}, nil
	}
	sessions := newStubSessions()
	learner := &stubLearner{}

	_, err := New(nil, sessions, learner)
	assert.Error(t, err)

	_, err = New(sources, nil, learner)
	assert.Error(t, err)

	_, err = New(sources, sessions, nil)
	assert.Error(t, err)
}

func TestExecuteMovesSmallObject(t *testing.T) {
	payload := []byte("region,revenue\neu-west-1,1204\nus-east-1,988\n")
	r := newRig(t, payload)
	req := testRequest()

	result, err := r.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ferrytypes.StateCompleted, result.State)
	assert.Equal(t, int64(len(payload)), result.BytesTransferred)
	assert.Equal(t, md5Hex(payload), result.Checksum)
	assert.Equal(t, "exports/q1.csv", result.RemotePath)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.ErrorKind)

	// Small objects move in a single uncompressed shot.
	assert.Equal(t, int64(0), result.Strategy.ChunkSize)
	assert.Equal(t, 1, result.Strategy.Parallelism)
	assert.False(t, result.Strategy.Compress)

	assert.Equal(t, []ferrytypes.TransferState{
		ferrytypes.StatePending,
		ferrytypes.StateAuthorizing,
		ferrytypes.StatePlanning,
		ferrytypes.StateStreaming,
		ferrytypes.StateVerifying,
		ferrytypes.StateCompleted,
	}, r.states.seen())

	// Credentials were captured exactly once and fed the source factory.
	assert.Equal(t, 1, r.sessions.credCalls)
	require.Len(t, r.srcCreds, 1)
	assert.Equal(t, "AKIDEXAMPLE", r.srcCreds[0].AccessKeyID)

	// The grant was issued for this request and revoked at terminal state.
	assert.Equal(t, []string{"REQ-1001"}, r.sessions.authenticated)
	assert.Equal(t, []string{"grant-REQ-1001"}, r.sessions.revoked)

	// One stat, one sink, destination content intact.
	r.src.mu.Lock()
	stats := r.src.stats
	r.src.mu.Unlock()
	assert.Equal(t, 1, stats)
	require.Equal(t, 1, r.sinks.count())
	snk := r.sinks.last()
	assert.Equal(t, "deliver", snk.creds.Username)
	assert.Equal(t, []string{"exports/q1.csv"}, snk.prepared)
	assert.Equal(t, payload, snk.content("exports/q1.csv"))
	assert.True(t, snk.closed)

	// Outcome recorded and notified exactly once.
	records := r.learner.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, ferrytypes.ProtocolSFTP, records[0].Protocol)
	assert.Equal(t, int64(len(payload)), records[0].SizeBytes)
	assert.True(t, records[0].Success)
	assert.Equal(t, 1, records[0].Attempts)
	assert.Empty(t, records[0].ErrorClass)

	summaries := r.notes.sent()
	require.Len(t, summaries, 1)
	assert.Equal(t, "REQ-1001", summaries[0].RequestID)
	assert.Equal(t, ferrytypes.StateCompleted, summaries[0].Outcome)
	assert.Equal(t, int64(len(payload)), summaries[0].Bytes)
	assert.Equal(t, md5Hex(payload), summaries[0].Checksum)
	assert.Empty(t, summaries[0].ErrorKind)
}

func TestExecuteCompressesMediumObject(t *testing.T) {
	// Just over the 10 MiB boundary: two chunks, compression on.
	payload := bytes.Repeat([]byte("q1 revenue by region and week\n"), 360000)
	require.Greater(t, int64(len(payload)), ferrytypes.SmallMaxBytes)

	r := newRig(t, payload)
	// Force the sniffing path: the store has no usable content type on
	// record, so planning reads the leading bytes instead.
	r.src.contentType = "application/octet-stream"
	req := testRequest()

	result, err := r.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ferrytypes.StateCompleted, result.State)
	assert.True(t, result.Strategy.Compress)
	assert.Equal(t, int64(10*1024*1024), result.Strategy.ChunkSize)
	assert.Equal(t, 4, result.Strategy.Parallelism)
	assert.Equal(t, "exports/q1.csv.gz", result.RemotePath)

	// The digest and the byte count cover source bytes, not wire bytes.
	assert.Equal(t, int64(len(payload)), result.BytesTransferred)
	assert.Equal(t, md5Hex(payload), result.Checksum)

	// Concatenated gzip members decompress back to the exact object.
	snk := r.sinks.last()
	require.NotNil(t, snk)
	compressed := snk.content("exports/q1.csv.gz")
	require.NotEmpty(t, compressed)
	assert.Less(t, len(compressed), len(payload))

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	restored, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.NoError(t, zr.Close())
	assert.Equal(t, payload, restored)
}

func TestExecuteValidationFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *ferrytypes.TransferRequest)
	}{
		{
			name:   "empty request id",
			mutate: func(req *ferrytypes.TransferRequest) { req.RequestID = "" },
		},
		{
			name:   "unknown protocol",
			mutate: func(req *ferrytypes.TransferRequest) { req.Dest.Protocol = "http" },
		},
		{
			name: "no destination credentials",
			mutate: func(req *ferrytypes.TransferRequest) {
				req.Dest.Username = ""
				req.Dest.SecretRef = ""
			},
		},
		{
			name:   "bucket too short",
			mutate: func(req *ferrytypes.TransferRequest) { req.Source.Bucket = "x" },
		},
		{
			name:   "key path traversal",
			mutate: func(req *ferrytypes.TransferRequest) { req.Source.Key = "../etc/passwd" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []byte("payload"))
			req := testRequest()
			tt.mutate(&req)

			result, err := r.engine.Execute(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, ferrytypes.StateFailed, result.State)
			assert.Equal(t, ferryerrors.KindInvalidInput.String(), result.ErrorKind)

			// A malformed request consumes nothing: no grant, no stream, no
			// bookkeeping.
			assert.Empty(t, r.sessions.authenticated)
			assert.Zero(t, r.sinks.count())
			assert.Empty(t, r.states.seen())
			assert.Empty(t, r.learner.recorded())
			assert.Empty(t, r.notes.sent())
		})
	}
}

func newManagerEngine(t *testing.T, r *rig) (*Engine, *session.Manager) {
	t.Helper()
	manager, err := session.NewManager(
		session.NewMemoryStore(),
		session.NewStaticIdentity(ferrytypes.Credentials{AccessKeyID: "AKIDEXAMPLE"}),
	)
	require.NoError(t, err)

	sources := func(context.Context, ferrytypes.Credentials) (source.Source, error) {
		return r.src, nil
	}
	engine, err := New(sources, manager, r.learner,
		WithSinkFactory(r.sinks.factory),
		WithNotifier(r.notes),
		WithRetryBaseDelay(time.Millisecond),
		WithWatchdogInterval(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return engine, manager
}

func TestExecuteRejectsDuplicateRequestID(t *testing.T) {
	payload := []byte("one object per request id")
	r := newRig(t, payload)
	engine, _ := newManagerEngine(t, r)
	req := testRequest()

	result, err := engine.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ferrytypes.StateCompleted, result.State)

	// The same request id can never authorize a second transfer, even after
	// the first one finished and its grant was revoked.
	result, err = engine.Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ferryerrors.IsDuplicateRequest(err))
	assert.Equal(t, ferrytypes.StateFailed, result.State)
	assert.Equal(t, ferryerrors.KindDuplicateRequest.String(), result.ErrorKind)
	assert.Zero(t, result.Attempts)

	// Nothing streamed the second time.
	assert.Equal(t, 1, r.sinks.count())

	// Both outcomes were recorded and notified.
	records := r.learner.recorded()
	require.Len(t, records, 2)
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.Equal(t, ferryerrors.KindDuplicateRequest.String(), records[1].ErrorClass)

	summaries := r.notes.sent()
	require.Len(t, summaries, 2)
	assert.Equal(t, ferrytypes.StateFailed, summaries[1].Outcome)
}

func TestExecuteAcceptsPreIssuedGrant(t *testing.T) {
	payload := []byte("pre-authorized delivery")
	r := newRig(t, payload)
	engine, manager := newManagerEngine(t, r)

	grant, err := manager.Authenticate(context.Background(), "analyst-7", "REQ-2001", "")
	require.NoError(t, err)

	req := testRequest()
	req.RequestID = "REQ-2001"
	req.GrantID = grant.ID

	// Completing proves the engine validated the pre-issued grant instead
	// of authenticating again: a second Authenticate for REQ-2001 would
	// have been rejected as a duplicate.
	result, err := engine.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ferrytypes.StateCompleted, result.State)

	// The grant was revoked at terminal state.
	assert.False(t, manager.IsValid(context.Background(), grant.ID))
}

func TestExecuteRejectsInvalidPreIssuedGrant(t *testing.T) {
	r := newRig(t, []byte("payload"))
	req := testRequest()
	req.GrantID = "grant-that-never-was"

	result, err := r.engine.Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ferryerrors.IsAuthorization(err))
	assert.Equal(t, ferrytypes.StateFailed, result.State)
	assert.Equal(t, ferryerrors.KindAuthorization.String(), result.ErrorKind)

	// The unknown grant was never accepted, so there is nothing to revoke
	// and nothing streamed.
	assert.Empty(t, r.sessions.revoked)
	assert.Zero(t, r.sinks.count())
}

func TestExecuteAttachesPrediction(t *testing.T) {
	r := newRig(t, []byte("payload for prediction"))
	r.learner.prediction = ferrytypes.Prediction{
		SuccessRate:      0.92,
		ExpectedDuration: 3 * time.Second,
		Confidence:       ferrytypes.ConfidenceHigh,
		SampleSize:       64,
	}

	result, err := r.engine.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, r.learner.prediction, result.Prediction)
}

func TestExecutePredictionFailureIsAdvisory(t *testing.T) {
	r := newRig(t, []byte("payload without history"))
	r.learner.predictErr = ferryerrors.NewError("strategy.predict", ferryerrors.KindHistoryStore, assert.AnError)

	result, err := r.engine.Execute(context.Background(), testRequest())
	require.NoError(t, err)

	// The transfer ran to completion with a zero prediction.
	assert.Equal(t, ferrytypes.StateCompleted, result.State)
	assert.Zero(t, result.Prediction)
}

func TestExecuteContainsSinkFactoryPanic(t *testing.T) {
	r := newRig(t, []byte("payload"), WithSinkFactory(func(ferrytypes.Protocol) (sink.Sink, error) {
		panic("no sink for this protocol")
	}))

	result, err := r.engine.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, ferryerrors.KindInternal, ferryerrors.KindOf(err))
	assert.ErrorContains(t, err, "no sink for this protocol")

	require.NotNil(t, result)
	assert.Equal(t, ferrytypes.StateFailed, result.State)
	assert.Equal(t, ferryerrors.KindInternal.String(), result.ErrorKind)

	// The terminal bookkeeping still ran: grant revoked, failed outcome
	// recorded, delivery notified.
	assert.NotEmpty(t, r.sessions.revoked)
	records := r.learner.recorded()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	summaries := r.notes.sent()
	require.Len(t, summaries, 1)
	assert.Equal(t, ferrytypes.StateFailed, summaries[0].Outcome)
}

// panickyNotifier stands in for a broken downstream observer.
type panickyNotifier struct{}

func (panickyNotifier) Notify(context.Context, ferrytypes.OutcomeSummary) error {
	panic("notifier blew up")
}

func TestExecuteContainsNotifierPanic(t *testing.T) {
	r := newRig(t, []byte("payload"), WithNotifier(panickyNotifier{}))

	result, err := r.engine.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, ferryerrors.KindInternal, ferryerrors.KindOf(err))

	require.NotNil(t, result)
	assert.Equal(t, ferrytypes.StateFailed, result.State)
	assert.Equal(t, ferryerrors.KindInternal.String(), result.ErrorKind)
}

func TestExecuteRecordFailureDoesNotFailTransfer(t *testing.T) {
	r := newRig(t, []byte("payload"))
	r.learner.recordErr = ferryerrors.NewError("strategy.record", ferryerrors.KindHistoryStore, assert.AnError)

	result, err := r.engine.Execute(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, ferrytypes.StateCompleted, result.State)

	// The delivery still notified even though history was unavailable.
	require.Len(t, r.notes.sent(), 1)
}
