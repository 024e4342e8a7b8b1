// Package ferrytypes provides shared type definitions for the ferry module.
package ferrytypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol identifies the destination transfer protocol.
type Protocol string

// Supported destination protocols. The set is closed: every switch over
// Protocol in this module handles exactly these values.
const (
	// ProtocolFTP is plain FTP.
	ProtocolFTP Protocol = "ftp"

	// ProtocolFTPS is FTP over explicit TLS (AUTH TLS).
	ProtocolFTPS Protocol = "ftps"

	// ProtocolSFTP is file transfer over SSH.
	ProtocolSFTP Protocol = "sftp"
)

// ParseProtocol converts a string into a Protocol.
// Matching is case-insensitive. Unknown values return an error.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolFTP:
		return ProtocolFTP, nil
	case ProtocolFTPS:
		return ProtocolFTPS, nil
	case ProtocolSFTP:
		return ProtocolSFTP, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolFTP, ProtocolFTPS, ProtocolSFTP:
		return true
	default:
		return false
	}
}

// String returns the protocol name.
func (p Protocol) String() string { return string(p) }

// DefaultPort returns the conventional port for the protocol.
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSFTP:
		return 22
	case ProtocolFTP, ProtocolFTPS:
		return 21
	default:
		return 0
	}
}

// Size bucket thresholds. Buckets group transfers for both strategy
// selection and historical outcome statistics.
const (
	// SmallMaxBytes is the exclusive upper bound of the small bucket (10 MiB).
	SmallMaxBytes int64 = 10 * 1024 * 1024

	// MediumMaxBytes is the exclusive upper bound of the medium bucket (100 MiB).
	MediumMaxBytes int64 = 100 * 1024 * 1024

	// LargeMaxBytes is the exclusive upper bound of the large bucket (1 GiB).
	LargeMaxBytes int64 = 1024 * 1024 * 1024
)

// SizeBucket groups object sizes into fixed tiers.
type SizeBucket string

// Predefined size buckets.
const (
	// BucketSmall covers objects below 10 MiB.
	BucketSmall SizeBucket = "small"

	// BucketMedium covers objects from 10 MiB up to 100 MiB.
	BucketMedium SizeBucket = "medium"

	// BucketLarge covers objects from 100 MiB up to 1 GiB.
	BucketLarge SizeBucket = "large"

	// BucketXLarge covers objects of 1 GiB and above.
	BucketXLarge SizeBucket = "xlarge"
)

// BucketFor returns the size bucket for an object size in bytes.
func BucketFor(size int64) SizeBucket {
	switch {
	case size < SmallMaxBytes:
		return BucketSmall
	case size < MediumMaxBytes:
		return BucketMedium
	case size < LargeMaxBytes:
		return BucketLarge
	default:
		return BucketXLarge
	}
}

// TransferState is one phase of a transfer's lifecycle.
type TransferState string

// Transfer lifecycle states, in order of progression.
const (
	// StatePending is the initial state before any work starts.
	StatePending TransferState = "pending"

	// StateAuthorizing covers grant acquisition and validation.
	StateAuthorizing TransferState = "authorizing"

	// StatePlanning covers source metadata lookup and strategy selection.
	StatePlanning TransferState = "planning"

	// StateStreaming covers the chunked copy to the destination.
	StateStreaming TransferState = "streaming"

	// StateVerifying covers the end-to-end checksum comparison.
	StateVerifying TransferState = "verifying"

	// StateCompleted is the terminal success state.
	StateCompleted TransferState = "completed"

	// StateFailed is the terminal failure state.
	StateFailed TransferState = "failed"
)

// String returns the state name.
func (s TransferState) String() string { return string(s) }

// Terminal reports whether the state is Completed or Failed.
func (s TransferState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// RiskLevel expresses how aggressive a transfer strategy is.
type RiskLevel string

// Predefined risk levels.
const (
	// RiskLow marks conservative strategies.
	RiskLow RiskLevel = "low"

	// RiskMedium marks strategies with moderate parallelism.
	RiskMedium RiskLevel = "medium"

	// RiskHigh marks strategies with high parallelism on very large objects.
	RiskHigh RiskLevel = "high"
)

// Confidence expresses how much history backs a prediction.
type Confidence string

// Predefined confidence tiers.
const (
	// ConfidenceLow means fewer than 20 comparable samples.
	ConfidenceLow Confidence = "low"

	// ConfidenceMedium means at least 20 comparable samples.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceHigh means at least 50 comparable samples.
	ConfidenceHigh Confidence = "high"
)

// ObjectRef identifies one object in blob storage.
type ObjectRef struct {
	// Bucket is the storage container name.
	Bucket string

	// Key is the object key within the bucket.
	Key string
}

// String returns the reference as "bucket/key" for logs and error context.
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// Destination describes the remote endpoint receiving the object.
type Destination struct {
	// Protocol selects the sink implementation.
	Protocol Protocol

	// Host is the destination hostname or address.
	Host string

	// Port is the destination port. Zero selects the protocol default.
	Port int

	// Path is the remote file path to write.
	Path string

	// Username authenticates against the destination. Optional when
	// SecretRef is set.
	Username string

	// Password authenticates against the destination. Optional when
	// SecretRef is set or PrivateKey is provided.
	Password string

	// PrivateKey is a PEM-encoded SSH private key (SFTP only).
	PrivateKey []byte

	// SecretRef names a stored secret holding the destination credentials.
	// Inline Username/Password take precedence when both are present.
	SecretRef string
}

// Addr returns the destination "host:port", applying the protocol default
// when no port is set.
func (d Destination) Addr() string {
	port := d.Port
	if port == 0 {
		port = d.Protocol.DefaultPort()
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// Credentials are the time-limited credentials backing a grant. They outlive
// the short grant-validity window and cover one transfer's duration.
type Credentials struct {
	// AccessKeyID is the credential key id.
	AccessKeyID string

	// SecretAccessKey is the credential secret.
	SecretAccessKey string

	// SessionToken is the session token for temporary credentials.
	SessionToken string

	// Expiry is when the underlying credentials stop working.
	Expiry time.Time
}

// Expired reports whether the credentials are past their expiry at t.
func (c Credentials) Expired(t time.Time) bool {
	return !c.Expiry.IsZero() && !t.Before(c.Expiry)
}

// SinkCredentials authenticate against the destination endpoint.
type SinkCredentials struct {
	// Username is the destination account name.
	Username string

	// Password is the destination account password.
	Password string

	// PrivateKey is a PEM-encoded SSH private key (SFTP only).
	PrivateKey []byte
}

// TransferRequest is the immutable description of one transfer job.
// Callers construct it once; the engine never mutates it.
type TransferRequest struct {
	// Source is the object to move.
	Source ObjectRef

	// Dest is the remote endpoint to move it to.
	Dest Destination

	// RequesterID identifies who asked for the transfer.
	RequesterID string

	// RequestID is the externally issued request/ticket identifier.
	// Each id can authorize at most one transfer.
	RequestID string

	// GrantID optionally names a pre-issued grant to use instead of
	// authenticating inside the engine.
	GrantID string
}

// TransferStrategy is the derived plan for one transfer. It is computed from
// the object size and never mutated; a retry derives a new value instead.
type TransferStrategy struct {
	// ChunkSize is the chunk length in bytes. Zero disables chunking and
	// the object moves in a single shot.
	ChunkSize int64

	// Parallelism is the number of concurrent chunk workers.
	Parallelism int

	// Compress enables transparent gzip compression of the stream.
	Compress bool

	// Risk grades how aggressive the plan is.
	Risk RiskLevel

	// EstimatedDuration projects the transfer time at a conservative
	// throughput. Advisory; the engine never enforces it.
	EstimatedDuration time.Duration
}

// Chunked reports whether the strategy splits the object into ranges.
func (s TransferStrategy) Chunked() bool { return s.ChunkSize > 0 }

// TransferRecord is one append-only historical fact about a finished
// transfer. Records are written once and read in aggregate; they are never
// updated or deleted.
type TransferRecord struct {
	// ID uniquely identifies the record.
	ID string

	// Protocol is the destination protocol used.
	Protocol Protocol

	// SizeBucket is the size tier of the transferred object.
	SizeBucket SizeBucket

	// SizeBytes is the exact object size.
	SizeBytes int64

	// Success reports whether the transfer completed.
	Success bool

	// Duration is the wall-clock time the job took.
	Duration time.Duration

	// ChunkSize is the chunk size of the final attempt's strategy.
	ChunkSize int64

	// Parallelism is the worker count of the final attempt's strategy.
	Parallelism int

	// Attempts is the number of executions, including the first.
	Attempts int

	// ErrorClass is the machine-readable kind of the terminal error,
	// empty on success.
	ErrorClass string

	// RecordedAt is when the record was appended.
	RecordedAt time.Time
}

// Prediction is the advisory outcome estimate for a planned transfer.
// Predictions inform logging and ticketing; they never block execution.
type Prediction struct {
	// SuccessRate is the estimated probability of success in [0, 1].
	SuccessRate float64

	// ExpectedDuration is the estimated transfer duration.
	ExpectedDuration time.Duration

	// Confidence grades the sample backing the estimate.
	Confidence Confidence

	// SampleSize is the number of historical records consulted.
	SampleSize int
}

// TransferResult is the terminal outcome of one Execute call.
type TransferResult struct {
	// State is the terminal state, Completed or Failed.
	State TransferState

	// BytesTransferred is the number of source bytes moved.
	BytesTransferred int64

	// Checksum is the hex digest accumulated over the source bytes.
	Checksum string

	// RemotePath is the destination path written.
	RemotePath string

	// Duration is the wall-clock time the job took.
	Duration time.Duration

	// Attempts is the number of executions, including the first.
	Attempts int

	// Strategy is the plan used by the final attempt.
	Strategy TransferStrategy

	// Prediction is the advisory estimate computed during planning.
	Prediction Prediction

	// ErrorKind is the machine-readable kind of the terminal error,
	// empty on success.
	ErrorKind string
}

// ProgressTracker receives transfer progress updates.
// Implementations can provide real-time reporting during a transfer.
type ProgressTracker interface {
	// Update is called periodically with transfer progress.
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully.
	Complete()

	// Error is called when the transfer fails.
	Error(err error)
}

// OutcomeSummary is the one-shot notification sent to the ticketing/audit
// collaborator after a job reaches a terminal state.
type OutcomeSummary struct {
	// RequestID is the external request/ticket identifier.
	RequestID string

	// Outcome is the terminal state.
	Outcome TransferState

	// Bytes is the number of source bytes moved.
	Bytes int64

	// Duration is the wall-clock time the job took.
	Duration time.Duration

	// Checksum is the accumulated hex digest, empty on early failures.
	Checksum string

	// ErrorKind is the machine-readable kind of the terminal error,
	// empty on success.
	ErrorKind string
}
