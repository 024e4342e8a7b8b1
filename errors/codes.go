package errors

// Kind classifies an error condition in the transfer engine.
// Kinds are string-based for debuggability and natural serialization into
// logs, history records, and ticketing summaries.
type Kind string

const (
	// Authorization errors.

	// KindAuthorization indicates the grant is missing, expired, or otherwise unusable.
	KindAuthorization Kind = "AUTHORIZATION"

	// KindDuplicateRequest indicates the request id already consumed a grant.
	KindDuplicateRequest Kind = "DUPLICATE_REQUEST"

	// KindInvalidRequest indicates the request or ticket identifier is unknown or malformed.
	KindInvalidRequest Kind = "INVALID_REQUEST"

	// Source errors.

	// KindSourceNotFound indicates the source object does not exist.
	KindSourceNotFound Kind = "SOURCE_NOT_FOUND"

	// KindSourceAccessDenied indicates the captured credentials cannot read the source.
	KindSourceAccessDenied Kind = "SOURCE_ACCESS_DENIED"

	// Transport errors.

	// KindTransientTransport indicates a momentary network or destination failure
	// that is safe to retry.
	KindTransientTransport Kind = "TRANSIENT_TRANSPORT"

	// KindIntegrity indicates the accumulated checksum did not match the source.
	KindIntegrity Kind = "INTEGRITY"

	// Infrastructure errors.

	// KindSessionStore indicates the grant store failed; the operation must not
	// proceed without the guarantee the store provides.
	KindSessionStore Kind = "SESSION_STORE"

	// KindHistoryStore indicates the outcome history store failed.
	KindHistoryStore Kind = "HISTORY_STORE"

	// Lifecycle errors.

	// KindCancelled indicates the job was cancelled or hit its deadline.
	KindCancelled Kind = "CANCELLED"

	// Generic errors.

	// KindInvalidInput indicates a malformed request field.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindInternal indicates an unclassified internal failure.
	KindInternal Kind = "INTERNAL"
)

// String returns the kind as a string.
func (k Kind) String() string { return string(k) }
