// Package ferry moves single objects from blob storage to FTP, FTPS, and
// SFTP destinations.
//
// One Engine serves many transfers; each call to Execute drives one request
// through the full lifecycle:
//
//	Pending → Authorizing → Planning → Streaming → Verifying → Completed/Failed
//
// Authorizing issues (or validates) a short-lived grant tied to the external
// request id and captures the underlying storage credentials exactly once.
// Planning stats the object, derives a chunking strategy from its size, and
// attaches an advisory success prediction learned from past transfers.
// Streaming copies byte ranges through a bounded worker pool while a
// checksum accumulates over the source bytes in chunk-index order, and
// Verifying compares that checksum against the source's ETag. Transient
// transport failures are retried with exponential backoff and a degraded
// strategy; every terminal outcome revokes the grant and is recorded to the
// transfer history.
//
// Minimal wiring:
//
//	sessions, _ := session.NewManager(session.NewMemoryStore(), identity)
//	learner, _ := strategy.NewLearner(strategy.NewMemoryHistory())
//	engine, _ := ferry.New(sourceFactory, sessions, learner)
//	result, err := engine.Execute(ctx, ferrytypes.TransferRequest{ ... })
//
// Production deployments back the grant store, history, and request tracker
// with DynamoDB and resolve destination credentials from Secrets Manager;
// see the session, strategy, tracker, and creds packages.
package ferry
